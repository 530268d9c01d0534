// Package fleet loads the optional constellationfs.fleet.yaml manifest:
// a named registry of backend configurations an operator can predefine,
// generalizing the teacher's PathList mixed scalar/mapping YAML pattern
// (internal/config/wing.go) to a tagged union of Local/Remote entries.
package fleet

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Kind discriminates an Entry's variant.
type Kind string

const (
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
)

// AuthEntry is the remote auth block. A private key is referenced by
// path rather than inlined; Password and Passphrase are read inline
// from the manifest.
type AuthEntry struct {
	Type           string `yaml:"type"`
	PrivateKeyPath string `yaml:"privateKeyPath,omitempty"`
	Passphrase     string `yaml:"passphrase,omitempty"`
	Password       string `yaml:"password,omitempty"`
}

// LocalEntry mirrors the public LocalConfig fields this entry will be
// converted into.
type LocalEntry struct {
	UserID           string `yaml:"userId"`
	Shell            string `yaml:"shell,omitempty"`
	ValidateUtils    bool   `yaml:"validateUtils,omitempty"`
	PreventDangerous bool   `yaml:"preventDangerous,omitempty"`
	MaxOutputLength  int    `yaml:"maxOutputLength,omitempty"`
}

// RemoteEntry mirrors the public RemoteConfig fields this entry will be
// converted into.
type RemoteEntry struct {
	UserID              string    `yaml:"userId"`
	Host                string    `yaml:"host"`
	Port                int       `yaml:"port,omitempty"`
	Auth                AuthEntry `yaml:"auth"`
	OperationTimeoutMs  int       `yaml:"operationTimeoutMs,omitempty"`
	KeepaliveIntervalMs int       `yaml:"keepaliveIntervalMs,omitempty"`
	KeepaliveCountMax   int       `yaml:"keepaliveCountMax,omitempty"`
	PreventDangerous    bool      `yaml:"preventDangerous,omitempty"`
	MaxOutputLength     int       `yaml:"maxOutputLength,omitempty"`
}

// Entry is one named backend in the fleet, a tagged union of Local and
// Remote.
type Entry struct {
	Name   string
	Kind   Kind
	Local  *LocalEntry
	Remote *RemoteEntry
}

type rawEntry struct {
	Name             string    `yaml:"name"`
	Type             string    `yaml:"type,omitempty"`
	UserID           string    `yaml:"userId"`
	Shell            string    `yaml:"shell,omitempty"`
	ValidateUtils    bool      `yaml:"validateUtils,omitempty"`
	PreventDangerous *bool     `yaml:"preventDangerous,omitempty"`
	MaxOutputLength  int       `yaml:"maxOutputLength,omitempty"`
	Host             string    `yaml:"host,omitempty"`
	Port             int       `yaml:"port,omitempty"`
	Auth             AuthEntry `yaml:"auth,omitempty"`

	OperationTimeoutMs  int `yaml:"operationTimeoutMs,omitempty"`
	KeepaliveIntervalMs int `yaml:"keepaliveIntervalMs,omitempty"`
	KeepaliveCountMax   int `yaml:"keepaliveCountMax,omitempty"`
}

// UnmarshalYAML decodes one fleet entry, defaulting an absent "type" to
// "local" the same way the root BackendConfig's JSON form does.
func (e *Entry) UnmarshalYAML(value *yaml.Node) error {
	var raw rawEntry
	if err := value.Decode(&raw); err != nil {
		return err
	}

	kind := raw.Type
	if kind == "" {
		kind = "local"
	}

	e.Name = raw.Name
	preventDangerous := true
	if raw.PreventDangerous != nil {
		preventDangerous = *raw.PreventDangerous
	}

	switch kind {
	case "local":
		e.Kind = KindLocal
		e.Local = &LocalEntry{
			UserID:           raw.UserID,
			Shell:            raw.Shell,
			ValidateUtils:    raw.ValidateUtils,
			PreventDangerous: preventDangerous,
			MaxOutputLength:  raw.MaxOutputLength,
		}
	case "remote":
		e.Kind = KindRemote
		e.Remote = &RemoteEntry{
			UserID:              raw.UserID,
			Host:                raw.Host,
			Port:                raw.Port,
			Auth:                raw.Auth,
			OperationTimeoutMs:  raw.OperationTimeoutMs,
			KeepaliveIntervalMs: raw.KeepaliveIntervalMs,
			KeepaliveCountMax:   raw.KeepaliveCountMax,
			PreventDangerous:    preventDangerous,
			MaxOutputLength:     raw.MaxOutputLength,
		}
	default:
		return &yaml.TypeError{Errors: []string{"fleet entry " + raw.Name + ": unknown type " + kind}}
	}
	return nil
}

// MarshalYAML serializes an Entry back to the tagged mapping form.
func (e Entry) MarshalYAML() (any, error) {
	switch e.Kind {
	case KindRemote:
		return struct {
			Name string `yaml:"name"`
			Type string `yaml:"type"`
			RemoteEntry `yaml:",inline"`
		}{Name: e.Name, Type: "remote", RemoteEntry: *e.Remote}, nil
	default:
		return struct {
			Name string `yaml:"name"`
			Type string `yaml:"type"`
			LocalEntry `yaml:",inline"`
		}{Name: e.Name, Type: "local", LocalEntry: *e.Local}, nil
	}
}

// manifest is the top-level document shape.
type manifest struct {
	Backends []Entry `yaml:"backends"`
}

// Fleet is the loaded registry, keyed by entry name.
type Fleet map[string]Entry

// Load reads path and returns the named registry. A missing file is
// not an error — it returns an empty Fleet, matching the optional
// nature of the manifest (spec.md §A.2 supplement).
func Load(path string) (Fleet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Fleet{}, nil
		}
		return nil, err
	}

	var doc manifest
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	out := make(Fleet, len(doc.Backends))
	for _, e := range doc.Backends {
		out[e.Name] = e
	}
	return out, nil
}
