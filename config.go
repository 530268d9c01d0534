package constellationfs

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// validateUserID enforces spec §4: mandatory, non-empty, restricted
// charset, no traversal or control characters (the charset already
// excludes "/", "\\", and control characters; ".." is rejected
// separately).
func validateUserID(userID string) error {
	if userID == "" {
		return newErr(ErrInvalidConfiguration, "userId is required")
	}
	if !userIDPattern.MatchString(userID) {
		return newErr(ErrInvalidConfiguration, fmt.Sprintf("userId %q contains characters outside [A-Za-z0-9._-]", userID))
	}
	if strings.Contains(userID, "..") {
		return newErr(ErrInvalidConfiguration, fmt.Sprintf("userId %q must not contain \"..\"", userID))
	}
	return nil
}

// Shell selects which shell the local backend spawns commands with.
type Shell string

const (
	ShellAuto  Shell = "auto"
	ShellSh    Shell = "sh"
	ShellBash  Shell = "bash"
)

// AuthType selects the remote backend's authentication method.
type AuthType string

const (
	AuthKey      AuthType = "key"
	AuthPassword AuthType = "password"
)

// AuthConfig carries remote backend credentials.
type AuthConfig struct {
	Type        AuthType
	PrivateKey  []byte // used when Type == AuthKey
	Passphrase  string // optional, for an encrypted private key
	Password    string // used when Type == AuthPassword
}

// LocalConfig configures a local-process backend (spec §6).
type LocalConfig struct {
	UserID               string
	Shell                Shell
	ValidateUtils        bool
	PreventDangerous     bool
	MaxOutputLength      int
	OnDangerousOperation func(command string)
	// AuditDSN, if non-empty, is a modernc.org/sqlite DSN for the audit
	// log that records every rejection and absorbed dangerous command
	// (spec §A.1). Empty disables auditing.
	AuditDSN string
}

// RemoteConfig configures an SSH-backed remote backend (spec §6).
type RemoteConfig struct {
	UserID              string
	Host                string
	Port                int
	Auth                AuthConfig
	OperationTimeoutMs  int
	KeepaliveIntervalMs int
	KeepaliveCountMax   int
	PreventDangerous    bool
	MaxOutputLength     int
	// AuditDSN, if non-empty, is a modernc.org/sqlite DSN for the audit
	// log that records every rejection and absorbed dangerous command
	// (spec §A.1). Empty disables auditing.
	AuditDSN string
}

// BackendKind discriminates the BackendConfig tagged union.
type BackendKind string

const (
	BackendLocal  BackendKind = "local"
	BackendRemote BackendKind = "remote"
)

// BackendConfig is the tagged-variant backend configuration from spec
// §6: exactly one of Local or Remote is populated, selected by Kind.
type BackendConfig struct {
	Kind   BackendKind
	Local  *LocalConfig
	Remote *RemoteConfig
}

// jsonBackendConfig mirrors the wire shape of §6's structured config.
type jsonBackendConfig struct {
	Type             string `json:"type"`
	UserID           string `json:"userId"`
	Shell            string `json:"shell,omitempty"`
	ValidateUtils    *bool  `json:"validateUtils,omitempty"`
	PreventDangerous *bool  `json:"preventDangerous,omitempty"`
	MaxOutputLength  int    `json:"maxOutputLength,omitempty"`
	AuditDSN         string `json:"auditDsn,omitempty"`

	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`
	Auth *struct {
		Type        string `json:"type"`
		Credentials struct {
			PrivateKey string `json:"privateKey,omitempty"`
			Passphrase string `json:"passphrase,omitempty"`
			Password   string `json:"password,omitempty"`
		} `json:"credentials"`
	} `json:"auth,omitempty"`
	OperationTimeoutMs  int `json:"operationTimeoutMs,omitempty"`
	KeepaliveIntervalMs int `json:"keepaliveIntervalMs,omitempty"`
	KeepaliveCountMax   int `json:"keepaliveCountMax,omitempty"`
}

// UnmarshalJSON parses the tagged-union wire format: absent "type"
// defaults to "local" (spec §6, "Constructed from a partial config").
func (c *BackendConfig) UnmarshalJSON(data []byte) error {
	var raw jsonBackendConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	kind := raw.Type
	if kind == "" {
		kind = "local"
	}

	switch kind {
	case "local":
		shell := ShellAuto
		if raw.Shell != "" {
			shell = Shell(raw.Shell)
		}
		c.Kind = BackendLocal
		c.Local = &LocalConfig{
			UserID:           raw.UserID,
			Shell:            shell,
			ValidateUtils:    boolOr(raw.ValidateUtils, false),
			PreventDangerous: boolOr(raw.PreventDangerous, true),
			MaxOutputLength:  raw.MaxOutputLength,
			AuditDSN:         raw.AuditDSN,
		}
		return nil
	case "remote":
		rc := &RemoteConfig{
			UserID:              raw.UserID,
			Host:                raw.Host,
			Port:                raw.Port,
			OperationTimeoutMs:  raw.OperationTimeoutMs,
			KeepaliveIntervalMs: raw.KeepaliveIntervalMs,
			KeepaliveCountMax:   raw.KeepaliveCountMax,
			PreventDangerous:    boolOr(raw.PreventDangerous, true),
			MaxOutputLength:     raw.MaxOutputLength,
			AuditDSN:            raw.AuditDSN,
		}
		if raw.Auth != nil {
			rc.Auth = AuthConfig{
				Type:       AuthType(raw.Auth.Type),
				PrivateKey: []byte(raw.Auth.Credentials.PrivateKey),
				Passphrase: raw.Auth.Credentials.Passphrase,
				Password:   raw.Auth.Credentials.Password,
			}
		}
		c.Kind = BackendRemote
		c.Remote = rc
		return nil
	default:
		return newErr(ErrInvalidConfiguration, fmt.Sprintf("unknown backend type %q", raw.Type))
	}
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// Validate checks the userId and (for Remote) the host/auth shape.
func (c *BackendConfig) Validate() error {
	switch c.Kind {
	case BackendLocal:
		if c.Local == nil {
			return newErr(ErrInvalidConfiguration, "local backend config is nil")
		}
		return validateUserID(c.Local.UserID)
	case BackendRemote:
		if c.Remote == nil {
			return newErr(ErrInvalidConfiguration, "remote backend config is nil")
		}
		if err := validateUserID(c.Remote.UserID); err != nil {
			return err
		}
		if c.Remote.Host == "" {
			return newErr(ErrInvalidConfiguration, "remote backend requires a host")
		}
		if c.Remote.Auth.Type != AuthKey && c.Remote.Auth.Type != AuthPassword {
			return newErr(ErrInvalidConfiguration, fmt.Sprintf("unsupported auth type %q", c.Remote.Auth.Type))
		}
		return nil
	default:
		return newErr(ErrInvalidConfiguration, fmt.Sprintf("unknown backend kind %q", c.Kind))
	}
}
