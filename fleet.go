package constellationfs

import (
	"fmt"
	"os"

	"github.com/constellationfs/constellationfs/internal/fleet"
)

// LoadFleet reads the optional fleet manifest at path and returns its
// entries converted to BackendConfig, keyed by name. A missing file
// yields an empty map, not an error.
func LoadFleet(path string) (map[string]BackendConfig, error) {
	f, err := fleet.Load(path)
	if err != nil {
		return nil, newErr(ErrInvalidConfiguration, err.Error())
	}

	out := make(map[string]BackendConfig, len(f))
	for name, entry := range f {
		cfg, err := backendConfigFromFleetEntry(entry)
		if err != nil {
			return nil, fmt.Errorf("fleet entry %q: %w", name, err)
		}
		out[name] = cfg
	}
	return out, nil
}

func backendConfigFromFleetEntry(e fleet.Entry) (BackendConfig, error) {
	switch e.Kind {
	case fleet.KindRemote:
		r := e.Remote
		auth := AuthConfig{Type: AuthType(r.Auth.Type), Password: r.Auth.Password, Passphrase: r.Auth.Passphrase}
		if r.Auth.PrivateKeyPath != "" {
			key, err := os.ReadFile(r.Auth.PrivateKeyPath)
			if err != nil {
				return BackendConfig{}, fmt.Errorf("reading private key %s: %w", r.Auth.PrivateKeyPath, err)
			}
			auth.PrivateKey = key
		}
		cfg := BackendConfig{
			Kind: BackendRemote,
			Remote: &RemoteConfig{
				UserID:              r.UserID,
				Host:                r.Host,
				Port:                r.Port,
				Auth:                auth,
				OperationTimeoutMs:  r.OperationTimeoutMs,
				KeepaliveIntervalMs: r.KeepaliveIntervalMs,
				KeepaliveCountMax:   r.KeepaliveCountMax,
				PreventDangerous:    r.PreventDangerous,
				MaxOutputLength:     r.MaxOutputLength,
			},
		}
		return cfg, cfg.Validate()
	default:
		l := e.Local
		shell := ShellAuto
		if l.Shell != "" {
			shell = Shell(l.Shell)
		}
		cfg := BackendConfig{
			Kind: BackendLocal,
			Local: &LocalConfig{
				UserID:           l.UserID,
				Shell:            shell,
				ValidateUtils:    l.ValidateUtils,
				PreventDangerous: l.PreventDangerous,
				MaxOutputLength:  l.MaxOutputLength,
			},
		}
		return cfg, cfg.Validate()
	}
}
