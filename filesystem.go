package constellationfs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/constellationfs/constellationfs/internal/audit"
	"github.com/constellationfs/constellationfs/internal/backend"
	"github.com/constellationfs/constellationfs/internal/pool"
	"github.com/constellationfs/constellationfs/internal/wsroot"
)

// Filesystem is the C8 façade: a thin, stable handle over a backend
// (owned outright, or acquired from a shared Pool) that exposes
// workspace allocation and nothing file-level — all I/O goes through
// the Workspace handles it returns.
type Filesystem struct {
	cfg      BackendConfig
	be       backend.Backend
	pool     *pool.Pool
	poolKey  string
	auditLog *audit.Log

	mu         sync.Mutex
	workspaces map[string]*Workspace
}

func auditDSNFor(cfg BackendConfig) string {
	if cfg.Kind == BackendRemote {
		return cfg.Remote.AuditDSN
	}
	return cfg.Local.AuditDSN
}

// openAuditLog opens the audit sink configured on cfg, or returns a nil
// *audit.Log (a no-op receiver throughout the call chain) when no DSN is
// set.
func openAuditLog(cfg BackendConfig) (*audit.Log, error) {
	dsn := auditDSNFor(cfg)
	if dsn == "" {
		return nil, nil
	}
	return audit.Open(dsn)
}

var defaultResolver = wsroot.New()

// New constructs a Filesystem that owns its backend outright: Destroy
// tears the backend down immediately regardless of how many Filesystem
// values might otherwise have shared it.
func New(cfg BackendConfig) (*Filesystem, error) {
	be, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}
	auditLog, err := openAuditLog(cfg)
	if err != nil {
		be.Destroy()
		return nil, newErr(ErrInvalidConfiguration, err.Error())
	}
	return &Filesystem{cfg: cfg, be: be, auditLog: auditLog, workspaces: make(map[string]*Workspace)}, nil
}

// NewPooled constructs a Filesystem whose backend is acquired from p
// (spec §4.7/§4.8): concurrent callers with the same userId/backend
// kind/host share one backend until every Filesystem built against that
// key has called Destroy.
func NewPooled(cfg BackendConfig, p *pool.Pool) (*Filesystem, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	key := poolKeyFor(cfg)
	be, err := p.Acquire(key, func() (backend.Backend, error) { return newBackend(cfg) })
	if err != nil {
		return nil, err
	}
	auditLog, err := openAuditLog(cfg)
	if err != nil {
		p.Release(key)
		return nil, newErr(ErrInvalidConfiguration, err.Error())
	}
	return &Filesystem{cfg: cfg, be: be, pool: p, poolKey: key, auditLog: auditLog, workspaces: make(map[string]*Workspace)}, nil
}

func poolKeyFor(cfg BackendConfig) string {
	switch cfg.Kind {
	case BackendRemote:
		return pool.RemoteKey(cfg.Remote.UserID, cfg.Remote.Host, cfg.Remote.Port)
	default:
		return pool.LocalKey(cfg.Local.UserID)
	}
}

func newBackend(cfg BackendConfig) (backend.Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case BackendRemote:
		rc := cfg.Remote
		method, err := remoteAuthMethod(rc.Auth)
		if err != nil {
			return nil, err
		}
		be, err := backend.NewRemote(rc.UserID, rc.Host, rc.Port, backend.RemoteAuth{Method: method}, backend.RemoteOptions{
			OperationTimeout:  time.Duration(rc.OperationTimeoutMs) * time.Millisecond,
			KeepaliveInterval: time.Duration(rc.KeepaliveIntervalMs) * time.Millisecond,
			KeepaliveCountMax: rc.KeepaliveCountMax,
		})
		if err != nil {
			return nil, newErr(ErrInvalidConfiguration, err.Error())
		}
		return be, nil
	default:
		lc := cfg.Local
		be, err := backend.NewLocal(defaultResolver, lc.UserID, string(lc.Shell), lc.ValidateUtils)
		if err != nil {
			return nil, newErr(ErrMissingUtilities, err.Error())
		}
		return be, nil
	}
}

// UserID returns the owning user id.
func (f *Filesystem) UserID() string {
	if f.cfg.Kind == BackendRemote {
		return f.cfg.Remote.UserID
	}
	return f.cfg.Local.UserID
}

// Config returns the configuration this Filesystem was built from.
func (f *Filesystem) Config() BackendConfig { return f.cfg }

// GetWorkspace materializes (or returns the cached handle for) a named
// workspace, optionally fingerprinted by a per-workspace custom
// environment (spec §4.5 "Workspace allocation").
func (f *Filesystem) GetWorkspace(ctx context.Context, name string, customEnv map[string]string) (*Workspace, error) {
	if name == "" {
		name = "default"
	}
	cacheKey := name
	if len(customEnv) > 0 {
		cacheKey = name + "|" + fingerprint(customEnv)
	}

	f.mu.Lock()
	if ws, ok := f.workspaces[cacheKey]; ok {
		f.mu.Unlock()
		return ws, nil
	}
	f.mu.Unlock()

	path, err := f.be.EnsureWorkspaceDir(ctx, name)
	if err != nil {
		return nil, newErr(ErrWriteFailed, err.Error())
	}

	shell, preventDangerous, maxOutputLength, onDangerous := f.execDefaults()
	ws := newWorkspace(f.be, f.UserID(), name, path, customEnv, shell, preventDangerous, maxOutputLength, onDangerous, f.auditLog)

	f.mu.Lock()
	f.workspaces[cacheKey] = ws
	f.mu.Unlock()
	return ws, nil
}

func (f *Filesystem) execDefaults() (shell string, preventDangerous bool, maxOutputLength int, onDangerous func(string)) {
	if f.cfg.Kind == BackendRemote {
		return "sh", f.cfg.Remote.PreventDangerous, f.cfg.Remote.MaxOutputLength, nil
	}
	return string(f.cfg.Local.Shell), f.cfg.Local.PreventDangerous, f.cfg.Local.MaxOutputLength, f.cfg.Local.OnDangerousOperation
}

// ListWorkspaces enumerates the user's workspace names on disk (local)
// or on the remote host, independent of which have been materialized
// into a cached Workspace handle by this process.
func (f *Filesystem) ListWorkspaces(ctx context.Context) ([]string, error) {
	names, err := f.be.ListWorkspaceNames(ctx)
	if err != nil {
		return nil, newErr(ErrReadFailed, err.Error())
	}
	return names, nil
}

// Destroy tears down the backend: if this Filesystem was built via
// NewPooled, that means releasing one reference; otherwise the backend
// is destroyed immediately.
func (f *Filesystem) Destroy() error {
	if f.auditLog != nil {
		f.auditLog.Close()
	}
	if f.pool != nil {
		return f.pool.Release(f.poolKey)
	}
	return f.be.Destroy()
}

func fingerprint(env map[string]string) string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(env[k])
		sb.WriteByte(';')
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:8])
}

// remoteAuthMethod converts the public AuthConfig into an
// ssh.AuthMethod, keeping the golang.org/x/crypto/ssh dependency
// contained to this boundary and internal/backend.
func remoteAuthMethod(auth AuthConfig) (ssh.AuthMethod, error) {
	switch auth.Type {
	case AuthPassword:
		return ssh.Password(auth.Password), nil
	case AuthKey:
		var signer ssh.Signer
		var err error
		if auth.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(auth.PrivateKey, []byte(auth.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(auth.PrivateKey)
		}
		if err != nil {
			return nil, newErr(ErrInvalidConfiguration, fmt.Sprintf("parsing private key: %v", err))
		}
		return ssh.PublicKeys(signer), nil
	default:
		return nil, newErr(ErrInvalidConfiguration, fmt.Sprintf("unsupported auth type %q", auth.Type))
	}
}
