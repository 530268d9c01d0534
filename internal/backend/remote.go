package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/constellationfs/constellationfs/internal/cflog"
	"github.com/constellationfs/constellationfs/internal/localexec"
	"github.com/constellationfs/constellationfs/internal/policy"
)

// ErrNotConnected is returned by any remote operation attempted after
// the keepalive monitor has declared the session dead (spec §5:
// "subsequent operations fail fast until the backend is destroyed and
// recreated").
var ErrNotConnected = errors.New("remote backend is not connected")

const defaultRemoteRoot = "/tmp/constellation-fs/users"

// RemoteAuth carries the resolved SSH auth method.
type RemoteAuth struct {
	Method ssh.AuthMethod
}

// RemoteOptions configures a RemoteBackend beyond the bare host/port/auth
// triple.
type RemoteOptions struct {
	RemoteRoot          string // defaults to defaultRemoteRoot
	OperationTimeout    time.Duration
	KeepaliveInterval   time.Duration
	KeepaliveCountMax   int
	HostKeyCallback     ssh.HostKeyCallback // defaults to InsecureIgnoreHostKey
}

// RemoteBackend executes commands and file operations over a single SSH
// connection. The remote host is assumed trusted but not
// adversary-resistant, so Exec re-applies the C1 command check before a
// command reaches the wire; paths arrive already confined by the
// Workspace's lexical C2 check (spec §4.6 "Remote backend").
type RemoteBackend struct {
	userID     string
	host       string
	port       int
	remoteRoot string
	opTimeout  time.Duration

	client *ssh.Client

	mu               sync.Mutex
	connected        bool
	missedKeepalives int
	stopKeepalive    chan struct{}
}

// NewRemote dials host:port, authenticates with auth, and starts the
// keepalive monitor.
func NewRemote(userID, host string, port int, auth RemoteAuth, opts RemoteOptions) (*RemoteBackend, error) {
	if port == 0 {
		port = 22
	}
	hostKeyCallback := opts.HostKeyCallback
	if hostKeyCallback == nil {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}
	timeout := opts.OperationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	config := &ssh.ClientConfig{
		User:            userID,
		Auth:            []ssh.AuthMethod{auth.Method},
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	root := opts.RemoteRoot
	if root == "" {
		root = defaultRemoteRoot
	}

	b := &RemoteBackend{
		userID:        userID,
		host:          host,
		port:          port,
		remoteRoot:    root,
		opTimeout:     timeout,
		client:        client,
		connected:     true,
		stopKeepalive: make(chan struct{}),
	}

	if opts.KeepaliveInterval > 0 {
		go b.monitorKeepalive(opts.KeepaliveInterval, opts.KeepaliveCountMax)
	}

	cflog.BackendLifecycle(userID, "remote", "connect")
	return b, nil
}

func (b *RemoteBackend) monitorKeepalive(interval time.Duration, countMax int) {
	if countMax <= 0 {
		countMax = 3
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stopKeepalive:
			return
		case <-ticker.C:
			_, _, err := b.client.SendRequest("keepalive@constellationfs", true, nil)
			b.mu.Lock()
			if err != nil {
				b.missedKeepalives++
				if b.missedKeepalives >= countMax {
					b.connected = false
					b.mu.Unlock()
					cflog.BackendLifecycle(b.userID, "remote", "disconnected")
					return
				}
			} else {
				b.missedKeepalives = 0
			}
			b.mu.Unlock()
		}
	}
}

func (b *RemoteBackend) Kind() Kind     { return KindRemote }
func (b *RemoteBackend) UserID() string { return b.userID }

func (b *RemoteBackend) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *RemoteBackend) userRoot() string {
	return path.Join(b.remoteRoot, b.userID)
}

func (b *RemoteBackend) workspacePath(name string) string {
	return path.Join(b.userRoot(), name)
}

func (b *RemoteBackend) session() (*ssh.Session, error) {
	if !b.Connected() {
		return nil, ErrNotConnected
	}
	return b.client.NewSession()
}

// runShell executes a raw (already trusted) shell command over SSH and
// returns stdout, stderr, and any *ssh.ExitError / connection error.
func (b *RemoteBackend) runShell(ctx context.Context, command string) ([]byte, []byte, error) {
	sess, err := b.session()
	if err != nil {
		return nil, nil, err
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- sess.Run(command) }()

	select {
	case err := <-done:
		return stdout.Bytes(), stderr.Bytes(), err
	case <-ctx.Done():
		sess.Signal(ssh.SIGTERM)
		return stdout.Bytes(), stderr.Bytes(), ctx.Err()
	}
}

func (b *RemoteBackend) EnsureWorkspaceDir(ctx context.Context, name string) (string, error) {
	p := b.workspacePath(name)
	_, stderr, err := b.runShell(ctx, "mkdir -p "+shellQuote(p))
	if err != nil {
		return "", fmt.Errorf("mkdir %s: %w: %s", p, err, strings.TrimSpace(string(stderr)))
	}
	return p, nil
}

func (b *RemoteBackend) ListWorkspaceNames(ctx context.Context) ([]string, error) {
	root := b.userRoot()
	stdout, _, err := b.runShell(ctx, fmt.Sprintf("test -d %s && find %s -mindepth 1 -maxdepth 1 -type d -printf '%%f\\n'", shellQuote(root), shellQuote(root)))
	if err != nil {
		if _, ok := err.(*ssh.ExitError); ok {
			return nil, nil
		}
		return nil, err
	}
	names := splitNonEmptyLines(string(stdout))
	sort.Strings(names)
	return names, nil
}

func (b *RemoteBackend) Exec(ctx context.Context, workspacePath, command string, encoding localexec.Encoding, opts localexec.Options) (localexec.Result, error) {
	class := policy.Classify(command)
	switch class.Category {
	case policy.Empty:
		return localexec.Result{}, &localexec.DangerousError{Category: "empty", Reason: class.Reason, Command: command}
	case policy.Dangerous:
		if opts.PreventDangerous {
			if opts.OnDangerous != nil {
				opts.OnDangerous(command)
				b.logDangerous(opts, command, class.Reason)
				return localexec.Result{}, nil
			}
			b.logRejection(opts, "dangerous", command, class.Reason)
			return localexec.Result{}, &localexec.DangerousError{Category: "dangerous", Reason: class.Reason, Command: command}
		}
	case policy.Escaping:
		b.logRejection(opts, "escaping", command, class.Reason)
		return localexec.Result{}, &localexec.DangerousError{Category: "escaping", Reason: class.Reason, Command: command}
	}

	shell := opts.Shell
	if shell == "" {
		shell = "sh"
	}
	wrapped := fmt.Sprintf("cd %s && exec %s -c %s", shellQuote(workspacePath), shell, shellQuote(command))

	stdout, stderr, err := b.runShell(ctx, wrapped)
	if err != nil {
		if exitErr, ok := err.(*ssh.ExitError); ok {
			msg := strings.TrimSpace(string(stderr))
			if msg == "" {
				msg = strings.TrimSpace(string(stdout))
			}
			msg, _ = localexec.TruncateOutput(msg, opts.MaxOutputLength)
			return localexec.Result{}, b.logExecErr(opts, &localexec.ExecError{
				Kind:     "EXEC_FAILED",
				Message:  fmt.Sprintf("exit code %d: %s", exitErr.ExitStatus(), msg),
				Command:  command,
				ExitCode: exitErr.ExitStatus(),
			})
		}
		return localexec.Result{}, b.logExecErr(opts, &localexec.ExecError{Kind: "EXEC_ERROR", Message: err.Error(), Command: command})
	}

	if encoding == localexec.Bytes {
		return localexec.Result{Bytes: stdout}, nil
	}

	text := strings.TrimRight(string(stdout), " \t\r\n")
	text, truncated := localexec.TruncateOutput(text, opts.MaxOutputLength)
	return localexec.Result{Text: text, Truncated: truncated}, nil
}

func (b *RemoteBackend) ReadFile(ctx context.Context, absPath string) ([]byte, error) {
	stdout, stderr, err := b.runShell(ctx, "cat "+shellQuote(absPath))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w: %s", absPath, err, strings.TrimSpace(string(stderr)))
	}
	return stdout, nil
}

func (b *RemoteBackend) WriteFile(ctx context.Context, absPath string, data []byte) error {
	sess, err := b.session()
	if err != nil {
		return err
	}
	defer sess.Close()

	stdin, err := sess.StdinPipe()
	if err != nil {
		return err
	}
	var stderr bytes.Buffer
	sess.Stderr = &stderr

	cmd := fmt.Sprintf("mkdir -p %s && cat > %s", shellQuote(path.Dir(absPath)), shellQuote(absPath))
	if err := sess.Start(cmd); err != nil {
		return err
	}
	if _, err := stdin.Write(data); err != nil {
		return err
	}
	stdin.Close()
	if err := sess.Wait(); err != nil {
		return fmt.Errorf("write %s: %w: %s", absPath, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func (b *RemoteBackend) Mkdir(ctx context.Context, absPath string) error {
	_, stderr, err := b.runShell(ctx, "mkdir -p "+shellQuote(absPath))
	if err != nil {
		return fmt.Errorf("mkdir %s: %w: %s", absPath, err, strings.TrimSpace(string(stderr)))
	}
	return nil
}

func (b *RemoteBackend) Touch(ctx context.Context, absPath string) error {
	cmd := fmt.Sprintf("mkdir -p %s && touch %s", shellQuote(path.Dir(absPath)), shellQuote(absPath))
	_, stderr, err := b.runShell(ctx, cmd)
	if err != nil {
		return fmt.Errorf("touch %s: %w: %s", absPath, err, strings.TrimSpace(string(stderr)))
	}
	return nil
}

func (b *RemoteBackend) List(ctx context.Context, absPath string) ([]FileEntry, error) {
	// %f|%y|%s|%T@ : name|type(d,f,l,...)|size|mtime-epoch
	cmd := fmt.Sprintf("find %s -mindepth 1 -maxdepth 1 -printf '%%f|%%y|%%s|%%T@\\n'", shellQuote(absPath))
	stdout, stderr, err := b.runShell(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w: %s", absPath, err, strings.TrimSpace(string(stderr)))
	}
	var out []FileEntry
	for _, line := range splitNonEmptyLines(string(stdout)) {
		parts := strings.SplitN(line, "|", 4)
		if len(parts) != 4 {
			continue
		}
		size, _ := strconv.ParseInt(parts[2], 10, 64)
		epoch, _ := strconv.ParseFloat(parts[3], 64)
		out = append(out, FileEntry{
			Name:       parts[0],
			IsDir:      parts[1] == "d",
			IsSymlink:  parts[1] == "l",
			Size:       size,
			ModifiedAt: time.Unix(int64(epoch), 0),
		})
	}
	return out, nil
}

func (b *RemoteBackend) Exists(ctx context.Context, absPath string) (bool, error) {
	_, _, err := b.runShell(ctx, "test -e "+shellQuote(absPath))
	if err == nil {
		return true, nil
	}
	if _, ok := err.(*ssh.ExitError); ok {
		return false, nil
	}
	return false, err
}

func (b *RemoteBackend) Delete(ctx context.Context, absPath string) error {
	_, stderr, err := b.runShell(ctx, "rm -rf "+shellQuote(absPath))
	if err != nil {
		return fmt.Errorf("delete %s: %w: %s", absPath, err, strings.TrimSpace(string(stderr)))
	}
	return nil
}

func (b *RemoteBackend) Destroy() error {
	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return nil
	}
	b.connected = false
	b.mu.Unlock()

	close(b.stopKeepalive)
	err := b.client.Close()
	cflog.BackendLifecycle(b.userID, "remote", "destroy")
	return err
}

// logRejection logs and audits a C1 classification rejection on the
// remote backend's behalf (spec §A.1).
func (b *RemoteBackend) logRejection(opts localexec.Options, kind, command, reason string) {
	cflog.Rejection(b.userID, kind, command, reason)
	if opts.Audit != nil {
		if err := opts.Audit.RecordRejection(b.userID, kind, command, reason); err != nil {
			cflog.Error("audit record rejection failed", "err", err)
		}
	}
}

// logDangerous logs and audits a dangerous command absorbed by
// OnDangerous instead of raising.
func (b *RemoteBackend) logDangerous(opts localexec.Options, command, reason string) {
	cflog.Dangerous(b.userID, command, reason)
	if opts.Audit != nil {
		if err := opts.Audit.RecordDangerousInvocation(b.userID, command, reason); err != nil {
			cflog.Error("audit record dangerous invocation failed", "err", err)
		}
	}
}

// logExecErr logs an executor failure at Error level and returns err
// unchanged, so call sites can wrap it inline in a return statement.
func (b *RemoteBackend) logExecErr(opts localexec.Options, err *localexec.ExecError) *localexec.ExecError {
	cflog.Error("command execution failed", "userId", b.userID, "kind", err.Kind, "command", err.Command, "message", err.Message)
	return err
}

// shellQuote wraps s in single quotes, escaping any embedded single
// quote, so it reaches the remote shell as one literal argument.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
