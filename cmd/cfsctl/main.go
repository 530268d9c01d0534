package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	constellationfs "github.com/constellationfs/constellationfs"
	"github.com/constellationfs/constellationfs/internal/cflog"
)

func rootCtx() context.Context { return context.Background() }

var (
	userFlag      string
	shellFlag     string
	workspaceFlag string
	remoteHost    string
	remotePort    int
	remoteUser    string
	auditDB       string
	logLevel      string
	logFile       string
)

func main() {
	root := &cobra.Command{
		Use:   "cfsctl",
		Short: "cfsctl — exercise a ConstellationFS backend from the command line",
		Long:  "Drives the local or remote backend directly: exec, read, write, list, and health checks over a confined workspace.",
	}

	root.PersistentFlags().StringVar(&userFlag, "user", "cfsctl", "user id for the backend")
	root.PersistentFlags().StringVar(&shellFlag, "shell", "auto", "shell to execute commands with (auto, sh, bash)")
	root.PersistentFlags().StringVar(&workspaceFlag, "workspace", "default", "workspace name")
	root.PersistentFlags().StringVar(&remoteHost, "remote-host", "", "if set, use the remote (SSH) backend against this host")
	root.PersistentFlags().IntVar(&remotePort, "remote-port", 22, "remote backend SSH port")
	root.PersistentFlags().StringVar(&remoteUser, "remote-user", "", "remote backend SSH auth user (defaults to --user)")
	root.PersistentFlags().StringVar(&auditDB, "audit-db", "", "sqlite DSN to record rejections/dangerous-command invocations to (disabled if empty)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&logFile, "log-file", "", "also append logs to this file")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return cflog.Init(logLevel, logFile)
	}

	root.AddCommand(
		execCmd(),
		readCmd(),
		writeCmd(),
		lsCmd(),
		doctorCmd(),
		poolCmd(),
		fleetCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// backendConfigFromFlags builds a BackendConfig from the persistent
// flags: local by default, or remote (password auth via
// CFSCTL_SSH_PASSWORD in the environment, or a terminal prompt) when
// --remote-host is set.
func backendConfigFromFlags() (constellationfs.BackendConfig, error) {
	if remoteHost == "" {
		return constellationfs.BackendConfig{
			Kind: constellationfs.BackendLocal,
			Local: &constellationfs.LocalConfig{
				UserID:   userFlag,
				Shell:    constellationfs.Shell(shellFlag),
				AuditDSN: auditDB,
			},
		}, nil
	}

	sshUser := remoteUser
	if sshUser == "" {
		sshUser = userFlag
	}
	password, err := remotePassword()
	if err != nil {
		return constellationfs.BackendConfig{}, err
	}
	return constellationfs.BackendConfig{
		Kind: constellationfs.BackendRemote,
		Remote: &constellationfs.RemoteConfig{
			UserID:   sshUser,
			Host:     remoteHost,
			Port:     remotePort,
			Auth:     constellationfs.AuthConfig{Type: constellationfs.AuthPassword, Password: password},
			AuditDSN: auditDB,
		},
	}, nil
}

// remotePassword reads CFSCTL_SSH_PASSWORD if set, otherwise prompts
// on the controlling terminal without echoing input.
func remotePassword() (string, error) {
	if p := os.Getenv("CFSCTL_SSH_PASSWORD"); p != "" {
		return p, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("set CFSCTL_SSH_PASSWORD to authenticate against --remote-host")
	}
	fmt.Fprint(os.Stderr, "SSH password: ")
	data, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(data), nil
}

func workspaceFromFlags() (*constellationfs.Filesystem, *constellationfs.Workspace, error) {
	cfg, err := backendConfigFromFlags()
	if err != nil {
		return nil, nil, err
	}
	fs, err := constellationfs.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	ws, err := fs.GetWorkspace(rootCtx(), workspaceFlag, nil)
	if err != nil {
		fs.Destroy()
		return nil, nil, err
	}
	return fs, ws, nil
}
