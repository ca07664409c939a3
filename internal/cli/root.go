// Package cli is the attendctl command line: sign in, check in and out,
// and read attendance history against a running API server.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/client"
)

// RootOptions holds global flags and the state built from them.
type RootOptions struct {
	ConfigPath  string
	Server      string
	Timeout     time.Duration
	SessionFile string
	Format      string
	Verbose     bool

	Config   Config
	Logger   *zap.SugaredLogger
	Sessions *client.SessionManager

	stdin *bufio.Reader
}

var ValidFormats = []string{"text", "json"}

// annotationConfigOptional marks commands that run before a config file exists.
const annotationConfigOptional = "config-optional"

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "attendctl",
		Short:         "Employee attendance from the terminal",
		Long:          "attendctl signs in to the attendance API and records check-ins and check-outs.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.ConfigPath, "config", DefaultConfigPath(), "path to attendctl.yaml")
	pf.StringVar(&opts.Server, "server", "", "API base URL (overrides config)")
	pf.DurationVar(&opts.Timeout, "timeout", 0, "request timeout (overrides config)")
	pf.StringVar(&opts.SessionFile, "session-file", "", "where the signed-in session is kept (overrides config)")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewRegisterCommand(opts))
	cmd.AddCommand(NewLoginCommand(opts))
	cmd.AddCommand(NewLogoutCommand(opts))
	cmd.AddCommand(NewWhoamiCommand(opts))
	cmd.AddCommand(NewRefreshCommand(opts))
	cmd.AddCommand(NewPasswordCommand(opts))
	cmd.AddCommand(NewCheckInCommand(opts))
	cmd.AddCommand(NewCheckOutCommand(opts))
	cmd.AddCommand(NewTodayCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}

func (o *RootOptions) setup(cmd *cobra.Command) error {
	if !isValidFormat(o.Format) {
		return WrapExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats), nil)
	}
	required := cmd.Flags().Changed("config") && cmd.Annotations[annotationConfigOptional] == ""
	cfg, err := LoadConfig(o.ConfigPath, required)
	if err != nil {
		return WrapExitError(ExitCommandError, "config", err)
	}
	if o.Server != "" {
		cfg.Server = o.Server
	}
	if o.Timeout > 0 {
		cfg.Timeout = Duration(o.Timeout)
	}
	if o.SessionFile != "" {
		cfg.SessionFile = o.SessionFile
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "config", err)
	}
	o.Config = cfg
	o.Logger = newLogger(cmd.ErrOrStderr(), o.Verbose)
	api := client.NewAPI(cfg.Server, time.Duration(cfg.Timeout))
	o.Sessions = client.NewSessionManager(api, client.FileStore{Path: cfg.SessionFile}, o.Logger)
	return nil
}

// newLogger writes human readable diagnostics to stderr, warnings only
// unless verbose.
func newLogger(w io.Writer, verbose bool) *zap.SugaredLogger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), level)
	return zap.New(core).Sugar()
}

func (o *RootOptions) printer(cmd *cobra.Command) Printer {
	return Printer{Format: o.Format, W: cmd.OutOrStdout()}
}

// signedIn restores the stored session or fails with a hint to log in.
func (o *RootOptions) signedIn(ctx context.Context) (*client.Session, error) {
	s, err := o.Sessions.Bootstrap(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, WrapExitError(ExitFailure, "not signed in; run attendctl login", client.ErrNotSignedIn)
	}
	return s, nil
}

// readSecret takes the flag value or the next line of stdin.
func (o *RootOptions) readSecret(cmd *cobra.Command, flagValue, prompt string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if o.stdin == nil {
		o.stdin = bufio.NewReader(cmd.InOrStdin())
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s: ", prompt)
	line, err := o.stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", WrapExitError(ExitCommandError, "read "+strings.ToLower(prompt), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
