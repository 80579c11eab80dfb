package app

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/defiterm/defiterm/internal/config"
	termerr "github.com/defiterm/defiterm/internal/errors"
	"github.com/defiterm/defiterm/internal/history"
	"github.com/defiterm/defiterm/internal/model"
	"github.com/defiterm/defiterm/internal/out"
	"github.com/defiterm/defiterm/internal/plugin"
	"github.com/defiterm/defiterm/internal/registry"
	"github.com/defiterm/defiterm/internal/session"
	"github.com/defiterm/defiterm/internal/version"
	"github.com/defiterm/defiterm/internal/wallet"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader
	now    func() time.Time
}

func NewRunner() *Runner {
	return NewRunnerWithStreams(os.Stdin, os.Stdout, os.Stderr)
}

func NewRunnerWithStreams(stdin io.Reader, stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		stdin:  stdin,
		now:    time.Now,
	}
}

type runtimeState struct {
	runner      *Runner
	flags       config.GlobalFlags
	settings    config.Settings
	logger      *zap.Logger
	registry    *registry.Registry
	loader      *plugin.Loader
	session     *session.Context
	store       *history.Store
	root        *cobra.Command
	lastCommand string
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	err = normalizeRunError(err)
	if state.store != nil {
		_ = state.store.Close()
	}
	if err == nil {
		return 0
	}
	state.renderError("", err)
	return termerr.ExitCode(err)
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "DeFi terminal command resolution and composition engine",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return termerr.Wrap(termerr.CodeInvalidConfig, "load configuration", err)
			}
			s.settings = settings
			s.logger = newLogger(s.flags.Verbose)
			s.lastCommand = trimRootPath(cmd.CommandPath())

			if s.registry == nil {
				if err := s.bootstrap(cmd.Context()); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return termerr.Wrap(termerr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().Float64Var(&s.flags.Threshold, "threshold", 0, "Fuzzy match similarity threshold (0..1)")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Protocol request timeout")
	cmd.PersistentFlags().IntVar(&s.flags.Retries, "retries", -1, "Retries per protocol request")
	cmd.PersistentFlags().BoolVar(&s.flags.NoHistory, "no-history", false, "Disable persisted command history")
	cmd.PersistentFlags().StringVar(&s.flags.Protocol, "protocol", "", "Session's active protocol")
	cmd.PersistentFlags().BoolVar(&s.flags.Verbose, "verbose", false, "Log engine internals to stderr")
	cmd.PersistentFlags().StringVar(&s.flags.AllowCommands, "allow-commands", "", "Allowlist command ids (comma-separated)")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")

	cmd.AddCommand(s.newResolveCommand())
	cmd.AddCommand(s.newSuggestCommand())
	cmd.AddCommand(s.newExecCommand())
	cmd.AddCommand(s.newReplCommand())
	cmd.AddCommand(s.newPluginsCommand())
	cmd.AddCommand(s.newHistoryCommand())
	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func newLogger(verbose bool) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// newSession builds the initial session context from configuration. The wallet
// starts disconnected; `repl` attaches one on demand.
func (s *runtimeState) newSession() *session.Context {
	prefs := session.Preferences{
		Defaults: s.settings.Defaults,
		Priority: s.settings.Priority,
	}
	sess := session.New(wallet.Disconnected(), prefs)
	if s.settings.ActiveProtocol != "" {
		sess = sess.WithActiveProtocol(s.settings.ActiveProtocol)
	}
	return sess
}

func (s *runtimeState) resolutionContext(input, explicit string) registry.ResolutionContext {
	return registry.ResolutionContext{
		Input:            input,
		ExplicitProtocol: explicit,
		Preferences:      s.session.Preferences(),
		Session:          s.session,
	}
}

// parseToken splits the protocol:command form used for explicit protocol
// constraints, e.g. "1inch:swap".
func parseToken(raw string) (input, explicit string) {
	raw = strings.TrimSpace(raw)
	if i := strings.Index(raw, ":"); i > 0 {
		return raw[i+1:], strings.ToLower(raw[:i])
	}
	return raw, ""
}

func (s *runtimeState) emitSuccess(commandPath string, data any, resolution *model.MetaResolution) error {
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: true,
		Data:    data,
		Error:   nil,
		Meta: model.EnvelopeMeta{
			RequestID:  newRequestID(),
			Timestamp:  s.runner.now().UTC(),
			Command:    commandPath,
			Resolution: resolution,
		},
	}
	return out.Render(s.runner.stdout, env, s.settings.OutputMode)
}

func (s *runtimeState) renderError(commandPath string, err error) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := termerr.ExitCode(err)
	typ := "internal_error"
	message := err.Error()
	if tErr, ok := termerr.As(err); ok {
		message = tErr.Message
		if tErr.Cause != nil {
			message = fmt.Sprintf("%s: %v", tErr.Message, tErr.Cause)
		}
		typ = errorType(tErr.Code)
	}

	mode := s.settings.OutputMode
	if mode == "" {
		mode = "json"
	}
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:    code,
			Type:    typ,
			Message: message,
		},
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
		},
	}
	_ = out.Render(s.runner.stderr, env, mode)
}

func errorType(code termerr.Code) string {
	switch code {
	case termerr.CodeUsage:
		return "usage_error"
	case termerr.CodeNotFound:
		return "command_not_found"
	case termerr.CodeAmbiguous:
		return "ambiguous_command"
	case termerr.CodeDisabled:
		return "plugin_disabled"
	case termerr.CodeInvalidConfig:
		return "invalid_config"
	case termerr.CodeFiberMismatch:
		return "fiber_identity_mismatch"
	case termerr.CodeClosureViolation:
		return "closure_violation"
	case termerr.CodeActionFailure:
		return "action_failure"
	case termerr.CodeAuth:
		return "auth_error"
	case termerr.CodeRateLimited:
		return "rate_limited"
	case termerr.CodeUnavailable:
		return "protocol_unavailable"
	case termerr.CodeUnsupported:
		return "unsupported"
	case termerr.CodeBlocked:
		return "command_blocked"
	default:
		return "internal_error"
	}
}

func newRequestID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := termerr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return termerr.Wrap(termerr.CodeUsage, "invalid command input", err)
	}
	return termerr.Wrap(termerr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
