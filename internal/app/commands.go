package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/defiterm/defiterm/internal/autocomplete"
	"github.com/defiterm/defiterm/internal/command"
	termerr "github.com/defiterm/defiterm/internal/errors"
	"github.com/defiterm/defiterm/internal/model"
	"github.com/defiterm/defiterm/internal/out"
	"github.com/defiterm/defiterm/internal/plugin"
	"github.com/defiterm/defiterm/internal/policy"
	"github.com/defiterm/defiterm/internal/registry"
	"github.com/defiterm/defiterm/internal/schema"
)

func (s *runtimeState) newResolveCommand() *cobra.Command {
	var protocolArg string
	cmd := &cobra.Command{
		Use:   "resolve <token>",
		Short: "Resolve an input token to a command without executing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, explicit := parseToken(args[0])
			if protocolArg != "" {
				explicit = strings.ToLower(strings.TrimSpace(protocolArg))
			}
			resolved, err := s.resolveExact(input, explicit)
			if err != nil {
				return err
			}
			meta := resolutionMeta(resolved)
			data := map[string]any{
				"command_id":  resolved.Command.ID,
				"scope":       resolved.Command.Scope.String(),
				"protocol":    resolved.Protocol,
				"method":      string(resolved.Method),
				"confidence":  resolved.Confidence,
				"aliases":     resolved.Command.Aliases,
				"description": resolved.Command.Description,
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, meta)
		},
	}
	cmd.Flags().StringVar(&protocolArg, "for", "", "Explicit protocol constraint")
	return cmd
}

func (s *runtimeState) newSuggestCommand() *cobra.Command {
	var protocolArg string
	var limit int
	cmd := &cobra.Command{
		Use:   "suggest <prefix>",
		Short: "Rank fuzzy suggestions for a partial input token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, explicit := parseToken(args[0])
			if protocolArg != "" {
				explicit = strings.ToLower(strings.TrimSpace(protocolArg))
			}

			// A zero-interval debouncer makes the engine synchronous, which is
			// what a one-shot CLI invocation wants.
			engine := autocomplete.NewEngine(s.registry, autocomplete.Options{
				Threshold: s.settings.FuzzyThreshold,
				MinChars:  s.settings.MinInputChars,
				Limit:     limit,
			}, autocomplete.NewDebouncer(0))
			engine.SetInput(input, s.resolutionContext(input, explicit))
			snapshot := engine.Snapshot()

			data := map[string]any{
				"input":       snapshot.Input,
				"suggestions": snapshot.Suggestions,
				"visible":     snapshot.Visible,
			}
			if snapshot.AutoFilled != "" {
				data["auto_filled"] = snapshot.AutoFilled
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil)
		},
	}
	cmd.Flags().StringVar(&protocolArg, "for", "", "Explicit protocol constraint")
	cmd.Flags().IntVar(&limit, "limit", 8, "Maximum suggestions to return")
	return cmd
}

func (s *runtimeState) newExecCommand() *cobra.Command {
	var protocolArg string
	cmd := &cobra.Command{
		Use:   "exec <token> [args...]",
		Short: "Resolve and execute a command",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, explicit := parseToken(args[0])
			if protocolArg != "" {
				explicit = strings.ToLower(strings.TrimSpace(protocolArg))
			}
			result, meta, err := s.executeToken(cmd.Context(), input, explicit, args[1:])
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), out.ResultData(result), meta)
		},
	}
	cmd.Flags().StringVar(&protocolArg, "for", "", "Explicit protocol constraint")
	return cmd
}

// resolveExact runs the exact resolver and, on a miss, decorates the error
// with fuzzy suggestions so a typo is one edit away from its fix.
func (s *runtimeState) resolveExact(input, explicit string) (registry.ResolvedCommand, error) {
	rc := s.resolutionContext(input, explicit)
	resolved, err := s.registry.ResolveExact(rc)
	if err == nil {
		return resolved, nil
	}
	if !termerr.Is(err, termerr.CodeNotFound) {
		return registry.ResolvedCommand{}, err
	}
	matches := s.registry.ResolveFuzzy(rc, s.settings.FuzzyThreshold)
	if len(matches) == 0 {
		return registry.ResolvedCommand{}, err
	}
	names := make([]string, 0, len(matches))
	for i, m := range matches {
		if i == 3 {
			break
		}
		names = append(names, m.Command.ID)
	}
	return registry.ResolvedCommand{}, termerr.New(termerr.CodeNotFound,
		fmt.Sprintf("unknown command %q (did you mean: %s)", input, strings.Join(names, ", ")))
}

// executeToken resolves a token (or a `first>second` composition chain) and
// runs it against the session, persisting the resulting history entry.
func (s *runtimeState) executeToken(ctx context.Context, input, explicit string, args []string) (command.Result, *model.MetaResolution, error) {
	var (
		cmd      command.Command
		protocol string
		meta     *model.MetaResolution
	)

	if strings.Contains(input, ">") {
		composed, fiberID, err := s.composeChain(input, explicit)
		if err != nil {
			return command.Result{}, nil, err
		}
		cmd, protocol = composed, fiberID
		meta = &model.MetaResolution{CommandID: cmd.ID, Protocol: protocol, Method: "composed", Confidence: 1}
	} else {
		resolved, err := s.resolveExact(input, explicit)
		if err != nil {
			return command.Result{}, nil, err
		}
		cmd, protocol = resolved.Command, resolved.Protocol
		meta = resolutionMeta(resolved)
	}

	if err := policy.CheckCommandAllowed(s.settings.AllowCommands, protocol, cmd.ID); err != nil {
		return command.Result{}, nil, err
	}

	next, result, err := s.session.Execute(ctx, cmd, protocol, args)
	s.session = next
	s.persistLastEntry()
	if err != nil {
		return command.Result{}, nil, err
	}
	s.logger.Debug("command executed",
		zap.String("command", cmd.ID),
		zap.String("protocol", protocol),
		zap.String("kind", string(result.Kind)))
	return result, meta, nil
}

// composeChain builds a pipeline command from `first>second[>...]` inside a
// single fiber. The fiber comes from the explicit constraint or the session's
// focused protocol.
func (s *runtimeState) composeChain(input, explicit string) (command.Command, string, error) {
	fiberID := explicit
	if fiberID == "" {
		fiberID = s.session.ActiveProtocol()
	}
	if fiberID == "" {
		return command.Command{}, "", termerr.New(termerr.CodeUsage,
			"composition chains need a protocol: use protocol:first>second or focus a protocol")
	}
	f, ok := s.registry.Fiber(fiberID)
	if !ok {
		return command.Command{}, "", termerr.New(termerr.CodeNotFound, "protocol "+fiberID+" is not loaded")
	}

	tokens := strings.Split(input, ">")
	if len(tokens) < 2 {
		return command.Command{}, "", termerr.New(termerr.CodeUsage, "composition chains need at least two commands")
	}
	stages := make([]command.Command, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		stage, ok := f.Lookup(tok)
		if !ok {
			return command.Command{}, "", termerr.New(termerr.CodeNotFound,
				fmt.Sprintf("command %q not found in protocol %s", tok, fiberID))
		}
		stages = append(stages, stage)
	}

	composed := stages[0]
	for _, stage := range stages[1:] {
		next, err := f.Compose(composed, stage)
		if err != nil {
			return command.Command{}, "", err
		}
		composed = next
	}
	return composed, fiberID, nil
}

// persistLastEntry writes the newest in-session history entry to the store.
func (s *runtimeState) persistLastEntry() {
	if s.store == nil {
		return
	}
	entries := s.session.History()
	if len(entries) == 0 {
		return
	}
	if err := s.store.Append(entries[len(entries)-1]); err != nil {
		s.logger.Warn("persist history entry", zap.Error(err))
	}
}

func resolutionMeta(resolved registry.ResolvedCommand) *model.MetaResolution {
	return &model.MetaResolution{
		CommandID:  resolved.Command.ID,
		Protocol:   resolved.Protocol,
		Method:     string(resolved.Method),
		Confidence: resolved.Confidence,
	}
}

func (s *runtimeState) newPluginsCommand() *cobra.Command {
	root := &cobra.Command{Use: "plugins", Short: "Plugin lifecycle commands"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List plugin load states",
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([]model.PluginStatus, 0)
			for _, entry := range s.loader.Entries() {
				row := model.PluginStatus{
					ID:    entry.Plugin.ID(),
					Name:  entry.Plugin.Name(),
					State: string(entry.State),
				}
				if entry.Fiber != nil {
					row.Commands = entry.Fiber.Len()
				}
				if entry.Err != nil {
					row.Error = entry.Err.Error()
				}
				rows = append(rows, row)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), rows, nil)
		},
	}

	health := &cobra.Command{
		Use:   "health",
		Short: "Probe loaded plugins",
		RunE: func(cmd *cobra.Command, args []string) error {
			results := s.loader.HealthCheckAll(cmd.Context())
			rows := make([]model.PluginStatus, 0, len(results))
			for _, entry := range s.loader.Entries() {
				healthy, probed := results[entry.Plugin.ID()]
				if !probed {
					continue
				}
				h := healthy
				rows = append(rows, model.PluginStatus{
					ID:      entry.Plugin.ID(),
					Name:    entry.Plugin.Name(),
					State:   string(entry.State),
					Healthy: &h,
				})
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), rows, nil)
		},
	}

	reload := &cobra.Command{
		Use:   "reload <plugin-id>",
		Short: "Unload and reload a plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.loader.Reload(cmd.Context(), args[0]); err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()),
				map[string]any{"plugin": args[0], "state": string(plugin.StateLoaded)}, nil)
		},
	}

	root.AddCommand(list)
	root.AddCommand(health)
	root.AddCommand(reload)
	return root
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	var includeCLI bool
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print machine-readable command schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			root := s.root
			if !includeCLI {
				root = nil
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), schema.Build(s.registry, root), nil)
		},
	}
	cmd.Flags().BoolVar(&includeCLI, "cli", false, "Include the CLI subcommand tree")
	return cmd
}

func (s *runtimeState) newHistoryCommand() *cobra.Command {
	root := &cobra.Command{Use: "history", Short: "Persisted command history"}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent commands, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if s.store == nil {
				return termerr.New(termerr.CodeDisabled, "history is disabled")
			}
			entries, err := s.store.Recent(limit)
			if err != nil {
				return termerr.Wrap(termerr.CodeInternal, "read history", err)
			}
			rows := make([]model.HistoryRow, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, model.HistoryRow{
					CommandID:  entry.CommandID,
					Protocol:   entry.Protocol,
					Args:       entry.Args,
					ResultKind: string(entry.Result.Kind),
					Success:    entry.Success,
					Error:      entry.Error,
					ExecutedAt: entry.Timestamp,
				})
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), rows, nil)
		},
	}
	list.Flags().IntVar(&limit, "limit", 50, "Maximum entries to return")

	clear := &cobra.Command{
		Use:   "clear",
		Short: "Delete all persisted history",
		RunE: func(cmd *cobra.Command, args []string) error {
			if s.store == nil {
				return termerr.New(termerr.CodeDisabled, "history is disabled")
			}
			if err := s.store.Clear(); err != nil {
				return termerr.Wrap(termerr.CodeInternal, "clear history", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), map[string]any{"cleared": true}, nil)
		},
	}

	root.AddCommand(list)
	root.AddCommand(clear)
	return root
}
