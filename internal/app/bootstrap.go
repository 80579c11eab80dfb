package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/defiterm/defiterm/internal/command"
	termerr "github.com/defiterm/defiterm/internal/errors"
	"github.com/defiterm/defiterm/internal/history"
	"github.com/defiterm/defiterm/internal/httpx"
	"github.com/defiterm/defiterm/internal/plugin"
	"github.com/defiterm/defiterm/internal/plugins/lifi"
	"github.com/defiterm/defiterm/internal/plugins/oneinch"
	"github.com/defiterm/defiterm/internal/plugins/uniswap"
	"github.com/defiterm/defiterm/internal/registry"
	"github.com/defiterm/defiterm/internal/session"
	"github.com/defiterm/defiterm/internal/token"
)

// bootstrap wires the engine: registry with core and aliased-global commands,
// bundled plugins loaded through the lifecycle loader, the session context and
// the persisted history store. A plugin that fails to load is recorded and
// skipped; the terminal stays usable.
func (s *runtimeState) bootstrap(ctx context.Context) error {
	s.registry = registry.New(s.logger)
	if err := s.registerBuiltins(); err != nil {
		return err
	}

	s.loader = plugin.NewLoader(s.registry, s.logger)
	httpClient := httpx.New(s.settings.Timeout, s.settings.Retries)
	tokens := token.NewService()
	bundled := []plugin.Plugin{
		oneinch.New(httpClient, tokens, s.settings.OneInchAPIKey),
		uniswap.New(httpClient, tokens, s.settings.UniswapAPIKey),
		lifi.New(httpClient, tokens, s.settings.LifiAPIKey),
	}
	for _, p := range bundled {
		if err := s.loader.Load(ctx, p, s.pluginConfig(p.ID())); err != nil {
			// recorded against the plugin id by the loader; nothing else to do
			continue
		}
	}

	s.session = s.newSession()

	if s.settings.HistoryEnabled {
		store, err := history.Open(s.settings.HistoryPath, s.settings.HistoryLockPath)
		if err != nil {
			return termerr.Wrap(termerr.CodeInternal, "open history store", err)
		}
		s.store = store
		if err := store.Trim(s.settings.HistoryMax); err != nil {
			s.logger.Warn("trim history", zap.Error(err))
		}
		if err := s.replayHistory(); err != nil {
			return err
		}
	}
	return nil
}

// replayHistory seeds the session's in-memory log from the durable store, so
// a new session sees what earlier ones executed.
func (s *runtimeState) replayHistory() error {
	persisted, err := s.store.Recent(s.settings.HistoryMax)
	if err != nil {
		return termerr.Wrap(termerr.CodeInternal, "replay history", err)
	}
	if len(persisted) == 0 {
		return nil
	}
	// Recent reads newest first; the in-memory log is chronological.
	for i, j := 0, len(persisted)-1; i < j; i, j = i+1, j-1 {
		persisted[i], persisted[j] = persisted[j], persisted[i]
	}
	s.session = s.session.WithHistory(persisted)
	return nil
}

func (s *runtimeState) pluginConfig(id string) *plugin.Config {
	block, ok := s.settings.Plugins[id]
	if !ok {
		return nil
	}
	cfg := plugin.Config{Enabled: true, Options: block.Options}
	if block.Enabled != nil {
		cfg.Enabled = *block.Enabled
	}
	return &cfg
}

func (s *runtimeState) registerBuiltins() error {
	core := []command.Command{
		{
			ID:          "help",
			Scope:       command.ScopeCoreGlobal,
			Aliases:     []string{"h", "?"},
			Description: "list every resolvable command",
			Action:      s.helpAction,
		},
		{
			ID:          "clear",
			Scope:       command.ScopeCoreGlobal,
			Aliases:     []string{"cls"},
			Description: "clear the terminal output",
			Action: func(ctx context.Context, sess command.Session, args []string) (command.Result, error) {
				return command.Cleared(), nil
			},
		},
		{
			ID:          "wallet",
			Scope:       command.ScopeCoreGlobal,
			Aliases:     []string{"w"},
			Description: "show wallet connection status",
			Action: func(ctx context.Context, sess command.Session, args []string) (command.Result, error) {
				snap := sess.Wallet()
				if !snap.Connected {
					return command.Message("wallet: disconnected"), nil
				}
				return command.Message(fmt.Sprintf("wallet: %s (chain %d)", snap.Address.Hex(), snap.ChainID)), nil
			},
		},
	}
	for _, cmd := range core {
		if err := s.registry.RegisterCore(cmd); err != nil {
			return err
		}
	}

	// cprice is the aliased-global example: resolvable everywhere, but its
	// execution delegates to whichever protocol the preference binding picked.
	err := s.registry.RegisterAliased(command.Command{
		ID:          "cprice",
		Scope:       command.ScopeAliasedGlobal,
		Aliases:     []string{"cp"},
		Description: "token price via the preference-bound protocol: cprice <chain> <token>",
		Action:      s.delegateAction("price"),
	})
	if err != nil {
		return err
	}

	s.logger.Debug("builtins registered",
		zap.Int("core", len(core)),
		zap.Int("aliased", 1))
	return nil
}

// delegateAction forwards an aliased-global execution to the bound protocol's
// command of the same concern.
func (s *runtimeState) delegateAction(targetID string) command.Action {
	return func(ctx context.Context, sess command.Session, args []string) (command.Result, error) {
		protocol := ""
		if v, ok := sess.Global(session.BoundProtocolKey); ok {
			protocol, _ = v.(string)
		}
		if protocol == "" {
			return command.Result{}, termerr.New(termerr.CodeNotFound,
				"no protocol bound for "+targetID+"; set a default or focus a protocol")
		}
		f, ok := s.registry.Fiber(protocol)
		if !ok {
			return command.Result{}, termerr.New(termerr.CodeNotFound, "protocol "+protocol+" is not loaded")
		}
		target, ok := f.Get(targetID)
		if !ok {
			return command.Result{}, termerr.New(termerr.CodeUnsupported,
				fmt.Sprintf("protocol %s does not offer %s", protocol, targetID))
		}
		return target.Action(ctx, sess, args)
	}
}

func (s *runtimeState) helpAction(ctx context.Context, sess command.Session, args []string) (command.Result, error) {
	rows := [][]string{}
	appendRow := func(cmd command.Command, protocol string) {
		rows = append(rows, []string{
			cmd.ID,
			cmd.Scope.String(),
			protocol,
			strings.Join(cmd.Aliases, ","),
			cmd.Description,
		})
	}
	for _, cmd := range s.registry.CoreCommands() {
		appendRow(cmd, "")
	}
	for _, cmd := range s.registry.AliasedCommands() {
		appendRow(cmd, "")
	}
	for _, f := range s.registry.Fibers() {
		for _, cmd := range f.Commands() {
			appendRow(cmd, f.ID())
		}
	}
	return command.Table([]string{"command", "scope", "protocol", "aliases", "description"}, rows), nil
}
