// Package registry owns the three command partitions (core, aliased, fibers)
// and the two resolution operators that turn raw input text into an
// executable command: exact resolution with a total precedence order, and
// fuzzy resolution producing a ranked candidate list. The same matching
// machinery feeds the autocomplete engine.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/defiterm/defiterm/internal/command"
	termerr "github.com/defiterm/defiterm/internal/errors"
	"github.com/defiterm/defiterm/internal/fiber"
)

// Registry is a single-writer value; resolution reads and lifecycle writes go
// through per-partition locks so plugin loads for distinct protocols do not
// contend with core lookups. Same-id plugin lifecycle calls must be serialized
// by the caller.
type Registry struct {
	coreMu    sync.RWMutex
	core      map[string]command.Command // canonical, keyed by id
	coreIndex map[string]string          // id and alias -> id

	aliasedMu    sync.RWMutex
	aliased      map[string]command.Command
	aliasedIndex map[string]string

	fibersMu sync.RWMutex
	fibers   map[string]*fiber.Fiber

	logger *zap.Logger
}

func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		core:         map[string]command.Command{},
		coreIndex:    map[string]string{},
		aliased:      map[string]command.Command{},
		aliasedIndex: map[string]string{},
		fibers:       map[string]*fiber.Fiber{},
		logger:       logger,
	}
}

// RegisterCore adds an always-available command. Token collisions inside the
// partition are registration errors, never silently resolved.
func (r *Registry) RegisterCore(cmd command.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	if cmd.Scope != command.ScopeCoreGlobal {
		return termerr.New(termerr.CodeInvalidConfig, "command "+cmd.ID+" is not core-global")
	}
	r.coreMu.Lock()
	defer r.coreMu.Unlock()
	return registerIndexed(r.core, r.coreIndex, cmd, "core")
}

// RegisterAliased adds a protocol-agnostic command bound to a concrete
// protocol only at resolution time through preferences.
func (r *Registry) RegisterAliased(cmd command.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	if cmd.Scope != command.ScopeAliasedGlobal {
		return termerr.New(termerr.CodeInvalidConfig, "command "+cmd.ID+" is not aliased-global")
	}
	r.aliasedMu.Lock()
	defer r.aliasedMu.Unlock()
	return registerIndexed(r.aliased, r.aliasedIndex, cmd, "aliased")
}

func registerIndexed(canonical map[string]command.Command, index map[string]string, cmd command.Command, partition string) error {
	for _, token := range cmd.Tokens() {
		if owner, exists := index[token]; exists {
			return termerr.New(termerr.CodeInvalidConfig,
				fmt.Sprintf("%s partition already maps %q to command %s", partition, token, owner))
		}
	}
	canonical[cmd.ID] = cmd
	for _, token := range cmd.Tokens() {
		index[token] = cmd.ID
	}
	return nil
}

// RegisterFiber adds a protocol fiber; later resolution calls see it
// immediately. Protocol ids must be globally unique among loaded fibers.
func (r *Registry) RegisterFiber(f *fiber.Fiber) error {
	if f == nil {
		return termerr.New(termerr.CodeInvalidConfig, "cannot register nil fiber")
	}
	r.fibersMu.Lock()
	defer r.fibersMu.Unlock()
	if _, exists := r.fibers[f.ID()]; exists {
		return termerr.New(termerr.CodeInvalidConfig, "fiber "+f.ID()+" is already registered")
	}
	r.fibers[f.ID()] = f
	r.logger.Info("fiber registered",
		zap.String("protocol", f.ID()),
		zap.Int("commands", f.Len()))
	return nil
}

// RemoveFiber detaches a fiber from the resolvable set. Reports whether the
// fiber was present.
func (r *Registry) RemoveFiber(protocolID string) bool {
	r.fibersMu.Lock()
	defer r.fibersMu.Unlock()
	if _, exists := r.fibers[protocolID]; !exists {
		return false
	}
	delete(r.fibers, protocolID)
	r.logger.Info("fiber removed", zap.String("protocol", protocolID))
	return true
}

// Fiber returns the fiber registered for the protocol id.
func (r *Registry) Fiber(protocolID string) (*fiber.Fiber, bool) {
	r.fibersMu.RLock()
	defer r.fibersMu.RUnlock()
	f, ok := r.fibers[protocolID]
	return f, ok
}

// Fibers returns all registered fibers ordered by protocol id.
func (r *Registry) Fibers() []*fiber.Fiber {
	r.fibersMu.RLock()
	defer r.fibersMu.RUnlock()
	ids := make([]string, 0, len(r.fibers))
	for id := range r.fibers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*fiber.Fiber, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.fibers[id])
	}
	return out
}

// CoreCommands returns the core partition ordered by id.
func (r *Registry) CoreCommands() []command.Command {
	r.coreMu.RLock()
	defer r.coreMu.RUnlock()
	return sortedCommands(r.core)
}

// AliasedCommands returns the aliased partition ordered by id.
func (r *Registry) AliasedCommands() []command.Command {
	r.aliasedMu.RLock()
	defer r.aliasedMu.RUnlock()
	return sortedCommands(r.aliased)
}

func sortedCommands(m map[string]command.Command) []command.Command {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]command.Command, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

// ResolveExact maps exact input text to at most one command, following the
// documented precedence order:
//  1. explicit protocol override (hard constraint, no fallback)
//  2. core ids, then core aliases
//  3. aliased-global commands, protocol-bound through preferences
//  4. cross-fiber scan with defaults/priority disambiguation
//
// Failure is an ordinary NotFound or Ambiguous value; callers decide whether
// to fall back to fuzzy resolution.
func (r *Registry) ResolveExact(rc ResolutionContext) (ResolvedCommand, error) {
	input := strings.TrimSpace(rc.Input)
	if input == "" {
		return ResolvedCommand{}, termerr.New(termerr.CodeNotFound, "empty input")
	}

	if rc.ExplicitProtocol != "" {
		return r.resolveInFiber(rc.ExplicitProtocol, input)
	}

	if resolved, ok := r.resolveIndexed(&r.coreMu, r.core, r.coreIndex, input, ""); ok {
		return resolved, nil
	}

	if resolved, ok := r.resolveIndexed(&r.aliasedMu, r.aliased, r.aliasedIndex, input, r.boundProtocol(rc, input)); ok {
		return resolved, nil
	}

	return r.resolveAcrossFibers(rc, input)
}

func (r *Registry) resolveInFiber(protocolID, input string) (ResolvedCommand, error) {
	f, ok := r.Fiber(protocolID)
	if !ok {
		return ResolvedCommand{}, termerr.New(termerr.CodeNotFound, "protocol "+protocolID+" is not loaded")
	}
	cmd, ok := f.Lookup(input)
	if !ok {
		return ResolvedCommand{}, termerr.New(termerr.CodeNotFound,
			fmt.Sprintf("command %q not found in protocol %s", input, protocolID))
	}
	return ResolvedCommand{Command: cmd, Protocol: protocolID, Method: MethodProtocolScoped, Confidence: 1}, nil
}

func (r *Registry) resolveIndexed(mu *sync.RWMutex, canonical map[string]command.Command, index map[string]string, input, protocol string) (ResolvedCommand, bool) {
	mu.RLock()
	defer mu.RUnlock()
	id, ok := index[input]
	if !ok {
		return ResolvedCommand{}, false
	}
	cmd := canonical[id]
	method := MethodExact
	if input != cmd.ID {
		method = MethodAlias
	}
	return ResolvedCommand{Command: cmd, Protocol: protocol, Method: method, Confidence: 1}, true
}

// boundProtocol picks the protocol an aliased-global command executes against:
// the user's default for the command id, else the first priority protocol that
// is loaded, else the session's active protocol.
func (r *Registry) boundProtocol(rc ResolutionContext, input string) string {
	r.aliasedMu.RLock()
	id, ok := r.aliasedIndex[input]
	r.aliasedMu.RUnlock()
	if !ok {
		return ""
	}
	if preferred, ok := rc.Preferences.Defaults[id]; ok {
		return preferred
	}
	for _, protocol := range rc.Preferences.Priority {
		if _, loaded := r.Fiber(protocol); loaded {
			return protocol
		}
	}
	if rc.Session != nil {
		return rc.Session.ActiveProtocol()
	}
	return ""
}

type fiberMatch struct {
	protocol string
	cmd      command.Command
	byAlias  bool
}

func (r *Registry) resolveAcrossFibers(rc ResolutionContext, input string) (ResolvedCommand, error) {
	matches := r.fiberMatches(input)
	switch len(matches) {
	case 0:
		return ResolvedCommand{}, termerr.New(termerr.CodeNotFound, "command "+input+" not found")
	case 1:
		return resolvedFromFiberMatch(matches[0]), nil
	}

	if preferred, ok := rc.Preferences.Defaults[input]; ok {
		for _, m := range matches {
			if m.protocol == preferred {
				return resolvedFromFiberMatch(m), nil
			}
		}
	}
	for _, protocol := range rc.Preferences.Priority {
		for _, m := range matches {
			if m.protocol == protocol {
				return resolvedFromFiberMatch(m), nil
			}
		}
	}

	protocols := make([]string, 0, len(matches))
	for _, m := range matches {
		protocols = append(protocols, m.protocol)
	}
	return ResolvedCommand{}, termerr.New(termerr.CodeAmbiguous,
		fmt.Sprintf("command %q is defined by protocols %s; set a default or priority", input, strings.Join(protocols, ", ")))
}

func resolvedFromFiberMatch(m fiberMatch) ResolvedCommand {
	method := MethodExact
	if m.byAlias {
		method = MethodAlias
	}
	return ResolvedCommand{Command: m.cmd, Protocol: m.protocol, Method: method, Confidence: 1}
}

// fiberMatches scans all fibers in protocol order for commands whose id or
// alias equals the input. Protocol ordering keeps resolution deterministic.
func (r *Registry) fiberMatches(input string) []fiberMatch {
	matches := []fiberMatch{}
	for _, f := range r.Fibers() {
		if cmd, ok := f.Get(input); ok {
			matches = append(matches, fiberMatch{protocol: f.ID(), cmd: cmd})
			continue
		}
		if cmd, ok := f.Lookup(input); ok {
			matches = append(matches, fiberMatch{protocol: f.ID(), cmd: cmd, byAlias: true})
		}
	}
	return matches
}
