// Package fiber implements the protocol fiber: the closed set of commands
// belonging to one protocol. Every fiber carries an identity command so
// composition chains preserve protocol-scoped session state, and insertion
// enforces closure so composing commands from one fiber can never produce a
// command tagged with another protocol.
package fiber

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/defiterm/defiterm/internal/command"
	termerr "github.com/defiterm/defiterm/internal/errors"
)

// LastResultKey is the protocol-state key pipeline stages use to hand their
// result to the next stage.
const LastResultKey = "last_result"

// Fiber is a named, closed collection of commands for one protocol.
type Fiber struct {
	id          string
	name        string
	description string
	commands    map[string]command.Command
	identityID  string
}

// New returns a fiber pre-populated with exactly one identity command whose
// action returns the chain's prior result unchanged while still threading the
// execution context, so protocol state survives a composition chain.
func New(id, name, description string) (*Fiber, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, termerr.New(termerr.CodeInvalidConfig, "fiber id must not be empty")
	}
	f := &Fiber{
		id:          id,
		name:        name,
		description: description,
		commands:    map[string]command.Command{},
		identityID:  id,
	}
	f.commands[id] = command.Command{
		ID:          id,
		Scope:       command.ScopeProtocolScoped,
		Protocol:    id,
		Description: fmt.Sprintf("%s identity (focus protocol, no-op in chains)", name),
		Action: func(ctx context.Context, sess command.Session, args []string) (command.Result, error) {
			if prior, ok := sess.ProtocolValue(id, LastResultKey); ok {
				if result, ok := prior.(command.Result); ok {
					return result, nil
				}
			}
			return command.Cleared(), nil
		},
	}
	return f, nil
}

func (f *Fiber) ID() string          { return f.id }
func (f *Fiber) Name() string        { return f.name }
func (f *Fiber) Description() string { return f.description }

// Identity returns the fiber's identity command.
func (f *Fiber) Identity() command.Command {
	return f.commands[f.identityID]
}

// AddCommand inserts a protocol-scoped command, rejecting any command that
// does not belong to this fiber. The closure invariant is enforced here, at
// insertion time, instead of being discovered later during resolution.
func (f *Fiber) AddCommand(cmd command.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	if cmd.Scope != command.ScopeProtocolScoped || cmd.Protocol != f.id {
		return termerr.New(termerr.CodeClosureViolation,
			fmt.Sprintf("command %s belongs to protocol %q, not fiber %q", cmd.ID, cmd.Protocol, f.id))
	}
	if _, exists := f.commands[cmd.ID]; exists {
		return termerr.New(termerr.CodeClosureViolation,
			fmt.Sprintf("fiber %q already defines command %s", f.id, cmd.ID))
	}
	f.commands[cmd.ID] = cmd
	return nil
}

// Get returns the command with the given id.
func (f *Fiber) Get(id string) (command.Command, bool) {
	cmd, ok := f.commands[id]
	return cmd, ok
}

// Lookup matches a token against command ids first, then aliases.
func (f *Fiber) Lookup(token string) (command.Command, bool) {
	if cmd, ok := f.commands[token]; ok {
		return cmd, true
	}
	for _, cmd := range f.commands {
		for _, alias := range cmd.Aliases {
			if alias == token {
				return cmd, true
			}
		}
	}
	return command.Command{}, false
}

// Commands returns the fiber's commands ordered by id.
func (f *Fiber) Commands() []command.Command {
	ids := make([]string, 0, len(f.commands))
	for id := range f.commands {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]command.Command, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.commands[id])
	}
	return out
}

// Len returns the number of commands, identity included.
func (f *Fiber) Len() int { return len(f.commands) }

// Compose combines two commands of this fiber into a pipeline command: do the
// first, then the second, with the first's result handed to the second through
// protocol state. A command-supplied composition operator is used when present;
// either way the resulting protocol tag is asserted before the composed
// command is accepted.
func (f *Fiber) Compose(first, second command.Command) (command.Command, error) {
	for _, cmd := range []command.Command{first, second} {
		if cmd.Protocol != f.id {
			return command.Command{}, termerr.New(termerr.CodeClosureViolation,
				fmt.Sprintf("command %s belongs to protocol %q, not fiber %q", cmd.ID, cmd.Protocol, f.id))
		}
	}

	if first.Compose != nil {
		composed, err := first.Compose(first, second)
		if err != nil {
			return command.Command{}, err
		}
		if composed.Protocol != f.id || composed.Scope != command.ScopeProtocolScoped {
			return command.Command{}, termerr.New(termerr.CodeClosureViolation,
				fmt.Sprintf("composition of %s and %s escaped fiber %q", first.ID, second.ID, f.id))
		}
		return composed, nil
	}

	protocol := f.id
	firstAction := first.Action
	secondAction := second.Action
	return command.Command{
		ID:          first.ID + ">" + second.ID,
		Scope:       command.ScopeProtocolScoped,
		Protocol:    protocol,
		Description: fmt.Sprintf("%s then %s", first.ID, second.ID),
		Action: func(ctx context.Context, sess command.Session, args []string) (command.Result, error) {
			if firstAction == nil || secondAction == nil {
				return command.Result{}, termerr.New(termerr.CodeActionFailure, "composed command has a missing stage action")
			}
			firstResult, err := firstAction(ctx, sess, args)
			if err != nil {
				return command.Result{}, err
			}
			sess.SetProtocolValue(protocol, LastResultKey, firstResult)
			return secondAction(ctx, sess, args)
		},
	}, nil
}

// FromPlugin is the single fallible constructor for fibers produced by plugin
// initialization. A fiber whose id differs from the plugin's declared id is a
// fatal load failure: accepting it would silently break the fibered structure
// of the registry.
func FromPlugin(declaredID string, f *Fiber) (*Fiber, error) {
	if f == nil {
		return nil, termerr.New(termerr.CodeFiberMismatch, "plugin "+declaredID+" returned no fiber")
	}
	if f.ID() != declaredID {
		return nil, termerr.New(termerr.CodeFiberMismatch,
			fmt.Sprintf("plugin %q returned fiber %q", declaredID, f.ID()))
	}
	return f, nil
}
