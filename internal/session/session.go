// Package session holds the per-session execution context threaded through
// every command execution. The context is mutable by replacement: executing a
// command yields an updated copy, so history stays reconstructible and no
// command can retroactively alter a prior entry.
package session

import (
	"context"
	"time"

	"github.com/defiterm/defiterm/internal/command"
	termerr "github.com/defiterm/defiterm/internal/errors"
)

// Preferences is the user-configurable disambiguation state consulted when an
// input token matches commands in more than one fiber. Persisted outside this
// core; only the in-memory representation lives here.
type Preferences struct {
	// Defaults maps a command id to the protocol that should win for it.
	Defaults map[string]string
	// Priority orders protocols; the first one defining the id wins when no
	// default is set.
	Priority []string
}

// Clone returns a deep copy so a derived context cannot alias the original.
func (p Preferences) Clone() Preferences {
	out := Preferences{}
	if p.Defaults != nil {
		out.Defaults = make(map[string]string, len(p.Defaults))
		for k, v := range p.Defaults {
			out.Defaults[k] = v
		}
	}
	if p.Priority != nil {
		out.Priority = append([]string(nil), p.Priority...)
	}
	return out
}

// BoundProtocolKey is the global-state key Execute fills with the protocol a
// resolution bound the command to, so aliased-global actions can delegate.
const BoundProtocolKey = "bound_protocol"

// HistoryEntry is one element of the append-only structured execution log.
type HistoryEntry struct {
	CommandID string         `json:"command_id"`
	Protocol  string         `json:"protocol,omitempty"`
	Args      []string       `json:"args,omitempty"`
	Result    command.Result `json:"result"`
	Timestamp time.Time      `json:"timestamp"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
}

// Context is the session state. Zero value is not usable; construct with New.
type Context struct {
	activeProtocol string
	preferences    Preferences
	wallet         command.WalletSnapshot
	globalState    map[string]any
	protocolState  map[string]map[string]any
	history        []HistoryEntry
	now            func() time.Time
}

func New(wallet command.WalletSnapshot, prefs Preferences) *Context {
	return &Context{
		preferences:   prefs.Clone(),
		wallet:        wallet,
		globalState:   map[string]any{},
		protocolState: map[string]map[string]any{},
		now:           time.Now,
	}
}

// clone deep-copies the mutable parts so the original context survives the
// execution of a command unchanged.
func (c *Context) clone() *Context {
	out := &Context{
		activeProtocol: c.activeProtocol,
		preferences:    c.preferences.Clone(),
		wallet:         c.wallet,
		globalState:    make(map[string]any, len(c.globalState)),
		protocolState:  make(map[string]map[string]any, len(c.protocolState)),
		history:        append([]HistoryEntry(nil), c.history...),
		now:            c.now,
	}
	for k, v := range c.globalState {
		out.globalState[k] = v
	}
	for proto, bag := range c.protocolState {
		copied := make(map[string]any, len(bag))
		for k, v := range bag {
			copied[k] = v
		}
		out.protocolState[proto] = copied
	}
	return out
}

func (c *Context) ActiveProtocol() string { return c.activeProtocol }

// WithActiveProtocol returns an updated copy focused on the given protocol.
func (c *Context) WithActiveProtocol(protocol string) *Context {
	out := c.clone()
	out.activeProtocol = protocol
	return out
}

// WithWallet returns an updated copy carrying a fresh wallet snapshot.
func (c *Context) WithWallet(wallet command.WalletSnapshot) *Context {
	out := c.clone()
	out.wallet = wallet
	return out
}

func (c *Context) Preferences() Preferences { return c.preferences.Clone() }

func (c *Context) Wallet() command.WalletSnapshot { return c.wallet }

// WithPreferences returns an updated copy carrying the given preferences.
func (c *Context) WithPreferences(prefs Preferences) *Context {
	out := c.clone()
	out.preferences = prefs.Clone()
	return out
}

func (c *Context) Global(key string) (any, bool) {
	v, ok := c.globalState[key]
	return v, ok
}

func (c *Context) SetGlobal(key string, value any) {
	c.globalState[key] = value
}

func (c *Context) ProtocolValue(protocol, key string) (any, bool) {
	bag, ok := c.protocolState[protocol]
	if !ok {
		return nil, false
	}
	v, ok := bag[key]
	return v, ok
}

func (c *Context) SetProtocolValue(protocol, key string, value any) {
	bag, ok := c.protocolState[protocol]
	if !ok {
		bag = map[string]any{}
		c.protocolState[protocol] = bag
	}
	bag[key] = value
}

// History returns a copy of the execution log. The log grows for the lifetime
// of the session; this core never prunes it.
func (c *Context) History() []HistoryEntry {
	return append([]HistoryEntry(nil), c.history...)
}

// WithHistory returns a copy seeded with previously persisted entries. Used by
// the history store at session start.
func (c *Context) WithHistory(entries []HistoryEntry) *Context {
	out := c.clone()
	out.history = append([]HistoryEntry(nil), entries...)
	return out
}

// Execute runs the command's action against an updated copy of the context and
// appends a history entry to it. The receiver is left untouched. An action
// failure is returned as a typed ActionFailure error alongside the updated
// context; the failed execution is still recorded with success=false.
func (c *Context) Execute(ctx context.Context, cmd command.Command, protocol string, args []string) (*Context, command.Result, error) {
	next := c.clone()
	entry := HistoryEntry{
		CommandID: cmd.ID,
		Protocol:  protocol,
		Args:      append([]string(nil), args...),
		Timestamp: next.now().UTC(),
	}

	if protocol != "" {
		next.globalState[BoundProtocolKey] = protocol
	} else {
		// An unbound execution must not inherit the binding a previous
		// protocol-bound execution left in the cloned global state.
		delete(next.globalState, BoundProtocolKey)
	}

	if cmd.Action == nil {
		err := termerr.New(termerr.CodeActionFailure, "command "+cmd.ID+" has no action")
		entry.Error = err.Error()
		next.history = append(next.history, entry)
		return next, command.Result{}, err
	}

	result, err := cmd.Action(ctx, next, args)
	if err != nil {
		actionErr := err
		if _, ok := termerr.As(err); !ok {
			actionErr = termerr.Wrap(termerr.CodeActionFailure, "execute "+cmd.ID, err)
		}
		entry.Error = actionErr.Error()
		next.history = append(next.history, entry)
		return next, command.Result{}, actionErr
	}

	entry.Result = result
	entry.Success = true
	next.history = append(next.history, entry)
	return next, result, nil
}
