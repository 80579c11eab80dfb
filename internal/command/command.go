// Package command defines the immutable command descriptor resolved and
// executed by the terminal engine, together with the closed set of result
// variants command actions may produce.
package command

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	termerr "github.com/defiterm/defiterm/internal/errors"
)

// Scope determines which registry partition owns a command.
type Scope int

const (
	// ScopeCoreGlobal commands are always available and never belong to a protocol.
	ScopeCoreGlobal Scope = iota
	// ScopeAliasedGlobal commands are protocol-agnostic and bind to a concrete
	// protocol only at resolution time through user preferences.
	ScopeAliasedGlobal
	// ScopeProtocolScoped commands belong to exactly one protocol fiber.
	ScopeProtocolScoped
)

func (s Scope) String() string {
	switch s {
	case ScopeCoreGlobal:
		return "core"
	case ScopeAliasedGlobal:
		return "aliased"
	case ScopeProtocolScoped:
		return "protocol"
	default:
		return "unknown"
	}
}

// WalletSnapshot is the read-only connection state owned by the wallet
// collaborator. The engine never mutates it.
type WalletSnapshot struct {
	Address       common.Address
	ChainID       int64
	Connected     bool
	Connecting    bool
	Disconnecting bool
}

// Session is the view of the execution context an action may read and write.
// Implemented by session.Context; actions receive it instead of the concrete
// type so command remains a leaf package.
type Session interface {
	ActiveProtocol() string
	Wallet() WalletSnapshot
	Global(key string) (any, bool)
	SetGlobal(key string, value any)
	ProtocolValue(protocol, key string) (any, bool)
	SetProtocolValue(protocol, key string, value any)
}

// Action executes a command against the session and produces a tagged result.
// Actions may perform network I/O through injected capabilities; they must
// never mutate the Command descriptor itself.
type Action func(ctx context.Context, sess Session, args []string) (Result, error)

// ComposeFunc combines two commands into a pipeline command. Implementations
// are supplied per command type; the fiber asserts the resulting protocol tag
// before accepting the composed command into any further chain.
type ComposeFunc func(first, second Command) (Command, error)

// Command is an immutable descriptor: identifier, scope, owning protocol (for
// protocol-scoped commands), aliases, help text, the executable action and an
// optional composition operator.
type Command struct {
	ID          string
	Scope       Scope
	Protocol    string
	Aliases     []string
	Description string
	Action      Action
	Compose     ComposeFunc
}

// Validate checks the scope/protocol invariant: a protocol-scoped command
// always carries a protocol, a global one never does.
func (c Command) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return termerr.New(termerr.CodeInvalidConfig, "command id must not be empty")
	}
	switch c.Scope {
	case ScopeProtocolScoped:
		if strings.TrimSpace(c.Protocol) == "" {
			return termerr.New(termerr.CodeInvalidConfig, "protocol-scoped command "+c.ID+" has no protocol")
		}
	case ScopeCoreGlobal, ScopeAliasedGlobal:
		if c.Protocol != "" {
			return termerr.New(termerr.CodeInvalidConfig, "global command "+c.ID+" must not carry a protocol")
		}
	default:
		return termerr.New(termerr.CodeInvalidConfig, "command "+c.ID+" has unknown scope")
	}
	return nil
}

// Tokens returns the id followed by all aliases, the full set of strings that
// resolve to this command.
func (c Command) Tokens() []string {
	tokens := make([]string, 0, len(c.Aliases)+1)
	tokens = append(tokens, c.ID)
	tokens = append(tokens, c.Aliases...)
	return tokens
}
