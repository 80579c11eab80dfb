package registry

import (
	"context"
	"testing"

	"github.com/defiterm/defiterm/internal/command"
	termerr "github.com/defiterm/defiterm/internal/errors"
	"github.com/defiterm/defiterm/internal/fiber"
	"github.com/defiterm/defiterm/internal/session"
)

func messageAction(text string) command.Action {
	return func(ctx context.Context, sess command.Session, args []string) (command.Result, error) {
		return command.Message(text), nil
	}
}

// newTestRegistry builds the canonical scenario used throughout these tests:
// a core `help` command, an aliased-global `cprice`, and two fibers that both
// define `swap` while only 1inch defines `price`.
func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New(nil)

	if err := r.RegisterCore(command.Command{
		ID:      "help",
		Scope:   command.ScopeCoreGlobal,
		Aliases: []string{"h"},
		Action:  messageAction("help"),
	}); err != nil {
		t.Fatalf("RegisterCore: %v", err)
	}
	if err := r.RegisterAliased(command.Command{
		ID:      "cprice",
		Scope:   command.ScopeAliasedGlobal,
		Aliases: []string{"cp"},
		Action:  messageAction("cprice"),
	}); err != nil {
		t.Fatalf("RegisterAliased: %v", err)
	}

	oneinch, err := fiber.New("1inch", "1inch", "")
	if err != nil {
		t.Fatalf("fiber.New: %v", err)
	}
	for _, cmd := range []command.Command{
		{ID: "swap", Scope: command.ScopeProtocolScoped, Protocol: "1inch", Aliases: []string{"sw"}, Action: messageAction("1inch swap")},
		{ID: "price", Scope: command.ScopeProtocolScoped, Protocol: "1inch", Action: messageAction("1inch price")},
	} {
		if err := oneinch.AddCommand(cmd); err != nil {
			t.Fatalf("AddCommand: %v", err)
		}
	}

	uniswap, err := fiber.New("uniswap", "Uniswap", "")
	if err != nil {
		t.Fatalf("fiber.New: %v", err)
	}
	if err := uniswap.AddCommand(command.Command{
		ID: "swap", Scope: command.ScopeProtocolScoped, Protocol: "uniswap", Aliases: []string{"sw"}, Action: messageAction("uniswap swap"),
	}); err != nil {
		t.Fatalf("AddCommand: %v", err)
	}

	if err := r.RegisterFiber(oneinch); err != nil {
		t.Fatalf("RegisterFiber: %v", err)
	}
	if err := r.RegisterFiber(uniswap); err != nil {
		t.Fatalf("RegisterFiber: %v", err)
	}
	return r
}

func rcFor(input string, prefs session.Preferences) ResolutionContext {
	return ResolutionContext{Input: input, Preferences: prefs}
}

func TestResolveExactPrecedence(t *testing.T) {
	r := newTestRegistry(t)

	tests := []struct {
		name         string
		input        string
		explicit     string
		prefs        session.Preferences
		wantID       string
		wantProtocol string
		wantMethod   Method
		wantCode     termerr.Code
	}{
		{
			name:       "core by id",
			input:      "help",
			wantID:     "help",
			wantMethod: MethodExact,
		},
		{
			name:       "core by alias",
			input:      "h",
			wantID:     "help",
			wantMethod: MethodAlias,
		},
		{
			name:         "aliased global with default binding",
			input:        "cprice",
			prefs:        session.Preferences{Defaults: map[string]string{"cprice": "uniswap"}},
			wantID:       "cprice",
			wantProtocol: "uniswap",
			wantMethod:   MethodExact,
		},
		{
			name:         "aliased global by alias with priority binding",
			input:        "cp",
			prefs:        session.Preferences{Priority: []string{"1inch"}},
			wantID:       "cprice",
			wantProtocol: "1inch",
			wantMethod:   MethodAlias,
		},
		{
			name:         "single fiber match",
			input:        "price",
			wantID:       "price",
			wantProtocol: "1inch",
			wantMethod:   MethodExact,
		},
		{
			name:         "fiber identity command",
			input:        "1inch",
			wantID:       "1inch",
			wantProtocol: "1inch",
			wantMethod:   MethodExact,
		},
		{
			name:     "multi fiber without preferences is ambiguous",
			input:    "swap",
			wantCode: termerr.CodeAmbiguous,
		},
		{
			name:         "defaults disambiguate",
			input:        "swap",
			prefs:        session.Preferences{Defaults: map[string]string{"swap": "uniswap"}},
			wantID:       "swap",
			wantProtocol: "uniswap",
			wantMethod:   MethodExact,
		},
		{
			name:         "priority disambiguates",
			input:        "swap",
			prefs:        session.Preferences{Priority: []string{"uniswap", "1inch"}},
			wantID:       "swap",
			wantProtocol: "uniswap",
			wantMethod:   MethodExact,
		},
		{
			name:         "explicit protocol constraint",
			input:        "swap",
			explicit:     "1inch",
			wantID:       "swap",
			wantProtocol: "1inch",
			wantMethod:   MethodProtocolScoped,
		},
		{
			name:     "explicit protocol never falls back",
			input:    "price",
			explicit: "uniswap",
			wantCode: termerr.CodeNotFound,
		},
		{
			name:     "explicit protocol not loaded",
			input:    "swap",
			explicit: "aave",
			wantCode: termerr.CodeNotFound,
		},
		{
			name:     "unknown token",
			input:    "teleport",
			wantCode: termerr.CodeNotFound,
		},
		{
			name:     "empty input",
			input:    "   ",
			wantCode: termerr.CodeNotFound,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rc := rcFor(tc.input, tc.prefs)
			rc.ExplicitProtocol = tc.explicit
			resolved, err := r.ResolveExact(rc)
			if tc.wantCode != 0 {
				if !termerr.Is(err, tc.wantCode) {
					t.Fatalf("ResolveExact(%q) error = %v, want code %d", tc.input, err, tc.wantCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveExact(%q): %v", tc.input, err)
			}
			if resolved.Command.ID != tc.wantID {
				t.Fatalf("resolved id = %q, want %q", resolved.Command.ID, tc.wantID)
			}
			if resolved.Protocol != tc.wantProtocol {
				t.Fatalf("resolved protocol = %q, want %q", resolved.Protocol, tc.wantProtocol)
			}
			if resolved.Method != tc.wantMethod {
				t.Fatalf("resolved method = %q, want %q", resolved.Method, tc.wantMethod)
			}
			if resolved.Confidence != 1 {
				t.Fatalf("exact resolution confidence = %v, want 1", resolved.Confidence)
			}
		})
	}
}

func TestAliasedBindingFallsBackToActiveProtocol(t *testing.T) {
	r := newTestRegistry(t)
	sess := session.New(command.WalletSnapshot{}, session.Preferences{}).WithActiveProtocol("1inch")

	resolved, err := r.ResolveExact(ResolutionContext{Input: "cprice", Session: sess})
	if err != nil {
		t.Fatalf("ResolveExact: %v", err)
	}
	if resolved.Protocol != "1inch" {
		t.Fatalf("bound protocol = %q, want the session's active protocol", resolved.Protocol)
	}
}

func TestRegisterTokenCollision(t *testing.T) {
	r := newTestRegistry(t)

	err := r.RegisterCore(command.Command{
		ID:     "halt",
		Scope:  command.ScopeCoreGlobal,
		Action: messageAction("halt"),
		// collides with help's alias
		Aliases: []string{"h"},
	})
	if !termerr.Is(err, termerr.CodeInvalidConfig) {
		t.Fatalf("colliding registration = %v, want invalid config", err)
	}
}

func TestRegisterFiberDuplicate(t *testing.T) {
	r := newTestRegistry(t)
	dup, _ := fiber.New("1inch", "again", "")
	if err := r.RegisterFiber(dup); !termerr.Is(err, termerr.CodeInvalidConfig) {
		t.Fatalf("duplicate fiber registration = %v, want invalid config", err)
	}
}

func TestRemoveFiberDetachesCommands(t *testing.T) {
	r := newTestRegistry(t)

	if !r.RemoveFiber("1inch") {
		t.Fatalf("RemoveFiber(1inch) = false")
	}
	if r.RemoveFiber("1inch") {
		t.Fatalf("second RemoveFiber(1inch) = true")
	}

	if _, err := r.ResolveExact(rcFor("price", session.Preferences{})); !termerr.Is(err, termerr.CodeNotFound) {
		t.Fatalf("price after unload = %v, want not found", err)
	}

	// swap is no longer ambiguous: only uniswap defines it.
	resolved, err := r.ResolveExact(rcFor("swap", session.Preferences{}))
	if err != nil {
		t.Fatalf("ResolveExact(swap): %v", err)
	}
	if resolved.Protocol != "uniswap" {
		t.Fatalf("swap resolved to %q after unload, want uniswap", resolved.Protocol)
	}
}
