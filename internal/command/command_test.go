package command

import (
	"reflect"
	"testing"

	termerr "github.com/defiterm/defiterm/internal/errors"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cmd     Command
		wantErr bool
	}{
		{
			name: "core global",
			cmd:  Command{ID: "help", Scope: ScopeCoreGlobal},
		},
		{
			name: "aliased global",
			cmd:  Command{ID: "cprice", Scope: ScopeAliasedGlobal},
		},
		{
			name: "protocol scoped",
			cmd:  Command{ID: "swap", Scope: ScopeProtocolScoped, Protocol: "1inch"},
		},
		{
			name:    "empty id",
			cmd:     Command{ID: "   ", Scope: ScopeCoreGlobal},
			wantErr: true,
		},
		{
			name:    "protocol scoped without protocol",
			cmd:     Command{ID: "swap", Scope: ScopeProtocolScoped},
			wantErr: true,
		},
		{
			name:    "global with protocol",
			cmd:     Command{ID: "help", Scope: ScopeCoreGlobal, Protocol: "1inch"},
			wantErr: true,
		},
		{
			name:    "unknown scope",
			cmd:     Command{ID: "x", Scope: Scope(42)},
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cmd.Validate()
			if tc.wantErr {
				if !termerr.Is(err, termerr.CodeInvalidConfig) {
					t.Fatalf("Validate() = %v, want invalid config", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate(): %v", err)
			}
		})
	}
}

func TestTokens(t *testing.T) {
	cmd := Command{ID: "swap", Aliases: []string{"sw", "s"}}
	if got, want := cmd.Tokens(), []string{"swap", "sw", "s"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Tokens() = %v, want %v", got, want)
	}
	bare := Command{ID: "help"}
	if got := bare.Tokens(); len(got) != 1 || got[0] != "help" {
		t.Fatalf("Tokens() without aliases = %v", got)
	}
}

func TestScopeString(t *testing.T) {
	tests := []struct {
		scope Scope
		want  string
	}{
		{ScopeCoreGlobal, "core"},
		{ScopeAliasedGlobal, "aliased"},
		{ScopeProtocolScoped, "protocol"},
		{Scope(99), "unknown"},
	}
	for _, tc := range tests {
		if got := tc.scope.String(); got != tc.want {
			t.Fatalf("Scope(%d).String() = %q, want %q", tc.scope, got, tc.want)
		}
	}
}
