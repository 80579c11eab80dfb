package app

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/defiterm/defiterm/internal/command"
	"github.com/defiterm/defiterm/internal/config"
	"github.com/defiterm/defiterm/internal/model"
	"github.com/defiterm/defiterm/internal/version"
)

// run executes one CLI invocation with isolated config/data directories.
func run(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	runner := NewRunnerWithStreams(strings.NewReader(stdin), &stdout, &stderr)
	code := runner.Run(args)
	return code, stdout.String(), stderr.String()
}

func isolateDirs(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
}

func decodeEnvelope(t *testing.T, raw string) model.Envelope {
	t.Helper()
	var env model.Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("output is not an envelope: %v\n%s", err, raw)
	}
	if env.Version != model.EnvelopeVersion {
		t.Fatalf("envelope version = %q", env.Version)
	}
	return env
}

func dataMap(t *testing.T, env model.Envelope) map[string]any {
	t.Helper()
	m, ok := env.Data.(map[string]any)
	if !ok {
		t.Fatalf("envelope data = %T", env.Data)
	}
	return m
}

func TestRunVersion(t *testing.T) {
	isolateDirs(t)
	code, stdout, stderr := run(t, "", "version")
	if code != 0 {
		t.Fatalf("exit = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, version.CLIVersion) {
		t.Fatalf("stdout = %q", stdout)
	}
}

func TestRunResolveCore(t *testing.T) {
	isolateDirs(t)
	code, stdout, stderr := run(t, "", "resolve", "help", "--no-history")
	if code != 0 {
		t.Fatalf("exit = %d, stderr: %s", code, stderr)
	}

	env := decodeEnvelope(t, stdout)
	if !env.Success || env.Error != nil {
		t.Fatalf("envelope = %+v", env)
	}
	data := dataMap(t, env)
	if data["command_id"] != "help" || data["scope"] != "core" || data["method"] != "exact" {
		t.Fatalf("data = %v", data)
	}
	if env.Meta.Resolution == nil || env.Meta.Resolution.Confidence != 1 {
		t.Fatalf("meta = %+v", env.Meta)
	}
}

func TestRunResolveAlias(t *testing.T) {
	isolateDirs(t)
	code, stdout, _ := run(t, "", "resolve", "w", "--no-history")
	if code != 0 {
		t.Fatalf("exit = %d", code)
	}
	data := dataMap(t, decodeEnvelope(t, stdout))
	if data["command_id"] != "wallet" || data["method"] != "alias" {
		t.Fatalf("data = %v", data)
	}
}

func TestRunResolveExplicitProtocol(t *testing.T) {
	isolateDirs(t)
	code, stdout, _ := run(t, "", "resolve", "1inch:swap", "--no-history")
	if code != 0 {
		t.Fatalf("exit = %d", code)
	}
	data := dataMap(t, decodeEnvelope(t, stdout))
	if data["protocol"] != "1inch" || data["method"] != "protocol-scoped" {
		t.Fatalf("data = %v", data)
	}
}

func TestRunResolveUnknown(t *testing.T) {
	isolateDirs(t)
	code, _, stderr := run(t, "", "resolve", "pirce", "--no-history")
	if code != 3 {
		t.Fatalf("exit = %d", code)
	}
	env := decodeEnvelope(t, stderr)
	if env.Success || env.Error == nil {
		t.Fatalf("envelope = %+v", env)
	}
	if env.Error.Type != "command_not_found" || env.Error.Code != 3 {
		t.Fatalf("error = %+v", env.Error)
	}
	if !strings.Contains(env.Error.Message, "did you mean") || !strings.Contains(env.Error.Message, "price") {
		t.Fatalf("message lacks suggestions: %q", env.Error.Message)
	}
}

func TestRunResolveAmbiguous(t *testing.T) {
	isolateDirs(t)
	// Both 1inch and uniswap define swap and no preference disambiguates.
	code, _, stderr := run(t, "", "resolve", "swap", "--no-history")
	if code != 4 {
		t.Fatalf("exit = %d, stderr: %s", code, stderr)
	}
	env := decodeEnvelope(t, stderr)
	if env.Error == nil || env.Error.Type != "ambiguous_command" {
		t.Fatalf("error = %+v", env.Error)
	}
}

func TestRunResolveAliasedBindsActiveProtocol(t *testing.T) {
	isolateDirs(t)
	code, stdout, stderr := run(t, "", "resolve", "cprice", "--protocol", "1inch", "--no-history")
	if code != 0 {
		t.Fatalf("exit = %d, stderr: %s", code, stderr)
	}
	data := dataMap(t, decodeEnvelope(t, stdout))
	if data["command_id"] != "cprice" || data["protocol"] != "1inch" {
		t.Fatalf("data = %v", data)
	}
	if data["scope"] != "aliased" {
		t.Fatalf("scope = %v", data["scope"])
	}
}

func TestRunExecBuiltin(t *testing.T) {
	isolateDirs(t)
	code, stdout, stderr := run(t, "", "exec", "wallet", "--no-history")
	if code != 0 {
		t.Fatalf("exit = %d, stderr: %s", code, stderr)
	}
	env := decodeEnvelope(t, stdout)
	data := dataMap(t, env)
	if data["kind"] != "message" || data["message"] != "wallet: disconnected" {
		t.Fatalf("data = %v", data)
	}
	if env.Meta.Resolution == nil || env.Meta.Resolution.CommandID != "wallet" {
		t.Fatalf("meta = %+v", env.Meta)
	}
}

func TestRunExecBlockedByPolicy(t *testing.T) {
	isolateDirs(t)
	code, _, stderr := run(t, "", "exec", "wallet", "--allow-commands", "help,clear", "--no-history")
	if code != 16 {
		t.Fatalf("exit = %d", code)
	}
	env := decodeEnvelope(t, stderr)
	if env.Error == nil || env.Error.Type != "command_blocked" {
		t.Fatalf("error = %+v", env.Error)
	}
}

func TestRunExecCompositionNeedsProtocol(t *testing.T) {
	isolateDirs(t)
	code, _, stderr := run(t, "", "exec", "swap>price", "--no-history")
	if code != 2 {
		t.Fatalf("exit = %d", code)
	}
	env := decodeEnvelope(t, stderr)
	if env.Error == nil || env.Error.Type != "usage_error" {
		t.Fatalf("error = %+v", env.Error)
	}
}

func TestRunExecCompositionUnknownStage(t *testing.T) {
	isolateDirs(t)
	code, _, stderr := run(t, "", "exec", "swap>teleport", "--for", "1inch", "--no-history")
	if code != 3 {
		t.Fatalf("exit = %d", code)
	}
	env := decodeEnvelope(t, stderr)
	if env.Error == nil || !strings.Contains(env.Error.Message, "teleport") {
		t.Fatalf("error = %+v", env.Error)
	}
}

func TestRunSuggest(t *testing.T) {
	isolateDirs(t)
	code, stdout, stderr := run(t, "", "suggest", "hel", "--no-history")
	if code != 0 {
		t.Fatalf("exit = %d, stderr: %s", code, stderr)
	}
	data := dataMap(t, decodeEnvelope(t, stdout))
	if data["auto_filled"] != "help" {
		t.Fatalf("data = %v", data)
	}
	if data["visible"] != false {
		t.Fatalf("single match should not open a list: %v", data)
	}
}

func TestRunPluginsList(t *testing.T) {
	isolateDirs(t)
	code, stdout, stderr := run(t, "", "plugins", "list", "--no-history")
	if code != 0 {
		t.Fatalf("exit = %d, stderr: %s", code, stderr)
	}
	env := decodeEnvelope(t, stdout)
	rows, ok := env.Data.([]any)
	if !ok {
		t.Fatalf("data = %T", env.Data)
	}
	if len(rows) != 3 {
		t.Fatalf("plugins = %d, want the three bundled ones", len(rows))
	}
	ids := map[string]string{}
	for _, raw := range rows {
		row := raw.(map[string]any)
		ids[row["id"].(string)] = row["state"].(string)
	}
	for _, id := range []string{"1inch", "uniswap", "lifi"} {
		if ids[id] != "loaded" {
			t.Fatalf("plugin %s state = %q (%v)", id, ids[id], ids)
		}
	}
}

func TestRunHistoryFlow(t *testing.T) {
	isolateDirs(t)

	if code, _, stderr := run(t, "", "exec", "wallet"); code != 0 {
		t.Fatalf("exec exit = %d, stderr: %s", code, stderr)
	}

	code, stdout, stderr := run(t, "", "history", "list")
	if code != 0 {
		t.Fatalf("history exit = %d, stderr: %s", code, stderr)
	}
	env := decodeEnvelope(t, stdout)
	rows, ok := env.Data.([]any)
	if !ok || len(rows) != 1 {
		t.Fatalf("history rows = %v", env.Data)
	}
	row := rows[0].(map[string]any)
	if row["command_id"] != "wallet" || row["success"] != true {
		t.Fatalf("row = %v", row)
	}

	if code, _, _ := run(t, "", "history", "clear"); code != 0 {
		t.Fatalf("history clear failed")
	}
	_, stdout, _ = run(t, "", "history", "list")
	env = decodeEnvelope(t, stdout)
	if rows, _ := env.Data.([]any); len(rows) != 0 {
		t.Fatalf("history rows after clear = %v", env.Data)
	}
}

func TestBootstrapReplaysPersistedHistory(t *testing.T) {
	isolateDirs(t)
	if code, _, stderr := run(t, "", "exec", "wallet"); code != 0 {
		t.Fatalf("exec exit = %d, stderr: %s", code, stderr)
	}

	settings, err := config.Load(config.GlobalFlags{Retries: -1})
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	state := &runtimeState{
		runner:   NewRunnerWithStreams(strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{}),
		settings: settings,
		logger:   zap.NewNop(),
	}
	if err := state.bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	t.Cleanup(func() { _ = state.store.Close() })

	entries := state.session.History()
	if len(entries) != 1 {
		t.Fatalf("session replayed %d entries, want 1", len(entries))
	}
	got := entries[0]
	if got.CommandID != "wallet" || !got.Success {
		t.Fatalf("replayed entry = %+v", got)
	}
	if got.Result.Kind != command.ResultMessage || !strings.Contains(got.Result.Message, "disconnected") {
		t.Fatalf("replayed result lost its payload: %+v", got.Result)
	}
}

func TestBootstrapTrimsHistoryToConfiguredMax(t *testing.T) {
	isolateDirs(t)
	t.Setenv("DEFITERM_HISTORY_MAX", "2")
	for i := 0; i < 4; i++ {
		if code, _, stderr := run(t, "", "exec", "wallet"); code != 0 {
			t.Fatalf("exec exit = %d, stderr: %s", code, stderr)
		}
	}

	code, stdout, stderr := run(t, "", "history", "list")
	if code != 0 {
		t.Fatalf("history exit = %d, stderr: %s", code, stderr)
	}
	env := decodeEnvelope(t, stdout)
	rows, ok := env.Data.([]any)
	if !ok || len(rows) != 2 {
		t.Fatalf("history rows = %v, want 2 after trim", env.Data)
	}
}

func TestRunHistoryDisabled(t *testing.T) {
	isolateDirs(t)
	code, _, stderr := run(t, "", "history", "list", "--no-history")
	if code != 5 {
		t.Fatalf("exit = %d", code)
	}
	env := decodeEnvelope(t, stderr)
	if env.Error == nil || env.Error.Type != "plugin_disabled" {
		t.Fatalf("error = %+v", env.Error)
	}
}

func TestRunSchema(t *testing.T) {
	isolateDirs(t)
	code, stdout, stderr := run(t, "", "schema", "--no-history")
	if code != 0 {
		t.Fatalf("exit = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, `"cprice"`) || !strings.Contains(stdout, `"1inch"`) {
		t.Fatalf("schema output missing commands:\n%s", stdout)
	}
	if strings.Contains(stdout, `"cli"`) {
		t.Fatalf("schema included the CLI tree without --cli")
	}

	_, withCLI, _ := run(t, "", "schema", "--cli", "--no-history")
	if !strings.Contains(withCLI, `"cli"`) {
		t.Fatalf("schema --cli output missing CLI tree:\n%s", withCLI)
	}
}

func TestRunConflictingOutputFlags(t *testing.T) {
	isolateDirs(t)
	code, _, stderr := run(t, "", "resolve", "help", "--json", "--plain", "--no-history")
	if code != 6 {
		t.Fatalf("exit = %d, stderr: %s", code, stderr)
	}
	env := decodeEnvelope(t, stderr)
	if env.Error == nil || env.Error.Type != "invalid_config" {
		t.Fatalf("error = %+v", env.Error)
	}
}

func TestRunUnknownFlag(t *testing.T) {
	isolateDirs(t)
	code, _, _ := run(t, "", "resolve", "help", "--bogus")
	if code != 2 {
		t.Fatalf("exit = %d", code)
	}
}

func TestRunRepl(t *testing.T) {
	isolateDirs(t)
	code, stdout, stderr := run(t, "help\nexit\n", "repl", "--no-history")
	if code != 0 {
		t.Fatalf("exit = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "defiterm> ") {
		t.Fatalf("no prompt in output: %q", stdout)
	}
	// help renders the command table inline.
	if !strings.Contains(stdout, "command") || !strings.Contains(stdout, "cprice") {
		t.Fatalf("help table missing: %q", stdout)
	}
}

func TestRunReplUseAndSuggest(t *testing.T) {
	isolateDirs(t)
	input := "use 1inch\nsuggest sw\nuse nope\nexit\n"
	code, stdout, stderr := run(t, input, "repl", "--no-history")
	if code != 0 {
		t.Fatalf("exit = %d", code)
	}
	if !strings.Contains(stdout, "focused protocol: 1inch") {
		t.Fatalf("use output missing: %q", stdout)
	}
	if !strings.Contains(stdout, "defiterm(1inch)> ") {
		t.Fatalf("prompt did not pick up the focus: %q", stdout)
	}
	if !strings.Contains(stdout, "1inch:swap") {
		t.Fatalf("suggest output missing: %q", stdout)
	}
	if !strings.Contains(stderr, "not loaded") {
		t.Fatalf("unknown protocol not rejected: %q", stderr)
	}
}

func TestParseToken(t *testing.T) {
	tests := []struct {
		raw, input, explicit string
	}{
		{"swap", "swap", ""},
		{"1inch:swap", "swap", "1inch"},
		{"UNISWAP:swap", "swap", "uniswap"},
		{":swap", ":swap", ""},
		{" help ", "help", ""},
	}
	for _, tc := range tests {
		input, explicit := parseToken(tc.raw)
		if input != tc.input || explicit != tc.explicit {
			t.Fatalf("parseToken(%q) = %q, %q; want %q, %q", tc.raw, input, explicit, tc.input, tc.explicit)
		}
	}
}

func TestTrimRootPath(t *testing.T) {
	if got := trimRootPath("defiterm plugins list"); got != "plugins list" {
		t.Fatalf("trimRootPath = %q", got)
	}
	if got := trimRootPath("defiterm"); got != "defiterm" {
		t.Fatalf("trimRootPath = %q", got)
	}
}
