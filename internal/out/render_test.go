package out

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/defiterm/defiterm/internal/command"
	"github.com/defiterm/defiterm/internal/model"
)

func testEnvelope() model.Envelope {
	return model.Envelope{
		Version: model.EnvelopeVersion,
		Success: true,
		Data:    map[string]any{"kind": "message", "message": "hi"},
		Meta: model.EnvelopeMeta{
			RequestID: "abc123",
			Timestamp: time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC),
			Command:   "exec",
		},
	}
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, testEnvelope(), "json"); err != nil {
		t.Fatalf("Render: %v", err)
	}

	var decoded model.Envelope
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not json: %v\n%s", err, buf.String())
	}
	if decoded.Version != model.EnvelopeVersion || !decoded.Success {
		t.Fatalf("decoded = %+v", decoded)
	}
	if decoded.Meta.RequestID != "abc123" {
		t.Fatalf("meta = %+v", decoded.Meta)
	}
	// The error field is always present so scripts can branch on it.
	if !strings.Contains(buf.String(), `"error": null`) {
		t.Fatalf("json output omits the error field:\n%s", buf.String())
	}
}

func TestRenderPlain(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, testEnvelope(), "plain"); err != nil {
		t.Fatalf("Render: %v", err)
	}
	line := buf.String()
	if !strings.Contains(line, "success=true") {
		t.Fatalf("plain output = %q", line)
	}
	if strings.Contains(line, "error=") {
		t.Fatalf("plain output includes a nil error: %q", line)
	}
}

func TestResultData(t *testing.T) {
	msg := ResultData(command.Message("hello")).(map[string]any)
	if msg["kind"] != "message" || msg["message"] != "hello" {
		t.Fatalf("message data = %v", msg)
	}

	table := ResultData(command.Table([]string{"a", "b"}, [][]string{{"1", "2"}})).(map[string]any)
	if table["kind"] != "table" {
		t.Fatalf("table data = %v", table)
	}
	if cols := table["columns"].([]string); len(cols) != 2 {
		t.Fatalf("columns = %v", cols)
	}

	tx := ResultData(command.Transaction(command.TxRequest{ChainID: 1, To: "0xabc", Summary: "swap"})).(map[string]any)
	if tx["kind"] != "transaction_request" {
		t.Fatalf("tx data = %v", tx)
	}
	if req := tx["transaction"].(*command.TxRequest); req.ChainID != 1 || req.To != "0xabc" {
		t.Fatalf("tx payload = %+v", req)
	}

	cleared := ResultData(command.Cleared()).(map[string]any)
	if cleared["kind"] != "cleared" || len(cleared) != 1 {
		t.Fatalf("cleared data = %v", cleared)
	}
}

func TestRenderTableAlignment(t *testing.T) {
	var buf bytes.Buffer
	err := RenderTable(&buf, command.TableData{
		Columns: []string{"symbol", "price"},
		Rows: [][]string{
			{"WETH", "4012.55"},
			{"USDC", "1.00"},
		},
	})
	if err != nil {
		t.Fatalf("RenderTable: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}
	// symbol is the widest cell in its column at 6 chars; price cells line up
	// two spaces after it.
	if lines[0] != "symbol  price" {
		t.Fatalf("header = %q", lines[0])
	}
	if lines[1] != "WETH    4012.55" {
		t.Fatalf("row = %q", lines[1])
	}
	if lines[2] != "USDC    1.00" {
		t.Fatalf("row = %q", lines[2])
	}
}
