package model

import "time"

const EnvelopeVersion = "v1"

// Envelope is the stable output contract emitted by every subcommand, in both
// json and plain modes.
type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID  string          `json:"request_id"`
	Timestamp  time.Time       `json:"timestamp"`
	Command    string          `json:"command"`
	Resolution *MetaResolution `json:"resolution,omitempty"`
}

// MetaResolution records how the input token was mapped to a command.
type MetaResolution struct {
	CommandID  string  `json:"command_id"`
	Protocol   string  `json:"protocol,omitempty"`
	Method     string  `json:"method"`
	Confidence float64 `json:"confidence"`
}

// PluginStatus is the row shape for `plugins list` and `plugins health`.
type PluginStatus struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	State    string `json:"state"`
	Commands int    `json:"commands"`
	Error    string `json:"error,omitempty"`
	Healthy  *bool  `json:"healthy,omitempty"`
}

// HistoryRow is the row shape for `history list`.
type HistoryRow struct {
	CommandID  string    `json:"command_id"`
	Protocol   string    `json:"protocol,omitempty"`
	Args       []string  `json:"args,omitempty"`
	ResultKind string    `json:"result_kind"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	ExecutedAt time.Time `json:"executed_at"`
}
