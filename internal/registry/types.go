package registry

import (
	"github.com/defiterm/defiterm/internal/command"
	"github.com/defiterm/defiterm/internal/session"
)

// Method records how an input token was matched to a command.
type Method string

const (
	MethodExact          Method = "exact"
	MethodAlias          Method = "alias"
	MethodFuzzy          Method = "fuzzy"
	MethodProtocolScoped Method = "protocol-scoped"
)

// ResolutionContext carries everything a resolution operator may consult: the
// raw input token, an optional explicit protocol override (a hard constraint,
// not a hint), user preferences, and the current session.
type ResolutionContext struct {
	Input            string
	ExplicitProtocol string
	Preferences      session.Preferences
	Session          *session.Context
}

// ResolvedCommand is the outcome of a successful resolution. Confidence is
// only meaningful for fuzzy matches; exact resolutions report 1.
type ResolvedCommand struct {
	Command    command.Command
	Protocol   string
	Method     Method
	Confidence float64
}

// Suggestion is the autocomplete-facing projection of a resolved command.
type Suggestion struct {
	ID          string   `json:"id"`
	Aliases     []string `json:"aliases,omitempty"`
	Description string   `json:"description,omitempty"`
	Protocol    string   `json:"protocol,omitempty"`
}
