package registry

import (
	"sort"
	"strings"

	"github.com/defiterm/defiterm/internal/command"
)

// candidate is one scoreable token tagged with its owning command.
type candidate struct {
	token    string
	cmd      command.Command
	protocol string
	byAlias  bool
	score    float64
}

// ResolveFuzzy maps input text to a ranked, finite list of approximate matches
// above the confidence threshold. The candidate set spans every command id and
// alias across core, aliased and all fibers; a command reachable through
// several aliases appears once, scored by its best-matching token.
func (r *Registry) ResolveFuzzy(rc ResolutionContext, threshold float64) []ResolvedCommand {
	input := strings.TrimSpace(rc.Input)
	if input == "" {
		return nil
	}

	candidates := r.collectCandidates(rc)
	scored := candidates[:0]
	for _, c := range candidates {
		c.score = similarity(input, c.token)
		if c.score < threshold {
			continue
		}
		scored = append(scored, c)
	}

	// Confidence descending; ties broken by exact-id over alias, global scope
	// over protocol-scoped, then lexicographic id.
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.byAlias != b.byAlias {
			return !a.byAlias
		}
		aScoped := a.cmd.Scope == command.ScopeProtocolScoped
		bScoped := b.cmd.Scope == command.ScopeProtocolScoped
		if aScoped != bScoped {
			return !aScoped
		}
		if a.cmd.ID != b.cmd.ID {
			return a.cmd.ID < b.cmd.ID
		}
		return a.protocol < b.protocol
	})

	out := make([]ResolvedCommand, 0, len(scored))
	seen := map[string]struct{}{}
	for _, c := range scored {
		key := commandKey(c.cmd, c.protocol)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ResolvedCommand{
			Command:    c.cmd,
			Protocol:   c.protocol,
			Method:     MethodFuzzy,
			Confidence: c.score,
		})
	}
	return out
}

// Suggest projects fuzzy matches into autocomplete suggestions.
func (r *Registry) Suggest(rc ResolutionContext, threshold float64) []Suggestion {
	matches := r.ResolveFuzzy(rc, threshold)
	out := make([]Suggestion, 0, len(matches))
	for _, m := range matches {
		out = append(out, Suggestion{
			ID:          m.Command.ID,
			Aliases:     append([]string(nil), m.Command.Aliases...),
			Description: m.Command.Description,
			Protocol:    m.Protocol,
		})
	}
	return out
}

func (r *Registry) collectCandidates(rc ResolutionContext) []candidate {
	out := []candidate{}
	appendCommand := func(cmd command.Command, protocol string) {
		out = append(out, candidate{token: cmd.ID, cmd: cmd, protocol: protocol})
		for _, alias := range cmd.Aliases {
			out = append(out, candidate{token: alias, cmd: cmd, protocol: protocol, byAlias: true})
		}
	}

	for _, cmd := range r.CoreCommands() {
		appendCommand(cmd, "")
	}
	for _, cmd := range r.AliasedCommands() {
		appendCommand(cmd, r.boundProtocol(rc, cmd.ID))
	}
	for _, f := range r.Fibers() {
		for _, cmd := range f.Commands() {
			appendCommand(cmd, f.ID())
		}
	}
	return out
}

func commandKey(cmd command.Command, protocol string) string {
	return cmd.Scope.String() + "|" + protocol + "|" + cmd.ID
}
