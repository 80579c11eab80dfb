// Package autocomplete layers interactive suggestion behavior on top of the
// registry's fuzzy resolver: prefix-friendly ranking comes from the resolver
// itself; this package adds input suppression rules, debounced recomputation
// with stale-result discard, list navigation and single-match auto-fill.
package autocomplete

import (
	"strings"
	"sync"

	"github.com/defiterm/defiterm/internal/registry"
)

// Options tune the interactive behavior.
type Options struct {
	// Threshold is the minimum fuzzy confidence for a suggestion.
	Threshold float64
	// MinChars suppresses suggestions for shorter trimmed input.
	MinChars int
	// Limit caps the suggestion list size.
	Limit int
}

// Snapshot is the current suggestion state handed to the UI.
type Snapshot struct {
	Input       string
	Suggestions []registry.Suggestion
	Selected    int
	Visible     bool
	// AutoFilled carries the completed token when exactly one suggestion
	// matched; the UI replaces the input instead of opening a list.
	AutoFilled string
}

// Engine recomputes suggestions as the input changes. Each input change gets a
// monotonically increasing request id; a computation is only applied if its id
// is still the latest when it completes, so stale in-flight results are
// discarded regardless of arrival order.
type Engine struct {
	mu        sync.Mutex
	reg       *registry.Registry
	opts      Options
	debouncer *Debouncer

	seq         uint64
	input       string
	suggestions []registry.Suggestion
	selected    int
	visible     bool
	autoFilled  string
}

func NewEngine(reg *registry.Registry, opts Options, debouncer *Debouncer) *Engine {
	if opts.Limit <= 0 {
		opts.Limit = 8
	}
	if opts.MinChars <= 0 {
		opts.MinChars = 1
	}
	if debouncer == nil {
		debouncer = NewDebouncer(0)
	}
	return &Engine{reg: reg, opts: opts, debouncer: debouncer}
}

// SetInput registers a new input value. Suppression rules apply immediately;
// recomputation is debounced.
func (e *Engine) SetInput(input string, rc registry.ResolutionContext) {
	e.mu.Lock()
	e.seq++
	seq := e.seq
	e.input = input
	e.autoFilled = ""
	trimmed := strings.TrimSpace(input)
	// A space means the user is typing arguments, not a command token.
	if len(trimmed) < e.opts.MinChars || strings.Contains(input, " ") {
		e.suggestions = nil
		e.selected = 0
		e.visible = false
		e.mu.Unlock()
		e.debouncer.Cancel()
		return
	}
	e.mu.Unlock()

	rc.Input = trimmed
	e.debouncer.Debounce(func() {
		e.compute(seq, rc)
	})
}

func (e *Engine) compute(seq uint64, rc registry.ResolutionContext) {
	suggestions := e.reg.Suggest(rc, e.opts.Threshold)
	if len(suggestions) > e.opts.Limit {
		suggestions = suggestions[:e.opts.Limit]
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if seq != e.seq {
		// A newer input superseded this computation.
		return
	}
	e.selected = 0
	if len(suggestions) == 1 {
		e.suggestions = suggestions
		e.visible = false
		e.autoFilled = suggestions[0].ID
		return
	}
	e.suggestions = suggestions
	e.visible = len(suggestions) > 0
}

// Snapshot returns the current suggestion state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Input:       e.input,
		Suggestions: append([]registry.Suggestion(nil), e.suggestions...),
		Selected:    e.selected,
		Visible:     e.visible,
		AutoFilled:  e.autoFilled,
	}
}

// Next moves the selection down, wrapping around. Navigation never re-queries;
// it operates purely on the already-computed list.
func (e *Engine) Next() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.suggestions) == 0 {
		return
	}
	e.selected = (e.selected + 1) % len(e.suggestions)
}

// Prev moves the selection up, wrapping around.
func (e *Engine) Prev() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.suggestions) == 0 {
		return
	}
	e.selected = (e.selected - 1 + len(e.suggestions)) % len(e.suggestions)
}

// Select jumps to a direct index. Out-of-range indices are ignored.
func (e *Engine) Select(index int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if index < 0 || index >= len(e.suggestions) {
		return
	}
	e.selected = index
}

// Selected returns the currently highlighted suggestion.
func (e *Engine) Selected() (registry.Suggestion, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.suggestions) == 0 {
		return registry.Suggestion{}, false
	}
	return e.suggestions[e.selected], true
}
