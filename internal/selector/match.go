package selector

import (
	"github.com/raaihank/relay-scrubber/internal/processor"
)

// Matches reports whether spec selects the node at state. Nodes marked as
// not containing PII never match, and nodes that may contain PII only match
// specific selectors.
func Matches(spec Spec, state *processor.State) bool {
	if spec == nil || state == nil {
		return false
	}
	switch state.Attrs().Pii {
	case processor.PiiFalse:
		return false
	case processor.PiiMaybe:
		if !spec.IsSpecific() {
			return false
		}
	}
	return spec.matchState(state)
}

func (a And) matchState(state *processor.State) bool {
	return a.Left.matchState(state) && a.Right.matchState(state)
}

func (o Or) matchState(state *processor.State) bool {
	return o.Left.matchState(state) || o.Right.matchState(state)
}

func (n Not) matchState(state *processor.State) bool {
	return !n.Inner.matchState(state)
}

// matchState compares the path with the innermost segments of state. A deep
// wildcard absorbs zero or more segments.
func (p Path) matchState(state *processor.State) bool {
	if state.IsRoot() {
		return false
	}
	fixed := 0
	for _, item := range p {
		if item.Kind != ItemDeepWildcard {
			fixed++
		}
	}
	if fixed > state.Depth() {
		return false
	}

	// entered states, root side first; the root has no segment
	states := make([]*processor.State, state.Depth())
	n := len(states)
	state.Iter(func(s *processor.State) bool {
		if !s.IsRoot() && n > 0 {
			n--
			states[n] = s
		}
		return true
	})
	states = states[n:]

	if fixed == len(p) {
		// no deep wildcard: plain suffix comparison
		offset := len(states) - len(p)
		for i, item := range p {
			if !item.matchesState(states[offset+i]) {
				return false
			}
		}
		return true
	}

	for start := range states {
		if p.matchFrom(states, start) {
			return true
		}
	}
	return false
}

// matchFrom reports whether p matches states[start:] through to the
// innermost state
func (p Path) matchFrom(states []*processor.State, start int) bool {
	if len(p) == 0 {
		return start == len(states)
	}
	if p[0].Kind == ItemDeepWildcard {
		for next := start; next <= len(states); next++ {
			if p[1:].matchFrom(states, next) {
				return true
			}
		}
		return false
	}
	if start >= len(states) || !p[0].matchesState(states[start]) {
		return false
	}
	return p[1:].matchFrom(states, start+1)
}
