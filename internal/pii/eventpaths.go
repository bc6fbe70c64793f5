package pii

import (
	"sort"

	"github.com/raaihank/relay-scrubber/internal/annotated"
	"github.com/raaihank/relay-scrubber/internal/processor"
	"github.com/raaihank/relay-scrubber/internal/selector"
)

// SelectorSuggestions walks a tree and returns the sorted set of selectors
// that could address its data in a PII config. Nodes the PII processor would
// never touch are skipped, so every suggestion can actually match.
func SelectorSuggestions(tree *annotated.Annotated, opts ...processor.Option) []string {
	c := &pathCollector{paths: map[string]struct{}{}}
	if err := processor.ProcessValue(tree, c, processor.NewRootState(opts...)); err != nil {
		return nil
	}

	out := make([]string, 0, len(c.paths))
	for p := range c.paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

type pathCollector struct {
	paths map[string]struct{}
}

func (c *pathCollector) insert(p selector.Path, state *processor.State) {
	if state.Attrs().Pii == processor.PiiMaybe && !p.IsSpecific() {
		return
	}
	c.paths[p.String()] = struct{}{}
}

func (c *pathCollector) BeforeProcess(value annotated.Value, _ *annotated.Meta, state *processor.State) processor.Action {
	if value == nil || state.IsRoot() || state.Attrs().Pii == processor.PiiFalse {
		return processor.Keep()
	}
	if _, ok := value.(annotated.Bool); ok {
		return processor.Keep()
	}
	_, isArray := value.(annotated.Array)
	_, isObject := value.(*annotated.Object)
	container := isArray || isObject
	// fields that only may hold PII are suggested by position, never by type
	typed := state.Attrs().Pii != processor.PiiMaybe

	// items are collected innermost first
	var items []selector.PathItem
	for cur := state; cur != nil && !cur.IsRoot(); cur = cur.Parent() {
		if typed {
			c.insertTyped(cur, state, items, container)
		}

		seg := cur.Segment()
		switch seg.Kind {
		case processor.SegmentKey:
			items = append(items, selector.Key(seg.Key))
		case processor.SegmentIndex:
			if seg.Index != 0 {
				return processor.Keep()
			}
			items = append(items, selector.Wildcard())
		}
	}

	if len(items) > 0 {
		c.insert(reversePath(items), state)
	}
	return processor.Keep()
}

// insertTyped suggests the type selectors cur's types give the node at
// state, such as $string for a leaf or $http.headers below a request
func (c *pathCollector) insertTyped(cur, state *processor.State, items []selector.PathItem, container bool) {
	for _, t := range cur.Types().List() {
		switch {
		case t == processor.TypeObject || t == processor.TypeArray:
		case t.IsPrimitive():
			if cur == state {
				c.insert(selector.Path{selector.Type(t)}, state)
			}
		case len(items) == 0 && container:
		default:
			c.insert(reversePath(items, selector.Type(t)), state)
		}
	}
}

// reversePath builds an outermost first path from innermost first items,
// prefixed by head when given.
func reversePath(items []selector.PathItem, head ...selector.PathItem) selector.Path {
	out := make(selector.Path, 0, len(items)+len(head))
	out = append(out, head...)
	for i := len(items) - 1; i >= 0; i-- {
		out = append(out, items[i])
	}
	return out
}
