package processor

import (
	"strconv"
	"strings"

	"github.com/raaihank/relay-scrubber/internal/annotated"
)

// DefaultMaxDepth bounds the nesting a walk descends into
const DefaultMaxDepth = 128

// SegmentKind tells how a state was entered
type SegmentKind int

const (
	SegmentRoot SegmentKind = iota
	SegmentKey
	SegmentIndex
)

// Segment is one step of a path
type Segment struct {
	Kind  SegmentKind
	Key   string
	Index int
}

// KeySegment creates an object key segment
func KeySegment(key string) Segment {
	return Segment{Kind: SegmentKey, Key: key}
}

// IndexSegment creates an array index segment
func IndexSegment(index int) Segment {
	return Segment{Kind: SegmentIndex, Index: index}
}

func (s Segment) String() string {
	switch s.Kind {
	case SegmentKey:
		return s.Key
	case SegmentIndex:
		return strconv.Itoa(s.Index)
	default:
		return ""
	}
}

// Schema describes the well-known shape of a payload. A nil child means the
// subtree is not described and inherits its parent's PII classification.
type Schema interface {
	Attrs() FieldAttrs
	Types() ValueTypes
	Child(seg Segment) Schema
}

// Option configures a root state
type Option func(*walk)

// WithSchema attaches a schema to the walk
func WithSchema(s Schema) Option {
	return func(w *walk) { w.schema = s }
}

// WithMaxDepth changes the depth limit. Values below one keep the default.
func WithMaxDepth(depth int) Option {
	return func(w *walk) {
		if depth > 0 {
			w.maxDepth = depth
		}
	}
}

// walk holds settings shared by every state of one traversal
type walk struct {
	schema   Schema
	maxDepth int
}

// State is the position of a traversal. The parent link is a plain back
// reference used for path reconstruction; states never modify their parents.
type State struct {
	parent  *State
	segment Segment
	attrs   FieldAttrs
	types   ValueTypes
	depth   int
	schema  Schema
	walk    *walk
}

// NewRootState creates the state for the root of a payload
func NewRootState(opts ...Option) *State {
	w := &walk{maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(w)
	}
	s := &State{walk: w, schema: w.schema}
	if w.schema != nil {
		s.attrs = w.schema.Attrs()
		s.types = w.schema.Types()
	}
	return s
}

// EnterKey creates the state of an object entry
func (s *State) EnterKey(key string, v annotated.Value) *State {
	return s.enter(KeySegment(key), v)
}

// EnterIndex creates the state of an array element
func (s *State) EnterIndex(index int, v annotated.Value) *State {
	return s.enter(IndexSegment(index), v)
}

func (s *State) enter(seg Segment, v annotated.Value) *State {
	child := &State{
		parent:  s,
		segment: seg,
		depth:   s.depth + 1,
		walk:    s.walk,
	}
	if s.schema != nil {
		child.schema = s.schema.Child(seg)
	}
	if child.schema != nil {
		child.attrs = child.schema.Attrs()
		child.types = child.schema.Types()
	} else {
		child.attrs = s.attrs.Inherit()
	}
	if t, ok := TypeOf(v); ok {
		child.types = child.types.With(t)
	}
	return child
}

// Parent returns the enclosing state, or nil at the root
func (s *State) Parent() *State { return s.parent }

// Segment returns the step that entered this state
func (s *State) Segment() Segment { return s.segment }

// Key returns the object key of this state
func (s *State) Key() (string, bool) {
	if s.segment.Kind != SegmentKey {
		return "", false
	}
	return s.segment.Key, true
}

// Index returns the array index of this state
func (s *State) Index() (int, bool) {
	if s.segment.Kind != SegmentIndex {
		return 0, false
	}
	return s.segment.Index, true
}

// Attrs returns the effective field attributes
func (s *State) Attrs() FieldAttrs { return s.attrs }

// Schema returns the schema node describing this state, nil when undescribed
func (s *State) Schema() Schema { return s.schema }

// Types returns the value types of the current node
func (s *State) Types() ValueTypes { return s.types }

// Depth is zero at the root and grows by one per entered segment
func (s *State) Depth() int { return s.depth }

// MaxDepth returns the configured depth limit of the walk
func (s *State) MaxDepth() int { return s.walk.maxDepth }

// IsRoot reports whether this is the root state
func (s *State) IsRoot() bool { return s.parent == nil }

// Iter walks from this state outward to the root, stopping when fn
// returns false.
func (s *State) Iter(fn func(*State) bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if !fn(cur) {
			return
		}
	}
}

// Path renders the dotted path from the root, e.g. "request.headers.0"
func (s *State) Path() string {
	var segs []string
	s.Iter(func(cur *State) bool {
		if cur.segment.Kind != SegmentRoot {
			segs = append(segs, cur.segment.String())
		}
		return true
	})
	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
	return strings.Join(segs, ".")
}
