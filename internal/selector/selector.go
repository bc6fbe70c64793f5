package selector

import (
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/raaihank/relay-scrubber/internal/processor"
)

// ItemKind is the kind of one path item
type ItemKind int

const (
	ItemKey ItemKind = iota
	ItemIndex
	ItemWildcard
	ItemDeepWildcard
	ItemType
	ItemContainsKey
)

// PathItem is one element of a selector path
type PathItem struct {
	Kind  ItemKind
	Key   string
	Index int
	Type  processor.ValueType
}

// Key matches an object key, ignoring case
func Key(key string) PathItem { return PathItem{Kind: ItemKey, Key: key} }

// Index matches an array index
func Index(i int) PathItem { return PathItem{Kind: ItemIndex, Index: i} }

// Wildcard matches any single segment
func Wildcard() PathItem { return PathItem{Kind: ItemWildcard} }

// DeepWildcard matches zero or more segments
func DeepWildcard() PathItem { return PathItem{Kind: ItemDeepWildcard} }

// Type matches nodes of a value type
func Type(t processor.ValueType) PathItem { return PathItem{Kind: ItemType, Type: t} }

// ContainsKey matches keys containing a substring, ignoring case
func ContainsKey(sub string) PathItem { return PathItem{Kind: ItemContainsKey, Key: sub} }

// IsSpecific reports whether the item addresses a node on purpose rather
// than by accident of shape. Primitive type items are treated like deep
// wildcards; schema types such as $http are specific, and so is * as a
// position inside an otherwise specific path.
func (p PathItem) IsSpecific() bool {
	switch p.Kind {
	case ItemKey, ItemIndex, ItemWildcard:
		return true
	case ItemType:
		return !p.Type.IsPrimitive()
	default:
		return false
	}
}

func (p PathItem) matchesState(state *processor.State) bool {
	switch p.Kind {
	case ItemWildcard, ItemDeepWildcard:
		return true
	case ItemType:
		return state.Types().Has(p.Type)
	case ItemIndex:
		idx, ok := state.Index()
		return ok && idx == p.Index
	case ItemKey:
		key, ok := state.Key()
		return ok && strings.EqualFold(key, p.Key)
	case ItemContainsKey:
		key, ok := state.Key()
		return ok && strings.Contains(strings.ToLower(key), strings.ToLower(p.Key))
	default:
		return false
	}
}

func (p PathItem) String() string {
	switch p.Kind {
	case ItemKey:
		return formatKey(p.Key)
	case ItemIndex:
		return strconv.Itoa(p.Index)
	case ItemWildcard:
		return "*"
	case ItemDeepWildcard:
		return "**"
	case ItemType:
		return "$" + p.Type.String()
	case ItemContainsKey:
		return "*" + formatKey(p.Key) + "*"
	default:
		return "?"
	}
}

func formatKey(key string) string {
	if isBareKey(key) && !isDigits(key) {
		return key
	}
	return "'" + strings.ReplaceAll(key, "'", "''") + "'"
}

func isKeyChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == '-'
}

func isBareKey(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isKeyChar(s[i]) {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Spec is a parsed selector. The implementations are Path, And, Or and Not.
type Spec interface {
	String() string
	IsSpecific() bool
	matchState(state *processor.State) bool
}

// Path matches the innermost segments of the current position
type Path []PathItem

// And matches when both sides match
type And struct {
	Left, Right Spec
}

// Or matches when either side matches
type Or struct {
	Left, Right Spec
}

// Not inverts a selector
type Not struct {
	Inner Spec
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, item := range p {
		parts[i] = item.String()
	}
	return strings.Join(parts, ".")
}

func (a And) String() string { return "(" + a.Left.String() + " & " + a.Right.String() + ")" }
func (o Or) String() string  { return "(" + o.Left.String() + " | " + o.Right.String() + ")" }
func (n Not) String() string { return "~" + n.Inner.String() }

// IsSpecific reports whether every item of the path is specific. A path
// made of wildcards only is not.
func (p Path) IsSpecific() bool {
	positional := false
	for _, item := range p {
		if !item.IsSpecific() {
			return false
		}
		if item.Kind != ItemWildcard {
			positional = true
		}
	}
	return positional
}

func (a And) IsSpecific() bool { return a.Left.IsSpecific() || a.Right.IsSpecific() }
func (o Or) IsSpecific() bool  { return o.Left.IsSpecific() && o.Right.IsSpecific() }

// IsSpecific is always false: excluding a field does not address anything.
func (n Not) IsSpecific() bool { return false }

// Guard returns spec restricted to positions outside the given keys, as
// ((spec & ~k1) & ~k2)...
func Guard(spec Spec, keys ...string) Spec {
	for _, k := range keys {
		spec = And{Left: spec, Right: Not{Inner: Path{Key(k)}}}
	}
	return spec
}

// Compiled wraps a Spec so that it encodes as a JSON string.
type Compiled struct {
	Spec
}

// MarshalJSON encodes the selector as its canonical string
func (c Compiled) MarshalJSON() ([]byte, error) {
	return json.MarshalWithOption(c.Spec.String(), json.DisableHTMLEscape())
}

// UnmarshalJSON parses the selector from a JSON string
func (c *Compiled) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	spec, err := Parse(s)
	if err != nil {
		return err
	}
	c.Spec = spec
	return nil
}
