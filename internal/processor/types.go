package processor

import (
	"strings"

	"github.com/raaihank/relay-scrubber/internal/annotated"
)

// ValueType classifies a node for type selectors such as $string or $http.
// The first six are derived from the runtime value; the rest are declared
// by a schema for well-known event interfaces.
type ValueType int

const (
	TypeString ValueType = iota
	TypeNumber
	TypeBoolean
	TypeDateTime
	TypeArray
	TypeObject
	TypeEvent
	TypeException
	TypeStacktrace
	TypeFrame
	TypeRequest
	TypeUser
	TypeLogEntry
	TypeMessage
	TypeThread
	TypeBreadcrumb

	numValueTypes
)

var valueTypeNames = [numValueTypes]string{
	TypeString:     "string",
	TypeNumber:     "number",
	TypeBoolean:    "boolean",
	TypeDateTime:   "datetime",
	TypeArray:      "array",
	TypeObject:     "object",
	TypeEvent:      "event",
	TypeException:  "error",
	TypeStacktrace: "stack",
	TypeFrame:      "frame",
	TypeRequest:    "http",
	TypeUser:       "user",
	TypeLogEntry:   "logentry",
	TypeMessage:    "message",
	TypeThread:     "thread",
	TypeBreadcrumb: "breadcrumb",
}

var valueTypeAliases = map[string]ValueType{
	"bool":       TypeBoolean,
	"exception":  TypeException,
	"stacktrace": TypeStacktrace,
	"request":    TypeRequest,
}

// String returns the canonical selector name of the type
func (t ValueType) String() string {
	if t < 0 || t >= numValueTypes {
		return "unknown"
	}
	return valueTypeNames[t]
}

// IsPrimitive reports whether the type is derived from the runtime value
// rather than declared by a schema.
func (t ValueType) IsPrimitive() bool {
	return t <= TypeObject
}

// ParseValueType resolves a type name or alias, case-insensitively
func ParseValueType(name string) (ValueType, bool) {
	name = strings.ToLower(name)
	for i, n := range valueTypeNames {
		if n == name {
			return ValueType(i), true
		}
	}
	t, ok := valueTypeAliases[name]
	return t, ok
}

// TypeOf returns the primitive type of a runtime value
func TypeOf(v annotated.Value) (ValueType, bool) {
	switch v.(type) {
	case annotated.String:
		return TypeString, true
	case annotated.I64, annotated.U64, annotated.F64:
		return TypeNumber, true
	case annotated.Bool:
		return TypeBoolean, true
	case annotated.Array:
		return TypeArray, true
	case *annotated.Object:
		return TypeObject, true
	default:
		return 0, false
	}
}

// ValueTypes is a set of value types
type ValueTypes uint32

// TypesOf builds a set
func TypesOf(types ...ValueType) ValueTypes {
	var s ValueTypes
	for _, t := range types {
		s = s.With(t)
	}
	return s
}

// With returns the set including t
func (s ValueTypes) With(t ValueType) ValueTypes {
	return s | 1<<uint(t)
}

// Has reports whether t is in the set
func (s ValueTypes) Has(t ValueType) bool {
	return s&(1<<uint(t)) != 0
}

// Union merges two sets
func (s ValueTypes) Union(other ValueTypes) ValueTypes {
	return s | other
}

// List returns the members in declaration order
func (s ValueTypes) List() []ValueType {
	var out []ValueType
	for t := ValueType(0); t < numValueTypes; t++ {
		if s.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

// Pii classifies whether a field may contain personal data. The zero value
// is PiiTrue, so fields without explicit attributes are scrubbed.
type Pii int

const (
	// PiiTrue fields are always considered by PII rules
	PiiTrue Pii = iota
	// PiiFalse fields are never touched by PII rules
	PiiFalse
	// PiiMaybe fields only match selectors that address them specifically
	PiiMaybe
)

func (p Pii) String() string {
	switch p {
	case PiiTrue:
		return "true"
	case PiiFalse:
		return "false"
	case PiiMaybe:
		return "maybe"
	default:
		return "unknown"
	}
}

// FieldAttrs are the schema constraints of a field
type FieldAttrs struct {
	Pii      Pii
	Required bool
	NonEmpty bool
	// MaxChars trims longer strings; zero means unlimited
	MaxChars int
	// PairList marks arrays of [key, value] pairs
	PairList bool
	// Expected limits the accepted primitive kinds; empty accepts anything
	Expected ValueTypes
}

// Inherit returns the attributes an undescribed child receives
func (a FieldAttrs) Inherit() FieldAttrs {
	return FieldAttrs{Pii: a.Pii}
}
