package annotated

import "sort"

// Value is one node of an event payload. The concrete types are Bool, I64,
// U64, F64, String, Array and *Object. A JSON null is represented by the
// absence of a value (a nil Value inside an Annotated), so there is no
// separate null variant.
type Value interface {
	isValue()
}

// Bool is a boolean leaf
type Bool bool

// I64 is a signed integer leaf
type I64 int64

// U64 is an unsigned integer leaf that does not fit into I64
type U64 uint64

// F64 is a floating point leaf
type F64 float64

// String is a text leaf
type String string

// Array is an ordered sequence of annotated values
type Array []*Annotated

func (Bool) isValue()    {}
func (I64) isValue()     {}
func (U64) isValue()     {}
func (F64) isValue()     {}
func (String) isValue()  {}
func (Array) isValue()   {}
func (*Object) isValue() {}

// Annotated pairs an optional value with its metadata. Meta survives when
// the value is removed.
type Annotated struct {
	Value Value
	Meta  Meta
}

// New wraps a value without metadata
func New(v Value) *Annotated {
	return &Annotated{Value: v}
}

// Empty reports whether the node carries neither a value nor metadata
func (a *Annotated) Empty() bool {
	return a == nil || (a.Value == nil && a.Meta.IsEmpty())
}

// DeleteValue clears the value and keeps the metadata
func (a *Annotated) DeleteValue() {
	a.Value = nil
}

// Object is a string keyed mapping that preserves insertion order.
type Object struct {
	keys  []string
	items map[string]*Annotated
}

// NewObject creates an empty ordered object
func NewObject() *Object {
	return &Object{items: make(map[string]*Annotated)}
}

// Len returns the number of entries
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Keys returns the keys in insertion order
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Get looks up an entry by key
func (o *Object) Get(key string) (*Annotated, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.items[key]
	return v, ok
}

// Set inserts or replaces an entry. Replacing keeps the original position.
func (o *Object) Set(key string, v *Annotated) {
	if v == nil {
		v = &Annotated{}
	}
	if _, exists := o.items[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.items[key] = v
}

// Delete removes an entry
func (o *Object) Delete(key string) {
	if _, exists := o.items[key]; !exists {
		return
	}
	delete(o.items, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// Range calls fn for every entry in insertion order until fn returns false.
// The key set is snapshotted first, so fn may modify the object.
func (o *Object) Range(fn func(key string, v *Annotated) bool) {
	for _, key := range o.Keys() {
		v, ok := o.items[key]
		if !ok {
			continue
		}
		if !fn(key, v) {
			return
		}
	}
}

// KindName returns the JSON kind of a value for error reporting
func KindName(v Value) string {
	switch v.(type) {
	case nil:
		return "null"
	case Bool:
		return "boolean"
	case I64, U64, F64:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case *Object:
		return "object"
	default:
		return "unknown"
	}
}

// ToAny converts a value into plain Go data (map, slice, scalars). Object
// order is lost in the conversion.
func ToAny(v Value) any {
	switch t := v.(type) {
	case nil:
		return nil
	case Bool:
		return bool(t)
	case I64:
		return int64(t)
	case U64:
		return uint64(t)
	case F64:
		return float64(t)
	case String:
		return string(t)
	case Array:
		out := make([]any, len(t))
		for i, item := range t {
			if item != nil {
				out[i] = ToAny(item.Value)
			}
		}
		return out
	case *Object:
		out := make(map[string]any, t.Len())
		t.Range(func(key string, item *Annotated) bool {
			out[key] = ToAny(item.Value)
			return true
		})
		return out
	default:
		return nil
	}
}

// FromAny converts plain Go data into a value. Map entries are inserted in
// sorted key order.
func FromAny(in any) Value {
	switch t := in.(type) {
	case nil:
		return nil
	case Value:
		return t
	case bool:
		return Bool(t)
	case int:
		return I64(t)
	case int64:
		return I64(t)
	case uint64:
		return U64(t)
	case float64:
		return F64(t)
	case string:
		return String(t)
	case []any:
		arr := make(Array, len(t))
		for i, item := range t {
			arr[i] = New(FromAny(item))
		}
		return arr
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := NewObject()
		for _, k := range keys {
			obj.Set(k, New(FromAny(t[k])))
		}
		return obj
	default:
		return nil
	}
}

// AsInt returns the value as an int when it is an integral number
func AsInt(v Value) (int, bool) {
	switch t := v.(type) {
	case I64:
		return int(t), true
	case U64:
		return int(t), true
	case F64:
		if float64(int(t)) == float64(t) {
			return int(t), true
		}
	}
	return 0, false
}
