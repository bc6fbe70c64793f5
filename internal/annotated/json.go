package annotated

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strconv"

	json "github.com/goccy/go-json"
)

// MetaKey is the name of the metadata sidecar embedded in a root object
const MetaKey = "_meta"

// FromJSON decodes a JSON document into an annotated tree. Object key order
// is preserved. A "_meta" sidecar on a root object is removed from the value
// and merged into the metadata of the nodes it describes.
func FromJSON(data []byte) (*Annotated, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	value, err := decodeValue(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to decode json: %w", err)
	}

	root := &Annotated{Value: value}
	if obj, ok := value.(*Object); ok {
		if sidecar, found := obj.Get(MetaKey); found {
			obj.Delete(MetaKey)
			ApplyMetaTree(root, sidecar.Value)
		}
	}
	return root, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := NewObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("expected object key, got %v", keyTok)
				}
				child, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, &Annotated{Value: child})
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			arr := Array{}
			for dec.More() {
				child, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, &Annotated{Value: child})
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", rune(t))
		}
	case bool:
		return Bool(t), nil
	case json.Number:
		return parseNumber(string(t))
	case float64:
		return F64(t), nil
	case string:
		return String(t), nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected token %v", tok)
	}
}

func parseNumber(s string) (Value, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return I64(i), nil
	}
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return U64(u), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return F64(f), nil
}

// ToJSON encodes the tree. When the root is an object and the tree carries
// metadata, the metadata is embedded under "_meta". Other roots encode as
// their value only; use MetaJSON to get their metadata.
func (a *Annotated) ToJSON() ([]byte, error) {
	var buf bytes.Buffer
	tree := buildMetaTree(a)
	obj, isObject := a.Value.(*Object)

	if tree == nil || !isObject {
		if err := writeValue(&buf, a.Value); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	buf.WriteByte('{')
	n := 0
	var err error
	obj.Range(func(key string, child *Annotated) bool {
		if n > 0 {
			buf.WriteByte(',')
		}
		n++
		if err = writeString(&buf, key); err != nil {
			return false
		}
		buf.WriteByte(':')
		err = writeValue(&buf, child.Value)
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	if n > 0 {
		buf.WriteByte(',')
	}
	buf.WriteString(`"` + MetaKey + `":`)
	if err := tree.write(&buf); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ToJSONPretty is ToJSON with two-space indentation
func (a *Annotated) ToJSONPretty() ([]byte, error) {
	raw, err := a.ToJSON()
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// ValueJSON encodes the value without any metadata
func (a *Annotated) ValueJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, a.Value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MetaJSON encodes only the metadata tree. It returns nil when the tree
// carries no metadata at all.
func (a *Annotated) MetaJSON() ([]byte, error) {
	tree := buildMetaTree(a)
	if tree == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := tree.write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeString(buf *bytes.Buffer, s string) error {
	raw, err := json.MarshalWithOption(s, json.DisableHTMLEscape())
	if err != nil {
		return err
	}
	buf.Write(raw)
	return nil
}

func writeValue(buf *bytes.Buffer, v Value) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case Bool:
		buf.WriteString(strconv.FormatBool(bool(t)))
	case I64:
		buf.WriteString(strconv.FormatInt(int64(t), 10))
	case U64:
		buf.WriteString(strconv.FormatUint(uint64(t), 10))
	case F64:
		f := float64(t)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			buf.WriteString("null")
			return nil
		}
		buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	case String:
		return writeString(buf, string(t))
	case Array:
		buf.WriteByte('[')
		for i, child := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			var cv Value
			if child != nil {
				cv = child.Value
			}
			if err := writeValue(buf, cv); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case *Object:
		buf.WriteByte('{')
		n := 0
		var err error
		t.Range(func(key string, child *Annotated) bool {
			if n > 0 {
				buf.WriteByte(',')
			}
			n++
			if err = writeString(buf, key); err != nil {
				return false
			}
			buf.WriteByte(':')
			err = writeValue(buf, child.Value)
			return err == nil
		})
		if err != nil {
			return err
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported value type %T", v)
	}
	return nil
}

// metaNode mirrors the value tree where metadata exists
type metaNode struct {
	meta     *Meta
	children map[string]*metaNode
}

func buildMetaTree(a *Annotated) *metaNode {
	if a == nil {
		return nil
	}
	node := &metaNode{}
	if !a.Meta.IsEmpty() {
		node.meta = &a.Meta
	}

	addChild := func(key string, child *Annotated) {
		sub := buildMetaTree(child)
		if sub == nil {
			return
		}
		if node.children == nil {
			node.children = make(map[string]*metaNode)
		}
		node.children[key] = sub
	}

	switch v := a.Value.(type) {
	case Array:
		for i, child := range v {
			addChild(strconv.Itoa(i), child)
		}
	case *Object:
		v.Range(func(key string, child *Annotated) bool {
			addChild(key, child)
			return true
		})
	}

	if node.meta == nil && len(node.children) == 0 {
		return nil
	}
	return node
}

func (n *metaNode) write(buf *bytes.Buffer) error {
	keys := make([]string, 0, len(n.children))
	for k := range n.children {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	first := true
	if n.meta != nil {
		buf.WriteString(`"":`)
		if err := writeMeta(buf, n.meta); err != nil {
			return err
		}
		first = false
	}
	for _, k := range keys {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		if err := writeString(buf, k); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := n.children[k].write(buf); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeMeta(buf *bytes.Buffer, m *Meta) error {
	buf.WriteByte('{')
	sep := func() {
		if buf.Bytes()[buf.Len()-1] != '{' {
			buf.WriteByte(',')
		}
	}

	if len(m.Remarks) > 0 {
		buf.WriteString(`"rem":[`)
		for i, r := range m.Remarks {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteByte('[')
			if err := writeString(buf, r.RuleID); err != nil {
				return err
			}
			buf.WriteByte(',')
			if err := writeString(buf, string(r.Type)); err != nil {
				return err
			}
			if r.Range != nil {
				fmt.Fprintf(buf, ",%d,%d", r.Range.Start, r.Range.End)
			}
			buf.WriteByte(']')
		}
		buf.WriteByte(']')
	}

	if len(m.Errors) > 0 {
		sep()
		buf.WriteString(`"err":[`)
		for i, e := range m.Errors {
			if i > 0 {
				buf.WriteByte(',')
			}
			if len(e.Data) == 0 {
				if err := writeString(buf, e.Kind); err != nil {
					return err
				}
				continue
			}
			buf.WriteByte('[')
			if err := writeString(buf, e.Kind); err != nil {
				return err
			}
			buf.WriteByte(',')
			raw, err := json.MarshalWithOption(e.Data, json.DisableHTMLEscape())
			if err != nil {
				return fmt.Errorf("failed to encode error data: %w", err)
			}
			buf.Write(raw)
			buf.WriteByte(']')
		}
		buf.WriteByte(']')
	}

	if m.OriginalLength != nil {
		sep()
		fmt.Fprintf(buf, `"len":%d`, *m.OriginalLength)
	}

	if m.OriginalValue != nil {
		sep()
		buf.WriteString(`"val":`)
		if err := writeValue(buf, m.OriginalValue); err != nil {
			return err
		}
	}

	buf.WriteByte('}')
	return nil
}

// ApplyMetaTree merges a decoded "_meta" tree into the nodes it describes.
// Entries pointing at array indexes that do not exist are ignored; object
// keys that do not exist are created without a value.
func ApplyMetaTree(a *Annotated, tree Value) {
	obj, ok := tree.(*Object)
	if !ok || a == nil {
		return
	}
	obj.Range(func(key string, child *Annotated) bool {
		if key == "" {
			a.Meta.Merge(DecodeMeta(child.Value))
			return true
		}
		switch v := a.Value.(type) {
		case *Object:
			target, found := v.Get(key)
			if !found {
				target = &Annotated{}
				v.Set(key, target)
			}
			ApplyMetaTree(target, child.Value)
		case Array:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(v) {
				return true
			}
			if v[idx] == nil {
				v[idx] = &Annotated{}
			}
			ApplyMetaTree(v[idx], child.Value)
		}
		return true
	})
}

// DecodeMeta reads the "" entry of a meta tree. Malformed parts are skipped.
func DecodeMeta(v Value) Meta {
	var m Meta
	obj, ok := v.(*Object)
	if !ok {
		return m
	}

	if rem, found := obj.Get("rem"); found {
		if items, ok := rem.Value.(Array); ok {
			for _, item := range items {
				if r, ok := decodeRemark(item.Value); ok {
					m.Remarks = append(m.Remarks, r)
				}
			}
		}
	}

	if errs, found := obj.Get("err"); found {
		if items, ok := errs.Value.(Array); ok {
			for _, item := range items {
				if e, ok := decodeError(item.Value); ok {
					m.Errors = append(m.Errors, e)
				}
			}
		}
	}

	if l, found := obj.Get("len"); found {
		if n, ok := AsInt(l.Value); ok {
			m.SetOriginalLength(n)
		}
	}

	if val, found := obj.Get("val"); found {
		m.OriginalValue = val.Value
	}
	return m
}

func decodeRemark(v Value) (Remark, bool) {
	parts, ok := v.(Array)
	if !ok || (len(parts) != 2 && len(parts) != 4) {
		return Remark{}, false
	}
	id, ok1 := parts[0].Value.(String)
	ty, ok2 := parts[1].Value.(String)
	if !ok1 || !ok2 {
		return Remark{}, false
	}
	r := Remark{RuleID: string(id), Type: RemarkType(ty)}
	if len(parts) == 4 {
		start, ok1 := AsInt(parts[2].Value)
		end, ok2 := AsInt(parts[3].Value)
		if !ok1 || !ok2 {
			return Remark{}, false
		}
		r.Range = &Range{Start: start, End: end}
	}
	return r, true
}

func decodeError(v Value) (Error, bool) {
	switch t := v.(type) {
	case String:
		return Error{Kind: string(t)}, true
	case Array:
		if len(t) == 0 {
			return Error{}, false
		}
		kind, ok := t[0].Value.(String)
		if !ok {
			return Error{}, false
		}
		e := Error{Kind: string(kind)}
		if len(t) > 1 {
			if data, ok := ToAny(t[1].Value).(map[string]any); ok && len(data) > 0 {
				e.Data = data
			}
		}
		return e, true
	}
	return Error{}, false
}
