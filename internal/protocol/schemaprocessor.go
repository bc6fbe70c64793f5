package protocol

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/raaihank/relay-scrubber/internal/annotated"
	"github.com/raaihank/relay-scrubber/internal/processor"
)

// LimitRule is the remark id of values trimmed to their maximum length
const LimitRule = "!limit"

const ellipsis = "..."

// SchemaProcessor enforces the field attributes of a schema: expected
// kinds, non-empty and required fields, and maximum string lengths.
// Invalid values are removed and kept in meta with an invalid_data error.
type SchemaProcessor struct{}

// NewSchemaProcessor creates a new schema processor
func NewSchemaProcessor() *SchemaProcessor {
	return &SchemaProcessor{}
}

func (p *SchemaProcessor) BeforeProcess(value annotated.Value, _ *annotated.Meta, state *processor.State) processor.Action {
	if value == nil {
		return processor.Keep()
	}
	attrs := state.Attrs()

	if attrs.Expected != 0 {
		t, _ := processor.TypeOf(value)
		if !attrs.Expected.Has(t) {
			return processor.DeleteWithError(annotated.Expected(describe(attrs.Expected)))
		}
	}
	if attrs.NonEmpty && isEmpty(value) {
		return processor.DeleteWithError(annotated.Expected("a non-empty value"))
	}
	return processor.Keep()
}

func (p *SchemaProcessor) ProcessString(value *string, meta *annotated.Meta, state *processor.State) processor.Action {
	if limit := state.Attrs().MaxChars; limit > 0 {
		trimString(value, meta, limit)
	}
	return processor.Keep()
}

// AfterProcess flags required fields that are missing from an object
func (p *SchemaProcessor) AfterProcess(value annotated.Value, _ *annotated.Meta, state *processor.State) {
	obj, ok := value.(*annotated.Object)
	if !ok {
		return
	}
	f, ok := state.Schema().(*Field)
	if !ok || f == nil {
		return
	}

	keys := make([]string, 0, len(f.Fields))
	for key, child := range f.Fields {
		if child.attrs.Required {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		item, exists := obj.Get(key)
		if !exists {
			item = &annotated.Annotated{}
			obj.Set(key, item)
		}
		if item.Value == nil && !item.Meta.HasErrors() {
			item.Meta.AddError(annotated.NewError(annotated.ErrMissingAttribute))
		}
	}
}

// trimString cuts a string longer than limit characters down to limit,
// ending in an ellipsis. Remarks inside the kept prefix survive.
func trimString(value *string, meta *annotated.Meta, limit int) {
	n := utf8.RuneCountInString(*value)
	if n <= limit {
		return
	}

	keep := limit - len(ellipsis)
	if keep < 0 {
		keep = 0
	}
	cut := 0
	for i := 0; i < keep; i++ {
		_, size := utf8.DecodeRuneInString((*value)[cut:])
		cut += size
	}

	remarks := meta.Remarks[:0:0]
	for _, r := range meta.Remarks {
		if r.Range == nil || r.Range.End <= cut {
			remarks = append(remarks, r)
		}
	}
	remarks = append(remarks, annotated.Remark{
		RuleID: LimitRule,
		Type:   annotated.RemarkSubstituted,
		Range:  &annotated.Range{Start: cut, End: cut + len(ellipsis)},
	})
	meta.Remarks = remarks
	meta.SetOriginalLength(n)
	*value = (*value)[:cut] + ellipsis
}

func isEmpty(v annotated.Value) bool {
	switch t := v.(type) {
	case annotated.String:
		return t == ""
	case annotated.Array:
		return len(t) == 0
	case *annotated.Object:
		return t.Len() == 0
	default:
		return false
	}
}

// describe renders an expectation such as "a string or a number"
func describe(types processor.ValueTypes) string {
	var parts []string
	for _, t := range types.List() {
		switch t {
		case processor.TypeArray, processor.TypeObject:
			parts = append(parts, "an "+t.String())
		default:
			parts = append(parts, "a "+t.String())
		}
	}
	return strings.Join(parts, " or ")
}
