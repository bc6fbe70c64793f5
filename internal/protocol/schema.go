package protocol

import (
	"github.com/raaihank/relay-scrubber/internal/processor"
)

// Field length limits of the event protocol
const (
	MaxMessageChars     = 8192
	MaxSymbolChars      = 256
	MaxPathChars        = 256
	MaxTransactionChars = 200
	MaxTagValueChars    = 200
)

// Field describes one well-known location of the event protocol. Keys that
// are not listed in Fields are described by Other when set, and are
// undescribed otherwise, inheriting the PII classification of their parent.
type Field struct {
	attrs processor.FieldAttrs
	types processor.ValueTypes
	// Fields describes object entries by key
	Fields map[string]*Field
	// Items describes every array element, or every object entry of a map
	// without fixed keys when Fields is empty
	Items *Field
	// Other describes the unlisted keys of an interface
	Other *Field
}

// Attrs implements processor.Schema
func (f *Field) Attrs() processor.FieldAttrs { return f.attrs }

// Types implements processor.Schema
func (f *Field) Types() processor.ValueTypes { return f.types }

// Child implements processor.Schema
func (f *Field) Child(seg processor.Segment) processor.Schema {
	switch seg.Kind {
	case processor.SegmentKey:
		if c, ok := f.Fields[seg.Key]; ok {
			return c
		}
		if f.Items != nil && len(f.Fields) == 0 {
			return f.Items
		}
		if f.Other != nil {
			return f.Other
		}
	case processor.SegmentIndex:
		if f.Items != nil {
			return f.Items
		}
	}
	return nil
}

// Lookup returns the description of a dotted path below f, or nil
func (f *Field) Lookup(path ...string) *Field {
	cur := f
	for _, key := range path {
		next, ok := cur.Fields[key]
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

type option func(*Field)

func classify(p processor.Pii) option {
	return func(f *Field) { f.attrs.Pii = p }
}

func maxChars(n int) option {
	return func(f *Field) { f.attrs.MaxChars = n }
}

func required() option {
	return func(f *Field) { f.attrs.Required = true }
}

func nonEmpty() option {
	return func(f *Field) { f.attrs.NonEmpty = true }
}

func pairList() option {
	return func(f *Field) { f.attrs.PairList = true }
}

func expect(types ...processor.ValueType) option {
	return func(f *Field) { f.attrs.Expected = processor.TypesOf(types...) }
}

func is(t processor.ValueType) option {
	return func(f *Field) { f.types = f.types.With(t) }
}

func fields(children map[string]*Field) option {
	return func(f *Field) { f.Fields = children }
}

func items(item *Field) option {
	return func(f *Field) { f.Items = item }
}

// iface marks a structural interface: the container itself never holds
// PII, while keys it does not list are scrubbed like free-form data
func iface() option {
	return func(f *Field) {
		f.attrs.Pii = processor.PiiFalse
		f.Other = &Field{}
	}
}

func field(opts ...option) *Field {
	f := &Field{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func str(opts ...option) *Field {
	return field(append([]option{expect(processor.TypeString)}, opts...)...)
}

// values wraps a list interface such as exception or breadcrumbs
func values(item *Field) *Field {
	return field(iface(), expect(processor.TypeObject), fields(map[string]*Field{
		"values": field(classify(processor.PiiFalse), expect(processor.TypeArray), items(item)),
	}))
}

func stacktrace() *Field {
	frame := field(is(processor.TypeFrame), iface(), expect(processor.TypeObject), fields(map[string]*Field{
		"function":     str(maxChars(MaxSymbolChars), classify(processor.PiiMaybe)),
		"raw_function": str(maxChars(MaxSymbolChars), classify(processor.PiiMaybe)),
		"symbol":       str(maxChars(MaxSymbolChars), classify(processor.PiiMaybe)),
		"module":       str(maxChars(MaxSymbolChars), classify(processor.PiiMaybe)),
		"package":      str(maxChars(MaxPathChars), classify(processor.PiiMaybe)),
		"filename":     str(maxChars(MaxPathChars), classify(processor.PiiMaybe)),
		"abs_path":     str(maxChars(MaxPathChars), classify(processor.PiiMaybe)),
		"lineno":       field(expect(processor.TypeNumber), classify(processor.PiiFalse)),
		"colno":        field(expect(processor.TypeNumber), classify(processor.PiiFalse)),
		"in_app":       field(expect(processor.TypeBoolean), classify(processor.PiiFalse)),
		"platform":     str(classify(processor.PiiFalse)),
		"context_line": str(),
		"pre_context":  field(expect(processor.TypeArray)),
		"post_context": field(expect(processor.TypeArray)),
		"vars":         field(),
	}))
	return field(is(processor.TypeStacktrace), iface(), expect(processor.TypeObject), fields(map[string]*Field{
		"frames": field(classify(processor.PiiFalse), expect(processor.TypeArray), items(frame)),
	}))
}

// EventSchema describes the event protocol: where interfaces live, which
// fields never carry PII and the expected kinds and lengths of well-known
// fields.
func EventSchema() *Field {
	logentry := field(is(processor.TypeLogEntry), iface(), expect(processor.TypeObject), fields(map[string]*Field{
		"formatted": str(is(processor.TypeMessage), maxChars(MaxMessageChars)),
		// the format string; parameters carry the data
		"message": str(is(processor.TypeMessage), maxChars(MaxMessageChars), classify(processor.PiiFalse)),
		"params":    field(),
	}))

	request := field(is(processor.TypeRequest), iface(), expect(processor.TypeObject), fields(map[string]*Field{
		"url":                   str(maxChars(MaxPathChars)),
		"method":                str(classify(processor.PiiFalse)),
		"data":                  field(),
		"query_string":          field(pairList(), expect(processor.TypeArray)),
		"fragment":              str(),
		"cookies":               field(pairList(), expect(processor.TypeArray)),
		"headers":               field(pairList(), expect(processor.TypeArray)),
		"env":                   field(expect(processor.TypeObject)),
		"inferred_content_type": str(classify(processor.PiiFalse)),
	}))

	user := field(is(processor.TypeUser), iface(), expect(processor.TypeObject), fields(map[string]*Field{
		"id":         field(expect(processor.TypeString, processor.TypeNumber)),
		"email":      str(),
		"ip_address": str(),
		"username":   str(),
		"name":       str(),
		"data":       field(),
	}))

	exception := field(is(processor.TypeException), iface(), expect(processor.TypeObject), fields(map[string]*Field{
		"type":       str(maxChars(MaxSymbolChars), classify(processor.PiiFalse)),
		"value":      str(maxChars(MaxMessageChars), classify(processor.PiiFalse)),
		"module":     str(maxChars(MaxSymbolChars), classify(processor.PiiFalse)),
		"stacktrace": stacktrace(),
		"mechanism":  field(classify(processor.PiiFalse)),
	}))

	thread := field(is(processor.TypeThread), iface(), expect(processor.TypeObject), fields(map[string]*Field{
		"id":         field(classify(processor.PiiFalse)),
		"name":       str(classify(processor.PiiMaybe)),
		"crashed":    field(expect(processor.TypeBoolean), classify(processor.PiiFalse)),
		"current":    field(expect(processor.TypeBoolean), classify(processor.PiiFalse)),
		"stacktrace": stacktrace(),
	}))

	breadcrumb := field(is(processor.TypeBreadcrumb), iface(), expect(processor.TypeObject), fields(map[string]*Field{
		"timestamp": field(is(processor.TypeDateTime), expect(processor.TypeNumber, processor.TypeString), classify(processor.PiiFalse)),
		"type":      str(classify(processor.PiiFalse)),
		"category":  str(classify(processor.PiiFalse)),
		"level":     str(classify(processor.PiiFalse)),
		"message":   str(is(processor.TypeMessage), maxChars(MaxMessageChars)),
		"data":      field(expect(processor.TypeObject)),
	}))

	sdk := field(classify(processor.PiiFalse), expect(processor.TypeObject), fields(map[string]*Field{
		"name":         str(required(), nonEmpty(), classify(processor.PiiFalse)),
		"version":      str(required(), nonEmpty(), classify(processor.PiiFalse)),
		"integrations": field(expect(processor.TypeArray), classify(processor.PiiFalse)),
		"packages":     field(expect(processor.TypeArray), classify(processor.PiiFalse)),
	}))

	return field(is(processor.TypeEvent), expect(processor.TypeObject), fields(map[string]*Field{
		"event_id":    str(classify(processor.PiiFalse), nonEmpty()),
		"timestamp":   field(is(processor.TypeDateTime), expect(processor.TypeNumber, processor.TypeString), classify(processor.PiiFalse)),
		"level":       str(classify(processor.PiiFalse)),
		"platform":    str(classify(processor.PiiFalse)),
		"release":     str(classify(processor.PiiFalse), maxChars(MaxSymbolChars)),
		"dist":        str(classify(processor.PiiFalse)),
		"environment": str(classify(processor.PiiFalse)),
		"server_name": str(classify(processor.PiiMaybe)),
		"logger":      str(classify(processor.PiiFalse)),
		"culprit":     str(maxChars(MaxSymbolChars), classify(processor.PiiMaybe)),
		"transaction": str(maxChars(MaxTransactionChars), classify(processor.PiiMaybe)),
		"fingerprint": field(classify(processor.PiiFalse), expect(processor.TypeArray)),
		"modules":     field(classify(processor.PiiFalse), expect(processor.TypeObject)),
		"sdk":         sdk,
		"logentry":    logentry,
		"request":     request,
		"user":        user,
		"exception":   values(exception),
		"threads":     values(thread),
		"breadcrumbs": values(breadcrumb),
		"stacktrace":  stacktrace(),
		"tags":        field(pairList(), expect(processor.TypeArray), items(field(maxChars(MaxTagValueChars)))),
		"extra":       field(expect(processor.TypeObject)),
		"contexts":    field(expect(processor.TypeObject)),
	}))
}
