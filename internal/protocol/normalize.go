package protocol

import (
	"net/textproto"
	"net/url"
	"strings"

	"github.com/raaihank/relay-scrubber/internal/annotated"
)

// Content types inferred from request bodies
const (
	ContentTypeJSON = "application/json"
	ContentTypeForm = "application/x-www-form-urlencoded"
)

// Normalize rewrites shorthand layouts of an event into the canonical form
// described by EventSchema. Values it does not recognize are left for the
// schema processor to reject.
func Normalize(event *annotated.Annotated) {
	if event == nil {
		return
	}
	obj, ok := event.Value.(*annotated.Object)
	if !ok {
		return
	}

	normalizeLogEntry(obj)
	for _, key := range []string{"exception", "threads", "breadcrumbs"} {
		wrapValues(obj, key)
	}
	if req, ok := objectAt(obj, "request"); ok {
		normalizeRequest(req)
	}
	if tags, ok := obj.Get("tags"); ok {
		if pairs, ok := toPairList(tags.Value); ok {
			tags.Value = pairs
		}
	}
}

// normalizeLogEntry moves a plain message into logentry.formatted
func normalizeLogEntry(event *annotated.Object) {
	msg, ok := event.Get("message")
	if !ok {
		return
	}
	if _, exists := event.Get("logentry"); exists {
		return
	}
	if _, isString := msg.Value.(annotated.String); !isString {
		return
	}

	logentry := annotated.NewObject()
	logentry.Set("formatted", msg)
	event.Set("logentry", annotated.New(logentry))
	event.Delete("message")
}

// wrapValues turns a bare list interface into {"values": [...]}
func wrapValues(event *annotated.Object, key string) {
	item, ok := event.Get(key)
	if !ok {
		return
	}
	list, ok := item.Value.(annotated.Array)
	if !ok {
		return
	}
	wrapper := annotated.NewObject()
	wrapper.Set("values", annotated.New(list))
	item.Value = wrapper
}

func normalizeRequest(req *annotated.Object) {
	if method, ok := req.Get("method"); ok {
		if s, ok := method.Value.(annotated.String); ok {
			method.Value = annotated.String(strings.ToUpper(string(s)))
		}
	}

	splitURL(req)

	if headers, ok := req.Get("headers"); ok {
		if pairs, ok := toPairList(headers.Value); ok {
			canonicalizeHeaders(pairs)
			headers.Value = pairs
		}
	}
	extractCookieHeader(req)

	if cookies, ok := req.Get("cookies"); ok {
		if s, ok := cookies.Value.(annotated.String); ok {
			cookies.Value = parseCookies(string(s))
		} else if pairs, ok := toPairList(cookies.Value); ok {
			cookies.Value = pairs
		}
	}

	if qs, ok := req.Get("query_string"); ok {
		if s, ok := qs.Value.(annotated.String); ok {
			qs.Value = parseQuery(string(s))
		} else if pairs, ok := toPairList(qs.Value); ok {
			qs.Value = pairs
		}
	}

	normalizeData(req)
}

// splitURL moves the query and fragment of request.url into their own
// fields unless those are already present
func splitURL(req *annotated.Object) {
	u, ok := req.Get("url")
	if !ok {
		return
	}
	s, ok := u.Value.(annotated.String)
	if !ok {
		return
	}
	rest := string(s)

	if i := strings.IndexByte(rest, '#'); i >= 0 {
		if _, exists := req.Get("fragment"); !exists && i+1 < len(rest) {
			req.Set("fragment", annotated.New(annotated.String(rest[i+1:])))
		}
		rest = rest[:i]
	}
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		if _, exists := req.Get("query_string"); !exists && i+1 < len(rest) {
			req.Set("query_string", annotated.New(annotated.String(rest[i+1:])))
		}
		rest = rest[:i]
	}
	u.Value = annotated.String(rest)
}

func canonicalizeHeaders(pairs annotated.Array) {
	for _, item := range pairs {
		if item == nil {
			continue
		}
		pair, ok := item.Value.(annotated.Array)
		if !ok || len(pair) != 2 || pair[0] == nil {
			continue
		}
		if name, ok := pair[0].Value.(annotated.String); ok {
			pair[0].Value = annotated.String(textproto.CanonicalMIMEHeaderKey(string(name)))
		}
	}
}

// extractCookieHeader moves a Cookie header into request.cookies
func extractCookieHeader(req *annotated.Object) {
	if _, exists := req.Get("cookies"); exists {
		return
	}
	headers, ok := req.Get("headers")
	if !ok {
		return
	}
	pairs, ok := headers.Value.(annotated.Array)
	if !ok {
		return
	}

	for i, item := range pairs {
		name, value, ok := pairStrings(item)
		if !ok || name != "Cookie" {
			continue
		}
		req.Set("cookies", annotated.New(parseCookies(value)))
		headers.Value = append(pairs[:i:i], pairs[i+1:]...)
		return
	}
}

// normalizeData parses inline request bodies and records the content type
// the body was read as
func normalizeData(req *annotated.Object) {
	declared := headerValue(req, "Content-Type")
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = declared[:i]
	}
	declared = strings.TrimSpace(strings.ToLower(declared))

	inferred := declared
	if data, ok := req.Get("data"); ok {
		switch v := data.Value.(type) {
		case annotated.String:
			if parsed, ok := parseJSONBody(string(v)); ok {
				data.Value = parsed
				inferred = ContentTypeJSON
			} else if declared == ContentTypeForm {
				data.Value = parseForm(string(v))
				inferred = ContentTypeForm
			}
		case *annotated.Object, annotated.Array:
			if inferred == "" {
				inferred = ContentTypeJSON
			}
		}
	}

	if _, exists := req.Get("inferred_content_type"); exists || inferred == "" {
		return
	}
	req.Set("inferred_content_type", annotated.New(annotated.String(inferred)))
}

func parseJSONBody(s string) (annotated.Value, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return nil, false
	}
	tree, err := annotated.FromJSON([]byte(trimmed))
	if err != nil {
		return nil, false
	}
	return tree.Value, true
}

func parseForm(s string) *annotated.Object {
	obj := annotated.NewObject()
	for _, pair := range splitPairs(s, "&") {
		obj.Set(unescape(pair[0]), annotated.New(annotated.String(unescape(pair[1]))))
	}
	return obj
}

func headerValue(req *annotated.Object, name string) string {
	headers, ok := req.Get("headers")
	if !ok {
		return ""
	}
	pairs, ok := headers.Value.(annotated.Array)
	if !ok {
		return ""
	}
	for _, item := range pairs {
		if k, v, ok := pairStrings(item); ok && k == name {
			return v
		}
	}
	return ""
}

func parseCookies(s string) annotated.Array {
	out := annotated.Array{}
	for _, pair := range splitPairs(s, ";") {
		out = append(out, newPair(pair[0], annotated.String(pair[1])))
	}
	return out
}

func parseQuery(s string) annotated.Array {
	out := annotated.Array{}
	for _, pair := range splitPairs(strings.TrimPrefix(s, "?"), "&") {
		out = append(out, newPair(unescape(pair[0]), annotated.String(unescape(pair[1]))))
	}
	return out
}

// splitPairs splits "a=b<sep>c=d" into trimmed key and value pairs. Empty
// segments are dropped; a segment without '=' has an empty value.
func splitPairs(s, sep string) [][2]string {
	var out [][2]string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		out = append(out, [2]string{strings.TrimSpace(key), strings.TrimSpace(value)})
	}
	return out
}

func unescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}

// toPairList converts an object into a pair list. Pair lists are returned
// as they are.
func toPairList(v annotated.Value) (annotated.Array, bool) {
	switch t := v.(type) {
	case annotated.Array:
		return t, true
	case *annotated.Object:
		out := make(annotated.Array, 0, t.Len())
		t.Range(func(key string, item *annotated.Annotated) bool {
			pair := annotated.New(annotated.Array{annotated.New(annotated.String(key)), item})
			out = append(out, pair)
			return true
		})
		return out, true
	default:
		return nil, false
	}
}

func newPair(key string, value annotated.Value) *annotated.Annotated {
	return annotated.New(annotated.Array{annotated.New(annotated.String(key)), annotated.New(value)})
}

func pairStrings(item *annotated.Annotated) (string, string, bool) {
	if item == nil {
		return "", "", false
	}
	pair, ok := item.Value.(annotated.Array)
	if !ok || len(pair) != 2 || pair[0] == nil || pair[1] == nil {
		return "", "", false
	}
	k, ok := pair[0].Value.(annotated.String)
	if !ok {
		return "", "", false
	}
	v, ok := pair[1].Value.(annotated.String)
	if !ok {
		return "", "", false
	}
	return string(k), string(v), true
}

func objectAt(obj *annotated.Object, key string) (*annotated.Object, bool) {
	item, ok := obj.Get(key)
	if !ok {
		return nil, false
	}
	o, ok := item.Value.(*annotated.Object)
	return o, ok
}
