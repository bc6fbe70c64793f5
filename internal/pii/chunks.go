package pii

import (
	"sort"
	"strings"

	"github.com/raaihank/relay-scrubber/internal/annotated"
)

// chunk is a piece of a string that is either original text or the output
// of an earlier redaction.
type chunk struct {
	text     string
	redacted bool
	ruleID   string
	typ      annotated.RemarkType
}

// splitChunks cuts s along the ranged remarks in remarks. Remarks that
// overlap an earlier one or fall outside s are ignored.
func splitChunks(s string, remarks []annotated.Remark) []chunk {
	ranged := make([]annotated.Remark, 0, len(remarks))
	for _, r := range remarks {
		if r.Range != nil {
			ranged = append(ranged, r)
		}
	}
	sort.SliceStable(ranged, func(i, j int) bool {
		return ranged[i].Range.Start < ranged[j].Range.Start
	})

	var chunks []chunk
	pos := 0
	for _, r := range ranged {
		start, end := r.Range.Start, r.Range.End
		if start < pos || start > end || end > len(s) {
			continue
		}
		if start > pos {
			chunks = append(chunks, chunk{text: s[pos:start]})
		}
		chunks = append(chunks, chunk{text: s[start:end], redacted: true, ruleID: r.RuleID, typ: r.Type})
		pos = end
	}
	if pos < len(s) {
		chunks = append(chunks, chunk{text: s[pos:]})
	}
	return chunks
}

// joinChunks concatenates chunks and returns ranged remarks for every
// redacted chunk.
func joinChunks(chunks []chunk) (string, []annotated.Remark) {
	var b strings.Builder
	var remarks []annotated.Remark
	for _, c := range chunks {
		start := b.Len()
		b.WriteString(c.text)
		if c.redacted {
			remarks = append(remarks, annotated.Remark{
				RuleID: c.ruleID,
				Type:   c.typ,
				Range:  &annotated.Range{Start: start, End: b.Len()},
			})
		}
	}
	return b.String(), remarks
}

// placeholder stands in for an existing redaction while a pattern runs over
// the text, so matches can neither start nor end inside earlier output.
const placeholder = "\x00"

// rewriteChunks runs rule over the text chunks. It returns the new chunk
// list and whether anything was replaced.
func rewriteChunks(chunks []chunk, rule *compiledRule) ([]chunk, bool) {
	var search strings.Builder
	var queued []chunk
	for _, c := range chunks {
		if c.redacted {
			search.WriteString(placeholder)
			queued = append(queued, c)
			continue
		}
		search.WriteString(strings.ReplaceAll(c.text, placeholder, ""))
	}
	text := search.String()

	matches := rule.pattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return chunks, false
	}

	groups := rule.groups
	if len(groups) == 0 {
		groups = []int{0}
	}

	out := make([]chunk, 0, len(chunks)+len(matches))
	next := 0
	emit := func(s string) {
		for {
			idx := strings.Index(s, placeholder)
			if idx < 0 {
				break
			}
			if idx > 0 {
				out = append(out, chunk{text: s[:idx]})
			}
			if next < len(queued) {
				out = append(out, queued[next])
				next++
			}
			s = s[idx+len(placeholder):]
		}
		if s != "" {
			out = append(out, chunk{text: s})
		}
	}

	pos := 0
	replaced := false
	for _, m := range matches {
		if rule.validate != nil && !rule.validate(text[m[0]:m[1]]) {
			continue
		}
		for _, g := range groups {
			start, end := m[2*g], m[2*g+1]
			if start < 0 || start == end || start < pos {
				continue
			}
			matched := text[start:end]
			if strings.Trim(matched, placeholder) == "" {
				continue
			}
			emit(text[pos:start])
			next += strings.Count(matched, placeholder)
			out = append(out, redactChunk(strings.ReplaceAll(matched, placeholder, ""), rule))
			pos = end
			replaced = true
		}
	}
	if !replaced {
		return chunks, false
	}
	emit(text[pos:])
	return out, true
}
