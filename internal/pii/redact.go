package pii

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"strings"
	"unicode/utf8"

	"github.com/raaihank/relay-scrubber/internal/annotated"
)

const defaultMaskChar = '*'

// redactChunk produces the replacement for one matched piece of text
func redactChunk(text string, rule *compiledRule) chunk {
	r := rule.redaction
	switch r.Method {
	case RedactReplace:
		return chunk{text: r.Text, redacted: true, ruleID: rule.id, typ: annotated.RemarkSubstituted}
	case RedactMask:
		return chunk{text: maskText(text, r), redacted: true, ruleID: rule.id, typ: annotated.RemarkMasked}
	case RedactHash:
		return chunk{text: hashText(text, r.Algorithm, rule.hashKey), redacted: true, ruleID: rule.id, typ: annotated.RemarkPseudonymized}
	default:
		return chunk{redacted: true, ruleID: rule.id, typ: annotated.RemarkRemoved}
	}
}

// maskText replaces every character inside the configured range with the
// mask character. Characters listed in CharsToIgnore stay as they are.
func maskText(text string, r Redaction) string {
	mask := defaultMaskChar
	if r.MaskChar != "" {
		mask, _ = utf8.DecodeRuneInString(r.MaskChar)
	}

	n := utf8.RuneCountInString(text)
	start, end := 0, n
	if len(r.Range) > 0 && r.Range[0] != nil {
		start = clampOffset(*r.Range[0], n)
	}
	if len(r.Range) > 1 && r.Range[1] != nil {
		end = clampOffset(*r.Range[1], n)
	}

	var b strings.Builder
	b.Grow(len(text))
	i := 0
	for _, c := range text {
		if i >= start && i < end && !strings.ContainsRune(r.CharsToIgnore, c) {
			b.WriteRune(mask)
		} else {
			b.WriteRune(c)
		}
		i++
	}
	return b.String()
}

// clampOffset resolves a possibly negative offset against a length of n
func clampOffset(off, n int) int {
	if off < 0 {
		off += n
	}
	if off < 0 {
		return 0
	}
	if off > n {
		return n
	}
	return off
}

// hashText returns the upper case hex HMAC of text
func hashText(text, algorithm, key string) string {
	var fn func() hash.Hash
	switch algorithm {
	case HashSHA256:
		fn = sha256.New
	case HashSHA512:
		fn = sha512.New
	default:
		fn = sha1.New
	}
	mac := hmac.New(fn, []byte(key))
	mac.Write([]byte(text))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

// redactSubstrings applies a pattern rule to value, keeping the ranges of
// earlier redactions intact. It reports whether the value changed.
func redactSubstrings(value *string, meta *annotated.Meta, rule *compiledRule) bool {
	chunks := splitChunks(*value, meta.Remarks)
	rewritten, changed := rewriteChunks(chunks, rule)
	if !changed {
		return false
	}
	updateValue(value, meta, rewritten)
	return true
}

// replaceWhole rewrites the complete string with the rule's redaction
func replaceWhole(value *string, meta *annotated.Meta, rule *compiledRule) bool {
	for _, r := range meta.Remarks {
		if r.RuleID == rule.id && r.Range != nil && r.Range.Start == 0 && r.Range.End == len(*value) {
			return false
		}
	}
	if *value == "" {
		return false
	}
	updateValue(value, meta, []chunk{redactChunk(*value, rule)})
	return true
}

// updateValue stores the joined chunks and swaps the ranged remarks for the
// recomputed ones.
func updateValue(value *string, meta *annotated.Meta, chunks []chunk) {
	text, ranged := joinChunks(chunks)

	kept := make([]annotated.Remark, 0, len(meta.Remarks))
	for _, r := range meta.Remarks {
		if r.Range == nil {
			kept = append(kept, r)
		}
	}
	meta.Remarks = append(kept, ranged...)
	meta.SetOriginalLength(utf8.RuneCountInString(*value))
	*value = text
}
