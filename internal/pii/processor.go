package pii

import (
	"github.com/raaihank/relay-scrubber/internal/annotated"
	"github.com/raaihank/relay-scrubber/internal/processor"
)

// Processor applies a compiled PII config to a value tree
type Processor struct {
	config *CompiledConfig
}

// NewProcessor creates a new PII processor for a compiled config
func NewProcessor(config *CompiledConfig) *Processor {
	return &Processor{config: config}
}

// skippedValues are strings that pattern rules never rewrite
var skippedValues = map[string]bool{
	"":          true,
	"true":      true,
	"false":     true,
	"null":      true,
	"undefined": true,
}

// BeforeProcess removes non-string values claimed by whole-value rules.
// Strings are left for ProcessString.
func (p *Processor) BeforeProcess(value annotated.Value, meta *annotated.Meta, state *processor.State) processor.Action {
	if value == nil || state.IsRoot() {
		return processor.Keep()
	}
	if _, ok := value.(annotated.String); ok {
		return processor.Keep()
	}

	for _, rule := range p.config.rulesFor(state) {
		if !p.claimsWholeValue(rule, state) {
			continue
		}
		meta.AddRemark(annotated.Remark{RuleID: rule.id, Type: annotated.RemarkRemoved})
		return processor.Delete()
	}
	return processor.Keep()
}

// ProcessString applies every matching rule to a string in order. A rule
// that removes the whole value wins over all others.
func (p *Processor) ProcessString(value *string, meta *annotated.Meta, state *processor.State) processor.Action {
	if state.IsRoot() {
		return processor.Keep()
	}

	rules := p.config.rulesFor(state)
	for _, rule := range rules {
		if rule.removes() && p.claimsWholeValue(rule, state) {
			meta.AddRemark(annotated.Remark{RuleID: rule.id, Type: annotated.RemarkRemoved})
			return processor.Delete()
		}
	}

	for _, rule := range rules {
		if p.claimsWholeValue(rule, state) {
			replaceWhole(value, meta, rule)
			continue
		}
		if rule.kind != kindPattern || skippedValues[*value] {
			continue
		}
		redactSubstrings(value, meta, rule)
	}
	return processor.Keep()
}

// claimsWholeValue reports whether rule applies to the node as a whole
func (p *Processor) claimsWholeValue(rule *compiledRule, state *processor.State) bool {
	switch rule.kind {
	case kindAnything:
		return true
	case kindRedactPair:
		key, ok := state.Key()
		return ok && rule.pattern.MatchString(key)
	default:
		return false
	}
}
