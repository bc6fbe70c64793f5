package pii

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/raaihank/relay-scrubber/internal/processor"
	"github.com/raaihank/relay-scrubber/internal/selector"
)

// ErrUnknownRule is wrapped by RuleErrors for references that resolve to
// neither a built-in nor a custom rule.
var ErrUnknownRule = errors.New("unknown rule")

// ErrRuleCycle is wrapped by RuleErrors for self-referencing aliases
var ErrRuleCycle = errors.New("rule references itself")

// RuleError reports a rule that could not be compiled
type RuleError struct {
	Rule string
	Err  error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %q: %v", e.Rule, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }

// SelectorError reports an application whose selector does not parse
type SelectorError struct {
	Selector string
	Err      error
}

func (e *SelectorError) Error() string {
	return fmt.Sprintf("selector %q: %v", e.Selector, e.Err)
}

func (e *SelectorError) Unwrap() error { return e.Err }

// CompileErrors collects every problem found while compiling a config. The
// compiled config returned alongside is still usable; broken parts are left
// out.
type CompileErrors []error

func (e CompileErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Unwrap exposes the individual errors to errors.Is and errors.As
func (e CompileErrors) Unwrap() []error { return e }

type ruleKind int

const (
	kindPattern ruleKind = iota
	kindRedactPair
	kindAnything
)

// compiledRule is a leaf rule ready to be applied
type compiledRule struct {
	id        string
	kind      ruleKind
	pattern   *regexp.Regexp
	groups    []int
	validate  func(string) bool
	redaction Redaction
	hashKey   string
}

// removes reports whether the rule deletes whole values
func (r *compiledRule) removes() bool {
	return r.redaction.Method == RedactDefault || r.redaction.Method == RedactRemove
}

type compiledApplication struct {
	selector selector.Spec
	rules    []*compiledRule
}

// CompiledConfig is the immutable runtime form of a Config. It is safe for
// concurrent use by many processors.
type CompiledConfig struct {
	applications []compiledApplication
	byKey        map[string][]int
	byType       map[processor.ValueType][]int
	always       []int
}

// Len returns the number of usable applications
func (c *CompiledConfig) Len() int {
	if c == nil {
		return 0
	}
	return len(c.applications)
}

// Compile turns a config into its runtime form. Rules and selectors that
// fail to compile are reported in the returned CompileErrors and skipped.
func Compile(cfg *Config) (*CompiledConfig, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	c := &compiler{cfg: cfg, patterns: map[string]*regexp.Regexp{}}

	// Every custom rule is checked, referenced or not, so that authoring
	// tools see all problems at once.
	names := make([]string, 0, len(cfg.Rules))
	for name := range cfg.Rules {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := c.collect(name, nil, nil); err != nil {
			c.report(err)
		}
	}

	out := &CompiledConfig{
		byKey:  map[string][]int{},
		byType: map[processor.ValueType][]int{},
	}
	for _, app := range cfg.Applications {
		spec, err := selector.Parse(app.Selector)
		if err != nil {
			c.report(&SelectorError{Selector: app.Selector, Err: err})
			continue
		}

		var rules []*compiledRule
		for _, ref := range app.Rules {
			resolved, err := c.collect(ref, nil, nil)
			if err != nil {
				c.report(err)
				continue
			}
			rules = append(rules, resolved...)
		}
		if len(rules) == 0 {
			continue
		}

		idx := len(out.applications)
		out.applications = append(out.applications, compiledApplication{selector: spec, rules: rules})
		out.index(idx, spec)
	}

	if len(c.errs) > 0 {
		return out, c.errs
	}
	return out, nil
}

// index files an application under the innermost item its selector needs,
// so lookups only test selectors that can possibly match.
func (c *CompiledConfig) index(idx int, spec selector.Spec) {
	item, ok := innermostItem(spec)
	switch {
	case ok && item.Kind == selector.ItemKey:
		key := strings.ToLower(item.Key)
		c.byKey[key] = append(c.byKey[key], idx)
	case ok && item.Kind == selector.ItemType:
		c.byType[item.Type] = append(c.byType[item.Type], idx)
	default:
		c.always = append(c.always, idx)
	}
}

func innermostItem(spec selector.Spec) (selector.PathItem, bool) {
	switch s := spec.(type) {
	case selector.Path:
		if len(s) == 0 {
			return selector.PathItem{}, false
		}
		return s[len(s)-1], true
	case selector.And:
		if item, ok := innermostItem(s.Left); ok && (item.Kind == selector.ItemKey || item.Kind == selector.ItemType) {
			return item, true
		}
		return innermostItem(s.Right)
	default:
		return selector.PathItem{}, false
	}
}

// rulesFor returns the rules of every application matching state, in
// declaration order.
func (c *CompiledConfig) rulesFor(state *processor.State) []*compiledRule {
	if c == nil || len(c.applications) == 0 {
		return nil
	}

	candidates := make([]int, 0, len(c.always)+4)
	candidates = append(candidates, c.always...)
	if key, ok := state.Key(); ok {
		candidates = append(candidates, c.byKey[strings.ToLower(key)]...)
	}
	for _, t := range state.Types().List() {
		candidates = append(candidates, c.byType[t]...)
	}
	sort.Ints(candidates)

	var rules []*compiledRule
	last := -1
	for _, idx := range candidates {
		if idx == last {
			continue
		}
		last = idx
		app := c.applications[idx]
		if selector.Matches(app.selector, state) {
			rules = append(rules, app.rules...)
		}
	}
	return rules
}

// Selectors returns the canonical selector strings in use
func (c *CompiledConfig) Selectors() []string {
	out := make([]string, len(c.applications))
	for i, app := range c.applications {
		out[i] = app.selector.String()
	}
	return out
}

// parentRef carries the identity and redaction an enclosing alias or
// multiple rule imposes on the rules it hides.
type parentRef struct {
	id        string
	redaction Redaction
}

type compiler struct {
	cfg      *Config
	patterns map[string]*regexp.Regexp
	errs     CompileErrors
	reported map[string]bool
}

func (c *compiler) report(err error) {
	if c.reported == nil {
		c.reported = map[string]bool{}
	}
	msg := err.Error()
	if c.reported[msg] {
		return
	}
	c.reported[msg] = true
	c.errs = append(c.errs, err)
}

func (c *compiler) lookup(name string) (RuleSpec, bool) {
	if spec, ok := BuiltinRule(name); ok {
		return spec, true
	}
	spec, ok := c.cfg.Rules[name]
	return spec, ok
}

// collect resolves a rule reference into leaf rules
func (c *compiler) collect(name string, parent *parentRef, stack []string) ([]*compiledRule, error) {
	for _, seen := range stack {
		if seen == name {
			return nil, &RuleError{Rule: name, Err: ErrRuleCycle}
		}
	}
	spec, ok := c.lookup(name)
	if !ok {
		return nil, &RuleError{Rule: name, Err: ErrUnknownRule}
	}
	stack = append(stack, name)

	self := parentRef{id: name, redaction: spec.redaction()}
	if parent != nil {
		self.id = parent.id
		if parent.redaction.Method != RedactDefault {
			self.redaction = parent.redaction
		}
	}

	switch spec.Type {
	case RuleMultiple:
		if len(spec.Rules) == 0 {
			return nil, &RuleError{Rule: name, Err: errors.New("multiple rule without rules")}
		}
		var inner *parentRef
		if spec.HideInner {
			inner = &self
		}
		var out []*compiledRule
		for _, ref := range spec.Rules {
			resolved, err := c.collect(ref, inner, stack)
			if err != nil {
				return nil, err
			}
			out = append(out, resolved...)
		}
		return out, nil
	case RuleAlias:
		if spec.Rule == "" {
			return nil, &RuleError{Rule: name, Err: errors.New("alias rule without target")}
		}
		var inner *parentRef
		if spec.HideInner {
			inner = &self
		}
		return c.collect(spec.Rule, inner, stack)
	}

	rule, err := c.leaf(name, spec, self)
	if err != nil {
		return nil, err
	}
	return []*compiledRule{rule}, nil
}

func (c *compiler) leaf(name string, spec RuleSpec, ref parentRef) (*compiledRule, error) {
	if err := validateRedaction(ref.redaction); err != nil {
		return nil, &RuleError{Rule: name, Err: err}
	}
	rule := &compiledRule{id: ref.id, kind: kindPattern, redaction: ref.redaction}

	if rule.redaction.Method == RedactHash {
		switch {
		case rule.redaction.Key != nil:
			rule.hashKey = *rule.redaction.Key
		case c.cfg.Vars.HashKey != nil:
			rule.hashKey = *c.cfg.Vars.HashKey
		}
	}

	switch spec.Type {
	case RulePattern:
		re, err := c.compilePattern(name, spec.Pattern)
		if err != nil {
			return nil, &RuleError{Rule: name, Err: err}
		}
		rule.pattern = re
		for _, g := range spec.ReplaceGroups {
			if g < 0 || g > re.NumSubexp() {
				return nil, &RuleError{Rule: name, Err: fmt.Errorf("replace group %d out of range", g)}
			}
		}
		if len(spec.ReplaceGroups) > 0 {
			rule.groups = append([]int(nil), spec.ReplaceGroups...)
			sort.Ints(rule.groups)
		}
	case RuleRedactPair:
		re, err := c.compilePattern(name, spec.KeyPattern)
		if err != nil {
			return nil, &RuleError{Rule: name, Err: err}
		}
		rule.kind = kindRedactPair
		rule.pattern = re
	case RulePassword:
		rule.kind = kindRedactPair
		rule.pattern = passwordKeyRegex
	case RuleAnything:
		rule.kind = kindAnything
		rule.pattern = anythingRegex
	case RuleImei:
		rule.pattern = imeiRegex
	case RuleMac:
		rule.pattern = macRegex
	case RuleUUID:
		rule.pattern = uuidRegex
	case RuleEmail:
		rule.pattern = emailRegex
	case RuleIP:
		rule.pattern = ipRegex
		rule.validate = ipCandidateValid
	case RuleCreditcard:
		rule.pattern = creditcardRegex
	case RulePemkey:
		rule.pattern = pemkeyRegex
		rule.groups = []int{1}
	case RuleURLAuth:
		rule.pattern = urlAuthRegex
		rule.groups = []int{1}
	case RuleUsSsn:
		rule.pattern = usSsnRegex
		rule.groups = []int{1}
	case RuleUserPath:
		rule.pattern = userPathRegex
		rule.groups = []int{1}
	default:
		return nil, &RuleError{Rule: name, Err: fmt.Errorf("unsupported rule type %q", spec.Type)}
	}
	return rule, nil
}

func (c *compiler) compilePattern(name, pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, errors.New("empty pattern")
	}
	if re, ok := c.patterns[name]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	c.patterns[name] = re
	return re, nil
}

func validateRedaction(r Redaction) error {
	switch r.Method {
	case RedactDefault, RedactRemove, RedactReplace:
		return nil
	case RedactMask:
		if r.MaskChar != "" && utf8.RuneCountInString(r.MaskChar) != 1 {
			return fmt.Errorf("mask character must be a single character, got %q", r.MaskChar)
		}
		if len(r.Range) > 2 {
			return errors.New("mask range takes at most two offsets")
		}
		return nil
	case RedactHash:
		switch r.Algorithm {
		case "", HashSHA1, HashSHA256, HashSHA512:
			return nil
		}
		return fmt.Errorf("unsupported hash algorithm %q", r.Algorithm)
	default:
		return fmt.Errorf("unsupported redaction method %q", r.Method)
	}
}

// Validate compiles a config document and describes every problem found.
// An empty result means the config is valid.
func Validate(data []byte) string {
	cfg, err := ParseConfig(data)
	if err != nil {
		return err.Error()
	}
	if _, err := Compile(cfg); err != nil {
		return err.Error()
	}
	return ""
}
