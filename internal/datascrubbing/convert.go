package datascrubbing

import (
	"fmt"
	"regexp"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/raaihank/relay-scrubber/internal/pii"
	"github.com/raaihank/relay-scrubber/internal/processor"
	"github.com/raaihank/relay-scrubber/internal/selector"
)

// StripFieldsRule is the name of the generated rule that removes values of
// sensitive fields matched by key pattern.
const StripFieldsRule = "strip-fields"

// Mode selects the layout of the generated PII config
type Mode string

const (
	// ModeFineGrained emits one application per value type and one per
	// sensitive field, each guarded by the exclude fields.
	ModeFineGrained Mode = "fine-grained"
	// ModeSimple emits a single deep wildcard application guarded once
	ModeSimple Mode = "simple"
)

// ParseMode validates a mode name; the empty string selects the default
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeFineGrained:
		return ModeFineGrained, nil
	case ModeSimple:
		return ModeSimple, nil
	default:
		return "", fmt.Errorf("unknown legacy mode %q (expected %s or %s)", s, ModeFineGrained, ModeSimple)
	}
}

// Config holds the legacy data scrubbing settings of a project
type Config struct {
	ScrubData        bool     `json:"scrubData"`
	ScrubDefaults    bool     `json:"scrubDefaults"`
	ScrubIPAddresses bool     `json:"scrubIpAddresses"`
	SensitiveFields  []string `json:"sensitiveFields"`
	ExcludeFields    []string `json:"excludeFields"`
}

// NewDefault returns the settings of a project that never changed them
func NewDefault() Config {
	return Config{ScrubData: true, ScrubDefaults: true}
}

// ParseConfig decodes legacy settings. Missing flags keep their defaults.
func ParseConfig(data []byte) (Config, error) {
	cfg := NewDefault()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse datascrubbing settings: %w", err)
	}
	return cfg, nil
}

// ToPiiConfig converts legacy settings into an equivalent PII config. It
// returns nil when no rule would ever apply, which lets callers skip PII
// processing entirely.
func ToPiiConfig(cfg Config, mode Mode) *pii.Config {
	var defaults []string
	switch {
	case cfg.ScrubData && cfg.ScrubDefaults:
		defaults = append(defaults, "@common")
	case cfg.ScrubIPAddresses:
		defaults = append(defaults, "@ip")
	}

	var sensitive []string
	if cfg.ScrubData {
		sensitive = cleanFields(cfg.SensitiveFields)
	}
	exclude := cleanFields(cfg.ExcludeFields)

	if len(defaults) == 0 && len(sensitive) == 0 {
		return nil
	}

	out := &pii.Config{Rules: map[string]pii.RuleSpec{}}
	if mode == ModeSimple {
		toSimple(out, defaults, sensitive, exclude)
	} else {
		toFineGrained(out, defaults, sensitive, exclude)
	}
	return out
}

func toFineGrained(out *pii.Config, defaults, sensitive, exclude []string) {
	if len(defaults) > 0 {
		for _, t := range []processor.ValueType{processor.TypeString, processor.TypeObject} {
			spec := selector.Guard(selector.Path{selector.Type(t)}, exclude...)
			out.Applications.Add(spec.String(), defaults...)
		}
	}

	for _, field := range sensitive {
		spec := selector.Guard(selector.Path{selector.ContainsKey(field)}, exclude...)
		out.Applications.Add(spec.String(), "@anything:remove")
	}
}

func toSimple(out *pii.Config, defaults, sensitive, exclude []string) {
	rules := append([]string(nil), defaults...)
	if len(sensitive) > 0 {
		out.Rules[StripFieldsRule] = stripFieldsRule(sensitive)
		rules = append(rules, StripFieldsRule)
	}
	spec := selector.Guard(selector.Path{selector.DeepWildcard()}, exclude...)
	out.Applications.Add(spec.String(), rules...)
}

// stripFieldsRule removes values whose key contains any of fields,
// ignoring case
func stripFieldsRule(fields []string) pii.RuleSpec {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = regexp.QuoteMeta(f)
	}
	return pii.RuleSpec{
		Type:       pii.RuleRedactPair,
		KeyPattern: "(?i)" + strings.Join(quoted, "|"),
		Redaction:  &pii.Redaction{Method: pii.RedactRemove},
	}
}

// cleanFields trims names and drops empty and repeated ones
func cleanFields(fields []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || seen[strings.ToLower(f)] {
			continue
		}
		seen[strings.ToLower(f)] = true
		out = append(out, f)
	}
	return out
}
