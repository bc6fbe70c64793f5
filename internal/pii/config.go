package pii

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"
)

// RuleType names the kind of a rule in a PII config
type RuleType string

const (
	RulePattern    RuleType = "pattern"
	RuleImei       RuleType = "imei"
	RuleMac        RuleType = "mac"
	RuleUUID       RuleType = "uuid"
	RuleEmail      RuleType = "email"
	RuleIP         RuleType = "ip"
	RuleCreditcard RuleType = "creditcard"
	RulePemkey     RuleType = "pemkey"
	RuleURLAuth    RuleType = "urlauth"
	RuleUsSsn      RuleType = "usssn"
	RuleUserPath   RuleType = "userpath"
	RulePassword   RuleType = "password"
	RuleAnything   RuleType = "anything"
	RuleRedactPair RuleType = "redactPair"
	RuleMultiple   RuleType = "multiple"
	RuleAlias      RuleType = "alias"
)

// RedactionMethod names what happens to matched content
type RedactionMethod string

const (
	RedactDefault RedactionMethod = "default"
	RedactRemove  RedactionMethod = "remove"
	RedactReplace RedactionMethod = "replace"
	RedactMask    RedactionMethod = "mask"
	RedactHash    RedactionMethod = "hash"
)

// Hash algorithms for the hash redaction
const (
	HashSHA1   = "HMAC-SHA1"
	HashSHA256 = "HMAC-SHA256"
	HashSHA512 = "HMAC-SHA512"
)

// Redaction describes how matched content is rewritten
type Redaction struct {
	Method RedactionMethod `json:"method"`
	// Text replaces the match for the replace method
	Text string `json:"text,omitempty"`
	// MaskChar, CharsToIgnore and Range configure the mask method. Range
	// holds [start, end] character offsets; negative values count from the
	// end and null means open.
	MaskChar      string `json:"maskChar,omitempty"`
	CharsToIgnore string `json:"charsToIgnore,omitempty"`
	Range         []*int `json:"range,omitempty"`
	// Algorithm and Key configure the hash method
	Algorithm string  `json:"algorithm,omitempty"`
	Key       *string `json:"key,omitempty"`
}

// RuleSpec is one named rule of a PII config
type RuleSpec struct {
	Type RuleType `json:"type"`
	// pattern rules
	Pattern       string `json:"pattern,omitempty"`
	ReplaceGroups []int  `json:"replaceGroups,omitempty"`
	// redactPair rules
	KeyPattern string `json:"keyPattern,omitempty"`
	// multiple and alias rules
	Rules     []string `json:"rules,omitempty"`
	Rule      string   `json:"rule,omitempty"`
	HideInner bool     `json:"hideInner,omitempty"`

	Redaction *Redaction `json:"redaction,omitempty"`
}

func (r RuleSpec) redaction() Redaction {
	if r.Redaction == nil || r.Redaction.Method == "" {
		return Redaction{Method: RedactDefault}
	}
	return *r.Redaction
}

// Vars are shared settings of a config
type Vars struct {
	HashKey *string `json:"hashKey"`
}

// Application binds a selector to an ordered list of rule references
type Application struct {
	Selector string
	Rules    []string
}

// Applications keeps the declaration order of the JSON object it was read
// from. Rules of several matching selectors apply in this order.
type Applications []Application

// Config is the declarative PII configuration of a project
type Config struct {
	Rules        map[string]RuleSpec `json:"rules"`
	Vars         Vars                `json:"vars"`
	Applications Applications        `json:"applications"`
}

// ParseConfig decodes a PII config document
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse pii config: %w", err)
	}
	if cfg.Rules == nil {
		cfg.Rules = map[string]RuleSpec{}
	}
	return cfg, nil
}

// ToJSON encodes the config; rules are sorted by name and applications keep
// their order.
func (c *Config) ToJSON() ([]byte, error) {
	out := *c
	if out.Rules == nil {
		out.Rules = map[string]RuleSpec{}
	}
	if out.Applications == nil {
		out.Applications = Applications{}
	}
	return json.MarshalWithOption(&out, json.DisableHTMLEscape())
}

// Add appends an application
func (a *Applications) Add(selector string, rules ...string) {
	*a = append(*a, Application{Selector: selector, Rules: rules})
}

// MarshalJSON encodes the applications as an object in declaration order
func (a Applications) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, app := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.MarshalWithOption(app.Selector, json.DisableHTMLEscape())
		if err != nil {
			return nil, err
		}
		rules := app.Rules
		if rules == nil {
			rules = []string{}
		}
		value, err := json.MarshalWithOption(rules, json.DisableHTMLEscape())
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object of selector to rule list, keeping order.
// A selector repeated in the document keeps its first position.
func (a *Applications) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*a = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("applications must be an object")
	}

	var apps Applications
	seen := map[string]int{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("invalid application key %v", keyTok)
		}
		var rules []string
		if err := dec.Decode(&rules); err != nil {
			return fmt.Errorf("application %q: %w", key, err)
		}
		if idx, dup := seen[key]; dup {
			apps[idx].Rules = rules
			continue
		}
		seen[key] = len(apps)
		apps = append(apps, Application{Selector: key, Rules: rules})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*a = apps
	return nil
}
