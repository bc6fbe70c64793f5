package pii

import (
	"sort"
	"strings"
)

// BuiltinPrefix marks rule references resolved from the built-in table.
// Built-ins take precedence over custom rules of the same name.
const BuiltinPrefix = "@"

func intPtr(n int) *int { return &n }

func replaceWith(text string) *Redaction {
	return &Redaction{Method: RedactReplace, Text: text}
}

func hashDefault() *Redaction {
	return &Redaction{Method: RedactHash, Algorithm: HashSHA1}
}

func alias(rule string, hideInner bool) RuleSpec {
	return RuleSpec{Type: RuleAlias, Rule: rule, HideInner: hideInner}
}

// builtinRules is the fixed library of detectors. Plain names are aliases
// for their preferred variant; "@common" bundles the default set.
var builtinRules = map[string]RuleSpec{
	"@common": {
		Type:  RuleMultiple,
		Rules: []string{"@ip", "@email", "@creditcard", "@pemkey", "@usssn", "@password"},
	},

	// anything
	"@anything":         alias("@anything:replace", true),
	"@anything:remove":  {Type: RuleAnything, Redaction: &Redaction{Method: RedactRemove}},
	"@anything:replace": {Type: RuleAnything, Redaction: replaceWith("[redacted]")},
	"@anything:hash":    {Type: RuleAnything, Redaction: hashDefault()},

	// ip
	"@ip":         alias("@ip:replace", true),
	"@ip:replace": {Type: RuleIP, Redaction: replaceWith("[ip]")},
	"@ip:hash":    {Type: RuleIP, Redaction: hashDefault()},

	// imei
	"@imei":         alias("@imei:replace", true),
	"@imei:replace": {Type: RuleImei, Redaction: replaceWith("[imei]")},
	"@imei:hash":    {Type: RuleImei, Redaction: hashDefault()},

	// mac
	"@mac":         alias("@mac:mask", true),
	"@mac:replace": {Type: RuleMac, Redaction: replaceWith("[mac]")},
	"@mac:mask": {Type: RuleMac, Redaction: &Redaction{
		Method: RedactMask, MaskChar: "*", CharsToIgnore: "-:", Range: []*int{intPtr(9), nil},
	}},
	"@mac:hash": {Type: RuleMac, Redaction: hashDefault()},

	// uuid
	"@uuid":         alias("@uuid:mask", true),
	"@uuid:mask":    {Type: RuleUUID, Redaction: &Redaction{Method: RedactMask, MaskChar: "*", CharsToIgnore: "-"}},
	"@uuid:hash":    {Type: RuleUUID, Redaction: hashDefault()},
	"@uuid:replace": {Type: RuleUUID, Redaction: replaceWith("[uuid]")},

	// email
	"@email":         alias("@email:replace", true),
	"@email:mask":    {Type: RuleEmail, Redaction: &Redaction{Method: RedactMask, MaskChar: "*", CharsToIgnore: ".@"}},
	"@email:replace": {Type: RuleEmail, Redaction: replaceWith("[email]")},
	"@email:hash":    {Type: RuleEmail, Redaction: hashDefault()},

	// creditcard
	"@creditcard": alias("@creditcard:replace", false),
	"@creditcard:mask": {Type: RuleCreditcard, Redaction: &Redaction{
		Method: RedactMask, MaskChar: "*", CharsToIgnore: " -", Range: []*int{nil, intPtr(-4)},
	}},
	"@creditcard:replace": {Type: RuleCreditcard, Redaction: replaceWith("[creditcard]")},
	"@creditcard:hash":    {Type: RuleCreditcard, Redaction: hashDefault()},

	// pem keys
	"@pemkey":         alias("@pemkey:replace", true),
	"@pemkey:replace": {Type: RulePemkey, Redaction: replaceWith("[pemkey]")},
	"@pemkey:hash":    {Type: RulePemkey, Redaction: hashDefault()},

	// url credentials
	"@urlauth":         alias("@urlauth:replace", true),
	"@urlauth:replace": {Type: RuleURLAuth, Redaction: replaceWith("[auth]")},
	"@urlauth:hash":    {Type: RuleURLAuth, Redaction: hashDefault()},

	// us social security numbers
	"@usssn": alias("@usssn:mask", true),
	"@usssn:mask": {Type: RuleUsSsn, Redaction: &Redaction{
		Method: RedactMask, MaskChar: "*", CharsToIgnore: "-",
	}},
	"@usssn:replace": {Type: RuleUsSsn, Redaction: replaceWith("[us-ssn]")},
	"@usssn:hash":    {Type: RuleUsSsn, Redaction: hashDefault()},

	// user names in file paths
	"@userpath":         alias("@userpath:replace", true),
	"@userpath:replace": {Type: RuleUserPath, Redaction: replaceWith("[user]")},
	"@userpath:hash":    {Type: RuleUserPath, Redaction: hashDefault()},

	// sensitive keys
	"@password":        {Type: RulePassword, Redaction: &Redaction{Method: RedactRemove}},
	"@password:remove": {Type: RulePassword, Redaction: &Redaction{Method: RedactRemove}},
}

// BuiltinRule looks up a built-in rule by reference
func BuiltinRule(name string) (RuleSpec, bool) {
	if !strings.HasPrefix(name, BuiltinPrefix) {
		return RuleSpec{}, false
	}
	spec, ok := builtinRules[name]
	return spec, ok
}

// BuiltinRuleNames lists every built-in reference in sorted order
func BuiltinRuleNames() []string {
	names := make([]string, 0, len(builtinRules))
	for name := range builtinRules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
