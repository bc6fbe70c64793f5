package pii

import (
	"net"
	"regexp"
	"strings"
)

// Detector patterns of the built-in rule types, one per entity
var (
	imeiRegex = regexp.MustCompile(`\b(?:\d{2}-?\d{6}-?\d{6}-?\d{1,2})\b`)

	macRegex = regexp.MustCompile(`(?i)\b(?:[0-9a-f]{2}[:-]){5}[0-9a-f]{2}\b`)

	uuidRegex = regexp.MustCompile(`(?i)\b[a-f0-9]{8}-?[a-f0-9]{4}-?[1-5][a-f0-9]{3}-?[89ab][a-f0-9]{3}-?[a-f0-9]{12}\b`)

	emailRegex = regexp.MustCompile("\\b[a-zA-Z0-9.!#$%&'*+/=?^_`{|}~-]+@[a-zA-Z0-9-]+(?:\\.[a-zA-Z0-9-]+)*\\b")

	// IPv4 literals, or runs of hex groups and colons that are confirmed as
	// IPv6 addresses by ipCandidateValid
	ipRegex = regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b` +
		`|(?i:(?:[0-9a-f]{1,4})?(?::(?:[0-9a-f]{1,4})?){2,7})`)

	// Card numbers need a known issuer prefix, which keeps 16 digit
	// timestamps and counters from matching.
	creditcardRegex = regexp.MustCompile(`\b(?:3[47]\d(?:[- ]?\d){10,16}|(?:(?:4\d|5[1-5]|65)\d{2}|6011)(?:[- ]?\d){9,15})\b`)

	pemkeyRegex = regexp.MustCompile(`(?s)(?:-----BEGIN[A-Z ]+(?:PRIVATE|PUBLIC) KEY-----[\t ]*\r?\n?)(.+?)(?:\r?\n?-----END[A-Z ]+(?:PRIVATE|PUBLIC) KEY-----)`)

	urlAuthRegex = regexp.MustCompile(`(?i)\b(?:[a-z][a-z0-9+.-]*:)?//([a-z0-9%_.~-]+(?::[^/@\s]*)?)@`)

	usSsnRegex = regexp.MustCompile(`\b([0-9]{3}-[0-9]{2}-[0-9]{4})\b`)

	userPathRegex = regexp.MustCompile(`(?i)(?:\b[a-z]:[\\/](?:users|documents and settings)[\\/]|/(?:home|users)/)([^\\/\s'"]+)`)

	passwordKeyRegex = regexp.MustCompile(`(?i)(password|secret|passwd|api_key|apikey|access_token|auth|credentials|mysql_pwd|stripetoken)`)

	anythingRegex = regexp.MustCompile(`(?s).+`)
)

// ipCandidateValid rejects hex and colon runs such as clock times that are
// not real addresses.
func ipCandidateValid(match string) bool {
	if !strings.Contains(match, ":") {
		return true
	}
	groups := 0
	for _, g := range strings.Split(match, ":") {
		if g != "" {
			groups++
		}
	}
	return groups >= 2 && net.ParseIP(match) != nil
}
