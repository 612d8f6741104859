package identity

import "strings"

// NormalizeEmail performs case-insensitive canonicalization.
// Trim + lower-case only; anything stricter (unicode confusables, plus-tag
// stripping) would change which accounts collide and is a policy decision.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidEmail is a minimal structural check: one "@" with non-empty local part
// and a domain containing a dot. Full RFC 5322 validation is out of scope;
// deliverability is proven by the reset-email flow, not by parsing.
func ValidEmail(s string) bool {
	at := strings.IndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return false
	}
	domain := s[at+1:]
	if strings.IndexByte(domain, '.') <= 0 {
		return false
	}
	return !strings.ContainsAny(s, " \t\r\n")
}
