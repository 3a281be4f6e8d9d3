package sanitize

import (
	"regexp"
	"strings"
)

// placeholderTokens are spreadsheet artifacts that never identify a person.
var placeholderTokens = map[string]bool{
	"yes": true, "no": true, "y": true, "n": true,
	"true": true, "false": true, "1": true, "0": true,
	"ok": true, "na": true, "n/a": true, "none": true, "-": true,
}

var (
	numericDashRe = regexp.MustCompile(`^[0-9\-\s]+$`)
	digitsRe      = regexp.MustCompile(`^[0-9]+$`)
	nameWordRe    = regexp.MustCompile(`^[\p{L}'.\-]{2,}$`)
)

// IsMeaningful reports whether v looks like real data rather than a
// boolean-like placeholder, a bare number, or a stray short token.
func IsMeaningful(v string) bool {
	s := strings.TrimSpace(v)
	if s == "" || placeholderTokens[strings.ToLower(s)] {
		return false
	}
	if numericDashRe.MatchString(s) {
		return false
	}
	return len([]rune(s)) >= 3
}

// IsMeaningfulAdvisorName is the advisor-name variant of IsMeaningful: it
// accepts two-letter names such as "Li", "Last, First" forms and accented
// letters.
func IsMeaningfulAdvisorName(v string) bool {
	s := strings.TrimSpace(v)
	if s == "" || placeholderTokens[strings.ToLower(s)] {
		return false
	}
	if digitsRe.MatchString(s) || len([]rune(s)) < 2 {
		return false
	}
	if strings.ContainsAny(s, " ,") {
		return true
	}
	return nameWordRe.MatchString(s)
}

// LooksLikeName reports whether a value found in an email column is really a
// person's name: no '@' and at least one space or comma.
func LooksLikeName(v string) bool {
	s := strings.TrimSpace(v)
	return s != "" && !strings.Contains(s, "@") && strings.ContainsAny(s, " ,")
}
