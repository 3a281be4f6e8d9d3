package schema

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	quoteStrip   = strings.NewReplacer(`"`, "", "'", "", "\ufeff", "")
)

// NormalizeHeader folds a header for comparison: NFC, trimmed, lowercase,
// single-spaced, without quote characters or byte order marks.
func NormalizeHeader(h string) string {
	s := norm.NFC.String(h)
	s = quoteStrip.Replace(s)
	s = strings.ToLower(strings.TrimSpace(s))
	return whitespaceRe.ReplaceAllString(s, " ")
}

// firstNonEmpty returns the first non-blank value.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
