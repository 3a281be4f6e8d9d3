package schema

import "regexp"

var (
	crtIDParamRe = regexp.MustCompile(`(?i)id=(\d+)`)
	crtDigitsRe  = regexp.MustCompile(`\d{4,}`)
)

// ExtractCRTNumber pulls a customer number out of a CRT link: the value of an
// id= parameter, else the first run of four or more digits.
func ExtractCRTNumber(link string) string {
	if m := crtIDParamRe.FindStringSubmatch(link); m != nil {
		return m[1]
	}
	return crtDigitsRe.FindString(link)
}
