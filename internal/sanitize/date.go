package sanitize

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const isoDate = "2006-01-02"

var dayMonthYearRe = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)

// dateLayouts are tried in order after the day-first form.
var dateLayouts = []string{
	isoDate,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"1/2/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"2 Jan 2006",
	"2 January 2006",
	"02-Jan-2006",
	"2-Jan-2006",
	"02.01.2006",
	time.RFC1123,
	time.RFC1123Z,
}

// Date normalizes a date to YYYY-MM-DD in UTC. Slash dates are read
// day-first; a slash date that is not a valid day-first date is retried
// month-first. Unparseable input yields "".
func Date(v string) string {
	s := strings.TrimSpace(v)
	if s == "" {
		return ""
	}

	if m := dayMonthYearRe.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC); t.Day() == day && int(t.Month()) == month {
			return t.Format(isoDate)
		}
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(isoDate)
		}
	}
	return ""
}
