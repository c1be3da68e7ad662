package extract

import (
	"strconv"
	"strings"
	"time"
)

// dateLayouts are the date shapes the portal has been seen rendering.
var dateLayouts = []string{
	"01/02/2006",
	"1/2/2006",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"02-Jan-2006",
}

// NormalizeDate reduces a portal date string to YYYY/MM/DD for key
// comparison. Unrecognized input is returned trimmed, so two scrapes of the
// same odd string still compare equal.
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006/01/02")
		}
	}
	return s
}

// NormalizeAmount strips currency symbols and thousands separators so the
// value can be parsed for arithmetic. The display-formatted original is kept
// on the records; this form is only for comparison and math.
func NormalizeAmount(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "PHP")
	s = strings.TrimPrefix(s, "Php")
	s = strings.TrimPrefix(s, "₱")
	s = strings.ReplaceAll(s, ",", "")
	return strings.TrimSpace(s)
}

// AmountValue parses a portal amount for arithmetic. Parenthesized amounts
// are negative per accounting convention. Returns 0 for blank or garbage.
func AmountValue(s string) float64 {
	s = NormalizeAmount(s)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.Trim(s, "()")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	if negative {
		return -v
	}
	return v
}
