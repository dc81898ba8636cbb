package engine

// period.go normalizes free-text date cells into a (period label, year)
// pair for the financial ledger flow.
//
// Numeric day/month patterns assume the first group is the month. That
// assumption is wrong for day-first locales, but it is the behaviour the
// product has always shipped and the ledger merge keys depend on it, so it
// stays. Do not "fix" it here.

import (
	"regexp"
	"strconv"
	"strings"
)

// monthNames is the canonical period-label table. The index of a label is
// its chronological position within a year.
var monthNames = []string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// Period identifies one ledger row: a period label plus a year.
// Year 0 means the year could not be determined.
type Period struct {
	Label string `json:"label"`
	Year  int    `json:"year"`
}

// Key serializes the period as "<label>-<year>", the ledger's unique key.
func (p Period) Key() string {
	return p.Label + "-" + strconv.Itoa(p.Year)
}

// MonthIndex returns the 0-based chronological index of the period label,
// or -1 when the label is not a known month name.
func (p Period) MonthIndex() int {
	return monthIndex(p.Label)
}

// monthIndex resolves full month names and their 3-letter abbreviations;
// exports write "Jan" as often as "January". Anything else is -1.
func monthIndex(label string) int {
	for i, m := range monthNames {
		if strings.EqualFold(m, label) || strings.EqualFold(m[:3], label) {
			return i
		}
	}
	return -1
}

var (
	reMonthFirst = regexp.MustCompile(`^(\d{1,2})[/-]\d{1,2}[/-](\d{4})$`)
	reISO        = regexp.MustCompile(`^(\d{4})[/-](\d{1,2})[/-]\d{1,2}$`)
	reWordYear   = regexp.MustCompile(`^([A-Za-z]+)\s*(\d{4})$`)
	reYearMonth  = regexp.MustCompile(`^(\d{4})[/-](\d{1,2})$`)
	reMonthYear  = regexp.MustCompile(`^(\d{1,2})[/-](\d{4})$`)
	reBareWord   = regexp.MustCompile(`^[^\d]+$`)
)

// NormalizePeriod parses a free-text date cell. Pattern attempts are
// ordered and the first match wins; anything unrecognized falls through to
// a raw-label period with an unknown year.
func NormalizePeriod(cell string) Period {
	s := strings.TrimSpace(cell)

	if m := reMonthFirst.FindStringSubmatch(s); m != nil {
		return Period{Label: monthLabel(m[1]), Year: atoi(m[2])}
	}
	if m := reISO.FindStringSubmatch(s); m != nil {
		return Period{Label: monthLabel(m[2]), Year: atoi(m[1])}
	}
	if m := reWordYear.FindStringSubmatch(s); m != nil {
		// The word is kept verbatim ("Q1 2025" stays "Q1").
		return Period{Label: m[1], Year: atoi(m[2])}
	}
	if m := reYearMonth.FindStringSubmatch(s); m != nil {
		return Period{Label: monthLabel(m[2]), Year: atoi(m[1])}
	}
	if m := reMonthYear.FindStringSubmatch(s); m != nil {
		return Period{Label: monthLabel(m[1]), Year: atoi(m[2])}
	}
	if reBareWord.MatchString(s) && s != "" {
		return Period{Label: s}
	}
	return Period{Label: s}
}

// monthLabel maps a 1-based numeric month to its canonical label.
// Out-of-range values keep their numeric form so the cell is still visible
// in error output.
func monthLabel(num string) string {
	n := atoi(num)
	if n >= 1 && n <= 12 {
		return monthNames[n-1]
	}
	return num
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// YearScanRows is how many leading date cells DetectYear inspects.
var YearScanRows = 5

// PlausibleYear reports whether a parsed year is usable as a ledger year.
func PlausibleYear(y int) bool {
	return y > 1900 && y < 2100
}

// DetectYear scans the first few cells of the mapped date column for a
// plausible year. Returns 0 when none is found, in which case the caller
// must supply a manual fallback year before the import can start.
func DetectYear(t RawTable, headers []string, dateHeader string) int {
	col := headerIndexOf(headers, dateHeader)
	if col < 0 {
		return 0
	}
	for i, row := range t.Rows {
		if i >= YearScanRows {
			break
		}
		if col >= len(row) {
			continue
		}
		if p := NormalizePeriod(row[col]); PlausibleYear(p.Year) {
			return p.Year
		}
	}
	return 0
}

func headerIndexOf(headers []string, header string) int {
	for i, h := range headers {
		if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(header)) {
			return i
		}
	}
	return -1
}
