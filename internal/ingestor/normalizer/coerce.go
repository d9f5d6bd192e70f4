package normalizer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"insidertrack/pkg/utils"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyValue   = errors.New("empty value")
	ErrInvalidValue = errors.New("invalid value")
)

var suffixMultipliers = map[byte]decimal.Decimal{
	'K': decimal.NewFromInt(1_000),
	'M': decimal.NewFromInt(1_000_000),
	'B': decimal.NewFromInt(1_000_000_000),
}

var numberCleaner = strings.NewReplacer("$", "", ",", "", " ", "", " ", "", "+", "", "USD", "")

// ParseNumber reads a money or quantity string such as "$1,234.50",
// "(1,000)", "-5,000" or "2.5M". The result keeps its sign.
func ParseNumber(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" || strings.EqualFold(s, "n/a") || s == "--" {
		return decimal.Zero, ErrEmptyValue
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.ToUpper(numberCleaner.Replace(s))
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = s[1:]
	}
	if s == "" {
		return decimal.Zero, ErrEmptyValue
	}

	multiplier := decimal.NewFromInt(1)
	if m, ok := suffixMultipliers[s[len(s)-1]]; ok {
		multiplier = m
		s = s[:len(s)-1]
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidValue, s)
	}
	d = d.Mul(multiplier)
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// ParseShares reads a share count; the sign is dropped because direction
// is carried by the trade type.
func ParseShares(s string) (int64, error) {
	d, err := ParseNumber(s)
	if err != nil {
		return 0, err
	}
	return d.Abs().Round(0).IntPart(), nil
}

var datedLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02-07:00",
	"1/2/2006",
	"01/02/2006",
	"1/2/06",
	"Jan 2 '06",
	"Jan 2, 2006",
	"Jan. 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"02-Jan-2006",
	"20060102",
}

var yearlessLayouts = []string{
	"Jan 2",
	"Jan 2 03:04 PM",
	"Jan 2 3:04 PM",
	"1/2",
}

// ParseDate reads the textual date formats used by the sources and returns
// the calendar date at midnight UTC. A date without a year takes the
// current year unless that lands in the future, in which case it takes the
// previous year.
func ParseDate(s string, now time.Time) (time.Time, error) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" || strings.EqualFold(s, "n/a") {
		return time.Time{}, ErrEmptyValue
	}

	for _, layout := range datedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return calendarDate(t), nil
		}
	}

	today := utils.DateOnly(now)
	for _, layout := range yearlessLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		candidate := time.Date(today.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		if candidate.After(today) {
			candidate = candidate.AddDate(-1, 0, 0)
		}
		return candidate, nil
	}

	return time.Time{}, fmt.Errorf("%w: unrecognized date %q", ErrInvalidValue, s)
}

// calendarDate keeps the date as written, dropping any zone offset.
func calendarDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
