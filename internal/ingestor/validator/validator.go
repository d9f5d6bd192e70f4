// Package validator scores candidate trades for authenticity and
// integrity before they reach the store.
package validator

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"insidertrack/internal/ingestor/dto"
	"insidertrack/pkg/utils"

	"github.com/andres-erbsen/clock"
	"github.com/shopspring/decimal"
)

var (
	tickerPattern    = regexp.MustCompile(`^[A-Z0-9]{1,5}([.\-][A-Z0-9]{1,2})?$`)
	accessionPattern = regexp.MustCompile(`^\d{10}-\d{2}-\d{6}(:\d+)?$`)
	syntheticPattern = regexp.MustCompile(`^[a-z0-9_\-]+:[0-9a-f]{24}$`)

	minPrice = decimal.RequireFromString("0.01")
	maxPrice = decimal.NewFromInt(10_000)
)

var templateMarkers = []string{"{{", "}}", "${", "<", ">", "lorem", "tbd", "xxx"}

// Validator assigns a confidence score and verdict to candidates.
type Validator struct {
	policy Policy
	clock  clock.Clock
}

// New creates a Validator. A nil clock uses the wall clock.
func New(policy Policy, clk clock.Clock) *Validator {
	if clk == nil {
		clk = clock.New()
	}
	return &Validator{policy: policy, clock: clk}
}

// Policy returns the policy in effect.
func (v *Validator) Policy() Policy {
	return v.policy
}

// ValidTicker reports whether s is a plausible exchange symbol.
func ValidTicker(s string) bool {
	return tickerPattern.MatchString(s)
}

// Validate scores c. Block-list hits force confidence 0 and a FAKE
// verdict; every other issue subtracts its penalty.
func (v *Validator) Validate(c dto.CandidateTrade) dto.ValidationResult {
	if hits := v.blocklistHits(c); len(hits) > 0 {
		return dto.ValidationResult{
			Verdict: dto.VerdictFake,
			Issues:  hits,
		}
	}

	p := v.policy.Penalties
	score := 100
	var issues []string
	invalid := false
	penalize := func(points int, format string, args ...any) {
		score -= points
		issues = append(issues, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(c.FilingID) == "" {
		penalize(p.MissingFilingID, "missing filing id")
	} else if !v.filingIDMatchesSource(c) {
		penalize(p.FilingIDFormat, "filing id %q is not a valid %s identifier", c.FilingID, c.SourceName)
	}

	if strings.TrimSpace(c.CompanyName) == "" || strings.TrimSpace(c.TraderName) == "" {
		penalize(p.MissingName, "missing company or trader name")
	}

	if !ValidTicker(c.Ticker) {
		penalize(p.TickerBounds, "ticker %q outside 1-5 character bounds", c.Ticker)
		invalid = true
	}

	if c.Shares <= 0 || c.PricePerShare.LessThan(minPrice) || c.PricePerShare.GreaterThan(maxPrice) {
		penalize(p.InvalidAmount, "implausible amount: %d shares at %s", c.Shares, c.PricePerShare.StringFixed(2))
	} else if c.ValueReported {
		expected := c.PricePerShare.Mul(decimal.NewFromInt(c.Shares))
		diff := c.TotalValue.Sub(expected).Abs()
		// diff/expected > tolerance%, kept in integer-friendly form.
		if diff.Mul(decimal.NewFromInt(100)).GreaterThan(expected.Mul(decimal.NewFromFloat(v.policy.ValueTolerancePercent))) {
			penalize(p.ValueMismatch, "total value %s differs from shares x price %s", c.TotalValue.StringFixed(2), expected.StringFixed(2))
		}
	}

	today := utils.DateOnly(v.clock.Now())
	tradeDate := utils.DateOnly(c.TradeDate)
	if tradeDate.After(today) || (c.FiledDate != nil && utils.DateOnly(*c.FiledDate).After(today)) {
		penalize(p.FutureDate, "date in the future")
		invalid = true
	}
	if c.FiledDate != nil {
		if lag := utils.DaysBetween(*c.FiledDate, tradeDate); lag > v.policy.MaxFilingLagDays {
			penalize(p.FiledBeforeTrade, "filed %d days before trade date", lag)
		}
	}
	if v.policy.MaxTradeAgeYears > 0 && tradeDate.Before(today.AddDate(-v.policy.MaxTradeAgeYears, 0, 0)) {
		penalize(p.StaleTrade, "trade older than %d years", v.policy.MaxTradeAgeYears)
	}

	if reason := templated(c); reason != "" {
		penalize(p.Templated, "templated data: %s", reason)
	}

	if score < 0 {
		score = 0
	}
	return dto.ValidationResult{
		IsValid:    !invalid && score >= v.policy.AcceptThreshold,
		IsReal:     true,
		Verdict:    dto.VerdictReal,
		Confidence: score,
		Issues:     issues,
	}
}

func (v *Validator) blocklistHits(c dto.CandidateTrade) []string {
	fields := []struct{ name, value string }{
		{"trader_name", c.TraderName},
		{"company_name", c.CompanyName},
		{"trader_title", c.TraderTitle},
		{"ticker", c.Ticker},
	}
	var hits []string
	for _, f := range fields {
		lower := strings.ToLower(f.value)
		for _, term := range v.policy.Blocklist {
			if strings.Contains(lower, term) {
				hits = append(hits, fmt.Sprintf("blocked pattern %q in %s", term, f.name))
				break
			}
		}
	}
	return hits
}

// filingIDMatchesSource accepts a synthetic id only under its own source
// prefix and otherwise expects an SEC accession number.
func (v *Validator) filingIDMatchesSource(c dto.CandidateTrade) bool {
	id := c.FilingID
	if prefix, _, ok := strings.Cut(id, ":"); ok && !accessionPattern.MatchString(id) {
		return prefix == c.SourceName && syntheticPattern.MatchString(id)
	}
	return accessionPattern.MatchString(id)
}

func templated(c dto.CandidateTrade) string {
	if c.CompanyName != "" && strings.EqualFold(strings.TrimSpace(c.TraderName), strings.TrimSpace(c.CompanyName)) {
		return "trader name repeats company name"
	}
	for _, s := range []string{c.TraderName, c.CompanyName, c.TraderTitle} {
		lower := strings.ToLower(s)
		for _, marker := range templateMarkers {
			if strings.Contains(lower, marker) {
				return fmt.Sprintf("marker %q", marker)
			}
		}
		if hasRepeatedRun(lower, 4) {
			return fmt.Sprintf("repeated characters in %q", s)
		}
	}
	if digits := fmt.Sprint(c.Shares); len(digits) >= 5 && (strings.Count(digits, digits[:1]) == len(digits) || strings.Contains("0123456789", digits)) {
		return fmt.Sprintf("patterned share count %s", digits)
	}
	return ""
}

// hasRepeatedRun reports whether s contains the same letter or digit n
// times in a row.
func hasRepeatedRun(s string, n int) bool {
	run := 0
	var prev rune
	for _, r := range s {
		if r == prev && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			run++
		} else {
			run = 1
		}
		if run >= n {
			return true
		}
		prev = r
	}
	return false
}
