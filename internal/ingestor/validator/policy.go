package validator

import (
	"strings"

	"insidertrack/internal/ingestor/config"
)

// Policy is the integrity policy a Validator applies. It is built once per
// Validator so tests can run several policies side by side.
type Policy struct {
	Blocklist             []string
	AcceptThreshold       int
	ValueTolerancePercent float64
	MaxFilingLagDays      int
	MaxTradeAgeYears      int
	Penalties             config.Penalties
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		Blocklist: []string{
			"test", "sample", "fake", "mock", "dummy", "example", "demo",
			"placeholder", "simulation", "john doe", "jane doe", "lorem ipsum",
		},
		AcceptThreshold:       50,
		ValueTolerancePercent: 5,
		MaxFilingLagDays:      30,
		MaxTradeAgeYears:      5,
		Penalties: config.Penalties{
			MissingFilingID:  30,
			MissingName:      25,
			TickerBounds:     20,
			FilingIDFormat:   40,
			ValueMismatch:    20,
			FutureDate:       30,
			FiledBeforeTrade: 10,
			StaleTrade:       5,
			Templated:        15,
			InvalidAmount:    25,
		},
	}
}

// PolicyFromConfig builds a Policy from the validation config section.
func PolicyFromConfig(cfg config.Validation) Policy {
	p := Policy{
		AcceptThreshold:       cfg.AcceptThreshold,
		ValueTolerancePercent: cfg.ValueTolerancePercent,
		MaxFilingLagDays:      cfg.MaxFilingLagDays,
		MaxTradeAgeYears:      cfg.MaxTradeAgeYears,
		Penalties:             cfg.Penalties,
	}
	for _, term := range cfg.Blocklist {
		if term = strings.ToLower(strings.TrimSpace(term)); term != "" {
			p.Blocklist = append(p.Blocklist, term)
		}
	}
	if len(p.Blocklist) == 0 {
		p.Blocklist = DefaultPolicy().Blocklist
	}
	return p
}
