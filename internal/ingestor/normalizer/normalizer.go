// Package normalizer maps source-specific raw trades onto the canonical
// candidate shape shared by the rest of the pipeline.
package normalizer

import (
	"errors"
	"strings"

	"insidertrack/internal/ingestor/dto"
	"insidertrack/pkg/utils"

	"github.com/andres-erbsen/clock"
	"github.com/shopspring/decimal"
)

var (
	ErrMissingTicker    = errors.New("missing ticker")
	ErrMissingTrader    = errors.New("missing trader name")
	ErrMissingTradeDate = errors.New("missing or unparseable trade date")
)

var tickerCleaner = strings.NewReplacer("$", "", "(", "", ")", "", " ", "")

// Normalizer converts RawTrade values into CandidateTrade values.
type Normalizer struct {
	clock clock.Clock
}

// New creates a Normalizer. A nil clock uses the wall clock.
func New(clk clock.Clock) *Normalizer {
	if clk == nil {
		clk = clock.New()
	}
	return &Normalizer{clock: clk}
}

// Normalize maps raw into a candidate. It fails only when the trade cannot
// be identified at all; anything else that looks wrong is left for the
// validator to score.
func (n *Normalizer) Normalize(raw dto.RawTrade, sourceName string) (dto.CandidateTrade, error) {
	now := n.clock.Now().UTC()

	ticker := normalizeTicker(raw.Ticker)
	if ticker == "" {
		return dto.CandidateTrade{}, ErrMissingTicker
	}
	trader := utils.CleanToValidUTF8(raw.TraderName)
	if trader == "" {
		return dto.CandidateTrade{}, ErrMissingTrader
	}
	tradeDate, err := ParseDate(raw.TradeDate, now)
	if err != nil {
		return dto.CandidateTrade{}, ErrMissingTradeDate
	}

	c := dto.CandidateTrade{
		Ticker:      ticker,
		CompanyName: utils.CleanToValidUTF8(raw.CompanyName),
		TraderName:  trader,
		TraderTitle: utils.CleanToValidUTF8(raw.TraderTitle),
		TradeType:   ParseTradeType(raw.TradeType),
		TradeDate:   tradeDate,
		SourceName:  sourceName,
		SourceURL:   firstNonEmpty(raw.FilingURL, raw.SourceURL),
	}
	if filed, err := ParseDate(raw.FiledDate, now); err == nil {
		c.FiledDate = &filed
	}

	c.Shares, _ = ParseShares(raw.Shares)
	price, priceErr := ParseNumber(raw.Price)
	value, valueErr := ParseNumber(raw.Value)
	price, value = price.Abs(), value.Abs()

	switch {
	case priceErr == nil && valueErr == nil:
		c.PricePerShare, c.TotalValue, c.ValueReported = price, value, true
	case priceErr == nil:
		c.PricePerShare = price
		c.TotalValue = price.Mul(decimal.NewFromInt(c.Shares))
	case valueErr == nil && c.Shares > 0:
		c.TotalValue = value
		c.PricePerShare = value.Div(decimal.NewFromInt(c.Shares)).Round(4)
	case valueErr == nil:
		c.TotalValue, c.ValueReported = value, true
	}

	c.Fingerprint = Fingerprint(c.Ticker, c.TraderName, c.TradeDate, c.Shares, c.PricePerShare)
	if id := strings.TrimSpace(raw.FilingID); id != "" {
		c.FilingID = id
		c.NativeFilingID = true
	} else {
		c.FilingID = SyntheticFilingID(sourceName, c.Fingerprint)
	}
	return c, nil
}

func normalizeTicker(s string) string {
	s = strings.ToUpper(tickerCleaner.Replace(strings.TrimSpace(s)))
	// Exchange prefixes such as "NASDAQ:AAPL".
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
