// Package dedup decides whether a candidate trade is already stored.
package dedup

import (
	"context"
	"errors"
	"time"

	"insidertrack/internal/entity"
	"insidertrack/internal/ingestor/dto"
	"insidertrack/internal/ingestor/normalizer"
	"insidertrack/internal/ingestor/repository"
	"insidertrack/pkg/logger"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
)

// Strategy names the layer that found a match.
type Strategy string

const (
	StrategyFilingID    Strategy = "filing_id"
	StrategyFingerprint Strategy = "fingerprint"
	StrategyFuzzy       Strategy = "fuzzy"
)

// Match is an existing record equivalent to a candidate.
type Match struct {
	Trade    *entity.InsiderTrade
	Strategy Strategy
}

// Options tunes a Deduplicator.
type Options struct {
	// RecentWindow bounds the fuzzy scan to this many stored trades.
	RecentWindow int
	// ValueTolerance is the absolute total-value difference, in dollars,
	// still considered the same trade by the fuzzy layer.
	ValueTolerance float64
	// DayTolerance is the trade-date distance accepted by the fuzzy layer.
	DayTolerance int
	// CacheTTL keeps recently seen keys in memory; 0 disables the cache.
	CacheTTL time.Duration
}

// Deduplicator enforces at most one canonical record per filing event.
type Deduplicator struct {
	repo repository.InsiderTradeRepository
	log  *logger.Logger
	opts Options

	cache *cache.Cache
}

func New(repo repository.InsiderTradeRepository, log *logger.Logger, opts Options) *Deduplicator {
	if opts.RecentWindow <= 0 {
		opts.RecentWindow = 500
	}
	d := &Deduplicator{repo: repo, log: log, opts: opts}
	if opts.CacheTTL > 0 {
		d.cache = cache.New(opts.CacheTTL, 2*opts.CacheTTL)
	}
	return d
}

// FindExisting returns the stored trade matching c, trying the filing id,
// then the fingerprint, then the fuzzy rule. A candidate with a native
// filing id only matches by fingerprint a trade from another source. recentWindow overrides the
// configured window when positive. A nil match means c is new.
func (d *Deduplicator) FindExisting(ctx context.Context, c dto.CandidateTrade, recentWindow int) (*Match, error) {
	if c.FilingID != "" {
		trade, err := d.lookup(ctx, "id:"+c.FilingID, func() (*entity.InsiderTrade, error) {
			return d.repo.FindByFilingID(ctx, c.FilingID)
		})
		if err != nil || trade != nil {
			return match(trade, StrategyFilingID), err
		}
	}

	if c.Fingerprint != "" {
		trade, err := d.lookup(ctx, "fp:"+c.Fingerprint, func() (*entity.InsiderTrade, error) {
			return d.repo.FindByFingerprint(ctx, c.Fingerprint)
		})
		if err != nil {
			return nil, err
		}
		// A native filing id is authoritative within its source: two lines
		// of one filing may share every fingerprinted field.
		if trade != nil && !(c.NativeFilingID && trade.SourceName == c.SourceName) {
			return match(trade, StrategyFingerprint), nil
		}
	}

	trade, err := d.fuzzy(ctx, c, recentWindow)
	if err != nil || trade == nil {
		return nil, err
	}
	d.log.DebugContext(ctx, "Fuzzy duplicate found",
		logger.StringField("filing_id", c.FilingID),
		logger.StringField("existing_filing_id", trade.FilingID),
		logger.StringField("existing_source", trade.SourceName),
	)
	return match(trade, StrategyFuzzy), nil
}

// Remember records a freshly stored trade in the cache.
func (d *Deduplicator) Remember(trade *entity.InsiderTrade) {
	if d.cache == nil || trade == nil {
		return
	}
	stored := *trade
	d.cache.SetDefault("id:"+trade.FilingID, &stored)
	d.cache.SetDefault("fp:"+trade.Fingerprint, &stored)
}

func (d *Deduplicator) lookup(ctx context.Context, key string, load func() (*entity.InsiderTrade, error)) (*entity.InsiderTrade, error) {
	if d.cache != nil {
		if v, ok := d.cache.Get(key); ok {
			return v.(*entity.InsiderTrade), nil
		}
	}
	trade, err := load()
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if d.cache != nil {
		d.cache.SetDefault(key, trade)
	}
	return trade, nil
}

// fuzzy matches a record from another source with the same ticker and
// trader, a close total value and a trade date at most DayTolerance away.
// Same-source records are never fuzzy matched, so repeat trades by one
// insider on one day from a single source stay distinct.
func (d *Deduplicator) fuzzy(ctx context.Context, c dto.CandidateTrade, recentWindow int) (*entity.InsiderTrade, error) {
	if c.Ticker == "" || c.TradeDate.IsZero() {
		return nil, nil
	}
	window := d.opts.RecentWindow
	if recentWindow > 0 {
		window = recentWindow
	}

	from := c.TradeDate.AddDate(0, 0, -d.opts.DayTolerance)
	to := c.TradeDate.AddDate(0, 0, d.opts.DayTolerance)
	recent, err := d.repo.FindRecentByTicker(ctx, c.Ticker, from, to, window)
	if err != nil {
		return nil, err
	}

	name := normalizer.NormalizeName(c.TraderName)
	tolerance := decimal.NewFromFloat(d.opts.ValueTolerance)
	for i := range recent {
		t := &recent[i]
		if t.SourceName == c.SourceName {
			continue
		}
		if normalizer.NormalizeName(t.TraderName) != name {
			continue
		}
		if t.TotalValue.Sub(c.TotalValue).Abs().GreaterThan(tolerance) {
			continue
		}
		return t, nil
	}
	return nil, nil
}

func match(trade *entity.InsiderTrade, s Strategy) *Match {
	if trade == nil {
		return nil
	}
	return &Match{Trade: trade, Strategy: s}
}
