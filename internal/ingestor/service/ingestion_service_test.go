package service

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"insidertrack/internal/entity"
	"insidertrack/internal/ingestor/config"
	"insidertrack/internal/ingestor/dedup"
	"insidertrack/internal/ingestor/dto"
	"insidertrack/internal/ingestor/normalizer"
	"insidertrack/internal/ingestor/notifier"
	"insidertrack/internal/ingestor/parser"
	"insidertrack/internal/ingestor/repository"
	"insidertrack/internal/ingestor/repository/storetest"
	"insidertrack/internal/ingestor/validator"
	"insidertrack/pkg/common"
	"insidertrack/pkg/logger"

	"github.com/andres-erbsen/clock"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func mockClock() *clock.Mock {
	mock := clock.NewMock()
	mock.Add(now.Sub(mock.Now()))
	return mock
}

type fakeFetcher struct {
	mu    sync.Mutex
	docs  map[string][]dto.RawDocument
	errs  map[string]error
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, source config.Source) (dto.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.errs[source.Name]; err != nil {
		return dto.FetchResult{}, err
	}
	return dto.FetchResult{Documents: f.docs[source.Name]}, nil
}

func (f *fakeFetcher) BreakerState(string) gobreaker.State {
	return gobreaker.StateClosed
}

// staticParser returns its trades for every document.
type staticParser struct {
	kind   string
	trades []dto.RawTrade
}

func (p *staticParser) GetKind() string { return p.kind }

func (p *staticParser) Parse(dto.RawDocument) dto.ParseResult {
	return dto.ParseResult{Trades: append([]dto.RawTrade(nil), p.trades...)}
}

type harness struct {
	svc     IngestionService
	fetcher *fakeFetcher
	parsers *parser.Registry
	trades  repository.InsiderTradeRepository
	blocked repository.BlockedTradeRepository
	runs    repository.IngestionRunRepository
	events  []string
}

func newHarness(t *testing.T, sources ...config.Source) *harness {
	t.Helper()
	db := storetest.NewDB(t)
	clk := mockClock()
	log := logger.NewNop()

	h := &harness{
		fetcher: &fakeFetcher{docs: map[string][]dto.RawDocument{}, errs: map[string]error{}},
		parsers: parser.NewRegistry(),
		trades:  repository.NewInsiderTradeRepository(db),
		blocked: repository.NewBlockedTradeRepository(db),
		runs:    repository.NewIngestionRunRepository(db),
	}
	for _, src := range sources {
		h.fetcher.docs[src.Name] = []dto.RawDocument{{Source: src.Name, URL: src.URL}}
	}

	broadcaster := notifier.BroadcasterFunc(func(_ context.Context, eventType string, _ any) error {
		h.events = append(h.events, eventType)
		return nil
	})
	deduplicator := dedup.New(h.trades, log, dedup.Options{RecentWindow: 500, ValueTolerance: 100, DayTolerance: 1})

	h.svc = NewIngestionService(
		&config.Config{Sources: sources},
		h.fetcher,
		h.parsers,
		normalizer.New(clk),
		validator.New(validator.DefaultPolicy(), clk),
		deduplicator,
		h.trades,
		h.blocked,
		h.runs,
		broadcaster,
		log,
		clk,
	)
	return h
}

func (h *harness) static(kind string, trades ...dto.RawTrade) *staticParser {
	p := &staticParser{kind: kind, trades: trades}
	h.parsers.Register(p)
	return p
}

func (h *harness) count(eventType string) int {
	n := 0
	for _, e := range h.events {
		if e == eventType {
			n++
		}
	}
	return n
}

func cookTrade() dto.RawTrade {
	return dto.RawTrade{
		Ticker:      "AAPL",
		CompanyName: "Apple Inc.",
		TraderName:  "Tim Cook",
		TraderTitle: "CEO",
		TradeType:   "Buy",
		Shares:      "1000",
		Price:       "$185.00",
		TradeDate:   "2024-01-15",
	}
}

func finvizFixture(t *testing.T) []byte {
	t.Helper()
	body, err := os.ReadFile("../parser/testdata/finviz.html")
	require.NoError(t, err)
	return body
}

func TestRunIngestionPartialFailure(t *testing.T) {
	src := config.Source{Name: "finviz", Kind: config.KindFinviz, URL: "https://finviz.com/insidertrading.ashx"}
	h := newHarness(t, src)
	h.fetcher.docs["finviz"] = []dto.RawDocument{{Source: "finviz", URL: src.URL, Body: finvizFixture(t)}}

	summary, err := h.svc.RunIngestion(context.Background(), "finviz", dto.RunOptions{Trigger: "cli"})
	require.NoError(t, err)

	assert.Equal(t, string(entity.RunStatusCompleted), summary.Status)
	assert.Equal(t, 1, summary.Documents)
	assert.Equal(t, 9, summary.Processed)
	assert.Equal(t, 1, summary.Errors)
	assert.Zero(t, summary.Duplicates)
	assert.Equal(t, "11840500.00", summary.TotalValueUSD.StringFixed(2))

	n, err := h.trades.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
	assert.Equal(t, 9, h.count(common.EventNewTrade))
	assert.Equal(t, 1, h.count(common.EventRunCompleted))

	run, err := h.runs.FindByRunID(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, entity.RunStatusCompleted, run.Status)
	assert.Equal(t, "cli", run.Trigger)
	assert.Equal(t, 9, run.Processed)
	assert.Equal(t, 1, run.Errors)
	assert.True(t, run.CompletedAt.Valid)
}

func TestRunIngestionIsIdempotent(t *testing.T) {
	src := config.Source{Name: "finviz", Kind: config.KindFinviz, URL: "https://finviz.com/insidertrading.ashx"}
	h := newHarness(t, src)
	h.fetcher.docs["finviz"] = []dto.RawDocument{{Source: "finviz", URL: src.URL, Body: finvizFixture(t)}}
	ctx := context.Background()

	first, err := h.svc.RunIngestion(ctx, "finviz", dto.RunOptions{})
	require.NoError(t, err)
	second, err := h.svc.RunIngestion(ctx, "finviz", dto.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 9, first.Processed)
	assert.Zero(t, second.Processed)
	assert.Equal(t, first.Processed, second.Duplicates)
	assert.True(t, second.TotalValueUSD.IsZero())
	assert.NotEqual(t, first.RunID, second.RunID)

	n, err := h.trades.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
	assert.Equal(t, 9, h.count(common.EventNewTrade))
}

func TestRunIngestionCrossSourceDuplicate(t *testing.T) {
	h := newHarness(t,
		config.Source{Name: "alpha", Kind: "alpha", URL: "https://alpha.example/trades"},
		config.Source{Name: "beta", Kind: "beta", URL: "https://beta.example/trades"},
	)
	h.static("alpha", cookTrade())
	beta := cookTrade()
	beta.TraderName = "Cook Tim"
	beta.Price = "185"
	beta.TradeDate = "1/15/2024"
	h.static("beta", beta)
	ctx := context.Background()

	first, err := h.svc.RunIngestion(ctx, "alpha", dto.RunOptions{})
	require.NoError(t, err)
	second, err := h.svc.RunIngestion(ctx, "beta", dto.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, first.Processed+second.Processed)
	assert.Equal(t, 1, first.Duplicates+second.Duplicates)
	assert.Equal(t, 1, second.Duplicates)

	trades, err := h.trades.ListRecent(ctx, 10, 0, dto.TradeFilter{})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "alpha", trades[0].SourceName)
	assert.Equal(t, entity.StatusVerified, trades[0].VerificationStatus)
	assert.Equal(t, entity.SignalBuy, trades[0].SignalType)
}

func TestRunIngestionFetchFailure(t *testing.T) {
	h := newHarness(t, config.Source{Name: "sec", Kind: config.KindSEC, URL: "https://www.sec.gov/feed"})
	h.fetcher.errs["sec"] = &dto.FetchError{Kind: dto.FetchBlocked, Source: "sec", URL: "https://www.sec.gov/feed", StatusCode: 403}

	summary, err := h.svc.RunIngestion(context.Background(), "sec", dto.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, string(entity.RunStatusFailed), summary.Status)
	assert.Equal(t, string(dto.FetchBlocked), summary.ErrorKind)
	assert.Contains(t, summary.Error, "status 403")
	assert.Zero(t, summary.Processed)

	run, err := h.runs.FindByRunID(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, entity.RunStatusFailed, run.Status)
	assert.True(t, run.ErrorMessage.Valid)
	assert.Equal(t, 1, h.count(common.EventRunCompleted))
}

func TestRunIngestionUnknownSource(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.RunIngestion(context.Background(), "nope", dto.RunOptions{})
	assert.True(t, errors.Is(err, ErrUnknownSource))
	assert.Zero(t, h.fetcher.calls)
}

func TestRunIngestionQuarantinesFakeTrades(t *testing.T) {
	h := newHarness(t, config.Source{Name: "alpha", Kind: "alpha", URL: "https://alpha.example/trades"})
	fake := cookTrade()
	fake.TraderName = "Test Insider"
	h.static("alpha", fake, cookTrade())
	ctx := context.Background()

	summary, err := h.svc.RunIngestion(ctx, "alpha", dto.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Blocked)
	assert.Equal(t, 1, summary.Processed)

	blocked, err := h.blocked.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, blocked, 1)
	assert.Equal(t, "Test Insider", blocked[0].TraderName)
	assert.NotEmpty(t, blocked[0].Reasons)

	trades, err := h.trades.ListRecent(ctx, 10, 0, dto.TradeFilter{IncludeBlocked: true})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "Tim Cook", trades[0].TraderName)
	assert.Equal(t, 1, h.count(common.EventNewTrade))
}

func TestRunIngestionRecordsInvalidTrades(t *testing.T) {
	h := newHarness(t, config.Source{Name: "alpha", Kind: "alpha", URL: "https://alpha.example/trades"})
	future := cookTrade()
	future.TradeDate = "2024-03-11"
	h.static("alpha", future)
	ctx := context.Background()

	summary, err := h.svc.RunIngestion(ctx, "alpha", dto.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Invalid)
	assert.Zero(t, summary.Processed)
	assert.Zero(t, h.count(common.EventNewTrade))

	trades, err := h.trades.ListRecent(ctx, 10, 0, dto.TradeFilter{})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, entity.StatusInvalid, trades[0].VerificationStatus)
	assert.Contains(t, trades[0].VerificationNotes, "date in the future")

	again, err := h.svc.RunIngestion(ctx, "alpha", dto.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, again.Invalid)
	n, err := h.trades.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRunIngestionUpsert(t *testing.T) {
	h := newHarness(t, config.Source{Name: "sec", Kind: "form4-static", URL: "https://www.sec.gov/feed", Upsert: true})
	filed := cookTrade()
	filed.FilingID = "0000320193-24-000010"
	filed.FiledDate = "2024-01-17"
	p := h.static("form4-static", filed)
	ctx := context.Background()

	first, err := h.svc.RunIngestion(ctx, "sec", dto.RunOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, first.Processed)

	unchanged, err := h.svc.RunIngestion(ctx, "sec", dto.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, unchanged.Duplicates)
	assert.Zero(t, unchanged.Updated)

	amended := filed
	amended.CompanyName = "Apple Inc"
	amended.TraderTitle = "Chief Executive Officer"
	p.trades = []dto.RawTrade{amended}

	updated, err := h.svc.RunIngestion(ctx, "sec", dto.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Updated)
	assert.Zero(t, updated.Duplicates)

	trade, err := h.trades.FindByFilingID(ctx, "0000320193-24-000010")
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc", trade.CompanyName)
	assert.Equal(t, "Chief Executive Officer", trade.TraderTitle)
}

func TestRunIngestionKeepsEveryLineOfOneFiling(t *testing.T) {
	h := newHarness(t, config.Source{Name: "sec", Kind: "form4-static", URL: "https://www.sec.gov/feed"})
	direct := cookTrade()
	direct.FilingID = "0000320193-24-000010:1"
	indirect := direct
	indirect.FilingID = "0000320193-24-000010:2"
	h.static("form4-static", direct, indirect)
	ctx := context.Background()

	first, err := h.svc.RunIngestion(ctx, "sec", dto.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Processed)
	assert.Zero(t, first.Duplicates)

	second, err := h.svc.RunIngestion(ctx, "sec", dto.RunOptions{})
	require.NoError(t, err)
	assert.Zero(t, second.Processed)
	assert.Equal(t, 2, second.Duplicates)
}

func TestRunIngestionBroadcastFailureIsNotFatal(t *testing.T) {
	db := storetest.NewDB(t)
	clk := mockClock()
	log := logger.NewNop()
	trades := repository.NewInsiderTradeRepository(db)
	registry := parser.NewRegistry()
	registry.Register(&staticParser{kind: "alpha", trades: []dto.RawTrade{cookTrade()}})
	fetcher := &fakeFetcher{docs: map[string][]dto.RawDocument{"alpha": {{Source: "alpha"}}}}

	svc := NewIngestionService(
		&config.Config{Sources: []config.Source{{Name: "alpha", Kind: "alpha", URL: "https://alpha.example"}}},
		fetcher,
		registry,
		normalizer.New(clk),
		validator.New(validator.DefaultPolicy(), clk),
		dedup.New(trades, log, dedup.Options{}),
		trades,
		repository.NewBlockedTradeRepository(db),
		repository.NewIngestionRunRepository(db),
		notifier.BroadcasterFunc(func(context.Context, string, any) error { return errors.New("redis down") }),
		log,
		clk,
	)

	summary, err := svc.RunIngestion(context.Background(), "alpha", dto.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Zero(t, summary.Errors)
}

func TestTradePatch(t *testing.T) {
	filed := now.AddDate(0, 0, -1)
	existing := &entity.InsiderTrade{CompanyName: "Apple", Shares: 10, Confidence: 100, VerificationStatus: entity.StatusVerified, FiledDate: &filed}
	same := *existing
	assert.Empty(t, tradePatch(existing, &same))

	changed := *existing
	changed.Shares = 20
	changed.FiledDate = nil
	changed.Confidence = 75
	patch := tradePatch(existing, &changed)
	assert.Equal(t, int64(20), patch["shares"])
	assert.Contains(t, patch, "filed_date")
	assert.Equal(t, 75, patch["confidence"])
	assert.Contains(t, patch, "verification_notes")
	assert.NotContains(t, patch, "company_name")
}
