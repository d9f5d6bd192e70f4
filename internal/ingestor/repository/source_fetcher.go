package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"insidertrack/internal/ingestor/config"
	"insidertrack/internal/ingestor/dto"
	"insidertrack/pkg/breaker"
	"insidertrack/pkg/logger"
	"insidertrack/pkg/metrics"

	"github.com/andres-erbsen/clock"
	"github.com/mmcdole/gofeed/atom"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const (
	browserUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	defaultSECDocuments = 20
	maxBodyBytes        = 10 << 20
	// Block phrases are only trusted in a page title or a short page.
	blockPageMaxBytes = 16 << 10
)

var blockPhrases = []string{
	"access denied",
	"request rate threshold exceeded",
	"captcha",
	"unusual traffic",
	"blocked",
}

var (
	edgarArchivePath = regexp.MustCompile(`/Archives/edgar/data/(\d+)/`)
	accessionNumber  = regexp.MustCompile(`\d{10}-\d{2}-\d{6}`)
	titleElement     = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
)

// SourceFetcher retrieves the raw documents of a source.
type SourceFetcher interface {
	Fetch(ctx context.Context, source config.Source) (dto.FetchResult, error)
	BreakerState(source string) gobreaker.State
}

type page struct {
	body        []byte
	contentType string
}

type sourceFetcher struct {
	cfg        *config.Config
	log        *logger.Logger
	clock      clock.Clock
	httpClient *http.Client
	breakers   *breaker.Manager[page]

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewSourceFetcher creates the HTTP fetcher shared by all sources. A nil
// clock uses the wall clock.
func NewSourceFetcher(cfg *config.Config, log *logger.Logger, clk clock.Clock) SourceFetcher {
	if clk == nil {
		clk = clock.New()
	}
	f := &sourceFetcher{
		cfg:        cfg,
		log:        log,
		clock:      clk,
		httpClient: &http.Client{},
		limiters:   make(map[string]*rate.Limiter),
	}
	f.breakers = breaker.NewManager[page](
		breaker.Rule{
			ConsecutiveFailures: cfg.Breaker.ConsecutiveBlocks,
			Cooldown:            cfg.Breaker.Cooldown,
		},
		func(err error) bool { return dto.FetchErrorKindOf(err) == dto.FetchBlocked },
		breaker.WithStateChange[page](f.onBreakerStateChange),
		breaker.WithClock[page](clk),
	)
	return f
}

func (f *sourceFetcher) onBreakerStateChange(name string, from, to gobreaker.State) {
	metrics.ObserveBreakerState(name, from, to)
	f.log.Warn("Source breaker state changed",
		logger.StringField("source", name),
		logger.StringField("from", from.String()),
		logger.StringField("to", to.String()),
	)
}

func (f *sourceFetcher) BreakerState(source string) gobreaker.State {
	return f.breakers.State(source)
}

func (f *sourceFetcher) Fetch(ctx context.Context, source config.Source) (dto.FetchResult, error) {
	if source.Kind == config.KindSEC {
		return f.fetchSEC(ctx, source)
	}

	target := strings.ReplaceAll(source.URL, "{symbol}", source.Symbol)
	p, err := f.get(ctx, source, target)
	if err != nil {
		return dto.FetchResult{}, err
	}
	return dto.FetchResult{Documents: []dto.RawDocument{{
		Source:      source.Name,
		URL:         target,
		ContentType: p.contentType,
		Body:        p.body,
		FetchedAt:   f.clock.Now(),
		Symbol:      source.Symbol,
	}}}, nil
}

// fetchSEC reads the EDGAR current-filings Atom feed and downloads the
// full submission of every Form 4 it lists.
func (f *sourceFetcher) fetchSEC(ctx context.Context, source config.Source) (dto.FetchResult, error) {
	var result dto.FetchResult

	feedPage, err := f.get(ctx, source, source.URL)
	if err != nil {
		return result, err
	}
	// The atom parser keeps category terms; the universal one reports the
	// label ("form type") instead.
	feed, err := (&atom.Parser{}).Parse(bytes.NewReader(feedPage.body))
	if err != nil {
		return result, &dto.FetchError{Kind: dto.FetchHTTPError, Source: source.Name, URL: source.URL, Err: fmt.Errorf("unreadable filings feed: %w", err)}
	}

	base, err := url.Parse(source.URL)
	if err != nil {
		return result, &dto.FetchError{Kind: dto.FetchHTTPError, Source: source.Name, URL: source.URL, Err: err}
	}

	limit := source.MaxDocuments
	if limit <= 0 {
		limit = defaultSECDocuments
	}

	seen := make(map[string]bool)
	for _, item := range feed.Entries {
		if len(seen) >= limit {
			break
		}
		if !isForm4(item) {
			continue
		}
		accession, docURL, ok := submissionURL(base, item)
		if !ok || seen[accession] {
			continue
		}
		seen[accession] = true

		p, err := f.get(ctx, source, docURL)
		if err != nil {
			kind := dto.FetchErrorKindOf(err)
			if kind == dto.FetchBlocked || kind == dto.FetchCooldown || ctx.Err() != nil {
				return result, err
			}
			result.FailedDocuments++
			f.log.WarnContext(ctx, "Failed to fetch filing",
				logger.StringField("source", source.Name),
				logger.StringField("filing_id", accession),
				logger.ErrorField(err),
			)
			continue
		}

		filed := filedDate(item)
		result.Documents = append(result.Documents, dto.RawDocument{
			Source:      source.Name,
			URL:         docURL,
			ContentType: p.contentType,
			Body:        p.body,
			FetchedAt:   f.clock.Now(),
			FilingID:    accession,
			FiledDate:   filed,
		})
	}
	return result, nil
}

// isForm4 keeps entries whose form type is 4 or 4/A, read from the category
// term or, failing that, the "4 - Issuer" title prefix.
func isForm4(entry *atom.Entry) bool {
	for _, c := range entry.Categories {
		if c == nil {
			continue
		}
		if term := strings.TrimSpace(c.Term); term != "" {
			return term == "4" || term == "4/A"
		}
	}
	title := strings.TrimSpace(entry.Title)
	return strings.HasPrefix(title, "4 - ") || strings.HasPrefix(title, "4/A - ")
}

// filedDate is the calendar date of the entry as written by EDGAR (Eastern
// time); the parsed timestamps are converted to UTC and can roll over.
func filedDate(entry *atom.Entry) string {
	for _, raw := range []string{entry.Updated, entry.Published} {
		raw = strings.TrimSpace(raw)
		if len(raw) >= 10 {
			if _, err := time.Parse("2006-01-02", raw[:10]); err == nil {
				return raw[:10]
			}
		}
	}
	if t := entry.UpdatedParsed; t != nil {
		return t.Format("2006-01-02")
	}
	return ""
}

// entryLink returns the alternate link of an entry, or its first link.
func entryLink(entry *atom.Entry) string {
	for _, l := range entry.Links {
		if l != nil && (l.Rel == "" || l.Rel == "alternate") {
			return l.Href
		}
	}
	if len(entry.Links) > 0 && entry.Links[0] != nil {
		return entry.Links[0].Href
	}
	return ""
}

// submissionURL derives the full-submission text URL of a feed entry:
// /Archives/edgar/data/<cik>/<accession without dashes>/<accession>.txt
func submissionURL(base *url.URL, entry *atom.Entry) (string, string, bool) {
	link := entryLink(entry)
	accession := accessionNumber.FindString(entry.ID)
	if accession == "" {
		accession = accessionNumber.FindString(link)
	}
	m := edgarArchivePath.FindStringSubmatch(link)
	if accession == "" || m == nil {
		return "", "", false
	}
	u := url.URL{
		Scheme: base.Scheme,
		Host:   base.Host,
		Path:   fmt.Sprintf("/Archives/edgar/data/%s/%s/%s.txt", m[1], strings.ReplaceAll(accession, "-", ""), accession),
	}
	return accession, u.String(), true
}

// get performs one paced, time-bounded request through the source breaker.
func (f *sourceFetcher) get(ctx context.Context, source config.Source, target string) (page, error) {
	p, err := f.breakers.Execute(source.Name, func() (page, error) {
		return f.do(ctx, source, target)
	})
	if breaker.IsRejected(err) {
		return page{}, &dto.FetchError{Kind: dto.FetchCooldown, Source: source.Name, URL: target, Err: err}
	}
	return p, err
}

func (f *sourceFetcher) do(ctx context.Context, source config.Source, target string) (page, error) {
	fail := func(kind dto.FetchErrorKind, status int, err error) (page, error) {
		f.log.ErrorContext(ctx, "Failed to fetch source document",
			logger.StringField("source", source.Name),
			logger.StringField("url", target),
			logger.StringField("kind", string(kind)),
			logger.IntField("status", status),
			logger.ErrorField(err),
		)
		return page{}, &dto.FetchError{Kind: kind, Source: source.Name, URL: target, StatusCode: status, Err: err}
	}

	if err := f.limiter(source.Name).Wait(ctx); err != nil {
		return fail(classifyTransportError(ctx, err), 0, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.Ingestion.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return fail(dto.FetchHTTPError, 0, err)
	}
	f.setHeaders(req, source.Kind)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fail(classifyTransportError(reqCtx, err), 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fail(classifyTransportError(reqCtx, err), resp.StatusCode, err)
	}

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		return fail(dto.FetchBlocked, resp.StatusCode, errors.New(http.StatusText(resp.StatusCode)))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fail(dto.FetchHTTPError, resp.StatusCode, errors.New(http.StatusText(resp.StatusCode)))
	}
	if phrase, ok := blockPage(body); ok {
		return fail(dto.FetchBlocked, resp.StatusCode, fmt.Errorf("block page detected: %q", phrase))
	}

	f.log.DebugContext(ctx, "Fetched source document",
		logger.StringField("source", source.Name),
		logger.StringField("url", target),
		logger.IntField("bytes", len(body)),
	)
	return page{body: body, contentType: resp.Header.Get("Content-Type")}, nil
}

func (f *sourceFetcher) setHeaders(req *http.Request, kind string) {
	switch kind {
	case config.KindSEC:
		// EDGAR requires a declared client with a contact address.
		req.Header.Set("User-Agent", f.cfg.Ingestion.UserAgent)
		req.Header.Set("Accept", "application/atom+xml, application/xml, text/xml, text/plain, */*")
	case config.KindNasdaq:
		req.Header.Set("User-Agent", browserUserAgent)
		req.Header.Set("Accept", "application/json, text/plain, */*")
	default:
		req.Header.Set("User-Agent", browserUserAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		req.Header.Set("Upgrade-Insecure-Requests", "1")
	}
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Connection", "keep-alive")
}

func (f *sourceFetcher) limiter(source string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[source]
	if !ok {
		perRequest := time.Minute / time.Duration(f.cfg.Ingestion.MaxRequestPerMinute)
		l = rate.NewLimiter(rate.Every(perRequest), 1)
		f.limiters[source] = l
	}
	return l
}

// blockPage reports the anti-automation phrase found in body, if any.
func blockPage(body []byte) (string, bool) {
	var haystack string
	if len(body) <= blockPageMaxBytes {
		haystack = strings.ToLower(string(body))
	} else if m := titleElement.FindSubmatch(body[:min(len(body), 4096)]); m != nil {
		haystack = strings.ToLower(string(m[1]))
	}
	for _, phrase := range blockPhrases {
		if strings.Contains(haystack, phrase) {
			return phrase, true
		}
	}
	return "", false
}

func classifyTransportError(ctx context.Context, err error) dto.FetchErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return dto.FetchTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return dto.FetchTimeout
	}
	return dto.FetchNetworkError
}
