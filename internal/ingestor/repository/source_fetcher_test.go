package repository

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"insidertrack/internal/ingestor/config"
	"insidertrack/internal/ingestor/dto"
	"insidertrack/pkg/logger"

	"github.com/andres-erbsen/clock"
	"github.com/mmcdole/gofeed/atom"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fetcherConfig() *config.Config {
	return &config.Config{
		Ingestion: config.Ingestion{
			FetchTimeout:        time.Second,
			UserAgent:           "insidertrack ops@example.org",
			MaxRequestPerMinute: 60000,
		},
		Breaker: config.Breaker{ConsecutiveBlocks: 2, Cooldown: 150 * time.Millisecond},
	}
}

func newFetcher(cfg *config.Config) SourceFetcher {
	return NewSourceFetcher(cfg, logger.NewNop(), nil)
}

func TestFetchPage(t *testing.T) {
	var ua atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua.Store(r.Header.Get("User-Agent"))
		assert.Equal(t, "/api/company/AAPL/insider-trades", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":{"transactionTable":{"rows":[]}}}`)
	}))
	defer srv.Close()

	src := config.Source{Name: "nasdaq-aapl", Kind: config.KindNasdaq, URL: srv.URL + "/api/company/{symbol}/insider-trades", Symbol: "AAPL"}
	res, err := newFetcher(fetcherConfig()).Fetch(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, res.Documents, 1)

	doc := res.Documents[0]
	assert.Equal(t, "nasdaq-aapl", doc.Source)
	assert.Equal(t, "AAPL", doc.Symbol)
	assert.Equal(t, "application/json", doc.ContentType)
	assert.Contains(t, string(doc.Body), "transactionTable")
	assert.Contains(t, ua.Load(), "Mozilla/5.0")
}

func TestFetchErrorKinds(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    dto.FetchErrorKind
	}{
		{"forbidden", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusForbidden) }, dto.FetchBlocked},
		{"too many requests", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTooManyRequests) }, dto.FetchBlocked},
		{"block page", func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, "<html><title>Access Denied</title><body>Your request rate threshold exceeded</body></html>")
		}, dto.FetchBlocked},
		{"server error", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadGateway) }, dto.FetchHTTPError},
		{"timeout", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}, dto.FetchTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			cfg := fetcherConfig()
			cfg.Ingestion.FetchTimeout = 100 * time.Millisecond
			_, err := newFetcher(cfg).Fetch(context.Background(), config.Source{Name: "finviz", Kind: config.KindFinviz, URL: srv.URL})
			require.Error(t, err)
			assert.Equal(t, tt.want, dto.FetchErrorKindOf(err))
		})
	}

	t.Run("network error", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		addr := srv.URL
		srv.Close()
		_, err := newFetcher(fetcherConfig()).Fetch(context.Background(), config.Source{Name: "finviz", Kind: config.KindFinviz, URL: addr})
		assert.Equal(t, dto.FetchNetworkError, dto.FetchErrorKindOf(err))
	})
}

func TestBlockPageOnlyTrustsShortPagesOrTitle(t *testing.T) {
	long := "<html><head><title>Insider trades</title></head><body>" + strings.Repeat("<p>row</p>", 5000) + "adblocked captcha</body></html>"
	_, blocked := blockPage([]byte(long))
	assert.False(t, blocked)

	long = "<html><head><title>Request Blocked</title></head><body>" + strings.Repeat("<p>row</p>", 5000) + "</body></html>"
	phrase, blocked := blockPage([]byte(long))
	assert.True(t, blocked)
	assert.Equal(t, "blocked", phrase)
}

func TestFetchCooldownAfterRepeatedBlocks(t *testing.T) {
	var hits atomic.Int32
	var blocking atomic.Bool
	blocking.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		if blocking.Load() {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprint(w, "<html><table></table></html>")
	}))
	defer srv.Close()

	mock := clock.NewMock()
	f := NewSourceFetcher(fetcherConfig(), logger.NewNop(), mock)
	src := config.Source{Name: "openinsider", Kind: config.KindOpenInsider, URL: srv.URL}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.Fetch(ctx, src)
		assert.Equal(t, dto.FetchBlocked, dto.FetchErrorKindOf(err))
	}
	assert.Equal(t, gobreaker.StateOpen, f.BreakerState("openinsider"))

	_, err := f.Fetch(ctx, src)
	assert.True(t, dto.IsCooldown(err))
	assert.Equal(t, int32(2), hits.Load(), "no request is sent during cooldown")

	_, err = f.Fetch(ctx, config.Source{Name: "other", Kind: config.KindOpenInsider, URL: srv.URL})
	assert.Equal(t, dto.FetchBlocked, dto.FetchErrorKindOf(err), "cooldown is per source")

	mock.Add(100 * time.Millisecond)
	_, err = f.Fetch(ctx, src)
	assert.True(t, dto.IsCooldown(err), "cooldown runs on the injected clock")

	blocking.Store(false)
	mock.Add(100 * time.Millisecond)
	_, err = f.Fetch(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, gobreaker.StateClosed, f.BreakerState("openinsider"))
}

const edgarFeed = `<?xml version="1.0" encoding="ISO-8859-1" ?>
<feed xmlns="http://www.w3.org/2005/Atom">
<title>Latest Filings</title>
<updated>2024-01-17T18:35:00-05:00</updated>
<entry>
<title>4 - Apple Inc. (0000320193) (Issuer)</title>
<link rel="alternate" type="text/html" href="%[1]s/Archives/edgar/data/320193/000032019324000010/0000320193-24-000010-index.htm"/>
<updated>2024-01-17T18:30:05-05:00</updated>
<category scheme="https://www.sec.gov/" label="form type" term="4"/>
<id>urn:tag:sec.gov,2008:accession-number=0000320193-24-000010</id>
</entry>
<entry>
<title>4 - Cook Timothy D (0001214156) (Reporting)</title>
<link rel="alternate" type="text/html" href="%[1]s/Archives/edgar/data/1214156/000032019324000010/0000320193-24-000010-index.htm"/>
<updated>2024-01-17T18:30:05-05:00</updated>
<category scheme="https://www.sec.gov/" label="form type" term="4"/>
<id>urn:tag:sec.gov,2008:accession-number=0000320193-24-000010</id>
</entry>
<entry>
<title>8-K - Other Corp (0000000001) (Filer)</title>
<link rel="alternate" type="text/html" href="%[1]s/Archives/edgar/data/1/000000000124000001/0000000001-24-000001-index.htm"/>
<updated>2024-01-17T18:00:00-05:00</updated>
<category scheme="https://www.sec.gov/" label="form type" term="8-K"/>
<id>urn:tag:sec.gov,2008:accession-number=0000000001-24-000001</id>
</entry>
<entry>
<title>4 - Microsoft Corp (0000789019) (Issuer)</title>
<link rel="alternate" type="text/html" href="%[1]s/Archives/edgar/data/789019/000078901924000021/0000789019-24-000021-index.htm"/>
<updated>2024-01-16T16:05:11-05:00</updated>
<category scheme="https://www.sec.gov/" label="form type" term="4"/>
<id>urn:tag:sec.gov,2008:accession-number=0000789019-24-000021</id>
</entry>
</feed>`

func TestFetchSEC(t *testing.T) {
	var paths []string
	var userAgents []string
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		userAgents = append(userAgents, r.Header.Get("User-Agent"))
		switch r.URL.Path {
		case "/cgi-bin/browse-edgar":
			w.Header().Set("Content-Type", "application/atom+xml")
			fmt.Fprintf(w, edgarFeed, srv.URL)
		case "/Archives/edgar/data/320193/000032019324000010/0000320193-24-000010.txt":
			fmt.Fprint(w, "<SEC-DOCUMENT><ownershipDocument></ownershipDocument></SEC-DOCUMENT>")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	src := config.Source{Name: "sec", Kind: config.KindSEC, URL: srv.URL + "/cgi-bin/browse-edgar?action=getcurrent&type=4&output=atom"}
	res, err := newFetcher(fetcherConfig()).Fetch(context.Background(), src)
	require.NoError(t, err)

	require.Len(t, res.Documents, 1)
	assert.Equal(t, 1, res.FailedDocuments, "missing MSFT submission")
	doc := res.Documents[0]
	assert.Equal(t, "0000320193-24-000010", doc.FilingID)
	assert.Equal(t, "2024-01-17", doc.FiledDate)
	assert.Contains(t, string(doc.Body), "ownershipDocument")

	assert.Len(t, paths, 3, "feed plus one request per distinct Form 4 accession")
	for _, ua := range userAgents {
		assert.Equal(t, "insidertrack ops@example.org", ua)
	}
}

func TestFetchSECAbortsWhenBlocked(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/feed" {
			fmt.Fprintf(w, edgarFeed, srv.URL)
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newFetcher(fetcherConfig()).Fetch(context.Background(), config.Source{Name: "sec", Kind: config.KindSEC, URL: srv.URL + "/feed"})
	assert.Equal(t, dto.FetchBlocked, dto.FetchErrorKindOf(err))
}

func TestIsForm4ReadsCategoryTerm(t *testing.T) {
	tests := []struct {
		name  string
		entry atom.Entry
		want  bool
	}{
		{name: "labelled term 4", entry: atom.Entry{Categories: []*atom.Category{{Label: "form type", Term: "4"}}}, want: true},
		{name: "amendment", entry: atom.Entry{Categories: []*atom.Category{{Label: "form type", Term: "4/A"}}}, want: true},
		{name: "labelled 8-K", entry: atom.Entry{Title: "4 - Misleading", Categories: []*atom.Category{{Label: "form type", Term: "8-K"}}}, want: false},
		{name: "title fallback", entry: atom.Entry{Title: "4 - Apple Inc. (0000320193) (Issuer)"}, want: true},
		{name: "title other form", entry: atom.Entry{Title: "144 - Apple Inc."}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isForm4(&tt.entry))
		})
	}
}

func TestFiledDateKeepsEasternCalendarDay(t *testing.T) {
	assert.Equal(t, "2024-01-17", filedDate(&atom.Entry{Updated: "2024-01-17T21:30:05-05:00"}))
	assert.Equal(t, "2024-01-16", filedDate(&atom.Entry{Published: "2024-01-16T09:00:00-05:00"}))
	assert.Empty(t, filedDate(&atom.Entry{}))
}
