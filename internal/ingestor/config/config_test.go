package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
ingestion:
  user_agent: "InsiderTrack/1.0 (ops@example.org)"
sources:
  - name: sec
    kind: sec
    url: "https://www.sec.gov/cgi-bin/browse-edgar?action=getcurrent&type=4&output=atom"
    enabled: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 20*time.Second, cfg.Ingestion.FetchTimeout)
	assert.Equal(t, 500, cfg.Ingestion.RecentWindow)
	assert.Equal(t, 100.0, cfg.Ingestion.FuzzyValueTolerance)
	assert.Equal(t, 50, cfg.Validation.AcceptThreshold)
	assert.Equal(t, 40, cfg.Validation.Penalties.FilingIDFormat)
	assert.Equal(t, uint32(2), cfg.Breaker.ConsecutiveBlocks)
	assert.Equal(t, 15*time.Minute, cfg.Breaker.Cooldown)
	assert.Equal(t, 10*time.Second, cfg.Telegram.Timeout)

	src, ok := cfg.Source("sec")
	require.True(t, ok)
	assert.Equal(t, KindSEC, src.Kind)
}

func TestLoad_RejectsInvalidConfiguration(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "sec without contact user agent",
			body: `
ingestion:
  user_agent: "Mozilla/5.0"
sources:
  - name: sec
    kind: sec
    url: "https://www.sec.gov/feed"
`,
		},
		{
			name: "unknown source kind",
			body: `
ingestion:
  user_agent: "bot (ops@example.org)"
sources:
  - name: x
    kind: yahoo
    url: "https://example.org"
`,
		},
		{
			name: "uppercase source name",
			body: `
ingestion:
  user_agent: "bot (ops@example.org)"
sources:
  - name: OpenInsider
    kind: openinsider
    url: "http://openinsider.com/screener"
`,
		},
		{
			name: "per-symbol source without symbol",
			body: `
ingestion:
  user_agent: "bot (ops@example.org)"
sources:
  - name: nasdaq
    kind: nasdaq
    url: "https://api.nasdaq.com/api/company/AAPL/insider-trades"
`,
		},
		{
			name: "telegram without token",
			body: `
ingestion:
  user_agent: "bot (ops@example.org)"
telegram:
  enabled: true
`,
		},
		{
			name: "duplicate source names",
			body: `
ingestion:
  user_agent: "bot (ops@example.org)"
sources:
  - name: a
    kind: finviz
    url: "https://finviz.com/insidertrading.ashx"
  - name: a
    kind: openinsider
    url: "http://openinsider.com/latest-insider-trading"
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_SourceNameMustBeLowercase(t *testing.T) {
	body := `
ingestion:
  user_agent: "bot (ops@example.org)"
sources:
  - name: %s
    kind: openinsider
    url: "http://openinsider.com/screener"
`
	_, err := Load(writeConfig(t, fmt.Sprintf(body, "OpenInsider")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'lowercase'")

	cfg, err := Load(writeConfig(t, fmt.Sprintf(body, "openinsider")))
	require.NoError(t, err)
	assert.Equal(t, "openinsider", cfg.Sources[0].Name)
}
