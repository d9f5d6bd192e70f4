package config

import (
	"fmt"
	"strings"
	"time"

	"insidertrack/pkg/config"

	"github.com/go-playground/validator/v10"
)

// Source kinds understood by the fetchers and parsers.
const (
	KindSEC         = "sec"
	KindOpenInsider = "openinsider"
	KindFinviz      = "finviz"
	KindMarketBeat  = "marketbeat"
	KindNasdaq      = "nasdaq"
	KindMarketWatch = "marketwatch"
)

// Ingestion holds pipeline-wide tunables.
type Ingestion struct {
	FetchTimeout        time.Duration `mapstructure:"fetch_timeout" validate:"gt=0"`
	UserAgent           string        `mapstructure:"user_agent" validate:"required"`
	MaxRequestPerMinute int           `mapstructure:"max_request_per_minute" validate:"gt=0"`
	RecentWindow        int           `mapstructure:"recent_window" validate:"gt=0"`
	CacheTTL            time.Duration `mapstructure:"cache_ttl"`
	FuzzyValueTolerance float64       `mapstructure:"fuzzy_value_tolerance" validate:"gte=0"`
	FuzzyDayTolerance   int           `mapstructure:"fuzzy_day_tolerance" validate:"gte=0"`
}

// Breaker configures the per-source cooldown after anti-automation blocks.
type Breaker struct {
	ConsecutiveBlocks uint32        `mapstructure:"consecutive_blocks" validate:"gt=0"`
	Cooldown          time.Duration `mapstructure:"cooldown" validate:"gt=0"`
}

// Penalties are the confidence points removed per integrity issue.
type Penalties struct {
	MissingFilingID  int `mapstructure:"missing_filing_id"`
	MissingName      int `mapstructure:"missing_name"`
	TickerBounds     int `mapstructure:"ticker_bounds"`
	FilingIDFormat   int `mapstructure:"filing_id_format"`
	ValueMismatch    int `mapstructure:"value_mismatch"`
	FutureDate       int `mapstructure:"future_date"`
	FiledBeforeTrade int `mapstructure:"filed_before_trade"`
	StaleTrade       int `mapstructure:"stale_trade"`
	Templated        int `mapstructure:"templated"`
	InvalidAmount    int `mapstructure:"invalid_amount"`
}

// Validation holds the integrity policy.
type Validation struct {
	Blocklist             []string  `mapstructure:"blocklist"`
	AcceptThreshold       int       `mapstructure:"accept_threshold" validate:"gte=0,lte=100"`
	ValueTolerancePercent float64   `mapstructure:"value_tolerance_percent" validate:"gte=0"`
	MaxFilingLagDays      int       `mapstructure:"max_filing_lag_days" validate:"gte=0"`
	MaxTradeAgeYears      int       `mapstructure:"max_trade_age_years" validate:"gte=0"`
	Penalties             Penalties `mapstructure:"penalties"`
}

// Source is one configured upstream site.
type Source struct {
	// Name prefixes synthetic filing ids, which only allow lowercase.
	Name         string `mapstructure:"name" validate:"required,lowercase"`
	Kind         string `mapstructure:"kind" validate:"required,oneof=sec openinsider finviz marketbeat nasdaq marketwatch"`
	URL          string `mapstructure:"url" validate:"required,url"`
	Symbol       string `mapstructure:"symbol"`
	Cron         string `mapstructure:"cron"`
	Enabled      bool   `mapstructure:"enabled"`
	Upsert       bool   `mapstructure:"upsert"`
	MaxDocuments int    `mapstructure:"max_documents" validate:"gte=0"`
}

// Scheduler configures the periodic dispatch of runs and audits.
type Scheduler struct {
	PollingInterval time.Duration `mapstructure:"polling_interval" validate:"gt=0"`
	RunTimeout      time.Duration `mapstructure:"run_timeout" validate:"gt=0"`
	AuditCron       string        `mapstructure:"audit_cron"`
	AuditSampleSize int           `mapstructure:"audit_sample_size" validate:"gte=0"`
	AuditApply      bool          `mapstructure:"audit_apply"`
}

// Config holds the full configuration for the ingestor service.
type Config struct {
	App        config.App      `mapstructure:"app"`
	Logger     config.Logger   `mapstructure:"logger"`
	Database   config.Database `mapstructure:"database"`
	Redis      config.Redis    `mapstructure:"redis"`
	API        config.API      `mapstructure:"api"`
	Telegram   config.Telegram `mapstructure:"telegram"`
	Ingestion  Ingestion       `mapstructure:"ingestion"`
	Breaker    Breaker         `mapstructure:"breaker"`
	Validation Validation      `mapstructure:"validation"`
	Scheduler  Scheduler       `mapstructure:"scheduler"`
	Sources    []Source        `mapstructure:"sources" validate:"dive"`
}

// Defaults mirrors the documented policy constants.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"app.name":                                "insidertrack-ingestor",
		"logger.level":                            "info",
		"logger.encoding":                         "json",
		"api.port":                                8080,
		"redis.stream_max_len":                    10000,
		"telegram.timeout":                        "10s",
		"ingestion.fetch_timeout":                 "20s",
		"ingestion.max_request_per_minute":        10,
		"ingestion.recent_window":                 500,
		"ingestion.cache_ttl":                     "30m",
		"ingestion.fuzzy_value_tolerance":         100.0,
		"ingestion.fuzzy_day_tolerance":           1,
		"breaker.consecutive_blocks":              2,
		"breaker.cooldown":                        "15m",
		"validation.accept_threshold":             50,
		"validation.value_tolerance_percent":      5.0,
		"validation.max_filing_lag_days":          30,
		"validation.max_trade_age_years":          5,
		"validation.penalties.missing_filing_id":  30,
		"validation.penalties.missing_name":       25,
		"validation.penalties.ticker_bounds":      20,
		"validation.penalties.filing_id_format":   40,
		"validation.penalties.value_mismatch":     20,
		"validation.penalties.future_date":        30,
		"validation.penalties.filed_before_trade": 10,
		"validation.penalties.stale_trade":        5,
		"validation.penalties.templated":          15,
		"validation.penalties.invalid_amount":     25,
		"scheduler.polling_interval":              "30s",
		"scheduler.run_timeout":                   "5m",
		"scheduler.audit_sample_size":             1000,
	}
}

// Load loads and validates the ingestor configuration from the given path.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := config.Load(path, &cfg, Defaults()); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct constraints and cross-field requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	seen := make(map[string]bool, len(c.Sources))
	for _, src := range c.Sources {
		if seen[src.Name] {
			return fmt.Errorf("invalid configuration: duplicate source name %q", src.Name)
		}
		seen[src.Name] = true

		if (src.Kind == KindNasdaq || src.Kind == KindMarketWatch) && src.Symbol == "" {
			return fmt.Errorf("invalid configuration: source %q of kind %s requires a symbol", src.Name, src.Kind)
		}
		// SEC rejects anonymous clients; the user agent must carry a contact address.
		if src.Kind == KindSEC && !strings.Contains(c.Ingestion.UserAgent, "@") {
			return fmt.Errorf("invalid configuration: source %q requires ingestion.user_agent with a contact email", src.Name)
		}
	}

	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == 0) {
		return fmt.Errorf("invalid configuration: telegram enabled without bot_token or chat_id")
	}
	return nil
}

// Source returns the configured source by name.
func (c *Config) Source(name string) (Source, bool) {
	for _, src := range c.Sources {
		if src.Name == name {
			return src, true
		}
	}
	return Source{}, false
}
