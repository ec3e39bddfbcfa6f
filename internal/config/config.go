// Package config defines the top-level configuration for the equity bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by EQUITYBOT_* environment variables.
type Config struct {
	Broker   BrokerConfig   `toml:"broker"`
	Supabase SupabaseConfig `toml:"supabase"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Kafka    KafkaConfig    `toml:"kafka"`
	Strategy StrategyConfig `toml:"strategy"`
	Schedule ScheduleConfig `toml:"schedule"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// BrokerConfig holds the brokerage REST and streaming endpoints.
type BrokerConfig struct {
	BaseURL   string `toml:"base_url"`
	StreamURL string `toml:"stream_url"`
	ApiKey    string `toml:"api_key"`
	ApiSecret string `toml:"api_secret"`
	// ApiSecretFile is a sealed secret (see `equitybot seal-secret`) used when
	// ApiSecret is empty. It is opened with ApiSecretPassword.
	ApiSecretFile     string `toml:"api_secret_file"`
	ApiSecretPassword string `toml:"api_secret_password"`
	// Stream enables the websocket last-trade feed into the price cache.
	Stream      bool     `toml:"stream"`
	Timeout     duration `toml:"timeout"`
	PriceMaxAge duration `toml:"price_max_age"`
	// RateLimit requests are allowed per RateWindow when Redis is enabled.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	// StreamMaxLen caps the intent stream (approximate trimming).
	StreamMaxLen int64 `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	// ArchiveCron is a 5-field cron expression, evaluated in the schedule
	// time zone, for the nightly intent archive.
	ArchiveCron string `toml:"archive_cron"`
}

// KafkaConfig holds the downstream event bus parameters.
type KafkaConfig struct {
	Enabled        bool     `toml:"enabled"`
	Brokers        []string `toml:"brokers"`
	ClientID       string   `toml:"client_id"`
	DecisionsTopic string   `toml:"decisions_topic"`
	RankingsTopic  string   `toml:"rankings_topic"`
}

// StrategyConfig holds the trading strategy parameters.
type StrategyConfig struct {
	Ranking   RankingConfig   `toml:"ranking"`
	Signal    SignalConfig    `toml:"signal"`
	Lifecycle LifecycleConfig `toml:"lifecycle"`
	// CycleLockTTL bounds how long one replica may hold the cycle lock.
	CycleLockTTL duration `toml:"cycle_lock_ttl"`
}

// RankingConfig holds the universe cut sizes.
type RankingConfig struct {
	MarketCapTopN int `toml:"market_cap_top_n"`
	LiquidityTopN int `toml:"liquidity_top_n"`
	LongLegSize   int `toml:"long_leg_size"`
	ShortLegSize  int `toml:"short_leg_size"`
	// FetchConcurrency bounds parallel fundamentals requests.
	FetchConcurrency int `toml:"fetch_concurrency"`
}

// SignalConfig holds the entry signal and sizing parameters.
type SignalConfig struct {
	TrendThreshold        float64 `toml:"trend_threshold"`
	TrendWindow           int     `toml:"trend_window"`
	MinTrendWindow        int     `toml:"min_trend_window"`
	PriorPriceLookback    int     `toml:"prior_price_lookback"`
	VWAPLookback          int     `toml:"vwap_lookback"`
	ShortVWAPFactor       float64 `toml:"short_vwap_factor"`
	EntryNotional         float64 `toml:"entry_notional"`
	MaxInstrumentNotional float64 `toml:"max_instrument_notional"`
	MaxPortfolioNotional  float64 `toml:"max_portfolio_notional"`
	AbandonCycleOnFlat    bool    `toml:"abandon_cycle_on_flat"`
}

// LifecycleConfig holds the holding-period and protective exit parameters.
type LifecycleConfig struct {
	MaxHoldingDays      int     `toml:"max_holding_days"`
	HoldingExitDays     int     `toml:"holding_exit_days"`
	StopLoss            float64 `toml:"stop_loss"`
	TakeProfit          float64 `toml:"take_profit"`
	MinPositionQuantity float64 `toml:"min_position_quantity"`
}

// ScheduleConfig describes the trading session calendar.
type ScheduleConfig struct {
	Timezone           string   `toml:"timezone"`
	MarketOpen         string   `toml:"market_open"`
	SessionMinutes     int      `toml:"session_minutes"`
	DecisionInterval   duration `toml:"decision_interval"`
	PreMarketLead      duration `toml:"pre_market_lead"`
	HoldingCheckOffset duration `toml:"holding_check_offset"`
	// Holidays lists closed dates as YYYY-MM-DD.
	Holidays []string `toml:"holidays"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	ApiKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimit requests per client are allowed per RateWindow when Redis
	// is enabled. Zero disables the limit.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with the production defaults.
func Defaults() Config {
	return Config{
		Broker: BrokerConfig{
			BaseURL:     "http://localhost:8080",
			StreamURL:   "ws://localhost:8080/v1/stream",
			Stream:      true,
			Timeout:     duration{30 * time.Second},
			PriceMaxAge: duration{2 * time.Minute},
			RateLimit:   200,
			RateWindow:  duration{time.Minute},
		},
		Supabase: SupabaseConfig{
			Enabled:       true,
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:      true,
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			StreamMaxLen: 100_000,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "equitybot-data",
			Prefix:         "sessions",
			ForcePathStyle: true,
			ArchiveCron:    "30 1 * * *",
		},
		Kafka: KafkaConfig{
			Enabled:        false,
			Brokers:        []string{"localhost:9092"},
			ClientID:       "equitybot",
			DecisionsTopic: "trading.decisions",
			RankingsTopic:  "trading.rankings",
		},
		Strategy: StrategyConfig{
			Ranking: RankingConfig{
				MarketCapTopN:    1000,
				LiquidityTopN:    200,
				LongLegSize:      100,
				ShortLegSize:     100,
				FetchConcurrency: 16,
			},
			Signal: SignalConfig{
				TrendThreshold:        0.5,
				TrendWindow:           1000,
				MinTrendWindow:        101,
				PriorPriceLookback:    120,
				VWAPLookback:          15,
				ShortVWAPFactor:       0.91,
				EntryNotional:         500_000,
				MaxInstrumentNotional: 1_000_000,
				MaxPortfolioNotional:  2_500_000,
			},
			Lifecycle: LifecycleConfig{
				MaxHoldingDays:      14,
				HoldingExitDays:     10,
				StopLoss:            0.03,
				TakeProfit:          0.10,
				MinPositionQuantity: 10,
			},
			CycleLockTTL: duration{4 * time.Minute},
		},
		Schedule: ScheduleConfig{
			Timezone:           "America/New_York",
			MarketOpen:         "09:30",
			SessionMinutes:     390,
			DecisionInterval:   duration{5 * time.Minute},
			PreMarketLead:      duration{45 * time.Minute},
			HoldingCheckOffset: duration{60 * time.Minute},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"entry", "exit", "ranking", "error"},
		},
		Mode:     "trade",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":  true,
	"signal": true,
	"server": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, signal, server)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Broker
	if c.Broker.BaseURL == "" {
		errs = append(errs, "broker: base_url must not be empty")
	}
	if c.Mode == "trade" && (c.Broker.ApiKey == "" || c.Broker.ApiSecret == "") {
		errs = append(errs, "broker: api_key and api_secret are required for mode trade")
	}
	if c.Broker.Stream && c.Broker.StreamURL == "" {
		errs = append(errs, "broker: stream_url must be set when stream is enabled")
	}
	if c.Broker.Timeout.Duration <= 0 {
		errs = append(errs, "broker: timeout must be > 0")
	}
	if c.Broker.RateLimit < 0 {
		errs = append(errs, "broker: rate_limit must be >= 0")
	}

	// Supabase
	if c.Supabase.Enabled {
		if strings.TrimSpace(c.Supabase.DSN) == "" {
			if c.Supabase.Host == "" {
				errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
			}
			if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
				errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
			}
			if c.Supabase.Database == "" {
				errs = append(errs, "supabase: database must not be empty")
			}
		}
		if c.Supabase.PoolMaxConns < 1 {
			errs = append(errs, "supabase: pool_max_conns must be >= 1")
		}
		if c.Supabase.PoolMinConns < 0 || c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			errs = append(errs, "supabase: pool_min_conns must be within [0, pool_max_conns]")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if len(strings.Fields(c.S3.ArchiveCron)) != 5 {
			errs = append(errs, "s3: archive_cron must have 5 fields")
		}
	}

	// Kafka
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, "kafka: brokers must not be empty")
		}
		if c.Kafka.DecisionsTopic == "" || c.Kafka.RankingsTopic == "" {
			errs = append(errs, "kafka: decisions_topic and rankings_topic must be set")
		}
	}

	errs = append(errs, c.Strategy.validate()...)
	errs = append(errs, c.Schedule.validate()...)

	// Server
	if c.Server.Enabled || c.Mode == "server" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (s StrategyConfig) validate() []string {
	var errs []string

	r := s.Ranking
	if r.MarketCapTopN < 1 {
		errs = append(errs, "strategy.ranking: market_cap_top_n must be >= 1")
	}
	if r.LiquidityTopN < 1 || r.LiquidityTopN > r.MarketCapTopN {
		errs = append(errs, "strategy.ranking: liquidity_top_n must be within [1, market_cap_top_n]")
	}
	if r.LongLegSize < 0 || r.LongLegSize > r.LiquidityTopN {
		errs = append(errs, fmt.Sprintf("strategy.ranking: long_leg_size %d exceeds liquidity_top_n %d", r.LongLegSize, r.LiquidityTopN))
	}
	if r.ShortLegSize < 0 || r.ShortLegSize > r.LiquidityTopN {
		errs = append(errs, fmt.Sprintf("strategy.ranking: short_leg_size %d exceeds liquidity_top_n %d", r.ShortLegSize, r.LiquidityTopN))
	}
	if r.FetchConcurrency < 1 {
		errs = append(errs, "strategy.ranking: fetch_concurrency must be >= 1")
	}

	sig := s.Signal
	if sig.MinTrendWindow < 101 {
		errs = append(errs, "strategy.signal: min_trend_window must be >= 101")
	}
	if sig.TrendWindow < sig.MinTrendWindow {
		errs = append(errs, "strategy.signal: trend_window must be >= min_trend_window")
	}
	if sig.PriorPriceLookback < 1 {
		errs = append(errs, "strategy.signal: prior_price_lookback must be >= 1")
	}
	if sig.VWAPLookback < 2 {
		errs = append(errs, "strategy.signal: vwap_lookback must be >= 2")
	}
	if sig.ShortVWAPFactor <= 0 || sig.ShortVWAPFactor > 1 {
		errs = append(errs, "strategy.signal: short_vwap_factor must be in (0, 1]")
	}
	if sig.EntryNotional <= 0 || sig.EntryNotional > sig.MaxInstrumentNotional {
		errs = append(errs, "strategy.signal: entry_notional must be in (0, max_instrument_notional]")
	}
	if sig.MaxPortfolioNotional <= 0 {
		errs = append(errs, "strategy.signal: max_portfolio_notional must be > 0")
	}

	l := s.Lifecycle
	if l.MaxHoldingDays < 1 {
		errs = append(errs, "strategy.lifecycle: max_holding_days must be >= 1")
	}
	if l.HoldingExitDays < 1 || l.HoldingExitDays > l.MaxHoldingDays {
		errs = append(errs, "strategy.lifecycle: holding_exit_days must be within [1, max_holding_days]")
	}
	if l.StopLoss <= 0 || l.TakeProfit <= 0 {
		errs = append(errs, "strategy.lifecycle: stop_loss and take_profit must be > 0")
	}
	if l.MinPositionQuantity < 0 {
		errs = append(errs, "strategy.lifecycle: min_position_quantity must be >= 0")
	}
	return errs
}

func (s ScheduleConfig) validate() []string {
	var errs []string
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("schedule: unknown timezone %q", s.Timezone))
	}
	if _, err := time.Parse("15:04", s.MarketOpen); err != nil {
		errs = append(errs, fmt.Sprintf("schedule: market_open %q must be HH:MM", s.MarketOpen))
	}
	if s.SessionMinutes < 1 || s.SessionMinutes > 24*60 {
		errs = append(errs, "schedule: session_minutes must be within [1, 1440]")
	}
	if s.DecisionInterval.Duration < time.Minute {
		errs = append(errs, "schedule: decision_interval must be >= 1m")
	}
	if s.PreMarketLead.Duration < 0 || s.HoldingCheckOffset.Duration < 0 {
		errs = append(errs, "schedule: pre_market_lead and holding_check_offset must be >= 0")
	}
	for _, h := range s.Holidays {
		if _, err := time.Parse("2006-01-02", h); err != nil {
			errs = append(errs, fmt.Sprintf("schedule: holiday %q must be YYYY-MM-DD", h))
		}
	}
	return errs
}
