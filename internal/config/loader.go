package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies EQUITYBOT_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known EQUITYBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Broker ──
	setStr(&cfg.Broker.BaseURL, "EQUITYBOT_BROKER_BASE_URL")
	setStr(&cfg.Broker.StreamURL, "EQUITYBOT_BROKER_STREAM_URL")
	setStr(&cfg.Broker.ApiKey, "EQUITYBOT_BROKER_API_KEY")
	setStr(&cfg.Broker.ApiSecret, "EQUITYBOT_BROKER_API_SECRET")
	setBool(&cfg.Broker.Stream, "EQUITYBOT_BROKER_STREAM")
	setStr(&cfg.Broker.ApiSecretFile, "EQUITYBOT_BROKER_API_SECRET_FILE")
	setStr(&cfg.Broker.ApiSecretPassword, "EQUITYBOT_BROKER_API_SECRET_PASSWORD")
	setDuration(&cfg.Broker.Timeout, "EQUITYBOT_BROKER_TIMEOUT")
	setDuration(&cfg.Broker.PriceMaxAge, "EQUITYBOT_BROKER_PRICE_MAX_AGE")
	setInt(&cfg.Broker.RateLimit, "EQUITYBOT_BROKER_RATE_LIMIT")
	setDuration(&cfg.Broker.RateWindow, "EQUITYBOT_BROKER_RATE_WINDOW")

	// ── Supabase ──
	setBool(&cfg.Supabase.Enabled, "EQUITYBOT_SUPABASE_ENABLED")
	setStr(&cfg.Supabase.DSN, "EQUITYBOT_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "EQUITYBOT_DATABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.Host, "EQUITYBOT_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "EQUITYBOT_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "EQUITYBOT_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "EQUITYBOT_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "EQUITYBOT_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "EQUITYBOT_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "EQUITYBOT_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "EQUITYBOT_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "EQUITYBOT_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "EQUITYBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "EQUITYBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "EQUITYBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "EQUITYBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "EQUITYBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "EQUITYBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "EQUITYBOT_REDIS_TLS_ENABLED")
	setInt64(&cfg.Redis.StreamMaxLen, "EQUITYBOT_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "EQUITYBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "EQUITYBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "EQUITYBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "EQUITYBOT_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "EQUITYBOT_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "EQUITYBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "EQUITYBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "EQUITYBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "EQUITYBOT_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.ArchiveCron, "EQUITYBOT_S3_ARCHIVE_CRON")

	// ── Kafka ──
	setBool(&cfg.Kafka.Enabled, "EQUITYBOT_KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "EQUITYBOT_KAFKA_BROKERS")
	setStr(&cfg.Kafka.ClientID, "EQUITYBOT_KAFKA_CLIENT_ID")
	setStr(&cfg.Kafka.DecisionsTopic, "EQUITYBOT_KAFKA_DECISIONS_TOPIC")
	setStr(&cfg.Kafka.RankingsTopic, "EQUITYBOT_KAFKA_RANKINGS_TOPIC")

	// ── Strategy ──
	setInt(&cfg.Strategy.Ranking.MarketCapTopN, "EQUITYBOT_STRATEGY_MARKET_CAP_TOP_N")
	setInt(&cfg.Strategy.Ranking.LiquidityTopN, "EQUITYBOT_STRATEGY_LIQUIDITY_TOP_N")
	setInt(&cfg.Strategy.Ranking.LongLegSize, "EQUITYBOT_STRATEGY_LONG_LEG_SIZE")
	setInt(&cfg.Strategy.Ranking.ShortLegSize, "EQUITYBOT_STRATEGY_SHORT_LEG_SIZE")
	setInt(&cfg.Strategy.Ranking.FetchConcurrency, "EQUITYBOT_STRATEGY_FETCH_CONCURRENCY")
	setFloat64(&cfg.Strategy.Signal.TrendThreshold, "EQUITYBOT_STRATEGY_TREND_THRESHOLD")
	setInt(&cfg.Strategy.Signal.TrendWindow, "EQUITYBOT_STRATEGY_TREND_WINDOW")
	setInt(&cfg.Strategy.Signal.PriorPriceLookback, "EQUITYBOT_STRATEGY_PRIOR_PRICE_LOOKBACK")
	setInt(&cfg.Strategy.Signal.VWAPLookback, "EQUITYBOT_STRATEGY_VWAP_LOOKBACK")
	setFloat64(&cfg.Strategy.Signal.ShortVWAPFactor, "EQUITYBOT_STRATEGY_SHORT_VWAP_FACTOR")
	setFloat64(&cfg.Strategy.Signal.EntryNotional, "EQUITYBOT_STRATEGY_ENTRY_NOTIONAL")
	setFloat64(&cfg.Strategy.Signal.MaxInstrumentNotional, "EQUITYBOT_STRATEGY_MAX_INSTRUMENT_NOTIONAL")
	setFloat64(&cfg.Strategy.Signal.MaxPortfolioNotional, "EQUITYBOT_STRATEGY_MAX_PORTFOLIO_NOTIONAL")
	setBool(&cfg.Strategy.Signal.AbandonCycleOnFlat, "EQUITYBOT_STRATEGY_ABANDON_CYCLE_ON_FLAT")
	setInt(&cfg.Strategy.Lifecycle.MaxHoldingDays, "EQUITYBOT_STRATEGY_MAX_HOLDING_DAYS")
	setInt(&cfg.Strategy.Lifecycle.HoldingExitDays, "EQUITYBOT_STRATEGY_HOLDING_EXIT_DAYS")
	setFloat64(&cfg.Strategy.Lifecycle.StopLoss, "EQUITYBOT_STRATEGY_STOP_LOSS")
	setFloat64(&cfg.Strategy.Lifecycle.TakeProfit, "EQUITYBOT_STRATEGY_TAKE_PROFIT")
	setDuration(&cfg.Strategy.CycleLockTTL, "EQUITYBOT_STRATEGY_CYCLE_LOCK_TTL")

	// ── Schedule ──
	setStr(&cfg.Schedule.Timezone, "EQUITYBOT_SCHEDULE_TIMEZONE")
	setStr(&cfg.Schedule.MarketOpen, "EQUITYBOT_SCHEDULE_MARKET_OPEN")
	setInt(&cfg.Schedule.SessionMinutes, "EQUITYBOT_SCHEDULE_SESSION_MINUTES")
	setDuration(&cfg.Schedule.DecisionInterval, "EQUITYBOT_SCHEDULE_DECISION_INTERVAL")
	setDuration(&cfg.Schedule.PreMarketLead, "EQUITYBOT_SCHEDULE_PRE_MARKET_LEAD")
	setDuration(&cfg.Schedule.HoldingCheckOffset, "EQUITYBOT_SCHEDULE_HOLDING_CHECK_OFFSET")
	setStringSlice(&cfg.Schedule.Holidays, "EQUITYBOT_SCHEDULE_HOLIDAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "EQUITYBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "EQUITYBOT_SERVER_PORT")
	setStr(&cfg.Server.ApiKey, "EQUITYBOT_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "EQUITYBOT_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "EQUITYBOT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "EQUITYBOT_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "EQUITYBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "EQUITYBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "EQUITYBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "EQUITYBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "EQUITYBOT_MODE")
	setStr(&cfg.LogLevel, "EQUITYBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
