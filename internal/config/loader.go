package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies OVERTIME_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known OVERTIME_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Operator ──
	setStr(&cfg.Operator.PrivateKey, "OVERTIME_OPERATOR_PRIVATE_KEY")
	setStr(&cfg.Operator.EncryptedKeyPath, "OVERTIME_OPERATOR_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Operator.KeyPassword, "OVERTIME_OPERATOR_KEY_PASSWORD")
	setStringSlice(&cfg.Operator.Oracles, "OVERTIME_OPERATOR_ORACLES")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "OVERTIME_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "OVERTIME_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "OVERTIME_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "OVERTIME_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "OVERTIME_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "OVERTIME_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "OVERTIME_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "OVERTIME_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "OVERTIME_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "OVERTIME_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "OVERTIME_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "OVERTIME_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "OVERTIME_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "OVERTIME_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "OVERTIME_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "OVERTIME_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "OVERTIME_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "OVERTIME_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Stream, "OVERTIME_REDIS_STREAM")
	setDuration(&cfg.Redis.QuoteTTL, "OVERTIME_REDIS_QUOTE_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "OVERTIME_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "OVERTIME_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "OVERTIME_S3_REGION")
	setStr(&cfg.S3.Bucket, "OVERTIME_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "OVERTIME_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "OVERTIME_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "OVERTIME_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "OVERTIME_S3_FORCE_PATH_STYLE")

	// ── Kafka ──
	setBool(&cfg.Kafka.Enabled, "OVERTIME_KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "OVERTIME_KAFKA_BROKERS")
	setStr(&cfg.Kafka.EventsTopic, "OVERTIME_KAFKA_EVENTS_TOPIC")
	setStr(&cfg.Kafka.OracleTopic, "OVERTIME_KAFKA_ORACLE_TOPIC")
	setStr(&cfg.Kafka.GroupID, "OVERTIME_KAFKA_GROUP_ID")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "OVERTIME_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "OVERTIME_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "OVERTIME_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "OVERTIME_NOTIFY_EVENTS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "OVERTIME_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "OVERTIME_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "OVERTIME_SERVER_CORS_ORIGINS")
	setDuration(&cfg.Server.MaxClockSkew, "OVERTIME_SERVER_MAX_CLOCK_SKEW")
	setInt(&cfg.Server.RateLimit, "OVERTIME_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "OVERTIME_SERVER_RATE_WINDOW")

	// ── Keeper ──
	setDuration(&cfg.Keeper.Interval, "OVERTIME_KEEPER_INTERVAL")
	setDuration(&cfg.Keeper.LockTTL, "OVERTIME_KEEPER_LOCK_TTL")
	setInt(&cfg.Keeper.RoundBatchSize, "OVERTIME_KEEPER_ROUND_BATCH_SIZE")
	setDuration(&cfg.Keeper.ArchiveAfter, "OVERTIME_KEEPER_ARCHIVE_AFTER")

	// ── Protocol ──
	setStr(&cfg.Protocol.SafeBox, "OVERTIME_PROTOCOL_SAFE_BOX")
	setStr(&cfg.Protocol.SportsPool.DefaultLiquidityProvider, "OVERTIME_PROTOCOL_SPORTS_POOL_DLP")
	setStr(&cfg.Protocol.ParlayPool.DefaultLiquidityProvider, "OVERTIME_PROTOCOL_PARLAY_POOL_DLP")
	setDec(&cfg.Protocol.SportsAMM.MinSpread, "OVERTIME_PROTOCOL_SPORTS_AMM_MIN_SPREAD")
	setDec(&cfg.Protocol.SportsAMM.MaxSpread, "OVERTIME_PROTOCOL_SPORTS_AMM_MAX_SPREAD")
	setDec(&cfg.Protocol.ParlayAMM.ParlayAmmFee, "OVERTIME_PROTOCOL_PARLAY_AMM_FEE")
	setInt(&cfg.Protocol.ParlayAMM.ParlaySize, "OVERTIME_PROTOCOL_PARLAY_SIZE")
	setDec(&cfg.Protocol.Speed.PayoutMultiplier, "OVERTIME_PROTOCOL_SPEED_PAYOUT_MULTIPLIER")
	setInt(&cfg.Protocol.Speed.MaxChainedMarkets, "OVERTIME_PROTOCOL_SPEED_MAX_CHAINED_MARKETS")

	// ── Top-level ──
	setStr(&cfg.Mode, "OVERTIME_MODE")
	setStr(&cfg.LogLevel, "OVERTIME_LOG_LEVEL")
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

func setDec(dst *dec, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			dst.Decimal = d
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
