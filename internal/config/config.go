// Package config defines the top-level configuration for the overtime AMM
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by OVERTIME_* environment variables.
type Config struct {
	Operator OperatorConfig `toml:"operator"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Kafka    KafkaConfig    `toml:"kafka"`
	Notify   NotifyConfig   `toml:"notify"`
	Server   ServerConfig   `toml:"server"`
	Keeper   KeeperConfig   `toml:"keeper"`
	Protocol ProtocolConfig `toml:"protocol"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// OperatorConfig holds the protocol owner credentials. The owner signs admin
// requests and runs the keeper.
type OperatorConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	// Oracles may publish odds and prices besides the owner.
	Oracles []string `toml:"oracles"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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
	// Stream receives every committed event.
	Stream   string   `toml:"stream"`
	QuoteTTL duration `toml:"quote_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// KafkaConfig holds broker parameters for the event sink and the oracle
// consumer.
type KafkaConfig struct {
	Enabled     bool     `toml:"enabled"`
	Brokers     []string `toml:"brokers"`
	EventsTopic string   `toml:"events_topic"`
	OracleTopic string   `toml:"oracle_topic"`
	GroupID     string   `toml:"group_id"`
}

// NotifyConfig holds operator alert channel settings. Channels with empty
// credentials are skipped.
type NotifyConfig struct {
	TelegramToken     string `toml:"telegram_token"`
	TelegramChatID    string `toml:"telegram_chat_id"`
	DiscordWebhookURL string `toml:"discord_webhook_url"`
	// Events filters which event types are forwarded. Empty forwards all.
	Events []string `toml:"events"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// MaxClockSkew bounds the age of a signed request timestamp.
	MaxClockSkew duration `toml:"max_clock_skew"`
	RateLimit    int      `toml:"rate_limit"`
	RateWindow   duration `toml:"rate_window"`
}

// KeeperConfig holds the periodic settlement loop parameters.
type KeeperConfig struct {
	Interval       duration `toml:"interval"`
	LockTTL        duration `toml:"lock_ttl"`
	RoundBatchSize int      `toml:"round_batch_size"`
	// ArchiveAfter is how long terminal tickets stay in postgres before
	// moving to S3.
	ArchiveAfter duration `toml:"archive_after"`
}

// ProtocolConfig holds the parameters of every engine.
type ProtocolConfig struct {
	Collateral []CollateralConfig `toml:"collateral"`
	SportsAMM  SportsAMMConfig    `toml:"sports_amm"`
	ParlayAMM  ParlayAMMConfig    `toml:"parlay_amm"`
	Risk       RiskConfig         `toml:"risk"`
	SportsPool PoolConfig         `toml:"sports_pool"`
	ParlayPool PoolConfig         `toml:"parlay_pool"`
	Speed      SpeedConfig        `toml:"speed"`
	Ramp       RampConfig         `toml:"ramp"`
	SafeBox    string             `toml:"safe_box"`
	// OddsMinInterval rate limits odds updates per market.
	OddsMinInterval duration `toml:"odds_min_interval"`
}

// CollateralConfig declares one token. The first entry is the primary
// collateral (sUSD).
type CollateralConfig struct {
	Symbol  string `toml:"symbol"`
	Address string `toml:"address"`
}

// SportsAMMConfig mirrors sportsamm.Params.
type SportsAMMConfig struct {
	MinSpread                 dec      `toml:"min_spread"`
	MaxSpread                 dec      `toml:"max_spread"`
	SafeBoxImpact             dec      `toml:"safe_box_impact"`
	ReferrerShare             dec      `toml:"referrer_share"`
	MinSupportedOdds          dec      `toml:"min_supported_odds"`
	MaxSupportedOdds          dec      `toml:"max_supported_odds"`
	MinimalTimeLeftToMaturity duration `toml:"minimal_time_left_to_maturity"`
}

// ParlayAMMConfig mirrors parlay.Params.
type ParlayAMMConfig struct {
	ParlayAmmFee                       dec      `toml:"parlay_amm_fee"`
	SafeBoxImpact                      dec      `toml:"safe_box_impact"`
	ReferrerFee                        dec      `toml:"referrer_fee"`
	ParlaySize                         int      `toml:"parlay_size"`
	MinUSDAmount                       dec      `toml:"min_usd_amount"`
	MaxSupportedAmount                 dec      `toml:"max_supported_amount"`
	MaxSupportedOdds                   dec      `toml:"max_supported_odds"`
	MaxAllowedRiskPerCombination       dec      `toml:"max_allowed_risk_per_combination"`
	MaxAllowedRiskPerMarketAndPosition dec      `toml:"max_allowed_risk_per_market_and_position"`
	ExpiryDuration                     duration `toml:"expiry_duration"`
	// SGPFeePerSport enables same-game parlays per sport tag.
	SGPFeePerSport map[string]dec `toml:"sgp_fee_per_sport"`
}

// RiskConfig mirrors risk.Params.
type RiskConfig struct {
	DefaultCapPerGame     dec `toml:"default_cap_per_game"`
	MaxCapPerGame         dec `toml:"max_cap_per_game"`
	DefaultRiskMultiplier dec `toml:"default_risk_multiplier"`
	MaxRiskMultiplier     dec `toml:"max_risk_multiplier"`
	DefaultMaxLegs        int `toml:"default_max_legs"`
	MaxSpread             dec `toml:"max_spread"`
}

// PoolConfig mirrors liquidity.Params.
type PoolConfig struct {
	RoundLength              duration `toml:"round_length"`
	MinDepositAmount         dec      `toml:"min_deposit_amount"`
	MaxAllowedDeposit        dec      `toml:"max_allowed_deposit"`
	MaxAllowedUsers          int      `toml:"max_allowed_users"`
	UtilizationRate          dec      `toml:"utilization_rate"`
	OnlyWhitelisted          bool     `toml:"only_whitelisted"`
	DefaultLiquidityProvider string   `toml:"default_liquidity_provider"`
}

// SpeedConfig mirrors speedmarket.Params.
type SpeedConfig struct {
	MinChainedMarkets            int            `toml:"min_chained_markets"`
	MaxChainedMarkets            int            `toml:"max_chained_markets"`
	PayoutMultiplier             dec            `toml:"payout_multiplier"`
	MinBuyinAmount               dec            `toml:"min_buyin_amount"`
	MaxBuyinAmount               dec            `toml:"max_buyin_amount"`
	MinTimeFrame                 duration       `toml:"min_time_frame"`
	MaxTimeFrame                 duration       `toml:"max_time_frame"`
	MaxProfitPerIndividualMarket dec            `toml:"max_profit_per_individual_market"`
	SafeBoxImpact                dec            `toml:"safe_box_impact"`
	MaxRisk                      map[string]dec `toml:"max_risk"`
}

// RampConfig mirrors the ramp parameters.
type RampConfig struct {
	Fee         dec      `toml:"fee"`
	MinInterval duration `toml:"min_interval"`
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

// dec decodes amounts from TOML strings ("0.02") so no value passes through
// a float.
type dec struct {
	decimal.Decimal
}

func (d *dec) UnmarshalText(text []byte) error {
	v, err := decimal.NewFromString(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Decimal = v
	return nil
}

func (d dec) MarshalText() ([]byte, error) {
	return []byte(d.Decimal.String()), nil
}

func days(n int) duration { return duration{time.Duration(n) * 24 * time.Hour} }

func mustDec(s string) dec { return dec{decimal.RequireFromString(s)} }

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Enabled:       true,
			Host:          "localhost",
			Port:          5432,
			Database:      "overtime",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			Stream:     "overtime:events",
			QuoteTTL:   duration{5 * time.Second},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "overtime-archive",
			ForcePathStyle: true,
		},
		Kafka: KafkaConfig{
			Brokers:     []string{"localhost:9092"},
			EventsTopic: "overtime.events",
			OracleTopic: "overtime.oracle",
			GroupID:     "overtimeamm",
		},
		Notify: NotifyConfig{
			Events: []string{"round_closed", "parlay_expired", "market_paused", "implementation_upgraded"},
		},
		Server: ServerConfig{
			Enabled:      true,
			Port:         8000,
			CORSOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
			MaxClockSkew: duration{2 * time.Minute},
			RateLimit:    120,
			RateWindow:   duration{time.Minute},
		},
		Keeper: KeeperConfig{
			Interval:       duration{30 * time.Second},
			LockTTL:        duration{2 * time.Minute},
			RoundBatchSize: 100,
			ArchiveAfter:   days(30),
		},
		Protocol: ProtocolConfig{
			Collateral: []CollateralConfig{
				{Symbol: "sUSD", Address: "0x8c6f28f2F1A3C87F0f938b96d27520d9751ec8d9"},
				{Symbol: "DAI", Address: "0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1"},
				{Symbol: "USDC", Address: "0x7F5c764cBc14f9669B88837ca1490cCa17c31607"},
			},
			SportsAMM: SportsAMMConfig{
				MinSpread:                 mustDec("0.01"),
				MaxSpread:                 mustDec("0.05"),
				SafeBoxImpact:             mustDec("0.01"),
				ReferrerShare:             mustDec("0.5"),
				MinSupportedOdds:          mustDec("0.05"),
				MaxSupportedOdds:          mustDec("0.95"),
				MinimalTimeLeftToMaturity: duration{time.Hour},
			},
			ParlayAMM: ParlayAMMConfig{
				ParlayAmmFee:                       mustDec("0.02"),
				SafeBoxImpact:                      mustDec("0.01"),
				ReferrerFee:                        mustDec("0.005"),
				ParlaySize:                         8,
				MinUSDAmount:                       mustDec("3"),
				MaxSupportedAmount:                 mustDec("1500"),
				MaxSupportedOdds:                   mustDec("0.005"),
				MaxAllowedRiskPerCombination:       mustDec("20000"),
				MaxAllowedRiskPerMarketAndPosition: mustDec("50000"),
				ExpiryDuration:                     days(90),
				SGPFeePerSport:                     map[string]dec{},
			},
			Risk: RiskConfig{
				DefaultCapPerGame:     mustDec("5000"),
				MaxCapPerGame:         mustDec("50000"),
				DefaultRiskMultiplier: mustDec("3"),
				MaxRiskMultiplier:     mustDec("5"),
				DefaultMaxLegs:        8,
				MaxSpread:             mustDec("0.05"),
			},
			SportsPool: PoolConfig{
				RoundLength:       days(7),
				MinDepositAmount:  mustDec("20"),
				MaxAllowedDeposit: mustDec("2000000"),
				MaxAllowedUsers:   1000,
				UtilizationRate:   mustDec("0.8"),
			},
			ParlayPool: PoolConfig{
				RoundLength:       days(7),
				MinDepositAmount:  mustDec("20"),
				MaxAllowedDeposit: mustDec("500000"),
				MaxAllowedUsers:   1000,
				UtilizationRate:   mustDec("0.8"),
			},
			Speed: SpeedConfig{
				MinChainedMarkets:            2,
				MaxChainedMarkets:            6,
				PayoutMultiplier:             mustDec("1.9"),
				MinBuyinAmount:               mustDec("5"),
				MaxBuyinAmount:               mustDec("20"),
				MinTimeFrame:                 duration{time.Minute},
				MaxTimeFrame:                 duration{10 * time.Minute},
				MaxProfitPerIndividualMarket: mustDec("500"),
				SafeBoxImpact:                mustDec("0.02"),
				MaxRisk:                      map[string]dec{"ETH": mustDec("5000"), "BTC": mustDec("5000")},
			},
			Ramp: RampConfig{
				Fee:         mustDec("0.001"),
				MinInterval: duration{time.Minute},
			},
			OddsMinInterval: duration{0},
		},
		Mode:     "all",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":   true,
	"keeper":  true,
	"all":     true,
	"migrate": true,
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
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, keeper, all, migrate)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Operator: the keeper and admin endpoints act as the owner.
	if c.Mode != "migrate" {
		if c.Operator.PrivateKey == "" && c.Operator.EncryptedKeyPath == "" {
			errs = append(errs, "operator: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Operator.EncryptedKeyPath != "" && c.Operator.KeyPassword == "" {
			errs = append(errs, "operator: key_password is required when encrypted_key_path is set")
		}
	}
	for _, o := range c.Operator.Oracles {
		if !common.IsHexAddress(o) {
			errs = append(errs, fmt.Sprintf("operator: oracle %q is not an address", o))
		}
	}

	if c.Postgres.Enabled || c.Mode == "migrate" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, "kafka: brokers must not be empty")
		}
		if c.Kafka.EventsTopic == "" && c.Kafka.OracleTopic == "" {
			errs = append(errs, "kafka: set events_topic, oracle_topic or both")
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.MaxClockSkew.Duration <= 0 {
			errs = append(errs, "server: max_clock_skew must be > 0")
		}
	}

	if c.Keeper.Interval.Duration <= 0 {
		errs = append(errs, "keeper: interval must be > 0")
	}
	if c.Keeper.RoundBatchSize < 1 {
		errs = append(errs, "keeper: round_batch_size must be >= 1")
	}

	errs = append(errs, c.Protocol.validate()...)

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (p *ProtocolConfig) validate() []string {
	var errs []string
	if len(p.Collateral) == 0 {
		errs = append(errs, "protocol: at least one collateral is required")
	}
	for _, c := range p.Collateral {
		if c.Symbol == "" || !common.IsHexAddress(c.Address) {
			errs = append(errs, fmt.Sprintf("protocol: collateral %q needs a symbol and an address", c.Symbol))
		}
	}
	if p.SafeBox != "" && !common.IsHexAddress(p.SafeBox) {
		errs = append(errs, "protocol: safe_box is not an address")
	}

	s := p.SportsAMM
	if s.MinSpread.IsNegative() || s.MaxSpread.LessThan(s.MinSpread.Decimal) {
		errs = append(errs, "protocol.sports_amm: need 0 <= min_spread <= max_spread")
	}
	if !s.MinSupportedOdds.IsPositive() || !s.MaxSupportedOdds.GreaterThan(s.MinSupportedOdds.Decimal) || s.MaxSupportedOdds.GreaterThan(decimal.NewFromInt(1)) {
		errs = append(errs, "protocol.sports_amm: need 0 < min_supported_odds < max_supported_odds <= 1")
	}

	pa := p.ParlayAMM
	if pa.ParlaySize < 2 {
		errs = append(errs, "protocol.parlay_amm: parlay_size must be >= 2")
	}
	if pa.ParlayAmmFee.Add(pa.SafeBoxImpact.Decimal).GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, "protocol.parlay_amm: fees must sum below 1")
	}
	if pa.ExpiryDuration.Duration <= 0 {
		errs = append(errs, "protocol.parlay_amm: expiry_duration must be > 0")
	}

	if p.Risk.DefaultMaxLegs < 2 {
		errs = append(errs, "protocol.risk: default_max_legs must be >= 2")
	}
	if p.Risk.DefaultCapPerGame.GreaterThan(p.Risk.MaxCapPerGame.Decimal) {
		errs = append(errs, "protocol.risk: default_cap_per_game exceeds max_cap_per_game")
	}

	for name, pool := range map[string]PoolConfig{"sports_pool": p.SportsPool, "parlay_pool": p.ParlayPool} {
		if pool.RoundLength.Duration <= 0 {
			errs = append(errs, fmt.Sprintf("protocol.%s: round_length must be > 0", name))
		}
		if !pool.UtilizationRate.IsPositive() || pool.UtilizationRate.GreaterThan(decimal.NewFromInt(1)) {
			errs = append(errs, fmt.Sprintf("protocol.%s: utilization_rate must be in (0, 1]", name))
		}
		if pool.MaxAllowedUsers < 1 {
			errs = append(errs, fmt.Sprintf("protocol.%s: max_allowed_users must be >= 1", name))
		}
		if pool.DefaultLiquidityProvider != "" && !common.IsHexAddress(pool.DefaultLiquidityProvider) {
			errs = append(errs, fmt.Sprintf("protocol.%s: default_liquidity_provider is not an address", name))
		}
	}

	sp := p.Speed
	if sp.MinChainedMarkets < 1 || sp.MaxChainedMarkets < sp.MinChainedMarkets {
		errs = append(errs, "protocol.speed: need 1 <= min_chained_markets <= max_chained_markets")
	}
	if sp.PayoutMultiplier.LessThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, "protocol.speed: payout_multiplier must be > 1")
	}
	if sp.MinTimeFrame.Duration <= 0 || sp.MaxTimeFrame.Duration < sp.MinTimeFrame.Duration {
		errs = append(errs, "protocol.speed: need 0 < min_time_frame <= max_time_frame")
	}
	return errs
}
