package config

import "maps"

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Operator
	redact(&out.Operator.PrivateKey)
	redact(&out.Operator.KeyPassword)

	// Postgres
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	// Redis
	redact(&out.Redis.Password)

	// S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	out.Operator.Oracles = append([]string(nil), cfg.Operator.Oracles...)
	out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	out.Kafka.Brokers = append([]string(nil), cfg.Kafka.Brokers...)
	out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	out.Protocol.Collateral = append([]CollateralConfig(nil), cfg.Protocol.Collateral...)

	// Copy maps so mutations to the redacted copy do not affect the original.
	out.Protocol.ParlayAMM.SGPFeePerSport = maps.Clone(cfg.Protocol.ParlayAMM.SGPFeePerSport)
	out.Protocol.Speed.MaxRisk = maps.Clone(cfg.Protocol.Speed.MaxRisk)

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
