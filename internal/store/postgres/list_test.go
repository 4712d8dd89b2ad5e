package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/overtimeamm/internal/config"
	"github.com/alanyoungcy/overtimeamm/internal/domain"
)

func TestAppendListOpts(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q, args := appendListOpts("SELECT * FROM events WHERE type = $1", []any{"deposited"}, "emitted_at",
		domain.ListOpts{Since: &since, Limit: 10, Offset: 20})

	assert.Equal(t, "SELECT * FROM events WHERE type = $1 AND emitted_at >= $2 ORDER BY emitted_at DESC LIMIT $3 OFFSET $4", q)
	assert.Equal(t, []any{"deposited", since, 10, 20}, args)
}

func TestAppendListOptsEmpty(t *testing.T) {
	q, args := appendListOpts("SELECT * FROM rounds WHERE 1=1", nil, "closed_at", domain.ListOpts{})
	assert.Equal(t, "SELECT * FROM rounds WHERE 1=1 ORDER BY closed_at DESC", q)
	assert.Empty(t, args)
}

func TestDSN(t *testing.T) {
	cfg := ConfigFrom(config.PostgresConfig{
		Host:         "db",
		Database:     "overtime",
		User:         "u",
		Password:     "p",
		PoolMaxConns: 4,
	})
	assert.Equal(t, "postgres://u:p@db:5432/overtime?sslmode=disable", DSN(cfg))
	assert.Equal(t, 4, cfg.MaxConns)

	cfg.DSN = "postgres://explicit"
	assert.Equal(t, "postgres://explicit", DSN(cfg))
}
