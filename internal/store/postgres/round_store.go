package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/overtimeamm/internal/domain"
)

// RoundStore implements domain.RoundStore using PostgreSQL.
type RoundStore struct {
	pool *pgxpool.Pool
}

// NewRoundStore creates a new RoundStore backed by the given connection pool.
func NewRoundStore(pool *pgxpool.Pool) *RoundStore {
	return &RoundStore{pool: pool}
}

// Insert records a closed round. Closing the same round twice is a no-op.
func (s *RoundStore) Insert(ctx context.Context, r domain.RoundSnapshot) error {
	const query = `
		INSERT INTO rounds (
			pool, round, round_pool, start_time, end_time,
			allocation, dlp_contribution, end_balance, pnl, cumulative_pnl,
			users, closed_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12
		) ON CONFLICT (pool, round) DO NOTHING`
	_, err := s.pool.Exec(ctx, query,
		r.Pool, int64(r.Round), r.RoundPool.Hex(), r.StartTime, r.EndTime,
		r.Allocation, r.DLPContribution, r.EndBalance, r.PnL, r.CumulativePnL,
		r.Users, r.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert round %s/%d: %w", r.Pool, r.Round, err)
	}
	return nil
}

// List returns the closed rounds of pool, latest first.
func (s *RoundStore) List(ctx context.Context, pool string, opts domain.ListOpts) ([]domain.RoundSnapshot, error) {
	query, args := appendListOpts(`SELECT pool, round, round_pool, start_time, end_time,
		allocation, dlp_contribution, end_balance, pnl, cumulative_pnl, users, closed_at
		FROM rounds WHERE pool = $1`, []any{pool}, "closed_at", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list rounds: %w", err)
	}
	defer rows.Close()

	var out []domain.RoundSnapshot
	for rows.Next() {
		var (
			r         domain.RoundSnapshot
			round     int64
			roundPool string
		)
		if err := rows.Scan(
			&r.Pool, &round, &roundPool, &r.StartTime, &r.EndTime,
			&r.Allocation, &r.DLPContribution, &r.EndBalance, &r.PnL, &r.CumulativePnL,
			&r.Users, &r.ClosedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan round: %w", err)
		}
		r.Round = uint64(round)
		r.RoundPool = common.HexToAddress(roundPool)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list rounds rows: %w", err)
	}
	return out, nil
}
