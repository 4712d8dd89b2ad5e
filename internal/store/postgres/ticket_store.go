package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/overtimeamm/internal/domain"
)

// TicketStore implements domain.TicketStore using PostgreSQL.
type TicketStore struct {
	pool *pgxpool.Pool
}

// NewTicketStore creates a new TicketStore backed by the given connection pool.
func NewTicketStore(pool *pgxpool.Pool) *TicketStore {
	return &TicketStore{pool: pool}
}

const ticketSelectCols = `address, owner, legs, susd_paid, susd_after_fees,
	total_quote, amount, payout, phase, paused, round, created_at, expiry, settled_at`

func scanTicket(row pgx.Row) (domain.Ticket, error) {
	var (
		t           domain.Ticket
		addr, owner string
		legs        []byte
		phase       string
		round       int64
		settledAt   *time.Time
	)
	if err := row.Scan(
		&addr, &owner, &legs, &t.SUSDPaid, &t.SUSDAfterFees,
		&t.TotalQuote, &t.Amount, &t.Payout, &phase, &t.Paused, &round,
		&t.CreatedAt, &t.Expiry, &settledAt,
	); err != nil {
		return domain.Ticket{}, err
	}
	if err := json.Unmarshal(legs, &t.Legs); err != nil {
		return domain.Ticket{}, fmt.Errorf("unmarshal legs: %w", err)
	}
	t.Address = common.HexToAddress(addr)
	t.Owner = common.HexToAddress(owner)
	t.Phase = domain.TicketPhase(phase)
	t.Round = uint64(round)
	t.SettledAt = settledAt
	return t, nil
}

func scanTicketRows(rows pgx.Rows) ([]domain.Ticket, error) {
	var out []domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Upsert stores the latest snapshot of t.
func (s *TicketStore) Upsert(ctx context.Context, t domain.Ticket) error {
	legs, err := json.Marshal(t.Legs)
	if err != nil {
		return fmt.Errorf("postgres: marshal ticket legs: %w", err)
	}

	const query = `
		INSERT INTO tickets (
			address, owner, legs, susd_paid, susd_after_fees,
			total_quote, amount, payout, phase, paused, round,
			created_at, expiry, settled_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13, $14
		)
		ON CONFLICT (address) DO UPDATE SET
			legs       = EXCLUDED.legs,
			payout     = EXCLUDED.payout,
			phase      = EXCLUDED.phase,
			paused     = EXCLUDED.paused,
			settled_at = EXCLUDED.settled_at,
			updated_at = NOW()`

	_, err = s.pool.Exec(ctx, query,
		t.Address.Hex(), t.Owner.Hex(), legs, t.SUSDPaid, t.SUSDAfterFees,
		t.TotalQuote, t.Amount, t.Payout, string(t.Phase), t.Paused, int64(t.Round),
		t.CreatedAt, t.Expiry, t.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert ticket %s: %w", t.Address.Hex(), err)
	}
	return nil
}

// GetByAddress returns the ticket at addr or domain.ErrNotFound.
func (s *TicketStore) GetByAddress(ctx context.Context, addr common.Address) (domain.Ticket, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+ticketSelectCols+` FROM tickets WHERE address = $1`, addr.Hex())
	t, err := scanTicket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Ticket{}, fmt.Errorf("postgres: ticket %s: %w", addr.Hex(), domain.ErrNotFound)
	}
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("postgres: get ticket %s: %w", addr.Hex(), err)
	}
	return t, nil
}

// ListByOwner returns the tickets of owner newest first.
func (s *TicketStore) ListByOwner(ctx context.Context, owner common.Address, opts domain.ListOpts) ([]domain.Ticket, error) {
	query, args := appendListOpts(`SELECT `+ticketSelectCols+` FROM tickets WHERE owner = $1`,
		[]any{owner.Hex()}, "created_at", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tickets by owner: %w", err)
	}
	defer rows.Close()

	out, err := scanTicketRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan tickets by owner: %w", err)
	}
	return out, nil
}

// ListTerminal returns exercised or expired tickets settled before the
// given time, oldest first (for archiving).
func (s *TicketStore) ListTerminal(ctx context.Context, before time.Time, limit int) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketSelectCols + ` FROM tickets
		WHERE phase IN ('exercised', 'expired') AND settled_at < $1
		ORDER BY settled_at ASC LIMIT $2`
	rows, err := s.pool.Query(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminal tickets: %w", err)
	}
	defer rows.Close()
	return scanTicketRows(rows)
}

// DeleteBatch removes the given tickets. Returns the number deleted.
func (s *TicketStore) DeleteBatch(ctx context.Context, addrs []common.Address) (int64, error) {
	if len(addrs) == 0 {
		return 0, nil
	}
	hex := make([]string, len(addrs))
	for i, a := range addrs {
		hex[i] = a.Hex()
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM tickets WHERE address = ANY($1)`, hex)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete tickets: %w", err)
	}
	return tag.RowsAffected(), nil
}
