package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/overtimeamm/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append records evt. Replays of an already stored event are ignored.
// The payload is stored as JSONB.
func (s *EventStore) Append(ctx context.Context, evt domain.Event) error {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("postgres: marshal event payload: %w", err)
	}

	const query = `
		INSERT INTO events (id, seq, type, payload, emitted_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`
	_, err = s.pool.Exec(ctx, query, evt.ID, int64(evt.Seq), string(evt.Type), payload, evt.At)
	if err != nil {
		return fmt.Errorf("postgres: append event %s: %w", evt.Type, err)
	}
	return nil
}

// Publish lets the store serve as an event sink.
func (s *EventStore) Publish(ctx context.Context, evt domain.Event) error {
	return s.Append(ctx, evt)
}

// List returns events newest first with pagination and optional time filtering.
func (s *EventStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	query, args := appendListOpts(`SELECT id, seq, type, payload, emitted_at FROM events WHERE 1=1`, nil, "emitted_at", opts)
	return s.query(ctx, "list events", query, args)
}

// ListByType returns events of type t newest first.
func (s *EventStore) ListByType(ctx context.Context, t domain.EventType, opts domain.ListOpts) ([]domain.Event, error) {
	query, args := appendListOpts(`SELECT id, seq, type, payload, emitted_at FROM events WHERE type = $1`,
		[]any{string(t)}, "emitted_at", opts)
	return s.query(ctx, "list events by type", query, args)
}

func (s *EventStore) query(ctx context.Context, op, query string, args []any) ([]domain.Event, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	defer rows.Close()

	evts, err := scanEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan %s: %w", op, err)
	}
	return evts, nil
}

func scanEventRows(rows pgx.Rows) ([]domain.Event, error) {
	var evts []domain.Event
	for rows.Next() {
		var (
			e       domain.Event
			seq     int64
			typ     string
			payload []byte
		)
		if err := rows.Scan(&e.ID, &seq, &typ, &payload, &e.At); err != nil {
			return nil, err
		}
		e.Seq = uint64(seq)
		e.Type = domain.EventType(typ)
		if payload != nil {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal payload: %w", err)
			}
		}
		evts = append(evts, e)
	}
	return evts, rows.Err()
}
