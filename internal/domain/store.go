package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// TicketStore persists parlay ticket snapshots for indexers and the API.
type TicketStore interface {
	Upsert(ctx context.Context, t Ticket) error
	GetByAddress(ctx context.Context, addr common.Address) (Ticket, error)
	ListByOwner(ctx context.Context, owner common.Address, opts ListOpts) ([]Ticket, error)
	ListTerminal(ctx context.Context, before time.Time, limit int) ([]Ticket, error)
	DeleteBatch(ctx context.Context, addrs []common.Address) (int64, error)
}

// EventStore persists the append-only log of emitted records.
type EventStore interface {
	Append(ctx context.Context, evt Event) error
	List(ctx context.Context, opts ListOpts) ([]Event, error)
	ListByType(ctx context.Context, t EventType, opts ListOpts) ([]Event, error)
}

// RoundStore persists closed liquidity round snapshots.
type RoundStore interface {
	Insert(ctx context.Context, snap RoundSnapshot) error
	List(ctx context.Context, pool string, opts ListOpts) ([]RoundSnapshot, error)
}

// EventSink receives committed events. Implementations must not block the
// caller for long.
type EventSink interface {
	Publish(ctx context.Context, evt Event) error
}
