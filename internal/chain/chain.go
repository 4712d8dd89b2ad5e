// Package chain provides the serialized execution model every engine runs
// under. All state-changing calls execute one at a time inside a Tx; a failed
// call undoes every mutation it journaled, so there is never a partial commit.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/overtimeamm/internal/domain"
)

// Dispatcher receives the events of a committed transaction in order.
type Dispatcher interface {
	Dispatch(ctx context.Context, events []domain.Event)
}

// Chain serializes transactions and stamps their events.
type Chain struct {
	mu         sync.Mutex
	clock      Clock
	seq        uint64
	nonces     map[common.Address]uint64
	dispatcher Dispatcher
	logger     *slog.Logger
}

// New creates a Chain reading time from clock.
func New(clock Clock, logger *slog.Logger) *Chain {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Chain{
		clock:  clock,
		nonces: make(map[common.Address]uint64),
		logger: logger.With(slog.String("component", "chain")),
	}
}

// SetDispatcher installs the receiver of committed events.
func (c *Chain) SetDispatcher(d Dispatcher) {
	c.mu.Lock()
	c.dispatcher = d
	c.mu.Unlock()
}

// Now returns the current clock reading.
func (c *Chain) Now() time.Time { return c.clock.Now() }

// Execute runs fn as one atomic transaction. If fn returns an error or panics
// every journaled mutation is undone in reverse order and no event is
// dispatched.
func (c *Chain) Execute(ctx context.Context, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("chain: execute: %w", domain.ErrContextDone)
	}

	c.mu.Lock()
	tx := c.begin(ctx)
	committed := false
	defer func() {
		if !committed {
			tx.rollback()
			c.mu.Unlock()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	events := tx.stamp(&c.seq)
	committed = true
	d := c.dispatcher
	c.mu.Unlock()

	if d != nil && len(events) > 0 {
		d.Dispatch(ctx, events)
	}
	return nil
}

// View runs fn against current state and always undoes whatever it did, like
// a static call. Quote functions run here.
func (c *Chain) View(ctx context.Context, fn func(tx *Tx) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	tx := c.begin(ctx)
	defer tx.rollback()
	return fn(tx)
}

func (c *Chain) begin(ctx context.Context) *Tx {
	return &Tx{ctx: ctx, now: c.clock.Now(), chain: c}
}

// Tx is the handle engines use to journal mutations and emit events.
type Tx struct {
	ctx    context.Context
	now    time.Time
	chain  *Chain
	undo   []func()
	events []domain.Event
}

// Context returns the context the transaction was started with.
func (tx *Tx) Context() context.Context { return tx.ctx }

// Now is the transaction timestamp. It is fixed for the whole transaction.
func (tx *Tx) Now() time.Time { return tx.now }

// OnRollback journals an undo step.
func (tx *Tx) OnRollback(f func()) {
	tx.undo = append(tx.undo, f)
}

// Emit buffers an event until commit.
func (tx *Tx) Emit(t domain.EventType, payload map[string]any) {
	tx.events = append(tx.events, domain.NewEvent(t, payload))
}

// Events returns the events buffered so far.
func (tx *Tx) Events() []domain.Event { return tx.events }

// NewAddress derives the next contract-like address for deployer from its
// nonce.
func (tx *Tx) NewAddress(deployer common.Address) common.Address {
	n := tx.chain.nonces[deployer]
	Put(tx, tx.chain.nonces, deployer, n+1)
	return ethcrypto.CreateAddress(deployer, n)
}

// Try runs fn and, if it fails, undoes only what fn did. The enclosing
// transaction continues either way.
func (tx *Tx) Try(fn func() error) error {
	mark, evMark := len(tx.undo), len(tx.events)
	err := fn()
	if err != nil {
		for i := len(tx.undo) - 1; i >= mark; i-- {
			tx.undo[i]()
		}
		tx.undo = tx.undo[:mark]
		tx.events = tx.events[:evMark]
	}
	return err
}

func (tx *Tx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
	tx.events = nil
}

func (tx *Tx) stamp(seq *uint64) []domain.Event {
	out := make([]domain.Event, len(tx.events))
	for i, e := range tx.events {
		*seq++
		e.Seq = *seq
		e.At = tx.now
		out[i] = e
	}
	tx.undo = nil
	tx.events = nil
	return out
}
