package chain_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
	"github.com/alanyoungcy/overtimeamm/internal/domain"
)

type recorder struct{ got []domain.Event }

func (r *recorder) Dispatch(_ context.Context, evts []domain.Event) {
	r.got = append(r.got, evts...)
}

func newChain(t *testing.T) (*chain.Chain, *chain.ManualClock, *recorder) {
	t.Helper()
	clock := chain.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c := chain.New(clock, slog.New(slog.DiscardHandler))
	rec := &recorder{}
	c.SetDispatcher(rec)
	return c, clock, rec
}

func TestExecuteCommits(t *testing.T) {
	c, clock, rec := newChain(t)
	counter := 0
	m := map[string]int{}

	err := c.Execute(context.Background(), func(tx *chain.Tx) error {
		chain.Assign(tx, &counter, 5)
		chain.Put(tx, m, "a", 1)
		tx.Emit(domain.EventDeposited, map[string]any{"amount": "1"})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, counter)
	assert.Equal(t, 1, m["a"])
	require.Len(t, rec.got, 1)
	assert.Equal(t, uint64(1), rec.got[0].Seq)
	assert.Equal(t, clock.Now(), rec.got[0].At)
}

func TestExecuteRollsBackEverything(t *testing.T) {
	c, _, rec := newChain(t)
	counter := 1
	m := map[string]int{"keep": 7}
	var list []int
	boom := errors.New("boom")

	err := c.Execute(context.Background(), func(tx *chain.Tx) error {
		chain.Assign(tx, &counter, 2)
		chain.Put(tx, m, "new", 3)
		chain.Put(tx, m, "keep", 8)
		chain.Delete(tx, m, "keep")
		chain.Append(tx, &list, 1, 2, 3)
		tx.Emit(domain.EventDeposited, nil)
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, counter)
	assert.Equal(t, map[string]int{"keep": 7}, m)
	assert.Empty(t, list)
	assert.Empty(t, rec.got)
}

func TestExecuteRollsBackOnPanic(t *testing.T) {
	c, _, _ := newChain(t)
	counter := 1
	assert.Panics(t, func() {
		_ = c.Execute(context.Background(), func(tx *chain.Tx) error {
			chain.Assign(tx, &counter, 9)
			panic("bad")
		})
	})
	assert.Equal(t, 1, counter)

	// The lock must have been released.
	require.NoError(t, c.Execute(context.Background(), func(*chain.Tx) error { return nil }))
}

func TestViewNeverCommits(t *testing.T) {
	c, _, rec := newChain(t)
	counter := 0
	err := c.View(context.Background(), func(tx *chain.Tx) error {
		chain.Assign(tx, &counter, 3)
		tx.Emit(domain.EventDeposited, nil)
		assert.Equal(t, 3, counter)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, counter)
	assert.Empty(t, rec.got)
}

func TestTryUndoesOnlyInner(t *testing.T) {
	c, _, rec := newChain(t)
	a, b := 0, 0
	err := c.Execute(context.Background(), func(tx *chain.Tx) error {
		chain.Assign(tx, &a, 1)
		tx.Emit(domain.EventDeposited, nil)
		inner := tx.Try(func() error {
			chain.Assign(tx, &b, 1)
			tx.Emit(domain.EventDeposited, nil)
			return errors.New("skip")
		})
		assert.Error(t, inner)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, a)
	assert.Equal(t, 0, b)
	assert.Len(t, rec.got, 1)
}

func TestNewAddressIsDeterministicAndRolledBack(t *testing.T) {
	c, _, _ := newChain(t)
	deployer := common.HexToAddress("0x1000000000000000000000000000000000000001")

	var first, again common.Address
	_ = c.Execute(context.Background(), func(tx *chain.Tx) error {
		first = tx.NewAddress(deployer)
		return errors.New("revert")
	})
	_ = c.Execute(context.Background(), func(tx *chain.Tx) error {
		again = tx.NewAddress(deployer)
		second := tx.NewAddress(deployer)
		assert.NotEqual(t, again, second)
		return nil
	})
	assert.Equal(t, first, again)
}

func TestExecuteHonoursCancelledContext(t *testing.T) {
	c, _, _ := newChain(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Execute(ctx, func(*chain.Tx) error { return nil })
	assert.ErrorIs(t, err, domain.ErrContextDone)
}
