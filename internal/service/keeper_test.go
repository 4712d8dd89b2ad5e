package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/metrics"
	"github.com/alanyoungcy/overtimeamm/internal/protocol"
	"github.com/alanyoungcy/overtimeamm/internal/service"
)

func TestPoolDepositWithdrawAndClose(t *testing.T) {
	f := newFixture(t)
	f.fundPools(t)
	rounds := &memRounds{}
	pools := service.NewPoolService(f.proto, rounds, quiet())
	ctx := context.Background()

	f.mint(t, alice, "100")
	require.NoError(t, pools.Deposit(ctx, protocol.SportsPool, alice, d("50")))
	bal, err := pools.Balance(ctx, protocol.SportsPool, alice)
	require.NoError(t, err)
	assert.True(t, d("50").Equal(bal.Next))
	assert.True(t, bal.Current.IsZero())

	err = pools.Deposit(ctx, protocol.SportsPool, alice, d("1"))
	assert.Equal(t, "Amount less than minDepositAmount", domain.RevertReason(err))
	_, err = pools.Info(ctx, "speed")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	closed, err := pools.CloseDueRounds(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, closed)

	f.clock.Set(start.Add(7*24*time.Hour + time.Minute))
	closed, err = pools.CloseDueRounds(ctx, 1)
	require.NoError(t, err)
	require.Len(t, closed, 2)
	assert.Equal(t, protocol.SportsPool, closed[0].Pool)
	assert.Equal(t, uint64(1), closed[0].Round)

	info, err := pools.Info(ctx, protocol.SportsPool)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), info.Round)

	bal, err = pools.Balance(ctx, protocol.SportsPool, alice)
	require.NoError(t, err)
	assert.True(t, d("50").Equal(bal.Current))
	require.NoError(t, pools.Withdraw(ctx, protocol.SportsPool, alice, d("0.5")))
	assert.Equal(t, "Withdrawal already requested", domain.RevertReason(pools.Withdraw(ctx, protocol.SportsPool, alice, d("0"))))

	stored, err := pools.Rounds(ctx, protocol.ParlayPool, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, uint64(1), stored[0].Round)
}

type memArchiver struct {
	rounds  map[string]int
	tickets int
	fail    error
}

func (a *memArchiver) ArchiveTickets(context.Context, time.Time) (int64, error) {
	a.tickets++
	return 0, a.fail
}

func (a *memArchiver) ArchiveRounds(_ context.Context, pool string, rounds []domain.RoundSnapshot) error {
	if a.rounds == nil {
		a.rounds = map[string]int{}
	}
	a.rounds[pool] += len(rounds)
	return nil
}

func newKeeper(f *fixture, lock domain.LockManager, arch domain.Archiver, m *metrics.Metrics) *service.Keeper {
	return service.NewKeeper(
		service.KeeperConfig{Interval: time.Second, RoundBatchSize: 10, ArchiveAfter: time.Hour},
		service.NewParlayService(f.proto, nil, owner, quiet()),
		service.NewSpeedService(f.proto, quiet()),
		service.NewPoolService(f.proto, nil, quiet()),
		lock, arch, m, quiet(),
	)
}

func TestKeeperClosesRoundsAndArchives(t *testing.T) {
	f := newFixture(t)
	f.fundPools(t)
	lock := &stubLock{}
	arch := &memArchiver{}
	m := metrics.New()
	k := newKeeper(f, lock, arch, m)

	f.clock.Set(start.Add(7*24*time.Hour + time.Minute))
	k.RunOnce(context.Background())

	assert.Equal(t, 1, lock.acquired)
	assert.Equal(t, 1, lock.released)
	assert.Equal(t, uint64(2), f.proto.SportsPool.Round())
	assert.Equal(t, uint64(2), f.proto.ParlayPool.Round())
	assert.Equal(t, map[string]int{protocol.SportsPool: 1, protocol.ParlayPool: 1}, arch.rounds)
	assert.Equal(t, 1, arch.tickets)
}

func TestKeeperSkipsWhenLockHeld(t *testing.T) {
	f := newFixture(t)
	f.fundPools(t)
	arch := &memArchiver{}
	k := newKeeper(f, &stubLock{held: true}, arch, nil)

	f.clock.Set(start.Add(7*24*time.Hour + time.Minute))
	k.RunOnce(context.Background())

	assert.Equal(t, uint64(1), f.proto.SportsPool.Round())
	assert.Zero(t, arch.tickets)
}

func TestKeeperContinuesAfterFailedTask(t *testing.T) {
	f := newFixture(t)
	f.fundPools(t)
	arch := &memArchiver{fail: errors.New("s3 down")}
	k := newKeeper(f, nil, arch, nil)

	f.clock.Set(start.Add(7*24*time.Hour + time.Minute))
	k.RunOnce(context.Background())
	k.RunOnce(context.Background())
	assert.Equal(t, 2, arch.tickets)
	assert.Equal(t, uint64(2), f.proto.SportsPool.Round())
}

func TestKeeperRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	k := newKeeper(f, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, k.Run(ctx))
}

func TestPoolStartIsOwnerOnlyAndOnce(t *testing.T) {
	f := newFixture(t)
	f.fundPools(t)
	pools := service.NewPoolService(f.proto, nil, quiet())
	ctx := context.Background()

	_, err := pools.Start(ctx, protocol.SportsPool, owner)
	assert.Equal(t, "Liquidity pool has already started", domain.RevertReason(err))
	_, err = pools.Start(ctx, "speed", owner)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
