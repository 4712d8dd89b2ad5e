package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/service"
)

func publishPrice(t *testing.T, oracle *service.OracleService, price string) {
	t.Helper()
	require.NoError(t, oracle.Apply(context.Background(), domain.OracleUpdate{
		Kind: domain.OraclePrice, Asset: "ETH", Price: d(price),
	}))
}

func TestSpeedMarketWinsAfterTwoUpLegs(t *testing.T) {
	f := newFixture(t)
	f.mint(t, f.proto.Speed.Address(), "1000")
	f.mint(t, alice, "100")
	oracle := service.NewOracleService(f.proto, owner, quiet())
	speed := service.NewSpeedService(f.proto, quiet())
	ctx := context.Background()

	publishPrice(t, oracle, "2000")
	m, err := speed.Create(ctx, service.SpeedOrder{
		User:       alice,
		Asset:      "ETH",
		TimeFrame:  time.Minute,
		Directions: []domain.Direction{domain.DirectionUp, domain.DirectionUp},
		Buyin:      d("10"),
	})
	require.NoError(t, err)
	assert.True(t, d("2000").Equal(m.Strike))
	assert.True(t, d("36.1").Equal(m.Payout))

	f.clock.Advance(time.Minute)
	publishPrice(t, oracle, "2100")
	done, err := speed.ResolveDue(ctx)
	require.NoError(t, err)
	assert.Empty(t, done, "second leg still in the future")

	f.clock.Advance(time.Minute)
	publishPrice(t, oracle, "2200")
	done, err = speed.ResolveDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{m.Address}, done)

	got, err := speed.Get(ctx, m.Address)
	require.NoError(t, err)
	assert.True(t, got.Resolved)
	assert.True(t, got.IsUserWinner)
	assert.Len(t, got.FinalPrices, 2)
	assert.True(t, d("125.9").Equal(f.proto.SUSD.BalanceOf(alice)))
}

func TestSpeedMarketLosesOnFirstMissedLeg(t *testing.T) {
	f := newFixture(t)
	f.mint(t, f.proto.Speed.Address(), "1000")
	f.mint(t, alice, "100")
	oracle := service.NewOracleService(f.proto, owner, quiet())
	speed := service.NewSpeedService(f.proto, quiet())
	ctx := context.Background()

	publishPrice(t, oracle, "2000")
	m, err := speed.Create(ctx, service.SpeedOrder{
		User: alice, Asset: "ETH", TimeFrame: time.Minute,
		Directions: []domain.Direction{domain.DirectionUp, domain.DirectionDown, domain.DirectionUp},
		Buyin:      d("5"),
	})
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	publishPrice(t, oracle, "2000")
	done, err := speed.ResolveDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{m.Address}, done)

	got, err := speed.Get(ctx, m.Address)
	require.NoError(t, err)
	assert.True(t, got.Resolved)
	assert.False(t, got.IsUserWinner)
}

func TestSpeedCreateRejectsBadOrders(t *testing.T) {
	f := newFixture(t)
	f.mint(t, f.proto.Speed.Address(), "1000")
	f.mint(t, alice, "100")
	speed := service.NewSpeedService(f.proto, quiet())
	ctx := context.Background()
	up := []domain.Direction{domain.DirectionUp, domain.DirectionUp}

	_, err := speed.Create(ctx, service.SpeedOrder{User: alice, Asset: "ETH", TimeFrame: time.Minute, Directions: up, Buyin: d("10")})
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)

	_, err = speed.Create(ctx, service.SpeedOrder{User: alice, Asset: "ETH", TimeFrame: time.Minute, Directions: up, Buyin: d("50")})
	assert.ErrorIs(t, err, domain.ErrWrongBuyIn)

	_, err = speed.Create(ctx, service.SpeedOrder{User: alice, Asset: "ETH", TimeFrame: time.Hour, Directions: up, Buyin: d("10")})
	assert.ErrorIs(t, err, domain.ErrWrongTimeFrame)

	_, err = speed.Get(ctx, common.HexToAddress("0xdead"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
