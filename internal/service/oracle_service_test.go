package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/service"
)

func TestOracleCreatesMarketWithOdds(t *testing.T) {
	f := newFixture(t)
	oracle := service.NewOracleService(f.proto, owner, quiet())
	addr := f.createGame(t, oracle)

	require.NoError(t, f.proto.View(context.Background(), func(*chain.Tx) error {
		assert.Equal(t, []int64{-150, 130}, f.proto.Feed.AmericanOdds(addr))
		m, err := f.proto.Markets.Get(addr)
		require.NoError(t, err)
		assert.Equal(t, ethcrypto.Keccak256Hash([]byte("game-1")).Hex(), m.GameID().Hex())
		return nil
	}))
}

func TestOracleCreatesDoubleChanceChildren(t *testing.T) {
	f := newFixture(t)
	oracle := service.NewOracleService(f.proto, owner, quiet())
	require.NoError(t, oracle.Apply(context.Background(), domain.OracleUpdate{
		Kind:         domain.OracleCreateMarket,
		GameID:       "derby",
		Tags:         []uint64{9010},
		HomeTeam:     "Arsenal",
		AwayTeam:     "Spurs",
		NumPositions: 3,
		Maturity:     start.Add(24 * time.Hour),
		Odds:         []int64{120, 210, 240},
		DoubleChance: true,
	}))
	parent := f.marketByHome(t, "Arsenal")
	assert.Len(t, f.proto.Markets.DoubleChanceOf(parent), 3)
}

func TestOracleResolvesAndPublishesPrices(t *testing.T) {
	f := newFixture(t)
	oracle := service.NewOracleService(f.proto, owner, quiet())
	ctx := context.Background()
	addr := f.createGame(t, oracle)

	f.clock.Set(start.Add(49 * time.Hour))
	require.NoError(t, oracle.Apply(ctx, domain.OracleUpdate{Kind: domain.OracleResolve, Market: addr, Result: domain.PositionAway}))
	m, err := f.proto.Markets.Get(addr)
	require.NoError(t, err)
	assert.True(t, m.Resolved())
	assert.Equal(t, domain.PositionAway, m.Result())

	require.NoError(t, oracle.Apply(ctx, domain.OracleUpdate{Kind: domain.OraclePrice, Asset: "ETH", Price: d("2500")}))
	price, ok := f.proto.Prices.PriceAt("ETH", f.clock.Now())
	require.True(t, ok)
	assert.True(t, d("2500").Equal(price))
}

func TestOracleRejectsBadUpdates(t *testing.T) {
	f := newFixture(t)
	oracle := service.NewOracleService(f.proto, owner, quiet())
	ctx := context.Background()

	err := oracle.Apply(ctx, domain.OracleUpdate{Kind: domain.OracleOdds, Market: common.HexToAddress("0xdead"), Odds: []int64{100, -100}})
	assert.Error(t, err)

	err = oracle.Apply(ctx, domain.OracleUpdate{Kind: domain.OracleCreateMarket, MarketKind: "exotic", NumPositions: 2})
	assert.Equal(t, "Unknown market kind", domain.RevertReason(err))

	stranger := service.NewOracleService(f.proto, alice, quiet())
	err = stranger.Apply(ctx, domain.OracleUpdate{Kind: domain.OraclePrice, Asset: "ETH", Price: d("1")})
	assert.Error(t, err)
}

func TestParseGameID(t *testing.T) {
	h := ethcrypto.Keccak256Hash([]byte("x"))
	assert.Equal(t, domain.GameID(h), service.ParseGameID(h.Hex()))
	assert.Equal(t, domain.GameID(ethcrypto.Keccak256Hash([]byte("nba-123"))), service.ParseGameID("nba-123"))
}
