package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/events"
	"github.com/alanyoungcy/overtimeamm/internal/metrics"
	"github.com/alanyoungcy/overtimeamm/internal/service"
)

func runBus(t *testing.T, f *fixture) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.proto.Bus.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestRecorderFansOutCommittedEvents(t *testing.T) {
	f := newFixture(t)
	evts := &memEvents{}
	tickets := newMemTickets()
	quotes := newMemQuotes()
	service.NewRecorder(f.proto, service.RecorderDeps{
		Events:  evts,
		Tickets: tickets,
		Quotes:  quotes,
		Metrics: metrics.New(),
	}, quiet()).Attach(f.proto.Bus)
	runBus(t, f)

	f.fundPools(t)
	f.mint(t, alice, "1000")
	oracle := service.NewOracleService(f.proto, owner, quiet())
	m1, m2 := f.createGame(t, oracle), f.createGame(t, oracle)
	trades := service.NewTradeService(f.proto, quiet())
	_, err := trades.Buy(context.Background(), service.TradeOrder{
		Trader: alice, Market: m1, Position: domain.PositionHome,
		Amount: d("10"), Expected: d("10"), Slippage: d("1"),
	})
	require.NoError(t, err)
	tk := buyParlay(t, f, service.NewParlayService(f.proto, nil, owner, quiet()), m1, m2)

	require.Eventually(t, func() bool {
		_, ok := tickets.get(tk.Address)
		return ok && quotes.wasInvalidated(m1.Hex())
	}, 2*time.Second, 10*time.Millisecond)

	stored, _ := tickets.get(tk.Address)
	assert.Equal(t, alice, stored.Owner)
	assert.Equal(t, domain.PhaseCreated, stored.Phase)

	require.Eventually(t, func() bool {
		return contains(evts.types(), domain.EventParlayMarketCreated)
	}, 2*time.Second, 10*time.Millisecond)
	types := evts.types()
	assert.Contains(t, types, domain.EventDeposited)
	assert.Contains(t, types, domain.EventMarketCreated)
	assert.Contains(t, types, domain.EventBoughtFromAmm)
}

func TestRecorderCountsSinkErrors(t *testing.T) {
	f := newFixture(t)
	m := metrics.New()
	failing := events.SinkFunc(func(context.Context, domain.Event) error {
		return errors.New("broker down")
	})
	service.NewRecorder(f.proto, service.RecorderDeps{Kafka: failing, Metrics: m}, quiet()).Attach(f.proto.Bus)
	runBus(t, f)

	f.fundPools(t)
	require.Eventually(t, func() bool {
		mfs, err := m.Registry().Gather()
		if err != nil {
			return false
		}
		for _, mf := range mfs {
			if mf.GetName() != "overtime_sink_errors_total" {
				continue
			}
			for _, metric := range mf.GetMetric() {
				if metric.GetCounter().GetValue() >= 1 {
					return true
				}
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func contains(types []domain.EventType, want domain.EventType) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}
