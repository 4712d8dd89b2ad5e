package service_test

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
	"github.com/alanyoungcy/overtimeamm/internal/config"
	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/num"
	"github.com/alanyoungcy/overtimeamm/internal/protocol"
)

var (
	owner = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	lp    = common.HexToAddress("0x0000000000000000000000000000000000000a04")
	alice = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func d(s string) decimal.Decimal { return num.MustParse(s) }

func quiet() *slog.Logger { return slog.New(slog.DiscardHandler) }

type fixture struct {
	proto *protocol.Protocol
	clock *chain.ManualClock
	games int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := chain.NewManualClock(start)
	p, err := protocol.New(context.Background(), config.Defaults().Protocol, protocol.Options{
		Owner: owner,
		Clock: clock,
	})
	require.NoError(t, err)
	return &fixture{proto: p, clock: clock}
}

func (f *fixture) exec(t *testing.T, fn func(tx *chain.Tx) error) {
	t.Helper()
	require.NoError(t, f.proto.Execute(context.Background(), fn))
}

func (f *fixture) mint(t *testing.T, to common.Address, amount string) {
	t.Helper()
	f.exec(t, func(tx *chain.Tx) error {
		return f.proto.Mint(tx, owner, f.proto.SUSD.Address(), to, d(amount))
	})
}

func (f *fixture) fundPools(t *testing.T) {
	t.Helper()
	f.mint(t, lp, "20000")
	f.exec(t, func(tx *chain.Tx) error {
		for _, pool := range f.proto.Pools() {
			if err := pool.Deposit(tx, lp, d("10000")); err != nil {
				return err
			}
			if err := pool.Start(tx, owner); err != nil {
				return err
			}
		}
		return nil
	})
}

// marketByHome finds a live market by its home team.
func (f *fixture) marketByHome(t *testing.T, home string) common.Address {
	t.Helper()
	var addr common.Address
	require.NoError(t, f.proto.View(context.Background(), func(*chain.Tx) error {
		for _, m := range f.proto.Markets.ListAll() {
			if m.HomeTeam() == home && !m.IsDoubleChance() {
				addr = m.Address()
			}
		}
		return nil
	}))
	require.NotEqual(t, common.Address{}, addr, "market %s not created", home)
	return addr
}

// createGame creates a two-way market through the oracle service.
func (f *fixture) createGame(t *testing.T, oracle interface {
	Apply(context.Context, domain.OracleUpdate) error
}) common.Address {
	t.Helper()
	f.games++
	home := fmt.Sprintf("Home %d", f.games)
	require.NoError(t, oracle.Apply(context.Background(), domain.OracleUpdate{
		Kind:         domain.OracleCreateMarket,
		GameID:       fmt.Sprintf("game-%d", f.games),
		Tags:         []uint64{9011},
		HomeTeam:     home,
		AwayTeam:     fmt.Sprintf("Away %d", f.games),
		NumPositions: 2,
		Maturity:     start.Add(48 * time.Hour),
		Odds:         []int64{-150, 130},
	}))
	return f.marketByHome(t, home)
}

type memTickets struct {
	mu      sync.Mutex
	tickets map[common.Address]domain.Ticket
}

func newMemTickets() *memTickets { return &memTickets{tickets: map[common.Address]domain.Ticket{}} }

func (m *memTickets) Upsert(_ context.Context, t domain.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets[t.Address] = t
	return nil
}

func (m *memTickets) GetByAddress(_ context.Context, addr common.Address) (domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[addr]
	if !ok {
		return domain.Ticket{}, domain.ErrNotFound
	}
	return t, nil
}

func (m *memTickets) ListByOwner(_ context.Context, owner common.Address, _ domain.ListOpts) ([]domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Ticket
	for _, t := range m.tickets {
		if t.Owner == owner {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTickets) ListTerminal(context.Context, time.Time, int) ([]domain.Ticket, error) {
	return nil, nil
}

func (m *memTickets) DeleteBatch(context.Context, []common.Address) (int64, error) { return 0, nil }

func (m *memTickets) get(addr common.Address) (domain.Ticket, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[addr]
	return t, ok
}

type memEvents struct {
	mu     sync.Mutex
	events []domain.Event
}

func (m *memEvents) Append(_ context.Context, evt domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

func (m *memEvents) List(context.Context, domain.ListOpts) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Event(nil), m.events...), nil
}

func (m *memEvents) ListByType(_ context.Context, t domain.EventType, _ domain.ListOpts) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Event
	for _, e := range m.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memEvents) types() []domain.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.EventType, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}

type memRounds struct {
	mu     sync.Mutex
	rounds []domain.RoundSnapshot
}

func (m *memRounds) Insert(_ context.Context, s domain.RoundSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds = append(m.rounds, s)
	return nil
}

func (m *memRounds) List(_ context.Context, pool string, _ domain.ListOpts) ([]domain.RoundSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RoundSnapshot
	for _, s := range m.rounds {
		if s.Pool == pool {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Round > out[j].Round })
	return out, nil
}

type memQuotes struct {
	mu          sync.Mutex
	entries     map[string][]byte
	gets, hits  int
	invalidated []string
}

func newMemQuotes() *memQuotes { return &memQuotes{entries: map[string][]byte{}} }

func (m *memQuotes) Set(_ context.Context, key string, payload []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = payload
	return nil
}

func (m *memQuotes) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	b, ok := m.entries[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	m.hits++
	return b, nil
}

func (m *memQuotes) InvalidateMarket(_ context.Context, market string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, market)
	for k := range m.entries {
		if len(k) >= len(market) && k[:len(market)] == market {
			delete(m.entries, k)
		}
	}
	return nil
}

func (m *memQuotes) wasInvalidated(market string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.invalidated {
		if v == market {
			return true
		}
	}
	return false
}

type stubLock struct {
	held     bool
	acquired int
	released int
}

func (l *stubLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	if l.held {
		return nil, domain.ErrLockHeld
	}
	l.acquired++
	return func() { l.released++ }, nil
}
