package market

import (
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/token"
)

// Manager is the authoritative registry of markets: creation, resolution,
// parent to double-chance linkage and per-market pause flags.
type Manager struct {
	owner      common.Address
	collateral *token.Token
	markets    map[common.Address]*Market
	order      []common.Address
	children   map[common.Address][]common.Address
	paused     map[common.Address]bool
	whitelist  map[common.Address]bool
}

// NewManager creates an empty registry owned by owner.
func NewManager(owner common.Address, collateral *token.Token) *Manager {
	return &Manager{
		owner:      owner,
		collateral: collateral,
		markets:    make(map[common.Address]*Market),
		children:   make(map[common.Address][]common.Address),
		paused:     make(map[common.Address]bool),
		whitelist:  make(map[common.Address]bool),
	}
}

// Owner returns the registry owner.
func (mg *Manager) Owner() common.Address { return mg.owner }

func (mg *Manager) authorized(caller common.Address) bool {
	return caller == mg.owner || mg.whitelist[caller]
}

// SetWhitelisted grants or revokes an address the right to create, resolve
// and pause markets.
func (mg *Manager) SetWhitelisted(tx *chain.Tx, caller, addr common.Address, allowed bool) error {
	if caller != mg.owner {
		return domain.ErrOnlyOwner
	}
	chain.Put(tx, mg.whitelist, addr, allowed)
	return nil
}

// IsWhitelisted reports whether addr holds market operator rights.
func (mg *Manager) IsWhitelisted(addr common.Address) bool { return mg.whitelist[addr] }

// CreateMarket registers a new base market.
func (mg *Manager) CreateMarket(tx *chain.Tx, caller common.Address, p domain.MarketParams) (*Market, error) {
	if !mg.authorized(caller) {
		return nil, domain.ErrInvalidCaller
	}
	if p.NumPositions != 2 && p.NumPositions != 3 {
		return nil, domain.Revert(domain.ErrValidation, "Invalid number of positions")
	}
	if p.Kind == domain.KindDoubleChance {
		return nil, domain.Revert(domain.ErrValidation, "Use CreateDoubleChance")
	}
	if p.Address == (common.Address{}) {
		p.Address = tx.NewAddress(mg.owner)
	}
	if _, ok := mg.markets[p.Address]; ok {
		return nil, domain.ErrAlreadyRegistered
	}
	if p.Expiry.IsZero() {
		p.Expiry = p.Maturity.Add(90 * 24 * time.Hour)
	}
	m := newMarket(p, mg.collateral)
	mg.add(tx, m)
	tx.Emit(domain.EventMarketCreated, map[string]any{
		"market":    domain.Addr(m.Address()),
		"game_id":   p.GameID.Hex(),
		"kind":      p.Kind.String(),
		"tags":      p.Tags,
		"home":      p.HomeTeam,
		"away":      p.AwayTeam,
		"positions": p.NumPositions,
		"maturity":  p.Maturity,
	})
	return m, nil
}

func (mg *Manager) add(tx *chain.Tx, m *Market) {
	chain.Put(tx, mg.markets, m.Address(), m)
	chain.Append(tx, &mg.order, m.Address())
}

// doubleChancePairs lists the position pairs of home-or-draw, away-or-draw
// and home-or-away.
var doubleChancePairs = [3][2]domain.Position{
	{domain.PositionHome, domain.PositionDraw},
	{domain.PositionAway, domain.PositionDraw},
	{domain.PositionHome, domain.PositionAway},
}

// CreateDoubleChance derives the three synthetic markets of a 3-position
// parent.
func (mg *Manager) CreateDoubleChance(tx *chain.Tx, caller, parentAddr common.Address) ([]*Market, error) {
	if !mg.authorized(caller) {
		return nil, domain.ErrInvalidCaller
	}
	parent, err := mg.Get(parentAddr)
	if err != nil {
		return nil, err
	}
	if parent.IsDoubleChance() || parent.NumPositions() != 3 {
		return nil, domain.Revert(domain.ErrValidation, "Parent must have three positions")
	}
	if len(mg.children[parentAddr]) > 0 {
		return nil, domain.ErrAlreadyRegistered
	}

	names := [3]string{parent.HomeTeam(), parent.AwayTeam(), "Draw"}
	out := make([]*Market, 0, len(doubleChancePairs))
	var kids []common.Address
	for _, pair := range doubleChancePairs {
		p := parent.params
		p.Address = tx.NewAddress(parentAddr)
		p.Kind = domain.KindDoubleChance
		p.NumPositions = 2
		p.HomeTeam = fmt.Sprintf("%s or %s", names[pair[0]], names[pair[1]])
		p.AwayTeam = ""
		dc := newMarket(p, mg.collateral)
		dc.parent = parent
		dc.covered = pair
		mg.add(tx, dc)
		kids = append(kids, dc.Address())
		out = append(out, dc)
		tx.Emit(domain.EventMarketCreated, map[string]any{
			"market":  domain.Addr(dc.Address()),
			"parent":  domain.Addr(parentAddr),
			"kind":    p.Kind.String(),
			"covered": []string{pair[0].String(), pair[1].String()},
		})
	}
	chain.Put(tx, mg.children, parentAddr, kids)
	return out, nil
}

// Resolve records the winning position of a market.
func (mg *Manager) Resolve(tx *chain.Tx, caller, addr common.Address, result domain.Position) error {
	if !mg.authorized(caller) {
		return domain.ErrInvalidCaller
	}
	m, err := mg.Get(addr)
	if err != nil {
		return err
	}
	if err := m.resolve(tx, result); err != nil {
		return err
	}
	tx.Emit(domain.EventMarketResolved, map[string]any{
		"market": domain.Addr(addr),
		"result": result.String(),
	})
	return nil
}

// Cancel marks a market cancelled; holders are refunded at cancel prices.
func (mg *Manager) Cancel(tx *chain.Tx, caller, addr common.Address) error {
	if !mg.authorized(caller) {
		return domain.ErrInvalidCaller
	}
	m, err := mg.Get(addr)
	if err != nil {
		return err
	}
	if err := m.cancel(tx); err != nil {
		return err
	}
	tx.Emit(domain.EventMarketResolved, map[string]any{
		"market":    domain.Addr(addr),
		"cancelled": true,
	})
	return nil
}

// SetPaused toggles trading on one market. Only the owner or a whitelisted
// caller may do this.
func (mg *Manager) SetPaused(tx *chain.Tx, caller, addr common.Address, paused bool) error {
	if !mg.authorized(caller) {
		return domain.ErrInvalidCaller
	}
	if _, err := mg.Get(addr); err != nil {
		return err
	}
	chain.Put(tx, mg.paused, addr, paused)
	tx.Emit(domain.EventMarketPaused, map[string]any{
		"market": domain.Addr(addr),
		"paused": paused,
		"caller": domain.Addr(caller),
	})
	return nil
}

// IsPaused reports the pause flag. A double-chance market is also paused when
// its parent is.
func (mg *Manager) IsPaused(addr common.Address) bool {
	if mg.paused[addr] {
		return true
	}
	if m, ok := mg.markets[addr]; ok && m.parent != nil {
		return mg.paused[m.parent.Address()]
	}
	return false
}

// Get looks up a market.
func (mg *Manager) Get(addr common.Address) (*Market, error) {
	m, ok := mg.markets[addr]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	return m, nil
}

// DoubleChanceOf returns the synthetic markets derived from parent.
func (mg *Manager) DoubleChanceOf(parent common.Address) []*Market {
	kids := mg.children[parent]
	out := make([]*Market, 0, len(kids))
	for _, k := range kids {
		out = append(out, mg.markets[k])
	}
	return out
}

// ListActive returns markets still open for trading at now, ordered by
// maturity.
func (mg *Manager) ListActive(now time.Time) []*Market {
	return mg.list(func(m *Market) bool { return !m.Resolved() && !m.Matured(now) })
}

// ListMatured returns markets past maturity that are not yet resolved.
func (mg *Manager) ListMatured(now time.Time) []*Market {
	return mg.list(func(m *Market) bool { return !m.Resolved() && m.Matured(now) })
}

// ListAll returns every market in creation order.
func (mg *Manager) ListAll() []*Market {
	return mg.list(func(*Market) bool { return true })
}

func (mg *Manager) list(keep func(*Market) bool) []*Market {
	var out []*Market
	for _, a := range mg.order {
		if m := mg.markets[a]; keep(m) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Maturity().Before(out[j].Maturity()) })
	return out
}

// Info snapshots the market at addr.
func (mg *Manager) Info(addr common.Address) (domain.MarketInfo, error) {
	m, err := mg.Get(addr)
	if err != nil {
		return domain.MarketInfo{}, err
	}
	return m.Info(mg.IsPaused(addr)), nil
}
