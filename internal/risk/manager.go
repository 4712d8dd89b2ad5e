// Package risk holds the caps, multipliers and leg limits both AMMs consult
// before quoting and trading.
package risk

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/market"
	"github.com/alanyoungcy/overtimeamm/internal/num"
)

// Params are the bounds and defaults of a Manager.
type Params struct {
	DefaultCapPerGame     decimal.Decimal
	MaxCapPerGame         decimal.Decimal
	DefaultRiskMultiplier decimal.Decimal
	MaxRiskMultiplier     decimal.Decimal
	DefaultMaxLegs        int
	MaxSpread             decimal.Decimal
}

type childKey struct {
	sport uint64
	child uint64
}

// Manager is the Risk Manager. Queries never fail; exhausted capacity shows
// up as zero. Only the execution path reverts.
type Manager struct {
	owner  common.Address
	params Params

	capPerSport         map[uint64]decimal.Decimal
	capPerSportAndChild map[childKey]decimal.Decimal
	capPerMarket        map[common.Address]decimal.Decimal

	riskMultiplierPerSport  map[uint64]decimal.Decimal
	riskMultiplierPerMarket map[common.Address]decimal.Decimal

	cutoffTime    map[uint64]time.Duration
	cutoffDivider map[uint64]decimal.Decimal

	maxLegsPerTag    map[uint64]int
	spreadMultiplier map[uint64]decimal.Decimal
}

// NewManager creates a Manager with no per-tag overrides.
func NewManager(owner common.Address, p Params) *Manager {
	return &Manager{
		owner:                   owner,
		params:                  p,
		capPerSport:             make(map[uint64]decimal.Decimal),
		capPerSportAndChild:     make(map[childKey]decimal.Decimal),
		capPerMarket:            make(map[common.Address]decimal.Decimal),
		riskMultiplierPerSport:  make(map[uint64]decimal.Decimal),
		riskMultiplierPerMarket: make(map[common.Address]decimal.Decimal),
		cutoffTime:              make(map[uint64]time.Duration),
		cutoffDivider:           make(map[uint64]decimal.Decimal),
		maxLegsPerTag:           make(map[uint64]int),
		spreadMultiplier:        make(map[uint64]decimal.Decimal),
	}
}

// Params returns the current defaults.
func (r *Manager) Params() Params { return r.params }

func (r *Manager) onlyOwner(caller common.Address) error {
	if caller != r.owner {
		return domain.ErrOnlyOwner
	}
	return nil
}

func (r *Manager) checkCap(v decimal.Decimal) error {
	if v.IsNegative() || v.GreaterThan(r.params.MaxCapPerGame) {
		return domain.ErrInvalidCap
	}
	return nil
}

// SetDefaultCapPerGame updates the fallback cap.
func (r *Manager) SetDefaultCapPerGame(tx *chain.Tx, caller common.Address, v decimal.Decimal) error {
	if err := r.onlyOwner(caller); err != nil {
		return err
	}
	if err := r.checkCap(v); err != nil {
		return err
	}
	chain.Assign(tx, &r.params.DefaultCapPerGame, v)
	return nil
}

// SetCapPerSport sets the cap of a sport tag. Zero clears the override.
func (r *Manager) SetCapPerSport(tx *chain.Tx, caller common.Address, sport uint64, v decimal.Decimal) error {
	if err := r.onlyOwner(caller); err != nil {
		return err
	}
	if err := r.checkCap(v); err != nil {
		return err
	}
	putOrClear(tx, r.capPerSport, sport, v)
	return nil
}

// SetCapPerSportAndChild sets the cap of a sport and child tag pair.
func (r *Manager) SetCapPerSportAndChild(tx *chain.Tx, caller common.Address, sport, child uint64, v decimal.Decimal) error {
	if err := r.onlyOwner(caller); err != nil {
		return err
	}
	if err := r.checkCap(v); err != nil {
		return err
	}
	putOrClear(tx, r.capPerSportAndChild, childKey{sport, child}, v)
	return nil
}

// SetCapPerMarket sets the cap of individual markets.
func (r *Manager) SetCapPerMarket(tx *chain.Tx, caller common.Address, markets []common.Address, v decimal.Decimal) error {
	if err := r.onlyOwner(caller); err != nil {
		return err
	}
	if err := r.checkCap(v); err != nil {
		return err
	}
	for _, m := range markets {
		putOrClear(tx, r.capPerMarket, m, v)
	}
	return nil
}

func (r *Manager) checkMultiplier(v decimal.Decimal) error {
	if v.IsNegative() || v.GreaterThan(r.params.MaxRiskMultiplier) {
		return domain.ErrInvalidMultiplier
	}
	return nil
}

// SetDefaultRiskMultiplier updates the fallback multiplier.
func (r *Manager) SetDefaultRiskMultiplier(tx *chain.Tx, caller common.Address, v decimal.Decimal) error {
	if err := r.onlyOwner(caller); err != nil {
		return err
	}
	if err := r.checkMultiplier(v); err != nil {
		return err
	}
	chain.Assign(tx, &r.params.DefaultRiskMultiplier, v)
	return nil
}

// SetRiskMultiplierPerSport sets a sport's multiplier.
func (r *Manager) SetRiskMultiplierPerSport(tx *chain.Tx, caller common.Address, sport uint64, v decimal.Decimal) error {
	if err := r.onlyOwner(caller); err != nil {
		return err
	}
	if err := r.checkMultiplier(v); err != nil {
		return err
	}
	putOrClear(tx, r.riskMultiplierPerSport, sport, v)
	return nil
}

// SetRiskMultiplierPerMarket sets the multiplier of individual markets.
func (r *Manager) SetRiskMultiplierPerMarket(tx *chain.Tx, caller common.Address, markets []common.Address, v decimal.Decimal) error {
	if err := r.onlyOwner(caller); err != nil {
		return err
	}
	if err := r.checkMultiplier(v); err != nil {
		return err
	}
	for _, m := range markets {
		putOrClear(tx, r.riskMultiplierPerMarket, m, v)
	}
	return nil
}

// SetDynamicLiquidity configures the cap reduction applied to a sport's
// markets while their start is further away than cutoff.
func (r *Manager) SetDynamicLiquidity(tx *chain.Tx, caller common.Address, sport uint64, cutoff time.Duration, divider decimal.Decimal) error {
	if err := r.onlyOwner(caller); err != nil {
		return err
	}
	if cutoff < 0 || (cutoff > 0 && divider.LessThan(num.One)) {
		return domain.Revert(domain.ErrValidation, "Invalid dynamic liquidity params")
	}
	chain.Put(tx, r.cutoffTime, sport, cutoff)
	chain.Put(tx, r.cutoffDivider, sport, divider)
	return nil
}

// SetMaxLegsPerTag bounds the number of legs a parlay may draw from a sport.
func (r *Manager) SetMaxLegsPerTag(tx *chain.Tx, caller common.Address, sport uint64, legs int) error {
	if err := r.onlyOwner(caller); err != nil {
		return err
	}
	if legs < 0 {
		return domain.Revert(domain.ErrValidation, "Invalid legs")
	}
	if legs == 0 {
		chain.Delete(tx, r.maxLegsPerTag, sport)
		return nil
	}
	chain.Put(tx, r.maxLegsPerTag, sport, legs)
	return nil
}

// SetSpreadMultiplier scales the minimum spread charged on a sport.
func (r *Manager) SetSpreadMultiplier(tx *chain.Tx, caller common.Address, sport uint64, v decimal.Decimal) error {
	if err := r.onlyOwner(caller); err != nil {
		return err
	}
	if v.IsNegative() {
		return domain.ErrInvalidMultiplier
	}
	putOrClear(tx, r.spreadMultiplier, sport, v)
	return nil
}

// CalculateCapToBeUsed returns the cap of m at now. Double-chance markets
// share their parent's cap.
func (r *Manager) CalculateCapToBeUsed(m *market.Market, now time.Time) decimal.Decimal {
	if m.IsDoubleChance() {
		m = m.Parent()
	}
	limit := r.capFor(m)
	sport := m.SportTag()
	if cutoff, ok := r.cutoffTime[sport]; ok && cutoff > 0 {
		if m.Maturity().Sub(now) > cutoff {
			limit = num.Div(limit, r.cutoffDivider[sport])
		}
	}
	return limit
}

// capFor bounds the default cap by the most specific tag cap. A per-market
// cap replaces both.
func (r *Manager) capFor(m *market.Market) decimal.Decimal {
	if v, ok := r.capPerMarket[m.Address()]; ok {
		return v
	}
	limit := r.params.DefaultCapPerGame
	if tagCap, ok := r.tagCap(m); ok {
		limit = num.Min(limit, tagCap)
	}
	return limit
}

func (r *Manager) tagCap(m *market.Market) (decimal.Decimal, bool) {
	if child := m.ChildTag(); child != 0 {
		if v, ok := r.capPerSportAndChild[childKey{m.SportTag(), child}]; ok {
			return v, true
		}
	}
	v, ok := r.capPerSport[m.SportTag()]
	return v, ok
}

// RiskMultiplier returns the multiplier of m.
func (r *Manager) RiskMultiplier(m *market.Market) decimal.Decimal {
	if m.IsDoubleChance() {
		m = m.Parent()
	}
	if v, ok := r.riskMultiplierPerMarket[m.Address()]; ok {
		return v
	}
	if v, ok := r.riskMultiplierPerSport[m.SportTag()]; ok {
		return v
	}
	return r.params.DefaultRiskMultiplier
}

// IsTotalSpendingLessThanTotalRisk reports whether spent stays within the
// market's cap scaled by its risk multiplier.
func (r *Manager) IsTotalSpendingLessThanTotalRisk(spent decimal.Decimal, m *market.Market, now time.Time) bool {
	limit := num.Mul(r.CalculateCapToBeUsed(m, now), r.RiskMultiplier(m))
	return spent.LessThanOrEqual(limit)
}

// MaxLegs returns the largest parlay allowed across every sport in tags.
func (r *Manager) MaxLegs(tags []uint64) int {
	out := 0
	for _, t := range tags {
		v, ok := r.maxLegsPerTag[t]
		if !ok {
			v = r.params.DefaultMaxLegs
		}
		if out == 0 || v < out {
			out = v
		}
	}
	if out == 0 {
		return r.params.DefaultMaxLegs
	}
	return out
}

// SpreadFor scales minSpread by the sport's multiplier, bounded by the max
// spread.
func (r *Manager) SpreadFor(sport uint64, minSpread decimal.Decimal) decimal.Decimal {
	v, ok := r.spreadMultiplier[sport]
	if !ok {
		return minSpread
	}
	return num.Min(num.Mul(minSpread, v), r.params.MaxSpread)
}

func putOrClear[K comparable](tx *chain.Tx, m map[K]decimal.Decimal, k K, v decimal.Decimal) {
	if v.IsZero() {
		chain.Delete(tx, m, k)
		return
	}
	chain.Put(tx, m, k, v)
}
