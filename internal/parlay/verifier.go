package parlay

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/market"
	"github.com/alanyoungcy/overtimeamm/internal/pricing"
)

// group is a set of legs priced together: one independent leg, or a
// same-game pair.
type group struct {
	legs       []int
	sgp        bool
	pair       pricing.PairType
	dir        pricing.Direction
	lineOffset decimal.Decimal
	sport      uint64
}

func pairOf(a, b domain.MarketKind) (pricing.PairType, bool) {
	switch {
	case a == domain.KindMoneyline && b == domain.KindTotal, a == domain.KindTotal && b == domain.KindMoneyline:
		return pricing.PairMoneylineTotal, true
	case a == domain.KindMoneyline && b == domain.KindSpread, a == domain.KindSpread && b == domain.KindMoneyline:
		return pricing.PairMoneylineSpread, true
	case a == domain.KindSpread && b == domain.KindTotal, a == domain.KindTotal && b == domain.KindSpread:
		return pricing.PairSpreadTotal, true
	}
	return 0, false
}

// root is the market that carries the game identity and teams.
func root(m *market.Market) *market.Market {
	if m.IsDoubleChance() {
		return m.Parent()
	}
	return m
}

// verify checks that the legs can share a ticket and splits them into
// pricing groups.
func (a *AMM) verify(ms []*market.Market, ps []domain.Position) ([]group, error) {
	seen := make(map[*market.Market]bool, len(ms))
	families := make(map[*market.Market][]*market.Market, len(ms))
	byGame := make(map[domain.GameID][]int)
	var games []domain.GameID

	for i, m := range ms {
		if seen[m] {
			return nil, domain.ErrSameTeamOnParlay
		}
		seen[m] = true
		// A double chance shares its outcome with its parent and with the
		// other double chances derived from it.
		r := root(m)
		for _, prev := range families[r] {
			if prev.IsDoubleChance() || m.IsDoubleChance() {
				return nil, domain.ErrSameTeamOnParlay
			}
		}
		families[r] = append(families[r], m)

		g := r.GameID()
		if _, ok := byGame[g]; !ok {
			games = append(games, g)
		}
		byGame[g] = append(byGame[g], i)
	}

	teams := make(map[string]domain.GameID)
	for _, g := range games {
		r := root(ms[byGame[g][0]])
		for _, team := range []string{r.HomeTeam(), r.AwayTeam()} {
			if team == "" {
				continue
			}
			if other, ok := teams[team]; ok && other != g {
				return nil, domain.ErrSameTeamOnParlay
			}
			teams[team] = g
		}
	}

	out := make([]group, 0, len(games))
	for _, g := range games {
		idx := byGame[g]
		switch len(idx) {
		case 1:
			out = append(out, group{legs: idx})
		case 2:
			grp, err := a.sameGamePair(ms, ps, idx[0], idx[1])
			if err != nil {
				return nil, err
			}
			out = append(out, grp)
		default:
			return nil, domain.ErrSameTeamOnParlay
		}
	}
	return out, nil
}

func (a *AMM) sameGamePair(ms []*market.Market, ps []domain.Position, i, j int) (group, error) {
	mi, mj := ms[i], ms[j]
	pair, ok := pairOf(mi.Kind(), mj.Kind())
	if !ok {
		return group{}, domain.ErrSameTeamOnParlay
	}
	sport := root(mi).SportTag()
	if !a.sgpFee(sport, pair).IsPositive() {
		return group{}, domain.ErrSameTeamOnParlay
	}
	dir := pricing.DirectionNegative
	if ps[i] == ps[j] {
		dir = pricing.DirectionPositive
	}
	// The spread leg's line sets the offset; a moneyline and total pair uses
	// the total's line.
	offset := mj.Line().Abs()
	switch pair {
	case pricing.PairMoneylineTotal:
		if mi.Kind() == domain.KindTotal {
			offset = mi.Line().Abs()
		}
	default:
		if mi.Kind() == domain.KindSpread {
			offset = mi.Line().Abs()
		}
	}
	return group{
		legs:       []int{i, j},
		sgp:        true,
		pair:       pair,
		dir:        dir,
		lineOffset: offset,
		sport:      sport,
	}, nil
}
