package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Position identifies one outcome token of a market.
type Position uint8

const (
	PositionHome Position = iota
	PositionAway
	PositionDraw
)

func (p Position) String() string {
	switch p {
	case PositionHome:
		return "home"
	case PositionAway:
		return "away"
	case PositionDraw:
		return "draw"
	default:
		return "unknown"
	}
}

// MarketKind is the bet type a market offers.
type MarketKind uint8

const (
	KindMoneyline MarketKind = iota
	KindSpread
	KindTotal
	KindDoubleChance
)

func (k MarketKind) String() string {
	switch k {
	case KindMoneyline:
		return "moneyline"
	case KindSpread:
		return "spread"
	case KindTotal:
		return "total"
	case KindDoubleChance:
		return "double_chance"
	default:
		return "unknown"
	}
}

// ParseMarketKind is the inverse of MarketKind.String.
func ParseMarketKind(s string) (MarketKind, bool) {
	switch s {
	case "moneyline", "":
		return KindMoneyline, true
	case "spread":
		return KindSpread, true
	case "total":
		return KindTotal, true
	case "double_chance":
		return KindDoubleChance, true
	}
	return 0, false
}

// GameID identifies the real-world event shared by all markets on it.
type GameID [32]byte

func (g GameID) Hex() string { return common.Hash(g).Hex() }

// MarketParams describes a market to be created by the oracle consumer.
type MarketParams struct {
	Address      common.Address
	GameID       GameID
	Tags         []uint64
	Kind         MarketKind
	Line         decimal.Decimal
	HomeTeam     string
	AwayTeam     string
	NumPositions int
	Maturity     time.Time
	Expiry       time.Time
}

// MarketInfo is a read-only snapshot of a market.
type MarketInfo struct {
	Address      common.Address    `json:"address"`
	GameID       string            `json:"game_id"`
	Tags         []uint64          `json:"tags"`
	Kind         string            `json:"kind"`
	Line         decimal.Decimal   `json:"line"`
	HomeTeam     string            `json:"home_team"`
	AwayTeam     string            `json:"away_team"`
	NumPositions int               `json:"num_positions"`
	Maturity     time.Time         `json:"maturity"`
	Expiry       time.Time         `json:"expiry"`
	Resolved     bool              `json:"resolved"`
	Cancelled    bool              `json:"cancelled"`
	Result       Position          `json:"result"`
	Paused       bool              `json:"paused"`
	Parent       *common.Address   `json:"parent,omitempty"`
	Odds         []decimal.Decimal `json:"odds,omitempty"`
}
