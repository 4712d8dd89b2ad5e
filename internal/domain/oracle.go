package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// OracleKind selects what an OracleUpdate carries.
type OracleKind string

const (
	OracleCreateMarket OracleKind = "create_market"
	OracleOdds         OracleKind = "odds"
	OracleResolve      OracleKind = "resolve"
	OracleCancel       OracleKind = "cancel"
	OraclePrice        OracleKind = "price"
	OracleRate         OracleKind = "rate"
)

// OracleUpdate is one message from an off-chain data provider. Only the
// fields of its Kind are set.
type OracleUpdate struct {
	Kind OracleKind `json:"kind"`

	// create_market
	GameID       string          `json:"game_id,omitempty"`
	Tags         []uint64        `json:"tags,omitempty"`
	MarketKind   string          `json:"market_kind,omitempty"`
	Line         decimal.Decimal `json:"line,omitempty"`
	HomeTeam     string          `json:"home_team,omitempty"`
	AwayTeam     string          `json:"away_team,omitempty"`
	NumPositions int             `json:"num_positions,omitempty"`
	Maturity     time.Time       `json:"maturity,omitempty"`
	DoubleChance bool            `json:"double_chance,omitempty"`

	// odds, resolve, cancel
	Market common.Address `json:"market,omitempty"`
	Odds   []int64        `json:"odds,omitempty"`
	Result Position       `json:"result,omitempty"`

	// price
	Asset string          `json:"asset,omitempty"`
	At    time.Time       `json:"at,omitempty"`
	Price decimal.Decimal `json:"price,omitempty"`

	// rate
	Collateral common.Address `json:"collateral,omitempty"`
}
