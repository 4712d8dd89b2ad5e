package domain

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Direction is the predicted move of one speed market leg.
type Direction uint8

const (
	DirectionUp Direction = iota
	DirectionDown
)

func (d Direction) String() string {
	if d == DirectionDown {
		return "down"
	}
	return "up"
}

// ParseDirection accepts "up" and "down" in any case.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(s) {
	case "up":
		return DirectionUp, true
	case "down":
		return DirectionDown, true
	}
	return 0, false
}

// ChainedMarket is a read-only snapshot of a chained speed market.
type ChainedMarket struct {
	Address      common.Address    `json:"address"`
	User         common.Address    `json:"user"`
	Asset        string            `json:"asset"`
	TimeFrame    time.Duration     `json:"time_frame"`
	Directions   []Direction       `json:"directions"`
	Strike       decimal.Decimal   `json:"strike"`
	StrikeTime   time.Time         `json:"strike_time"`
	FinalPrices  []decimal.Decimal `json:"final_prices,omitempty"`
	Buyin        decimal.Decimal   `json:"buyin"`
	Payout       decimal.Decimal   `json:"payout"`
	Resolved     bool              `json:"resolved"`
	IsUserWinner bool              `json:"is_user_winner"`
}
