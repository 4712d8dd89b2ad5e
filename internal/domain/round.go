package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// RoundSnapshot records the settlement of one liquidity round.
type RoundSnapshot struct {
	Pool            string          `json:"pool"`
	Round           uint64          `json:"round"`
	RoundPool       common.Address  `json:"round_pool"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         time.Time       `json:"end_time"`
	Allocation      decimal.Decimal `json:"allocation"`
	DLPContribution decimal.Decimal `json:"dlp_contribution"`
	EndBalance      decimal.Decimal `json:"end_balance"`
	PnL             decimal.Decimal `json:"pnl"`
	CumulativePnL   decimal.Decimal `json:"cumulative_pnl"`
	Users           int             `json:"users"`
	ClosedAt        time.Time       `json:"closed_at"`
}

// PoolInfo is a read-only view of a liquidity pool.
type PoolInfo struct {
	Name            string          `json:"name"`
	Started         bool            `json:"started"`
	Round           uint64          `json:"round"`
	RoundStart      time.Time       `json:"round_start"`
	RoundEnd        time.Time       `json:"round_end"`
	Allocation      decimal.Decimal `json:"allocation"`
	NextAllocation  decimal.Decimal `json:"next_allocation"`
	Tradable        decimal.Decimal `json:"tradable"`
	Committed       decimal.Decimal `json:"committed"`
	DLPContribution decimal.Decimal `json:"dlp_contribution"`
	Users           int             `json:"users"`
	ClosingPrepared bool            `json:"closing_prepared"`
}
