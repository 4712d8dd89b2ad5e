package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType names an emitted record.
type EventType string

const (
	EventMarketCreated          EventType = "market_created"
	EventMarketResolved         EventType = "market_resolved"
	EventMarketPaused           EventType = "market_paused"
	EventOddsUpdated            EventType = "odds_updated"
	EventBoughtFromAmm          EventType = "bought_from_amm"
	EventSoldToAmm              EventType = "sold_to_amm"
	EventReferrerPaid           EventType = "referrer_paid"
	EventParlayMarketCreated    EventType = "parlay_market_created"
	EventParlayResolved         EventType = "parlay_resolved"
	EventParlayExercised        EventType = "parlay_exercised"
	EventParlayExpired          EventType = "parlay_expired"
	EventParlayPaused           EventType = "parlay_paused"
	EventCombinationRiskReset   EventType = "combination_risk_reset"
	EventPoolStarted            EventType = "pool_started"
	EventDeposited              EventType = "deposited"
	EventWithdrawalRequested    EventType = "withdrawal_requested"
	EventRoundClosingPrepared   EventType = "round_closing_prepared"
	EventRoundClosed            EventType = "round_closed"
	EventVoucherMinted          EventType = "voucher_minted"
	EventVoucherSpent           EventType = "voucher_spent"
	EventChainedMarketCreated   EventType = "chained_market_created"
	EventChainedMarketResolved  EventType = "chained_market_resolved"
	EventPricePublished         EventType = "price_published"
	EventImplementationUpgraded EventType = "implementation_upgraded"
)

// Event is one emitted record. Events are dispatched only after the
// transaction that produced them commits.
type Event struct {
	ID      uuid.UUID      `json:"id"`
	Type    EventType      `json:"type"`
	Seq     uint64         `json:"seq"`
	At      time.Time      `json:"at"`
	Payload map[string]any `json:"payload"`
}

// NewEvent builds an event with a fresh id. Seq and At are stamped by the
// chain at commit.
func NewEvent(t EventType, payload map[string]any) Event {
	return Event{ID: uuid.New(), Type: t, Payload: payload}
}

// Fields used in payloads. Kept as strings so every sink renders them the same.
func Addr(a common.Address) string { return a.Hex() }

func Dec(d decimal.Decimal) string { return d.String() }
