package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrContextDone   = errors.New("context cancelled")
	ErrLockHeld      = errors.New("lock already held")

	// Revert taxonomy. Every RevertError unwraps to exactly one of these.
	ErrValidation   = errors.New("validation failed")
	ErrCapacity     = errors.New("capacity exhausted")
	ErrTiming       = errors.New("outside valid window")
	ErrState        = errors.New("invalid state")
	ErrSlippage     = errors.New("quote outside slippage tolerance")
	ErrInsufficient = errors.New("insufficient funds")
)

// RevertError is a transaction failure carrying the reason string reported
// to callers. Kind places the reason in the error taxonomy.
type RevertError struct {
	Reason string
	Kind   error
}

func (e *RevertError) Error() string { return e.Reason }

func (e *RevertError) Unwrap() error { return e.Kind }

// Revert builds a RevertError of the given kind.
func Revert(kind error, reason string) *RevertError {
	return &RevertError{Reason: reason, Kind: kind}
}

// RevertReason extracts the revert reason from err, or "" when err is not a
// revert.
func RevertReason(err error) string {
	var re *RevertError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ""
}

// Canonical reverts shared across engines.
var (
	ErrInvalidCaller      = Revert(ErrUnauthorized, "Invalid caller")
	ErrOnlyOwner          = Revert(ErrUnauthorized, "Only the contract owner may perform this action")
	ErrSlippageTooHigh    = Revert(ErrSlippage, "Slippage too high")
	ErrRateTooFrequent    = Revert(ErrTiming, "Rate update too frequent")
	ErrClaimingEnded      = Revert(ErrTiming, "Claiming period ended")
	ErrInsufficientBal    = Revert(ErrInsufficient, "Insufficient balance")
	ErrMarketNotFound     = Revert(ErrNotFound, "Market not found")
	ErrMarketResolved     = Revert(ErrState, "Market already resolved")
	ErrMarketNotResolved  = Revert(ErrState, "Market not resolved")
	ErrMarketNotTradable  = Revert(ErrState, "Market is not tradable")
	ErrInvalidPosition    = Revert(ErrValidation, "Invalid position")
	ErrZeroAmount         = Revert(ErrValidation, "Amount must be positive")
	ErrLowLiquidity       = Revert(ErrCapacity, "Low liquidity || 0 amount")
	ErrRiskPerMarket      = Revert(ErrCapacity, "Risk per market exceeded")
	ErrInvalidCap         = Revert(ErrValidation, "Invalid cap")
	ErrInvalidMultiplier  = Revert(ErrValidation, "Invalid multiplier")
	ErrInvalidOdds        = Revert(ErrValidation, "Invalid odds")
	ErrUnsupportedAsset   = Revert(ErrValidation, "Unsupported collateral")
	ErrSameTeamOnParlay   = Revert(ErrValidation, "SameTeamOnParlay")
	ErrWrongShape         = Revert(ErrValidation, "Wrong shape")
	ErrWrongNumberOfLegs  = Revert(ErrValidation, "Wrong number of legs")
	ErrLegNotTradable     = Revert(ErrState, "Leg not tradable")
	ErrAmountBelowMinimum = Revert(ErrValidation, "Amount below minimum")
	ErrAmountAboveMaximum = Revert(ErrValidation, "Amount exceeds MaxSupportedAmount")
	ErrMaxOddsExceeded    = Revert(ErrValidation, "MaxOdds exceeded")
	ErrRiskPerComb        = Revert(ErrCapacity, "RiskPerComb exceeded")
	ErrRiskPerPosition    = Revert(ErrCapacity, "Risk per individual market and position exceeded")
	ErrTicketExercised    = Revert(ErrState, "Parlay already exercised")
	ErrTicketExpired      = Revert(ErrState, "Parlay already expired")
	ErrTicketNotResolved  = Revert(ErrState, "Parlay not resolvable yet")
	ErrTicketNotExpired   = Revert(ErrTiming, "Ticket not expired")
	ErrTicketPaused       = Revert(ErrState, "Ticket paused")
	ErrVoucherUnderfunded = Revert(ErrCapacity, "Insufficient amount in voucher")
	ErrNotVoucherOwner    = Revert(ErrUnauthorized, "You are not the voucher owner!")
	ErrWrongDirections    = Revert(ErrValidation, "Wrong number of directions")
	ErrWrongBuyIn         = Revert(ErrValidation, "Wrong buy in amount")
	ErrWrongTimeFrame     = Revert(ErrValidation, "Wrong time frame")
	ErrProfitTooHigh      = Revert(ErrCapacity, "Profit too high")
	ErrRiskPerAsset       = Revert(ErrCapacity, "Risk per asset exceeded")
	ErrNotResolvableYet   = Revert(ErrTiming, "Not ready to be resolved")
	ErrPriceUnavailable   = Revert(ErrState, "Price not available")
	ErrPoolStarted        = Revert(ErrState, "Liquidity pool has already started")
	ErrPoolNotStarted     = Revert(ErrState, "Pool has not started")
	ErrBelowMinDeposit    = Revert(ErrValidation, "Amount less than minDepositAmount")
	ErrDepositCap         = Revert(ErrCapacity, "Deposit amount exceeds AMM LP cap")
	ErrOnlyWhitelisted    = Revert(ErrUnauthorized, "Only whitelisted addresses")
	ErrMaxUsers           = Revert(ErrCapacity, "Max amount of users reached")
	ErrWithdrawRequested  = Revert(ErrState, "Withdrawal already requested")
	ErrRoundClosing       = Revert(ErrState, "Not allowed during roundClosing")
	ErrNothingToWithdraw  = Revert(ErrState, "Nothing to withdraw")
	ErrInvalidFraction    = Revert(ErrValidation, "Invalid fraction")
	ErrCannotCloseRound   = Revert(ErrTiming, "Can't close current round")
	ErrRoundNotPrepared   = Revert(ErrState, "Round closing not prepared")
	ErrRoundPrepared      = Revert(ErrState, "Round closing already prepared")
	ErrUsersNotProcessed  = Revert(ErrState, "Not all users processed yet")
	ErrNotEnoughLiquidity = Revert(ErrCapacity, "Not enough liquidity")
	ErrAlreadyRegistered  = Revert(ErrState, "Already registered")
)
