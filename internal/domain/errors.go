package domain

// Error is a domain failure carrying a stable code that callers can match
// on and that the HTTP layer reports verbatim.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(code, msg string) *Error { return &Error{Code: code, Message: msg} }

var (
	ErrNotFound      = newError("NotFound", "not found")
	ErrAlreadyExists = newError("AlreadyExists", "already exists")
	ErrRateLimited   = newError("RateLimited", "rate limited")
	ErrUnauthorized  = newError("Unauthorized", "unauthorized")
	ErrLockHeld      = newError("LockHeld", "lock already held")

	// Lifecycle.
	ErrInvalidState        = newError("InvalidState", "invalid state for operation")
	ErrMarketInactive      = newError("MarketInactive", "market is not active")
	ErrInvalidStake        = newError("InvalidStake", "stake must be positive")
	ErrInvalidHouseEdge    = newError("InvalidHouseEdge", "house edge must be at most 10000 bps")
	ErrInvalidMarketType   = newError("InvalidMarketType", "unknown market type")
	ErrAssetMismatch       = newError("AssetMismatch", "asset does not match market")
	ErrOverflow            = newError("Overflow", "arithmetic overflow")
	ErrAlreadySettled      = newError("AlreadySettled", "already settled")
	ErrUnsettledBetsRemain = newError("UnsettledBetsRemain", "round has unsettled bets")
	ErrBettingClosed       = newError("BettingClosed", "betting is closed for this round")
	ErrOutcomeNotRevealed  = newError("OutcomeNotRevealed", "outcome not revealed")
	ErrInvalidOutcomeType  = newError("InvalidOutcomeType", "outcome type does not match")

	// Scheduling.
	ErrInvalidLockTime       = newError("InvalidLockTime", "lock time must be in the future")
	ErrLockTimeTooLate       = newError("LockTimeTooLate", "lock time exceeds maximum predicting duration")
	ErrLockTimeNotReached    = newError("LockTimeNotReached", "scheduled lock time not reached")
	ErrMinLockDurationNotMet = newError("MinLockDurationNotMet", "minimum lock duration not met")

	// Verification.
	ErrNoCommitment       = newError("NoCommitment", "no commitment recorded")
	ErrInvalidCommitment  = newError("InvalidCommitment", "commitment does not match revealed outcome")
	ErrInvalidAttestation = newError("InvalidAttestation", "attestation signature not from trusted key")

	// Satellites.
	ErrInvalidStreakTarget      = newError("InvalidStreakTarget", "streak target must be between 2 and 10")
	ErrStreakNotActive          = newError("StreakNotActive", "streak is not active")
	ErrStreakNotCompleted       = newError("StreakNotCompleted", "streak is not completed")
	ErrRoundNotPredicting       = newError("RoundNotPredicting", "round is not accepting entries")
	ErrNoCommunitySeedsProvided = newError("NoCommunitySeedsProvided", "no community seeds provided")
	ErrBetNotWon                = newError("BetNotWon", "bet did not win")
	ErrBetNotSettled            = newError("BetNotSettled", "bet not settled")
	ErrEmptyJackpot             = newError("EmptyJackpot", "jackpot is empty")
	ErrViewerAlreadyExists      = newError("ViewerAlreadyExists", "viewer already exists")
	ErrMaxViewersReached        = newError("MaxViewersReached", "maximum viewers reached")
)
