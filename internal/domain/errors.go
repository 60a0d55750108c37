package domain

import "errors"

var (
	// ErrInvalidAmount a trade or distribution amount is out of range.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidRatio the no-token ratio is outside [0, 1].
	ErrInvalidRatio = errors.New("ratio must be between 0 and 1")
	// ErrInvariantViolation a reserve would become non-positive.
	ErrInvariantViolation = errors.New("insufficient liquidity: reserve must stay positive")
	// ErrNoSnapshot restore or diff was requested before any capture.
	ErrNoSnapshot = errors.New("no snapshot captured")
	// ErrInvalidWallet the wallet identifier is empty.
	ErrInvalidWallet = errors.New("wallet address is required")
)
