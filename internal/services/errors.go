package services

import "errors"

// Typed failures surfaced to callers. Precondition failures reflect real
// business state and are never retried; store-level errors pass through
// wrapped and are safe to retry because every mutation is atomic.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnknownProduct      = errors.New("unknown product")
	ErrDailyCapReached     = errors.New("daily ad reward cap reached")
	ErrInvalidTransition   = errors.New("invalid withdrawal transition")
	ErrAccountNotFound     = errors.New("account not found")
	ErrBankAccountInUse    = errors.New("bank account referenced by a pending withdrawal")
	ErrBelowMinimum        = errors.New("amount below withdrawal minimum")
	ErrNotFound            = errors.New("not found")
)
