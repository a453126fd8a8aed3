package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Accrual errors
	ErrSampleUnavailable = errors.New("activity sample unavailable")

	// Ledger errors
	ErrInsufficientBalance = errors.New("insufficient step balance")
	ErrNegativeSpend       = errors.New("spend amount must be non-negative")

	// Configuration errors
	ErrInvalidTariff    = errors.New("invalid tariff")
	ErrInvalidDayWindow = errors.New("invalid day window")

	// Token errors — always denial, never silently retried
	ErrTokenExpired  = errors.New("handoff token expired")
	ErrTokenConsumed = errors.New("handoff token already consumed")
	ErrTokenUnknown  = errors.New("handoff token unknown")

	// Grant errors
	ErrGrantReplayed = errors.New("grant already applied")
	ErrInvalidGrant  = errors.New("invalid grant")
)
