package engine

import (
	"errors"

	"github.com/mmynk/payouts/internal/calculator"
)

// Validation errors: rejected before any state change.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidAmount   = errors.New("amount must be positive and at most 2^63-1")
	ErrInvalidSource   = errors.New("invalid entitlement source")
	ErrMalformedProof  = errors.New("malformed merkle proof")
	ErrInvalidProof    = errors.New("merkle proof does not match root")
	ErrEmptySnapshot   = errors.New("snapshot has zero total supply")
)

// Lookup errors.
var (
	ErrDistributionNotFound = errors.New("distribution not found")
	ErrClaimNotFound        = errors.New("claim not found")
)

// State-conflict errors: the call arrived at the wrong point in the lifecycle.
var (
	ErrDistributionNotActive = errors.New("distribution is not accepting claims")
	ErrAlreadyActivated      = errors.New("distribution already activated")
	ErrAlreadyClaimed        = errors.New("beneficiary already claimed")
	ErrAlreadyRecovered      = errors.New("distribution already recovered")
	ErrCancelNotEmpty        = errors.New("cannot cancel a distribution with claims")
	ErrNotFinalized          = errors.New("distribution is not finalized")
	ErrInvalidTransition     = errors.New("invalid status transition")
)

// Arithmetic errors: a logic or data inconsistency upstream. Never clamped.
var (
	ErrFeesExceedGross           = calculator.ErrFeesExceedGross
	ErrAmountExceedsEntitlement  = errors.New("amount exceeds entitlement")
	ErrInsufficientRemainingPool = errors.New("insufficient remaining pool")
)

// External dependency failures.
var (
	ErrLedgerUnavailable = errors.New("asset ledger unavailable")
	ErrTransferFailed    = errors.New("payment transfer failed")
	ErrFeePolicy         = errors.New("fee policy misconfigured")
)

// Class groups errors by how callers should treat them.
type Class int

const (
	ClassUnknown Class = iota
	ClassValidation
	ClassNotFound
	ClassConflict
	ClassArithmetic
	ClassDependency
)

func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassNotFound:
		return "not_found"
	case ClassConflict:
		return "conflict"
	case ClassArithmetic:
		return "arithmetic"
	case ClassDependency:
		return "dependency"
	default:
		return "unknown"
	}
}

var classes = []struct {
	err   error
	class Class
}{
	{ErrInvalidArgument, ClassValidation},
	{ErrInvalidAmount, ClassValidation},
	{ErrInvalidSource, ClassValidation},
	{ErrMalformedProof, ClassValidation},
	{ErrInvalidProof, ClassValidation},
	{ErrEmptySnapshot, ClassValidation},
	{ErrDistributionNotFound, ClassNotFound},
	{ErrClaimNotFound, ClassNotFound},
	{ErrDistributionNotActive, ClassConflict},
	{ErrAlreadyActivated, ClassConflict},
	{ErrAlreadyClaimed, ClassConflict},
	{ErrAlreadyRecovered, ClassConflict},
	{ErrCancelNotEmpty, ClassConflict},
	{ErrNotFinalized, ClassConflict},
	{ErrInvalidTransition, ClassConflict},
	{ErrFeesExceedGross, ClassArithmetic},
	{ErrAmountExceedsEntitlement, ClassArithmetic},
	{ErrInsufficientRemainingPool, ClassArithmetic},
	{ErrLedgerUnavailable, ClassDependency},
	{ErrTransferFailed, ClassDependency},
	{ErrFeePolicy, ClassDependency},
}

// ClassOf reports the class of an engine error.
func ClassOf(err error) Class {
	for _, c := range classes {
		if errors.Is(err, c.err) {
			return c.class
		}
	}
	return ClassUnknown
}
