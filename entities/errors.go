package entities

import (
	"errors"
	"fmt"
)

var ErrStoreEntityNotFound = errors.New("store resource not found")

// validation errors, returned before anything is written
var (
	ErrInvalidTimeRange = errors.New("invalid time range")
	ErrInvalidCliff     = errors.New("cliff percentage must be between 0 and 100")
	ErrInvalidInterval  = errors.New("payment interval must be positive")
	ErrInvalidName      = errors.New("schedule name must be between 1 and 32 bytes")
	ErrInvalidIdentity  = errors.New("invalid identity reference")
	ErrInvalidAmount    = errors.New("amount must be positive")
)

// ErrInvalidStartTime is a time range error, zero is reserved for "not revoked".
var ErrInvalidStartTime = fmt.Errorf("start time must be positive: %w", ErrInvalidTimeRange)

// precondition errors, the schedule state does not allow the transition
var (
	ErrCliffNotReached   = errors.New("cliff not reached")
	ErrNothingToClaim    = errors.New("nothing to claim")
	ErrVestingRevoked    = errors.New("vesting has been revoked")
	ErrNotRevocable      = errors.New("vesting is not revocable")
	ErrAlreadyRevoked    = errors.New("vesting has already been revoked")
	ErrScheduleExists    = errors.New("vesting schedule already exists")
	ErrScheduleNotFound  = errors.New("vesting schedule not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrCustodyClosed     = errors.New("custody is closed")
	ErrUnauthorized      = errors.New("unauthorized")
)

// ErrMathOverflow signals an arithmetic contract breach. It never occurs for schedules
// created through validation and aborts the enclosing operation.
var ErrMathOverflow = errors.New("math overflow")
