// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package channel

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a kind of error.
//
// ErrorCode also satisfies the error interface so callers can match a
// ChannelError by kind with errors.Is:
//
//	if errors.Is(err, channel.ErrInsufficientBalance) { ... }
type ErrorCode int

// These constants are used to identify a specific ChannelError.
const (
	// ErrInvalidAmount indicates a transfer amount that is zero,
	// negative, or would overflow a balance.
	ErrInvalidAmount ErrorCode = iota

	// ErrInvalidParty indicates a sender or recipient that is not a
	// member of the channel, or a transfer to oneself.
	ErrInvalidParty

	// ErrInsufficientBalance indicates the sender does not hold the
	// requested amount.
	ErrInsufficientBalance

	// ErrInvalidData indicates a transaction payload that exceeds
	// MaxDataSize.
	ErrInvalidData

	// ErrUpdateRejected indicates a state update vetoed by a verifier.
	ErrUpdateRejected

	// ErrNotInitialized indicates an operation on a channel that has not
	// been initialized.
	ErrNotInitialized

	// ErrAlreadyInitialized indicates a second initialization attempt.
	ErrAlreadyInitialized

	// ErrInvariantViolation indicates that committing an update would
	// break conservation, non-negativity or nonce monotonicity. The
	// update is never applied.
	ErrInvariantViolation

	// ErrInvalidTransition indicates an update that was not derived from
	// the current state, for example because another update was committed
	// in between.
	ErrInvalidTransition

	// ErrKeyDerivation indicates the channel keys could not be derived.
	ErrKeyDerivation

	// ErrInvalidConfig indicates an unusable channel configuration.
	ErrInvalidConfig

	// ErrDatabase indicates an error with the underlying store. When this
	// error code is set, the Err field of the ChannelError will be set to
	// the underlying error returned from the store.
	ErrDatabase
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrInvalidAmount:       "ErrInvalidAmount",
	ErrInvalidParty:        "ErrInvalidParty",
	ErrInsufficientBalance: "ErrInsufficientBalance",
	ErrInvalidData:         "ErrInvalidData",
	ErrUpdateRejected:      "ErrUpdateRejected",
	ErrNotInitialized:      "ErrNotInitialized",
	ErrAlreadyInitialized:  "ErrAlreadyInitialized",
	ErrInvariantViolation:  "ErrInvariantViolation",
	ErrInvalidTransition:   "ErrInvalidTransition",
	ErrKeyDerivation:       "ErrKeyDerivation",
	ErrInvalidConfig:       "ErrInvalidConfig",
	ErrDatabase:            "ErrDatabase",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error satisfies the error interface.
func (e ErrorCode) Error() string {
	return e.String()
}

// IsUserError reports whether the code describes a request the caller can
// correct and retry.
func (e ErrorCode) IsUserError() bool {
	switch e {
	case ErrInvalidAmount, ErrInvalidParty, ErrInsufficientBalance,
		ErrInvalidData, ErrUpdateRejected:

		return true
	}
	return false
}

// IsIntegrityError reports whether the code describes a broken ledger
// invariant or a stale update.
func (e ErrorCode) IsIntegrityError() bool {
	return e == ErrInvariantViolation || e == ErrInvalidTransition
}

// ChannelError provides a single type for errors that can happen during
// channel operation.
type ChannelError struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
	Err         error     // Underlying error
}

// Error satisfies the error interface and prints human-readable errors.
func (e ChannelError) Error() string {
	if e.Err != nil {
		return e.Description + ": " + e.Err.Error()
	}
	return e.Description
}

// Unwrap returns the underlying error, if any.
func (e ChannelError) Unwrap() error {
	return e.Err
}

// Is matches a target ErrorCode against the error's code.
func (e ChannelError) Is(target error) bool {
	code, ok := target.(ErrorCode)
	return ok && code == e.ErrorCode
}

// channelError creates a ChannelError given a set of arguments.
func channelError(c ErrorCode, desc string, err error) ChannelError {
	return ChannelError{ErrorCode: c, Description: desc, Err: err}
}

// NewError creates a ChannelError. It is exported for collaborators that
// report failures on behalf of the channel, such as stores and the manager.
func NewError(c ErrorCode, desc string, err error) error {
	return channelError(c, desc, err)
}

// Code extracts the ErrorCode from err. The second return value is false if
// err is not a ChannelError.
func Code(err error) (ErrorCode, bool) {
	var cErr ChannelError
	if errors.As(err, &cErr) {
		return cErr.ErrorCode, true
	}
	return 0, false
}
