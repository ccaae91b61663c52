// Package errs defines the failure taxonomy shared by every ledger
// component. All operations surface exactly one of four kinds so that
// callers (and the HTTP layer) can map failures without string matching.
package errs

import (
	"errors"
	"fmt"
)

// ValidationError covers malformed input: zero or negative amounts,
// unknown or empty asset identifiers, out-of-range factors, and
// attempts to re-list an existing market.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return "validation: " + e.Msg }

// StateError covers operations that are well-formed but impossible in the
// current ledger state: inactive market, insufficient deposit, borrow,
// liquidity, or collateral, a paused system, and rejected reentrant
// invocations.
type StateError struct {
	Msg string
}

func (e *StateError) Error() string { return "state: " + e.Msg }

// AuthorizationError covers caller identity failures: not the owner,
// signature or signer mismatch, nonce mismatch, and expired deadlines.
type AuthorizationError struct {
	Msg string
}

func (e *AuthorizationError) Error() string { return "authorization: " + e.Msg }

// SafetyViolation covers actions the risk engine refuses: a withdrawal or
// borrow that would breach the collateralization threshold, or a
// liquidation of a position that is not eligible.
type SafetyViolation struct {
	Msg string
}

func (e *SafetyViolation) Error() string { return "safety: " + e.Msg }

func Validationf(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func Statef(format string, args ...interface{}) error {
	return &StateError{Msg: fmt.Sprintf(format, args...)}
}

func Authorizationf(format string, args ...interface{}) error {
	return &AuthorizationError{Msg: fmt.Sprintf(format, args...)}
}

func Safetyf(format string, args ...interface{}) error {
	return &SafetyViolation{Msg: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

func IsState(err error) bool {
	var e *StateError
	return errors.As(err, &e)
}

func IsAuthorization(err error) bool {
	var e *AuthorizationError
	return errors.As(err, &e)
}

func IsSafety(err error) bool {
	var e *SafetyViolation
	return errors.As(err, &e)
}

// Kind returns a short stable label for the error's category, used as a
// metric dimension.
func Kind(err error) string {
	switch {
	case IsValidation(err):
		return "validation"
	case IsState(err):
		return "state"
	case IsAuthorization(err):
		return "authorization"
	case IsSafety(err):
		return "safety"
	default:
		return "internal"
	}
}
