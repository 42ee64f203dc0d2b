package invite

import (
	"errors"
	"fmt"
)

const errFmt = "%s: %s"

// Common errors for Invite service implementations and validations. Every
// failure means the attempted state transition did not occur.
var (
	ErrAlreadyUsed       = errors.New("invite already used")
	ErrContention        = errors.New("retry budget exhausted")
	ErrEmptySource       = errors.New("source is empty")
	ErrExpired           = errors.New("invite expired")
	ErrInvalidIssuance   = errors.New("invalid issuance")
	ErrInvalidRedemption = errors.New("invalid redemption")
	ErrNotFound          = errors.New("invite not found")
	ErrQuotaExhausted    = errors.New("quota exhausted")
	ErrUnavailable       = errors.New("store unavailable")
)

// Error wraps common Invite errors.
type Error struct {
	err error
	msg string
}

func (e Error) Error() string {
	return e.msg
}

// IsAlreadyUsed indicates if err is ErrAlreadyUsed.
func IsAlreadyUsed(err error) bool {
	return unwrapError(err) == ErrAlreadyUsed
}

// IsContention indicates if err is ErrContention.
func IsContention(err error) bool {
	return unwrapError(err) == ErrContention
}

// IsEmptySource indicates if err is ErrEmptySource.
func IsEmptySource(err error) bool {
	return unwrapError(err) == ErrEmptySource
}

// IsExpired indicates if err is ErrExpired.
func IsExpired(err error) bool {
	return unwrapError(err) == ErrExpired
}

// IsInvalidIssuance indicates if err is ErrInvalidIssuance.
func IsInvalidIssuance(err error) bool {
	return unwrapError(err) == ErrInvalidIssuance
}

// IsInvalidRedemption indicates if err is ErrInvalidRedemption.
func IsInvalidRedemption(err error) bool {
	return unwrapError(err) == ErrInvalidRedemption
}

// IsNotFound indicates if err is ErrNotFound.
func IsNotFound(err error) bool {
	return unwrapError(err) == ErrNotFound
}

// IsQuotaExhausted indicates if err is ErrQuotaExhausted.
func IsQuotaExhausted(err error) bool {
	return unwrapError(err) == ErrQuotaExhausted
}

// IsUnavailable indicates if err is ErrUnavailable.
func IsUnavailable(err error) bool {
	return unwrapError(err) == ErrUnavailable
}

func unwrapError(err error) error {
	switch e := err.(type) {
	case *Error:
		return e.err
	}

	return err
}

func wrapError(err error, format string, args ...interface{}) error {
	return &Error{
		err: err,
		msg: fmt.Sprintf(
			errFmt,
			err,
			fmt.Sprintf(format, args...),
		),
	}
}
