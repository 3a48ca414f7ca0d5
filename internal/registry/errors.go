package registry

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthorized is the sentinel behind every AuthError.
var ErrUnauthorized = errors.New("unauthorized")

// ErrScheduleKeyKind is returned when a schedule key of the wrong kind is
// passed to a client configured for the other kind.
var ErrScheduleKeyKind = errors.New("schedule key kind does not match deployment")

// AuthError means the registry rejected (or the client never had) a token.
// It is fatal to the login: the token store has already been cleared.
type AuthError struct {
	Op string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: unauthorized", e.Op)
}

func (e *AuthError) Unwrap() error {
	return ErrUnauthorized
}

// IsUnauthorized reports whether err is (or wraps) an AuthError.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// RequestError is any other failed call. It is reported to the user action
// that triggered it and never retried. StatusCode is 0 when the request
// did not reach the registry.
type RequestError struct {
	Op         string
	StatusCode int
	Detail     string
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Op, e.Detail)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Detail)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Detail extracts the user-facing message from a registry error.
func Detail(err error) string {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Detail
	}
	if IsUnauthorized(err) {
		return http.StatusText(http.StatusUnauthorized)
	}
	return err.Error()
}
