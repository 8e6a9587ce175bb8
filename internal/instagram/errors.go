package instagram

import (
	"errors"
	"fmt"
	"time"
)

// Authentication failure reasons surfaced by the auth manager.
const (
	ReasonInvalidCredentials   = "invalid_credentials"
	ReasonTwoFactorUnsupported = "two_factor_unsupported"
	ReasonRateLimited          = "rate_limited"
	ReasonNetwork              = "network"
)

var (
	// ErrUnauthenticated signals the external source rejected the session.
	ErrUnauthenticated = errors.New("instagram: session unauthenticated")

	// ErrTwoFactorRequired signals login needs a second-factor code before it
	// can complete.
	ErrTwoFactorRequired = errors.New("instagram: two-factor code required")

	// ErrProfileNotFound signals the requested username does not exist.
	ErrProfileNotFound = errors.New("instagram: profile not found")
)

// AuthError is the terminal authentication failure returned by the auth
// manager. RetryAfter is set only for rate_limited, when the source
// suggested a delay.
type AuthError struct {
	Reason     string
	RetryAfter time.Duration
	Err        error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("instagram auth: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("instagram auth: %s", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// RateLimitError is returned when the source throttles a request.
// RetryAfter is zero when the source gave no suggested delay.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("instagram: rate limited, retry after %s", e.RetryAfter)
	}
	return "instagram: rate limited"
}

// TwoFactorRequiredError carries the challenge identifier needed to finish
// login with VerifyTwoFactor. It matches ErrTwoFactorRequired in errors.Is.
type TwoFactorRequiredError struct {
	Identifier string
}

func (e *TwoFactorRequiredError) Error() string { return ErrTwoFactorRequired.Error() }

func (e *TwoFactorRequiredError) Is(target error) bool { return target == ErrTwoFactorRequired }
