package provider

import (
	"errors"
	"fmt"
)

var (
	ErrProviderNotSupported = errors.New("provider is not supported")
	ErrUnauthorized         = errors.New("provider rejected bearer token")
	ErrCredentialsRejected  = errors.New("provider rejected credentials")
	ErrNetwork              = errors.New("provider unreachable")
	ErrNoRedirectURL        = errors.New("provider returned no redirect url")
	ErrInvalidResponse      = errors.New("provider returned an invalid response")
)

// AuthError is returned when a bearer token could not be obtained.
type AuthError struct {
	Provider string
	Cause    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication with %s failed: %v", e.Provider, e.Cause)
}

func (e *AuthError) Unwrap() error {
	return e.Cause
}

// RequestError is a non-2xx provider response other than 401.
type RequestError struct {
	Provider   string
	Path       string
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s request failed: path=%s status=%d body=%s", e.Provider, e.Path, e.StatusCode, e.Body)
}

// Retryable reports whether a repeat of the same call could succeed.
func (e *RequestError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// IsRetryable reports whether err is a transient transport or provider-side failure.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrCredentialsRejected) {
		return false
	}
	if errors.Is(err, ErrNetwork) {
		return true
	}
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.Retryable()
}
