package ratelimit

import "errors"

var (
	// ErrRateLimitExceeded is returned when a client exceeds its window.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrInvalidClientID is returned when a client identity is empty.
	ErrInvalidClientID = errors.New("invalid client identifier")
)

// RateLimitError carries the denial details alongside the sentinel.
type RateLimitError struct {
	ClientID string
	Result   *CheckResult
}

func (e *RateLimitError) Error() string {
	if e.Result != nil && e.Result.Reason != "" {
		return e.Result.Reason
	}
	return "rate limit exceeded"
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimitExceeded
}

// NewRateLimitError creates a RateLimitError from a denied check.
func NewRateLimitError(clientID string, result *CheckResult) *RateLimitError {
	return &RateLimitError{ClientID: clientID, Result: result}
}

// IsRateLimitError reports whether err is a rate limit denial.
func IsRateLimitError(err error) bool {
	return err != nil && errors.Is(err, ErrRateLimitExceeded)
}

// GetRateLimitResult extracts the CheckResult from a denial, or nil.
func GetRateLimitResult(err error) *CheckResult {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle.Result
	}
	return nil
}
