package utils

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can pick a propagation policy without
// string matching. The dispatcher is the only component allowed to convert a
// failed kind into a degraded-but-successful response.
type Kind string

const (
	// KindMalformedInput marks unusable requests; never retried.
	KindMalformedInput Kind = "malformed_input"
	// KindEncodingUnavailable marks encoder outages after retry exhaustion.
	KindEncodingUnavailable Kind = "encoding_unavailable"
	// KindOracleUnavailable marks oracle outages after retry exhaustion.
	KindOracleUnavailable Kind = "oracle_unavailable"
	// KindQuotaExceeded marks requests rejected at the gateway queue bound.
	KindQuotaExceeded Kind = "quota_exceeded"
	// KindTimedOut marks requests that exhausted their tier budget.
	KindTimedOut Kind = "timed_out"
	// KindInternal covers everything else.
	KindInternal Kind = "internal"
)

// AppError wraps an operation, failure kind, human-facing message, and
// underlying error.
type AppError struct {
	Op   string
	Kind Kind
	Msg  string
	Err  error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// E constructs an AppError with an explicit kind.
func E(op string, kind Kind, msg string, err error) error {
	return &AppError{Op: op, Kind: kind, Msg: msg, Err: err}
}

// NewAppError constructs an internal-kind AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Kind: KindInternal, Msg: msg, Err: err}
}

// KindOf extracts the failure kind from an error chain, defaulting to
// KindInternal for unclassified errors and "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Kind != "" {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind reports whether any error in the chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
