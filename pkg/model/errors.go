package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSourceUnavailable is returned when an ordered source fails to produce a page.
	// It is fatal to a reconciliation run.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrApplyFailed is returned when the downstream rejects an update or delete.
	ErrApplyFailed = errors.New("apply failed")
	// ErrObjectMissingUpstream is returned when an update names an object the
	// authority no longer has.
	ErrObjectMissingUpstream = errors.New("object not found upstream")
	// ErrInvalidConfig is returned for unusable startup configuration
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrCanceled is returned when the operation is canceled by the caller
	ErrCanceled = errors.New("operation canceled")
)

// SourceUnavailableError describes a failed page fetch.
type SourceUnavailableError struct {
	Source     string
	StatusCode int
	Body       string
	Err        error
}

func (e *SourceUnavailableError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s query failed", e.Source)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " with HTTP code %d", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, ". Body: %s", e.Body)
	}
	return b.String()
}

func (e *SourceUnavailableError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrSourceUnavailable}
	}
	return []error{ErrSourceUnavailable, e.Err}
}

// ApplyError describes a failed downstream update or delete.
type ApplyError struct {
	Action     Action
	StatusCode int
	Err        error
}

func (e *ApplyError) Error() string {
	msg := fmt.Sprintf("failed to %s %s", e.Action.Type, e.Action.ID)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP code %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ApplyError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrApplyFailed}
	}
	return []error{ErrApplyFailed, e.Err}
}

// WrapError converts context.Canceled and context.DeadlineExceeded to ErrCanceled.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	if IsCanceled(err) {
		return ErrCanceled
	}
	return err
}

// IsCanceled returns true if the error is due to context cancellation or deadline exceeded.
// It checks both direct context errors and wrapped errors (e.g., from the MongoDB driver).
func IsCanceled(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, ErrCanceled) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "context canceled") || strings.Contains(errStr, "context deadline exceeded")
}
