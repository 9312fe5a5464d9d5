package agent

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind is the stable error taxonomy shared with clients. Every failure that
// becomes user-visible carries exactly one kind.
type Kind string

// Error kinds.
const (
	KindInvalidInput         Kind = "invalid_input"
	KindTransientUpstream    Kind = "transient_upstream"
	KindNonRetryableUpstream Kind = "non_retryable_upstream"
	KindConflict             Kind = "conflict"
	KindCancelled            Kind = "cancelled"
	KindInternal             Kind = "internal"
)

// Error is a classified failure. UserMessage must be safe to show to end
// users (no internal identifiers); the wrapped error keeps the detail for
// logs.
type Error struct {
	Kind        Kind
	UserMessage string
	RetryAfter  time.Duration // advisory, from upstream rate limiting
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.UserMessage, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.UserMessage)
}

func (e *Error) Unwrap() error { return e.Err }

// E creates a classified error without a cause.
func E(kind Kind, userMessage string) *Error {
	return &Error{Kind: kind, UserMessage: userMessage}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, userMessage string, err error) *Error {
	return &Error{Kind: kind, UserMessage: userMessage, Err: err}
}

// KindOf extracts the kind from any error. Context errors map to cancelled;
// everything unclassified is internal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindInternal
}

// Retryable reports whether a kind is worth retrying. Only transient
// upstream failures are; everything else either cannot succeed on retry or
// is handled by a dedicated protocol (conflict re-apply, cancellation).
func Retryable(kind Kind) bool {
	return kind == KindTransientUpstream
}

// UserMessageOf returns the user-safe message for an error, falling back to
// a generic one per kind.
func UserMessageOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.UserMessage != "" {
		return ae.UserMessage
	}
	switch KindOf(err) {
	case KindInvalidInput:
		return "The request could not be processed as submitted."
	case KindTransientUpstream:
		return "A planning service is temporarily unavailable."
	case KindNonRetryableUpstream:
		return "A planning service declined this request."
	case KindConflict:
		return "The itinerary was modified concurrently."
	case KindCancelled:
		return "Generation was cancelled."
	default:
		return "An unexpected error occurred while generating the itinerary."
	}
}

// RetryAfterOf returns the advisory retry delay carried by an error, or zero.
func RetryAfterOf(err error) time.Duration {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.RetryAfter
	}
	return 0
}
