package upload

import (
	"errors"
	"fmt"
	"time"
)

// ErrRejectedPlan marks validation failures that happen before any I/O.
// Errors wrapping it are never retried.
var ErrRejectedPlan = errors.New("upload plan rejected")

// ErrPartLimitExceeded is returned when the computed part count exceeds the
// account tier's limit. It wraps ErrRejectedPlan.
var ErrPartLimitExceeded = fmt.Errorf("%w: part count exceeds account tier limit", ErrRejectedPlan)

// ErrEmptyChunk and ErrOversizedChunk report protocol-invariant violations.
// They indicate a chunk source bug and abort the upload without retry.
var (
	ErrEmptyChunk     = errors.New("empty chunk")
	ErrOversizedChunk = errors.New("chunk exceeds part size")
)

// ErrRateLimited marks a throttling response from the platform. It is kept
// distinct from generic transport failures so the caller can message the user
// about account limits instead of a generic retry exhaustion.
var ErrRateLimited = errors.New("rate limited by platform")

// RateLimitError carries the platform's suggested wait time, when present.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited by platform, retry after %s", e.RetryAfter)
	}
	return "rate limited by platform"
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// FailureReason is the closed set of reasons surfaced to the messaging layer.
type FailureReason int

const (
	// ReasonUploadFailed covers transport failures that exhausted the retry budget.
	ReasonUploadFailed FailureReason = iota
	// ReasonSizeExceeded covers plans rejected for size or part-count limits.
	ReasonSizeExceeded
	// ReasonRateLimited covers tier-related throttling by the platform.
	ReasonRateLimited
)

// ReasonForError classifies an upload error into a FailureReason the caller
// can render as a specific user-facing message.
func ReasonForError(err error) FailureReason {
	switch {
	case errors.Is(err, ErrRateLimited):
		return ReasonRateLimited
	case errors.Is(err, ErrRejectedPlan):
		return ReasonSizeExceeded
	default:
		return ReasonUploadFailed
	}
}

// retryable reports whether a part upload error may consume another attempt.
// Invariant violations and rate limiting escalate immediately.
func retryable(err error) bool {
	switch {
	case errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrEmptyChunk),
		errors.Is(err, ErrOversizedChunk),
		errors.Is(err, ErrRejectedPlan):
		return false
	}
	return true
}
