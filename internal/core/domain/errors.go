package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidID indicates a document id could not be derived from a path.
	ErrInvalidID = errors.New("invalid document id")

	// ErrInvalidKey indicates a malformed or unsafe store key.
	ErrInvalidKey = errors.New("invalid store key")

	// ErrInvalidSignature indicates a webhook payload failed verification.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrVectorIndexUnavailable indicates the vector index is not configured.
	ErrVectorIndexUnavailable = errors.New("vector index unavailable")

	// ErrRerankUnavailable indicates the rerank service is not configured.
	ErrRerankUnavailable = errors.New("rerank service unavailable")

	// ErrRateLimited indicates an upstream API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrQueueClosed indicates the change queue has been closed.
	ErrQueueClosed = errors.New("queue closed")
)

// TerminalFetchError is a fetch failure that will not succeed on retry
// (the file is gone or access is denied).
type TerminalFetchError struct {
	Path       string
	StatusCode int
	Err        error
}

func (e *TerminalFetchError) Error() string {
	return fmt.Sprintf("fetch %s: terminal (status %d): %v", e.Path, e.StatusCode, e.Err)
}

func (e *TerminalFetchError) Unwrap() error { return e.Err }

// RetryableFetchError is a fetch failure worth retrying (server errors,
// network failures, timeouts, rate limits).
type RetryableFetchError struct {
	Path       string
	StatusCode int
	Err        error
}

func (e *RetryableFetchError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("fetch %s: retryable: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("fetch %s: retryable (status %d): %v", e.Path, e.StatusCode, e.Err)
}

func (e *RetryableFetchError) Unwrap() error { return e.Err }

// ParseError is a malformed frontmatter header.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("parse frontmatter: %v", e.Err)
	}
	return fmt.Sprintf("parse frontmatter %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError is a schema violation in a notification, key or field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is makes every ValidationError match ErrInvalidInput.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// TransientIndexError is a document store, embedding or vector index
// failure that should be retried by redelivery.
type TransientIndexError struct {
	Op  string
	Err error
}

func (e *TransientIndexError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientIndexError) Unwrap() error { return e.Err }

// IsTerminal reports whether err will not succeed on retry.
func IsTerminal(err error) bool {
	var terminal *TerminalFetchError
	var parse *ParseError
	var validation *ValidationError
	return errors.As(err, &terminal) || errors.As(err, &parse) || errors.As(err, &validation) ||
		errors.Is(err, ErrInvalidID) || errors.Is(err, ErrInvalidKey)
}

// IsRetryable reports whether err is a classified retryable failure.
func IsRetryable(err error) bool {
	var fetch *RetryableFetchError
	var index *TransientIndexError
	return errors.As(err, &fetch) || errors.As(err, &index)
}
