package crawler

import (
	"errors"
	"fmt"
)

// Frontier and pool sentinel errors.
var (
	// ErrDuplicateKey is returned by Frontier.Enqueue when a visit with
	// the same unique key is already pending, in flight, or handled.
	// Callers normally treat it as a no-op, not a failure.
	ErrDuplicateKey = errors.New("duplicate unique key")

	// ErrFrontierExhausted is returned by Frontier.Dequeue when no
	// visits are pending and none are in flight. It signals normal
	// crawl termination, not a failure.
	ErrFrontierExhausted = errors.New("frontier exhausted")

	// ErrRetriesExhausted is returned by Frontier.Requeue when the
	// visit's retry count exceeds the configured maximum. The caller
	// routes the visit to the failure handler.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrFrontierClosed is returned when enqueueing into a closed
	// frontier.
	ErrFrontierClosed = errors.New("frontier closed")

	// ErrPoolClosed is returned by SessionPool.Acquire after Close.
	ErrPoolClosed = errors.New("session pool closed")

	// ErrCrawlAborted is returned by the page handler when the abort
	// signal fired before processing started.
	ErrCrawlAborted = errors.New("crawl aborted")
)

// NavigationError is a retryable failure during the page load itself:
// timeout, network failure, or a pipeline hook rejecting the visit.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation failed for %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// ExtractionError is a retryable failure escaping the user extraction
// routine.
type ExtractionError struct {
	URL string
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s: %v", e.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// retryable reports whether a per-visit error should send the visit
// back to the frontier. Link discovery errors never reach this path;
// they are logged and the visit still succeeds.
func retryable(err error) bool {
	var navErr *NavigationError
	var extErr *ExtractionError
	return errors.As(err, &navErr) || errors.As(err, &extErr)
}
