package config

import (
	"errors"
	"strings"
)

// Configuration validation errors.
//
// Design decision: Package-level sentinel errors rather than ad-hoc
// fmt.Errorf values, so callers can branch with errors.Is while the
// messages stay human-readable. A failed validation is fatal: the
// crawl never starts.
var (
	// ErrNoStartURLs is returned when the seed set is empty.
	ErrNoStartURLs = errors.New("no start URLs: provide at least one seed URL")

	// ErrInvalidConcurrency is returned when the worker pool size is
	// not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidRetries is returned when the retry cap is negative.
	// Zero is valid and means a single attempt per visit.
	ErrInvalidRetries = errors.New("invalid max request retries: must be non-negative")

	// ErrInvalidTimeout is returned when a navigation or extraction
	// timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidRequestDelay is returned when the politeness delay is
	// negative. Use zero for no delay.
	ErrInvalidRequestDelay = errors.New("invalid request delay: must be non-negative")

	// ErrInvalidCap is returned when a result or page cap is negative.
	// Use zero for unlimited.
	ErrInvalidCap = errors.New("invalid crawl cap: must be non-negative")

	// ErrUnknownSessionPolicy is returned for a session rotation policy
	// name other than "standard" or "until_failure".
	ErrUnknownSessionPolicy = errors.New(`unknown session policy: use "standard" or "until_failure"`)

	// ErrUnknownWaitCondition is returned for a navigation wait
	// condition other than "load", "domcontentloaded" or "networkidle".
	ErrUnknownWaitCondition = errors.New("unknown wait condition")
)

// debuggerMarker is the breakpoint statement looked for in the
// extraction routine source.
const debuggerMarker = "debugger;"

// containsDebuggerMarker reports whether source contains a debugger
// breakpoint statement outside of obvious line comments.
func containsDebuggerMarker(source string) bool {
	for line := range strings.Lines(source) {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "//") {
			continue
		}
		if strings.Contains(trimmed, debuggerMarker) {
			return true
		}
	}
	return false
}
