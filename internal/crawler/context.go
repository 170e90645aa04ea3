package crawler

import (
	"context"
	"time"

	"github.com/arachne-crawler/arachne/internal/model"
)

// Environment is runtime metadata exposed to extraction routines.
type Environment struct {
	// RunID identifies this crawl run.
	RunID string

	// StartedAt is when the run began.
	StartedAt time.Time

	// QueueID, DatasetID and KeyValueStoreID name the run's stores.
	QueueID         string
	DatasetID       string
	KeyValueStoreID string
}

// EnqueueOptions customize a manual frontier insertion from an
// extraction routine.
type EnqueueOptions struct {
	// Values is attached to the new visit's user data.
	Values map[string]any

	// Depth overrides the default of current depth + 1. The frontier's
	// depth ceiling still applies.
	Depth *int
}

// KeyValueStore is the persistent store exposed to extraction routines
// for state that must outlive the crawl, unlike CrawlState which is
// discarded at crawl end. The SQLite implementation lives in
// internal/storage.
type KeyValueStore interface {
	// Set stores value under key, replacing any previous value.
	Set(key string, value any) error

	// Get loads the value stored under key into out, reporting whether
	// the key existed.
	Get(key string, out any) (bool, error)
}

// ExtractionFunc is the user-supplied extraction routine. It receives
// the assembled page context exactly once per visit attempt; its
// return value becomes the visit's payload. An escaping error fails
// the visit and is retried until the retry cap.
type ExtractionFunc func(ctx context.Context, pc *PageContext) (any, error)

// PageContext is the context constructed per visit and passed to the
// extraction routine and all hooks. Live objects (Page, Session,
// State) are forwarded by reference, never copied: a SkipLinks call
// made inside the routine is visible to the orchestrator after the
// routine returns, and page mutations made by hooks are seen by the
// routine.
type PageContext struct {
	// Request is the visit being processed.
	Request *model.Visit

	// Response is the navigation outcome, nil when the load produced
	// no response.
	Response *NavigationResult

	// Session is the identity the visit runs under.
	Session *Session

	// Page is the live browser-page handle.
	Page Page

	// State is the crawl-wide shared mutable store.
	State *CrawlState

	// KV is the persistent key-value store, nil when persistence is
	// disabled.
	KV KeyValueStore

	// CustomData is the static user-supplied configuration payload,
	// passed verbatim into every context.
	CustomData map[string]any

	// Env is runtime metadata for this run.
	Env Environment

	skipLinks bool
	enqueue   func(url string, opts *EnqueueOptions) error
}

// SkipLinks suppresses automatic link discovery for this visit only.
func (pc *PageContext) SkipLinks() {
	pc.skipLinks = true
}

// LinksSkipped reports whether the extraction routine asked to skip
// link discovery.
func (pc *PageContext) LinksSkipped() bool {
	return pc.skipLinks
}

// EnqueueRequest inserts a URL into the frontier directly, bypassing
// the pseudo-URL filter but not the depth ceiling or deduplication.
// The new visit's lineage points at the current visit.
func (pc *PageContext) EnqueueRequest(url string, opts *EnqueueOptions) error {
	if pc.enqueue == nil {
		return ErrFrontierClosed
	}
	return pc.enqueue(url, opts)
}
