package crawler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arachne-crawler/arachne/internal/model"
)

// Frontier is the deduplicated FIFO work queue of pending visits.
// It exclusively owns the visit lifecycle: a visit is created on
// enqueue, tracked while in flight, and discarded on terminal
// completion.
//
// Invariants:
//   - no two pending or in-flight visits share a unique key, and a
//     handled key is never admitted again
//   - a visit whose depth exceeds the ceiling is silently dropped at
//     enqueue time
//   - a visit is never requeued once its retry count exceeds the
//     retry cap
type Frontier struct {
	mu   sync.Mutex
	cond *sync.Cond

	pending  []*model.Visit
	seen     map[string]bool
	inFlight int

	maxRetries int
	maxDepth   int // negative means unlimited
	closed     bool
}

// FrontierOption configures a Frontier.
type FrontierOption func(*Frontier)

// WithMaxRetries sets how many times a failed visit may be re-admitted.
func WithMaxRetries(n int) FrontierOption {
	return func(f *Frontier) {
		f.maxRetries = n
	}
}

// WithMaxDepth sets the depth ceiling. Visits deeper than this are
// silently dropped at enqueue time. Negative means unlimited.
func WithMaxDepth(depth int) FrontierOption {
	return func(f *Frontier) {
		f.maxDepth = depth
	}
}

// WithHandledKeys preseeds the dedup set, typically from a persisted
// queue of a prior run, so already-handled pages are not revisited.
func WithHandledKeys(keys []string) FrontierOption {
	return func(f *Frontier) {
		for _, k := range keys {
			f.seen[k] = true
		}
	}
}

// NewFrontier creates an empty frontier.
func NewFrontier(opts ...FrontierOption) *Frontier {
	f := &Frontier{
		seen:       make(map[string]bool),
		maxRetries: 0,
		maxDepth:   -1,
	}
	f.cond = sync.NewCond(&f.mu)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Enqueue admits a visit. A duplicate unique key returns
// ErrDuplicateKey and leaves the frontier unchanged. A visit beyond
// the depth ceiling is dropped silently with a nil error: exceeding
// the ceiling is expected during discovery, not a fault.
//
// The frontier assigns the visit its stable ID on admission.
func (f *Frontier) Enqueue(v *model.Visit) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrFrontierClosed
	}
	if f.maxDepth >= 0 && v.UserData.Depth > f.maxDepth {
		return nil
	}
	if f.seen[v.UniqueKey] {
		return ErrDuplicateKey
	}

	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	f.seen[v.UniqueKey] = true
	f.pending = append(f.pending, v)
	f.cond.Signal()
	return nil
}

// Dequeue returns the next visit in arrival order, blocking while the
// queue is empty but work is still in flight (in-flight visits may
// discover new links). It returns ErrFrontierExhausted once nothing is
// pending and nothing is in flight, which is the normal termination
// signal, and the context error if ctx is cancelled first.
func (f *Frontier) Dequeue(ctx context.Context) (*model.Visit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Periodic wakeup so a cancelled context is noticed even when no
	// Enqueue or Done call ever signals the condition again.
	const wakeInterval = time.Second

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if f.closed {
			return nil, ErrFrontierClosed
		}

		if len(f.pending) > 0 {
			v := f.pending[0]
			f.pending = f.pending[1:]
			f.inFlight++
			return v, nil
		}

		if f.inFlight == 0 {
			return nil, ErrFrontierExhausted
		}

		timer := time.AfterFunc(wakeInterval, f.cond.Broadcast)
		f.cond.Wait()
		timer.Stop()
	}
}

// Requeue re-admits a failed in-flight visit with its retry count
// incremented and the failure recorded. Once the retry count exceeds
// the cap it returns ErrRetriesExhausted and drops the visit from
// in-flight tracking permanently; the caller is responsible for
// emitting the terminal error record.
func (f *Frontier) Requeue(v *model.Visit, failure string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if failure != "" {
		v.ErrorMessages = append(v.ErrorMessages, failure)
	}
	v.RetryCount++
	f.inFlight--

	if v.RetryCount > f.maxRetries {
		f.cond.Broadcast()
		return ErrRetriesExhausted
	}

	// Back of the queue: retries stay FIFO-fair with pending work.
	f.pending = append(f.pending, v)
	f.cond.Signal()
	return nil
}

// Done marks an in-flight visit terminally complete. Its unique key
// stays in the dedup set so the page is never revisited.
func (f *Frontier) Done(v *model.Visit) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.inFlight--
	f.cond.Broadcast()
}

// Close wakes all blocked Dequeue calls and rejects further enqueues.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	f.cond.Broadcast()
}

// Len returns the number of pending visits.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// InFlight returns the number of dequeued but unfinished visits.
func (f *Frontier) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}
