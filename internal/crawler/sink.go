package crawler

import (
	"log/slog"
	"sync"
	"time"

	"github.com/arachne-crawler/arachne/internal/model"
)

// Dataset is the append-only record store the sink writes to. The
// SQLite implementation lives in internal/storage; tests use an
// in-memory fake.
type Dataset interface {
	// Append persists one output record.
	Append(record model.OutputRecord) error
}

// ResultSink routes terminal visit outcomes into the dataset and
// enforces the result cap. Exactly one record is appended per terminal
// visit: a payload record on success, an error record once retries are
// exhausted.
//
// Accounting rules:
//   - pagesOutputted counts every appended record, success or failure,
//     on top of any base carried over from a resumed dataset
//   - the result cap compares against successful records only,
//     including successes persisted by a prior run against the same
//     dataset
//
// Design decision: The cap trips an abort signal instead of returning
// errors to writers, because: 1. In-flight visits finishing after the
// cap must still be recorded, not rejected. 2. Workers need one cheap
// check before dispatch, not error plumbing through every append.
// 3. The abort must fire exactly once no matter how many workers cross
// the threshold together.
type ResultSink struct {
	mu sync.Mutex

	dataset Dataset
	logger  *slog.Logger

	// resumedBase is the record count already in the dataset at crawl
	// start, included in pagesOutputted. resumedSucceeded is the
	// successful subset of it, counted toward the result cap.
	resumedBase      int64
	resumedSucceeded int64

	appended  int64
	succeeded int64
	failed    int64
	perDepth  map[int]int64

	maxResults int // 0 means unlimited

	abortOnce   sync.Once
	abortCh     chan struct{}
	abortReason string
}

// SinkOption configures a ResultSink.
type SinkOption func(*ResultSink)

// WithMaxResults sets the successful-result cap. Zero means unlimited.
func WithMaxResults(n int) SinkOption {
	return func(s *ResultSink) {
		s.maxResults = n
	}
}

// WithResumedCount seeds the output tally with records persisted by a
// prior run against the same dataset.
func WithResumedCount(n int64) SinkOption {
	return func(s *ResultSink) {
		s.resumedBase = n
	}
}

// WithResumedSuccesses seeds the result-cap comparison with successful
// records persisted by a prior run. Without it a resumed crawl would
// produce a full cap's worth of results on top of the ones it already
// has.
func WithResumedSuccesses(n int64) SinkOption {
	return func(s *ResultSink) {
		s.resumedSucceeded = n
	}
}

// WithSinkLogger sets the logger.
func WithSinkLogger(logger *slog.Logger) SinkOption {
	return func(s *ResultSink) {
		s.logger = logger
	}
}

// NewResultSink creates a sink writing to dataset.
func NewResultSink(dataset Dataset, opts ...SinkOption) *ResultSink {
	s := &ResultSink{
		dataset:  dataset,
		perDepth: make(map[int]int64),
		abortCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	// A dataset resumed at or past the cap aborts before any dispatch.
	if s.maxResults > 0 && s.resumedSucceeded >= int64(s.maxResults) {
		s.Abort("result cap reached")
	}
	return s
}

// RecordSuccess appends the payload record for a successfully processed
// visit and trips the abort signal when the result cap is reached.
func (s *ResultSink) RecordSuccess(v *model.Visit, payload any) error {
	record := model.OutputRecord{
		VisitID:            v.ID,
		URL:                v.URL,
		UniqueKey:          v.UniqueKey,
		PageFunctionResult: payload,
		IsError:            false,
		Depth:              v.UserData.Depth,
		CreatedAt:          time.Now().UTC(),
	}
	if err := s.dataset.Append(record); err != nil {
		return err
	}

	s.mu.Lock()
	s.appended++
	s.succeeded++
	s.perDepth[v.UserData.Depth]++
	capped := s.maxResults > 0 && s.resumedSucceeded+s.succeeded >= int64(s.maxResults)
	s.mu.Unlock()

	if capped {
		s.Abort("result cap reached")
	}
	return nil
}

// RecordFailure appends the terminal error record for a visit whose
// retries are exhausted. Failures count toward the output tally but
// never toward the result cap.
func (s *ResultSink) RecordFailure(v *model.Visit) error {
	record := model.OutputRecord{
		VisitID:       v.ID,
		URL:           v.URL,
		UniqueKey:     v.UniqueKey,
		ErrorMessages: v.ErrorMessages,
		IsError:       true,
		Depth:         v.UserData.Depth,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.dataset.Append(record); err != nil {
		return err
	}

	s.mu.Lock()
	s.appended++
	s.failed++
	s.mu.Unlock()

	s.logger.Warn("visit failed terminally",
		"url", v.URL,
		"retries", v.RetryCount,
		"error", v.LastError(),
	)
	return nil
}

// Abort trips the abort signal with the given reason. Only the first
// call's reason is kept.
func (s *ResultSink) Abort(reason string) {
	s.abortOnce.Do(func() {
		s.mu.Lock()
		s.abortReason = reason
		s.mu.Unlock()
		close(s.abortCh)
		s.logger.Info("crawl abort requested", "reason", reason)
	})
}

// Aborted reports whether the abort signal has fired.
func (s *ResultSink) Aborted() bool {
	select {
	case <-s.abortCh:
		return true
	default:
		return false
	}
}

// AbortChan returns the channel closed when the abort signal fires.
func (s *ResultSink) AbortChan() <-chan struct{} {
	return s.abortCh
}

// AbortReason returns the recorded abort reason, empty when the crawl
// was never aborted.
func (s *ResultSink) AbortReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abortReason
}

// PagesOutputted returns the total record count, including the resumed
// base.
func (s *ResultSink) PagesOutputted() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumedBase + s.appended
}

// Stats returns this run's success and failure tallies and a copy of
// the per-depth success breakdown.
func (s *ResultSink) Stats() (succeeded, failed int64, perDepth map[int]int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]int64, len(s.perDepth))
	for k, v := range s.perDepth {
		out[k] = v
	}
	return s.succeeded, s.failed, out
}
