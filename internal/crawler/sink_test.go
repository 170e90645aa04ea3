package crawler

import (
	"sync"
	"testing"

	"github.com/arachne-crawler/arachne/internal/model"
)

// memoryDataset is an in-memory Dataset for tests.
type memoryDataset struct {
	mu      sync.Mutex
	records []model.OutputRecord
}

func (d *memoryDataset) Append(record model.OutputRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records = append(d.records, record)
	return nil
}

func (d *memoryDataset) all() []model.OutputRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]model.OutputRecord(nil), d.records...)
}

// TestResultSinkAccounting tests record routing and the tallies.
func TestResultSinkAccounting(t *testing.T) {
	t.Parallel()

	t.Run("success appends a payload record", func(t *testing.T) {
		t.Parallel()

		ds := &memoryDataset{}
		sink := NewResultSink(ds)

		v := model.NewVisit("http://example.com/", 0)
		v.ID = "visit-1"
		if err := sink.RecordSuccess(v, map[string]any{"title": "home"}); err != nil {
			t.Fatalf("record success failed: %v", err)
		}

		records := ds.all()
		if len(records) != 1 {
			t.Fatalf("expected 1 record, got %d", len(records))
		}
		r := records[0]
		if r.IsError {
			t.Error("expected a success record")
		}
		if r.VisitID != "visit-1" || r.URL != "http://example.com/" {
			t.Errorf("unexpected record identity: %+v", r)
		}
		if r.PageFunctionResult == nil {
			t.Error("expected the extraction payload on the record")
		}
	})

	t.Run("failure appends an error record with the message trail", func(t *testing.T) {
		t.Parallel()

		ds := &memoryDataset{}
		sink := NewResultSink(ds)

		v := model.NewVisit("http://example.com/broken", 1)
		v.ErrorMessages = []string{"timeout", "timeout", "connection refused"}
		v.RetryCount = 2
		if err := sink.RecordFailure(v); err != nil {
			t.Fatalf("record failure failed: %v", err)
		}

		records := ds.all()
		if len(records) != 1 {
			t.Fatalf("expected 1 record, got %d", len(records))
		}
		r := records[0]
		if !r.IsError {
			t.Error("expected an error record")
		}
		if len(r.ErrorMessages) != 3 || r.ErrorMessages[2] != "connection refused" {
			t.Errorf("expected the full message trail, got %v", r.ErrorMessages)
		}
		if r.PageFunctionResult != nil {
			t.Error("expected no payload on an error record")
		}
	})

	t.Run("failures count toward output but not the result cap", func(t *testing.T) {
		t.Parallel()

		ds := &memoryDataset{}
		sink := NewResultSink(ds, WithMaxResults(2))

		for i := 0; i < 5; i++ {
			v := model.NewVisit("http://example.com/fail", i)
			v.UniqueKey = v.UniqueKey + string(rune('a'+i))
			if err := sink.RecordFailure(v); err != nil {
				t.Fatalf("record failure %d failed: %v", i, err)
			}
		}
		if sink.Aborted() {
			t.Error("failures alone must not trip the result cap")
		}
		if got := sink.PagesOutputted(); got != 5 {
			t.Errorf("expected 5 pages outputted, got %d", got)
		}
	})

	t.Run("resumed base is included in the output tally", func(t *testing.T) {
		t.Parallel()

		sink := NewResultSink(&memoryDataset{}, WithResumedCount(40))
		if err := sink.RecordSuccess(model.NewVisit("http://example.com/", 0), nil); err != nil {
			t.Fatalf("record success failed: %v", err)
		}
		if got := sink.PagesOutputted(); got != 41 {
			t.Errorf("expected 41 pages outputted, got %d", got)
		}
	})

	t.Run("per-depth tallies track successes", func(t *testing.T) {
		t.Parallel()

		sink := NewResultSink(&memoryDataset{})
		depths := []int{0, 1, 1, 2}
		for i, d := range depths {
			v := model.NewVisit("http://example.com/", d)
			v.UniqueKey = v.UniqueKey + string(rune('a'+i))
			if err := sink.RecordSuccess(v, nil); err != nil {
				t.Fatalf("record success failed: %v", err)
			}
		}
		_, _, perDepth := sink.Stats()
		if perDepth[0] != 1 || perDepth[1] != 2 || perDepth[2] != 1 {
			t.Errorf("unexpected per-depth breakdown: %v", perDepth)
		}
	})
}

// TestResultSinkAbort tests the result cap and the abort signal.
func TestResultSinkAbort(t *testing.T) {
	t.Parallel()

	t.Run("trips at the result cap under concurrency", func(t *testing.T) {
		t.Parallel()

		ds := &memoryDataset{}
		sink := NewResultSink(ds, WithMaxResults(5))

		// Ten workers crossing the threshold together: the signal must
		// fire exactly once and every in-flight record must still land.
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				v := model.NewVisit("http://example.com/", 0)
				v.UniqueKey = v.UniqueKey + string(rune('a'+i))
				if err := sink.RecordSuccess(v, nil); err != nil {
					t.Errorf("record success %d failed: %v", i, err)
				}
			}(i)
		}
		wg.Wait()

		if !sink.Aborted() {
			t.Error("expected the abort signal to fire")
		}
		if sink.AbortReason() != "result cap reached" {
			t.Errorf("unexpected abort reason %q", sink.AbortReason())
		}
		if len(ds.all()) != 10 {
			t.Errorf("expected all 10 in-flight records persisted, got %d", len(ds.all()))
		}

		select {
		case <-sink.AbortChan():
		default:
			t.Error("expected the abort channel to be closed")
		}
	})

	t.Run("only the first abort reason is kept", func(t *testing.T) {
		t.Parallel()

		sink := NewResultSink(&memoryDataset{})
		sink.Abort("page cap reached")
		sink.Abort("result cap reached")
		if got := sink.AbortReason(); got != "page cap reached" {
			t.Errorf("expected the first reason kept, got %q", got)
		}
	})

	t.Run("resumed successes count toward the cap", func(t *testing.T) {
		t.Parallel()

		ds := &memoryDataset{}
		sink := NewResultSink(ds, WithMaxResults(5), WithResumedSuccesses(3))

		if sink.Aborted() {
			t.Fatal("expected no abort below the cap")
		}
		for i := 0; i < 2; i++ {
			v := model.NewVisit("http://example.com/", 0)
			v.UniqueKey = v.UniqueKey + string(rune('a'+i))
			if err := sink.RecordSuccess(v, nil); err != nil {
				t.Fatalf("record success %d failed: %v", i, err)
			}
		}
		if !sink.Aborted() {
			t.Error("expected 3 resumed plus 2 new successes to reach a cap of 5")
		}
		if got := len(ds.all()); got != 2 {
			t.Errorf("expected only this run's 2 records appended, got %d", got)
		}
	})

	t.Run("a dataset resumed at the cap aborts immediately", func(t *testing.T) {
		t.Parallel()

		sink := NewResultSink(&memoryDataset{}, WithMaxResults(3), WithResumedSuccesses(3))
		if !sink.Aborted() {
			t.Error("expected the abort signal before any record")
		}
		if got := sink.AbortReason(); got != "result cap reached" {
			t.Errorf("unexpected abort reason %q", got)
		}
	})

	t.Run("resumed failures never count toward the cap", func(t *testing.T) {
		t.Parallel()

		// The resumed output base may be mostly error records; only the
		// successful subset is seeded into the cap comparison.
		sink := NewResultSink(&memoryDataset{},
			WithMaxResults(3), WithResumedCount(10), WithResumedSuccesses(1))
		if sink.Aborted() {
			t.Error("expected no abort: only 1 of 10 resumed records succeeded")
		}
	})

	t.Run("zero cap means unlimited", func(t *testing.T) {
		t.Parallel()

		sink := NewResultSink(&memoryDataset{})
		for i := 0; i < 100; i++ {
			v := model.NewVisit("http://example.com/", 0)
			v.UniqueKey = v.UniqueKey + string(rune(i))
			if err := sink.RecordSuccess(v, nil); err != nil {
				t.Fatalf("record success failed: %v", err)
			}
		}
		if sink.Aborted() {
			t.Error("expected no abort with an unlimited cap")
		}
	})
}
