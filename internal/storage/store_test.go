package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arachne-crawler/arachne/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// TestOpen tests store creation semantics.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates the database when allowed", func(t *testing.T) {
		t.Parallel()

		s := openTestStore(t)
		if s.Path() == "" {
			t.Error("expected a database path")
		}
	})

	t.Run("refuses to create when not allowed", func(t *testing.T) {
		t.Parallel()

		_, err := Open(t.TempDir(), Options{CreateIfNotExists: false})
		if !errors.Is(err, ErrStoreNotFound) {
			t.Errorf("expected ErrStoreNotFound, got %v", err)
		}
	})

	t.Run("reopens an existing database", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		s, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("open store: %v", err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}

		s2, err := Open(dir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("reopen store: %v", err)
		}
		_ = s2.Close()
	})
}

// TestDataset tests record persistence and the resume count.
func TestDataset(t *testing.T) {
	t.Parallel()

	t.Run("round-trips a success record", func(t *testing.T) {
		t.Parallel()

		ds := openTestStore(t).Dataset("default")
		record := model.OutputRecord{
			VisitID:            "visit-1",
			URL:                "http://example.com/",
			UniqueKey:          "http://example.com/",
			PageFunctionResult: map[string]any{"title": "Home"},
			Depth:              2,
			CreatedAt:          time.Now().UTC(),
		}
		if err := ds.Append(record); err != nil {
			t.Fatalf("append failed: %v", err)
		}

		records, err := ds.Records(context.Background())
		if err != nil {
			t.Fatalf("records failed: %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("expected 1 record, got %d", len(records))
		}
		got := records[0]
		if got.VisitID != "visit-1" || got.Depth != 2 || got.IsError {
			t.Errorf("unexpected record: %+v", got)
		}
		payload, ok := got.PageFunctionResult.(map[string]any)
		if !ok || payload["title"] != "Home" {
			t.Errorf("unexpected payload: %+v", got.PageFunctionResult)
		}
		if got.CreatedAt.IsZero() {
			t.Error("expected a parsed timestamp")
		}
	})

	t.Run("round-trips an error record", func(t *testing.T) {
		t.Parallel()

		ds := openTestStore(t).Dataset("default")
		record := model.OutputRecord{
			VisitID:       "visit-2",
			URL:           "http://example.com/broken",
			UniqueKey:     "http://example.com/broken",
			ErrorMessages: []string{"timeout", "connection refused"},
			IsError:       true,
			CreatedAt:     time.Now().UTC(),
		}
		if err := ds.Append(record); err != nil {
			t.Fatalf("append failed: %v", err)
		}

		records, err := ds.Records(context.Background())
		if err != nil {
			t.Fatalf("records failed: %v", err)
		}
		got := records[0]
		if !got.IsError {
			t.Error("expected an error record")
		}
		if len(got.ErrorMessages) != 2 || got.ErrorMessages[1] != "connection refused" {
			t.Errorf("unexpected messages: %v", got.ErrorMessages)
		}
		if got.PageFunctionResult != nil {
			t.Errorf("expected no payload, got %+v", got.PageFunctionResult)
		}
	})

	t.Run("counts records per dataset", func(t *testing.T) {
		t.Parallel()

		s := openTestStore(t)
		a := s.Dataset("a")
		b := s.Dataset("b")
		for i := 0; i < 3; i++ {
			if err := a.Append(model.OutputRecord{VisitID: "v", URL: "u", UniqueKey: "k", CreatedAt: time.Now()}); err != nil {
				t.Fatalf("append failed: %v", err)
			}
		}
		if err := b.Append(model.OutputRecord{VisitID: "v", URL: "u", UniqueKey: "k", CreatedAt: time.Now()}); err != nil {
			t.Fatalf("append failed: %v", err)
		}

		n, err := a.Count(context.Background())
		if err != nil {
			t.Fatalf("count failed: %v", err)
		}
		if n != 3 {
			t.Errorf("dataset a count = %d, want 3", n)
		}
	})

	t.Run("counts successes separately from the total", func(t *testing.T) {
		t.Parallel()

		ds := openTestStore(t).Dataset("default")
		for i := 0; i < 2; i++ {
			if err := ds.Append(model.OutputRecord{VisitID: "v", URL: "u", UniqueKey: "k", CreatedAt: time.Now()}); err != nil {
				t.Fatalf("append failed: %v", err)
			}
		}
		if err := ds.Append(model.OutputRecord{VisitID: "v", URL: "u", UniqueKey: "k", IsError: true, CreatedAt: time.Now()}); err != nil {
			t.Fatalf("append failed: %v", err)
		}

		total, err := ds.Count(context.Background())
		if err != nil {
			t.Fatalf("count failed: %v", err)
		}
		succeeded, err := ds.SucceededCount(context.Background())
		if err != nil {
			t.Fatalf("succeeded count failed: %v", err)
		}
		if total != 3 || succeeded != 2 {
			t.Errorf("counts = %d/%d, want 3 total and 2 succeeded", total, succeeded)
		}
	})
}

// TestQueue tests handled-key persistence.
func TestQueue(t *testing.T) {
	t.Parallel()

	t.Run("marking a key twice is a no-op", func(t *testing.T) {
		t.Parallel()

		q := openTestStore(t).Queue("default")
		if err := q.MarkHandled("http://example.com/"); err != nil {
			t.Fatalf("mark failed: %v", err)
		}
		if err := q.MarkHandled("http://example.com/"); err != nil {
			t.Fatalf("second mark failed: %v", err)
		}

		keys, err := q.HandledKeys(context.Background())
		if err != nil {
			t.Fatalf("handled keys failed: %v", err)
		}
		if len(keys) != 1 {
			t.Errorf("expected 1 key, got %d", len(keys))
		}
	})

	t.Run("queues are independent", func(t *testing.T) {
		t.Parallel()

		s := openTestStore(t)
		if err := s.Queue("one").MarkHandled("k"); err != nil {
			t.Fatalf("mark failed: %v", err)
		}
		keys, err := s.Queue("two").HandledKeys(context.Background())
		if err != nil {
			t.Fatalf("handled keys failed: %v", err)
		}
		if len(keys) != 0 {
			t.Errorf("expected no keys in the other queue, got %v", keys)
		}
	})
}

// TestKeyValueStore tests JSON value round-trips.
func TestKeyValueStore(t *testing.T) {
	t.Parallel()

	t.Run("round-trips a structured value", func(t *testing.T) {
		t.Parallel()

		kv := openTestStore(t).KeyValueStore("default")
		if err := kv.Set("progress", map[string]any{"page": 7}); err != nil {
			t.Fatalf("set failed: %v", err)
		}

		var got map[string]any
		found, err := kv.Get("progress", &got)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if !found {
			t.Fatal("expected the key to exist")
		}
		if got["page"] != float64(7) {
			t.Errorf("unexpected value: %v", got)
		}
	})

	t.Run("set replaces the previous value", func(t *testing.T) {
		t.Parallel()

		kv := openTestStore(t).KeyValueStore("default")
		if err := kv.Set("k", "first"); err != nil {
			t.Fatalf("set failed: %v", err)
		}
		if err := kv.Set("k", "second"); err != nil {
			t.Fatalf("second set failed: %v", err)
		}

		var got string
		if _, err := kv.Get("k", &got); err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if got != "second" {
			t.Errorf("expected the replacement, got %q", got)
		}
	})

	t.Run("missing key reports absence without error", func(t *testing.T) {
		t.Parallel()

		kv := openTestStore(t).KeyValueStore("default")
		var got string
		found, err := kv.Get("missing", &got)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if found {
			t.Error("expected the key to be absent")
		}
	})
}
