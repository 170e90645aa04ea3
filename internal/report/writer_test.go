package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/arachne-crawler/arachne/internal/model"
)

func sampleSummary() *model.CrawlSummary {
	return &model.CrawlSummary{
		StartURLs:      []string{"http://example.com/"},
		PagesOutputted: 42,
		Succeeded:      40,
		Failed:         2,
		PerDepth:       map[int]int64{0: 1, 1: 12, 2: 27},
		AbortReason:    "result cap reached",
		Elapsed:        93 * time.Second,
	}
}

// TestSimpleWriter tests the plain-text format.
func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("renders the core fields", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := NewSimpleWriter(&buf).Write(sampleSummary())
		if err != nil {
			t.Fatalf("write failed: %v", err)
		}
		if n != buf.Len() {
			t.Errorf("reported %d bytes, wrote %d", n, buf.Len())
		}

		out := buf.String()
		for _, want := range []string{
			"http://example.com/",
			"Pages outputted: 42",
			"Succeeded:       40",
			"Failed:          2",
			"result cap reached",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("omits the abort line on natural termination", func(t *testing.T) {
		t.Parallel()

		summary := sampleSummary()
		summary.AbortReason = ""

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(summary); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		if strings.Contains(buf.String(), "Aborted") {
			t.Error("abort line present on natural termination")
		}
	})

	t.Run("verbose adds the per-depth breakdown in order", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf, WithVerbose(true)).Write(sampleSummary()); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		out := buf.String()
		d1 := strings.Index(out, "depth 0")
		d2 := strings.Index(out, "depth 1")
		d3 := strings.Index(out, "depth 2")
		if d1 < 0 || d2 < 0 || d3 < 0 || !(d1 < d2 && d2 < d3) {
			t.Errorf("per-depth breakdown missing or unordered:\n%s", out)
		}
	})
}

// TestJSONWriter tests the JSON format.
func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("produces parseable JSON", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(sampleSummary()); err != nil {
			t.Fatalf("write failed: %v", err)
		}

		var decoded map[string]any
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if decoded["pagesOutputted"] != float64(42) {
			t.Errorf("pagesOutputted = %v, want 42", decoded["pagesOutputted"])
		}
		if decoded["abortReason"] != "result cap reached" {
			t.Errorf("abortReason = %v", decoded["abortReason"])
		}
	})

	t.Run("indent produces multi-line output", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithIndent("", "  ")).Write(sampleSummary()); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		if strings.Count(buf.String(), "\n") < 2 {
			t.Error("expected pretty-printed output")
		}
	})
}

// TestMarkdownWriter tests the Markdown format.
func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if _, err := NewMarkdownWriter(&buf).Write(sampleSummary()); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"# Crawl Report",
		"## Results per Depth",
		"| Pages Outputted",
		"result cap reached",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

// TestMultiWriter tests fan-out to several writers.
func TestMultiWriter(t *testing.T) {
	t.Parallel()

	var text, jsonBuf bytes.Buffer
	mw := NewMultiWriter(NewSimpleWriter(&text), NewJSONWriter(&jsonBuf))
	if _, err := mw.Write(sampleSummary()); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if text.Len() == 0 || jsonBuf.Len() == 0 {
		t.Error("expected both writers to receive output")
	}
}
