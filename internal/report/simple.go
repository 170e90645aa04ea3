package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/arachne-crawler/arachne/internal/model"
)

// SimpleWriter outputs a human-readable text summary.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors by default because: 1. It works in all terminals without
// compatibility issues. 2. It's easier to pipe to files or other
// tools. 3. Color can be added as an option later if needed.
type SimpleWriter struct {
	baseWriter

	// verbose adds the per-depth breakdown to the output.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables the per-depth breakdown.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given
// writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the summary as plain text.
func (w *SimpleWriter) Write(summary *model.CrawlSummary) (int, error) {
	var sb strings.Builder

	sb.WriteString("Crawl Summary\n")
	sb.WriteString("=============\n\n")

	sb.WriteString(fmt.Sprintf("Start URLs:      %s\n", strings.Join(summary.StartURLs, ", ")))
	sb.WriteString(fmt.Sprintf("Pages outputted: %d\n", summary.PagesOutputted))
	sb.WriteString(fmt.Sprintf("Succeeded:       %d\n", summary.Succeeded))
	sb.WriteString(fmt.Sprintf("Failed:          %d\n", summary.Failed))
	sb.WriteString(fmt.Sprintf("Elapsed:         %s\n", summary.Elapsed.Round(10*time.Millisecond)))

	if summary.AbortReason != "" {
		sb.WriteString(fmt.Sprintf("Aborted:         %s\n", summary.AbortReason))
	}

	if w.verbose && len(summary.PerDepth) > 0 {
		sb.WriteString("\nResults per depth:\n")
		for _, depth := range sortedDepths(summary.PerDepth) {
			sb.WriteString(fmt.Sprintf("  depth %d: %d\n", depth, summary.PerDepth[depth]))
		}
	}

	sb.WriteString("\n")
	return io.WriteString(w.output, sb.String())
}

// sortedDepths returns the breakdown's depths in ascending order.
func sortedDepths(perDepth map[int]int64) []int {
	depths := make([]int, 0, len(perDepth))
	for d := range perDepth {
		depths = append(depths, d)
	}
	sort.Ints(depths)
	return depths
}
