package report

import (
	"encoding/json"
	"io"

	"github.com/arachne-crawler/arachne/internal/model"
)

// JSONWriter outputs the summary in JSON format for tool integration.
//
// Design decision: We use standard encoding/json rather than a
// third-party JSON library because: 1. It's part of the standard
// library. 2. It's sufficient for a small summary document. 3. It
// provides consistent behavior across Go versions.
type JSONWriter struct {
	baseWriter

	indent       bool
	indentPrefix string
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed output. The prefix is prepended to
// each line and indent is used per nesting level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the summary as JSON.
func (w *JSONWriter) Write(summary *model.CrawlSummary) (int, error) {
	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(summary, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(summary)
	}
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')
	return w.output.Write(data)
}
