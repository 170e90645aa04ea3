package report

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"

	"github.com/arachne-crawler/arachne/internal/model"
)

// MarkdownWriter outputs the summary in Markdown format, for
// documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent
// markdown generation which provides: 1. Type-safe markdown
// generation. 2. Support for tables, lists, and code blocks.
// 3. GitHub-flavored markdown alerts.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given
// writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the summary as Markdown.
func (w *MarkdownWriter) Write(summary *model.CrawlSummary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Crawl Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Start URLs", "`" + strings.Join(summary.StartURLs, "`, `") + "`"},
			{"Pages Outputted", strconv.FormatInt(summary.PagesOutputted, 10)},
			{"Succeeded", strconv.FormatInt(summary.Succeeded, 10)},
			{"Failed", strconv.FormatInt(summary.Failed, 10)},
			{"Elapsed", summary.Elapsed.Round(10 * time.Millisecond).String()},
		},
	})
	md.PlainText("")

	if summary.AbortReason != "" {
		md.Warningf("Crawl aborted: %s", summary.AbortReason)
		md.PlainText("")
	}

	if len(summary.PerDepth) > 0 {
		md.H2("Results per Depth")
		rows := make([][]string, 0, len(summary.PerDepth))
		for _, depth := range sortedDepths(summary.PerDepth) {
			rows = append(rows, []string{
				strconv.Itoa(depth),
				strconv.FormatInt(summary.PerDepth[depth], 10),
			})
		}
		md.Table(markdown.TableSet{
			Header: []string{"Depth", "Results"},
			Rows:   rows,
		})
		md.PlainText("")
	}

	return len(md.String()), md.Build()
}
