// Package report renders crawl summaries for humans and tools. Three
// formats are provided: plain text for terminals, JSON for pipelines,
// and Markdown for documentation.
package report
