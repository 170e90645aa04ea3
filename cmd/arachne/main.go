// Package main provides the entry point for the arachne CLI.
//
// Arachne is a breadth-first web-crawl orchestrator driving a headless
// browser. It schedules page visits, deduplicates URLs, rotates
// session identities, and records one output record per visited page.
//
// Usage:
//
//	arachne crawl https://example.com/
//	arachne crawl --spec crawl.yaml
//
// See --help for all available options.
package main

// main is the entry point for arachne.
func main() {
	Execute()
}
