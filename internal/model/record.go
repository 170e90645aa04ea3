package model

import "time"

// Cookie is a browser cookie bound to a session identity.
// It mirrors the subset of cookie attributes the browser collaborator
// needs; conversion to the engine's wire type happens at the boundary.
type Cookie struct {
	Name     string `json:"name" yaml:"name"`
	Value    string `json:"value" yaml:"value"`
	Domain   string `json:"domain,omitempty" yaml:"domain,omitempty"`
	Path     string `json:"path,omitempty" yaml:"path,omitempty"`
	Secure   bool   `json:"secure,omitempty" yaml:"secure,omitempty"`
	HTTPOnly bool   `json:"httpOnly,omitempty" yaml:"httpOnly,omitempty"`
}

// OutputRecord is the persisted result of one terminal visit.
// Exactly one record is appended per terminal visit, success or
// exhausted failure, and it is never mutated afterwards.
type OutputRecord struct {
	// VisitID is the frontier-assigned ID of the terminal visit.
	VisitID string `json:"visitId"`

	// URL is the visit's URL as scheduled.
	URL string `json:"url"`

	// UniqueKey is the visit's deduplication key.
	UniqueKey string `json:"uniqueKey"`

	// PageFunctionResult is the extraction routine's return value.
	// Nil for error records.
	PageFunctionResult any `json:"pageFunctionResult"`

	// ErrorMessages holds the visit's accumulated errors. Only set on
	// error records.
	ErrorMessages []string `json:"errorMessages,omitempty"`

	// IsError marks a terminal record produced after retries were
	// exhausted.
	IsError bool `json:"isError"`

	// Depth is the visit's BFS depth, carried into the record so the
	// summary report can break results down per level.
	Depth int `json:"depth"`

	// CreatedAt is when the record was appended.
	CreatedAt time.Time `json:"createdAt"`
}

// CrawlSummary aggregates the outcome of one crawl run for reporting.
type CrawlSummary struct {
	// StartURLs are the seed URLs the crawl was launched with.
	StartURLs []string `json:"startUrls"`

	// PagesOutputted is the total number of records appended, including
	// any resumed from a prior run against the same dataset.
	PagesOutputted int64 `json:"pagesOutputted"`

	// Succeeded and Failed count the terminal outcomes of this run.
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`

	// PerDepth counts successful records per BFS depth.
	PerDepth map[int]int64 `json:"perDepth,omitempty"`

	// AbortReason is set when the crawl stopped before frontier
	// exhaustion (e.g. "result cap reached"). Empty on natural
	// termination.
	AbortReason string `json:"abortReason,omitempty"`

	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration `json:"elapsed"`
}
