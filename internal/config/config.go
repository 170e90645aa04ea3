package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/arachne-crawler/arachne/internal/model"
)

// Default configuration values. Where the original bounds are policy
// decisions (retries, caps) the defaults are deliberately conservative;
// all of them can be overridden via CLI flags or the crawl-spec file.
const (
	// DefaultMaxConcurrency bounds the worker pool. Browser pages are
	// heavyweight, so the default stays low; raise it on machines with
	// memory to spare.
	DefaultMaxConcurrency = 10

	// DefaultMaxRequestRetries is how many times a failed visit is
	// re-admitted to the frontier before it becomes a terminal error
	// record. Three attempts total with the initial one.
	DefaultMaxRequestRetries = 2

	// DefaultNavigationTimeout bounds a single page load, including
	// redirects and the configured wait condition.
	DefaultNavigationTimeout = 60 * time.Second

	// DefaultExtractionTimeout bounds one invocation of the user
	// extraction routine.
	DefaultExtractionTimeout = 60 * time.Second

	// DiagnosticTimeout replaces both timeouts when the extraction
	// routine source carries a debugger breakpoint marker. A paused
	// debugger would otherwise trip the normal timeouts immediately.
	DiagnosticTimeout = 10 * time.Minute

	// DefaultRequestDelay is the minimum spacing between navigations
	// across the whole pool. A politeness setting, not a correctness one.
	DefaultRequestDelay = 0 * time.Second

	// DefaultSessionMaxUsage is how many visits a session serves under
	// the standard rotation policy before it is retired.
	DefaultSessionMaxUsage = 50

	// DefaultWaitUntil is the navigation wait condition.
	DefaultWaitUntil = "load"

	// AppName is used for XDG directory paths and storage defaults.
	AppName = "arachne"
)

// Session rotation policy names recognized by SessionPolicy.
const (
	// PolicyStandard sizes the session pool by concurrency and rotates
	// each session after DefaultSessionMaxUsage visits.
	PolicyStandard = "standard"

	// PolicyUntilFailure forces the pool size to one. Every visit
	// reuses the same identity until a visit fails on it, then a fresh
	// identity is created.
	PolicyUntilFailure = "until_failure"
)

// Config is the complete, fixed configuration surface of a crawl.
// It is populated from CLI flags and the crawl-spec file, validated
// once before any work starts, and treated as read-only afterwards.
//
// Design decision: We use a single flat struct instead of nested
// sub-configs. The option set is fixed by the external contract and
// small enough that nesting would only add indirection.
type Config struct {
	// StartURLs is the seed set, enqueued once at crawl start at depth 0.
	StartURLs []string

	// PseudoURLs are URL patterns discovered links must match to be
	// enqueued. Substrings wrapped in brackets are regular expressions,
	// everything else matches literally (e.g.
	// "https://example.com/[.*]"). Empty means follow everything.
	PseudoURLs []string

	// LinkSelector is the CSS selector for declarative link discovery.
	// Empty disables the declarative mode.
	LinkSelector string

	// ClickSelector is the CSS selector for interactive link discovery:
	// matching elements are activated and resulting navigations are
	// captured. Empty disables the interactive mode.
	ClickSelector string

	// ExtractionSource is the source text of the user extraction
	// routine, used only to detect a "debugger;" breakpoint marker that
	// switches the crawl into diagnostic timeouts. The routine itself
	// is injected as a compiled callable.
	ExtractionSource string

	// MaxRequestRetries bounds re-admissions of a failed visit.
	MaxRequestRetries int

	// MaxResultsPerCrawl aborts new dispatch once this many successful
	// results were recorded. Zero means unlimited.
	MaxResultsPerCrawl int

	// MaxPagesPerCrawl bounds the total number of processed pages,
	// successes and failures alike. Zero means unlimited.
	MaxPagesPerCrawl int

	// MaxCrawlingDepth silently drops discovered links deeper than
	// this. Zero means only the seed set is visited; negative means
	// unlimited.
	MaxCrawlingDepth int

	// MaxConcurrency is the worker pool size.
	MaxConcurrency int

	// NavigationTimeout bounds a single page load.
	NavigationTimeout time.Duration

	// ExtractionTimeout bounds one extraction routine invocation.
	ExtractionTimeout time.Duration

	// RequestDelay is the minimum spacing between navigations.
	RequestDelay time.Duration

	// InitialCookies are injected into every fresh session identity.
	InitialCookies []model.Cookie

	// WaitUntil is the navigation wait condition: "load",
	// "domcontentloaded" or "networkidle".
	WaitUntil string

	// IgnoreSecurity disables CSP and CORS enforcement in the page.
	IgnoreSecurity bool

	// DownloadMedia enables fetching of media resources (images, fonts,
	// audio, video). Disabled resources are blocked by URL pattern.
	DownloadMedia bool

	// DownloadCSS enables fetching of stylesheets.
	DownloadCSS bool

	// SessionPolicy selects the rotation policy by name.
	SessionPolicy string

	// ProxyURLs are rotated across session identities. Empty means
	// direct connections.
	ProxyURLs []string

	// KeepURLFragments includes the URL fragment in dedup keys.
	KeepURLFragments bool

	// VerboseBrowserLog attaches browser console listeners and logs
	// console output at debug level.
	VerboseBrowserLog bool

	// QueueStorageID, DatasetID and KeyValueStoreID name the persistent
	// stores. Stable names allow a later run to resume accounting.
	QueueStorageID  string
	DatasetID       string
	KeyValueStoreID string

	// CustomData is passed verbatim into every extraction context.
	CustomData map[string]any

	// UserAgent overrides the browser's default User-Agent.
	UserAgent string

	// Headless controls browser visibility. Headful is useful together
	// with diagnostic timeouts when debugging an extraction routine.
	Headless bool

	// DataDir is where the SQLite stores live. Defaults to the XDG
	// data directory.
	DataDir string

	// SpecFilePath is the path of the crawl-spec file, when one was
	// loaded. Informational.
	SpecFilePath string

	// Verbose enables debug-level logging.
	Verbose bool
}

// NewConfig returns a Config with all defaults applied.
//
// Design decision: A constructor rather than zero values, because most
// defaults are non-zero and the constructor doubles as documentation
// of what they are.
func NewConfig() *Config {
	return &Config{
		MaxConcurrency:    DefaultMaxConcurrency,
		MaxRequestRetries: DefaultMaxRequestRetries,
		MaxCrawlingDepth:  -1,
		NavigationTimeout: DefaultNavigationTimeout,
		ExtractionTimeout: DefaultExtractionTimeout,
		RequestDelay:      DefaultRequestDelay,
		WaitUntil:         DefaultWaitUntil,
		SessionPolicy:     PolicyStandard,
		Headless:          true,
		QueueStorageID:    "default",
		DatasetID:         "default",
		KeyValueStoreID:   "default",
		DataDir:           XDGDataDir(),
	}
}

// XDGDataDir returns the default data directory, following the XDG
// Base Directory Specification (~/.local/share/arachne on Linux).
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// Validate checks the configuration and returns the first problem
// found as a sentinel error. It is called once after flag and spec-file
// parsing; if it fails, the crawl never starts.
func (c *Config) Validate() error {
	if len(c.StartURLs) == 0 {
		return ErrNoStartURLs
	}
	if c.MaxConcurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.MaxRequestRetries < 0 {
		return ErrInvalidRetries
	}
	if c.NavigationTimeout <= 0 || c.ExtractionTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.RequestDelay < 0 {
		return ErrInvalidRequestDelay
	}
	if c.MaxResultsPerCrawl < 0 || c.MaxPagesPerCrawl < 0 {
		return ErrInvalidCap
	}
	switch c.SessionPolicy {
	case PolicyStandard, PolicyUntilFailure:
	default:
		return ErrUnknownSessionPolicy
	}
	switch c.WaitUntil {
	case "load", "domcontentloaded", "networkidle":
	default:
		return ErrUnknownWaitCondition
	}
	return nil
}

// DiagnosticMode reports whether the extraction routine source carries
// a debugger breakpoint marker. In that mode both the navigation and
// extraction timeouts are elevated to DiagnosticTimeout so a paused
// debugger does not fail the visit.
func (c *Config) DiagnosticMode() bool {
	return containsDebuggerMarker(c.ExtractionSource)
}
