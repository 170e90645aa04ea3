package crawler

import (
	"context"
	"time"

	"github.com/arachne-crawler/arachne/internal/model"
)

// PageEngine is the external browser-control collaborator. The
// orchestrator never renders pages or touches the network itself; it
// only schedules, sequences, and accounts for visits.
//
// Design decision: The interface lives here, next to its consumers,
// and implementations (chromedp in internal/browser, fakes in tests)
// are injected. This keeps the core free of cdproto types.
type PageEngine interface {
	// OpenPage opens a fresh page bound to the session's identity
	// (proxy). Cookie injection happens later, as a pipeline step.
	OpenPage(ctx context.Context, sess *Session) (Page, error)

	// Close releases all engine resources.
	Close() error
}

// Page is a live browser-page handle. The handle passed to the
// extraction routine is this exact object, not a copy: calls the
// routine makes on it are visible to the orchestrator afterwards.
type Page interface {
	// Navigate loads the URL under the given options and returns the
	// main document's status and headers. The result is nil when
	// navigation produced no response at all.
	Navigate(ctx context.Context, url string, opts NavigationOptions) (*NavigationResult, error)

	// SetCookies installs cookies into the page's browser context.
	SetCookies(ctx context.Context, cookies []model.Cookie) error

	// Cookies returns the cookies currently visible to the page.
	Cookies(ctx context.Context) ([]model.Cookie, error)

	// HTML returns the rendered document markup.
	HTML(ctx context.Context) (string, error)

	// ClickAndCollect activates every element matching the selector and
	// returns the URLs of navigations triggered by those activations.
	ClickAndCollect(ctx context.Context, selector string) ([]string, error)

	// OnConsole registers a listener for browser console output.
	OnConsole(fn func(kind, text string))

	// Close destroys the page and its browser context.
	Close() error
}

// NavigationOptions is assembled by the navigation pipeline's fixed
// steps and may be amended by pre-navigation hooks before the load.
type NavigationOptions struct {
	// Timeout bounds the whole load, including the wait condition.
	Timeout time.Duration

	// WaitUntil is "load", "domcontentloaded" or "networkidle".
	WaitUntil string

	// BlockedPatterns are URL glob patterns the engine must not fetch
	// (resource blocking for media and stylesheets).
	BlockedPatterns []string

	// BypassSecurity disables CSP and CORS enforcement for the page.
	BypassSecurity bool

	// UserAgent overrides the engine default when non-empty.
	UserAgent string
}

// NavigationResult is the outcome of a page load.
type NavigationResult struct {
	// StatusCode is the main document's HTTP status.
	StatusCode int

	// Headers is the main document's response header map.
	Headers map[string]string

	// FinalURL is the document URL after redirects.
	FinalURL string
}

// Media and stylesheet extension groups used for resource blocking.
// The split mirrors the two independent download toggles.
var (
	mediaExtensions = []string{
		".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico",
		".mp4", ".webm", ".mp3", ".wav",
		".woff", ".woff2", ".ttf", ".otf", ".eot",
		".pdf", ".zip",
	}
	stylesheetExtensions = []string{".css"}
)

// BlockedResourcePatterns builds the URL patterns for resources that
// must not be fetched, based on the two independent download toggles.
func BlockedResourcePatterns(downloadMedia, downloadCSS bool) []string {
	var patterns []string
	if !downloadMedia {
		for _, ext := range mediaExtensions {
			patterns = append(patterns, "*"+ext, "*"+ext+"?*")
		}
	}
	if !downloadCSS {
		for _, ext := range stylesheetExtensions {
			patterns = append(patterns, "*"+ext, "*"+ext+"?*")
		}
	}
	return patterns
}
