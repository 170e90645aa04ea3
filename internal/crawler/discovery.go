package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/arachne-crawler/arachne/internal/model"
)

// LinkDiscovery extracts candidate links from a loaded page and feeds
// them into the frontier. Two independent modes can run on the same
// page: declarative (read link targets from elements matching a
// selector) and interactive (activate elements matching a selector and
// capture the navigations that result).
//
// Every candidate passes through one shared transform before enqueue:
// depth becomes the current depth plus one, the parent reference
// prefers the visit's stable ID over its unique key, and the dedup key
// follows the configured fragment policy. Candidates not matching the
// pseudo-URL allow-list are silently discarded; the frontier applies
// the depth ceiling and deduplication uniformly.
type LinkDiscovery struct {
	frontier *Frontier
	logger   *slog.Logger

	linkSelector  string
	clickSelector string
	patterns      []*PseudoURL
	keepFragments bool

	// depthCeilingFor returns a per-host depth override, negative for
	// none. May be nil.
	depthCeilingFor func(host string) int
}

// DiscoveryOption configures a LinkDiscovery.
type DiscoveryOption func(*LinkDiscovery)

// WithLinkSelector enables declarative discovery with the given CSS
// selector.
func WithLinkSelector(selector string) DiscoveryOption {
	return func(d *LinkDiscovery) {
		d.linkSelector = selector
	}
}

// WithClickSelector enables interactive discovery with the given CSS
// selector.
func WithClickSelector(selector string) DiscoveryOption {
	return func(d *LinkDiscovery) {
		d.clickSelector = selector
	}
}

// WithPatterns sets the pseudo-URL allow-list. Empty follows everything.
func WithPatterns(patterns []*PseudoURL) DiscoveryOption {
	return func(d *LinkDiscovery) {
		d.patterns = patterns
	}
}

// WithKeepFragments includes URL fragments in dedup keys.
func WithKeepFragments(keep bool) DiscoveryOption {
	return func(d *LinkDiscovery) {
		d.keepFragments = keep
	}
}

// WithDiscoveryLogger sets the logger.
func WithDiscoveryLogger(logger *slog.Logger) DiscoveryOption {
	return func(d *LinkDiscovery) {
		d.logger = logger
	}
}

// WithSiteDepthCeiling installs a per-host depth override lookup.
// The function returns a negative value for hosts without an override.
func WithSiteDepthCeiling(fn func(host string) int) DiscoveryOption {
	return func(d *LinkDiscovery) {
		d.depthCeilingFor = fn
	}
}

// NewLinkDiscovery creates a LinkDiscovery feeding the given frontier.
func NewLinkDiscovery(frontier *Frontier, opts ...DiscoveryOption) *LinkDiscovery {
	d := &LinkDiscovery{frontier: frontier}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Discover runs the enabled discovery modes against the page in pc and
// enqueues surviving candidates. Errors here are logged and swallowed:
// a failed discovery never fails the visit.
func (d *LinkDiscovery) Discover(ctx context.Context, pc *PageContext) {
	if d.linkSelector != "" {
		if err := d.discoverDeclarative(ctx, pc); err != nil {
			d.logger.Warn("declarative link discovery failed",
				"url", pc.Request.URL,
				"selector", d.linkSelector,
				"error", err,
			)
		}
	}
	if d.clickSelector != "" {
		if err := d.discoverInteractive(ctx, pc); err != nil {
			d.logger.Warn("interactive link discovery failed",
				"url", pc.Request.URL,
				"selector", d.clickSelector,
				"error", err,
			)
		}
	}
}

// discoverDeclarative reads link targets from the rendered document.
func (d *LinkDiscovery) discoverDeclarative(ctx context.Context, pc *PageContext) error {
	html, err := pc.Page.HTML(ctx)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("parse document: %w", err)
	}

	base, err := url.Parse(pc.Request.URL)
	if err != nil {
		return fmt.Errorf("parse base URL: %w", err)
	}
	if pc.Response != nil && pc.Response.FinalURL != "" {
		if final, err := url.Parse(pc.Response.FinalURL); err == nil {
			base = final
		}
	}

	doc.Find(d.linkSelector).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		d.admit(pc, resolveRef(base, href))
	})
	return nil
}

// discoverInteractive activates matching elements and captures the
// navigations they trigger.
func (d *LinkDiscovery) discoverInteractive(ctx context.Context, pc *PageContext) error {
	captured, err := pc.Page.ClickAndCollect(ctx, d.clickSelector)
	if err != nil {
		return fmt.Errorf("click capture: %w", err)
	}
	for _, raw := range captured {
		d.admit(pc, raw)
	}
	return nil
}

// admit runs the shared candidate transform and hands the result to
// the frontier. Pattern misses, duplicates and over-depth candidates
// are all silent.
func (d *LinkDiscovery) admit(pc *PageContext, candidate string) {
	if candidate == "" {
		return
	}
	if !strings.HasPrefix(candidate, "http://") && !strings.HasPrefix(candidate, "https://") {
		return
	}
	if !matchesAny(d.patterns, candidate) {
		return
	}

	depth := pc.Request.UserData.Depth + 1
	if d.depthCeilingFor != nil {
		if u, err := url.Parse(candidate); err == nil {
			if ceiling := d.depthCeilingFor(u.Hostname()); ceiling >= 0 && depth > ceiling {
				return
			}
		}
	}

	visit := &model.Visit{
		URL:       candidate,
		UniqueKey: model.UniqueKey(candidate, d.keepFragments),
		UserData: model.UserData{
			ParentID: pc.Request.LineageID(),
			Depth:    depth,
		},
	}

	if err := d.frontier.Enqueue(visit); err != nil && !errors.Is(err, ErrDuplicateKey) {
		d.logger.Debug("candidate rejected",
			"url", candidate,
			"error", err,
		)
	}
}

// resolveRef resolves href against base, returning an empty string for
// unusable references.
func resolveRef(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}
