package crawler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/arachne-crawler/arachne/internal/config"
)

// PreNavigationHook runs before the page load. Hooks may amend the
// navigation options. An error aborts the remaining hooks and fails
// the visit.
type PreNavigationHook func(pc *PageContext, opts *NavigationOptions) error

// PostNavigationHook runs after the page load, before the extraction
// routine. An error aborts the remaining hooks and fails the visit.
type PostNavigationHook func(pc *PageContext) error

// Pipeline is the ordered hook chain around the actual page load.
// Fixed steps run first, in a set order; user-supplied hooks are
// appended after them and invoked in registration order with the same
// enriched context.
type Pipeline struct {
	cfg    *config.Config
	logger *slog.Logger

	// prepare is the deprecated single pre-visit hook. Its failure is
	// fatal for the visit, matching the historical contract.
	prepare PreNavigationHook

	preHooks  []PreNavigationHook
	postHooks []PostNavigationHook
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithPipelineLogger sets the pipeline's logger.
func WithPipelineLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithPrepareHook installs the deprecated single pre-visit hook.
func WithPrepareHook(hook PreNavigationHook) PipelineOption {
	return func(p *Pipeline) {
		p.prepare = hook
	}
}

// WithPreNavigationHooks appends user pre-navigation hooks.
func WithPreNavigationHooks(hooks ...PreNavigationHook) PipelineOption {
	return func(p *Pipeline) {
		p.preHooks = append(p.preHooks, hooks...)
	}
}

// WithPostNavigationHooks appends user post-navigation hooks.
func WithPostNavigationHooks(hooks ...PostNavigationHook) PipelineOption {
	return func(p *Pipeline) {
		p.postHooks = append(p.postHooks, hooks...)
	}
}

// NewPipeline creates a navigation pipeline for the given crawl
// configuration.
func NewPipeline(cfg *config.Config, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{cfg: cfg}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Run executes the fixed pre-visit steps, the user pre-navigation
// hooks, the navigation itself, and the post-navigation hooks. The
// navigation result is stored on the context and returned. Any error
// is a NavigationError and therefore retryable.
func (p *Pipeline) Run(ctx context.Context, pc *PageContext) (*NavigationResult, error) {
	opts := NavigationOptions{
		UserAgent: p.cfg.UserAgent,
	}

	// (a) diagnostic listeners
	if p.cfg.VerboseBrowserLog {
		logger := p.logger
		url := pc.Request.URL
		pc.Page.OnConsole(func(kind, text string) {
			logger.Debug("browser console", "kind", kind, "text", text, "url", url)
		})
	}

	// (b) resource-blocking rules, the two toggles independent
	opts.BlockedPatterns = BlockedResourcePatterns(p.cfg.DownloadMedia, p.cfg.DownloadCSS)

	// (c) session cookie injection, merging rather than overwriting
	if err := p.injectCookies(ctx, pc); err != nil {
		return nil, &NavigationError{URL: pc.Request.URL, Err: fmt.Errorf("cookie injection: %w", err)}
	}

	// (d) security relaxation toggles
	opts.BypassSecurity = p.cfg.IgnoreSecurity

	// (e) deprecated single pre-visit hook, failure fatal for the visit
	if p.prepare != nil {
		if err := p.prepare(pc, &opts); err != nil {
			return nil, &NavigationError{URL: pc.Request.URL, Err: fmt.Errorf("prepare hook: %w", err)}
		}
	}

	// (f) page-load timeout and wait condition. The timeout is elevated
	// to the diagnostic value when the extraction routine carries a
	// debugger breakpoint marker.
	opts.Timeout = p.cfg.NavigationTimeout
	if p.cfg.DiagnosticMode() {
		opts.Timeout = config.DiagnosticTimeout
	}
	opts.WaitUntil = p.cfg.WaitUntil

	// User pre-navigation hooks, strictly in registration order.
	for i, hook := range p.preHooks {
		if err := hook(pc, &opts); err != nil {
			return nil, &NavigationError{URL: pc.Request.URL, Err: fmt.Errorf("pre-navigation hook %d: %w", i, err)}
		}
	}

	result, err := pc.Page.Navigate(ctx, pc.Request.URL, opts)
	if err != nil {
		return result, &NavigationError{URL: pc.Request.URL, Err: err}
	}
	pc.Response = result

	for i, hook := range p.postHooks {
		if err := hook(pc); err != nil {
			return result, &NavigationError{URL: pc.Request.URL, Err: fmt.Errorf("post-navigation hook %d: %w", i, err)}
		}
	}

	return result, nil
}

// injectCookies merges the session's cookies into the page, adding only
// cookies the page does not already hold.
func (p *Pipeline) injectCookies(ctx context.Context, pc *PageContext) error {
	jar := pc.Session.Cookies
	if len(jar) == 0 {
		return nil
	}

	existing, err := pc.Page.Cookies(ctx)
	if err != nil {
		return err
	}

	present := make(map[string]bool, len(existing))
	for _, c := range existing {
		present[c.Domain+"\x00"+c.Name] = true
	}

	missing := jar[:0:0]
	for _, c := range jar {
		if !present[c.Domain+"\x00"+c.Name] {
			missing = append(missing, c)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return pc.Page.SetCookies(ctx, missing)
}
