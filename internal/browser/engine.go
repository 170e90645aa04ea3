package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chromedp/chromedp"

	"github.com/arachne-crawler/arachne/internal/crawler"
)

// Engine launches and owns headless Chrome processes and opens pages
// on them. It implements crawler.PageEngine.
//
// Design decision: One browser process per proxy binding rather than
// one per page, because: 1. A proxy is an allocator-level Chrome
// setting, so sessions sharing a proxy can share a process. 2. Process
// startup costs seconds; tab creation costs milliseconds. 3. The
// session pool already bounds how many pages exist at once.
type Engine struct {
	mu         sync.Mutex
	allocators map[string]*allocator // keyed by proxy URL, "" for direct
	closed     bool

	headless  bool
	userAgent string
	execPath  string
	logger    *slog.Logger
}

type allocator struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithHeadless controls browser visibility.
func WithHeadless(headless bool) EngineOption {
	return func(e *Engine) {
		e.headless = headless
	}
}

// WithUserAgent sets the process-wide User-Agent default. A per-visit
// override in NavigationOptions takes precedence.
func WithUserAgent(ua string) EngineOption {
	return func(e *Engine) {
		e.userAgent = ua
	}
}

// WithExecPath points at a specific Chrome binary.
func WithExecPath(path string) EngineOption {
	return func(e *Engine) {
		e.execPath = path
	}
}

// WithEngineLogger sets the logger.
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates a browser engine. No process is launched until the
// first page is opened.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		allocators: make(map[string]*allocator),
		headless:   true,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// OpenPage opens a fresh tab bound to the session's proxy. The caller
// owns the returned page and must close it after the visit.
func (e *Engine) OpenPage(ctx context.Context, sess *crawler.Session) (crawler.Page, error) {
	alloc, err := e.allocatorFor(sess.Proxy)
	if err != nil {
		return nil, err
	}

	pageCtx, pageCancel := chromedp.NewContext(alloc.ctx)

	// An empty Run starts the browser (first page) or attaches a new
	// tab to the running process.
	if err := chromedp.Run(pageCtx); err != nil {
		pageCancel()
		return nil, fmt.Errorf("open browser tab: %w", err)
	}

	p := newChromePage(pageCtx, pageCancel, e.logger)
	e.logger.Debug("page opened", "session", sess.ID, "proxy", sess.Proxy != "")
	return p, nil
}

// Close tears down every browser process.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	for key, a := range e.allocators {
		a.cancel()
		delete(e.allocators, key)
	}
	return nil
}

// allocatorFor returns the shared allocator for a proxy binding,
// creating it on first use.
func (e *Engine) allocatorFor(proxy string) (*allocator, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, fmt.Errorf("browser engine closed")
	}
	if a, ok := e.allocators[proxy]; ok {
		return a, nil
	}

	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", e.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("ignore-certificate-errors", true),
	)
	if e.userAgent != "" {
		opts = append(opts, chromedp.UserAgent(e.userAgent))
	}
	if e.execPath != "" {
		opts = append(opts, chromedp.ExecPath(e.execPath))
	}
	if proxy != "" {
		opts = append(opts, chromedp.ProxyServer(proxy))
	}

	ctx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	a := &allocator{ctx: ctx, cancel: cancel}
	e.allocators[proxy] = a
	e.logger.Debug("browser allocator created", "proxy", proxy != "")
	return a, nil
}
