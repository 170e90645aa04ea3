package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/arachne-crawler/arachne/internal/config"
	"github.com/arachne-crawler/arachne/internal/model"
)

// QueueStore persists handled unique keys so a later run against the
// same queue can skip pages it already processed. The SQLite
// implementation lives in internal/storage.
type QueueStore interface {
	// MarkHandled records a unique key as terminally processed.
	MarkHandled(key string) error
}

// Crawler is the breadth-first crawl orchestrator. It owns the worker
// pool and ties the frontier, session pool, page engine, handler and
// sink together; all page rendering is delegated to the engine.
//
// Design decision: Workers are long-lived goroutines looping over
// Dequeue rather than one goroutine per visit, because: 1. The frontier
// blocks when idle-but-not-exhausted, which maps naturally onto a
// worker parked in Dequeue. 2. Pool size equals browser-page pressure,
// which must stay bounded. 3. Termination falls out of the frontier's
// exhaustion signal with no extra coordination.
type Crawler struct {
	cfg      *config.Config
	logger   *slog.Logger
	frontier *Frontier
	sessions *SessionPool
	engine   PageEngine
	handler  *PageHandler
	sink     *ResultSink
	limiter  *rate.Limiter
	queue    QueueStore
}

// CrawlerOption configures a Crawler.
type CrawlerOption func(*Crawler)

// WithCrawlerLogger sets the logger.
func WithCrawlerLogger(logger *slog.Logger) CrawlerOption {
	return func(c *Crawler) {
		c.logger = logger
	}
}

// WithQueueStore installs the handled-key persistence used for resume.
func WithQueueStore(store QueueStore) CrawlerOption {
	return func(c *Crawler) {
		c.queue = store
	}
}

// NewCrawler wires an orchestrator from its collaborators.
func NewCrawler(
	cfg *config.Config,
	frontier *Frontier,
	sessions *SessionPool,
	engine PageEngine,
	handler *PageHandler,
	sink *ResultSink,
	opts ...CrawlerOption,
) *Crawler {
	c := &Crawler{
		cfg:      cfg,
		frontier: frontier,
		sessions: sessions,
		engine:   engine,
		handler:  handler,
		sink:     sink,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if cfg.RequestDelay > 0 {
		// One shared limiter: the delay spaces navigations across the
		// whole pool, not per worker.
		c.limiter = rate.NewLimiter(rate.Every(cfg.RequestDelay), 1)
	}
	return c
}

// Run executes the crawl to completion and returns its summary. It
// seeds the frontier, runs the worker pool, and drains until the
// frontier is exhausted, the abort signal fires, or ctx is cancelled.
func (c *Crawler) Run(ctx context.Context) (*model.CrawlSummary, error) {
	start := time.Now()

	seeded := 0
	for _, rawURL := range c.cfg.StartURLs {
		v := &model.Visit{
			URL:       rawURL,
			UniqueKey: model.UniqueKey(rawURL, c.cfg.KeepURLFragments),
			UserData:  model.UserData{Depth: 0},
		}
		err := c.frontier.Enqueue(v)
		switch {
		case errors.Is(err, ErrDuplicateKey):
			c.logger.Debug("seed already handled", "url", rawURL)
		case err != nil:
			return nil, fmt.Errorf("seed frontier: %w", err)
		default:
			seeded++
		}
	}
	c.logger.Info("crawl started",
		"seeds", seeded,
		"concurrency", c.cfg.MaxConcurrency,
		"sessionPolicy", c.cfg.SessionPolicy,
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < c.cfg.MaxConcurrency; i++ {
		g.Go(func() error {
			return c.worker(gctx)
		})
	}
	runErr := g.Wait()

	succeeded, failed, perDepth := c.sink.Stats()
	summary := &model.CrawlSummary{
		StartURLs:      c.cfg.StartURLs,
		PagesOutputted: c.sink.PagesOutputted(),
		Succeeded:      succeeded,
		Failed:         failed,
		PerDepth:       perDepth,
		AbortReason:    c.sink.AbortReason(),
		Elapsed:        time.Since(start),
	}

	c.logger.Info("crawl finished",
		"succeeded", succeeded,
		"failed", failed,
		"outputted", summary.PagesOutputted,
		"elapsed", summary.Elapsed,
		"abortReason", summary.AbortReason,
	)
	return summary, runErr
}

// worker is one pool member's loop: dequeue, process, route the
// outcome, until the frontier is exhausted or the crawl stops.
func (c *Crawler) worker(ctx context.Context) error {
	for {
		// An aborted crawl stops dispatching; visits already checked
		// out by other workers still finish and get recorded.
		if c.sink.Aborted() {
			return nil
		}

		v, err := c.frontier.Dequeue(ctx)
		switch {
		case errors.Is(err, ErrFrontierExhausted), errors.Is(err, ErrFrontierClosed):
			return nil
		case err != nil:
			return err
		}

		if err := c.processVisit(ctx, v); err != nil {
			return err
		}
	}
}

// processVisit runs one attempt of one visit and routes the outcome:
// success and abort are terminal, retryable failures go back through
// the frontier, exhausted retries become a terminal error record.
func (c *Crawler) processVisit(ctx context.Context, v *model.Visit) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.frontier.Done(v)
			return err
		}
	}

	sess, err := c.sessions.Acquire(ctx)
	if err != nil {
		c.frontier.Done(v)
		if errors.Is(err, ErrPoolClosed) {
			return nil
		}
		return err
	}

	attemptErr := c.attempt(ctx, v, sess)
	c.sessions.Release(sess, attemptErr == nil || errors.Is(attemptErr, ErrCrawlAborted))

	switch {
	case attemptErr == nil:
		c.frontier.Done(v)
		c.markHandled(v)
		c.checkPageCap()
		return nil

	case errors.Is(attemptErr, ErrCrawlAborted):
		// Never attempted: terminal without a record.
		c.frontier.Done(v)
		return nil

	case retryable(attemptErr):
		c.logger.Debug("visit attempt failed",
			"url", v.URL,
			"attempt", v.RetryCount+1,
			"error", attemptErr,
		)
		requeueErr := c.frontier.Requeue(v, attemptErr.Error())
		if errors.Is(requeueErr, ErrRetriesExhausted) {
			if err := c.sink.RecordFailure(v); err != nil {
				return err
			}
			c.markHandled(v)
			c.checkPageCap()
		}
		return nil

	default:
		// Infrastructure failure outside the per-visit contract (e.g.
		// the dataset went away). Stops the crawl.
		c.frontier.Done(v)
		return attemptErr
	}
}

// attempt opens a page on the session and runs the handler over it.
func (c *Crawler) attempt(ctx context.Context, v *model.Visit, sess *Session) error {
	attemptCtx, cancel := context.WithTimeout(ctx, c.handler.attemptDeadline())
	defer cancel()

	page, err := c.engine.OpenPage(attemptCtx, sess)
	if err != nil {
		return &NavigationError{URL: v.URL, Err: fmt.Errorf("open page: %w", err)}
	}
	defer func() {
		if err := page.Close(); err != nil {
			c.logger.Debug("page close failed", "url", v.URL, "error", err)
		}
	}()

	return c.handler.Handle(attemptCtx, v, sess, page)
}

// markHandled persists the visit's unique key for resume. Best effort:
// a persistence failure costs a revisit on resume, not the crawl.
func (c *Crawler) markHandled(v *model.Visit) {
	if c.queue == nil {
		return
	}
	if err := c.queue.MarkHandled(v.UniqueKey); err != nil {
		c.logger.Warn("persist handled key failed", "key", v.UniqueKey, "error", err)
	}
}

// checkPageCap trips the abort signal once the total processed-page
// count, successes and failures alike, reaches the page cap.
func (c *Crawler) checkPageCap() {
	if c.cfg.MaxPagesPerCrawl <= 0 {
		return
	}
	succeeded, failed, _ := c.sink.Stats()
	if succeeded+failed >= int64(c.cfg.MaxPagesPerCrawl) {
		c.sink.Abort("page cap reached")
	}
}
