package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arachne-crawler/arachne/internal/config"
	"github.com/arachne-crawler/arachne/internal/model"
)

// visitPhase names the stages one visit moves through. A visit always
// advances pre -> invoke -> post -> done; any stage can divert to the
// failure path instead, and a tripped abort signal skips processing
// entirely.
type visitPhase string

const (
	phasePre    visitPhase = "pre"
	phaseInvoke visitPhase = "invoke"
	phasePost   visitPhase = "post"
	phaseDone   visitPhase = "done"
)

// PageHandler processes one dequeued visit end to end: it assembles the
// page context, drives the navigation pipeline, invokes the extraction
// routine, runs link discovery, and records the outcome.
//
// The handler is stateless across visits; one handler instance is
// shared by all workers.
type PageHandler struct {
	cfg       *config.Config
	logger    *slog.Logger
	pipeline  *Pipeline
	discovery *LinkDiscovery
	sink      *ResultSink
	frontier  *Frontier
	state     *CrawlState
	kv        KeyValueStore
	extract   ExtractionFunc
	env       Environment
}

// HandlerOption configures a PageHandler.
type HandlerOption func(*PageHandler)

// WithHandlerLogger sets the logger.
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *PageHandler) {
		h.logger = logger
	}
}

// WithKeyValueStore exposes a persistent key-value store to extraction
// routines.
func WithKeyValueStore(kv KeyValueStore) HandlerOption {
	return func(h *PageHandler) {
		h.kv = kv
	}
}

// WithEnvironment sets the runtime metadata exposed to extraction
// routines.
func WithEnvironment(env Environment) HandlerOption {
	return func(h *PageHandler) {
		h.env = env
	}
}

// NewPageHandler wires a handler from its collaborators.
func NewPageHandler(
	cfg *config.Config,
	pipeline *Pipeline,
	discovery *LinkDiscovery,
	sink *ResultSink,
	frontier *Frontier,
	state *CrawlState,
	extract ExtractionFunc,
	opts ...HandlerOption,
) *PageHandler {
	h := &PageHandler{
		cfg:       cfg,
		pipeline:  pipeline,
		discovery: discovery,
		sink:      sink,
		frontier:  frontier,
		state:     state,
		extract:   extract,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// Handle processes one visit on the given page. A nil return means the
// visit succeeded and its record was appended. ErrCrawlAborted means
// the abort signal fired before processing started and the visit was
// not attempted. Any other error is a per-visit failure the caller
// routes through the frontier's retry path.
func (h *PageHandler) Handle(ctx context.Context, v *model.Visit, sess *Session, page Page) error {
	// pre: the abort check happens before any page work so aborted
	// crawls stop admitting visits immediately.
	if h.sink.Aborted() {
		return ErrCrawlAborted
	}

	pc := h.assembleContext(v, sess, page)
	h.logPhase(phasePre, v)

	if _, err := h.pipeline.Run(ctx, pc); err != nil {
		return err
	}

	// invoke: exactly one extraction call per attempt, bounded by its
	// own timeout so a hung routine cannot stall the worker forever.
	h.logPhase(phaseInvoke, v)
	payload, err := h.invokeExtraction(ctx, pc)
	if err != nil {
		return &ExtractionError{URL: v.URL, Err: err}
	}

	// post: discovery feeds the frontier unless the routine opted out;
	// a discovery failure is logged, never fatal for the visit.
	h.logPhase(phasePost, v)
	if h.discovery != nil && !pc.LinksSkipped() {
		h.discovery.Discover(ctx, pc)
	}

	if err := h.sink.RecordSuccess(v, payload); err != nil {
		return fmt.Errorf("record result: %w", err)
	}

	// Updated page cookies travel with the session identity to its
	// next visit.
	if cookies, err := page.Cookies(ctx); err == nil {
		sess.MergeCookies(cookies)
	}

	h.logPhase(phaseDone, v)
	return nil
}

// assembleContext builds the per-visit context, wiring the manual
// enqueue path back into the frontier.
func (h *PageHandler) assembleContext(v *model.Visit, sess *Session, page Page) *PageContext {
	pc := &PageContext{
		Request:    v,
		Session:    sess,
		Page:       page,
		State:      h.state,
		KV:         h.kv,
		CustomData: h.cfg.CustomData,
		Env:        h.env,
	}
	pc.enqueue = func(rawURL string, opts *EnqueueOptions) error {
		depth := v.UserData.Depth + 1
		var values map[string]any
		if opts != nil {
			if opts.Depth != nil {
				depth = *opts.Depth
			}
			values = opts.Values
		}
		child := &model.Visit{
			URL:       rawURL,
			UniqueKey: model.UniqueKey(rawURL, h.cfg.KeepURLFragments),
			UserData: model.UserData{
				ParentID: v.LineageID(),
				Depth:    depth,
				Values:   values,
			},
		}
		return h.frontier.Enqueue(child)
	}
	return pc
}

// invokeExtraction runs the user routine under its timeout. The timeout
// is elevated to the diagnostic value when the routine source carries a
// debugger breakpoint marker.
func (h *PageHandler) invokeExtraction(ctx context.Context, pc *PageContext) (any, error) {
	timeout := h.cfg.ExtractionTimeout
	if h.cfg.DiagnosticMode() {
		timeout = config.DiagnosticTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if h.extract == nil {
		return nil, nil
	}

	type outcome struct {
		payload any
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		payload, err := h.extract(ctx, pc)
		done <- outcome{payload: payload, err: err}
	}()

	select {
	case out := <-done:
		return out.payload, out.err
	case <-ctx.Done():
		return nil, fmt.Errorf("extraction timed out after %s: %w", timeout, ctx.Err())
	}
}

func (h *PageHandler) logPhase(phase visitPhase, v *model.Visit) {
	h.logger.Debug("visit phase",
		"phase", string(phase),
		"url", v.URL,
		"depth", v.UserData.Depth,
		"retry", v.RetryCount,
	)
}

// attemptDeadline bounds one full visit attempt: navigation plus
// extraction plus discovery, with headroom for bookkeeping.
func (h *PageHandler) attemptDeadline() time.Duration {
	if h.cfg.DiagnosticMode() {
		return 2 * config.DiagnosticTimeout
	}
	return h.cfg.NavigationTimeout + h.cfg.ExtractionTimeout + 30*time.Second
}
