package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"github.com/arachne-crawler/arachne/internal/crawler"
	"github.com/arachne-crawler/arachne/internal/model"
)

// networkIdleQuiet is how long the network must stay silent before the
// "networkidle" wait condition is considered met.
const networkIdleQuiet = 500 * time.Millisecond

// chromePage is one browser tab. It implements crawler.Page.
type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu         sync.Mutex
	consoleFns []func(kind, text string)
	response   *crawler.NavigationResult

	// inFlight tracks outstanding network requests for the networkidle
	// wait condition.
	inFlight atomic.Int64
}

func newChromePage(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger) *chromePage {
	p := &chromePage{ctx: ctx, cancel: cancel, logger: logger}

	chromedp.ListenTarget(ctx, func(ev any) {
		switch ev := ev.(type) {
		case *runtime.EventConsoleAPICalled:
			p.dispatchConsole(ev)
		case *network.EventRequestWillBeSent:
			p.inFlight.Add(1)
		case *network.EventLoadingFinished:
			p.inFlight.Add(-1)
		case *network.EventLoadingFailed:
			p.inFlight.Add(-1)
		case *network.EventResponseReceived:
			if ev.Type == network.ResourceTypeDocument {
				p.captureResponse(ev)
			}
		}
	})
	return p
}

// Navigate loads the URL and waits for the configured condition, all
// bounded by the options' timeout.
func (p *chromePage) Navigate(ctx context.Context, url string, opts crawler.NavigationOptions) (*crawler.NavigationResult, error) {
	navCtx := p.ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(navCtx, opts.Timeout)
		defer cancel()
	}

	p.mu.Lock()
	p.response = nil
	p.mu.Unlock()

	tasks := chromedp.Tasks{network.Enable()}
	if len(opts.BlockedPatterns) > 0 {
		tasks = append(tasks, network.SetBlockedURLs(opts.BlockedPatterns))
	}
	if opts.BypassSecurity {
		tasks = append(tasks, page.SetBypassCSP(true))
	}
	if opts.UserAgent != "" {
		tasks = append(tasks, emulation.SetUserAgentOverride(opts.UserAgent))
	}
	tasks = append(tasks, p.navigateAndWait(url, opts.WaitUntil))

	var finalURL string
	tasks = append(tasks, chromedp.Location(&finalURL))

	if err := chromedp.Run(navCtx, tasks); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, err
	}

	p.mu.Lock()
	result := p.response
	p.mu.Unlock()
	if result == nil {
		// Load finished without a captured document response (e.g. an
		// about: page). Synthesize the minimum.
		result = &crawler.NavigationResult{}
	}
	result.FinalURL = finalURL
	return result, nil
}

// navigateAndWait issues the navigation and blocks until the requested
// lifecycle condition fires.
func (p *chromePage) navigateAndWait(url, waitUntil string) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		fired := make(chan struct{})
		var once sync.Once

		listenCtx, stopListening := context.WithCancel(ctx)
		defer stopListening()
		chromedp.ListenTarget(listenCtx, func(ev any) {
			switch ev.(type) {
			case *page.EventDomContentEventFired:
				if waitUntil == "domcontentloaded" {
					once.Do(func() { close(fired) })
				}
			case *page.EventLoadEventFired:
				once.Do(func() { close(fired) })
			}
		})

		_, _, errText, _, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errText != "" {
			return errors.New(errText)
		}

		select {
		case <-fired:
		case <-ctx.Done():
			return ctx.Err()
		}

		if waitUntil == "networkidle" {
			return p.waitNetworkIdle(ctx)
		}
		return nil
	}
}

// waitNetworkIdle blocks until no request has been in flight for the
// quiet window.
func (p *chromePage) waitNetworkIdle(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	quietSince := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if p.inFlight.Load() > 0 {
				quietSince = time.Now()
				continue
			}
			if time.Since(quietSince) >= networkIdleQuiet {
				return nil
			}
		}
	}
}

// SetCookies installs cookies into the tab's browser context.
func (p *chromePage) SetCookies(ctx context.Context, cookies []model.Cookie) error {
	return chromedp.Run(p.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var loc string
		for _, c := range cookies {
			setter := network.SetCookie(c.Name, c.Value).
				WithPath(c.Path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly)
			if c.Domain != "" {
				setter = setter.WithDomain(c.Domain)
			} else {
				// A cookie without a domain binds to the current page.
				if loc == "" {
					if err := chromedp.Location(&loc).Do(ctx); err != nil {
						return err
					}
				}
				setter = setter.WithURL(loc)
			}
			if err := setter.Do(ctx); err != nil {
				return fmt.Errorf("set cookie %s: %w", c.Name, err)
			}
		}
		return nil
	}))
}

// Cookies returns the cookies visible to the tab.
func (p *chromePage) Cookies(ctx context.Context) ([]model.Cookie, error) {
	var out []model.Cookie
	err := chromedp.Run(p.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		out = make([]model.Cookie, 0, len(cookies))
		for _, c := range cookies {
			out = append(out, model.Cookie{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				Secure:   c.Secure,
				HTTPOnly: c.HTTPOnly,
			})
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HTML returns the rendered document markup.
func (p *chromePage) HTML(ctx context.Context) (string, error) {
	var html string
	if err := chromedp.Run(p.ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// ClickAndCollect activates every element matching the selector and
// returns the navigations those activations would have triggered,
// without actually leaving the page. Anchor targets are read directly;
// other elements are clicked with default navigation suppressed and
// window.open captured.
func (p *chromePage) ClickAndCollect(ctx context.Context, selector string) ([]string, error) {
	script := clickCollectScript(selector)

	var urls []string
	if err := chromedp.Run(p.ctx, chromedp.Evaluate(script, &urls)); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(urls))
	out := urls[:0]
	for _, u := range urls {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out, nil
}

// OnConsole registers a listener for browser console output.
func (p *chromePage) OnConsole(fn func(kind, text string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consoleFns = append(p.consoleFns, fn)
}

// Close destroys the tab.
func (p *chromePage) Close() error {
	p.cancel()
	return nil
}

func (p *chromePage) dispatchConsole(ev *runtime.EventConsoleAPICalled) {
	p.mu.Lock()
	fns := append([]func(kind, text string){}, p.consoleFns...)
	p.mu.Unlock()
	if len(fns) == 0 {
		return
	}

	parts := make([]string, 0, len(ev.Args))
	for _, arg := range ev.Args {
		if len(arg.Value) > 0 {
			parts = append(parts, string(arg.Value))
		} else if arg.Description != "" {
			parts = append(parts, arg.Description)
		}
	}
	text := strings.Join(parts, " ")
	for _, fn := range fns {
		fn(string(ev.Type), text)
	}
}

func (p *chromePage) captureResponse(ev *network.EventResponseReceived) {
	headers := make(map[string]string, len(ev.Response.Headers))
	for k, v := range ev.Response.Headers {
		if s, ok := v.(string); ok {
			headers[k] = s
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// Redirect chains emit one document response per hop; the last one
	// is the page the visit actually landed on.
	p.response = &crawler.NavigationResult{
		StatusCode: int(ev.Response.Status),
		Headers:    headers,
	}
}

// clickCollectScript builds the in-page routine for ClickAndCollect.
func clickCollectScript(selector string) string {
	quoted, _ := json.Marshal(selector)
	return fmt.Sprintf(`(() => {
	const urls = [];
	// window.open arguments may be relative; resolve against the page
	// so every recorded URL is absolute. Unparsable values are dropped.
	const record = (u) => {
		if (!u) return;
		try { urls.push(new URL(u, location.href).href); } catch (e) {}
	};
	const origOpen = window.open;
	window.open = (u) => { record(u); return null; };
	try {
		for (const el of document.querySelectorAll(%s)) {
			const anchor = el.closest ? el.closest('a[href]') : null;
			if (anchor) {
				record(anchor.href);
				continue;
			}
			const guard = (e) => {
				e.preventDefault();
				const a = e.target.closest && e.target.closest('a[href]');
				if (a) record(a.href);
			};
			el.addEventListener('click', guard, true);
			el.click();
			el.removeEventListener('click', guard, true);
		}
	} finally {
		window.open = origOpen;
	}
	return urls;
})()`, quoted)
}
