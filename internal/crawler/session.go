package crawler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arachne-crawler/arachne/internal/model"
)

// Session is one rotating network identity: a cookie jar plus an
// optional proxy binding. A session is never assigned to more than one
// concurrent worker, and once its usage count reaches the cap it is
// retired and never reused.
type Session struct {
	// ID identifies the session in logs and lineage.
	ID string

	// UsageCount is the number of visits this session has served.
	UsageCount int

	// MaxUsageCount is the policy-derived usage cap. Zero means
	// unlimited (until-failure policy).
	MaxUsageCount int

	// Cookies is the session's cookie jar. The navigation pipeline
	// merges these into the page before every load and folds updated
	// cookies back after.
	Cookies []model.Cookie

	// Proxy is the bound upstream proxy URL, empty for direct
	// connections.
	Proxy string

	retired bool
}

// MergeCookies folds cookies into the jar, replacing same-name
// same-domain entries and appending new ones.
func (s *Session) MergeCookies(cookies []model.Cookie) {
	for _, c := range cookies {
		replaced := false
		for i, existing := range s.Cookies {
			if existing.Name == c.Name && existing.Domain == c.Domain {
				s.Cookies[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			s.Cookies = append(s.Cookies, c)
		}
	}
}

// exhausted reports whether the session has reached its usage cap.
func (s *Session) exhausted() bool {
	return s.MaxUsageCount > 0 && s.UsageCount >= s.MaxUsageCount
}

// SessionPool manages the bounded set of live sessions. Acquire blocks
// when the pool is at capacity with every session checked out; that is
// the concurrency admission mechanism, not an error.
type SessionPool struct {
	mu   sync.Mutex
	cond *sync.Cond

	free []*Session
	live int

	capacity       int
	maxUsage       int
	retireOnError  bool
	proxies        []string
	nextProxy      int
	initialCookies []model.Cookie
	closed         bool
}

// SessionPoolOption configures a SessionPool.
type SessionPoolOption func(*SessionPool)

// WithProxies sets the proxy URLs rotated across new sessions.
func WithProxies(proxies []string) SessionPoolOption {
	return func(p *SessionPool) {
		p.proxies = proxies
	}
}

// WithInitialCookies seeds every fresh session's cookie jar.
func WithInitialCookies(cookies []model.Cookie) SessionPoolOption {
	return func(p *SessionPool) {
		p.initialCookies = cookies
	}
}

// NewSessionPool creates a pool for the standard rotation policy:
// size bounded by capacity, each session retired after maxUsage visits.
func NewSessionPool(capacity, maxUsage int, opts ...SessionPoolOption) *SessionPool {
	p := &SessionPool{
		capacity: capacity,
		maxUsage: maxUsage,
	}
	p.cond = sync.NewCond(&p.mu)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewUntilFailurePool creates a pool for the until-failure rotation
// policy: capacity one, unlimited usage, and the identity is replaced
// only after a visit fails on it.
func NewUntilFailurePool(opts ...SessionPoolOption) *SessionPool {
	p := NewSessionPool(1, 0, opts...)
	p.retireOnError = true
	return p
}

// Acquire returns an available session, creating one when the pool is
// below capacity. It blocks until a session frees up when the pool is
// at capacity, or returns the context error on cancellation.
func (p *SessionPool) Acquire(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	const wakeInterval = time.Second

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if p.closed {
			return nil, ErrPoolClosed
		}

		// Drop retired or exhausted sessions waiting in the free list.
		kept := p.free[:0]
		for _, s := range p.free {
			if s.retired || s.exhausted() {
				p.live--
				continue
			}
			kept = append(kept, s)
		}
		p.free = kept

		if len(p.free) > 0 {
			s := p.free[0]
			p.free = p.free[1:]
			s.UsageCount++
			return s, nil
		}

		if p.live < p.capacity {
			s := p.newSession()
			p.live++
			s.UsageCount++
			return s, nil
		}

		timer := time.AfterFunc(wakeInterval, p.cond.Broadcast)
		p.cond.Wait()
		timer.Stop()
	}
}

// Release returns a session to the pool. With success=false the pool
// may retire the identity early: always under the until-failure
// policy, where a failure is the rotation trigger.
func (p *SessionPool) Release(s *Session, success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !success && p.retireOnError {
		s.retired = true
	}
	if s.retired || s.exhausted() {
		p.live--
		p.cond.Broadcast()
		return
	}

	p.free = append(p.free, s)
	p.cond.Signal()
}

// Retire marks a session unusable regardless of its usage count, for
// callers that detect a blocked identity mid-visit.
func (p *SessionPool) Retire(s *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s.retired = true
}

// Close wakes all blocked Acquire calls.
func (p *SessionPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
}

// Live returns the number of sessions currently alive (free or
// checked out).
func (p *SessionPool) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

// newSession builds a fresh identity. Caller holds the lock.
func (p *SessionPool) newSession() *Session {
	s := &Session{
		ID:            uuid.NewString(),
		MaxUsageCount: p.maxUsage,
		Cookies:       append([]model.Cookie(nil), p.initialCookies...),
	}
	if len(p.proxies) > 0 {
		s.Proxy = p.proxies[p.nextProxy%len(p.proxies)]
		p.nextProxy++
	}
	return s
}
