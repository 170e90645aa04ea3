package crawler

import "sync"

// CrawlState is the process-lifetime mutable store shared by every
// extraction routine in a crawl run. It is created at crawl start and
// discarded at crawl end; nothing is persisted unless the routine
// writes through the key-value store collaborator explicitly.
//
// Individual operations are safe for concurrent use, but there is no
// atomicity across operations: two routines running in parallel can
// interleave Get and Set arbitrarily. Consistency requirements beyond
// best-effort belong in the extraction routine itself.
type CrawlState struct {
	mu     sync.Mutex
	values map[string]any
}

// NewCrawlState creates an empty state store.
func NewCrawlState() *CrawlState {
	return &CrawlState{values: make(map[string]any)}
}

// Get returns the value stored under key, and whether it was present.
func (s *CrawlState) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key, replacing any previous value.
func (s *CrawlState) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Delete removes key.
func (s *CrawlState) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Snapshot returns a shallow copy of the current contents. Values are
// not deep-copied; mutating a referenced value still races with other
// workers.
func (s *CrawlState) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Len returns the number of stored keys.
func (s *CrawlState) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}
