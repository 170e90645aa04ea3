package model

import (
	"net/url"
	"sort"
	"strings"
)

// UserData carries the lineage metadata attached to every visit.
// Depth is the BFS distance from a seed URL; ParentID identifies the
// visit whose page discovered this one.
type UserData struct {
	// ParentID is the ID of the visit that discovered this URL.
	// Empty for seed visits. When the parent had no ID assigned yet
	// (manual enqueue before frontier admission), this falls back to
	// the parent's unique key.
	ParentID string `json:"parentId,omitempty"`

	// Depth is the BFS distance from the seed set. Seed visits have
	// depth 0; every discovered child has the parent's depth plus one.
	Depth int `json:"depth"`

	// Values holds arbitrary user-attached data that travels with the
	// visit through retries. It is never interpreted by the orchestrator.
	Values map[string]any `json:"values,omitempty"`
}

// Visit is one scheduled page fetch-and-process unit.
// The frontier owns the visit lifecycle: a visit is created on enqueue
// and discarded on terminal completion (success or exhausted failure).
type Visit struct {
	// ID is a stable identifier assigned when the frontier admits the
	// visit. It is preferred over UniqueKey for lineage references.
	ID string `json:"id"`

	// URL is the page to load, exactly as discovered or configured.
	URL string `json:"url"`

	// UniqueKey is derived from the normalized URL and deduplicates
	// visits within the frontier. No two pending or in-flight visits
	// share a key.
	UniqueKey string `json:"uniqueKey"`

	// UserData carries depth and lineage metadata.
	UserData UserData `json:"userData"`

	// RetryCount is the number of times this visit has been re-admitted
	// after a retryable failure.
	RetryCount int `json:"retryCount"`

	// ErrorMessages records every failure in order. The last entry is
	// used as the payload of a terminal error record.
	ErrorMessages []string `json:"errorMessages,omitempty"`
}

// NewVisit creates a visit for the given URL at the given depth.
// The unique key is computed with fragments stripped; callers that keep
// fragments build the key with UniqueKey directly.
func NewVisit(rawURL string, depth int) *Visit {
	return &Visit{
		URL:       rawURL,
		UniqueKey: UniqueKey(rawURL, false),
		UserData:  UserData{Depth: depth},
	}
}

// LineageID returns the identifier children of this visit should record
// as their parent: the stable ID when assigned, otherwise the unique key.
func (v *Visit) LineageID() string {
	if v.ID != "" {
		return v.ID
	}
	return v.UniqueKey
}

// LastError returns the most recent recorded error message, or an
// empty string when the visit never failed.
func (v *Visit) LastError() string {
	if len(v.ErrorMessages) == 0 {
		return ""
	}
	return v.ErrorMessages[len(v.ErrorMessages)-1]
}

// UniqueKey computes the deduplication key for a URL.
//
// Normalization rules:
//   - scheme and host are lowercased
//   - the fragment is dropped unless keepFragment is true
//   - an empty path becomes "/" (http://a.com and http://a.com/ are one page)
//   - query parameters are sorted so parameter order does not defeat dedup
//
// Unparsable URLs fall back to the trimmed, lowercased raw string so that
// dedup still applies to byte-identical garbage.
func UniqueKey(rawURL string, keepFragment bool) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(rawURL))
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if !keepFragment {
		u.Fragment = ""
	}
	if u.Path == "" {
		u.Path = "/"
	}

	if u.RawQuery != "" {
		query := u.Query()
		keys := make([]string, 0, len(query))
		for k := range query {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		values := url.Values{}
		for _, k := range keys {
			values[k] = query[k]
		}
		u.RawQuery = values.Encode()
	}

	return u.String()
}
