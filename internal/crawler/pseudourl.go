package crawler

import (
	"fmt"
	"regexp"
	"strings"
)

// PseudoURL is a URL pattern where substrings wrapped in brackets are
// regular expressions and everything outside matches literally:
//
//	https://example.com/[(articles|news)]/[.*]
//
// matches https://example.com/articles/2024/story but not
// https://example.com/about. A pattern without brackets is a literal
// match. Matching is case-insensitive on the literal parts, mirroring
// how URLs are compared after key normalization.
type PseudoURL struct {
	source string
	re     *regexp.Regexp
}

// CompilePseudoURL parses a pseudo-URL pattern. Unbalanced brackets or
// an invalid embedded regular expression are configuration errors.
func CompilePseudoURL(pattern string) (*PseudoURL, error) {
	var sb strings.Builder
	sb.WriteString("(?i)^")

	rest := pattern
	for {
		open := strings.IndexByte(rest, '[')
		if open < 0 {
			sb.WriteString(regexp.QuoteMeta(rest))
			break
		}
		close := strings.IndexByte(rest[open:], ']')
		if close < 0 {
			return nil, fmt.Errorf("pseudo-URL %q: unbalanced brackets", pattern)
		}
		close += open

		sb.WriteString(regexp.QuoteMeta(rest[:open]))
		sb.WriteString("(?:")
		sb.WriteString(rest[open+1 : close])
		sb.WriteString(")")
		rest = rest[close+1:]
	}
	sb.WriteString("$")

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, fmt.Errorf("pseudo-URL %q: %w", pattern, err)
	}
	return &PseudoURL{source: pattern, re: re}, nil
}

// CompilePseudoURLs compiles a pattern list, failing on the first bad
// pattern.
func CompilePseudoURLs(patterns []string) ([]*PseudoURL, error) {
	out := make([]*PseudoURL, 0, len(patterns))
	for _, p := range patterns {
		compiled, err := CompilePseudoURL(p)
		if err != nil {
			return nil, err
		}
		out = append(out, compiled)
	}
	return out, nil
}

// Match reports whether the URL satisfies the pattern.
func (p *PseudoURL) Match(url string) bool {
	return p.re.MatchString(url)
}

// String returns the original pattern text.
func (p *PseudoURL) String() string {
	return p.source
}

// matchesAny reports whether url matches at least one pattern. An
// empty pattern list follows everything.
func matchesAny(patterns []*PseudoURL, url string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if p.Match(url) {
			return true
		}
	}
	return false
}
