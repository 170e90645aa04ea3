package crawler

import "testing"

// TestCompilePseudoURL tests pattern compilation and matching.
func TestCompilePseudoURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pattern string
		url     string
		want    bool
	}{
		{
			name:    "literal pattern matches exactly",
			pattern: "https://example.com/about",
			url:     "https://example.com/about",
			want:    true,
		},
		{
			name:    "literal pattern rejects a different path",
			pattern: "https://example.com/about",
			url:     "https://example.com/contact",
			want:    false,
		},
		{
			name:    "literal matching is case-insensitive",
			pattern: "https://example.com/about",
			url:     "https://EXAMPLE.com/About",
			want:    true,
		},
		{
			name:    "bracket segment is a regular expression",
			pattern: "https://example.com/[(articles|news)]/[.*]",
			url:     "https://example.com/articles/2024/story",
			want:    true,
		},
		{
			name:    "bracket segment rejects non-matching section",
			pattern: "https://example.com/[(articles|news)]/[.*]",
			url:     "https://example.com/shop/item",
			want:    false,
		},
		{
			name:    "pattern is anchored at both ends",
			pattern: "https://example.com/[\\d+]",
			url:     "https://example.com/123/trailing",
			want:    false,
		},
		{
			name:    "literal dots do not act as wildcards",
			pattern: "https://example.com/page",
			url:     "https://exampleXcom/page",
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, err := CompilePseudoURL(tt.pattern)
			if err != nil {
				t.Fatalf("compile failed: %v", err)
			}
			if got := p.Match(tt.url); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}

	t.Run("unbalanced brackets fail compilation", func(t *testing.T) {
		t.Parallel()

		if _, err := CompilePseudoURL("https://example.com/[broken"); err == nil {
			t.Error("expected an error for unbalanced brackets")
		}
	})

	t.Run("invalid embedded regexp fails compilation", func(t *testing.T) {
		t.Parallel()

		if _, err := CompilePseudoURL("https://example.com/[(]"); err == nil {
			t.Error("expected an error for an invalid embedded regexp")
		}
	})
}

// TestMatchesAny tests the allow-list semantics.
func TestMatchesAny(t *testing.T) {
	t.Parallel()

	t.Run("empty list follows everything", func(t *testing.T) {
		t.Parallel()

		if !matchesAny(nil, "https://anywhere.example/page") {
			t.Error("expected an empty pattern list to match everything")
		}
	})

	t.Run("one match suffices", func(t *testing.T) {
		t.Parallel()

		patterns, err := CompilePseudoURLs([]string{
			"https://other.example/[.*]",
			"https://example.com/[.*]",
		})
		if err != nil {
			t.Fatalf("compile failed: %v", err)
		}
		if !matchesAny(patterns, "https://example.com/page") {
			t.Error("expected a match against the second pattern")
		}
		if matchesAny(patterns, "https://unrelated.example/page") {
			t.Error("expected no match for an unrelated host")
		}
	})
}
