package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/arachne-crawler/arachne/internal/config"
)

// TestBuildConfig tests flag and spec-file merging.
func TestBuildConfig(t *testing.T) {
	t.Parallel()

	t.Run("defaults apply without flags", func(t *testing.T) {
		t.Parallel()

		cmd := NewCrawlCmd()
		cfg, _, err := buildConfig(cmd, []string{"https://example.com/"})
		if err != nil {
			t.Fatalf("build failed: %v", err)
		}
		if len(cfg.StartURLs) != 1 || cfg.StartURLs[0] != "https://example.com/" {
			t.Errorf("start URLs = %v", cfg.StartURLs)
		}
		if cfg.MaxConcurrency != config.DefaultMaxConcurrency {
			t.Errorf("concurrency = %d, want default", cfg.MaxConcurrency)
		}
		if cfg.MaxCrawlingDepth != -1 {
			t.Errorf("depth = %d, want unlimited", cfg.MaxCrawlingDepth)
		}
		if !cfg.Headless {
			t.Error("expected headless by default")
		}
	})

	t.Run("flags override defaults", func(t *testing.T) {
		t.Parallel()

		cmd := NewCrawlCmd()
		mustSet(t, cmd, "max-depth", "3")
		mustSet(t, cmd, "retries", "5")
		mustSet(t, cmd, "navigation-timeout", "90s")
		mustSet(t, cmd, "headful", "true")
		mustSet(t, cmd, "session-policy", "until_failure")
		mustSet(t, cmd, "pseudo-url", "https://example.com/[.*]")

		cfg, _, err := buildConfig(cmd, []string{"https://example.com/"})
		if err != nil {
			t.Fatalf("build failed: %v", err)
		}
		if cfg.MaxCrawlingDepth != 3 {
			t.Errorf("depth = %d, want 3", cfg.MaxCrawlingDepth)
		}
		if cfg.MaxRequestRetries != 5 {
			t.Errorf("retries = %d, want 5", cfg.MaxRequestRetries)
		}
		if cfg.NavigationTimeout != 90*time.Second {
			t.Errorf("navigation timeout = %v, want 90s", cfg.NavigationTimeout)
		}
		if cfg.Headless {
			t.Error("expected headful")
		}
		if cfg.SessionPolicy != config.PolicyUntilFailure {
			t.Errorf("session policy = %q", cfg.SessionPolicy)
		}
		if len(cfg.PseudoURLs) != 1 {
			t.Errorf("pseudo-URLs = %v", cfg.PseudoURLs)
		}
	})

	t.Run("spec file applies and explicit flags win over it", func(t *testing.T) {
		t.Parallel()

		specPath := filepath.Join(t.TempDir(), "crawl.yaml")
		specYAML := `startUrls:
  - https://spec.example/
maxCrawlingDepth: 2
maxConcurrency: 4
sessionPolicy: until_failure
sites:
  spec.example:
    maxDepth: 1
    cookies:
      - name: sid
        value: abc
`
		if err := os.WriteFile(specPath, []byte(specYAML), 0600); err != nil {
			t.Fatalf("write spec: %v", err)
		}

		cmd := NewCrawlCmd()
		mustSet(t, cmd, "spec", specPath)
		mustSet(t, cmd, "concurrency", "8")

		cfg, spec, err := buildConfig(cmd, nil)
		if err != nil {
			t.Fatalf("build failed: %v", err)
		}
		if len(cfg.StartURLs) != 1 || cfg.StartURLs[0] != "https://spec.example/" {
			t.Errorf("start URLs = %v", cfg.StartURLs)
		}
		if cfg.MaxCrawlingDepth != 2 {
			t.Errorf("depth = %d, want spec value 2", cfg.MaxCrawlingDepth)
		}
		if cfg.MaxConcurrency != 8 {
			t.Errorf("concurrency = %d, flag must win over spec", cfg.MaxConcurrency)
		}
		if cfg.SessionPolicy != config.PolicyUntilFailure {
			t.Errorf("session policy = %q, want spec value", cfg.SessionPolicy)
		}

		ov, ok := spec.OverrideFor("spec.example")
		if !ok {
			t.Fatal("expected a site override")
		}
		if ov.MaxDepth == nil || *ov.MaxDepth != 1 {
			t.Errorf("override depth = %v", ov.MaxDepth)
		}
		cookies := initialCookies(cfg, spec)
		if len(cookies) != 1 || cookies[0].Name != "sid" || cookies[0].Domain != "spec.example" {
			t.Errorf("initial cookies = %+v", cookies)
		}
	})

	t.Run("explicit missing spec file is an error", func(t *testing.T) {
		t.Parallel()

		cmd := NewCrawlCmd()
		mustSet(t, cmd, "spec", filepath.Join(t.TempDir(), "missing.yaml"))
		if _, _, err := buildConfig(cmd, []string{"https://example.com/"}); err == nil {
			t.Error("expected an error for a missing explicit spec file")
		}
	})

	t.Run("extraction source file enables diagnostic mode", func(t *testing.T) {
		t.Parallel()

		srcPath := filepath.Join(t.TempDir(), "page_function.js")
		src := "async function pageFunction(context) {\n  debugger;\n  return {};\n}\n"
		if err := os.WriteFile(srcPath, []byte(src), 0600); err != nil {
			t.Fatalf("write source: %v", err)
		}

		cmd := NewCrawlCmd()
		mustSet(t, cmd, "extraction-source-file", srcPath)
		cfg, _, err := buildConfig(cmd, []string{"https://example.com/"})
		if err != nil {
			t.Fatalf("build failed: %v", err)
		}
		if !cfg.DiagnosticMode() {
			t.Error("expected diagnostic mode with a debugger line in the source")
		}
	})
}

// TestBuildConfigValidation tests that built configs pass validation
// rules the crawl relies on.
func TestBuildConfigValidation(t *testing.T) {
	t.Parallel()

	cmd := NewCrawlCmd()
	cfg, _, err := buildConfig(cmd, nil)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if err := cfg.Validate(); !errors.Is(err, config.ErrNoStartURLs) {
		t.Errorf("expected ErrNoStartURLs without arguments, got %v", err)
	}
}

// TestSiteDepthCeiling tests the per-host depth lookup.
func TestSiteDepthCeiling(t *testing.T) {
	t.Parallel()

	t.Run("nil spec yields no lookup", func(t *testing.T) {
		t.Parallel()

		if siteDepthCeiling(nil) != nil {
			t.Error("expected no lookup for a nil spec")
		}
	})

	t.Run("lookup returns the override or negative", func(t *testing.T) {
		t.Parallel()

		depth := 2
		spec := &config.Spec{Sites: map[string]config.SiteOverride{
			"capped.example": {MaxDepth: &depth},
		}}
		fn := siteDepthCeiling(spec)
		if fn == nil {
			t.Fatal("expected a lookup")
		}
		if got := fn("capped.example"); got != 2 {
			t.Errorf("capped host = %d, want 2", got)
		}
		if got := fn("other.example"); got >= 0 {
			t.Errorf("uncapped host = %d, want negative", got)
		}
	})
}

func mustSet(t *testing.T, cmd *cobra.Command, name, value string) {
	t.Helper()
	if err := cmd.Flags().Set(name, value); err != nil {
		t.Fatalf("set flag %s: %v", name, err)
	}
}
