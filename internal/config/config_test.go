package config

import (
	"errors"
	"testing"
	"time"
)

// TestNewConfig tests that the constructor applies defaults.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	if cfg.MaxConcurrency != DefaultMaxConcurrency {
		t.Errorf("MaxConcurrency = %d, want %d", cfg.MaxConcurrency, DefaultMaxConcurrency)
	}
	if cfg.MaxRequestRetries != DefaultMaxRequestRetries {
		t.Errorf("MaxRequestRetries = %d, want %d", cfg.MaxRequestRetries, DefaultMaxRequestRetries)
	}
	if cfg.MaxCrawlingDepth != -1 {
		t.Errorf("MaxCrawlingDepth = %d, want unlimited", cfg.MaxCrawlingDepth)
	}
	if cfg.NavigationTimeout != DefaultNavigationTimeout {
		t.Errorf("NavigationTimeout = %v, want %v", cfg.NavigationTimeout, DefaultNavigationTimeout)
	}
	if cfg.WaitUntil != DefaultWaitUntil {
		t.Errorf("WaitUntil = %q, want %q", cfg.WaitUntil, DefaultWaitUntil)
	}
	if cfg.SessionPolicy != PolicyStandard {
		t.Errorf("SessionPolicy = %q, want %q", cfg.SessionPolicy, PolicyStandard)
	}
	if !cfg.Headless {
		t.Error("expected headless by default")
	}
	if cfg.DataDir == "" {
		t.Error("expected a default data directory")
	}
}

// TestConfigValidate tests the validation rules.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		cfg := NewConfig()
		cfg.StartURLs = []string{"https://example.com/"}
		return cfg
	}

	t.Run("valid config passes", func(t *testing.T) {
		t.Parallel()

		if err := valid().Validate(); err != nil {
			t.Errorf("Validate() = %v, want nil", err)
		}
	})

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{
			name:   "empty seed set",
			mutate: func(c *Config) { c.StartURLs = nil },
			want:   ErrNoStartURLs,
		},
		{
			name:   "zero concurrency",
			mutate: func(c *Config) { c.MaxConcurrency = 0 },
			want:   ErrInvalidConcurrency,
		},
		{
			name:   "negative retries",
			mutate: func(c *Config) { c.MaxRequestRetries = -1 },
			want:   ErrInvalidRetries,
		},
		{
			name:   "zero navigation timeout",
			mutate: func(c *Config) { c.NavigationTimeout = 0 },
			want:   ErrInvalidTimeout,
		},
		{
			name:   "negative extraction timeout",
			mutate: func(c *Config) { c.ExtractionTimeout = -time.Second },
			want:   ErrInvalidTimeout,
		},
		{
			name:   "negative request delay",
			mutate: func(c *Config) { c.RequestDelay = -time.Second },
			want:   ErrInvalidRequestDelay,
		},
		{
			name:   "negative result cap",
			mutate: func(c *Config) { c.MaxResultsPerCrawl = -1 },
			want:   ErrInvalidCap,
		},
		{
			name:   "negative page cap",
			mutate: func(c *Config) { c.MaxPagesPerCrawl = -1 },
			want:   ErrInvalidCap,
		},
		{
			name:   "unknown session policy",
			mutate: func(c *Config) { c.SessionPolicy = "round_robin" },
			want:   ErrUnknownSessionPolicy,
		},
		{
			name:   "unknown wait condition",
			mutate: func(c *Config) { c.WaitUntil = "idle" },
			want:   ErrUnknownWaitCondition,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}

	t.Run("zero retries is a single attempt, not an error", func(t *testing.T) {
		t.Parallel()

		cfg := valid()
		cfg.MaxRequestRetries = 0
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() = %v, want nil", err)
		}
	})

	t.Run("negative depth means unlimited", func(t *testing.T) {
		t.Parallel()

		cfg := valid()
		cfg.MaxCrawlingDepth = -1
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() = %v, want nil", err)
		}
	})
}

// TestDiagnosticMode tests breakpoint-marker detection in the
// extraction routine source.
func TestDiagnosticMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		source string
		want   bool
	}{
		{
			name:   "empty source",
			source: "",
			want:   false,
		},
		{
			name:   "no marker",
			source: "async function pageFunction(context) {\n  return {};\n}\n",
			want:   false,
		},
		{
			name:   "marker on its own line",
			source: "async function pageFunction(context) {\n  debugger;\n  return {};\n}\n",
			want:   true,
		},
		{
			name:   "marker inside a line comment is ignored",
			source: "async function pageFunction(context) {\n  // debugger;\n  return {};\n}\n",
			want:   false,
		},
		{
			name:   "marker after code on the same line",
			source: "function f() { debugger; }\n",
			want:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := NewConfig()
			cfg.ExtractionSource = tt.source
			if got := cfg.DiagnosticMode(); got != tt.want {
				t.Errorf("DiagnosticMode() = %v, want %v", got, tt.want)
			}
		})
	}
}
