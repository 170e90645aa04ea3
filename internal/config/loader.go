package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arachne-crawler/arachne/internal/model"
)

// DefaultSpecFile is the default crawl-spec file name.
const DefaultSpecFile = ".arachne.yaml"

// ErrSpecNotFound is returned when the crawl-spec file does not exist.
// Callers decide whether that is fatal based on whether the path was
// given explicitly.
var ErrSpecNotFound = errors.New("crawl spec file not found")

// SiteOverride customizes crawl behavior for a single host.
type SiteOverride struct {
	// Cookies are injected in addition to the session cookies when a
	// visit targets this host.
	Cookies []model.Cookie `yaml:"cookies,omitempty"`

	// MaxDepth overrides the global crawling depth for links discovered
	// on this host. Nil means use the global ceiling.
	MaxDepth *int `yaml:"maxDepth,omitempty"`
}

// Spec is the YAML representation of a crawl. Every field maps onto the
// fixed configuration surface; unknown keys are rejected so typos fail
// fast instead of silently configuring nothing.
type Spec struct {
	StartURLs         []string       `yaml:"startUrls"`
	PseudoURLs        []string       `yaml:"pseudoUrls,omitempty"`
	LinkSelector      string         `yaml:"linkSelector,omitempty"`
	ClickSelector     string         `yaml:"clickSelector,omitempty"`
	ExtractionSource  string         `yaml:"extractionSource,omitempty"`
	MaxRequestRetries *int           `yaml:"maxRequestRetries,omitempty"`
	MaxResults        *int           `yaml:"maxResultsPerCrawl,omitempty"`
	MaxPages          *int           `yaml:"maxPagesPerCrawl,omitempty"`
	MaxDepth          *int           `yaml:"maxCrawlingDepth,omitempty"`
	MaxConcurrency    *int           `yaml:"maxConcurrency,omitempty"`
	NavigationTimeout *time.Duration `yaml:"navigationTimeout,omitempty"`
	ExtractionTimeout *time.Duration `yaml:"extractionTimeout,omitempty"`
	RequestDelay      *time.Duration `yaml:"requestDelay,omitempty"`
	InitialCookies    []model.Cookie `yaml:"initialCookies,omitempty"`
	WaitUntil         string         `yaml:"waitUntil,omitempty"`
	IgnoreSecurity    *bool          `yaml:"ignoreSecurity,omitempty"`
	DownloadMedia     *bool          `yaml:"downloadMedia,omitempty"`
	DownloadCSS       *bool          `yaml:"downloadCss,omitempty"`
	SessionPolicy     string         `yaml:"sessionPolicy,omitempty"`
	ProxyURLs         []string       `yaml:"proxyUrls,omitempty"`
	KeepURLFragments  *bool          `yaml:"keepUrlFragments,omitempty"`
	QueueStorageID    string         `yaml:"queueStorageId,omitempty"`
	DatasetID         string         `yaml:"datasetId,omitempty"`
	KeyValueStoreID   string         `yaml:"keyValueStoreId,omitempty"`
	CustomData        map[string]any `yaml:"customData,omitempty"`

	// Sites maps hostnames to site-specific overrides.
	Sites map[string]SiteOverride `yaml:"sites,omitempty"`
}

// LoadSpec reads a crawl-spec file and merges it into cfg. Values set
// in the file win over defaults; values absent from the file leave cfg
// untouched, so CLI flags applied afterwards still take precedence.
func LoadSpec(path string, cfg *Config) (*Spec, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided spec path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSpecNotFound
		}
		return nil, err
	}

	var spec Spec
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, err
	}

	spec.apply(cfg)
	cfg.SpecFilePath = path
	return &spec, nil
}

// FindSpecFile resolves the crawl-spec file path:
//  1. an explicit path is used as-is (empty result if it is missing)
//  2. .arachne.yaml in the current directory
//  3. .arachne.yaml in the user's home directory
func FindSpecFile(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		candidate := filepath.Join(cwd, DefaultSpecFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		candidate := filepath.Join(home, DefaultSpecFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return ""
}

// apply copies the spec's set fields onto cfg.
func (s *Spec) apply(cfg *Config) {
	if len(s.StartURLs) > 0 {
		cfg.StartURLs = s.StartURLs
	}
	if len(s.PseudoURLs) > 0 {
		cfg.PseudoURLs = s.PseudoURLs
	}
	if s.LinkSelector != "" {
		cfg.LinkSelector = s.LinkSelector
	}
	if s.ClickSelector != "" {
		cfg.ClickSelector = s.ClickSelector
	}
	if s.ExtractionSource != "" {
		cfg.ExtractionSource = s.ExtractionSource
	}
	if s.MaxRequestRetries != nil {
		cfg.MaxRequestRetries = *s.MaxRequestRetries
	}
	if s.MaxResults != nil {
		cfg.MaxResultsPerCrawl = *s.MaxResults
	}
	if s.MaxPages != nil {
		cfg.MaxPagesPerCrawl = *s.MaxPages
	}
	if s.MaxDepth != nil {
		cfg.MaxCrawlingDepth = *s.MaxDepth
	}
	if s.MaxConcurrency != nil {
		cfg.MaxConcurrency = *s.MaxConcurrency
	}
	if s.NavigationTimeout != nil {
		cfg.NavigationTimeout = *s.NavigationTimeout
	}
	if s.ExtractionTimeout != nil {
		cfg.ExtractionTimeout = *s.ExtractionTimeout
	}
	if s.RequestDelay != nil {
		cfg.RequestDelay = *s.RequestDelay
	}
	if len(s.InitialCookies) > 0 {
		cfg.InitialCookies = s.InitialCookies
	}
	if s.WaitUntil != "" {
		cfg.WaitUntil = s.WaitUntil
	}
	if s.IgnoreSecurity != nil {
		cfg.IgnoreSecurity = *s.IgnoreSecurity
	}
	if s.DownloadMedia != nil {
		cfg.DownloadMedia = *s.DownloadMedia
	}
	if s.DownloadCSS != nil {
		cfg.DownloadCSS = *s.DownloadCSS
	}
	if s.SessionPolicy != "" {
		cfg.SessionPolicy = s.SessionPolicy
	}
	if len(s.ProxyURLs) > 0 {
		cfg.ProxyURLs = s.ProxyURLs
	}
	if s.KeepURLFragments != nil {
		cfg.KeepURLFragments = *s.KeepURLFragments
	}
	if s.QueueStorageID != "" {
		cfg.QueueStorageID = s.QueueStorageID
	}
	if s.DatasetID != "" {
		cfg.DatasetID = s.DatasetID
	}
	if s.KeyValueStoreID != "" {
		cfg.KeyValueStoreID = s.KeyValueStoreID
	}
	if len(s.CustomData) > 0 {
		cfg.CustomData = s.CustomData
	}
}

// OverrideFor returns the site override for a hostname, if any.
func (s *Spec) OverrideFor(host string) (SiteOverride, bool) {
	if s == nil || s.Sites == nil {
		return SiteOverride{}, false
	}
	ov, ok := s.Sites[host]
	return ov, ok
}
