package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/arachne-crawler/arachne/internal/browser"
	"github.com/arachne-crawler/arachne/internal/config"
	"github.com/arachne-crawler/arachne/internal/crawler"
	internallog "github.com/arachne-crawler/arachne/internal/log"
	"github.com/arachne-crawler/arachne/internal/model"
	"github.com/arachne-crawler/arachne/internal/report"
	"github.com/arachne-crawler/arachne/internal/storage"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [start-url...]",
		Short: "Crawl websites breadth-first through a headless browser",
		Long: `Crawl visits the given start URLs and follows discovered links
breadth-first up to the configured depth. Every visited page produces
one record in the local dataset; failed pages are retried a bounded
number of times and then recorded as errors.

Examples:
  # Crawl one site, following same-host links two levels deep
  arachne crawl --pseudo-url "https://example.com/[.*]" --max-depth 2 https://example.com/

  # Use a crawl-spec file and print a Markdown report
  arachne crawl --spec crawl.yaml --markdown

  # Rotate requests across proxies, one identity until it fails
  arachne crawl --proxy http://p1:8080 --proxy http://p2:8080 \
    --session-policy until_failure https://example.com/

Crawl-spec file (.arachne.yaml) example:
  startUrls:
    - https://example.com/
  pseudoUrls:
    - https://example.com/[.*]
  maxCrawlingDepth: 2
  sites:
    example.com:
      maxDepth: 1
      cookies:
        - name: session_id
          value: abc123`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Discovery flags
	cmd.Flags().StringArrayP("pseudo-url", "u", nil,
		"URL pattern discovered links must match; [brackets] enclose regular expressions (repeatable)")
	cmd.Flags().StringP("link-selector", "l", "a",
		"CSS selector for declarative link discovery (empty disables)")
	cmd.Flags().String("click-selector", "",
		"CSS selector for interactive link discovery via element activation")
	cmd.Flags().IntP("max-depth", "d", -1,
		"Maximum crawling depth; 0 visits only the start URLs, negative means unlimited")
	cmd.Flags().Bool("keep-url-fragments", false,
		"Include URL fragments when deduplicating pages")

	// Crawl bounds
	cmd.Flags().IntP("retries", "r", config.DefaultMaxRequestRetries,
		"Maximum retries of a failed page before it becomes an error record")
	cmd.Flags().Int("max-results", 0,
		"Stop dispatching new pages after this many successful results (0 = unlimited)")
	cmd.Flags().IntP("max-pages", "p", 0,
		"Stop after this many processed pages, successes and failures alike (0 = unlimited)")
	cmd.Flags().IntP("concurrency", "b", config.DefaultMaxConcurrency,
		"Number of pages processed in parallel")

	// Timing
	cmd.Flags().Duration("navigation-timeout", config.DefaultNavigationTimeout,
		"Timeout for a single page load")
	cmd.Flags().Duration("extraction-timeout", config.DefaultExtractionTimeout,
		"Timeout for processing a loaded page")
	cmd.Flags().Duration("request-delay", config.DefaultRequestDelay,
		"Minimum spacing between navigations across all workers")
	cmd.Flags().String("wait-until", config.DefaultWaitUntil,
		"Navigation wait condition: load, domcontentloaded, or networkidle")

	// Browser behavior
	cmd.Flags().Bool("ignore-security", false,
		"Disable CSP and CORS enforcement in the page")
	cmd.Flags().Bool("download-media", false,
		"Fetch media resources (images, fonts, audio, video)")
	cmd.Flags().Bool("download-css", false,
		"Fetch stylesheets")
	cmd.Flags().String("user-agent", "",
		"Override the browser User-Agent")
	cmd.Flags().Bool("headful", false,
		"Run the browser with a visible window")
	cmd.Flags().Bool("verbose-browser-log", false,
		"Log browser console output at debug level")
	cmd.Flags().String("extraction-source-file", "",
		"File with the page-processing routine source; a 'debugger;' line switches to diagnostic timeouts")

	// Sessions and proxies
	cmd.Flags().String("session-policy", config.PolicyStandard,
		"Session rotation policy: standard or until_failure")
	cmd.Flags().StringArray("proxy", nil,
		"Proxy URL rotated across session identities (repeatable)")

	// Storage
	cmd.Flags().String("queue-id", "default", "Name of the persistent request queue")
	cmd.Flags().String("dataset-id", "default", "Name of the output dataset")
	cmd.Flags().String("kv-id", "default", "Name of the key-value store")
	cmd.Flags().String("data-dir", "", "Data directory (default: XDG data home)")

	// Configuration file
	cmd.Flags().StringP("spec", "c", "",
		"Crawl-spec file path (default: .arachne.yaml in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, spec, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	jsonReport, _ := cmd.Flags().GetBool("json")
	markdownReport, _ := cmd.Flags().GetBool("markdown")
	if jsonReport && markdownReport {
		return fmt.Errorf("--json and --markdown are mutually exclusive")
	}
	outputPath, _ := cmd.Flags().GetString("output")

	// Set up structured logging with credential sanitization
	verbose := getVerboseFlag(cmd)
	logger := internallog.NewLogger(os.Stderr, verbose || cfg.Verbose)
	slog.SetDefault(logger)

	summary, err := runCrawl(context.Background(), cfg, spec, logger)
	if err != nil {
		return err
	}
	return writeReport(summary, jsonReport, markdownReport, outputPath, verbose)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from the crawl-spec file and cobra
// flags. The file is applied first; explicitly set flags win over it.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, *config.Spec, error) {
	cfg := config.NewConfig()

	specPath, err := cmd.Flags().GetString("spec")
	if err != nil {
		return nil, nil, err
	}

	var spec *config.Spec
	explicitSpec := specPath != ""
	if found := config.FindSpecFile(specPath); found != "" {
		spec, err = config.LoadSpec(found, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load crawl spec %s: %w", found, err)
		}
	} else if explicitSpec {
		return nil, nil, fmt.Errorf("crawl spec file not found: %s", specPath)
	}

	if err := applyFlags(cmd, cfg); err != nil {
		return nil, nil, err
	}

	// Positional arguments are start URLs, appended to any from the spec.
	if len(args) > 0 {
		cfg.StartURLs = append(cfg.StartURLs, args...)
	}
	return cfg, spec, nil
}

// applyFlags copies explicitly set flags onto cfg, leaving spec-file
// values in place for flags the user did not touch.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	stringFlags := map[string]*string{
		"link-selector":  &cfg.LinkSelector,
		"click-selector": &cfg.ClickSelector,
		"wait-until":     &cfg.WaitUntil,
		"user-agent":     &cfg.UserAgent,
		"session-policy": &cfg.SessionPolicy,
		"queue-id":       &cfg.QueueStorageID,
		"dataset-id":     &cfg.DatasetID,
		"kv-id":          &cfg.KeyValueStoreID,
		"data-dir":       &cfg.DataDir,
	}
	for name, dst := range stringFlags {
		if flags.Changed(name) {
			v, err := flags.GetString(name)
			if err != nil {
				return err
			}
			*dst = v
		}
	}

	intFlags := map[string]*int{
		"max-depth":   &cfg.MaxCrawlingDepth,
		"retries":     &cfg.MaxRequestRetries,
		"max-results": &cfg.MaxResultsPerCrawl,
		"max-pages":   &cfg.MaxPagesPerCrawl,
		"concurrency": &cfg.MaxConcurrency,
	}
	for name, dst := range intFlags {
		if flags.Changed(name) {
			v, err := flags.GetInt(name)
			if err != nil {
				return err
			}
			*dst = v
		}
	}

	durationFlags := map[string]*time.Duration{
		"navigation-timeout": &cfg.NavigationTimeout,
		"extraction-timeout": &cfg.ExtractionTimeout,
		"request-delay":      &cfg.RequestDelay,
	}
	for name, dst := range durationFlags {
		if flags.Changed(name) {
			v, err := flags.GetDuration(name)
			if err != nil {
				return err
			}
			*dst = v
		}
	}

	boolFlags := map[string]*bool{
		"keep-url-fragments":  &cfg.KeepURLFragments,
		"ignore-security":     &cfg.IgnoreSecurity,
		"download-media":      &cfg.DownloadMedia,
		"download-css":        &cfg.DownloadCSS,
		"verbose-browser-log": &cfg.VerboseBrowserLog,
	}
	for name, dst := range boolFlags {
		if flags.Changed(name) {
			v, err := flags.GetBool(name)
			if err != nil {
				return err
			}
			*dst = v
		}
	}

	if flags.Changed("headful") {
		headful, err := flags.GetBool("headful")
		if err != nil {
			return err
		}
		cfg.Headless = !headful
	}
	if flags.Changed("pseudo-url") {
		patterns, err := flags.GetStringArray("pseudo-url")
		if err != nil {
			return err
		}
		cfg.PseudoURLs = patterns
	}
	if flags.Changed("proxy") {
		proxies, err := flags.GetStringArray("proxy")
		if err != nil {
			return err
		}
		cfg.ProxyURLs = proxies
	}
	if flags.Changed("extraction-source-file") {
		path, err := flags.GetString("extraction-source-file")
		if err != nil {
			return err
		}
		source, err := os.ReadFile(path) //nolint:gosec // User-provided source path is intentional
		if err != nil {
			return fmt.Errorf("read extraction source: %w", err)
		}
		cfg.ExtractionSource = string(source)
	}
	return nil
}

// runCrawl wires the crawl from its parts and executes it.
func runCrawl(ctx context.Context, cfg *config.Config, spec *config.Spec, logger *slog.Logger) (*model.CrawlSummary, error) {
	logger.Info("starting crawl",
		"startUrls", cfg.StartURLs,
		"maxDepth", cfg.MaxCrawlingDepth,
		"concurrency", cfg.MaxConcurrency,
		"dataDir", cfg.DataDir,
	)

	store, err := storage.Open(cfg.DataDir, storage.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	queue := store.Queue(cfg.QueueStorageID)
	dataset := store.Dataset(cfg.DatasetID)
	kv := store.KeyValueStore(cfg.KeyValueStoreID)

	handledKeys, err := queue.HandledKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load handled keys: %w", err)
	}
	resumedCount, err := dataset.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count dataset: %w", err)
	}
	resumedSucceeded, err := dataset.SucceededCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count dataset successes: %w", err)
	}
	if len(handledKeys) > 0 {
		logger.Info("resuming against existing queue",
			"handledKeys", len(handledKeys),
			"existingRecords", resumedCount,
		)
	}

	patterns, err := crawler.CompilePseudoURLs(cfg.PseudoURLs)
	if err != nil {
		return nil, fmt.Errorf("invalid pseudo-URL: %w", err)
	}

	frontier := crawler.NewFrontier(
		crawler.WithMaxRetries(cfg.MaxRequestRetries),
		crawler.WithMaxDepth(cfg.MaxCrawlingDepth),
		crawler.WithHandledKeys(handledKeys),
	)

	sink := crawler.NewResultSink(dataset,
		crawler.WithMaxResults(cfg.MaxResultsPerCrawl),
		crawler.WithResumedCount(resumedCount),
		crawler.WithResumedSuccesses(resumedSucceeded),
		crawler.WithSinkLogger(logger),
	)

	discoveryOpts := []crawler.DiscoveryOption{
		crawler.WithLinkSelector(cfg.LinkSelector),
		crawler.WithClickSelector(cfg.ClickSelector),
		crawler.WithPatterns(patterns),
		crawler.WithKeepFragments(cfg.KeepURLFragments),
		crawler.WithDiscoveryLogger(logger),
	}
	if ceiling := siteDepthCeiling(spec); ceiling != nil {
		discoveryOpts = append(discoveryOpts, crawler.WithSiteDepthCeiling(ceiling))
	}
	discovery := crawler.NewLinkDiscovery(frontier, discoveryOpts...)

	sessionOpts := []crawler.SessionPoolOption{
		crawler.WithProxies(cfg.ProxyURLs),
		crawler.WithInitialCookies(initialCookies(cfg, spec)),
	}
	var sessions *crawler.SessionPool
	if cfg.SessionPolicy == config.PolicyUntilFailure {
		sessions = crawler.NewUntilFailurePool(sessionOpts...)
	} else {
		sessions = crawler.NewSessionPool(cfg.MaxConcurrency, config.DefaultSessionMaxUsage, sessionOpts...)
	}
	defer sessions.Close()

	engine := browser.NewEngine(
		browser.WithHeadless(cfg.Headless),
		browser.WithUserAgent(cfg.UserAgent),
		browser.WithEngineLogger(logger),
	)
	defer func() { _ = engine.Close() }()

	pipeline := crawler.NewPipeline(cfg, crawler.WithPipelineLogger(logger))
	state := crawler.NewCrawlState()

	env := crawler.Environment{
		RunID:           uuid.NewString(),
		StartedAt:       time.Now().UTC(),
		QueueID:         cfg.QueueStorageID,
		DatasetID:       cfg.DatasetID,
		KeyValueStoreID: cfg.KeyValueStoreID,
	}
	handler := crawler.NewPageHandler(cfg, pipeline, discovery, sink, frontier, state, defaultExtraction,
		crawler.WithHandlerLogger(logger),
		crawler.WithKeyValueStore(kv),
		crawler.WithEnvironment(env),
	)

	c := crawler.NewCrawler(cfg, frontier, sessions, engine, handler, sink,
		crawler.WithCrawlerLogger(logger),
		crawler.WithQueueStore(queue),
	)

	// Graceful shutdown: the first signal goes through the abort path,
	// which stops dispatching while in-flight pages finish and are
	// recorded, and the summary report is still written. A second
	// signal cancels the run context and interrupts in-flight work.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		logger.Info("received shutdown signal, finishing in-flight pages...")
		sink.Abort("interrupted")
		select {
		case <-sigCh:
			logger.Warn("second shutdown signal, interrupting in-flight pages")
			cancel()
		case <-ctx.Done():
		}
	}()

	return c.Run(ctx)
}

// siteDepthCeiling builds the per-host depth lookup from the spec's
// site overrides. Nil when no override carries a depth.
func siteDepthCeiling(spec *config.Spec) func(host string) int {
	if spec == nil {
		return nil
	}
	hasDepth := false
	for _, ov := range spec.Sites {
		if ov.MaxDepth != nil {
			hasDepth = true
			break
		}
	}
	if !hasDepth {
		return nil
	}
	return func(host string) int {
		if ov, ok := spec.OverrideFor(host); ok && ov.MaxDepth != nil {
			return *ov.MaxDepth
		}
		return -1
	}
}

// initialCookies merges the configured initial cookies with site
// override cookies for the start URL hosts.
func initialCookies(cfg *config.Config, spec *config.Spec) []model.Cookie {
	cookies := append([]model.Cookie(nil), cfg.InitialCookies...)
	if spec == nil {
		return cookies
	}
	for _, raw := range cfg.StartURLs {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		ov, ok := spec.OverrideFor(u.Hostname())
		if !ok {
			continue
		}
		for _, c := range ov.Cookies {
			if c.Domain == "" {
				c.Domain = u.Hostname()
			}
			cookies = append(cookies, c)
		}
	}
	return cookies
}

// writeReport renders the crawl summary to stdout and, optionally, a
// file.
func writeReport(summary *model.CrawlSummary, jsonFormat, markdownFormat bool, outputPath string, verbose bool) error {
	writers := []report.Writer{newReportWriter(os.Stdout, jsonFormat, markdownFormat, verbose)}

	if outputPath != "" {
		if dir := filepath.Dir(outputPath); dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create report directory: %w", err)
			}
		}
		f, err := os.Create(outputPath) //nolint:gosec // User-provided report path is intentional
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer func() { _ = f.Close() }()
		writers = append(writers, newReportWriter(f, jsonFormat, markdownFormat, verbose))
	}

	_, err := report.NewMultiWriter(writers...).Write(summary)
	return err
}

func newReportWriter(dst *os.File, jsonFormat, markdownFormat, verbose bool) report.Writer {
	switch {
	case jsonFormat:
		return report.NewJSONWriter(dst, report.WithIndent("", "  "))
	case markdownFormat:
		return report.NewMarkdownWriter(dst)
	default:
		return report.NewSimpleWriter(dst, report.WithVerbose(verbose))
	}
}
