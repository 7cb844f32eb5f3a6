package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/nao1215/focuscrawl/internal/config"
	"github.com/nao1215/focuscrawl/internal/crawler"
	"github.com/nao1215/focuscrawl/internal/database"
	"github.com/nao1215/focuscrawl/internal/fetch"
	"github.com/nao1215/focuscrawl/internal/frontier"
	"github.com/nao1215/focuscrawl/internal/log"
	"github.com/nao1215/focuscrawl/internal/model"
	"github.com/nao1215/focuscrawl/internal/report"
	"github.com/nao1215/focuscrawl/internal/robots"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [seed-url...]",
		Short: "Crawl the web from seed urls, most relevant pages first",
		Long: `Crawl fetches pages starting from the seed urls. Discovered links are
queued by relevance to the --term values, distance from a seed and the
number of crawled pages linking to them, and the best-scoring link is
always fetched next.

The crawl stops after --hits pages, when no links are left, or on Ctrl-C.
Whatever was crawled is always written out:
  results_N.txt          TREC documents (--chunk-size pages per file)
  links_N.txt            "source target" lines for the same pages
  unprocessed_links.txt  queued urls never fetched, with their inlinks

Examples:
  # Crawl 200 pages about solar power
  focuscrawl crawl -t "solar power" -t photovoltaic -n 200 https://en.wikipedia.org/wiki/Solar_power

  # Resume from the urls a previous run never reached
  focuscrawl crawl -t solar --seeds-file out/unprocessed_links.txt -o out2

  # Gentle crawl: 4 workers, at most 2 requests per second overall
  focuscrawl crawl -t solar -w 4 --rate 2 https://example.org/

  # Print the run report as Markdown
  focuscrawl crawl -t solar --markdown https://example.org/ > report.md`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Relevance and scope
	cmd.Flags().StringArrayP("term", "t", nil,
		"Relevance term (repeatable; multi-word terms allowed)")
	cmd.Flags().StringArray("exclude-domain", nil,
		"Host never to crawl (repeatable)")
	cmd.Flags().String("seeds-file", "",
		"Read additional seed urls from a file (one per line, e.g. unprocessed_links.txt)")

	// Crawl loop
	cmd.Flags().IntP("hits", "n", config.DefaultTargetHits,
		"Number of pages to crawl")
	cmd.Flags().IntP("workers", "w", config.DefaultWorkers,
		"Number of concurrent fetch workers")
	cmd.Flags().Int("domain-cap", config.DefaultDomainVisitCap,
		"Pages fetched from one host before it is skipped")
	cmd.Flags().Int("rescore-batch", config.DefaultRescoreBatch,
		"Frontier updates that trigger a full priority rebuild")
	cmd.Flags().Int("max-redirects", config.DefaultMaxRedirects,
		"Redirect hops followed per url")
	cmd.Flags().Duration("timeout", config.DefaultRequestTimeout,
		"Timeout for each page request")
	cmd.Flags().Duration("robots-timeout", config.DefaultRobotsTimeout,
		"Timeout for each robots.txt request")
	cmd.Flags().Duration("backoff", config.DefaultBackoff,
		"Pause of a worker after a rejected url")
	cmd.Flags().Float64("rate", 0,
		"Global request rate limit in requests per second (0 disables)")
	cmd.Flags().String("user-agent", fetch.DefaultUserAgent,
		"User-Agent header, also matched against robots.txt")
	cmd.Flags().Bool("any-language", false,
		"Accept pages in any Content-Language (default: English only)")

	// Output
	cmd.Flags().StringP("output", "o", config.DefaultOutputDir,
		"Directory for TREC results, link files and the unprocessed list")
	cmd.Flags().Int("chunk-size", config.DefaultChunkSize,
		"Pages per results/links file")
	cmd.Flags().BoolP("json", "j", false,
		"Print the run report as JSON (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Print the run report as Markdown (mutually exclusive with --json)")
	cmd.Flags().String("report", "",
		"Write the run report to a file instead of stdout")
	cmd.Flags().Bool("no-db", false,
		"Do not record the run in the database")
	cmd.Flags().String("db-dir", "",
		"Database directory (default: XDG data directory)")
	cmd.Flags().String("log-file", "",
		"Write logs to a rotated file instead of stderr")
	cmd.Flags().Bool("progress", false,
		"Show a progress bar on stderr")

	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .focuscrawl in current or home directory)")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger, closeLog := setupLogger(cfg)
	defer closeLog()
	slog.SetDefault(logger)

	showProgress, err := cmd.Flags().GetBool("progress")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal, writing partial results...")
			cancel()
		case <-ctx.Done():
		}
	}()

	var progress io.Writer
	if showProgress {
		progress = os.Stderr
	}
	return runCrawl(ctx, cfg, logger, cmd.OutOrStdout(), progress)
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

// buildConfig creates a Config from defaults, the project file and the
// command flags, in that order.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	cfg.ConfigFilePath, err = flags.GetString("config")
	if err != nil {
		return nil, err
	}

	// An explicit path that does not exist is an error; a missing default
	// file is not.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		cf, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		cf.Apply(cfg)
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	}

	// Seeds from arguments come first so they get the earliest discovery
	// order among wave-1 ties.
	cfg.Seeds = append(append([]string{}, args...), cfg.Seeds...)

	seedsFile, err := flags.GetString("seeds-file")
	if err != nil {
		return nil, err
	}
	if seedsFile != "" {
		urls, err := report.ReadUnprocessed(seedsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read seeds file: %w", err)
		}
		cfg.Seeds = append(cfg.Seeds, urls...)
	}

	terms, err := flags.GetStringArray("term")
	if err != nil {
		return nil, err
	}
	cfg.Terms = append(terms, cfg.Terms...)

	excluded, err := flags.GetStringArray("exclude-domain")
	if err != nil {
		return nil, err
	}
	cfg.ExcludeDomains = append(cfg.ExcludeDomains, excluded...)

	// Flags override the file only when given explicitly.
	intFlags := map[string]*int{
		"hits":          &cfg.TargetHits,
		"workers":       &cfg.Workers,
		"domain-cap":    &cfg.DomainVisitCap,
		"rescore-batch": &cfg.RescoreBatch,
		"max-redirects": &cfg.MaxRedirects,
		"chunk-size":    &cfg.ChunkSize,
	}
	for name, dst := range intFlags {
		if !flags.Changed(name) {
			continue
		}
		if *dst, err = flags.GetInt(name); err != nil {
			return nil, err
		}
	}

	durationFlags := map[string]*time.Duration{
		"timeout":        &cfg.RequestTimeout,
		"robots-timeout": &cfg.RobotsTimeout,
		"backoff":        &cfg.Backoff,
	}
	for name, dst := range durationFlags {
		if !flags.Changed(name) {
			continue
		}
		if *dst, err = flags.GetDuration(name); err != nil {
			return nil, err
		}
	}

	stringFlags := map[string]*string{
		"user-agent": &cfg.UserAgent,
		"output":     &cfg.OutputDir,
		"db-dir":     &cfg.DBDir,
		"log-file":   &cfg.LogFile,
	}
	for name, dst := range stringFlags {
		if !flags.Changed(name) {
			continue
		}
		if *dst, err = flags.GetString(name); err != nil {
			return nil, err
		}
	}

	if flags.Changed("rate") {
		if cfg.RequestsPerSecond, err = flags.GetFloat64("rate"); err != nil {
			return nil, err
		}
	}

	anyLanguage, err := flags.GetBool("any-language")
	if err != nil {
		return nil, err
	}
	if anyLanguage {
		cfg.RequireEnglish = false
	}

	noDB, err := flags.GetBool("no-db")
	if err != nil {
		return nil, err
	}
	if noDB {
		cfg.SaveToDB = false
	}

	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("report"); err != nil {
		return nil, err
	}

	cfg.Verbose = getVerboseFlag(cmd)

	return cfg, nil
}

// setupLogger creates the redacting logger, writing to the configured log
// file or stderr. The returned func closes the log file.
func setupLogger(cfg *config.Config) (*slog.Logger, func()) {
	if cfg.LogFile == "" {
		return log.NewLogger(os.Stderr, cfg.Verbose), func() {}
	}
	w := log.NewFileWriter(cfg.LogFile)
	return log.NewLogger(w, cfg.Verbose), func() { _ = w.Close() }
}

// newCrawler wires the frontier, fetchers, robots cache and crawler from cfg.
func newCrawler(cfg *config.Config, logger *slog.Logger, opts ...crawler.Option) *crawler.Crawler {
	front := frontier.New(cfg.Terms,
		frontier.WithRescoreBatch(cfg.RescoreBatch),
		frontier.WithLogger(logger),
	)
	for _, d := range cfg.ExcludeDomains {
		front.RemoveDomain(strings.TrimSpace(d))
	}

	pages := fetch.NewHTTPFetcher(
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithMaxBodySize(cfg.MaxBodySize),
		fetch.WithTimeout(cfg.RequestTimeout),
	)
	robotsFetcher := fetch.NewHTTPFetcher(
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithTimeout(cfg.RobotsTimeout),
	)

	base := []crawler.Option{
		crawler.WithWorkers(cfg.Workers),
		crawler.WithTargetHits(cfg.TargetHits),
		crawler.WithDomainVisitCap(cfg.DomainVisitCap),
		crawler.WithMaxRedirects(cfg.MaxRedirects),
		crawler.WithBackoff(cfg.Backoff),
		crawler.WithUserAgent(cfg.UserAgent),
		crawler.WithRequireEnglish(cfg.RequireEnglish),
		crawler.WithRateLimit(cfg.RequestsPerSecond),
		crawler.WithFetcher(pages),
		crawler.WithRobots(robots.NewCache(robotsFetcher, robots.WithLogger(logger))),
		crawler.WithLogger(logger),
	}
	return crawler.New(front, append(base, opts...)...)
}

// newProgressBar renders crawled pages against the hit target.
func newProgressBar(w io.Writer, target int) *progressbar.ProgressBar {
	return progressbar.NewOptions(target,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("crawling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("pages"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// runCrawl runs one crawl and writes its results. Results are written
// even when the crawl was interrupted; the interruption is then returned
// after the writes. A nil progress disables the progress bar.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger, out, progress io.Writer, opts ...crawler.Option) error {
	run := &model.RunSummary{
		StartedAt:  time.Now(),
		Seeds:      cfg.Seeds,
		Terms:      cfg.Terms,
		TargetHits: cfg.TargetHits,
		Workers:    cfg.Workers,
		Status:     model.RunStatusRunning,
	}

	// Writes after the crawl must survive the cancellation that ended it.
	storeCtx := context.WithoutCancel(ctx)

	var db *database.CrawlDB
	if cfg.SaveToDB {
		var err error
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		if err := db.CreateRun(storeCtx, run); err != nil {
			return err
		}
		logger.Info("run recorded", "run_id", run.ID, "db", db.Path())
	}

	var bar *progressbar.ProgressBar
	if progress != nil {
		bar = newProgressBar(progress, cfg.TargetHits)
		opts = append(opts, crawler.WithProgress(func(hits int, _ string) {
			_ = bar.Set(hits)
		}))
	}

	c := newCrawler(cfg, logger, opts...)
	result, crawlErr := c.Start(ctx, cfg.Seeds)
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(progress)
	}

	run.FinishedAt = time.Now()
	run.Hits = result.Stats.Hits
	run.Failures = result.Stats.Failures()
	run.Status = model.RunStatusCompleted
	if crawlErr != nil {
		run.Status = model.RunStatusInterrupted
		run.Error = crawlErr.Error()
	}

	rep := model.NewCrawlReport(*run, result.Pages, result.Unprocessed)
	errs := []error{crawlErr}

	trec := report.NewTRECWriter(cfg.OutputDir, report.WithChunkSize(cfg.ChunkSize))
	if _, err := trec.Write(rep); err != nil {
		errs = append(errs, fmt.Errorf("failed to write results: %w", err))
	}
	logger.Info("results written", "dir", cfg.OutputDir, "files", len(trec.Files()))

	if db != nil {
		errs = append(errs, saveRun(storeCtx, db, rep))
	}

	if err := outputReport(cfg, rep, out); err != nil {
		errs = append(errs, fmt.Errorf("failed to write report: %w", err))
	}

	return errors.Join(errs...)
}

// saveRun stores the pages, the unprocessed urls and the outcome of a run.
func saveRun(ctx context.Context, db *database.CrawlDB, rep *model.CrawlReport) error {
	runID := rep.Run.ID
	if err := db.SavePages(ctx, runID, rep.Pages); err != nil {
		return err
	}
	if err := db.SaveUnprocessed(ctx, runID, rep.Unprocessed); err != nil {
		return err
	}
	run := rep.Run
	return db.FinishRun(ctx, &run)
}

// newReportWriter picks the report format from the config.
func newReportWriter(cfg *config.Config, w io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(w, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(w)
	default:
		return report.NewSimpleWriter(w, report.WithVerbose(cfg.Verbose))
	}
}

// outputReport writes the run report to cfg.ReportFile, or out when unset.
func outputReport(cfg *config.Config, rep *model.CrawlReport, out io.Writer) error {
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		out = f
	}

	_, err := newReportWriter(cfg, out).Write(rep)
	return err
}
