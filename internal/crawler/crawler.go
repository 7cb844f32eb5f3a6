package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/nao1215/focuscrawl/internal/canonical"
	"github.com/nao1215/focuscrawl/internal/extract"
	"github.com/nao1215/focuscrawl/internal/fetch"
	"github.com/nao1215/focuscrawl/internal/frontier"
	"github.com/nao1215/focuscrawl/internal/model"
	"github.com/nao1215/focuscrawl/internal/robots"
)

// Defaults for a Crawler.
const (
	DefaultWorkers        = 10
	DefaultTargetHits     = 1000
	DefaultDomainVisitCap = 1000
	DefaultMaxRedirects   = 5
	DefaultBackoff        = time.Second
	DefaultIdleWait       = 100 * time.Millisecond
)

// RulesSource provides robots.txt rules for the host of a URL.
type RulesSource interface {
	Rules(ctx context.Context, rawURL string) (robots.Rules, error)
}

// ProgressFunc is called after every successful fetch with the running hit
// count and the URL just recorded. It may be called from several goroutines.
type ProgressFunc func(hits int, url string)

// Crawler fetches pages chosen by a Frontier with a fixed pool of workers.
// A Crawler is meant for a single run.
type Crawler struct {
	frontier  *frontier.Frontier
	fetcher   fetch.Fetcher
	robots    RulesSource
	extractor extract.Extractor
	limiter   *rate.Limiter

	workers        int
	targetHits     int
	domainVisitCap int
	maxRedirects   int
	backoff        time.Duration
	idleWait       time.Duration
	userAgent      string
	requireEnglish bool

	progress ProgressFunc
	logger   *slog.Logger
	now      func() time.Time

	// mu guards every field below.
	mu           sync.Mutex
	lastRequest  map[string]time.Time
	domainVisits map[string]int
	skipped      map[string]struct{}
	visited      map[string]struct{}
	inFlight     int
	stats        Stats
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithWorkers sets the number of concurrent workers.
func WithWorkers(n int) Option {
	return func(c *Crawler) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithTargetHits sets how many pages with text the run collects before
// stopping.
func WithTargetHits(n int) Option {
	return func(c *Crawler) {
		if n > 0 {
			c.targetHits = n
		}
	}
}

// WithDomainVisitCap sets the number of successful probes per domain after
// which the domain is skipped for the rest of the run.
func WithDomainVisitCap(n int) Option {
	return func(c *Crawler) {
		if n > 0 {
			c.domainVisitCap = n
		}
	}
}

// WithMaxRedirects sets how many redirects the probe follows.
func WithMaxRedirects(n int) Option {
	return func(c *Crawler) {
		if n >= 0 {
			c.maxRedirects = n
		}
	}
}

// WithBackoff sets the pause after a rejected URL.
func WithBackoff(d time.Duration) Option {
	return func(c *Crawler) {
		if d >= 0 {
			c.backoff = d
		}
	}
}

// WithIdleWait sets how long a worker waits for new URLs when the queue is
// empty but other workers are still fetching.
func WithIdleWait(d time.Duration) Option {
	return func(c *Crawler) {
		if d > 0 {
			c.idleWait = d
		}
	}
}

// WithUserAgent sets the agent name used for robots.txt matching. It
// should match the User-Agent the fetcher sends.
func WithUserAgent(ua string) Option {
	return func(c *Crawler) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithRequireEnglish controls the Content-Language check of the probe.
func WithRequireEnglish(require bool) Option {
	return func(c *Crawler) {
		c.requireEnglish = require
	}
}

// WithFetcher sets the HTTP collaborator.
func WithFetcher(f fetch.Fetcher) Option {
	return func(c *Crawler) {
		c.fetcher = f
	}
}

// WithRobots sets the robots.txt rules source.
func WithRobots(src RulesSource) Option {
	return func(c *Crawler) {
		c.robots = src
	}
}

// WithExtractor sets the content extractor.
func WithExtractor(e extract.Extractor) Option {
	return func(c *Crawler) {
		c.extractor = e
	}
}

// WithRateLimit caps the total request rate across all hosts. A value of
// zero or less disables the cap.
func WithRateLimit(perSecond float64) Option {
	return func(c *Crawler) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		burst := max(1, int(perSecond))
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithProgress sets a callback invoked after every successful fetch.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Crawler) {
		c.progress = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Crawler over front. Without options it fetches over plain
// HTTP, reads robots.txt through the same fetcher and extracts HTML.
func New(front *frontier.Frontier, opts ...Option) *Crawler {
	c := &Crawler{
		frontier:       front,
		workers:        DefaultWorkers,
		targetHits:     DefaultTargetHits,
		domainVisitCap: DefaultDomainVisitCap,
		maxRedirects:   DefaultMaxRedirects,
		backoff:        DefaultBackoff,
		idleWait:       DefaultIdleWait,
		userAgent:      fetch.DefaultUserAgent,
		requireEnglish: true,
		logger:         slog.Default(),
		now:            time.Now,
		lastRequest:    make(map[string]time.Time),
		domainVisits:   make(map[string]int),
		skipped:        make(map[string]struct{}),
		visited:        make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.fetcher == nil {
		c.fetcher = fetch.NewHTTPFetcher(fetch.WithUserAgent(c.userAgent))
	}
	if c.robots == nil {
		c.robots = robots.NewCache(c.fetcher, robots.WithLogger(c.logger))
	}
	if c.extractor == nil {
		c.extractor = extract.NewHTMLExtractor()
	}

	return c
}

// Stats summarizes a run.
type Stats struct {
	// Hits is the number of pages recorded with non-empty text.
	Hits int
	// Attempts is the number of URLs taken from the Frontier.
	Attempts int
	// NetworkFailures, ProtocolFailures, MalformedFailures and
	// InternalFailures count rejected URLs by class.
	NetworkFailures   int
	ProtocolFailures  int
	MalformedFailures int
	InternalFailures  int
	// SkippedDomains is the number of domains skipped for the rest of the run.
	SkippedDomains int
	// Elapsed is the wall time of the run.
	Elapsed time.Duration
	// Frontier is the Frontier's state at the end of the run.
	Frontier frontier.Stats
}

// Failures returns the total number of rejected URLs.
func (s Stats) Failures() int {
	return s.NetworkFailures + s.ProtocolFailures + s.MalformedFailures + s.InternalFailures
}

// Result is the outcome of a run.
type Result struct {
	// Pages holds every page fetched with non-empty text, keyed by URL.
	Pages map[string]*model.Page
	// Unprocessed lists discovered URLs that were never fetched.
	Unprocessed []model.PendingURL
	// Stats summarizes the run.
	Stats Stats
}

// Start adds seeds to the Frontier at wave 1 and runs the worker pool
// until the target is reached, the Frontier drains or ctx is cancelled.
// The returned Result is never nil; on cancellation it holds the pages
// fetched so far together with the context's error.
func (c *Crawler) Start(ctx context.Context, seeds []string) (*Result, error) {
	start := c.now()

	for _, seed := range seeds {
		u, err := canonical.Canonicalize(seed, "")
		if err != nil {
			c.logger.Warn("skipping invalid seed", "seed", seed, "error", err)
			continue
		}
		c.frontier.Seed(u)
	}

	if c.frontier.Empty() {
		return c.result(start), ErrNoSeeds
	}

	c.logger.Info("crawl started",
		"seeds", len(seeds),
		"workers", c.workers,
		"target_hits", c.targetHits,
	)

	var g errgroup.Group
	g.SetLimit(c.workers)
	for id := range c.workers {
		g.Go(func() error {
			c.worker(ctx, id+1)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	result := c.result(start)
	c.logger.Info("crawl finished",
		"hits", result.Stats.Hits,
		"failures", result.Stats.Failures(),
		"skipped_domains", result.Stats.SkippedDomains,
		"elapsed", result.Stats.Elapsed,
	)

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// Stats returns a snapshot of the run statistics.
func (c *Crawler) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.SkippedDomains = len(c.skipped)
	return s
}

func (c *Crawler) result(start time.Time) *Result {
	stats := c.Stats()
	stats.Elapsed = c.now().Sub(start)
	stats.Frontier = c.frontier.Stats()
	return &Result{
		Pages:       c.frontier.CrawledPages(),
		Unprocessed: c.frontier.Unprocessed(),
		Stats:       stats,
	}
}

type nextState int

const (
	nextURL nextState = iota
	nextIdle
	nextDone
)

// next dequeues a URL for a worker. It returns nextIdle when the queue is
// empty but other workers may still add links, and nextDone when the run
// is over.
func (c *Crawler) next() (string, nextState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stats.Hits >= c.targetHits {
		return "", nextDone
	}
	u, ok := c.frontier.NextURL()
	if !ok {
		if c.inFlight == 0 {
			return "", nextDone
		}
		return "", nextIdle
	}
	c.inFlight++
	c.stats.Attempts++
	return u, nextURL
}

func (c *Crawler) release() {
	c.mu.Lock()
	c.inFlight--
	c.mu.Unlock()
}

func (c *Crawler) worker(ctx context.Context, id int) {
	logger := c.logger.With("worker", id)

	for ctx.Err() == nil {
		u, state := c.next()
		switch state {
		case nextDone:
			return
		case nextIdle:
			if !sleep(ctx, c.idleWait) {
				return
			}
			continue
		}

		err := c.visitSafe(ctx, u)
		c.release()
		if err == nil {
			continue
		}
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return
		}

		c.reject(logger, u, err)
		if !sleep(ctx, c.backoff) {
			return
		}
	}
}

// reject removes u from the Frontier and counts the failure.
func (c *Crawler) reject(logger *slog.Logger, u string, err error) {
	c.frontier.RemoveURL(u)

	class := Classify(err)
	c.mu.Lock()
	switch class {
	case FailureNetwork:
		c.stats.NetworkFailures++
	case FailureProtocol:
		c.stats.ProtocolFailures++
	case FailureMalformed:
		c.stats.MalformedFailures++
	case FailureInternal:
		c.stats.InternalFailures++
	}
	c.mu.Unlock()

	if class == FailureInternal {
		logger.Error("recovered from panic", "url", u, "error", err)
		return
	}
	logger.Debug("url rejected", "url", u, "class", class.String(), "error", err)
}

// visitSafe runs visit, turning a panic into an error.
func (c *Crawler) visitSafe(ctx context.Context, u string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return c.visit(ctx, u)
}

// visit moves one URL through every stage of the worker loop.
func (c *Crawler) visit(ctx context.Context, u string) error {
	domain := canonical.Domain(u)
	if err := c.precheck(u, domain); err != nil {
		return err
	}

	if err := c.politeness(ctx, u, domain); err != nil {
		return err
	}

	final, err := c.probe(ctx, u)
	if err != nil {
		return err
	}

	if err := c.waitLimiter(ctx); err != nil {
		return err
	}
	resp, err := c.fetcher.Get(ctx, final)
	if err != nil {
		return fmt.Errorf("get %s: %w", final, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%w: %d from %s", ErrBadStatus, resp.StatusCode, final)
	}

	content, err := c.extractor.Extract(resp.Body, final)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedContent, err)
	}

	return c.record(u, content)
}

// precheck rejects URLs on skipped domains and URLs already reached
// through another URL's redirect.
func (c *Crawler) precheck(u, domain string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.skipped[domain]; ok {
		return fmt.Errorf("%w: %s", ErrDomainSkipped, domain)
	}
	if _, ok := c.visited[u]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyVisited, u)
	}
	return nil
}

// record hands the extracted content to the Frontier. Pages with text
// count as hits; once the target is reached nothing more is recorded.
func (c *Crawler) record(u string, content *extract.Content) error {
	c.mu.Lock()
	if c.stats.Hits >= c.targetHits {
		c.mu.Unlock()
		return nil
	}
	if err := c.frontier.ProcessResponse(u, content.Links, content.Text, content.Title); err != nil {
		c.mu.Unlock()
		return err
	}
	if content.Text == "" {
		c.mu.Unlock()
		return nil
	}
	c.stats.Hits++
	hits := c.stats.Hits
	c.mu.Unlock()

	c.logger.Info("page crawled", "hits", hits, "url", u, "links", len(content.Links))
	c.notify(hits, u)
	return nil
}

// notify runs the progress callback. A panic in the callback is logged
// and swallowed so the recorded page stays in the Frontier.
func (c *Crawler) notify(hits int, u string) {
	if c.progress == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("progress callback panicked", "url", u, "error", fmt.Errorf("%w: %v", ErrPanic, r))
		}
	}()
	c.progress(hits, u)
}

func (c *Crawler) waitLimiter(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
