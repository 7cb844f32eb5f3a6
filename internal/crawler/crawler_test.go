package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/focuscrawl/internal/extract"
	"github.com/nao1215/focuscrawl/internal/fetch"
	"github.com/nao1215/focuscrawl/internal/frontier"
	"github.com/nao1215/focuscrawl/internal/robots"
)

// fakePage is one canned response.
type fakePage struct {
	status int
	header http.Header
	body   string
}

// fakeWeb is a deterministic in-memory Fetcher.
type fakeWeb struct {
	pages map[string]fakePage

	mu   sync.Mutex
	gets map[string]int
}

func newFakeWeb() *fakeWeb {
	return &fakeWeb{pages: make(map[string]fakePage), gets: make(map[string]int)}
}

func (w *fakeWeb) html(u, body string) {
	w.pages[u] = fakePage{
		status: http.StatusOK,
		header: http.Header{"Content-Type": {"text/html; charset=utf-8"}, "Content-Language": {"en-US"}},
		body:   body,
	}
}

func (w *fakeWeb) redirect(from, to string) {
	w.pages[from] = fakePage{status: http.StatusMovedPermanently, header: http.Header{"Location": {to}}}
}

func (w *fakeWeb) respond(u string, withBody bool) (*fetch.Response, error) {
	p, ok := w.pages[u]
	if !ok {
		return &fetch.Response{URL: u, StatusCode: http.StatusNotFound, Header: http.Header{}}, nil
	}
	if p.status == 0 {
		return nil, errors.New("connection refused")
	}
	resp := &fetch.Response{URL: u, StatusCode: p.status, Header: p.header}
	if withBody {
		resp.Body = []byte(p.body)
	}
	return resp, nil
}

func (w *fakeWeb) Head(_ context.Context, u string) (*fetch.Response, error) {
	return w.respond(u, false)
}

func (w *fakeWeb) Get(_ context.Context, u string) (*fetch.Response, error) {
	w.mu.Lock()
	w.gets[u]++
	w.mu.Unlock()
	return w.respond(u, true)
}

// fakeRobots serves per-domain rules, allowing everything by default.
type fakeRobots map[string]robots.Rules

func (f fakeRobots) Rules(_ context.Context, rawURL string) (robots.Rules, error) {
	for domain, rules := range f {
		if strings.Contains(rawURL, "://"+domain+"/") {
			return rules, nil
		}
	}
	return robots.AllowAll, nil
}

func page(title, text string, links ...string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<html><head><title>%s</title></head><body><p>%s</p>", title, text)
	for _, l := range links {
		fmt.Fprintf(&sb, `<a href="%s">link to %s</a>`, l, l)
	}
	sb.WriteString("</body></html>")
	return sb.String()
}

// binaryTree serves n pages on example.com where page i links to 2i+1 and
// 2i+2.
func binaryTree(n int) *fakeWeb {
	w := newFakeWeb()
	for i := range n {
		var links []string
		for _, child := range []int{2*i + 1, 2*i + 2} {
			if child < n {
				links = append(links, fmt.Sprintf("/p%d", child))
			}
		}
		w.html(fmt.Sprintf("http://example.com/p%d", i), page(fmt.Sprintf("P%d", i), fmt.Sprintf("text %d", i), links...))
	}
	return w
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCrawler(web fetch.Fetcher, rules RulesSource, opts ...Option) *Crawler {
	base := []Option{
		WithFetcher(web),
		WithRobots(rules),
		WithBackoff(0),
		WithIdleWait(time.Millisecond),
		WithLogger(quietLogger()),
	}
	return New(frontier.New([]string{"text"}), append(base, opts...)...)
}

// TestCrawlerBoundedOutput tests that a run never returns more than the
// target number of pages.
func TestCrawlerBoundedOutput(t *testing.T) {
	t.Parallel()

	for _, workers := range []int{1, 4, 10} {
		t.Run(fmt.Sprintf("%d workers", workers), func(t *testing.T) {
			t.Parallel()

			c := newTestCrawler(binaryTree(40), fakeRobots{}, WithWorkers(workers), WithTargetHits(5))
			result, err := c.Start(context.Background(), []string{"http://example.com/p0"})
			if err != nil {
				t.Fatalf("Start() error = %v", err)
			}
			if len(result.Pages) != 5 {
				t.Errorf("expected 5 pages, got %d", len(result.Pages))
			}
			if result.Stats.Hits != 5 {
				t.Errorf("expected 5 hits, got %d", result.Stats.Hits)
			}
		})
	}
}

// TestCrawlerDrainsFrontier tests termination when every reachable page
// has been fetched before the target.
func TestCrawlerDrainsFrontier(t *testing.T) {
	t.Parallel()

	c := newTestCrawler(binaryTree(8), fakeRobots{}, WithWorkers(3), WithTargetHits(100))

	done := make(chan struct{})
	var (
		result *Result
		err    error
	)
	go func() {
		defer close(done)
		result, err = c.Start(context.Background(), []string{"http://example.com/p0"})
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("crawl did not terminate on an empty frontier")
	}

	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if len(result.Pages) != 8 {
		t.Errorf("expected all 8 pages, got %d", len(result.Pages))
	}

	p := result.Pages["http://example.com/p1"]
	if p == nil {
		t.Fatal("expected p1 in results")
	}
	if p.Wave != 2 || p.Title != "P1" || p.Text != "text 1" {
		t.Errorf("unexpected page %+v", p)
	}
	if !slices.Equal(p.Inlinks, []string{"http://example.com/p0"}) {
		t.Errorf("unexpected inlinks %v", p.Inlinks)
	}
	if len(result.Unprocessed) != 0 {
		t.Errorf("expected nothing unprocessed, got %v", result.Unprocessed)
	}
}

// TestCrawlerWorkerCountInvariance tests that the crawled set does not
// depend on the number of workers.
func TestCrawlerWorkerCountInvariance(t *testing.T) {
	t.Parallel()

	run := func(workers int) map[string]string {
		c := newTestCrawler(binaryTree(25), fakeRobots{}, WithWorkers(workers), WithTargetHits(1000))
		result, err := c.Start(context.Background(), []string{"http://example.com/p0"})
		if err != nil {
			t.Fatalf("Start() with %d workers error = %v", workers, err)
		}
		out := make(map[string]string, len(result.Pages))
		for u, p := range result.Pages {
			out[u] = p.Text + "|" + strings.Join(p.OutlinkURLs(), ",")
		}
		return out
	}

	one := run(1)
	ten := run(10)
	if len(one) != 25 {
		t.Fatalf("expected 25 pages, got %d", len(one))
	}
	if len(one) != len(ten) {
		t.Fatalf("page counts differ: %d vs %d", len(one), len(ten))
	}
	for u, content := range one {
		if ten[u] != content {
			t.Errorf("page %s differs: %q vs %q", u, content, ten[u])
		}
	}
}

// TestCrawlerRedirects tests hop-bounded redirect following.
func TestCrawlerRedirects(t *testing.T) {
	t.Parallel()

	t.Run("follows to the final page", func(t *testing.T) {
		t.Parallel()

		web := newFakeWeb()
		web.redirect("http://a.com/old", "https://a.com/new")
		web.html("https://a.com/new", page("New", "moved here"))

		c := newTestCrawler(web, fakeRobots{}, WithWorkers(2))
		result, err := c.Start(context.Background(), []string{"http://a.com/old"})
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		p := result.Pages["http://a.com/old"]
		if p == nil || p.Text != "moved here" {
			t.Fatalf("expected redirected content under the dequeued url, got %v", result.Pages)
		}
		if web.gets["https://a.com/new"] != 1 {
			t.Errorf("expected one GET of the final url, got %d", web.gets["https://a.com/new"])
		}
	})

	t.Run("loop is rejected", func(t *testing.T) {
		t.Parallel()

		web := newFakeWeb()
		web.redirect("http://b.com/x", "/y")
		web.redirect("http://b.com/y", "/x")

		c := newTestCrawler(web, fakeRobots{})
		result, err := c.Start(context.Background(), []string{"http://b.com/x"})
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if len(result.Pages) != 0 {
			t.Errorf("expected no pages, got %d", len(result.Pages))
		}
		if result.Stats.ProtocolFailures != 1 {
			t.Errorf("expected 1 protocol failure, got %+v", result.Stats)
		}
	})

	t.Run("hop cap", func(t *testing.T) {
		t.Parallel()

		web := newFakeWeb()
		for i := range 7 {
			web.redirect(fmt.Sprintf("http://c.com/%d", i), fmt.Sprintf("/%d", i+1))
		}
		web.html("http://c.com/7", page("End", "end"))

		c := newTestCrawler(web, fakeRobots{}, WithMaxRedirects(5))
		_, err := c.probe(context.Background(), "http://c.com/0")
		if !errors.Is(err, ErrTooManyRedirects) {
			t.Errorf("expected ErrTooManyRedirects, got %v", err)
		}

		c = newTestCrawler(web, fakeRobots{}, WithMaxRedirects(7))
		final, err := c.probe(context.Background(), "http://c.com/0")
		if err != nil {
			t.Fatalf("probe() error = %v", err)
		}
		if final != "http://c.com/7" {
			t.Errorf("expected final url http://c.com/7, got %q", final)
		}
	})

	t.Run("missing location", func(t *testing.T) {
		t.Parallel()

		web := newFakeWeb()
		web.pages["http://d.com/"] = fakePage{status: http.StatusFound, header: http.Header{}}

		c := newTestCrawler(web, fakeRobots{})
		_, err := c.probe(context.Background(), "http://d.com/")
		if !errors.Is(err, ErrMissingLocation) {
			t.Errorf("expected ErrMissingLocation, got %v", err)
		}
	})
}

// TestCrawlerPoliteness tests robots.txt rules and request spacing.
func TestCrawlerPoliteness(t *testing.T) {
	t.Parallel()

	t.Run("disallowed urls are removed", func(t *testing.T) {
		t.Parallel()

		web := newFakeWeb()
		web.html("http://a.com/", page("Home", "home", "/private/secret", "/public"))
		web.html("http://a.com/private/secret", page("Secret", "secret"))
		web.html("http://a.com/public", page("Public", "public"))

		rules, err := robots.Parse(http.StatusOK, []byte("User-agent: *\nDisallow: /private\n"))
		if err != nil {
			t.Fatal(err)
		}

		c := newTestCrawler(web, fakeRobots{"a.com": rules})
		result, err := c.Start(context.Background(), []string{"http://a.com/"})
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if _, ok := result.Pages["http://a.com/private/secret"]; ok {
			t.Error("disallowed page was crawled")
		}
		if _, ok := result.Pages["http://a.com/public"]; !ok {
			t.Error("allowed page was not crawled")
		}
		if web.gets["http://a.com/private/secret"] != 0 {
			t.Error("disallowed page was fetched")
		}
		if result.Stats.ProtocolFailures != 1 {
			t.Errorf("expected 1 protocol failure, got %+v", result.Stats)
		}
	})

	t.Run("redirect targets pass robots.txt of their host", func(t *testing.T) {
		t.Parallel()

		web := newFakeWeb()
		web.redirect("http://b.com/go", "http://a.com/private/secret")
		web.redirect("http://b.com/ok", "http://a.com/public")
		web.html("http://a.com/private/secret", page("Secret", "secret"))
		web.html("http://a.com/public", page("Public", "public"))

		rules, err := robots.Parse(http.StatusOK, []byte("User-agent: *\nDisallow: /private\n"))
		if err != nil {
			t.Fatal(err)
		}

		c := newTestCrawler(web, fakeRobots{"a.com": rules}, WithWorkers(1))
		result, err := c.Start(context.Background(), []string{"http://b.com/go", "http://b.com/ok"})
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if web.gets["http://a.com/private/secret"] != 0 {
			t.Error("disallowed redirect target was fetched")
		}
		if _, ok := result.Pages["http://b.com/go"]; ok {
			t.Error("url redirecting to a disallowed page was recorded")
		}
		if _, ok := result.Pages["http://b.com/ok"]; !ok {
			t.Error("url redirecting to an allowed page was not recorded")
		}
		if _, ok := c.lastRequest["a.com"]; !ok {
			t.Error("expected a request slot reserved for the redirect target host")
		}
	})

	t.Run("request slots are spaced by interval", func(t *testing.T) {
		t.Parallel()

		now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		c := newTestCrawler(newFakeWeb(), fakeRobots{})
		c.now = func() time.Time { return now }

		waits := []time.Duration{
			c.reserve("a.com", 2*time.Second),
			c.reserve("a.com", 2*time.Second),
			c.reserve("a.com", 2*time.Second),
			c.reserve("b.com", 2*time.Second),
		}
		want := []time.Duration{0, 2 * time.Second, 4 * time.Second, 0}
		if !slices.Equal(waits, want) {
			t.Errorf("waits = %v, want %v", waits, want)
		}

		now = now.Add(10 * time.Second)
		if w := c.reserve("a.com", 2*time.Second); w != 0 {
			t.Errorf("expected no wait after the interval passed, got %v", w)
		}
		if w := c.reserve("a.com", 0); w != 0 {
			t.Errorf("expected no wait without a rate, got %v", w)
		}
	})
}

// TestCrawlerEligibility tests the probe's content checks and domain cap.
func TestCrawlerEligibility(t *testing.T) {
	t.Parallel()

	t.Run("non-html and non-english pages are rejected", func(t *testing.T) {
		t.Parallel()

		web := newFakeWeb()
		web.html("http://a.com/", page("Home", "home", "/doc.pdf", "/fr", "/en-gb"))
		web.pages["http://a.com/doc.pdf"] = fakePage{
			status: http.StatusOK,
			header: http.Header{"Content-Type": {"application/pdf"}, "Content-Language": {"en"}},
		}
		web.pages["http://a.com/fr"] = fakePage{
			status: http.StatusOK,
			header: http.Header{"Content-Type": {"text/html"}, "Content-Language": {"fr"}},
			body:   page("FR", "bonjour"),
		}
		web.pages["http://a.com/en-gb"] = fakePage{
			status: http.StatusOK,
			header: http.Header{"Content-Type": {"text/html"}, "Content-Language": {"de, en-GB"}},
			body:   page("GB", "hello"),
		}

		c := newTestCrawler(web, fakeRobots{})
		result, err := c.Start(context.Background(), []string{"http://a.com/"})
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}

		got := make([]string, 0, len(result.Pages))
		for u := range result.Pages {
			got = append(got, u)
		}
		slices.Sort(got)
		want := []string{"http://a.com/", "http://a.com/en-gb"}
		if !slices.Equal(got, want) {
			t.Errorf("pages = %v, want %v", got, want)
		}
		if result.Stats.ProtocolFailures != 2 {
			t.Errorf("expected 2 protocol failures, got %+v", result.Stats)
		}
	})

	t.Run("language check can be disabled", func(t *testing.T) {
		t.Parallel()

		web := newFakeWeb()
		web.pages["http://a.com/"] = fakePage{
			status: http.StatusOK,
			header: http.Header{"Content-Type": {"text/html"}},
			body:   page("Home", "home"),
		}

		c := newTestCrawler(web, fakeRobots{}, WithRequireEnglish(false))
		result, err := c.Start(context.Background(), []string{"http://a.com/"})
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if len(result.Pages) != 1 {
			t.Errorf("expected 1 page, got %d", len(result.Pages))
		}
	})

	t.Run("domain cap skips the domain", func(t *testing.T) {
		t.Parallel()

		front := frontier.New(nil)
		c := New(front,
			WithFetcher(binaryTree(20)),
			WithRobots(fakeRobots{}),
			WithBackoff(0),
			WithIdleWait(time.Millisecond),
			WithLogger(quietLogger()),
			WithWorkers(1),
			WithDomainVisitCap(3),
		)
		result, err := c.Start(context.Background(), []string{"http://example.com/p0"})
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if len(result.Pages) != 3 {
			t.Errorf("expected 3 pages, got %d", len(result.Pages))
		}
		if result.Stats.SkippedDomains != 1 {
			t.Errorf("expected 1 skipped domain, got %d", result.Stats.SkippedDomains)
		}
		if !front.DomainExcluded("example.com") {
			t.Error("expected domain to be excluded from the frontier")
		}
	})

	t.Run("claim enforces the cap for concurrent probes", func(t *testing.T) {
		t.Parallel()

		front := frontier.New(nil)
		c := New(front, WithFetcher(newFakeWeb()), WithLogger(quietLogger()), WithDomainVisitCap(2))

		// Both probes passed admit before either claimed.
		for i := range 2 {
			if err := c.admit("a.com"); err != nil {
				t.Fatalf("admit() error = %v", err)
			}
			u := fmt.Sprintf("http://a.com/%d", i)
			if err := c.claim(u, u, "a.com"); err != nil {
				t.Fatalf("claim(%s) error = %v", u, err)
			}
		}
		err := c.claim("http://a.com/2", "http://a.com/2", "a.com")
		if !errors.Is(err, ErrDomainCapReached) {
			t.Errorf("expected ErrDomainCapReached, got %v", err)
		}
		if c.domainVisits["a.com"] != 2 {
			t.Errorf("domain visits = %d, want 2", c.domainVisits["a.com"])
		}
		if !front.DomainExcluded("a.com") {
			t.Error("expected domain to be excluded from the frontier")
		}
	})
}

// TestCrawlerFailures tests that failures never lose fetched pages.
func TestCrawlerFailures(t *testing.T) {
	t.Parallel()

	t.Run("network errors", func(t *testing.T) {
		t.Parallel()

		web := binaryTree(3)
		web.pages["http://example.com/p2"] = fakePage{}

		c := newTestCrawler(web, fakeRobots{})
		result, err := c.Start(context.Background(), []string{"http://example.com/p0"})
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if len(result.Pages) != 2 {
			t.Errorf("expected 2 pages, got %d", len(result.Pages))
		}
		if result.Stats.NetworkFailures != 1 {
			t.Errorf("expected 1 network failure, got %+v", result.Stats)
		}
	})

	t.Run("panics are recovered", func(t *testing.T) {
		t.Parallel()

		c := newTestCrawler(binaryTree(7), fakeRobots{},
			WithWorkers(3),
			WithExtractor(panicky{target: "http://example.com/p1"}),
		)
		result, err := c.Start(context.Background(), []string{"http://example.com/p0"})
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if result.Stats.InternalFailures != 1 {
			t.Errorf("expected 1 internal failure, got %+v", result.Stats)
		}
		// p1 and its subtree (p3, p4) are lost, everything else survives.
		if len(result.Pages) != 4 {
			t.Errorf("expected 4 pages, got %d", len(result.Pages))
		}
	})

	t.Run("panicking progress callback keeps recorded pages", func(t *testing.T) {
		t.Parallel()

		c := newTestCrawler(binaryTree(3), fakeRobots{},
			WithWorkers(1),
			WithProgress(func(hits int, _ string) {
				if hits == 1 {
					panic("progress failed")
				}
			}),
		)
		result, err := c.Start(context.Background(), []string{"http://example.com/p0"})
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if len(result.Pages) != result.Stats.Hits {
			t.Errorf("pages = %d, hits = %d, want equal", len(result.Pages), result.Stats.Hits)
		}
		if len(result.Pages) != 3 {
			t.Errorf("expected 3 pages, got %d", len(result.Pages))
		}
		if _, ok := result.Pages["http://example.com/p0"]; !ok {
			t.Error("seed page lost after the callback panicked")
		}
		if result.Stats.InternalFailures != 0 {
			t.Errorf("expected no internal failures, got %+v", result.Stats)
		}
	})

	t.Run("cancellation returns partial results", func(t *testing.T) {
		t.Parallel()

		web := binaryTree(3)
		ctx, cancel := context.WithCancel(context.Background())
		slow := &blockingFetcher{next: web, block: "http://example.com/p2"}

		c := newTestCrawler(slow, fakeRobots{},
			WithWorkers(2),
			WithProgress(func(hits int, _ string) {
				if hits == 2 {
					cancel()
				}
			}),
		)
		result, err := c.Start(ctx, []string{"http://example.com/p0"})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if result == nil {
			t.Fatal("expected partial result")
		}
		if len(result.Pages) < 1 {
			t.Errorf("expected fetched pages to survive cancellation, got %d", len(result.Pages))
		}
	})

	t.Run("no seeds", func(t *testing.T) {
		t.Parallel()

		c := newTestCrawler(newFakeWeb(), fakeRobots{})
		result, err := c.Start(context.Background(), []string{"mailto:a@b.c", ""})
		if !errors.Is(err, ErrNoSeeds) {
			t.Errorf("expected ErrNoSeeds, got %v", err)
		}
		if result == nil || len(result.Pages) != 0 {
			t.Errorf("expected empty result, got %+v", result)
		}
	})
}

// panicky wraps the HTML extractor and panics for one URL.
type panicky struct {
	target string
}

func (p panicky) Extract(body []byte, sourceURL string) (*extract.Content, error) {
	if sourceURL == p.target {
		panic("boom")
	}
	return extract.NewHTMLExtractor().Extract(body, sourceURL)
}

// blockingFetcher delegates to next but blocks requests for one URL until
// the context is cancelled.
type blockingFetcher struct {
	next  fetch.Fetcher
	block string
}

func (b *blockingFetcher) Head(ctx context.Context, u string) (*fetch.Response, error) {
	if u == b.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return b.next.Head(ctx, u)
}

func (b *blockingFetcher) Get(ctx context.Context, u string) (*fetch.Response, error) {
	return b.next.Get(ctx, u)
}

// TestIsEnglish tests Content-Language matching.
func TestIsEnglish(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want bool
	}{
		{"en", true},
		{"en-US", true},
		{"EN-gb", true},
		{"fr, en", true},
		{"de", false},
		{"", false},
		{"!!", false},
	}
	for _, tt := range tests {
		if got := isEnglish(tt.in); got != tt.want {
			t.Errorf("isEnglish(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// TestClassify tests the failure taxonomy.
func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want FailureClass
	}{
		{nil, FailureNone},
		{fmt.Errorf("wrapped: %w", ErrDisallowed), FailureProtocol},
		{ErrDomainCapReached, FailureProtocol},
		{ErrRedirectLoop, FailureProtocol},
		{fmt.Errorf("%w: bad", ErrMalformedContent), FailureMalformed},
		{fmt.Errorf("%w: x", ErrPanic), FailureInternal},
		{context.DeadlineExceeded, FailureNetwork},
		{errors.New("connection reset"), FailureNetwork},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
