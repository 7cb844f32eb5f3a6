package frontier

import (
	"container/heap"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nao1215/focuscrawl/internal/canonical"
	"github.com/nao1215/focuscrawl/internal/model"
)

// DefaultRescoreBatch is the number of pending inlink updates that
// triggers a queue rebuild.
const DefaultRescoreBatch = 10000

// Frontier is the priority-ordered set of discovered URLs.
// All methods are safe for concurrent use.
type Frontier struct {
	// mu guards every field below.
	mu sync.Mutex

	scorer *Scorer

	// items is the identity map: exactly one Item per live canonical URL.
	items map[string]*Item

	// queue holds entries for live items not yet dequeued. Entries for
	// removed URLs may linger and are skipped on pop.
	queue entryHeap

	visited  map[string]struct{}
	removed  map[string]struct{}
	excluded map[string]struct{}

	// pending holds queued items whose inlinks changed since their entry
	// was pushed.
	pending      map[string]*Item
	rescoreBatch int

	nextOrder uint64
	rebuilds  int

	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Frontier.
type Option func(*Frontier)

// WithRescoreBatch sets how many pending inlink updates trigger a rebuild.
// Values below 1 are ignored.
func WithRescoreBatch(n int) Option {
	return func(f *Frontier) {
		if n > 0 {
			f.rescoreBatch = n
		}
	}
}

// WithLogger sets the logger used for rebuild diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Frontier) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithClock overrides the time source used to stamp fetched pages.
func WithClock(now func() time.Time) Option {
	return func(f *Frontier) {
		if now != nil {
			f.now = now
		}
	}
}

// New creates an empty Frontier scoring against the given relevance terms.
func New(terms []string, opts ...Option) *Frontier {
	f := &Frontier{
		scorer:       NewScorer(terms),
		items:        make(map[string]*Item),
		queue:        make(entryHeap, 0),
		visited:      make(map[string]struct{}),
		removed:      make(map[string]struct{}),
		excluded:     make(map[string]struct{}),
		pending:      make(map[string]*Item),
		rescoreBatch: DefaultRescoreBatch,
		now:          time.Now,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Scorer returns the scorer the Frontier ranks items with.
func (f *Frontier) Scorer() *Scorer {
	return f.scorer
}

// AddURL records that url was discovered via inlink at the given wave with
// the given anchor text. It is a no-op for removed URLs and excluded
// domains. A new URL is inserted into the map and queue; for a known,
// unvisited URL the inlink is merged and the item is marked for rescoring.
// AddURL reports whether a new item was created.
func (f *Frontier) AddURL(url, inlink string, wave int, anchor string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.addLocked(url, inlink, wave, anchor)
}

func (f *Frontier) addLocked(url, inlink string, wave int, anchor string) bool {
	if url == "" {
		return false
	}
	if _, ok := f.removed[url]; ok {
		return false
	}
	if _, ok := f.excluded[canonical.Domain(url)]; ok {
		return false
	}

	item, ok := f.items[url]
	if !ok {
		item = NewItem(url, inlink, wave, anchor)
		item.order = f.nextOrder
		f.nextOrder++
		f.items[url] = item
		heap.Push(&f.queue, f.entryFor(item))
		return true
	}

	if !item.AddInlink(inlink) {
		return false
	}
	if _, done := f.visited[url]; done {
		return false
	}

	f.pending[url] = item
	if len(f.pending) >= f.rescoreBatch {
		f.rebuildQueue()
	}
	return false
}

// Seed adds each URL at wave 1 with no inlink and no anchor text.
func (f *Frontier) Seed(urls ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range urls {
		f.addLocked(u, "", 1, "")
	}
}

// ProcessResponse records the fetch result for url, which must have been
// returned by NextURL, then adds every outlink at the item's wave + 1 with
// url as the inlink.
func (f *Frontier) ProcessResponse(url string, outlinks []model.Link, text, title string) error {
	f.mu.Lock()
	item, ok := f.items[url]
	if !ok {
		f.mu.Unlock()
		return ErrUnknownURL
	}
	item.record(outlinks, text, title, f.now())
	wave := item.wave
	f.mu.Unlock()

	for _, l := range outlinks {
		f.AddURL(l.URL, url, wave+1, l.Anchor)
	}
	return nil
}

// RemoveURL permanently bars url from the Frontier and discards its state.
// Removing an unknown URL is not an error.
func (f *Frontier) RemoveURL(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.items, url)
	delete(f.pending, url)
	f.removed[url] = struct{}{}
}

// RemoveDomain permanently bars future additions for domain. URLs already
// queued are not purged.
func (f *Frontier) RemoveDomain(domain string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.excluded[strings.ToLower(domain)] = struct{}{}
}

// DomainExcluded reports whether domain was passed to RemoveDomain.
func (f *Frontier) DomainExcluded(domain string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.excluded[strings.ToLower(domain)]
	return ok
}

// NextURL pops the highest-ranked live URL, marks it visited and returns
// it. It returns false when the queue is drained.
func (f *Frontier) NextURL() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for f.queue.Len() > 0 {
		e := heap.Pop(&f.queue).(entry)
		if !f.isLive(e.item) {
			continue
		}
		f.visited[e.item.url] = struct{}{}
		return e.item.url, true
	}
	return "", false
}

// Empty reports whether no live URL is queued.
func (f *Frontier) Empty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pruneLocked()
	return f.queue.Len() == 0
}

// pruneLocked pops dead entries off the top of the heap so that a
// non-empty heap always has a live head.
func (f *Frontier) pruneLocked() {
	for f.queue.Len() > 0 && !f.isLive(f.queue[0].item) {
		heap.Pop(&f.queue)
	}
}

// isLive reports whether a queued entry still refers to the current,
// unvisited item for its URL.
func (f *Frontier) isLive(item *Item) bool {
	current, ok := f.items[item.url]
	if !ok || current != item {
		return false
	}
	_, done := f.visited[item.url]
	return !done
}

// entryFor builds a queue entry carrying the item's current score.
func (f *Frontier) entryFor(item *Item) entry {
	return entry{item: item, rank: -f.scorer.Score(item)}
}

// rebuildQueue re-keys the pending batch. Items visited since they became
// pending are dropped from the batch, every queued entry for a pending URL
// is removed, and fresh entries are pushed for the unvisited ones.
// Must be called with f.mu held.
func (f *Frontier) rebuildQueue() {
	fresh := make([]*Item, 0, len(f.pending))
	for url, item := range f.pending {
		if _, done := f.visited[url]; done {
			continue
		}
		fresh = append(fresh, item)
	}

	kept := make(entryHeap, 0, f.queue.Len())
	for _, e := range f.queue {
		if _, stale := f.pending[e.item.url]; stale {
			continue
		}
		kept = append(kept, e)
	}
	f.queue = kept
	heap.Init(&f.queue)

	sort.Slice(fresh, func(i, j int) bool { return fresh[i].order < fresh[j].order })
	for _, item := range fresh {
		heap.Push(&f.queue, f.entryFor(item))
	}

	f.logger.Debug("frontier queue rebuilt",
		"rescored", len(fresh),
		"batch", len(f.pending),
		"queued", f.queue.Len(),
	)

	f.pending = make(map[string]*Item)
	f.rebuilds++
}

// Snapshot is a read-only view of one item.
type Snapshot struct {
	URL            string
	Wave           int
	Inlinks        int
	TrustedInlinks int
	Trusted        bool
	Fetched        bool
	Visited        bool
	Score          float64
}

// Lookup returns a snapshot of the item for url.
func (f *Frontier) Lookup(url string) (Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	item, ok := f.items[url]
	if !ok {
		return Snapshot{}, false
	}
	_, visited := f.visited[url]
	return Snapshot{
		URL:            item.url,
		Wave:           item.wave,
		Inlinks:        item.Inlinks(),
		TrustedInlinks: item.trustedInlinks,
		Trusted:        item.trusted,
		Fetched:        item.Fetched(),
		Visited:        visited,
		Score:          f.scorer.Score(item),
	}, true
}

// CrawledPages returns a copy of every item with non-empty page text,
// keyed by URL.
func (f *Frontier) CrawledPages() map[string]*model.Page {
	f.mu.Lock()
	defer f.mu.Unlock()

	pages := make(map[string]*model.Page)
	for url, item := range f.items {
		if item.text == "" {
			continue
		}
		pages[url] = item.page()
	}
	return pages
}

// Unprocessed returns the live items that were never fetched, ordered by
// URL, with their inlinks.
func (f *Frontier) Unprocessed() []model.PendingURL {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]model.PendingURL, 0)
	for url, item := range f.items {
		if item.text != "" {
			continue
		}
		out = append(out, model.PendingURL{
			URL:     url,
			Wave:    item.wave,
			Inlinks: item.sortedInlinks(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// Stats summarizes the Frontier's state.
type Stats struct {
	// Known is the number of live items.
	Known int
	// Queued is the number of heap entries, including stale ones.
	Queued int
	// Visited is the number of dequeued URLs.
	Visited int
	// Removed is the number of permanently barred URLs.
	Removed int
	// ExcludedDomains is the number of barred domains.
	ExcludedDomains int
	// Pending is the size of the current rescore batch.
	Pending int
	// Rebuilds is the number of queue rebuilds so far.
	Rebuilds int
}

// Stats returns current Frontier statistics.
func (f *Frontier) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()

	return Stats{
		Known:           len(f.items),
		Queued:          f.queue.Len(),
		Visited:         len(f.visited),
		Removed:         len(f.removed),
		ExcludedDomains: len(f.excluded),
		Pending:         len(f.pending),
		Rebuilds:        f.rebuilds,
	}
}

// Len returns the number of live, unvisited items.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for url := range f.items {
		if _, done := f.visited[url]; !done {
			n++
		}
	}
	return n
}
