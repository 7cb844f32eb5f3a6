package model

import "sort"

// CrawlReport bundles everything the output writers need about one run.
type CrawlReport struct {
	// Run describes the invocation.
	Run RunSummary `json:"run"`

	// Pages are the crawled pages, sorted by URL.
	Pages []*Page `json:"pages"`

	// Unprocessed are discovered URLs that were never fetched, sorted by URL.
	Unprocessed []PendingURL `json:"unprocessed,omitempty"`
}

// NewCrawlReport builds a report from a run summary and the crawl result.
func NewCrawlReport(run RunSummary, pages map[string]*Page, unprocessed []PendingURL) *CrawlReport {
	r := &CrawlReport{
		Run:         run,
		Pages:       make([]*Page, 0, len(pages)),
		Unprocessed: unprocessed,
	}
	for _, u := range SortedURLs(pages) {
		r.Pages = append(r.Pages, pages[u])
	}
	return r
}

// PageMap returns the pages keyed by URL.
func (r *CrawlReport) PageMap() map[string]*Page {
	m := make(map[string]*Page, len(r.Pages))
	for _, p := range r.Pages {
		m[p.URL] = p
	}
	return m
}

// EdgeCount returns the total number of outlinks across all pages.
func (r *CrawlReport) EdgeCount() int {
	n := 0
	for _, p := range r.Pages {
		n += len(p.Outlinks)
	}
	return n
}

// TopByInlinks returns up to n pages with the most inlinks, ties broken
// by URL.
func (r *CrawlReport) TopByInlinks(n int) []*Page {
	top := make([]*Page, len(r.Pages))
	copy(top, r.Pages)
	sort.SliceStable(top, func(i, j int) bool {
		if len(top[i].Inlinks) != len(top[j].Inlinks) {
			return len(top[i].Inlinks) > len(top[j].Inlinks)
		}
		return top[i].URL < top[j].URL
	})
	if n >= 0 && len(top) > n {
		top = top[:n]
	}
	return top
}
