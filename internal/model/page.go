package model

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"
)

// Link is a directed edge discovered on a page: the canonical target URL
// and the anchor text it was reached through.
type Link struct {
	// URL is the canonical target URL.
	URL string `json:"url"`

	// Anchor is the visible text of the <a> element, whitespace-collapsed.
	Anchor string `json:"anchor,omitempty"`
}

// Page is a crawled page together with its position in the link graph.
type Page struct {
	// URL is the canonical URL of the page.
	URL string `json:"url"`

	// Title is the content of the <title> element, if any.
	Title string `json:"title,omitempty"`

	// Text is the extracted plain text. Pages with empty text are not
	// part of a crawl result.
	Text string `json:"text"`

	// Wave is the hop distance from the nearest seed (seeds are wave 1).
	Wave int `json:"wave"`

	// Inlinks are the canonical URLs of known pages linking here.
	Inlinks []string `json:"inlinks,omitempty"`

	// Outlinks are the links extracted from this page.
	Outlinks []Link `json:"outlinks,omitempty"`

	// FetchedAt is when the page content was recorded.
	FetchedAt time.Time `json:"fetched_at"`

	// Hash is the SHA-256 of Text, used to spot duplicate content.
	Hash string `json:"hash,omitempty"`
}

// ComputeHash calculates and sets the SHA-256 hash of the page text.
func (p *Page) ComputeHash() {
	if p.Text == "" {
		p.Hash = ""
		return
	}

	hash := sha256.Sum256([]byte(p.Text))
	p.Hash = hex.EncodeToString(hash[:])
}

// OutlinkURLs returns the distinct target URLs of the page's outlinks in
// sorted order.
func (p *Page) OutlinkURLs() []string {
	seen := make(map[string]bool, len(p.Outlinks))
	urls := make([]string, 0, len(p.Outlinks))
	for _, l := range p.Outlinks {
		if seen[l.URL] {
			continue
		}
		seen[l.URL] = true
		urls = append(urls, l.URL)
	}
	sort.Strings(urls)
	return urls
}

// SortedURLs returns the keys of pages in ascending order. Writers use it
// to produce deterministic output regardless of map iteration order.
func SortedURLs(pages map[string]*Page) []string {
	urls := make([]string, 0, len(pages))
	for u := range pages {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}

// SortLinks orders links by URL, then anchor text.
func SortLinks(links []Link) {
	sort.Slice(links, func(i, j int) bool {
		if links[i].URL != links[j].URL {
			return links[i].URL < links[j].URL
		}
		return links[i].Anchor < links[j].Anchor
	})
}

// PendingURL is a discovered URL that was never fetched. Lists of pending
// URLs with their inlinks can seed a later run.
type PendingURL struct {
	// URL is the canonical URL.
	URL string `json:"url"`

	// Wave is the hop distance at which the URL was first discovered.
	Wave int `json:"wave"`

	// Inlinks are the known pages linking here, sorted.
	Inlinks []string `json:"inlinks,omitempty"`
}
