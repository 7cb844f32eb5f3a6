package frontier

import (
	"net/url"
	"sort"
	"time"

	"github.com/nao1215/focuscrawl/internal/canonical"
	"github.com/nao1215/focuscrawl/internal/model"
)

// Item is the Frontier's state for one canonical URL.
//
// Item is not safe for concurrent use. Items owned by a Frontier are only
// read or written while holding the Frontier's lock.
type Item struct {
	url    string
	anchor string
	wave   int

	// order is the discovery sequence number, used to break score ties.
	order uint64

	trusted        bool
	inlinks        map[string]struct{}
	trustedInlinks int

	// outlinks is populated once, when the page is fetched.
	outlinks  map[model.Link]struct{}
	title     string
	text      string
	fetchedAt time.Time

	pathStems   []string
	anchorStems []string
}

// NewItem creates an item for a canonical URL first discovered through
// inlink with the given anchor text. Waves below 1 are clamped to 1 so the
// distance term never divides by zero or flips sign.
func NewItem(rawURL, inlink string, wave int, anchor string) *Item {
	if wave < 1 {
		wave = 1
	}
	item := &Item{
		url:         rawURL,
		anchor:      anchor,
		wave:        wave,
		trusted:     canonical.IsTrustedURL(rawURL),
		inlinks:     make(map[string]struct{}),
		pathStems:   Stems(urlPath(rawURL)),
		anchorStems: Stems(anchor),
	}
	if inlink != "" {
		item.AddInlink(inlink)
	}
	return item
}

// urlPath returns the path component of rawURL, or the whole string when
// it does not parse.
func urlPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Path
}

// URL returns the canonical URL of the item.
func (it *Item) URL() string { return it.url }

// Wave returns the hop distance from the nearest seed.
func (it *Item) Wave() int { return it.wave }

// Trusted reports whether the item is on a .edu/.gov/.org domain.
func (it *Item) Trusted() bool { return it.trusted }

// Fetched reports whether page text has been recorded for the item.
func (it *Item) Fetched() bool { return it.text != "" }

// AddInlink records that inlink points at the item. Self-links and
// duplicates are ignored. It reports whether the inlink set changed.
func (it *Item) AddInlink(inlink string) bool {
	if inlink == "" || inlink == it.url {
		return false
	}
	if _, ok := it.inlinks[inlink]; ok {
		return false
	}
	it.inlinks[inlink] = struct{}{}
	if canonical.IsTrustedURL(inlink) {
		it.trustedInlinks++
	}
	return true
}

// Inlinks returns the number of distinct inlinks.
func (it *Item) Inlinks() int { return len(it.inlinks) }

// TrustedInlinks returns the number of inlinks from trusted domains.
func (it *Item) TrustedInlinks() int { return it.trustedInlinks }

// record stores the fetch result. Outlinks are added to the set
// unconditionally; the text and title replace any previous values.
func (it *Item) record(outlinks []model.Link, text, title string, at time.Time) {
	if it.outlinks == nil {
		it.outlinks = make(map[model.Link]struct{}, len(outlinks))
	}
	for _, l := range outlinks {
		it.outlinks[l] = struct{}{}
	}
	it.text = text
	it.title = title
	it.fetchedAt = at
}

// page returns a detached copy of the item as a model.Page.
func (it *Item) page() *model.Page {
	p := &model.Page{
		URL:       it.url,
		Title:     it.title,
		Text:      it.text,
		Wave:      it.wave,
		Inlinks:   it.sortedInlinks(),
		Outlinks:  make([]model.Link, 0, len(it.outlinks)),
		FetchedAt: it.fetchedAt,
	}
	for l := range it.outlinks {
		p.Outlinks = append(p.Outlinks, l)
	}
	model.SortLinks(p.Outlinks)
	p.ComputeHash()
	return p
}

func (it *Item) sortedInlinks() []string {
	in := make([]string, 0, len(it.inlinks))
	for l := range it.inlinks {
		in = append(in, l)
	}
	sort.Strings(in)
	return in
}
