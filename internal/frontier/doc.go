// Package frontier holds the discovered-but-unfetched URLs of a focused
// crawl and decides which one is fetched next.
//
// # Components
//
//   - Scorer: the stemmed relevance vocabulary and the scoring weights
//   - Item: per-URL state (anchor text, inlinks, outlinks, wave, fetch result)
//   - Frontier: identity map, best-first queue, visited/removed/excluded sets
//     and the pending-rescore batch
//
// # Scoring
//
// An item's score is recomputed from its state whenever it is needed and
// is never stored on the item:
//
//	75 per vocabulary stem found in the URL path
//	+ 75 per vocabulary stem found in the anchor text
//	+ 1000 / wave
//	+ 5 per distinct inlink
//	+ 3 per inlink from a .edu/.gov/.org domain
//	+ 30 if the item's own domain is .edu/.gov/.org
//
// # Approximate priority
//
// The queue is a binary min-heap keyed by the negated score captured when
// an entry is pushed. Heaps have no cheap key update, so inlinks merged into
// a queued item raise its true score immediately but move it in the queue
// only when the pending-rescore batch is rebuilt (every 10,000 updates by
// default). Dequeue order therefore reflects priorities as of the last
// rebuild. This is a deliberate throughput trade-off, not a race: all state
// is read and written under the Frontier's single mutex.
//
// # Permanence
//
// A removed URL never re-enters the Frontier, and a visited URL is never
// queued again. Excluded domains block future additions only; entries that
// are already queued are filtered by the crawler at dequeue time.
package frontier
