// Package crawler drives a pool of workers against a shared Frontier.
//
// # Worker loop
//
// Each worker repeatedly takes the best URL from the Frontier and moves it
// through four stages:
//
//  1. Domain check: URLs on domains that reached their visit cap are dropped.
//  2. Politeness gate: robots.txt must allow the URL, and the worker waits
//     until the host's request-rate interval has passed since the previous
//     request to that host.
//  3. Eligibility probe: a HEAD request, following at most MaxRedirects
//     redirects, must end in a 2xx HTML response whose Content-Language
//     is English.
//  4. Fetch and extract: the page is downloaded, its text, title and links
//     are extracted and handed back to the Frontier.
//
// A URL that fails any stage is removed from the Frontier for good and the
// worker backs off before its next iteration.
//
// # Termination
//
// A run ends when the target number of pages has been fetched, when the
// Frontier is empty and no worker is mid-fetch, or when the context is
// cancelled. In every case the pages fetched so far are returned.
//
// # Locking
//
// Per-domain timestamps, visit counters, the skipped-domain set and the hit
// counter share one mutex. Network I/O and sleeps happen outside it.
//
// # Usage
//
//	front := frontier.New([]string{"election", "senate"})
//	c := crawler.New(front, crawler.WithWorkers(10), crawler.WithTargetHits(500))
//	result, err := c.Start(ctx, []string{"https://en.wikipedia.org/wiki/Election"})
package crawler
