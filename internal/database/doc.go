// Package database provides SQLite-based storage for focuscrawl runs.
//
// The CrawlDB stores:
//   - One row per crawl invocation (seeds, terms, outcome)
//   - The pages crawled during a run, with their inlinks
//   - The link graph (outlinks with anchor text)
//   - Discovered urls that were never fetched
//
// The driver is modernc.org/sqlite, a CGO-free SQLite port, so the database
// is a single file and the binary cross-compiles without a C toolchain.
// A stored run can be exported again in any output format without
// recrawling.
package database
