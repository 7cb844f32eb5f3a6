// Package model defines the data structures shared by the crawler, the
// output writers and the database.
//
// This package contains the following main types:
//   - Link: an outgoing (url, anchor text) pair discovered on a page
//   - Page: a fetched page with its text, title and link neighbourhood
//   - RunSummary: bookkeeping for one crawl invocation
//
// Models live in their own package so that crawler, report and database
// can share them without import cycles. They are JSON-serializable for
// report output and database storage.
package model
