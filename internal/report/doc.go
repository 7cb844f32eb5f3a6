// Package report writes crawl results.
//
// This package contains writers for different output formats:
//   - TRECWriter: results_N.txt documents in TREC <DOC> format plus
//     links_N.txt edge lists, in fixed-size chunks, and an
//     unprocessed_links.txt list of URLs that were never fetched
//   - MarkdownWriter: a run summary for sharing
//   - JSONWriter: the full report for tool integration
//   - SimpleWriter: a short plain-text summary for the terminal
//
// Writers implement the Writer interface, allowing them to be used
// interchangeably and composed for multi-format output.
package report
