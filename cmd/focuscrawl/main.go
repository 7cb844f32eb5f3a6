// Package main provides the entry point for the focuscrawl CLI.
//
// focuscrawl is a focused web crawler: starting from seed urls it fetches
// the pages most relevant to a set of terms first, and writes the crawled
// text and link graph as TREC files.
//
// Usage:
//
//	focuscrawl crawl -t "solar power" -n 500 https://example.org/
//	focuscrawl runs
//	focuscrawl export <run-id> -o out/
//
// See --help for all available options.
package main

func main() {
	Execute()
}
