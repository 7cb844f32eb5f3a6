// Package robots answers politeness questions for the crawler: whether a
// URL may be fetched and how often a host may be contacted.
//
// robots.txt files are parsed with github.com/temoto/robotstxt. The
// non-standard Request-rate directive, which that parser ignores, is read
// separately; when it is absent a Crawl-delay is turned into an equivalent
// rate of one request per delay.
//
// A Cache fetches each host's robots.txt at most once per run. Concurrent
// lookups for the same host share one fetch.
package robots
