// Package canonical turns URLs into the stable identity strings used for
// deduplication throughout the crawler.
//
// Canonicalization is pure and deterministic: it never touches the network
// and holds no state. The rules are:
//
//   - scheme and host are lower-cased
//   - default ports (80 for http, 443 for https) are removed
//   - references without a host are resolved against a base URL
//   - https is rewritten to http, so both variants share one identity
//   - the fragment is dropped
//   - runs of slashes in the path collapse to a single slash
//
// Folding https into http trades distinctness for dedup power: a site that
// serves different content on the two schemes is crawled once.
//
// # Usage
//
//	key, err := canonical.Canonicalize("HTTPS://Example.COM:443/a//b#top", "")
//	// key == "http://example.com/a/b"
package canonical
