// Package fetch is the HTTP collaborator of the crawler.
//
// A Fetcher issues single HEAD and GET requests and never follows
// redirects itself: 3xx responses are returned to the caller with their
// Location header so the crawler can bound and inspect every hop.
//
// HTML bodies are decoded to UTF-8 using the charset declared in the
// Content-Type header or sniffed from the document.
package fetch
