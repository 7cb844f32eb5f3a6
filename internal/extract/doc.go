// Package extract turns fetched HTML into the pieces the crawler keeps:
// the page title, the plain text of its paragraphs, and its outgoing links
// with their anchor text.
//
// Links are canonicalized against the page URL, or against the document's
// <base href> when one is present. Links that do not resolve to http or
// https URLs are dropped.
package extract
