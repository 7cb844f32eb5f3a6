package extract

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/nao1215/focuscrawl/internal/canonical"
	"github.com/nao1215/focuscrawl/internal/model"
)

// Content is what an Extractor pulls out of one page.
type Content struct {
	// Title is the text of the <title> element.
	Title string

	// Text is the space-joined text of every <p> element.
	Text string

	// Links are the distinct (canonical URL, anchor text) pairs of the
	// page's <a href> elements, in document order.
	Links []model.Link
}

// Extractor extracts content from a fetched page.
type Extractor interface {
	Extract(body []byte, sourceURL string) (*Content, error)
}

// HTMLExtractor is an Extractor for HTML documents.
type HTMLExtractor struct{}

// NewHTMLExtractor creates an HTMLExtractor.
func NewHTMLExtractor() *HTMLExtractor {
	return &HTMLExtractor{}
}

// Extract implements Extractor.
func (e *HTMLExtractor) Extract(body []byte, sourceURL string) (*Content, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	base := sourceURL
	if href := findBase(doc); href != "" {
		if resolved, err := canonical.Canonicalize(href, sourceURL); err == nil {
			base = resolved
		}
	}

	var (
		paragraphs []string
		title      string
		links      []model.Link
		seen       = make(map[model.Link]struct{})
	)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if title == "" {
					title = collapse(textOf(n))
				}
				return
			case atom.P:
				if text := collapse(textOf(n)); text != "" {
					paragraphs = append(paragraphs, text)
				}
			case atom.A:
				if link, ok := linkOf(n, base); ok {
					if _, dup := seen[link]; !dup {
						seen[link] = struct{}{}
						links = append(links, link)
					}
				}
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return &Content{
		Title: title,
		Text:  strings.Join(paragraphs, " "),
		Links: links,
	}, nil
}

// linkOf builds a link from an <a> element. It reports false when the
// element has no usable href.
func linkOf(n *html.Node, base string) (model.Link, bool) {
	href := strings.TrimSpace(getAttr(n, "href"))
	if href == "" || strings.HasPrefix(href, "#") {
		return model.Link{}, false
	}
	target, err := canonical.Canonicalize(href, base)
	if err != nil {
		return model.Link{}, false
	}
	return model.Link{URL: target, Anchor: collapse(textOf(n))}, true
}

// findBase returns the href of the first <base> element.
func findBase(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Base {
		return strings.TrimSpace(getAttr(n, "href"))
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if href := findBase(c); href != "" {
			return href
		}
	}
	return ""
}

// textOf concatenates the text nodes below n, skipping scripts and styles.
func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			return
		case html.ElementNode:
			if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
				return
			}
			if n.DataAtom == atom.Br {
				sb.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// collapse trims s and replaces runs of whitespace with a single space.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
