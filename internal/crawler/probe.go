package crawler

import (
	"context"
	"fmt"
	"net/url"

	"golang.org/x/text/language"

	"github.com/nao1215/focuscrawl/internal/canonical"
	"github.com/nao1215/focuscrawl/internal/fetch"
	"github.com/nao1215/focuscrawl/internal/robots"
)

var englishBase, _ = language.English.Base()

// probe issues HEAD requests starting at u, following at most
// maxRedirects redirects, and returns the URL of the eligible page.
// Every redirect target passes robots.txt and the politeness interval of
// its own host before it is requested.
func (c *Crawler) probe(ctx context.Context, u string) (string, error) {
	current := u
	seen := map[string]struct{}{current: {}}

	for redirects := 0; ; redirects++ {
		domain := canonical.Domain(current)
		if err := c.admit(domain); err != nil {
			return "", err
		}
		if redirects > 0 {
			if err := c.politeness(ctx, current, domain); err != nil {
				return "", err
			}
		}

		if err := c.waitLimiter(ctx); err != nil {
			return "", err
		}
		resp, err := c.fetcher.Head(ctx, current)
		if err != nil {
			return "", fmt.Errorf("head %s: %w", current, err)
		}

		switch {
		case resp.IsSuccess():
			if err := c.eligible(resp); err != nil {
				return "", err
			}
			return current, c.claim(u, current, domain)

		case resp.IsRedirect() && resp.StatusCode != 304:
			if redirects >= c.maxRedirects {
				return "", fmt.Errorf("%w: more than %d from %s", ErrTooManyRedirects, c.maxRedirects, u)
			}
			next, err := resolveLocation(current, resp.Location())
			if err != nil {
				return "", err
			}
			if _, ok := seen[next]; ok {
				return "", fmt.Errorf("%w: %s", ErrRedirectLoop, next)
			}
			seen[next] = struct{}{}
			c.logger.Debug("following redirect", "from", current, "to", next)
			current = next

		default:
			return "", fmt.Errorf("%w: %d from %s", ErrBadStatus, resp.StatusCode, current)
		}
	}
}

// resolveLocation resolves a redirect target against the URL that
// returned it.
func resolveLocation(current, location string) (string, error) {
	if location == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingLocation, current)
	}
	base, err := url.Parse(current)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedContent, err)
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("%w: bad location %q: %w", ErrMalformedContent, location, err)
	}
	next := base.ResolveReference(ref)
	next.Fragment = ""
	if next.Scheme != "http" && next.Scheme != "https" {
		return "", fmt.Errorf("%w: redirect to %q", canonical.ErrUnsupportedScheme, next.Scheme)
	}
	return next.String(), nil
}

// eligible checks the content type and language of a 2xx probe.
func (c *Crawler) eligible(resp *fetch.Response) error {
	if ct := resp.ContentType(); ct != "text/html" {
		return fmt.Errorf("%w: %q", ErrNotHTML, ct)
	}
	if !c.requireEnglish {
		return nil
	}
	if !isEnglish(resp.Header.Get("Content-Language")) {
		return fmt.Errorf("%w: %q", ErrNotEnglish, resp.Header.Get("Content-Language"))
	}
	return nil
}

// isEnglish reports whether a Content-Language value names any English
// variant.
func isEnglish(contentLanguage string) bool {
	if contentLanguage == "" {
		return false
	}
	tags, _, err := language.ParseAcceptLanguage(contentLanguage)
	if err != nil {
		return false
	}
	for _, tag := range tags {
		if base, _ := tag.Base(); base == englishBase {
			return true
		}
	}
	return false
}

// admit rejects domains that are skipped or have used up their visit cap.
// Reaching the cap skips the domain and bars it from the Frontier.
func (c *Crawler) admit(domain string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.skipped[domain]; ok {
		return fmt.Errorf("%w: %s", ErrDomainSkipped, domain)
	}
	if c.domainVisits[domain] >= c.domainVisitCap {
		return c.capReachedLocked(domain)
	}
	return nil
}

// capReachedLocked skips domain and bars it from the Frontier.
// c.mu must be held.
func (c *Crawler) capReachedLocked(domain string) error {
	if _, ok := c.skipped[domain]; !ok {
		c.skipped[domain] = struct{}{}
		c.frontier.RemoveDomain(domain)
		c.logger.Info("domain visit cap reached", "domain", domain, "cap", c.domainVisitCap)
	}
	return fmt.Errorf("%w: %s", ErrDomainCapReached, domain)
}

// claim counts a successful probe against the final domain and marks both
// the dequeued URL and its redirect target visited. A target that was
// already claimed is rejected, and so is a probe that finished after
// concurrent probes used up the domain's cap.
func (c *Crawler) claim(u, final, domain string) error {
	target := final
	if canon, err := canonical.Canonicalize(final, ""); err == nil {
		target = canon
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.visited[target]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyVisited, target)
	}
	if c.domainVisits[domain] >= c.domainVisitCap {
		return c.capReachedLocked(domain)
	}
	c.visited[u] = struct{}{}
	c.visited[target] = struct{}{}
	c.domainVisits[domain]++
	return nil
}

// compile-time check that the robots cache satisfies RulesSource.
var _ RulesSource = (*robots.Cache)(nil)
