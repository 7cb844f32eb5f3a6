package robots

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/nao1215/focuscrawl/internal/fetch"
)

// maxRobotsRedirects is how many redirects are followed for robots.txt
// before the host is treated as having none.
const maxRobotsRedirects = 5

// ErrInvalidURL is returned when a URL has no scheme or host.
var ErrInvalidURL = errors.New("url has no scheme or host")

// Cache fetches and remembers robots.txt rules per host.
type Cache struct {
	fetcher fetch.Fetcher
	logger  *slog.Logger

	mu    sync.RWMutex
	hosts map[string]Rules

	group singleflight.Group
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCache creates a Cache that fetches robots.txt through fetcher.
func NewCache(fetcher fetch.Fetcher, opts ...CacheOption) *Cache {
	c := &Cache{
		fetcher: fetcher,
		logger:  slog.Default(),
		hosts:   make(map[string]Rules),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Rules returns the rules for the host of rawURL, fetching robots.txt on
// first use. Network failures are returned and not cached, so a later
// lookup retries.
func (c *Cache) Rules(ctx context.Context, rawURL string) (Rules, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	key := strings.ToLower(u.Host)

	c.mu.RLock()
	rules, ok := c.hosts[key]
	c.mu.RUnlock()
	if ok {
		return rules, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		c.mu.RLock()
		cached, ok := c.hosts[key]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}

		robotsURL := strings.ToLower(u.Scheme) + "://" + key + "/robots.txt"
		rules, err := c.load(ctx, robotsURL)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.hosts[key] = rules
		c.mu.Unlock()
		return rules, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Rules), nil
}

// Len returns the number of hosts with cached rules.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.hosts)
}

// load fetches robots.txt, following a bounded number of redirects.
func (c *Cache) load(ctx context.Context, robotsURL string) (Rules, error) {
	current := robotsURL
	for range maxRobotsRedirects + 1 {
		resp, err := c.fetcher.Get(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", current, err)
		}

		if resp.IsRedirect() {
			next, err := resolve(current, resp.Location())
			if err != nil {
				c.logger.Debug("robots.txt redirect without usable location", "url", current)
				return AllowAll, nil
			}
			current = next
			continue
		}

		rules, err := Parse(resp.StatusCode, resp.Body)
		if err != nil {
			c.logger.Debug("unusable robots.txt, allowing all", "url", current, "status", resp.StatusCode, "error", err)
			return AllowAll, nil
		}
		return rules, nil
	}

	c.logger.Debug("too many robots.txt redirects, allowing all", "url", robotsURL)
	return AllowAll, nil
}

func resolve(base, ref string) (string, error) {
	if ref == "" {
		return "", ErrInvalidURL
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}
