package crawler

import (
	"context"
	"fmt"
	"time"
)

// politeness checks robots.txt for u and waits out the host's request
// interval. The robots lookup and the wait happen outside the lock; only
// the slot reservation takes it.
func (c *Crawler) politeness(ctx context.Context, u, domain string) error {
	rules, err := c.robots.Rules(ctx, u)
	if err != nil {
		return fmt.Errorf("robots.txt for %s: %w", domain, err)
	}
	if !rules.CanFetch(c.userAgent, u) {
		return fmt.Errorf("%w: %s", ErrDisallowed, u)
	}

	var interval time.Duration
	if r, ok := rules.RequestRate(c.userAgent); ok {
		interval = r.Interval()
	}

	wait := c.reserve(domain, interval)
	if wait > 0 {
		c.logger.Debug("waiting for politeness interval", "domain", domain, "wait", wait)
		if !sleep(ctx, wait) {
			return ctx.Err()
		}
	}
	return nil
}

// reserve books the next request slot for domain and returns how long the
// caller must wait for it. Slots are spaced at least interval apart, so
// workers reserving concurrently queue up behind each other.
func (c *Crawler) reserve(domain string, interval time.Duration) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	slot := now
	if last, ok := c.lastRequest[domain]; ok && interval > 0 {
		if next := last.Add(interval); next.After(now) {
			slot = next
		}
	}
	c.lastRequest[domain] = slot
	return slot.Sub(now)
}
