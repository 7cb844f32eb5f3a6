package robots

import (
	"bufio"
	"bytes"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/temoto/robotstxt"
)

// Rate is a request-rate limit: at most Requests requests per Per.
type Rate struct {
	Requests int
	Per      time.Duration
}

// Interval returns the minimum spacing between two requests.
func (r Rate) Interval() time.Duration {
	if r.Requests <= 0 {
		return 0
	}
	return r.Per / time.Duration(r.Requests)
}

// Rules answers robots.txt questions for one host.
type Rules interface {
	// CanFetch reports whether agent may fetch rawURL.
	CanFetch(agent, rawURL string) bool

	// RequestRate returns the rate limit that applies to agent, if any.
	RequestRate(agent string) (Rate, bool)
}

// AllowAll is a Rules that permits everything with no rate limit.
var AllowAll Rules = allowAll{}

type allowAll struct{}

func (allowAll) CanFetch(string, string) bool { return true }

func (allowAll) RequestRate(string) (Rate, bool) { return Rate{}, false }

// fileRules is a parsed robots.txt.
type fileRules struct {
	data  *robotstxt.RobotsData
	rates []groupRate
}

// Parse builds Rules from a robots.txt response status and body. 4xx
// statuses allow everything and 5xx statuses disallow everything.
func Parse(statusCode int, body []byte) (Rules, error) {
	data, err := robotstxt.FromStatusAndBytes(statusCode, body)
	if err != nil {
		return nil, err
	}
	r := &fileRules{data: data}
	if statusCode >= 200 && statusCode < 300 {
		r.rates = parseRequestRates(body)
	}
	return r, nil
}

// CanFetch implements Rules.
func (r *fileRules) CanFetch(agent, rawURL string) bool {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.RequestURI()
	}
	return r.data.TestAgent(path, agent)
}

// RequestRate implements Rules.
func (r *fileRules) RequestRate(agent string) (Rate, bool) {
	if rate, ok := matchRate(r.rates, agent); ok {
		return rate, true
	}
	group := r.data.FindGroup(agent)
	if group != nil && group.CrawlDelay > 0 {
		return Rate{Requests: 1, Per: group.CrawlDelay}, true
	}
	return Rate{}, false
}

// groupRate is a Request-rate directive and the user agents of the group
// it appeared in.
type groupRate struct {
	agents []string
	rate   Rate
}

// parseRequestRates scans a robots.txt body for Request-rate directives.
// A group starts at the first User-agent line following any other
// directive.
func parseRequestRates(body []byte) []groupRate {
	var (
		rates   []groupRate
		agents  []string
		inGroup bool
	)

	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line, _, _ := strings.Cut(scanner.Text(), "#")
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "user-agent":
			if inGroup {
				agents = nil
				inGroup = false
			}
			agents = append(agents, strings.ToLower(value))
		case "request-rate":
			inGroup = true
			if rate, ok := parseRate(value); ok && len(agents) > 0 {
				rates = append(rates, groupRate{agents: agents, rate: rate})
			}
		default:
			inGroup = true
		}
	}
	return rates
}

// parseRate parses "n/d" where d is a number of seconds, optionally
// suffixed with s, m or h.
func parseRate(value string) (Rate, bool) {
	fields := strings.Fields(strings.ToLower(value))
	if len(fields) == 0 {
		return Rate{}, false
	}
	n, d, ok := strings.Cut(fields[0], "/")
	if !ok {
		return Rate{}, false
	}
	requests, err := strconv.Atoi(n)
	if err != nil || requests <= 0 {
		return Rate{}, false
	}

	unit := time.Second
	switch {
	case strings.HasSuffix(d, "s"):
		d = strings.TrimSuffix(d, "s")
	case strings.HasSuffix(d, "m"):
		d, unit = strings.TrimSuffix(d, "m"), time.Minute
	case strings.HasSuffix(d, "h"):
		d, unit = strings.TrimSuffix(d, "h"), time.Hour
	}
	span, err := strconv.Atoi(d)
	if err != nil || span <= 0 {
		return Rate{}, false
	}
	return Rate{Requests: requests, Per: time.Duration(span) * unit}, true
}

// matchRate picks the rate of the first group naming agent, falling back to
// the "*" group. Names match when the group token is contained in the
// agent's product name.
func matchRate(rates []groupRate, agent string) (Rate, bool) {
	product, _, _ := strings.Cut(strings.ToLower(agent), "/")
	var (
		fallback Rate
		found    bool
	)
	for _, g := range rates {
		for _, a := range g.agents {
			if a == "*" {
				if !found {
					fallback, found = g.rate, true
				}
				continue
			}
			if product != "" && strings.Contains(product, a) {
				return g.rate, true
			}
		}
	}
	return fallback, found
}
