package canonical

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	whatwgUrl "github.com/nlnwa/whatwg-url/url"
	"golang.org/x/net/publicsuffix"
)

var (
	// ErrUnsupportedScheme is returned for references that do not resolve
	// to an http or https URL (mailto:, javascript:, ftp:, ...).
	ErrUnsupportedScheme = errors.New("unsupported url scheme")

	// ErrMissingHost is returned when a relative reference is given
	// without a base to resolve it against.
	ErrMissingHost = errors.New("url has no host and no base to resolve against")
)

// parser follows the WHATWG URL standard, which already lower-cases the
// scheme and host, drops default ports and gives special schemes a root path.
var parser = whatwgUrl.NewParser(whatwgUrl.WithPercentEncodeSinglePercentSign())

// Canonicalize returns the canonical form of rawURL. When rawURL carries no
// host it is resolved against base; base may be empty for absolute input.
func Canonicalize(rawURL, base string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", ErrMissingHost
	}

	var (
		parsed *whatwgUrl.Url
		err    error
	)
	if base != "" {
		parsed, err = parser.ParseRef(base, rawURL)
	} else {
		parsed, err = parser.Parse(rawURL)
	}
	if err != nil {
		if base == "" && !strings.Contains(rawURL, ":") {
			return "", ErrMissingHost
		}
		return "", fmt.Errorf("parse %q: %w", rawURL, err)
	}

	switch parsed.Scheme() {
	case "http", "https":
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, parsed.Scheme())
	}

	host := parsed.Host()
	if host == "" {
		return "", ErrMissingHost
	}
	if parsed.Port() == "80" {
		// Only reachable for https input: after folding to http, 80 is the
		// default port.
		host = parsed.Hostname()
	}

	var b strings.Builder
	b.Grow(len(host) + len(parsed.Pathname()) + len(parsed.Search()) + 8)
	b.WriteString("http://")
	b.WriteString(host)
	b.WriteString(collapseSlashes(parsed.Pathname()))
	b.WriteString(parsed.Search())
	return b.String(), nil
}

// MustCanonicalize is Canonicalize for literals known to be valid.
// It panics on error and is intended for tests and static seeds.
func MustCanonicalize(rawURL string) string {
	c, err := Canonicalize(rawURL, "")
	if err != nil {
		panic(err)
	}
	return c
}

// collapseSlashes replaces every run of '/' in path with a single '/'.
func collapseSlashes(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.Contains(path, "//") {
		return path
	}
	var b strings.Builder
	b.Grow(len(path))
	prevSlash := false
	for i := 0; i < len(path); i++ {
		c := path[i]
		if c == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Domain returns the lower-cased host of rawURL without its port.
// It returns an empty string for unparseable input.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// trustedSuffixes are the top-level labels treated as an authority signal.
var trustedSuffixes = map[string]bool{
	"edu": true,
	"gov": true,
	"org": true,
}

// IsTrusted reports whether host belongs to a .edu, .gov or .org domain.
// The host must own a registrable name under the suffix: "org" alone is
// not trusted, "wikipedia.org" is.
func IsTrusted(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return false
	}
	suffix, _ := publicsuffix.PublicSuffix(host)
	if suffix == host {
		return false
	}
	last := suffix
	if i := strings.LastIndexByte(suffix, '.'); i >= 0 {
		last = suffix[i+1:]
	}
	return trustedSuffixes[last]
}

// IsTrustedURL is IsTrusted applied to the host of rawURL.
func IsTrustedURL(rawURL string) bool {
	return IsTrusted(Domain(rawURL))
}
