package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
)

// DefaultUserAgent identifies the crawler to servers and robots.txt groups.
const DefaultUserAgent = "focuscrawl/1.0 (+https://github.com/nao1215/focuscrawl)"

// ErrBodyTooLarge is returned when a response body exceeds the size limit.
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// Response is a single HTTP response with its body fully read.
type Response struct {
	// URL is the requested URL.
	URL string

	// StatusCode is the HTTP status code.
	StatusCode int

	// Header holds the response headers.
	Header http.Header

	// Body is the response body. It is empty for HEAD requests and UTF-8
	// for HTML responses.
	Body []byte
}

// ContentType returns the media type of the response, lower-cased and
// without parameters.
func (r *Response) ContentType() string {
	return MediaType(r.Header.Get("Content-Type"))
}

// Location returns the redirect target header, if any.
func (r *Response) Location() string {
	return r.Header.Get("Location")
}

// IsRedirect reports whether the status is a 3xx redirect.
func (r *Response) IsRedirect() bool {
	return r.StatusCode >= 300 && r.StatusCode < 400
}

// IsSuccess reports whether the status is 2xx.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// MediaType extracts the media type from a Content-Type header value.
func MediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// Fetcher performs HTTP requests for the crawler.
type Fetcher interface {
	// Head issues a metadata-only request.
	Head(ctx context.Context, rawURL string) (*Response, error)

	// Get issues a full request and reads the body.
	Get(ctx context.Context, rawURL string) (*Response, error)
}

// HTTPFetcher is a Fetcher backed by net/http.
type HTTPFetcher struct {
	// client must not follow redirects.
	client *http.Client

	// userAgent is sent on every request.
	userAgent string

	// maxBodySize limits how many body bytes are read.
	maxBodySize int64

	// timeout bounds each request, including reading the body.
	timeout time.Duration
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithMaxBodySize sets the maximum number of body bytes read per response.
func WithMaxBodySize(size int64) Option {
	return func(f *HTTPFetcher) {
		if size > 0 {
			f.maxBodySize = size
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(f *HTTPFetcher) {
		if timeout > 0 {
			f.timeout = timeout
		}
	}
}

// WithTransport replaces the HTTP transport, mostly for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *HTTPFetcher) {
		f.client.Transport = rt
	}
}

// NewHTTPFetcher creates an HTTPFetcher with a client that returns
// redirects to the caller instead of following them.
func NewHTTPFetcher(opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		client: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		userAgent:   DefaultUserAgent,
		maxBodySize: 5 * 1024 * 1024, // 5MB
		timeout:     10 * time.Second,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// UserAgent returns the User-Agent the fetcher sends.
func (f *HTTPFetcher) UserAgent() string {
	return f.userAgent
}

// Head implements Fetcher.
func (f *HTTPFetcher) Head(ctx context.Context, rawURL string) (*Response, error) {
	return f.do(ctx, http.MethodHead, rawURL)
}

// Get implements Fetcher.
func (f *HTTPFetcher) Get(ctx context.Context, rawURL string) (*Response, error) {
	return f.do(ctx, http.MethodGet, rawURL)
}

func (f *HTTPFetcher) do(ctx context.Context, method, rawURL string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out := &Response{
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
	}
	if method == http.MethodHead {
		return out, nil
	}

	// Read one byte past the limit to tell "exactly at" from "over".
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBodySize {
		return nil, fmt.Errorf("%w: %s", ErrBodyTooLarge, rawURL)
	}

	if out.ContentType() == "text/html" {
		body = toUTF8(body, resp.Header.Get("Content-Type"))
	}
	out.Body = body
	return out, nil
}

// toUTF8 decodes an HTML body to UTF-8. Undecodable input is returned
// unchanged.
func toUTF8(body []byte, contentType string) []byte {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return body
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return body
	}
	return decoded
}
