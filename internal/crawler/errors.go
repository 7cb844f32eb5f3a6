package crawler

import (
	"errors"

	"github.com/nao1215/focuscrawl/internal/canonical"
)

// Sentinel errors for rejected URLs.
var (
	// ErrDisallowed means robots.txt forbids fetching the URL.
	ErrDisallowed = errors.New("disallowed by robots.txt")

	// ErrDomainSkipped means the URL's domain was skipped earlier in the run.
	ErrDomainSkipped = errors.New("domain is skipped")

	// ErrDomainCapReached means the domain hit its visit cap.
	ErrDomainCapReached = errors.New("domain visit cap reached")

	// ErrNotHTML means the probe returned a non-HTML content type.
	ErrNotHTML = errors.New("content type is not text/html")

	// ErrNotEnglish means the probe's Content-Language is missing or has no
	// English tag.
	ErrNotEnglish = errors.New("content language is not english")

	// ErrBadStatus means a request returned a status that is neither 2xx
	// nor a followable redirect.
	ErrBadStatus = errors.New("unexpected http status")

	// ErrTooManyRedirects means the redirect chain exceeded the hop cap.
	ErrTooManyRedirects = errors.New("too many redirects")

	// ErrRedirectLoop means a redirect chain revisited a URL.
	ErrRedirectLoop = errors.New("redirect loop")

	// ErrMissingLocation means a redirect response had no Location header.
	ErrMissingLocation = errors.New("redirect without location")

	// ErrAlreadyVisited means the URL, or the target it redirected to, was
	// already fetched in this run.
	ErrAlreadyVisited = errors.New("already visited")

	// ErrMalformedContent means the page body could not be extracted.
	ErrMalformedContent = errors.New("malformed page content")

	// ErrNoSeeds is returned by Start when there is nothing to crawl.
	ErrNoSeeds = errors.New("no valid seed urls")

	// ErrPanic wraps a recovered panic from a single URL's processing.
	ErrPanic = errors.New("panic while processing url")
)

// FailureClass groups rejection causes.
type FailureClass int

const (
	// FailureNone is not a failure.
	FailureNone FailureClass = iota
	// FailureNetwork is a timeout or connection error.
	FailureNetwork
	// FailureProtocol is a politeness or eligibility rejection.
	FailureProtocol
	// FailureMalformed is unusable input such as a bad URL or page.
	FailureMalformed
	// FailureInternal is a recovered panic.
	FailureInternal
)

// String returns the class name.
func (c FailureClass) String() string {
	switch c {
	case FailureNone:
		return "none"
	case FailureNetwork:
		return "network"
	case FailureProtocol:
		return "protocol"
	case FailureMalformed:
		return "malformed"
	case FailureInternal:
		return "internal"
	default:
		return "unknown"
	}
}

var protocolErrors = []error{
	ErrDisallowed,
	ErrDomainSkipped,
	ErrDomainCapReached,
	ErrNotHTML,
	ErrNotEnglish,
	ErrBadStatus,
	ErrTooManyRedirects,
	ErrRedirectLoop,
	ErrMissingLocation,
	ErrAlreadyVisited,
}

var malformedErrors = []error{
	ErrMalformedContent,
	canonical.ErrUnsupportedScheme,
	canonical.ErrMissingHost,
}

// Classify returns the failure class of err. Errors that are not one of
// the package's rejections are treated as network failures.
func Classify(err error) FailureClass {
	if err == nil {
		return FailureNone
	}
	if errors.Is(err, ErrPanic) {
		return FailureInternal
	}
	for _, target := range protocolErrors {
		if errors.Is(err, target) {
			return FailureProtocol
		}
	}
	for _, target := range malformedErrors {
		if errors.Is(err, target) {
			return FailureMalformed
		}
	}
	return FailureNetwork
}
