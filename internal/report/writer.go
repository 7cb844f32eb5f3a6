package report

import (
	"io"
	"sort"

	"github.com/nao1215/focuscrawl/internal/canonical"
	"github.com/nao1215/focuscrawl/internal/model"
)

// Writer defines the interface for report output.
type Writer interface {
	// Write outputs the report to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(report *model.CrawlReport) (int, error)
}

// MultiWriter writes to multiple Writers in order.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to every Writer. It keeps going after a
// failure so one broken sink does not lose the others, and returns the
// first error.
func (m *MultiWriter) Write(report *model.CrawlReport) (int, error) {
	var (
		total    int
		firstErr error
	)
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return total, firstErr
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// domainCount is the number of crawled pages on one domain.
type domainCount struct {
	Domain string
	Pages  int
}

// countDomains groups pages by domain, most pages first.
func countDomains(pages []*model.Page) []domainCount {
	counts := make(map[string]int)
	for _, p := range pages {
		counts[canonical.Domain(p.URL)]++
	}
	out := make([]domainCount, 0, len(counts))
	for d, n := range counts {
		out = append(out, domainCount{Domain: d, Pages: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pages != out[j].Pages {
			return out[i].Pages > out[j].Pages
		}
		return out[i].Domain < out[j].Domain
	})
	return out
}

// truncateString truncates a string to maxLen runes with ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
