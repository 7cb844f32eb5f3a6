package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/focuscrawl/internal/model"
)

// SimpleWriter outputs a short plain-text run summary for the terminal.
type SimpleWriter struct {
	baseWriter

	// verbose adds the per-domain breakdown.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the summary.
func (w *SimpleWriter) Write(report *model.CrawlReport) (int, error) {
	var sb strings.Builder
	run := report.Run

	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 60))
	sb.WriteString("\n                    FOCUSCRAWL SUMMARY\n")
	sb.WriteString(strings.Repeat("=", 60))
	sb.WriteString("\n\n")

	fmt.Fprintf(&sb, "Run ID:        %s\n", run.ID)
	fmt.Fprintf(&sb, "Started:       %s\n", run.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&sb, "Duration:      %s\n", run.Duration())
	fmt.Fprintf(&sb, "Pages Crawled: %d / %d\n", len(report.Pages), run.TargetHits)
	fmt.Fprintf(&sb, "Links Found:   %d\n", report.EdgeCount())
	fmt.Fprintf(&sb, "Rejected URLs: %d\n", run.Failures)
	fmt.Fprintf(&sb, "Unprocessed:   %d\n", len(report.Unprocessed))

	switch run.Status {
	case model.RunStatusInterrupted:
		fmt.Fprintf(&sb, "Status:        INTERRUPTED - %s (partial results)\n", run.Error)
	case model.RunStatusRunning:
		sb.WriteString("Status:        Running\n")
	default:
		sb.WriteString("Status:        Complete\n")
	}

	if w.verbose {
		counts := countDomains(report.Pages)
		if len(counts) > 0 {
			sb.WriteString("\nPages per domain:\n")
			for _, c := range counts {
				fmt.Fprintf(&sb, "  %6d  %s\n", c.Pages, c.Domain)
			}
		}
	}
	sb.WriteString("\n")

	return w.output.Write([]byte(sb.String()))
}
