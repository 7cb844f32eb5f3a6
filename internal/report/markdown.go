package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/focuscrawl/internal/model"
)

// Limits for the Markdown tables.
const (
	markdownTopPages   = 20
	markdownTopDomains = 10
)

// MarkdownWriter outputs a run summary in Markdown format.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.CrawlReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeStatus(md, report)
	w.writeDomains(md, report)
	w.writeTopPages(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the run information table.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.CrawlReport) {
	run := report.Run
	md.H1("Crawl Report")
	md.PlainText("")

	finished := "-"
	if !run.FinishedAt.IsZero() {
		finished = run.FinishedAt.Format("2006-01-02 15:04:05 MST")
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run ID", "`" + run.ID + "`"},
			{"Started", run.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Finished", finished},
			{"Duration", run.Duration().String()},
			{"Relevance Terms", joinOrDash(run.Terms)},
			{"Seeds", strconv.Itoa(len(run.Seeds))},
			{"Workers", strconv.Itoa(run.Workers)},
			{"Target Hits", strconv.Itoa(run.TargetHits)},
			{"Pages Crawled", strconv.Itoa(len(report.Pages))},
			{"Links Found", strconv.Itoa(report.EdgeCount())},
			{"Rejected URLs", strconv.Itoa(run.Failures)},
			{"Unprocessed URLs", strconv.Itoa(len(report.Unprocessed))},
		},
	})
	md.PlainText("")
}

// writeStatus writes an alert describing how the run ended.
func (w *MarkdownWriter) writeStatus(md *markdown.Markdown, report *model.CrawlReport) {
	run := report.Run
	switch {
	case run.Status == model.RunStatusInterrupted:
		md.Warningf("Run interrupted: %s. The pages below are a partial result.", run.Error)
	case run.TargetHits > 0 && len(report.Pages) < run.TargetHits:
		md.Note(fmt.Sprintf("The frontier ran out of URLs after %d of %d pages.", len(report.Pages), run.TargetHits))
	default:
		md.Tip("Run completed.")
	}
	md.PlainText("")
}

// writeDomains writes the pages-per-domain table and pie chart.
func (w *MarkdownWriter) writeDomains(md *markdown.Markdown, report *model.CrawlReport) {
	md.H2("Domains")
	md.PlainText("")

	counts := countDomains(report.Pages)
	if len(counts) == 0 {
		md.PlainText("No pages were crawled.")
		md.PlainText("")
		return
	}

	shown := counts
	if len(shown) > markdownTopDomains {
		shown = shown[:markdownTopDomains]
	}

	rows := make([][]string, len(shown))
	for i, c := range shown {
		rows[i] = []string{"`" + c.Domain + "`", strconv.Itoa(c.Pages)}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Domain", "Pages"},
		Rows:   rows,
	})
	md.PlainText("")

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Pages per Domain"),
		piechart.WithShowData(true),
	)
	other := 0
	for i, c := range counts {
		if i < markdownTopDomains {
			chart.LabelAndIntValue(c.Domain, uint64(c.Pages))
			continue
		}
		other += c.Pages
	}
	if other > 0 {
		chart.LabelAndIntValue("other", uint64(other))
	}
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeTopPages writes the most linked-to pages.
func (w *MarkdownWriter) writeTopPages(md *markdown.Markdown, report *model.CrawlReport) {
	top := report.TopByInlinks(markdownTopPages)
	if len(top) == 0 {
		return
	}

	md.H2("Most Linked Pages")
	md.PlainText("")

	rows := make([][]string, len(top))
	for i, p := range top {
		title := p.Title
		if title == "" {
			title = "-"
		}
		rows[i] = []string{
			truncateString(p.URL, 60),
			truncateString(title, 40),
			strconv.Itoa(p.Wave),
			strconv.Itoa(len(p.Inlinks)),
			strconv.Itoa(len(p.Outlinks)),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Title", "Wave", "Inlinks", "Outlinks"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [focuscrawl](https://github.com/nao1215/focuscrawl)*")
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	out := items[0]
	for _, s := range items[1:] {
		out += ", " + s
	}
	return out
}
