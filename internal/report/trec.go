package report

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nao1215/focuscrawl/internal/model"
)

// DefaultChunkSize is the number of documents per results file.
const DefaultChunkSize = 500

// UnprocessedFile is the name of the list of never-fetched URLs.
const UnprocessedFile = "unprocessed_links.txt"

// TRECWriter writes pages to a directory as numbered chunk files:
// results_N.txt holds TREC documents and links_N.txt holds one
// "source target" line per outlink of the same pages.
type TRECWriter struct {
	dir       string
	chunkSize int

	// files lists the paths written by the last Write.
	files []string
}

// TRECOption configures a TRECWriter.
type TRECOption func(*TRECWriter)

// WithChunkSize sets the number of documents per chunk.
func WithChunkSize(n int) TRECOption {
	return func(w *TRECWriter) {
		if n > 0 {
			w.chunkSize = n
		}
	}
}

// NewTRECWriter creates a TRECWriter that writes into dir.
func NewTRECWriter(dir string, opts ...TRECOption) *TRECWriter {
	w := &TRECWriter{dir: dir, chunkSize: DefaultChunkSize}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Files returns the paths written by the last Write.
func (w *TRECWriter) Files() []string {
	return w.files
}

// Write writes every page in chunks, followed by the unprocessed list when
// the report has one.
func (w *TRECWriter) Write(report *model.CrawlReport) (int, error) {
	if err := os.MkdirAll(w.dir, 0o750); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}
	w.files = w.files[:0]

	total := 0
	for chunk, start := 1, 0; start < len(report.Pages); chunk, start = chunk+1, start+w.chunkSize {
		end := min(start+w.chunkSize, len(report.Pages))
		n, err := w.writeChunk(chunk, report.Pages[start:end])
		total += n
		if err != nil {
			return total, err
		}
	}

	if len(report.Unprocessed) > 0 {
		n, err := WriteUnprocessed(filepath.Join(w.dir, UnprocessedFile), report.Unprocessed)
		total += n
		if err != nil {
			return total, err
		}
		w.files = append(w.files, filepath.Join(w.dir, UnprocessedFile))
	}
	return total, nil
}

func (w *TRECWriter) writeChunk(chunk int, pages []*model.Page) (int, error) {
	var docs, links strings.Builder
	for _, p := range pages {
		writeDoc(&docs, p)
		for _, target := range p.OutlinkURLs() {
			links.WriteString(p.URL)
			links.WriteByte(' ')
			links.WriteString(target)
			links.WriteByte('\n')
		}
	}

	total := 0
	for _, f := range []struct {
		name    string
		content string
	}{
		{fmt.Sprintf("results_%d.txt", chunk), docs.String()},
		{fmt.Sprintf("links_%d.txt", chunk), links.String()},
	} {
		path := filepath.Join(w.dir, f.name)
		if err := os.WriteFile(path, []byte(f.content), 0o600); err != nil {
			return total, fmt.Errorf("failed to write %s: %w", f.name, err)
		}
		total += len(f.content)
		w.files = append(w.files, path)
	}
	return total, nil
}

// writeDoc appends one TREC document. The <HEAD> element is omitted for
// pages without a title.
func writeDoc(sb *strings.Builder, p *model.Page) {
	sb.WriteString("<DOC>\n<DOCNO>")
	sb.WriteString(p.URL)
	sb.WriteString("</DOCNO>\n")
	if p.Title != "" {
		sb.WriteString("<HEAD>")
		sb.WriteString(p.Title)
		sb.WriteString("</HEAD>\n")
	}
	sb.WriteString("<TEXT>")
	sb.WriteString(p.Text)
	sb.WriteString("</TEXT>\n</DOC>\n")
}

// WriteUnprocessed writes one line per pending URL: the URL followed by
// its inlinks, space separated. The file can seed a later run.
func WriteUnprocessed(path string, pending []model.PendingURL) (int, error) {
	f, err := os.Create(path) //nolint:gosec // path is built from the configured output directory
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	total := 0
	for _, p := range pending {
		line := p.URL
		if len(p.Inlinks) > 0 {
			line += " " + strings.Join(p.Inlinks, " ")
		}
		n, err := bw.WriteString(line + "\n")
		total += n
		if err != nil {
			return total, err
		}
	}
	if err := bw.Flush(); err != nil {
		return total, err
	}
	return total, f.Close()
}

// ReadUnprocessed reads the URLs of an unprocessed_links.txt file, in file
// order, ignoring inlinks and blank lines.
func ReadUnprocessed(path string) ([]string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-supplied seed file
	if err != nil {
		return nil, err
	}
	var urls []string
	for line := range strings.Lines(string(data)) {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		urls = append(urls, fields[0])
	}
	return urls, nil
}
