package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/focuscrawl/internal/fetch"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "focuscrawl"

	// DefaultWorkers is the size of the fetch worker pool.
	DefaultWorkers = 10

	// DefaultTargetHits is the number of pages a crawl stops at.
	DefaultTargetHits = 1000

	// DefaultDomainVisitCap is the number of pages fetched from one
	// registrable domain before the domain is skipped.
	DefaultDomainVisitCap = 1000

	// DefaultRescoreBatch is the number of updated frontier items that
	// triggers a rebuild of the priority queue.
	DefaultRescoreBatch = 10000

	// DefaultMaxRedirects is the number of redirect hops followed per url.
	DefaultMaxRedirects = 5

	// DefaultRequestTimeout bounds each page request.
	DefaultRequestTimeout = 10 * time.Second

	// DefaultRobotsTimeout bounds each robots.txt request. Slow robots
	// servers are common, so it is longer than the page timeout.
	DefaultRobotsTimeout = 15 * time.Second

	// DefaultBackoff is how long an idle worker sleeps when the frontier is
	// empty and no other worker can refill it.
	DefaultBackoff = 1 * time.Second

	// DefaultMaxBodySize limits the response body size read per page.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// DefaultChunkSize is the number of pages per TREC output file.
	DefaultChunkSize = 500

	// DefaultOutputDir is where result files are written.
	DefaultOutputDir = "."
)

// Config holds all configuration options for a crawl.
// It is populated from defaults, the project file and CLI flags, in that
// order, and passed down explicitly.
type Config struct {
	// Seeds are the start urls. They are canonicalized by the crawler.
	Seeds []string

	// Terms is the relevance vocabulary. Multi-word terms are allowed.
	Terms []string

	// ExcludeDomains lists registrable domains that are never crawled.
	ExcludeDomains []string

	// Workers is the number of concurrent fetch workers.
	Workers int

	// TargetHits is the number of pages to crawl before stopping.
	TargetHits int

	// DomainVisitCap is the per-domain page limit.
	DomainVisitCap int

	// RescoreBatch is how many updated items trigger a queue rebuild.
	RescoreBatch int

	// MaxRedirects is the redirect hop limit per url.
	MaxRedirects int

	// RequestTimeout bounds HEAD and GET requests for pages.
	RequestTimeout time.Duration

	// RobotsTimeout bounds robots.txt requests.
	RobotsTimeout time.Duration

	// Backoff is the idle sleep of a worker that found nothing to do.
	Backoff time.Duration

	// RequestsPerSecond caps the total request rate across all domains.
	// Zero disables the global limiter; per-domain politeness still applies.
	RequestsPerSecond float64

	// UserAgent is sent with every request and matched against robots.txt.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes.
	MaxBodySize int64

	// RequireEnglish rejects pages whose Content-Language is not English.
	RequireEnglish bool

	// ChunkSize is the number of pages per TREC file.
	ChunkSize int

	// OutputDir receives the TREC chunks and the unprocessed url list.
	OutputDir string

	// JSONReport prints the run report as JSON instead of the plain summary.
	// Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport prints the run report as GitHub Flavored Markdown.
	MarkdownReport bool

	// ReportFile receives the run report instead of stdout.
	ReportFile string

	// DBDir is the directory of the SQLite database.
	// Defaults to XDG data directory (~/.local/share/focuscrawl on Linux).
	DBDir string

	// SaveToDB stores the run in the database.
	SaveToDB bool

	// LogFile sends logs to a rotated file instead of stderr.
	LogFile string

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is an explicit project file path. When empty the
	// current and home directories are searched.
	ConfigFilePath string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Workers:        DefaultWorkers,
		TargetHits:     DefaultTargetHits,
		DomainVisitCap: DefaultDomainVisitCap,
		RescoreBatch:   DefaultRescoreBatch,
		MaxRedirects:   DefaultMaxRedirects,
		RequestTimeout: DefaultRequestTimeout,
		RobotsTimeout:  DefaultRobotsTimeout,
		Backoff:        DefaultBackoff,
		UserAgent:      fetch.DefaultUserAgent,
		MaxBodySize:    DefaultMaxBodySize,
		RequireEnglish: true,
		ChunkSize:      DefaultChunkSize,
		OutputDir:      DefaultOutputDir,
		DBDir:          XDGDataDir(),
		SaveToDB:       true,
	}
}

// XDGDataDir returns the XDG data directory for focuscrawl.
// On Linux: ~/.local/share/focuscrawl
// On macOS: ~/Library/Application Support/focuscrawl
// On Windows: %LOCALAPPDATA%\focuscrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// Validate checks if the configuration is valid and returns the first
// problem found.
func (c *Config) Validate() error {
	if len(c.Seeds) == 0 {
		return ErrNoSeeds
	}
	if len(c.Terms) == 0 {
		return ErrNoTerms
	}
	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}
	if c.TargetHits <= 0 {
		return ErrInvalidTargetHits
	}
	if c.DomainVisitCap <= 0 {
		return ErrInvalidDomainVisitCap
	}
	if c.RescoreBatch <= 0 {
		return ErrInvalidRescoreBatch
	}
	if c.MaxRedirects < 0 {
		return ErrInvalidMaxRedirects
	}
	if c.RequestTimeout <= 0 || c.RobotsTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Backoff < 0 {
		return ErrInvalidBackoff
	}
	if c.RequestsPerSecond < 0 {
		return ErrInvalidRate
	}
	if c.MaxBodySize <= 0 {
		return ErrInvalidMaxBodySize
	}
	if c.ChunkSize <= 0 {
		return ErrInvalidChunkSize
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	return nil
}
