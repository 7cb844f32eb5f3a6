package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default project file name.
const DefaultConfigFile = ".focuscrawl"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File represents the structure of the .focuscrawl project file.
// Zero values leave the corresponding Config field untouched.
type File struct {
	// Seeds are start urls appended to those given on the command line.
	Seeds []string `yaml:"seeds,omitempty"`

	// Terms are relevance terms appended to those given with --term.
	Terms []string `yaml:"terms,omitempty"`

	// ExcludeDomains are domains never crawled.
	ExcludeDomains []string `yaml:"excludeDomains,omitempty"`

	// Crawl holds tunables of the crawl loop.
	Crawl CrawlSection `yaml:"crawl,omitempty"`

	// Output holds output locations.
	Output OutputSection `yaml:"output,omitempty"`
}

// CrawlSection is the crawl: block of the project file.
type CrawlSection struct {
	Workers           int      `yaml:"workers,omitempty"`
	TargetHits        int      `yaml:"hits,omitempty"`
	DomainVisitCap    int      `yaml:"domainCap,omitempty"`
	RescoreBatch      int      `yaml:"rescoreBatch,omitempty"`
	MaxRedirects      int      `yaml:"maxRedirects,omitempty"`
	Timeout           Duration `yaml:"timeout,omitempty"`
	RobotsTimeout     Duration `yaml:"robotsTimeout,omitempty"`
	Backoff           Duration `yaml:"backoff,omitempty"`
	RequestsPerSecond float64  `yaml:"rate,omitempty"`
	UserAgent         string   `yaml:"userAgent,omitempty"`
	MaxBodySize       int64    `yaml:"maxBodySize,omitempty"`

	// AnyLanguage disables the English Content-Language filter.
	AnyLanguage bool `yaml:"anyLanguage,omitempty"`
}

// OutputSection is the output: block of the project file.
type OutputSection struct {
	Dir       string `yaml:"dir,omitempty"`
	ChunkSize int    `yaml:"chunkSize,omitempty"`
	DBDir     string `yaml:"dbDir,omitempty"`
	NoDB      bool   `yaml:"noDB,omitempty"`
	LogFile   string `yaml:"logFile,omitempty"`
}

// Duration is a time.Duration written as a Go duration string ("10s").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// LoadConfigFile loads a project file.
// If the file does not exist, it returns ErrConfigNotFound.
// Callers decide whether that matters based on whether the path was
// given explicitly.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &cf, nil
}

// Apply copies the values set in the file onto cfg. Lists are appended,
// scalars replace the defaults.
func (cf *File) Apply(cfg *Config) {
	cfg.Seeds = append(cfg.Seeds, cf.Seeds...)
	cfg.Terms = append(cfg.Terms, cf.Terms...)
	cfg.ExcludeDomains = append(cfg.ExcludeDomains, cf.ExcludeDomains...)

	c := cf.Crawl
	if c.Workers != 0 {
		cfg.Workers = c.Workers
	}
	if c.TargetHits != 0 {
		cfg.TargetHits = c.TargetHits
	}
	if c.DomainVisitCap != 0 {
		cfg.DomainVisitCap = c.DomainVisitCap
	}
	if c.RescoreBatch != 0 {
		cfg.RescoreBatch = c.RescoreBatch
	}
	if c.MaxRedirects != 0 {
		cfg.MaxRedirects = c.MaxRedirects
	}
	if c.Timeout != 0 {
		cfg.RequestTimeout = time.Duration(c.Timeout)
	}
	if c.RobotsTimeout != 0 {
		cfg.RobotsTimeout = time.Duration(c.RobotsTimeout)
	}
	if c.Backoff != 0 {
		cfg.Backoff = time.Duration(c.Backoff)
	}
	if c.RequestsPerSecond != 0 {
		cfg.RequestsPerSecond = c.RequestsPerSecond
	}
	if c.UserAgent != "" {
		cfg.UserAgent = c.UserAgent
	}
	if c.MaxBodySize != 0 {
		cfg.MaxBodySize = c.MaxBodySize
	}
	if c.AnyLanguage {
		cfg.RequireEnglish = false
	}

	o := cf.Output
	if o.Dir != "" {
		cfg.OutputDir = o.Dir
	}
	if o.ChunkSize != 0 {
		cfg.ChunkSize = o.ChunkSize
	}
	if o.DBDir != "" {
		cfg.DBDir = o.DBDir
	}
	if o.NoDB {
		cfg.SaveToDB = false
	}
	if o.LogFile != "" {
		cfg.LogFile = o.LogFile
	}
}

// FindConfigFile searches for the project file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for .focuscrawl in the current directory
// 3. Look for .focuscrawl in the user's home directory
//
// Returns the path to the file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err == nil {
		cwdConfig := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(cwdConfig); err == nil {
			return cwdConfig
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		homeConfig := filepath.Join(home, DefaultConfigFile)
		if _, err := os.Stat(homeConfig); err == nil {
			return homeConfig
		}
	}

	return ""
}
