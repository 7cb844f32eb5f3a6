package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/focuscrawl/internal/model"
)

// FileName is the name of the database file inside the database directory.
const FileName = "focuscrawl.db"

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// CrawlDB provides SQLite-based storage for crawl runs and their pages.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CrawlDB in dbDir.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- One row per crawl invocation
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		seeds TEXT NOT NULL,
		terms TEXT NOT NULL,
		target_hits INTEGER NOT NULL,
		workers INTEGER NOT NULL,
		hits INTEGER DEFAULT 0,
		failures INTEGER DEFAULT 0,
		status TEXT NOT NULL,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- Crawled pages
	CREATE TABLE IF NOT EXISTS pages (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		title TEXT,
		text TEXT NOT NULL,
		wave INTEGER NOT NULL,
		inlinks TEXT,
		hash TEXT,
		fetched_at TEXT,
		PRIMARY KEY (run_id, url)
	);

	-- Outlinks of crawled pages
	CREATE TABLE IF NOT EXISTS links (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		from_url TEXT NOT NULL,
		to_url TEXT NOT NULL,
		anchor TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (run_id, from_url, to_url, anchor)
	);

	CREATE INDEX IF NOT EXISTS idx_links_to ON links(run_id, to_url);

	-- Urls discovered but never fetched
	CREATE TABLE IF NOT EXISTS unprocessed (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		wave INTEGER NOT NULL,
		inlinks TEXT,
		PRIMARY KEY (run_id, url)
	);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// CreateRun stores a new run. An empty run.ID is filled with a fresh UUID;
// an empty status becomes running.
func (cdb *CrawlDB) CreateRun(ctx context.Context, run *model.RunSummary) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = model.RunStatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	seeds, err := json.Marshal(nonNil(run.Seeds))
	if err != nil {
		return fmt.Errorf("failed to serialize seeds: %w", err)
	}
	terms, err := json.Marshal(nonNil(run.Terms))
	if err != nil {
		return fmt.Errorf("failed to serialize terms: %w", err)
	}

	query := `
	INSERT INTO runs (id, started_at, seeds, terms, target_hits, workers, status)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = cdb.db.ExecContext(ctx, query,
		run.ID,
		formatTimestamp(run.StartedAt),
		string(seeds),
		string(terms),
		run.TargetHits,
		run.Workers,
		string(run.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// FinishRun records the outcome of a run.
func (cdb *CrawlDB) FinishRun(ctx context.Context, run *model.RunSummary) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}

	query := `
	UPDATE runs SET finished_at = ?, hits = ?, failures = ?, status = ?, error = ?
	WHERE id = ?
	`
	result, err := cdb.db.ExecContext(ctx, query,
		formatTimestamp(run.FinishedAt),
		run.Hits,
		run.Failures,
		string(run.Status),
		run.Error,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}
	return nil
}

// SavePages stores pages and their outlinks for a run in one transaction.
// Saving a page twice replaces it.
func (cdb *CrawlDB) SavePages(ctx context.Context, runID string, pages []*model.Page) (err error) {
	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	pageStmt, err := tx.PrepareContext(ctx, `
	INSERT INTO pages (run_id, url, title, text, wave, inlinks, hash, fetched_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, url) DO UPDATE SET
		title = excluded.title,
		text = excluded.text,
		wave = excluded.wave,
		inlinks = excluded.inlinks,
		hash = excluded.hash,
		fetched_at = excluded.fetched_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare page insert: %w", err)
	}
	defer pageStmt.Close()

	linkStmt, err := tx.PrepareContext(ctx, `
	INSERT OR IGNORE INTO links (run_id, from_url, to_url, anchor)
	VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare link insert: %w", err)
	}
	defer linkStmt.Close()

	for _, p := range pages {
		inlinks, err := json.Marshal(nonNil(p.Inlinks))
		if err != nil {
			return fmt.Errorf("failed to serialize inlinks of %s: %w", p.URL, err)
		}
		if _, err := pageStmt.ExecContext(ctx,
			runID, p.URL, p.Title, p.Text, p.Wave, string(inlinks), p.Hash, formatTimestamp(p.FetchedAt),
		); err != nil {
			return fmt.Errorf("failed to save page %s: %w", p.URL, err)
		}
		for _, l := range p.Outlinks {
			if _, err := linkStmt.ExecContext(ctx, runID, p.URL, l.URL, l.Anchor); err != nil {
				return fmt.Errorf("failed to save link %s -> %s: %w", p.URL, l.URL, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit pages: %w", err)
	}
	return nil
}

// SaveUnprocessed replaces the list of never-fetched urls for a run.
func (cdb *CrawlDB) SaveUnprocessed(ctx context.Context, runID string, pending []model.PendingURL) (err error) {
	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM unprocessed WHERE run_id = ?", runID); err != nil {
		return fmt.Errorf("failed to clear unprocessed urls: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO unprocessed (run_id, url, wave, inlinks) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare unprocessed insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range pending {
		inlinks, err := json.Marshal(nonNil(p.Inlinks))
		if err != nil {
			return fmt.Errorf("failed to serialize inlinks of %s: %w", p.URL, err)
		}
		if _, err := stmt.ExecContext(ctx, runID, p.URL, p.Wave, string(inlinks)); err != nil {
			return fmt.Errorf("failed to save unprocessed url %s: %w", p.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit unprocessed urls: %w", err)
	}
	return nil
}

const runColumns = `id, started_at, finished_at, seeds, terms, target_hits, workers, hits, failures, status, error`

// ListRuns returns all stored runs, most recent first.
func (cdb *CrawlDB) ListRuns(ctx context.Context) ([]model.RunSummary, error) {
	rows, err := cdb.db.QueryContext(ctx, "SELECT "+runColumns+" FROM runs ORDER BY started_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []model.RunSummary
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetRun returns the run with the given ID, or ErrRunNotFound.
func (cdb *CrawlDB) GetRun(ctx context.Context, id string) (*model.RunSummary, error) {
	row := cdb.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.RunSummary, error) {
	var (
		run                 model.RunSummary
		started, seeds      string
		terms, status       string
		finished, errString sql.NullString
	)
	err := row.Scan(
		&run.ID,
		&started,
		&finished,
		&seeds,
		&terms,
		&run.TargetHits,
		&run.Workers,
		&run.Hits,
		&run.Failures,
		&status,
		&errString,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.StartedAt = parseTimestamp(started)
	if finished.Valid {
		run.FinishedAt = parseTimestamp(finished.String)
	}
	run.Status = model.RunStatus(status)
	run.Error = errString.String

	if err := json.Unmarshal([]byte(seeds), &run.Seeds); err != nil {
		return nil, fmt.Errorf("failed to parse seeds: %w", err)
	}
	if err := json.Unmarshal([]byte(terms), &run.Terms); err != nil {
		return nil, fmt.Errorf("failed to parse terms: %w", err)
	}
	return &run, nil
}

// GetPages returns the pages of a run with their outlinks, sorted by URL.
func (cdb *CrawlDB) GetPages(ctx context.Context, runID string) ([]*model.Page, error) {
	rows, err := cdb.db.QueryContext(ctx, `
	SELECT url, title, text, wave, inlinks, hash, fetched_at
	FROM pages WHERE run_id = ? ORDER BY url
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get pages: %w", err)
	}
	defer rows.Close()

	var pages []*model.Page
	byURL := make(map[string]*model.Page)
	for rows.Next() {
		var (
			p                          model.Page
			title, inlinks, hash, when sql.NullString
		)
		if err := rows.Scan(&p.URL, &title, &p.Text, &p.Wave, &inlinks, &hash, &when); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		p.Title = title.String
		p.Hash = hash.String
		p.FetchedAt = parseTimestamp(when.String)
		if inlinks.Valid && inlinks.String != "" {
			if err := json.Unmarshal([]byte(inlinks.String), &p.Inlinks); err != nil {
				return nil, fmt.Errorf("failed to parse inlinks of %s: %w", p.URL, err)
			}
		}
		pages = append(pages, &p)
		byURL[p.URL] = &p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if err := cdb.attachLinks(ctx, runID, byURL); err != nil {
		return nil, err
	}
	return pages, nil
}

func (cdb *CrawlDB) attachLinks(ctx context.Context, runID string, byURL map[string]*model.Page) error {
	rows, err := cdb.db.QueryContext(ctx, `
	SELECT from_url, to_url, anchor FROM links
	WHERE run_id = ? ORDER BY from_url, to_url, anchor
	`, runID)
	if err != nil {
		return fmt.Errorf("failed to get links: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var from string
		var l model.Link
		if err := rows.Scan(&from, &l.URL, &l.Anchor); err != nil {
			return fmt.Errorf("failed to scan link: %w", err)
		}
		if p, ok := byURL[from]; ok {
			p.Outlinks = append(p.Outlinks, l)
		}
	}
	return rows.Err()
}

// GetUnprocessed returns the never-fetched urls of a run, sorted by URL.
func (cdb *CrawlDB) GetUnprocessed(ctx context.Context, runID string) ([]model.PendingURL, error) {
	rows, err := cdb.db.QueryContext(ctx,
		"SELECT url, wave, inlinks FROM unprocessed WHERE run_id = ? ORDER BY url", runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get unprocessed urls: %w", err)
	}
	defer rows.Close()

	var pending []model.PendingURL
	for rows.Next() {
		var p model.PendingURL
		var inlinks sql.NullString
		if err := rows.Scan(&p.URL, &p.Wave, &inlinks); err != nil {
			return nil, fmt.Errorf("failed to scan unprocessed url: %w", err)
		}
		if inlinks.Valid && inlinks.String != "" {
			if err := json.Unmarshal([]byte(inlinks.String), &p.Inlinks); err != nil {
				return nil, fmt.Errorf("failed to parse inlinks of %s: %w", p.URL, err)
			}
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// LoadReport rebuilds the full report of a stored run.
func (cdb *CrawlDB) LoadReport(ctx context.Context, runID string) (*model.CrawlReport, error) {
	run, err := cdb.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	pages, err := cdb.GetPages(ctx, runID)
	if err != nil {
		return nil, err
	}
	pending, err := cdb.GetUnprocessed(ctx, runID)
	if err != nil {
		return nil, err
	}
	if pages == nil {
		pages = []*model.Page{}
	}
	return &model.CrawlReport{
		Run:         *run,
		Pages:       pages,
		Unprocessed: pending,
	}, nil
}

// DeleteRun removes a run and everything stored for it.
func (cdb *CrawlDB) DeleteRun(ctx context.Context, runID string) (err error) {
	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range []string{"links", "pages", "unprocessed"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE run_id = ?", runID); err != nil {
			return fmt.Errorf("failed to delete %s of run %s: %w", table, runID, err)
		}
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", runID)
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", runID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", runID, err)
	}
	if n == 0 {
		err = fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		return err
	}
	return tx.Commit()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999",
}

// parseTimestamp tries each known format and returns the zero time when
// none matches.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
