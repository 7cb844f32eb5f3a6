package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nao1215/focuscrawl/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *CrawlDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newRun(t *testing.T, db *CrawlDB) *model.RunSummary {
	t.Helper()

	run := &model.RunSummary{
		StartedAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Seeds:      []string{"http://a.com/"},
		Terms:      []string{"solar power"},
		TargetHits: 10,
		Workers:    2,
	}
	if err := db.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	return run
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, FileName)); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != filepath.Join(dbDir, FileName) {
			t.Errorf("Path() = %q", db.Path())
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "missing")
		_, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err == nil {
			t.Fatal("expected error for missing database")
		}
		if _, statErr := os.Stat(dbDir); !os.IsNotExist(statErr) {
			t.Error("directory should not have been created")
		}
	})

	t.Run("CreateIfNotExists=false opens existing database", func(t *testing.T) {
		t.Parallel()

		dbDir := t.TempDir()
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		_ = db.Close()

		db, err = Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: false})
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		_ = db.Close()
	})
}

func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	if !opts.CreateIfNotExists {
		t.Error("CreateIfNotExists should default to true")
	}
	if !opts.EnableWAL {
		t.Error("EnableWAL should default to true")
	}
}

func TestRuns(t *testing.T) {
	t.Parallel()

	t.Run("create assigns id and running status", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		run := newRun(t, db)
		if run.ID == "" {
			t.Fatal("CreateRun() did not assign an ID")
		}

		got, err := db.GetRun(context.Background(), run.ID)
		if err != nil {
			t.Fatalf("GetRun() error = %v", err)
		}
		if got.Status != model.RunStatusRunning {
			t.Errorf("Status = %q, want running", got.Status)
		}
		if !got.StartedAt.Equal(run.StartedAt) {
			t.Errorf("StartedAt = %v, want %v", got.StartedAt, run.StartedAt)
		}
		if len(got.Seeds) != 1 || got.Seeds[0] != "http://a.com/" {
			t.Errorf("Seeds = %v", got.Seeds)
		}
		if len(got.Terms) != 1 || got.Terms[0] != "solar power" {
			t.Errorf("Terms = %v", got.Terms)
		}
		if !got.FinishedAt.IsZero() {
			t.Errorf("FinishedAt = %v, want zero", got.FinishedAt)
		}
	})

	t.Run("finish records outcome", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		run := newRun(t, db)
		run.Hits = 7
		run.Failures = 3
		run.Status = model.RunStatusInterrupted
		run.Error = "context canceled"
		run.FinishedAt = run.StartedAt.Add(time.Minute)
		if err := db.FinishRun(context.Background(), run); err != nil {
			t.Fatalf("FinishRun() error = %v", err)
		}

		got, err := db.GetRun(context.Background(), run.ID)
		if err != nil {
			t.Fatalf("GetRun() error = %v", err)
		}
		if got.Hits != 7 || got.Failures != 3 {
			t.Errorf("Hits/Failures = %d/%d, want 7/3", got.Hits, got.Failures)
		}
		if got.Status != model.RunStatusInterrupted || got.Error != "context canceled" {
			t.Errorf("Status/Error = %q/%q", got.Status, got.Error)
		}
		if got.Duration() != time.Minute {
			t.Errorf("Duration() = %v, want 1m", got.Duration())
		}
	})

	t.Run("unknown run", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		if _, err := db.GetRun(context.Background(), "nope"); !errors.Is(err, ErrRunNotFound) {
			t.Errorf("GetRun() error = %v, want ErrRunNotFound", err)
		}
		err := db.FinishRun(context.Background(), &model.RunSummary{ID: "nope", Status: model.RunStatusCompleted})
		if !errors.Is(err, ErrRunNotFound) {
			t.Errorf("FinishRun() error = %v, want ErrRunNotFound", err)
		}
	})

	t.Run("list is most recent first", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := context.Background()
		older := &model.RunSummary{StartedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), TargetHits: 1, Workers: 1}
		newer := &model.RunSummary{StartedAt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), TargetHits: 1, Workers: 1}
		for _, r := range []*model.RunSummary{older, newer} {
			if err := db.CreateRun(ctx, r); err != nil {
				t.Fatalf("CreateRun() error = %v", err)
			}
		}

		runs, err := db.ListRuns(ctx)
		if err != nil {
			t.Fatalf("ListRuns() error = %v", err)
		}
		if len(runs) != 2 {
			t.Fatalf("ListRuns() returned %d runs, want 2", len(runs))
		}
		if runs[0].ID != newer.ID || runs[1].ID != older.ID {
			t.Errorf("ListRuns() order = %s, %s", runs[0].ID, runs[1].ID)
		}
		if runs[0].Seeds == nil {
			t.Error("nil seeds should load as an empty list")
		}
	})
}

func TestPages(t *testing.T) {
	t.Parallel()

	fetched := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	pages := []*model.Page{
		{
			URL:       "http://b.com/",
			Text:      "beta",
			Wave:      2,
			Inlinks:   []string{"http://a.com/"},
			FetchedAt: fetched,
		},
		{
			URL:   "http://a.com/",
			Title: "Alpha",
			Text:  "alpha solar",
			Wave:  1,
			Outlinks: []model.Link{
				{URL: "http://b.com/", Anchor: "beta"},
				{URL: "http://c.com/", Anchor: ""},
			},
			FetchedAt: fetched,
		},
	}
	for _, p := range pages {
		p.ComputeHash()
	}

	t.Run("save and load", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		run := newRun(t, db)
		ctx := context.Background()
		if err := db.SavePages(ctx, run.ID, pages); err != nil {
			t.Fatalf("SavePages() error = %v", err)
		}

		got, err := db.GetPages(ctx, run.ID)
		if err != nil {
			t.Fatalf("GetPages() error = %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("GetPages() returned %d pages, want 2", len(got))
		}
		a, b := got[0], got[1]
		if a.URL != "http://a.com/" || b.URL != "http://b.com/" {
			t.Fatalf("pages not sorted by URL: %s, %s", a.URL, b.URL)
		}
		if a.Title != "Alpha" || a.Wave != 1 || a.Hash == "" {
			t.Errorf("page a = %+v", a)
		}
		if len(a.Outlinks) != 2 || a.Outlinks[0].Anchor != "beta" {
			t.Errorf("page a outlinks = %+v", a.Outlinks)
		}
		if len(b.Inlinks) != 1 || b.Inlinks[0] != "http://a.com/" {
			t.Errorf("page b inlinks = %v", b.Inlinks)
		}
		if !b.FetchedAt.Equal(fetched) {
			t.Errorf("FetchedAt = %v, want %v", b.FetchedAt, fetched)
		}
	})

	t.Run("saving twice replaces", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		run := newRun(t, db)
		ctx := context.Background()
		if err := db.SavePages(ctx, run.ID, pages); err != nil {
			t.Fatalf("SavePages() error = %v", err)
		}
		updated := &model.Page{URL: "http://b.com/", Text: "beta v2", Wave: 2}
		if err := db.SavePages(ctx, run.ID, []*model.Page{updated}); err != nil {
			t.Fatalf("SavePages() error = %v", err)
		}

		got, err := db.GetPages(ctx, run.ID)
		if err != nil {
			t.Fatalf("GetPages() error = %v", err)
		}
		if len(got) != 2 || got[1].Text != "beta v2" {
			t.Errorf("GetPages() = %+v", got)
		}
	})

	t.Run("runs are isolated", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		first := newRun(t, db)
		second := newRun(t, db)
		ctx := context.Background()
		if err := db.SavePages(ctx, first.ID, pages); err != nil {
			t.Fatalf("SavePages() error = %v", err)
		}
		got, err := db.GetPages(ctx, second.ID)
		if err != nil {
			t.Fatalf("GetPages() error = %v", err)
		}
		if len(got) != 0 {
			t.Errorf("second run has %d pages, want 0", len(got))
		}
	})
}

func TestUnprocessedAndReport(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	run := newRun(t, db)
	ctx := context.Background()

	page := &model.Page{URL: "http://a.com/", Text: "alpha", Wave: 1}
	if err := db.SavePages(ctx, run.ID, []*model.Page{page}); err != nil {
		t.Fatalf("SavePages() error = %v", err)
	}
	pending := []model.PendingURL{
		{URL: "http://z.com/", Wave: 2, Inlinks: []string{"http://a.com/"}},
		{URL: "http://y.com/", Wave: 3},
	}
	if err := db.SaveUnprocessed(ctx, run.ID, pending); err != nil {
		t.Fatalf("SaveUnprocessed() error = %v", err)
	}
	// A second save replaces the first.
	if err := db.SaveUnprocessed(ctx, run.ID, pending[:1]); err != nil {
		t.Fatalf("SaveUnprocessed() error = %v", err)
	}

	report, err := db.LoadReport(ctx, run.ID)
	if err != nil {
		t.Fatalf("LoadReport() error = %v", err)
	}
	if report.Run.ID != run.ID {
		t.Errorf("Run.ID = %q, want %q", report.Run.ID, run.ID)
	}
	if len(report.Pages) != 1 || report.Pages[0].URL != "http://a.com/" {
		t.Errorf("Pages = %+v", report.Pages)
	}
	if len(report.Unprocessed) != 1 || report.Unprocessed[0].URL != "http://z.com/" {
		t.Fatalf("Unprocessed = %+v", report.Unprocessed)
	}
	if got := report.Unprocessed[0].Inlinks; len(got) != 1 || got[0] != "http://a.com/" {
		t.Errorf("Unprocessed inlinks = %v", got)
	}

	if _, err := db.LoadReport(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("LoadReport(missing) error = %v, want ErrRunNotFound", err)
	}
}

func TestDeleteRun(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	run := newRun(t, db)
	ctx := context.Background()
	page := &model.Page{URL: "http://a.com/", Text: "alpha", Wave: 1, Outlinks: []model.Link{{URL: "http://b.com/"}}}
	if err := db.SavePages(ctx, run.ID, []*model.Page{page}); err != nil {
		t.Fatalf("SavePages() error = %v", err)
	}

	if err := db.DeleteRun(ctx, run.ID); err != nil {
		t.Fatalf("DeleteRun() error = %v", err)
	}
	if _, err := db.GetRun(ctx, run.ID); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun() after delete error = %v", err)
	}
	pages, err := db.GetPages(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetPages() error = %v", err)
	}
	if len(pages) != 0 {
		t.Errorf("pages left after delete: %d", len(pages))
	}
	if err := db.DeleteRun(ctx, run.ID); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("second DeleteRun() error = %v, want ErrRunNotFound", err)
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		zero bool
	}{
		{in: "2024-05-01T12:00:00.123456789Z"},
		{in: "2024-05-01T12:00:00Z"},
		{in: "2024-05-01 12:00:00"},
		{in: "", zero: true},
		{in: "yesterday", zero: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := parseTimestamp(tt.in); got.IsZero() != tt.zero {
				t.Errorf("parseTimestamp(%q) = %v", tt.in, got)
			}
		})
	}
}
