package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/focuscrawl/internal/config"
	"github.com/nao1215/focuscrawl/internal/database"
	"github.com/nao1215/focuscrawl/internal/model"
)

// NewRunsCmd creates the runs command.
// This command lists the crawl runs stored in the database.
func NewRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded crawl runs",
		Long: `Runs lists the crawl runs recorded in the database, most recent first.

Use the run ID with 'focuscrawl export' to write a stored run out again.

Examples:
  # List runs
  focuscrawl runs

  # List runs as JSON
  focuscrawl runs --json

  # Delete a run and its pages
  focuscrawl runs --delete 3f1c2a9e-...`,
		Args: cobra.NoArgs,
		RunE: runRunsCmd,
	}

	cmd.Flags().BoolP("json", "j", false, "Output the run list as JSON")
	cmd.Flags().String("delete", "", "Delete the run with this ID")
	cmd.Flags().String("db-dir", "", "Database directory (default: XDG data directory)")

	return cmd
}

// openExistingDB opens the database in dir, or the XDG data directory when
// dir is empty. It does not create a missing database.
func openExistingDB(dir string) (*database.CrawlDB, error) {
	if dir == "" {
		dir = config.XDGDataDir()
	}
	opts := database.DefaultOptions()
	opts.CreateIfNotExists = false
	db, err := database.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database (run 'focuscrawl crawl' first): %w", err)
	}
	return db, nil
}

// runRunsCmd executes the runs command.
func runRunsCmd(cmd *cobra.Command, _ []string) error {
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	deleteID, err := cmd.Flags().GetString("delete")
	if err != nil {
		return err
	}
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}

	db, err := openExistingDB(dbDir)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if deleteID != "" {
		if err := db.DeleteRun(ctx, deleteID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", deleteID)
		return nil
	}

	runs, err := db.ListRuns(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		if runs == nil {
			runs = []model.RunSummary{}
		}
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(runs)
	}
	return printRuns(cmd.OutOrStdout(), runs)
}

// printRuns writes the run list as an aligned table.
func printRuns(w io.Writer, runs []model.RunSummary) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tSTARTED\tSTATUS\tHITS\tTARGET\tFAILURES\tDURATION\tTERMS\n")
	for _, r := range runs {
		duration := "-"
		if d := r.Duration(); d > 0 {
			duration = d.Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Status,
			r.Hits,
			r.TargetHits,
			r.Failures,
			duration,
			strings.Join(r.Terms, ", "),
		)
	}
	return tw.Flush()
}
