package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/focuscrawl/internal/config"
	"github.com/nao1215/focuscrawl/internal/report"
)

// NewExportCmd creates the export command.
func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Write a recorded run out again",
		Long: `Export loads a run from the database and writes its TREC results, link
files and unprocessed list to a directory, then prints the run report.

Examples:
  # Rewrite run results into out/ with 100 pages per file
  focuscrawl export 3f1c2a9e-... -o out --chunk-size 100

  # Only print the Markdown report
  focuscrawl export 3f1c2a9e-... --no-trec --markdown`,
		Args: cobra.ExactArgs(1),
		RunE: runExportCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultOutputDir,
		"Directory for TREC results, link files and the unprocessed list")
	cmd.Flags().Int("chunk-size", config.DefaultChunkSize, "Pages per results/links file")
	cmd.Flags().Bool("no-trec", false, "Skip the TREC files and only print the report")
	cmd.Flags().BoolP("json", "j", false, "Print the run report as JSON")
	cmd.Flags().BoolP("markdown", "m", false, "Print the run report as Markdown")
	cmd.Flags().String("report", "", "Write the run report to a file instead of stdout")
	cmd.Flags().String("db-dir", "", "Database directory (default: XDG data directory)")

	return cmd
}

// runExportCmd executes the export command.
func runExportCmd(cmd *cobra.Command, args []string) error {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.OutputDir, err = flags.GetString("output"); err != nil {
		return err
	}
	if cfg.ChunkSize, err = flags.GetInt("chunk-size"); err != nil {
		return err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return err
	}
	if cfg.ReportFile, err = flags.GetString("report"); err != nil {
		return err
	}
	noTREC, err := flags.GetBool("no-trec")
	if err != nil {
		return err
	}
	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return err
	}
	cfg.Verbose = getVerboseFlag(cmd)

	if cfg.JSONReport && cfg.MarkdownReport {
		return config.ErrConflictingReportFormats
	}
	if cfg.ChunkSize <= 0 {
		return config.ErrInvalidChunkSize
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

	rep, err := db.LoadReport(ctx, args[0])
	if err != nil {
		return err
	}

	if !noTREC {
		trec := report.NewTRECWriter(cfg.OutputDir, report.WithChunkSize(cfg.ChunkSize))
		if _, err := trec.Write(rep); err != nil {
			return fmt.Errorf("failed to write results: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d files to %s\n", len(trec.Files()), cfg.OutputDir)
	}

	return outputReport(cfg, rep, cmd.OutOrStdout())
}
