package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for focuscrawl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "focuscrawl",
		Short: "Focused web crawler that fetches the most relevant pages first",
		Long: `focuscrawl is a focused web crawler. It starts from seed urls and keeps a
priority frontier of discovered links, scored by how well the link matches
a set of relevance terms, how close it is to a seed and how many crawled
pages point to it.

It honours robots.txt (including crawl delays), spaces requests to each
host, caps the pages taken from a single host and stops after a target
number of pages. Results are written as TREC documents plus a link graph,
and every run is recorded in a local SQLite database.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewRunsCmd())
	cmd.AddCommand(NewExportCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
