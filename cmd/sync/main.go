// Package main provides the sync CLI for docshub indexing and maintenance.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bull/docshub/internal/app"
	"github.com/bull/docshub/internal/indexer"
	"github.com/bull/docshub/internal/search"
)

const envHelp = `
Environment variables:
  DOCSHUB_CONFIG  YAML configuration file (optional, defaults apply)
  DOCSHUB_DB      SQLite database path (overrides storage.path)
  GITHUB_TOKEN    GitHub token for higher rate limits (optional)
  LOG_LEVEL       debug, info, warn or error (default: info)`

var rootCmd = &cobra.Command{
	Use:          "docshub-sync",
	Short:        "docshub documentation indexing tool",
	Long:         "CLI tool for indexing GitHub documentation into the docshub SQLite store." + envHelp,
	SilenceUsage: true,
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Run an indexing pass",
	Long: `Fetches, scores and stores documentation, then rebuilds the search index
when anything changed.

Modes:
  curated   index the configured repository list
  discover  index popular repositories above --min-stars
  update    re-fetch repositories already indexed
  smart     curated and discover together (default)` + envHelp,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild-index",
	Short: "Rebuild the full-text search index",
	Args:  cobra.NoArgs,
	RunE:  runRebuild,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print store statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var searchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Search indexed documentation",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

var (
	indexMode     string
	indexMinStars int
	indexCount    int

	searchMinStars int
	searchCategory string
	searchSource   string
	searchLanguage string
	searchLimit    int
)

func init() {
	indexCmd.Flags().StringVar(&indexMode, "mode", "smart", "curated, discover, update or smart")
	indexCmd.Flags().IntVar(&indexMinStars, "min-stars", 0, "discovery star threshold (0 uses the configured value)")
	indexCmd.Flags().IntVar(&indexCount, "count", 0, "number of repositories to discover (0 uses the configured value)")

	searchCmd.Flags().IntVar(&searchMinStars, "min-stars", 0, "only repositories with at least this many stars")
	searchCmd.Flags().StringVar(&searchCategory, "category", "", "only repositories in this category")
	searchCmd.Flags().StringVar(&searchSource, "source", "", "curated, discovered or both")
	searchCmd.Flags().StringVar(&searchLanguage, "language", "", "only repositories with this primary language")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "maximum results (0 uses the configured default)")

	rootCmd.AddCommand(indexCmd, rebuildCmd, statsCmd, searchCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func open(ctx context.Context) (*app.App, error) {
	env := app.LoadEnv()
	return app.New(ctx, env, app.NewLogger(os.Stderr, env.LogLevel))
}

func runIndex(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	mode, err := indexer.ParseMode(indexMode)
	if err != nil {
		return err
	}

	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Printf("Indexing (mode %s) into %s...\n", mode, a.Config.Storage.Path)
	summary, err := a.Indexer.Run(ctx, indexer.RunOptions{Mode: mode, MinStars: indexMinStars, Count: indexCount})
	if summary != nil {
		printSummary(summary)
	}
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	return nil
}

func printSummary(s *indexer.RunSummary) {
	fmt.Println()
	if s.Aborted {
		fmt.Printf("Run %s aborted: %s\n", s.RunID, s.AbortReason)
	} else {
		fmt.Printf("Run %s complete!\n", s.RunID)
	}
	fmt.Printf("  Candidates: %d (%d indexed, %d failed, %d decurated)\n",
		s.Candidates, s.Repositories, s.RepositoriesFailed, s.Decurated)
	fmt.Printf("  Documents: %d stored, %d unchanged, %d skipped, %d failed\n",
		s.Succeeded, s.Unchanged, s.Skipped, s.Failed)
	fmt.Printf("  Retries: %d\n", s.Retries)
	if s.Rebuilt {
		fmt.Printf("  Search index: rebuilt (generation %d)\n", s.IndexGeneration)
	} else {
		fmt.Println("  Search index: unchanged")
	}
	fmt.Printf("  Duration: %s\n", s.Duration.Round(time.Millisecond))

	if len(s.Failures) > 0 {
		fmt.Println()
		fmt.Println("Failures:")
		for _, f := range s.Failures {
			target := f.Repository
			if f.Path != "" {
				target += "/" + f.Path
			}
			fmt.Printf("  - %s [%s]: %s\n", target, f.Kind, f.Message)
		}
		if s.FailuresTruncated {
			fmt.Println("  (more failures omitted)")
		}
	}
}

func runRebuild(cmd *cobra.Command, _ []string) error {
	a, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.Store.RebuildSearchIndex(cmd.Context())
	if err != nil {
		return fmt.Errorf("rebuild failed: %w", err)
	}
	fmt.Printf("Search index rebuilt: generation %d, active %s, %d documents (%d dirty) in %s\n",
		report.Generation, report.Active, report.Documents, report.Claimed, report.Duration.Round(time.Millisecond))
	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	a, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.Store.GetStatistics(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Repositories: %d (%d stale)\n", st.Repositories, st.StaleRepos)
	fmt.Printf("Documents: %d (%d awaiting index)\n", st.Documents, st.DirtyDocuments)
	fmt.Printf("Index: generation %d, active %s\n", st.IndexGeneration, st.ActiveIndex)
	if st.LastRebuild != nil {
		fmt.Printf("Last rebuild: %s\n", st.LastRebuild.Format(time.RFC3339))
	}
	fmt.Printf("Database size: %d bytes\n", st.DBSizeBytes)
	printCounts("By source", st.BySource)
	printCounts("By category", st.ByCategory)
	printCounts("By language", st.ByLanguage)
	return nil
}

func printCounts(title string, counts map[string]int64) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Println()
	fmt.Println(title + ":")
	for _, k := range keys {
		fmt.Printf("  %-20s %d\n", k, counts[k])
	}
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.Engine.Search(cmd.Context(), search.Request{
		Query: args[0],
		Filters: search.Filters{
			MinStars: searchMinStars,
			Category: searchCategory,
			Source:   searchSource,
			Language: searchLanguage,
		},
		Limit: searchLimit,
	})
	if err != nil {
		return err
	}
	if len(resp.Results) == 0 {
		fmt.Println("No matching documents found.")
		return nil
	}
	for i, r := range resp.Results {
		fmt.Printf("%d. %s/%s (%.2f, %d stars, %s)\n", i+1, r.Repository, r.Path, r.Score, r.Stars, r.Source)
		if r.Snippet != "" {
			fmt.Printf("   %s\n", r.Snippet)
		}
	}
	if resp.Truncated {
		fmt.Println("(results truncated)")
	}
	return nil
}
