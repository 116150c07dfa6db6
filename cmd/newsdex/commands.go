package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/newsdex/internal/domain/search/request"
	chiTransport "github.com/kailas-cloud/newsdex/internal/transport/chi"
)

var (
	aggregateURL    string
	aggregatePrefix string

	searchLimit     int
	searchThreshold float64
	searchSince     string

	statsTop int
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Index articles into the corpus",
	Long: `Extract text, recognise entities, weight them against the corpus and commit.

Re-aggregating a URL replaces the stored document.`,
}

var aggregateFileCmd = &cobra.Command{
	Use:   "file <path>",
	Short: "Aggregate a single PDF, image or text file",
	Long: `Aggregate a single file. The document URL defaults to the file path.

Examples:
  newsdex aggregate file ./scans/2024-03-01.pdf
  newsdex aggregate file ./page.png --url https://news.example/page-1`,
	Args: cobra.ExactArgs(1),
	RunE: runAggregateFile,
}

var aggregateTextCmd = &cobra.Command{
	Use:   "text <url> [text]",
	Short: "Aggregate raw article text",
	Long: `Aggregate raw text under the given URL. Text is read from stdin when omitted.

Examples:
  newsdex aggregate text https://news.example/a "Flooding in London..."
  cat article.txt | newsdex aggregate text https://news.example/a`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runAggregateText,
}

var aggregateDirCmd = &cobra.Command{
	Use:   "dir <path>",
	Short: "Aggregate every supported file under a directory",
	Long: `Walk a directory and aggregate every file with a configured extension.
Failures are reported per file and never abort the run.

Examples:
  newsdex aggregate dir ./archive
  newsdex aggregate dir ./archive --url-prefix https://news.example/archive/`,
	Args: cobra.ExactArgs(1),
	RunE: runAggregateDir,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the corpus",
	Long: `Rank stored documents by how strongly they feature the query's entities.

Examples:
  newsdex search "John Matthews in London"
  newsdex search "Brexit" --limit 5 --threshold 0.3 --since 2024-01-01T00:00:00Z`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <url>",
	Short: "Remove a document and retract its statistics",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show corpus statistics",
	Long: `Show document count, distinct term count and the most frequent terms.

Examples:
  newsdex stats
  newsdex stats --top 25`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the article search index",
	Long: `Drop the article search index and create it again. Stored documents and
corpus statistics are kept; the index is rebuilt over them in the background.

Run it when stats reports fewer indexed documents than committed ones.`,
	Args: cobra.NoArgs,
	RunE: runReindex,
}

func init() {
	aggregateFileCmd.Flags().StringVar(&aggregateURL, "url", "", "document URL (default: file path)")
	aggregateDirCmd.Flags().StringVar(&aggregatePrefix, "url-prefix", "", "prefix joined with each relative path to form the URL")
	aggregateCmd.AddCommand(aggregateFileCmd, aggregateTextCmd, aggregateDirCmd)

	searchCmd.Flags().IntVar(&searchLimit, "limit", request.DefaultLimit, "maximum results")
	searchCmd.Flags().Float64Var(&searchThreshold, "threshold", -1, "relevance threshold (default: from config)")
	searchCmd.Flags().StringVar(&searchSince, "since", "", "only documents indexed at or after this RFC 3339 time")

	statsCmd.Flags().IntVar(&statsTop, "top", 10, "number of top terms to show")
}

func runAggregateFile(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.aggregate.AggregateFile(cmd.Context(), args[0], aggregateURL)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), chiTransport.AggregateToAPI(res))
}

func runAggregateText(cmd *cobra.Command, args []string) error {
	var text string
	if len(args) == 2 {
		text = args[1]
	} else {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = string(data)
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.aggregate.AggregateText(cmd.Context(), args[0], text)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), chiTransport.AggregateToAPI(res))
}

func runAggregateDir(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	report, err := a.aggregate.AggregateDirectory(cmd.Context(), args[0], aggregatePrefix)
	if err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), chiTransport.DirectoryToAPI(report))
}

func runSearch(cmd *cobra.Command, args []string) error {
	since, err := parseSince(searchSince)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	threshold := searchThreshold
	if threshold < 0 {
		threshold = a.cfg.Search.DefaultThreshold
	}
	th, err := request.NewThresholds(threshold, nil)
	if err != nil {
		return err
	}
	req, err := request.New(strings.Join(args, " "), nil, th, searchLimit, since)
	if err != nil {
		return err
	}

	resp, err := a.search.Search(cmd.Context(), &req)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), chiTransport.SearchResponseToAPI(resp))
}

func runDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.aggregate.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	if statsTop < 0 {
		return errors.New("--top must not be negative")
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	sum, err := a.aggregate.Stats(cmd.Context(), statsTop)
	if err != nil {
		return err
	}
	cached := 0
	if a.cache != nil {
		cached = a.cache.Len()
	}
	return printJSON(cmd.OutOrStdout(), chiTransport.StatsToAPI(sum, cached))
}

func runReindex(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.articles.Reindex(cmd.Context()); err != nil {
		return err
	}
	a.logger.Info("Article index rebuilt", zap.String("index", a.cfg.Storage.IndexName))
	return nil
}

// parseSince accepts an RFC 3339 timestamp or a bare date. Empty means no bound.
func parseSince(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid --since %q: want RFC 3339 or YYYY-MM-DD", s)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
