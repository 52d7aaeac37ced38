package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/literature-crawler/internal/crawler"
)

type crawlOptions struct {
	maxResults int
	sources    []string
	classify   bool
	format     string
}

// newCrawlCmd creates the one-shot 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl <keyword>",
		Short: "Runs one crawl and prints the result",
		Long: `Runs a single keyword crawl against the configured sources, persists the
deduplicated records to the configured store and prints the crawl result.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawlCommand(cmd, strings.Join(args, " "), opts)
		},
	}
	cmd.Flags().IntVarP(&opts.maxResults, "max-results", "n", crawler.DefaultMaxResults, "maximum records for the whole crawl across all sources")
	cmd.Flags().StringSliceVarP(&opts.sources, "source", "s", nil, "sources to query (default: enabled configured sources)")
	cmd.Flags().BoolVar(&opts.classify, "classify", false, "classify records before persisting")
	cmd.Flags().StringVarP(&opts.format, "format", "o", "json", "output format: json or yaml")
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, keyword string, opts *crawlOptions) error {
	if opts.format != "json" && opts.format != "yaml" {
		return fmt.Errorf("unknown output format %q", opts.format)
	}
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	result := appInstance.Crawl(cmd.Context(), crawler.CrawlRequest{
		Keyword:         keyword,
		MaxResults:      opts.maxResults,
		Sources:         crawler.CleanSourceNames(opts.sources),
		ClassifyEnabled: opts.classify,
	})
	if err := writeResult(cmd.OutOrStdout(), opts.format, result); err != nil {
		return err
	}
	if !result.Completed() {
		return fmt.Errorf("crawl did not complete: %s", result.Message)
	}
	return nil
}

func writeResult(w io.Writer, format string, result crawler.CrawlResult) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("flush yaml: %w", err)
		}
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
	}
	return nil
}
