// Package cmd defines and implements the CLI commands for the catalog-crawler executable.
package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

// newCrawlCmd creates the 'crawl' subcommand, which performs one full run
// over the configured page range and exits.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Runs one full crawl now",
		Long: `Crawls every listing page once, chunk by chunk, and stores each product found.
Page and product failures are logged and never abort the run.`,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	appInstance.StartServer(cmd.Context())

	stats := appInstance.Crawl(cmd.Context())
	appInstance.Logger().Info("crawl command finished",
		zap.String("run_id", stats.RunID),
		zap.String("status", string(stats.Status)),
		zap.Int("products_stored", stats.ProductsStored))
	if stats.Status == crawler.RunStatusCanceled {
		appInstance.Logger().Warn("crawl interrupted before the last chunk", zap.Int("chunks", stats.Chunks))
	}
	return nil
}
