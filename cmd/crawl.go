package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/repack-aggregator/internal/aggregator"
)

// newCrawlCmd creates the 'crawl' subcommand, which runs a single aggregation
// over every enabled provider and prints a per-provider summary.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Run one aggregation and exit",
		RunE:  runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := appInstance.Crawl(ctx)
	if printErr := printSummary(cmd.OutOrStdout(), summary); printErr != nil {
		appInstance.Logger().Warn("print summary failed", zap.Error(printErr))
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run crawl: %w", err)
	}

	appInstance.Logger().Info("crawl command finished", zap.Int64("persisted", summary.Persisted()))
	return nil
}

func printSummary(out io.Writer, summary aggregator.Summary) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tSTATUS\tPAGES\tFAILED\tENTRIES\tPERSISTED\tDURATION\tERROR")
	for _, r := range summary.Reports {
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			r.Provider, r.Status, r.Pages.Processed, r.Pages.Failed,
			r.Entries, r.Persisted, r.Duration.Round(time.Millisecond), errText)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush summary: %w", err)
	}
	return nil
}
