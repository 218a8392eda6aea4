package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/artpar/xbrlgate/adapters/http/admin"
	"github.com/artpar/xbrlgate/domain/usage"
	"github.com/spf13/cobra"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Inspect recorded usage",
	Long: `Inspect usage records written by the server.

Examples:
  xbrlgate usage recent
  xbrlgate usage recent --key=5f0c... --limit=100
  xbrlgate usage summary --key=5f0c... --since=24h`,
}

var usageRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show the latest usage records",
	RunE:  runUsageRecent,
}

var usageSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize the usage of a key",
	RunE:  runUsageSummary,
}

var (
	usageKeyID string
	usageLimit int
	usageSince string
)

func init() {
	rootCmd.AddCommand(usageCmd)

	usageCmd.AddCommand(usageRecentCmd)
	usageCmd.AddCommand(usageSummaryCmd)

	usageRecentCmd.Flags().StringVar(&usageKeyID, "key", "", "filter by key ID")
	usageRecentCmd.Flags().IntVar(&usageLimit, "limit", 20, "number of records")
	usageSummaryCmd.Flags().StringVar(&usageKeyID, "key", "", "key ID (required)")
	usageSummaryCmd.Flags().StringVar(&usageSince, "since", "", "duration such as 24h or an RFC3339 time (default 30 days)")
	usageSummaryCmd.MarkFlagRequired("key")
}

func runUsageRecent(cmd *cobra.Command, args []string) error {
	if usageLimit < 1 || usageLimit > 1000 {
		return fmt.Errorf("--limit must be between 1 and 1000")
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Shutdown()

	records, err := a.UsageStore.Recent(context.Background(), usageKeyID, usageLimit)
	if err != nil {
		return fmt.Errorf("failed to read usage: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No usage recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tKEY\tMETHOD\tENDPOINT\tSTATUS\tLATENCY\tREASON")
	fmt.Fprintln(w, "----\t---\t------\t--------\t------\t-------\t------")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%dms\t%s\n",
			r.Timestamp.UTC().Format(time.RFC3339), r.APIKeyID, r.Method, r.Endpoint,
			r.StatusCode, r.LatencyMs, r.Reason)
	}
	return w.Flush()
}

func runUsageSummary(cmd *cobra.Command, args []string) error {
	now := time.Now()
	since, err := admin.ParseSince(usageSince, now)
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Shutdown()

	records, err := a.UsageStore.Range(context.Background(), usageKeyID, since, now)
	if err != nil {
		return fmt.Errorf("failed to read usage: %w", err)
	}
	printSummary(usage.Aggregate(records, since, now))
	return nil
}

func printSummary(s usage.Summary) {
	fmt.Printf("Usage from %s to %s\n\n", s.PeriodStart.UTC().Format(time.RFC3339), s.PeriodEnd.UTC().Format(time.RFC3339))
	fmt.Printf("  Requests:      %d\n", s.RequestCount)
	fmt.Printf("  Successful:    %d\n", s.SuccessCount)
	fmt.Printf("  Client errors: %d (rate limited: %d)\n", s.ClientErrors, s.RateLimited)
	fmt.Printf("  Server errors: %d\n", s.ServerErrors)
	fmt.Printf("  Error rate:    %.1f%%\n", s.ErrorRate()*100)
	fmt.Printf("  Avg latency:   %dms\n", s.AvgLatencyMs)

	if len(s.Endpoints) == 0 {
		return
	}
	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ENDPOINT\tREQUESTS")
	for i, ep := range s.Endpoints {
		if i == 10 {
			break
		}
		fmt.Fprintf(w, "  %s\t%d\n", ep.Endpoint, ep.Count)
	}
	w.Flush()
}
