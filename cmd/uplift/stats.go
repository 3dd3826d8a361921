package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"uplift/internal/usage"
)

// statsCmd shows accumulated LLM usage for the workspace
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show LLM usage totals for this workspace",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	ws := resolveWorkspace()
	if cfg != nil && cfg.Usage.Path != "" {
		ws = cfg.Usage.Path
	}

	tracker, err := usage.NewTracker(ws)
	if err != nil {
		return fmt.Errorf("failed to open usage data: %w", err)
	}
	defer tracker.Close()

	agg := tracker.Snapshot()

	fmt.Println("LLM usage")
	fmt.Println("=========")
	fmt.Printf("Calls:     %d\n", agg.Total.Calls)
	fmt.Printf("Tokens:    %d in / %d out / %d total\n", agg.Total.Input, agg.Total.Output, agg.Total.Total)
	fmt.Printf("Est. cost: $%.4f\n", agg.Total.Cost)

	printBreakdown("By provider", agg.ByProvider)
	printBreakdown("By model", agg.ByModel)
	printBreakdown("By operation", agg.ByOperation)

	if events := tracker.RecentEvents(); len(events) > 0 {
		fmt.Printf("\nRecent calls (%d):\n", len(events))
		for _, ev := range events {
			fmt.Printf("  %s  %-10s %-28s %-18s %6d tokens  $%.4f\n",
				ev.Timestamp.Format("2006-01-02 15:04:05"),
				ev.Provider, ev.Model, ev.Operation,
				ev.InputTokens+ev.OutputTokens, ev.Cost)
		}
	}
	return nil
}

func printBreakdown(title string, counts map[string]usage.Counts) {
	if len(counts) == 0 {
		return
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("\n%s:\n", title)
	for _, name := range names {
		c := counts[name]
		fmt.Printf("  %-28s %6d calls  %10d tokens  $%.4f\n", name, c.Calls, c.Total, c.Cost)
	}
}
