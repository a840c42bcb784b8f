package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/variantfactory/internal/analytics"
)

var (
	historyLimit int
	historySince string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded generation runs",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, cleanup, err := openDB()
		if err != nil {
			return err
		}
		defer cleanup()

		runs, err := d.ListRuns(historyLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			cmd.Println("No runs recorded.")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tCONFIGS\tSTARTED\tSPEC")
		for _, r := range runs {
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n", r.ID, r.Status, r.Configs, r.StartedAt, r.SpecFile)
		}
		return w.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show scenarios and stages of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid run id %q", args[0])
		}
		d, cleanup, err := openDB()
		if err != nil {
			return err
		}
		defer cleanup()

		run, err := d.GetRun(id)
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("run %d not found", id)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Run %d: %s\n", run.ID, run.Status)
		fmt.Fprintf(out, "  Spec:    %s\n", run.SpecFile)
		fmt.Fprintf(out, "  Output:  %s\n", run.OutputDir)
		fmt.Fprintf(out, "  Started: %s\n", run.StartedAt)
		if run.FinishedAt != "" {
			fmt.Fprintf(out, "  Done:    %s\n", run.FinishedAt)
		}
		fmt.Fprintf(out, "  Configs: %d\n", run.Configs)
		if hits, total, err := d.CacheStats(id); err == nil && total > 0 {
			fmt.Fprintf(out, "  Cache:   %d/%d stages served from cache\n", hits, total)
		}

		results, err := d.ScenarioResults(id)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "\nScenarios:")
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, r := range results {
			fmt.Fprintf(w, "  %s\t%s\t%d\t%s\t%s\n", r.Name, r.Status, r.Configs, r.Identifier, r.Reason)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		events, err := d.StageEvents(id)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "\nStages:")
		w = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, e := range events {
			cached := ""
			if e.Cached {
				cached = "cached"
			}
			fmt.Fprintf(w, "  %s\t%d\t%s\t%d -> %d\t%dms\t%s%s\n",
				e.Scenario, e.StageIndex, e.Stage, e.Inputs, e.Outputs, e.DurationMs, cached, e.Error)
		}
		return w.Flush()
	},
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show stage timing, cache use and throughput across runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, cleanup, err := openDB()
		if err != nil {
			return err
		}
		defer cleanup()

		stages, err := analytics.QueryStageStats(d, historySince)
		if err != nil {
			return err
		}
		scenarios, err := analytics.QueryScenarioStats(d, historySince)
		if err != nil {
			return err
		}
		days, err := analytics.QueryThroughput(d, historySince)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STAGE\tRUNS\tCACHED%\tFAILED%\tAVG ms\tP50 ms\tP95 ms\tFANOUT")
		for _, s := range stages {
			fmt.Fprintf(w, "%s\t%d\t%.1f\t%.1f\t%.1f\t%.1f\t%.1f\t%.1f\n",
				s.Stage, s.Count, s.CachedPct, s.FailedPct, s.AvgMs, s.P50Ms, s.P95Ms, s.Fanout)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SCENARIO\tRUNS\tFAILED%\tAVG CONFIGS\tIDENTIFIERS")
		for _, s := range scenarios {
			fmt.Fprintf(w, "%s\t%d\t%.1f\t%.1f\t%d\n", s.Name, s.Runs, s.FailedPct, s.AvgConfigs, s.Identifiers)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DAY\tRUNS\tFAILED\tCONFIGS")
		for _, t := range days {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", t.Day, t.Runs, t.Failed, t.Configs)
		}
		return w.Flush()
	},
}

func init() {
	historyStatsCmd.Flags().StringVar(&historySince, "since", "", "only include runs started on or after this date (YYYY-MM-DD)")
	historyCmd.AddCommand(historyStatsCmd)
	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show")
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
}
