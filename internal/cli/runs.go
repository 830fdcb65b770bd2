package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tenderwise/tenderflow/internal/events"
	"github.com/tenderwise/tenderflow/internal/models"
)

var (
	runsWatch   bool
	runsHistory bool
)

var runsCmd = &cobra.Command{
	Use:   "runs <tender-id>",
	Short: "Show the latest pipeline run for a tender",
	Long: `Show the latest pipeline run and its per-task state.

With --watch, stream live task transitions until the run finishes or
the command is interrupted.

Examples:
  tenderflow runs TEN-42
  tenderflow runs TEN-42 --watch
  tenderflow runs TEN-42 --history`,
	Args: cobra.ExactArgs(1),
	RunE: runRuns,
}

func init() {
	runsCmd.Flags().BoolVarP(&runsWatch, "watch", "w", false, "stream live run events")
	runsCmd.Flags().BoolVar(&runsHistory, "history", false, "list every recorded run instead of the latest")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	tenderID := args[0]

	if runsHistory {
		return listRunHistory(ctx, tenderID)
	}

	run, err := apiClient.GetRun(ctx, tenderID)
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	printRun(run)

	if !runsWatch || run.Status == models.RunSucceeded || run.Status == models.RunFailed {
		return nil
	}
	return watchRun(ctx, tenderID)
}

func listRunHistory(ctx context.Context, tenderID string) error {
	runs, err := apiClient.ListRuns(ctx, tenderID)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs found")
		return nil
	}

	fmt.Printf("%-38s %-12s %-16s %s\n", "RUN", "STATUS", "TRIGGER", "CREATED")
	fmt.Println("--------------------------------------------------------------------------------")
	for _, run := range runs {
		fmt.Printf("%-38s %-12s %-16s %s\n",
			run.RunID,
			defaultTheme.styleRunStatus(run.Status),
			run.Trigger,
			run.CreatedAt.Format(time.RFC3339),
		)
	}
	return nil
}

func printRun(run *models.PipelineRun) {
	fmt.Printf("Run: %s\n", run.RunID)
	fmt.Printf("  Tender: %s\n", run.TenderID)
	fmt.Printf("  Status: %s\n", defaultTheme.styleRunStatus(run.Status))
	fmt.Printf("  Trigger: %s\n", run.Trigger)
	fmt.Printf("  Created: %s\n", run.CreatedAt.Format(time.RFC3339))
	if run.Error != "" {
		fmt.Printf("  Error: %s\n", defaultTheme.errorStyle().Render(run.Error))
	}

	fmt.Println()
	fmt.Printf("%-24s %-14s %-8s %s\n", "TASK", "STATUS", "RETRIES", "NOTE")
	fmt.Println("----------------------------------------------------------------")
	for _, id := range sortedTaskIDs(run.Tasks) {
		state := run.Tasks[id]
		note := state.Note
		if state.Error != "" {
			note = state.Error
		}
		fmt.Printf("%-24s %-14s %-8d %s\n", id, defaultTheme.styleTaskStatus(state.Status), state.Retries, note)
	}
}

// sortedTaskIDs orders tasks by declared stage order, then by id.
func sortedTaskIDs(tasks map[string]*models.TaskState) []string {
	ids := make([]string, 0, len(tasks))
	for id := range tasks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := tasks[ids[i]], tasks[ids[j]]
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return ids[i] < ids[j]
	})
	return ids
}

func watchRun(ctx context.Context, tenderID string) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Println()
	fmt.Println(defaultTheme.hintStyle().Render("watching run events, ctrl-c to stop"))

	err := apiClient.WatchRuns(ctx, tenderID, func(ev events.RunEvent) error {
		ts := ev.Timestamp.Local().Format("15:04:05")
		switch ev.Kind {
		case "task":
			line := fmt.Sprintf("%s  %-24s %s", ts, ev.TaskID, defaultTheme.styleTaskStatus(models.TaskStatus(ev.Status)))
			if ev.Error != "" {
				line += "  " + defaultTheme.errorStyle().Render(ev.Error)
			}
			fmt.Println(line)
		case "run":
			fmt.Printf("%s  run %s\n", ts, defaultTheme.styleRunStatus(models.RunStatus(ev.Status)))
			if ev.Status == string(models.RunSucceeded) || ev.Status == string(models.RunFailed) {
				return context.Canceled
			}
		}
		return nil
	})
	if err != nil && err != context.Canceled {
		return fmt.Errorf("watch run: %w", err)
	}
	return nil
}
