package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check server health and operation metrics",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if err := apiClient.Health(ctx); err != nil {
		fmt.Println(defaultTheme.errorStyle().Render("unreachable"))
		return fmt.Errorf("health check: %w", err)
	}
	fmt.Println(defaultTheme.successStyle().Render("healthy"))

	snapshot, err := apiClient.Metrics(ctx)
	if err != nil {
		return fmt.Errorf("fetch metrics: %w", err)
	}
	if len(snapshot) == 0 {
		return nil
	}

	fmt.Println()
	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s: %v\n", k, snapshot[k])
	}
	return nil
}
