package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Manage corpus files",
}

var filesListTender string

var filesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List corpus files for a tender",
	Args:  cobra.NoArgs,
	RunE:  runFilesList,
}

var filesDeleteCmd = &cobra.Command{
	Use:   "delete <file-id>...",
	Short: "Delete corpus files by id",
	Long: `Delete indexed corpus files and their chunks.

Examples:
  tenderflow files delete 9f2c1a 4be09d`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFilesDelete,
}

func init() {
	filesListCmd.Flags().StringVarP(&filesListTender, "tender", "t", "", "tender id (required)")
	_ = filesListCmd.MarkFlagRequired("tender")
	filesCmd.AddCommand(filesListCmd)
	filesCmd.AddCommand(filesDeleteCmd)
	rootCmd.AddCommand(filesCmd)
}

func runFilesList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	files, err := apiClient.ListFiles(ctx, filesListTender)
	if err != nil {
		return fmt.Errorf("list files: %w", err)
	}
	if len(files) == 0 {
		fmt.Println("No files found")
		return nil
	}

	fmt.Printf("%-38s %-8s %s\n", "FILE", "CHUNKS", "SOURCE")
	fmt.Println("--------------------------------------------------------------------------------")
	for _, file := range files {
		fmt.Printf("%-38s %-8d %s\n", file.FileID, file.ChunkCount, file.SourceURI)
	}
	return nil
}

func runFilesDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	resp, err := apiClient.DeleteFiles(ctx, args)
	if err != nil {
		return fmt.Errorf("delete files: %w", err)
	}

	for _, id := range resp.Deleted {
		fmt.Println(defaultTheme.successStyle().Render("deleted ") + id)
	}
	for _, e := range resp.Errors {
		fmt.Println(defaultTheme.errorStyle().Render("failed  ") + e)
	}
	if len(resp.Errors) > 0 {
		return fmt.Errorf("%d of %d deletions failed", len(resp.Errors), len(args))
	}
	return nil
}
