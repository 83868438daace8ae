package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/docrag/internal/logging"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <document-id>",
	Short: "Delete a document and all of its chunks",
	Long:  `Removes the document record and its chunks. Use "docrag list" to find ids.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	id := args[0]
	ctx := logging.ToContext(cmd.Context(), logger)

	a, err := newStoreApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Deleting document %s...\n", id)

	result, err := a.ingest.Delete(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "  ✓ Deleted: %s\n", result.OriginalName)
	fmt.Fprintf(out, "  ✓ Removed %d chunks\n", result.ChunksDeleted)
	fmt.Fprintln(out, "\nDone!")
	return nil
}
