package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dshills/docrag/internal/logging"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored documents",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output documents as JSON")
	rootCmd.AddCommand(listCmd)
}

type listedDocument struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	MimeType   string `json:"mimeType"`
	FileSize   int64  `json:"fileSize"`
	ChunkCount int    `json:"chunkCount"`
	UploadedAt string `json:"uploadedAt"`
}

func runList(cmd *cobra.Command, _ []string) error {
	ctx := logging.ToContext(cmd.Context(), logger)
	a, err := newStoreApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	docs, err := a.ingest.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	out := cmd.OutOrStdout()
	if listJSON {
		listed := make([]listedDocument, 0, len(docs))
		for _, d := range docs {
			listed = append(listed, listedDocument{
				ID:         d.ID,
				Name:       d.OriginalName,
				MimeType:   d.MimeType,
				FileSize:   d.FileSize,
				ChunkCount: d.ChunkCount,
				UploadedAt: d.UploadedAt.Format("2006-01-02T15:04:05Z07:00"),
			})
		}
		data, err := json.MarshalIndent(listed, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal documents: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	if len(docs) == 0 {
		fmt.Fprintln(out, "No documents stored.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCHUNKS\tUPLOADED")
	for _, d := range docs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", d.ID, d.OriginalName, d.ChunkCount, d.UploadedAt.Format("2006-01-02 15:04:05"))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nTotal: %d documents\n", len(docs))
	return nil
}
