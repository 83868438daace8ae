package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/docrag/internal/logging"
	"github.com/dshills/docrag/internal/parser"
)

var (
	uploadedBy        string
	ingestConcurrency int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file-path> [file-path...]",
	Short: "Ingest documents into the vector store",
	Long: `Parses, chunks and embeds each file and stores it with its chunks.
A failing file does not stop the others; the command exits non-zero when any
file failed.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&uploadedBy, "uploaded-by", "", "uploader recorded on each document")
	ingestCmd.Flags().IntVarP(&ingestConcurrency, "concurrency", "c", 0, "files processed at once (default INGEST_CONCURRENCY)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	stderr := cmd.ErrOrStderr()
	if len(args) == 0 {
		fmt.Fprintln(stderr, "Usage: docrag ingest <file-path> [file-path...]")
		fmt.Fprintf(stderr, "Supported file types: %s\n", strings.Join(parser.SupportedExtensions(), ", "))
		return &exitError{code: 1}
	}

	ctx := logging.ToContext(cmd.Context(), logger)
	a, err := newApp(ctx, cfg, uploadedBy)
	if err != nil {
		return err
	}
	defer a.Close()

	concurrency := ingestConcurrency
	if concurrency <= 0 {
		concurrency = cfg.Ingest.Concurrency
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Ingesting %d document(s)...\n\n", len(args))

	outcomes := a.ingest.IngestFiles(ctx, args, concurrency)

	var succeeded, failed int
	for _, o := range outcomes {
		fmt.Fprintf(out, "Processing: %s\n", filepath.Base(o.Path))
		if o.Err != nil {
			failed++
			fmt.Fprintf(stderr, "  ✗ Error: %v\n", o.Err)
		} else {
			succeeded++
			fmt.Fprintf(out, "  ✓ Created %d chunks\n", o.Result.ChunksCreated)
			fmt.Fprintf(out, "  ✓ Document ID: %s\n", o.Result.DocumentID)
			if len(o.Result.Replaced) > 0 {
				fmt.Fprintf(out, "  ✓ Replaced %d earlier version(s)\n", len(o.Result.Replaced))
			}
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintf(out, "\nDone! %d succeeded, %d failed.\n", succeeded, failed)
	if failed > 0 {
		return &exitError{code: 1}
	}
	return nil
}
