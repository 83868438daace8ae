package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/docrag/internal/logging"
	"github.com/dshills/docrag/pkg/types"
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <query>",
	Short: "Show the context block and references for a query",
	Long: `Embeds the query, ranks stored chunks against it and prints the context
block that chat would inject, followed by the references.`,
	Args: cobra.ExactArgs(1),
	RunE: runRetrieve,
}

func init() {
	rootCmd.AddCommand(retrieveCmd)
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	ctx := logging.ToContext(cmd.Context(), logger)
	a, err := newApp(ctx, cfg, "")
	if err != nil {
		return err
	}
	defer a.Close()

	chunks, err := a.retriever.Retrieve(ctx, args[0])
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(chunks) == 0 {
		fmt.Fprintln(out, "No chunks cleared the similarity threshold.")
		return nil
	}

	assembled := a.assembler.Assemble(chunks)
	fmt.Fprintln(out, assembled.Block)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "References:")
	for i, ref := range assembled.References {
		fmt.Fprintf(out, "  [%d] %s (%.3f)\n", i+1, describe(ref), ref.Similarity)
	}
	return nil
}

func describe(ref types.Reference) string {
	switch {
	case ref.PageNumber > 0:
		return fmt.Sprintf("%s, Page %d", ref.DocumentName, ref.PageNumber)
	case ref.LineStart > 0 && ref.LineEnd > 0:
		return fmt.Sprintf("%s, Lines %d-%d", ref.DocumentName, ref.LineStart, ref.LineEnd)
	default:
		return ref.DocumentName
	}
}
