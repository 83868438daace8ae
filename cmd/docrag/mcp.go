package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/docrag/internal/logging"
	"github.com/dshills/docrag/internal/mcp"
	"github.com/dshills/docrag/internal/storage"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server on stdio",
	Long: `Start the Model Context Protocol server for AI assistant integration.

The server speaks JSON-RPC over stdio and exposes the ingest_document,
delete_document and retrieve_context tools. Logs go to stderr.

Client configuration:
  {
    "mcpServers": {
      "docrag": {
        "command": "/path/to/docrag",
        "args": ["mcp"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.ToContext(ctx, logger)

	a, err := newApp(ctx, cfg, "mcp")
	if err != nil {
		return err
	}
	defer a.Close()

	server, err := mcp.NewServer(a.ingest, a.retriever, a.assembler, mcp.Options{
		Version:     version,
		Concurrency: cfg.Ingest.Concurrency,
	})
	if err != nil {
		return err
	}

	logger.Info("MCP server ready, listening on stdio",
		zap.String("version", version),
		zap.String("build_mode", storage.BuildMode),
		zap.Bool("vector_extension", storage.VectorExtensionAvailable))

	if err := server.Serve(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("MCP server stopped")
	return nil
}
