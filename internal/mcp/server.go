package mcp

import (
	"context"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dshills/docrag/internal/assembler"
	"github.com/dshills/docrag/internal/ingest"
	"github.com/dshills/docrag/internal/logging"
	"github.com/dshills/docrag/pkg/types"
)

const (
	// ServerName is the MCP server name
	ServerName = "docrag"
	// DefaultConcurrency is the number of files ingested in parallel per call
	DefaultConcurrency = 4
)

// Ingester is the write side used by the ingest and delete tools
type Ingester interface {
	IngestFiles(ctx context.Context, paths []string, concurrency int) []ingest.FileOutcome
	Delete(ctx context.Context, id string) (*ingest.DeleteResult, error)
}

// Retriever is the read side used by the retrieve tool
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]types.RetrievedChunk, error)
}

// Options configures a Server
type Options struct {
	Version     string
	Concurrency int
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp         *server.MCPServer
	ingester    Ingester
	retriever   Retriever
	assembler   *assembler.Assembler
	concurrency int
}

// NewServer creates a new MCP server instance. The caller owns the
// lifetime of the store behind ing and ret.
func NewServer(ing Ingester, ret Retriever, asm *assembler.Assembler, opts Options) (*Server, error) {
	if ing == nil || ret == nil {
		return nil, fmt.Errorf("mcp: ingester and retriever are required")
	}
	if asm == nil {
		asm = assembler.New()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	s := &Server{
		mcp:         server.NewMCPServer(ServerName, opts.Version, server.WithToolCapabilities(false)),
		ingester:    ing,
		retriever:   ret,
		assembler:   asm,
		concurrency: opts.Concurrency,
	}
	s.registerTools()

	return s, nil
}

// Serve speaks MCP over in and out until ctx is cancelled or in is closed.
// Tool handlers inherit ctx, including its logger.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(logging.FromContext(ctx)))
	return stdio.Listen(ctx, in, out)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(ingestDocumentTool(), s.handleIngestDocument)
	s.mcp.AddTool(deleteDocumentTool(), s.handleDeleteDocument)
	s.mcp.AddTool(retrieveContextTool(), s.handleRetrieveContext)
}
