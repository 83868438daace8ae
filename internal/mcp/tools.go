package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/dshills/docrag/internal/logging"
	"github.com/dshills/docrag/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams    = -32602 // Invalid method parameters
	ErrorCodeInternalError    = -32603 // Internal JSON-RPC error
	ErrorCodeDocumentNotFound = -32001 // No document with the given ID
	ErrorCodeEmptyQuery       = -32004 // Query parameter is empty
)

// handleIngestDocument handles the ingest_document tool invocation. Per-file
// failures are reported in the result, not as a tool error.
func (s *Server) handleIngestDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx = logging.WithAction(ctx, "ingest_document")

	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	paths, err := getStringSlice(args, "paths")
	if err != nil || len(paths) == 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "paths parameter is required", map[string]interface{}{
			"param":  "paths",
			"reason": "missing, empty or not a list of strings",
		})
	}

	for _, p := range paths {
		if err := validatePath(p); err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
				"param":  "paths",
				"path":   p,
				"reason": err.Error(),
			})
		}
	}

	outcomes := s.ingester.IngestFiles(ctx, paths, s.concurrency)

	documents := make([]map[string]interface{}, 0, len(outcomes))
	succeeded, failed := 0, 0
	for _, o := range outcomes {
		entry := map[string]interface{}{"path": o.Path}
		if o.Err != nil {
			failed++
			entry["error"] = o.Err.Error()
		} else {
			succeeded++
			entry["document_id"] = o.Result.DocumentID
			entry["chunks_created"] = o.Result.ChunksCreated
			if len(o.Result.Replaced) > 0 {
				entry["replaced"] = o.Result.Replaced
			}
		}
		documents = append(documents, entry)
	}

	logging.FromContext(ctx).Info("ingest_document finished",
		zap.Int("succeeded", succeeded), zap.Int("failed", failed))

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"succeeded": succeeded,
		"failed":    failed,
		"documents": documents,
	})), nil
}

// handleDeleteDocument handles the delete_document tool invocation
func (s *Server) handleDeleteDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx = logging.WithAction(ctx, "delete_document")

	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	id := strings.TrimSpace(getStringDefault(args, "id", ""))
	if id == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "id parameter is required", map[string]interface{}{
			"param":  "id",
			"reason": "missing or empty",
		})
	}

	result, err := s.ingester.Delete(ctx, id)
	if errors.Is(err, types.ErrDocumentNotFound) {
		return nil, newMCPError(ErrorCodeDocumentNotFound, "document not found", map[string]interface{}{
			"id": id,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "delete failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"deleted":        true,
		"id":             result.DocumentID,
		"original_name":  result.OriginalName,
		"chunks_deleted": result.ChunksDeleted,
	})), nil
}

// handleRetrieveContext handles the retrieve_context tool invocation
func (s *Server) handleRetrieveContext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx = logging.WithAction(ctx, "retrieve_context")

	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query := strings.TrimSpace(getStringDefault(args, "query", ""))
	if query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	chunks, err := s.retriever.Retrieve(ctx, query)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "retrieval failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	assembled := s.assembler.Assemble(chunks)
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"context":    assembled.Block,
		"references": assembled.References,
	})), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// The framework encodes returned errors
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks that a file path can be handed to the ingester. Existence
// and file type are checked per file during ingestion.
func validatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return ErrPathRequired
	}
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}
	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts a list of strings; JSON arrays decode as []interface{}
func getStringSlice(args map[string]interface{}, key string) ([]string, error) {
	switch val := args[key].(type) {
	case []string:
		return val, nil
	case []interface{}:
		out := make([]string, 0, len(val))
		for i, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] is not a string", key, i)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s is not a list", key)
	}
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
)
