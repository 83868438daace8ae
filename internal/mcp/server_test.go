package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docrag/internal/assembler"
	"github.com/dshills/docrag/internal/embedder"
	"github.com/dshills/docrag/internal/ingest"
	"github.com/dshills/docrag/internal/retriever"
	"github.com/dshills/docrag/internal/storage"
	"github.com/dshills/docrag/pkg/types"
)

func setupServer(t *testing.T) *Server {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	emb, err := embedder.NewLocalProvider(embedder.Config{Dimensions: 64}, nil)
	require.NoError(t, err)

	ing := ingest.New(store, emb, nil, ingest.Config{})
	ret := retriever.New(store, emb, retriever.Config{Threshold: 0.3, MaxChunks: 3})

	s, err := NewServer(ing, ret, assembler.New(), Options{Version: "test"})
	require.NoError(t, err)
	return s
}

func callRequest(name string, args any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Name: name, Arguments: args}}
}

func resultJSON(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func requireMCPError(t *testing.T, err error, code int) *MCPError {
	t.Helper()
	var mcpErr *MCPError
	require.True(t, errors.As(err, &mcpErr), "expected MCPError, got %v", err)
	assert.Equal(t, code, mcpErr.Code)
	return mcpErr
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewServer(t *testing.T) {
	_, err := NewServer(nil, nil, nil, Options{})
	assert.Error(t, err)

	s := setupServer(t)
	assert.NotNil(t, s.mcp)
	assert.NotNil(t, s.assembler)
	assert.Equal(t, DefaultConcurrency, s.concurrency)
}

func TestIngestDeleteRetrieve(t *testing.T) {
	s := setupServer(t)
	ctx := context.Background()
	dir := t.TempDir()

	good := writeFile(t, dir, "refunds.txt", "refund policy for damaged goods")
	bad := writeFile(t, dir, "sheet.csv", "a,b,c")

	result, err := s.handleIngestDocument(ctx, callRequest("ingest_document", map[string]interface{}{
		"paths": []interface{}{good, bad},
	}))
	require.NoError(t, err)

	out := resultJSON(t, result)
	assert.Equal(t, float64(1), out["succeeded"])
	assert.Equal(t, float64(1), out["failed"])
	docs := out["documents"].([]interface{})
	require.Len(t, docs, 2)
	first := docs[0].(map[string]interface{})
	second := docs[1].(map[string]interface{})
	assert.Equal(t, good, first["path"])
	assert.Equal(t, float64(1), first["chunks_created"])
	assert.Contains(t, second["error"], types.ErrUnsupportedFileType.Error())
	id := first["document_id"].(string)

	result, err = s.handleRetrieveContext(ctx, callRequest("retrieve_context", map[string]interface{}{
		"query": "refund policy for damaged goods",
	}))
	require.NoError(t, err)
	out = resultJSON(t, result)
	assert.Contains(t, out["context"], "[1] [refunds.txt, Lines 1-1]")
	refs := out["references"].([]interface{})
	require.Len(t, refs, 1)
	assert.Equal(t, "refunds.txt", refs[0].(map[string]interface{})["documentName"])

	result, err = s.handleDeleteDocument(ctx, callRequest("delete_document", map[string]interface{}{"id": id}))
	require.NoError(t, err)
	out = resultJSON(t, result)
	assert.Equal(t, true, out["deleted"])
	assert.Equal(t, "refunds.txt", out["original_name"])
	assert.Equal(t, float64(1), out["chunks_deleted"])

	_, err = s.handleDeleteDocument(ctx, callRequest("delete_document", map[string]interface{}{"id": id}))
	requireMCPError(t, err, ErrorCodeDocumentNotFound)

	result, err = s.handleRetrieveContext(ctx, callRequest("retrieve_context", map[string]interface{}{
		"query": "refund policy for damaged goods",
	}))
	require.NoError(t, err)
	out = resultJSON(t, result)
	assert.Equal(t, "", out["context"])
	assert.Empty(t, out["references"])
}

func TestHandleIngestDocument_InvalidParams(t *testing.T) {
	s := setupServer(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args any
	}{
		{"arguments not an object", "paths"},
		{"missing paths", map[string]interface{}{}},
		{"empty paths", map[string]interface{}{"paths": []interface{}{}}},
		{"paths not a list", map[string]interface{}{"paths": "/tmp/a.txt"}},
		{"non-string entry", map[string]interface{}{"paths": []interface{}{42}}},
		{"relative path", map[string]interface{}{"paths": []interface{}{"docs/a.txt"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.handleIngestDocument(ctx, callRequest("ingest_document", tt.args))
			requireMCPError(t, err, ErrorCodeInvalidParams)
		})
	}
}

func TestHandleDeleteDocument_InvalidParams(t *testing.T) {
	s := setupServer(t)

	_, err := s.handleDeleteDocument(context.Background(), callRequest("delete_document", map[string]interface{}{"id": "  "}))
	requireMCPError(t, err, ErrorCodeInvalidParams)

	_, err = s.handleDeleteDocument(context.Background(), callRequest("delete_document", nil))
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestHandleRetrieveContext_EmptyQuery(t *testing.T) {
	s := setupServer(t)

	_, err := s.handleRetrieveContext(context.Background(), callRequest("retrieve_context", map[string]interface{}{"query": ""}))
	requireMCPError(t, err, ErrorCodeEmptyQuery)
}

type failingRetriever struct{}

func (failingRetriever) Retrieve(ctx context.Context, query string) ([]types.RetrievedChunk, error) {
	return nil, types.ErrStoreFailure
}

func TestHandleRetrieveContext_Failure(t *testing.T) {
	s := setupServer(t)
	s.retriever = failingRetriever{}

	_, err := s.handleRetrieveContext(context.Background(), callRequest("retrieve_context", map[string]interface{}{"query": "q"}))
	mcpErr := requireMCPError(t, err, ErrorCodeInternalError)
	assert.Contains(t, mcpErr.Data.(map[string]interface{})["error"], types.ErrStoreFailure.Error())
}

func TestGetStringSlice(t *testing.T) {
	got, err := getStringSlice(map[string]interface{}{"p": []string{"a"}}, "p")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got)

	got, err = getStringSlice(map[string]interface{}{"p": []interface{}{"a", "b"}}, "p")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	_, err = getStringSlice(map[string]interface{}{}, "p")
	assert.Error(t, err)
}

func TestValidatePath(t *testing.T) {
	assert.ErrorIs(t, validatePath(""), ErrPathRequired)
	assert.ErrorIs(t, validatePath("rel/file.txt"), ErrPathNotAbsolute)
	assert.NoError(t, validatePath(filepath.Join(t.TempDir(), "file.txt")))
}

func TestFormatJSON(t *testing.T) {
	out := formatJSON(map[string]interface{}{"a": 1})
	assert.JSONEq(t, `{"a":1}`, out)
}
