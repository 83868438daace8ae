package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/dshills/docrag/internal/assembler"
	"github.com/dshills/docrag/internal/chat"
	"github.com/dshills/docrag/internal/ingest"
	"github.com/dshills/docrag/internal/logging"
	"github.com/dshills/docrag/internal/storage"
	"github.com/dshills/docrag/pkg/types"
)

const (
	maxBodyBytes = 1 << 20

	msgChatFailed     = "Failed to generate response. Please try again."
	msgRetrieveFailed = "Failed to retrieve context. Please try again."
	msgInternal       = "An error occurred. Please try again."
)

// Answerer produces chat answers
type Answerer interface {
	Answer(ctx context.Context, history []types.Message) (*chat.Answer, error)
}

// Retriever returns ranked chunks for a query
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]types.RetrievedChunk, error)
}

// Documents lists and deletes stored documents
type Documents interface {
	List(ctx context.Context) ([]*storage.DocumentSummary, error)
	Delete(ctx context.Context, id string) (*ingest.DeleteResult, error)
}

// Handler serves the API routes
type Handler struct {
	chat      Answerer
	retriever Retriever
	assembler *assembler.Assembler
	documents Documents
}

// NewHandler creates a Handler
func NewHandler(answerer Answerer, retriever Retriever, asm *assembler.Assembler, documents Documents) *Handler {
	if asm == nil {
		asm = assembler.New()
	}
	return &Handler{
		chat:      answerer,
		retriever: retriever,
		assembler: asm,
		documents: documents,
	}
}

// ChatRequest is the body of POST /api/chat
type ChatRequest struct {
	Messages []types.Message `json:"messages"`
}

// ChatResponse is the assistant turn returned by POST /api/chat
type ChatResponse struct {
	ID         string            `json:"id"`
	Role       string            `json:"role"`
	Content    string            `json:"content"`
	References []types.Reference `json:"references"`
	RagError   *types.RagError   `json:"ragError,omitempty"`
}

// RetrieveRequest is the body of POST /api/retrieve
type RetrieveRequest struct {
	Query string `json:"query"`
}

// RetrieveResponse carries the context block and its citations
type RetrieveResponse struct {
	Context    string            `json:"context"`
	References []types.Reference `json:"references"`
}

// DocumentResponse is one entry of GET /api/documents
type DocumentResponse struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"originalName"`
	MimeType     string    `json:"mimeType"`
	FileSize     int64     `json:"fileSize"`
	UploadedAt   time.Time `json:"uploadedAt"`
	UploadedBy   string    `json:"uploadedBy,omitempty"`
	ChunkCount   int       `json:"chunkCount"`
}

// DeleteResponse reports a removed document
type DeleteResponse struct {
	OriginalName  string `json:"originalName"`
	ChunksDeleted int    `json:"chunksDeleted"`
}

// Chat handles POST /api/chat
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := logging.WithAction(r.Context(), "Chat")

	var req ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ctxzap.Warn(ctx, "invalid chat request", zap.Error(err))
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		Error(w, http.StatusBadRequest, "messages are required")
		return
	}

	answer, err := h.chat.Answer(ctx, req.Messages)
	if err != nil {
		ctxzap.Error(ctx, "failed to generate response", zap.Error(err))
		Error(w, http.StatusInternalServerError, msgChatFailed)
		return
	}

	Success(w, ChatResponse{
		ID:         uuid.NewString(),
		Role:       types.RoleAssistant,
		Content:    answer.Content,
		References: answer.References,
		RagError:   answer.RagError,
	})
}

// Retrieve handles POST /api/retrieve
func (h *Handler) Retrieve(w http.ResponseWriter, r *http.Request) {
	ctx := logging.WithAction(r.Context(), "Retrieve")

	var req RetrieveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ctxzap.Warn(ctx, "invalid retrieve request", zap.Error(err))
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		Error(w, http.StatusBadRequest, "query is required")
		return
	}

	chunks, err := h.retriever.Retrieve(ctx, req.Query)
	if err != nil {
		ctxzap.Error(ctx, "retrieval failed", zap.Error(err))
		Error(w, http.StatusBadGateway, msgRetrieveFailed)
		return
	}

	assembled := h.assembler.Assemble(chunks)
	Success(w, RetrieveResponse{Context: assembled.Block, References: assembled.References})
}

// ListDocuments handles GET /api/documents
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	ctx := logging.WithAction(r.Context(), "ListDocuments")

	docs, err := h.documents.List(ctx)
	if err != nil {
		ctxzap.Error(ctx, "failed to list documents", zap.Error(err))
		Error(w, http.StatusInternalServerError, msgInternal)
		return
	}

	resp := make([]DocumentResponse, 0, len(docs))
	for _, d := range docs {
		resp = append(resp, DocumentResponse{
			ID:           d.ID,
			OriginalName: d.OriginalName,
			MimeType:     d.MimeType,
			FileSize:     d.FileSize,
			UploadedAt:   d.UploadedAt,
			UploadedBy:   d.UploadedBy,
			ChunkCount:   d.ChunkCount,
		})
	}
	Success(w, resp)
}

// DeleteDocument handles DELETE /api/documents/{document_id}
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "document_id")
	ctx := logging.AddFields(logging.WithAction(r.Context(), "DeleteDocument"), zap.String("document_id", id))

	result, err := h.documents.Delete(ctx, id)
	switch {
	case errors.Is(err, types.ErrDocumentNotFound):
		Error(w, http.StatusNotFound, "document not found")
		return
	case err != nil:
		ctxzap.Error(ctx, "failed to delete document", zap.Error(err))
		Error(w, http.StatusInternalServerError, msgInternal)
		return
	}

	Success(w, DeleteResponse{OriginalName: result.OriginalName, ChunksDeleted: result.ChunksDeleted})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}
