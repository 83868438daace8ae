// Package chat answers a conversation with retrieved document context.
//
// Retrieval failures never fail an answer: the completion runs without
// context and the failure is reported in Answer.RagError. Only a failing
// completion call is returned as an error.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/docrag/internal/assembler"
	"github.com/dshills/docrag/internal/logging"
	"github.com/dshills/docrag/pkg/types"
)

// DefaultSystemPrompt is the base instruction sent ahead of every conversation
const DefaultSystemPrompt = "You are a knowledgeable and friendly assistant. " +
	"Answer clearly and accurately, and say so when you do not know something."

// DefaultRetrievalTimeout bounds the retrieval step of one answer
const DefaultRetrievalTimeout = 10 * time.Second

// ErrCompletionFailed wraps errors from the completion service
var ErrCompletionFailed = errors.New("completion failed")

// retrievalFailedMessage is shown to users when context could not be fetched
const retrievalFailedMessage = "Document retrieval failed; answering without reference material."

// Completer generates the assistant reply for role-tagged messages.
type Completer interface {
	Complete(ctx context.Context, messages []types.Message) (string, error)
}

// Retriever returns the chunks relevant to a query
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]types.RetrievedChunk, error)
}

// Config controls prompt and retrieval bounds
type Config struct {
	SystemPrompt     string
	RetrievalTimeout time.Duration
}

// Answer is the assistant reply with its citations
type Answer struct {
	Content    string
	References []types.Reference
	RagError   *types.RagError
}

// Service joins retrieval, context assembly and completion.
type Service struct {
	retriever Retriever
	assembler *assembler.Assembler
	completer Completer
	cfg       Config
}

// New creates a Service. A nil retriever disables context injection.
func New(r Retriever, a *assembler.Assembler, c Completer, cfg Config) *Service {
	if a == nil {
		a = assembler.New()
	}
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.RetrievalTimeout <= 0 {
		cfg.RetrievalTimeout = DefaultRetrievalTimeout
	}
	return &Service{retriever: r, assembler: a, completer: c, cfg: cfg}
}

// Answer replies to the conversation. The last user message is the
// retrieval query; a conversation without one gets no context.
func (s *Service) Answer(ctx context.Context, history []types.Message) (*Answer, error) {
	ctx = logging.WithAction(ctx, "chat")
	logger := logging.FromContext(ctx)

	answer := &Answer{References: []types.Reference{}}

	var block string
	if query := LastUserMessage(history); query != "" && s.retriever != nil {
		chunks, err := s.retrieve(ctx, query)
		if err != nil {
			logger.Warn("retrieval failed, answering without context", zap.Error(err))
			answer.RagError = &types.RagError{Message: retrievalFailedMessage, Detail: err.Error()}
		} else {
			assembled := s.assembler.Assemble(chunks)
			block = assembled.Block
			answer.References = assembled.References
		}
	}

	content, err := s.completer.Complete(ctx, s.buildMessages(block, history))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompletionFailed, err)
	}
	answer.Content = content

	logger.Debug("answer generated",
		zap.Int("references", len(answer.References)),
		zap.Bool("rag_error", answer.RagError != nil))
	return answer, nil
}

func (s *Service) retrieve(ctx context.Context, query string) ([]types.RetrievedChunk, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RetrievalTimeout)
	defer cancel()
	return s.retriever.Retrieve(ctx, query)
}

// buildMessages returns the base prompt, the context block when present and
// the user and assistant turns of history. Client-supplied system messages
// are dropped.
func (s *Service) buildMessages(block string, history []types.Message) []types.Message {
	messages := make([]types.Message, 0, len(history)+2)
	messages = append(messages, types.Message{Role: types.RoleSystem, Content: s.cfg.SystemPrompt})
	if block != "" {
		messages = append(messages, types.Message{Role: types.RoleSystem, Content: block})
	}
	for _, m := range history {
		if m.Role == types.RoleUser || m.Role == types.RoleAssistant {
			messages = append(messages, m)
		}
	}
	return messages
}

// LastUserMessage returns the content of the last user turn, or "".
func LastUserMessage(history []types.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == types.RoleUser {
			return strings.TrimSpace(history[i].Content)
		}
	}
	return ""
}
