package core

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mayank-dotcom/botsystem/internal/apperrors"
	"github.com/mayank-dotcom/botsystem/internal/store"
)

const (
	// RetryAnswer replaces the answer when the completion call fails or times out.
	RetryAnswer = "I'm having trouble answering right now. Please try again later."

	DontKnowAnswer = "I don't know"

	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

var boldPattern = regexp.MustCompile(`\*\*(.+?)\*\*`)

// RenderAnswerHTML turns raw completion output into the HTML the widget shows.
func RenderAnswerHTML(raw string) string {
	text := strings.ReplaceAll(raw, "</think>", "")
	text = strings.TrimSpace(text)
	if strings.Contains(text, DontKnowAnswer) {
		return DontKnowAnswer
	}
	return boldPattern.ReplaceAllString(text, "<strong>$1</strong>")
}

// AskRequest is one widget question.
type AskRequest struct {
	Question       string `json:"question"`
	UserID         string `json:"userId"`
	Rank           int    `json:"rank"`
	EmbedURL       string `json:"embedUrl,omitempty"`
	OrganizationID string `json:"organizationId,omitempty"`
}

// AskResponse carries the answer and the id feedback must reference. MessageID
// is nil when the exchange could not be persisted.
type AskResponse struct {
	Text      string         `json:"text"`
	MessageID *string        `json:"messageId"`
	Retryable bool           `json:"retryable,omitempty"`
	Source    BehaviorSource `json:"-"`
}

// ChatHistoryPage is one page of an organization's exchanges, newest first.
type ChatHistoryPage struct {
	Messages    []store.ConversationMessage `json:"messages"`
	CurrentPage int                         `json:"currentPage"`
	TotalPages  int                         `json:"totalPages"`
	TotalCount  int                         `json:"totalCount"`
	Limit       int                         `json:"limit"`
}

// ChatService runs the question pipeline. It holds no per-request state:
// every resolution is threaded through AskQuestion as a local value.
type ChatService struct {
	store       store.Store
	connections *ConnectionService
	behaviors   *BehaviorService
	selector    *DocumentSelector
	prompts     *PromptService
	completer   Completer
	correlator  *Correlator
	timeout     time.Duration
	logger      *zap.Logger
}

type ChatDeps struct {
	Store       store.Store
	Connections *ConnectionService
	Behaviors   *BehaviorService
	Selector    *DocumentSelector
	Prompts     *PromptService
	Completer   Completer
	Correlator  *Correlator
	Timeout     time.Duration
}

func NewChatService(deps ChatDeps, logger *zap.Logger) *ChatService {
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChatService{
		store:       deps.Store,
		connections: deps.Connections,
		behaviors:   deps.Behaviors,
		selector:    deps.Selector,
		prompts:     deps.Prompts,
		completer:   deps.Completer,
		correlator:  deps.Correlator,
		timeout:     timeout,
		logger:      logger.Named("chat"),
	}
}

// AskQuestion resolves the connection, behavior and chunk, asks the
// completer and records the exchange. Completion and history failures
// degrade the response instead of failing it.
func (s *ChatService) AskQuestion(ctx context.Context, req AskRequest) (*AskResponse, error) {
	question := strings.TrimSpace(req.Question)
	if strings.TrimSpace(req.UserID) == "" {
		return nil, apperrors.ErrMissingUserID
	}
	if question == "" {
		return nil, apperrors.ErrMissingQuestion
	}
	if req.Rank < 1 {
		return nil, apperrors.Invalid("rank", "must be >= 1")
	}

	var conn *store.Connection
	organizationID := strings.TrimSpace(req.OrganizationID)
	if strings.TrimSpace(req.EmbedURL) != "" {
		var err error
		conn, err = s.connections.ResolveByEmbedID(ctx, req.EmbedURL)
		if err != nil {
			return nil, err
		}
		organizationID = conn.OrganizationID
	}

	resolution, err := s.behaviors.Resolve(ctx, conn, organizationID)
	if err != nil {
		return nil, err
	}

	chunk, err := s.selector.SelectChunk(ctx, conn, organizationID, req.Rank)
	if err != nil {
		return nil, err
	}

	prompt := s.prompts.Assemble(ctx, conn, resolution, chunk)

	logger := s.logger.With(
		zap.String("organization_id", organizationID),
		zap.String("behavior_source", string(resolution.Source)),
		zap.Int("rank", req.Rank))
	if conn != nil {
		logger = logger.With(zap.String("connection_id", conn.ID))
	}

	resp := &AskResponse{Source: resolution.Source}
	answer, err := s.complete(ctx, prompt, question)
	if err != nil {
		logger.Error("Completion failed; returning retry answer", zap.Error(err))
		resp.Text = RetryAnswer
		resp.Retryable = true
	} else {
		resp.Text = RenderAnswerHTML(answer)
	}

	ex := Exchange{
		UserID:         req.UserID,
		Question:       question,
		AnswerHTML:     resp.Text,
		OrganizationID: organizationID,
	}
	if conn != nil {
		ex.ConnectionID = conn.ID
	}
	// the exchange is recorded even if the caller has gone away
	messageID, err := s.correlator.RecordExchange(context.WithoutCancel(ctx), ex)
	if err != nil {
		logger.Warn("Failed to record exchange; answer delivered without message id", zap.Error(err))
		return resp, nil
	}
	resp.MessageID = &messageID
	return resp, nil
}

func (s *ChatService) complete(ctx context.Context, prompt Prompt, question string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	answer, err := s.completer.Complete(ctx, prompt.Template, prompt.Context, question)
	if err != nil {
		return "", errors.Join(apperrors.ErrCompletionUnavailable, err)
	}
	if strings.TrimSpace(answer) == "" {
		return "", apperrors.ErrCompletionUnavailable
	}
	return answer, nil
}

// ListChatHistory pages through an organization's exchanges, newest first.
func (s *ChatService) ListChatHistory(ctx context.Context, organizationID string, page, limit int) (*ChatHistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	messages, total, err := s.store.ListMessagesByOrganization(ctx, organizationID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	return &ChatHistoryPage{
		Messages:    messages,
		CurrentPage: page,
		TotalPages:  (total + limit - 1) / limit,
		TotalCount:  total,
		Limit:       limit,
	}, nil
}

// EmbedInfo is what a widget needs before asking: the ranks it may pick and
// the behavior it will be answered with.
type EmbedInfo struct {
	ConnectionID string                   `json:"connectionId"`
	Name         string                   `json:"name"`
	ImageURL     string                   `json:"imageUrl,omitempty"`
	Documents    []EmbedDocument          `json:"documents"`
	Behavior     store.BehaviorDescriptor `json:"behavior"`
	Source       BehaviorSource           `json:"behaviorSource"`
}

// ListEmbedDocuments describes the connection behind embedURL.
func (s *ChatService) ListEmbedDocuments(ctx context.Context, embedURL string) (*EmbedInfo, error) {
	conn, err := s.connections.ResolveByEmbedID(ctx, embedURL)
	if err != nil {
		return nil, err
	}
	docs, err := s.selector.ListEmbedDocuments(ctx, conn, conn.OrganizationID)
	if err != nil {
		return nil, err
	}
	resolution, err := s.behaviors.Resolve(ctx, conn, conn.OrganizationID)
	if err != nil {
		return nil, err
	}
	return &EmbedInfo{
		ConnectionID: conn.ID,
		Name:         conn.Name,
		ImageURL:     conn.ImageURL,
		Documents:    docs,
		Behavior:     resolution.Behavior,
		Source:       resolution.Source,
	}, nil
}
