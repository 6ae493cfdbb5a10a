package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mayank-dotcom/botsystem/internal/apperrors"
	"github.com/mayank-dotcom/botsystem/internal/store"
)

const (
	MinRetryCount = 1
	MaxRetryCount = 5
)

// FeedbackInput is one widget feedback submission.
type FeedbackInput struct {
	MessageID      string             `json:"messageId"`
	UserID         string             `json:"userId"`
	ConversationID string             `json:"conversationId"`
	Type           store.FeedbackType `json:"type"`
	Reason         *string            `json:"reason,omitempty"`
	RetryCount     *int               `json:"retryCount,omitempty"`
	BotResponse    string             `json:"botResponse"`
	UserQuestion   string             `json:"userQuestion"`
}

// FeedbackSummary is the widget-facing view of a stored event.
type FeedbackSummary struct {
	Type         store.FeedbackType `json:"type"`
	ReportReason *string            `json:"reportReason,omitempty"`
	RetryCount   *int               `json:"retryCount,omitempty"`
	Timestamp    time.Time          `json:"timestamp"`
}

// FeedbackService is the feedback ledger: at most one event per (message, type).
type FeedbackService struct {
	store  store.Store
	logger *zap.Logger
}

func NewFeedbackService(s store.Store, logger *zap.Logger) *FeedbackService {
	return &FeedbackService{store: s, logger: logger.Named("feedback")}
}

func validateFeedback(in FeedbackInput) (FeedbackInput, error) {
	in.MessageID = strings.TrimSpace(in.MessageID)
	in.UserID = strings.TrimSpace(in.UserID)
	in.Type = store.FeedbackType(strings.ToLower(strings.TrimSpace(string(in.Type))))

	if in.MessageID == "" {
		return in, &apperrors.MissingFieldError{Field: "messageId"}
	}
	if in.UserID == "" {
		return in, apperrors.ErrMissingUserID
	}
	if !in.Type.Valid() {
		return in, apperrors.ErrInvalidFeedbackType
	}

	switch in.Type {
	case store.FeedbackReport:
		if in.Reason == nil || strings.TrimSpace(*in.Reason) == "" {
			return in, &apperrors.MissingFieldError{Field: "reason"}
		}
		reason := strings.TrimSpace(*in.Reason)
		in.Reason = &reason
		in.RetryCount = nil
	case store.FeedbackRetry:
		if in.RetryCount == nil {
			return in, &apperrors.MissingFieldError{Field: "retryCount"}
		}
		if *in.RetryCount < MinRetryCount || *in.RetryCount > MaxRetryCount {
			return in, apperrors.Invalid("retryCount", fmt.Sprintf("must be between %d and %d", MinRetryCount, MaxRetryCount))
		}
		in.Reason = nil
	default:
		in.Reason = nil
		in.RetryCount = nil
	}
	return in, nil
}

// RecordFeedback stores one event. The message must exist; a second event of
// the same type for the same message is rejected with ErrDuplicateFeedback.
func (s *FeedbackService) RecordFeedback(ctx context.Context, in FeedbackInput) (*store.FeedbackEvent, error) {
	in, err := validateFeedback(in)
	if err != nil {
		return nil, err
	}

	msg, err := s.store.GetMessage(ctx, in.MessageID)
	if err != nil {
		return nil, fmt.Errorf("failed to load message: %w", err)
	}
	if msg == nil {
		return nil, apperrors.ErrMessageNotFound
	}

	fb := &store.FeedbackEvent{
		MessageID:      in.MessageID,
		UserID:         in.UserID,
		ConversationID: in.ConversationID,
		Type:           in.Type,
		ReportReason:   in.Reason,
		RetryCount:     in.RetryCount,
		BotResponse:    in.BotResponse,
		UserQuestion:   in.UserQuestion,
		Timestamp:      time.Now().UTC(),
	}
	if fb.BotResponse == "" {
		fb.BotResponse = msg.AnswerHTML
	}
	if fb.UserQuestion == "" {
		fb.UserQuestion = msg.Question
	}

	inserted, err := s.store.InsertFeedbackIfAbsent(ctx, fb)
	if err != nil {
		return nil, fmt.Errorf("failed to record feedback: %w", err)
	}
	if !inserted {
		return nil, apperrors.ErrDuplicateFeedback
	}

	s.logger.Info("Recorded feedback",
		zap.String("message_id", fb.MessageID),
		zap.String("type", string(fb.Type)))
	return fb, nil
}

// GetFeedback groups matching events by message id. A user or message filter
// is required; an organization filter only narrows further. Organization-wide
// listing is ListFeedback's job.
func (s *FeedbackService) GetFeedback(ctx context.Context, filter store.FeedbackFilter) (map[string][]FeedbackSummary, error) {
	if filter.UserID == "" && filter.MessageID == "" {
		return nil, apperrors.Invalid("filter", "one of userId or messageId is required")
	}
	events, err := s.store.ListFeedback(ctx, filter)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]FeedbackSummary)
	for _, e := range events {
		out[e.MessageID] = append(out[e.MessageID], FeedbackSummary{
			Type:         e.Type,
			ReportReason: e.ReportReason,
			RetryCount:   e.RetryCount,
			Timestamp:    e.Timestamp,
		})
	}
	return out, nil
}

// ListFeedback returns every event on the organization's messages, newest first.
func (s *FeedbackService) ListFeedback(ctx context.Context, organizationID string) ([]store.FeedbackEvent, error) {
	return s.store.ListFeedback(ctx, store.FeedbackFilter{OrganizationID: organizationID})
}
