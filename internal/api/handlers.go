package api

import (
	_ "embed"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mayank-dotcom/botsystem/internal/apperrors"
	"github.com/mayank-dotcom/botsystem/internal/core"
	"github.com/mayank-dotcom/botsystem/internal/store"
)

//go:embed static/embed.js
var embedScript []byte

type APIHandler struct {
	chat        *core.ChatService
	connections *core.ConnectionService
	behaviors   *core.BehaviorService
	feedback    *core.FeedbackService
	knowledge   *core.KnowledgeService
	activity    *core.ActivityRecorder
	jwtSecret   string
	logger      *zap.Logger
}

type Services struct {
	Chat        *core.ChatService
	Connections *core.ConnectionService
	Behaviors   *core.BehaviorService
	Feedback    *core.FeedbackService
	Knowledge   *core.KnowledgeService
	Activity    *core.ActivityRecorder
}

func NewAPIHandler(svc Services, jwtSecret string, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		chat:        svc.Chat,
		connections: svc.Connections,
		behaviors:   svc.Behaviors,
		feedback:    svc.Feedback,
		knowledge:   svc.Knowledge,
		activity:    svc.Activity,
		jwtSecret:   jwtSecret,
		logger:      logger.Named("api"),
	}
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *APIHandler) EmbedScriptHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := w.Write(embedScript); err != nil {
		h.logger.Warn("Failed to write embed script", zap.Error(err))
	}
}

// AskHandler answers a widget question. Upstream completion failures still
// return 200 with the retry text so the widget can render it inline.
func (h *APIHandler) AskHandler(w http.ResponseWriter, r *http.Request) {
	var req core.AskRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.chat.AskQuestion(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *APIHandler) SubmitFeedbackHandler(w http.ResponseWriter, r *http.Request) {
	var req core.FeedbackInput
	if !h.decode(w, r, &req) {
		return
	}
	fb, err := h.feedback.RecordFeedback(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"accepted":     true,
		"id":           fb.ID,
		"messageId":    fb.MessageID,
		"feedbackType": fb.FeedbackTypeFlags(),
		"timestamp":    fb.Timestamp,
	})
}

// GetFeedbackHandler is the widget lookup by user or message. Listing an
// organization's feedback needs an admin token.
func (h *APIHandler) GetFeedbackHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.FeedbackFilter{
		UserID:    strings.TrimSpace(q.Get("userId")),
		MessageID: strings.TrimSpace(q.Get("messageId")),
	}
	out, err := h.feedback.GetFeedback(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"feedback": out})
}

func (h *APIHandler) EmbedDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	embedURL := strings.TrimSpace(r.URL.Query().Get("embedUrl"))
	if embedURL == "" {
		h.writeError(w, r, &apperrors.MissingFieldError{Field: "embedUrl"})
		return
	}
	info, err := h.chat.ListEmbedDocuments(r.Context(), embedURL)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}
