package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mayank-dotcom/botsystem/internal/apperrors"
	"github.com/mayank-dotcom/botsystem/internal/core"
	"github.com/mayank-dotcom/botsystem/internal/store"
)

// organization is only called behind AdminAuth.
func organization(r *http.Request) string {
	org, _ := OrganizationFromContext(r.Context())
	return org
}

func (h *APIHandler) ListConnectionsHandler(w http.ResponseWriter, r *http.Request) {
	conns, err := h.connections.List(r.Context(), organization(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if conns == nil {
		conns = []store.Connection{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"connections": conns})
}

func (h *APIHandler) CreateConnectionHandler(w http.ResponseWriter, r *http.Request) {
	var in core.ConnectionInput
	if !h.decode(w, r, &in) {
		return
	}
	conn, err := h.connections.Create(r.Context(), organization(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, conn)
}

func (h *APIHandler) GetConnectionHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := h.connections.Get(r.Context(), organization(r), chi.URLParam(r, "connectionID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, conn)
}

func (h *APIHandler) UpdateConnectionHandler(w http.ResponseWriter, r *http.Request) {
	var in core.ConnectionInput
	if !h.decode(w, r, &in) {
		return
	}
	conn, err := h.connections.Update(r.Context(), organization(r), chi.URLParam(r, "connectionID"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, conn)
}

func (h *APIHandler) DeleteConnectionHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.connections.Delete(r.Context(), organization(r), chi.URLParam(r, "connectionID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) UpsertConnectionBehaviorHandler(w http.ResponseWriter, r *http.Request) {
	var update core.BehaviorUpdate
	if !h.decode(w, r, &update) {
		return
	}
	conn, err := h.connections.UpsertConnectionBehavior(r.Context(), organization(r), chi.URLParam(r, "connectionID"), update)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, conn)
}

type selectDocumentsRequest struct {
	KnowledgeSelectors []string `json:"knowledgeSelectors"`
}

func (h *APIHandler) SelectConnectionDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	var req selectDocumentsRequest
	if !h.decode(w, r, &req) {
		return
	}
	org, id := organization(r), chi.URLParam(r, "connectionID")
	if err := h.connections.UpsertKnowledgeSelectors(r.Context(), org, id, req.KnowledgeSelectors); err != nil {
		h.writeError(w, r, err)
		return
	}
	conn, err := h.connections.Get(r.Context(), org, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, conn)
}

func (h *APIHandler) GetOrganizationBehaviorHandler(w http.ResponseWriter, r *http.Request) {
	ob, err := h.behaviors.GetOrganizationBehavior(r.Context(), organization(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ob)
}

func (h *APIHandler) CreateOrganizationBehaviorHandler(w http.ResponseWriter, r *http.Request) {
	var d store.BehaviorDescriptor
	if !h.decode(w, r, &d) {
		return
	}
	ob, created, err := h.behaviors.CreateOrganizationBehavior(r.Context(), organization(r), d)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, map[string]interface{}{"behavior": ob, "created": created})
}

func (h *APIHandler) UpdateOrganizationBehaviorHandler(w http.ResponseWriter, r *http.Request) {
	var d store.BehaviorDescriptor
	if !h.decode(w, r, &d) {
		return
	}
	ob, err := h.behaviors.UpdateOrganizationBehavior(r.Context(), organization(r), d)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ob)
}

func (h *APIHandler) ListChunksHandler(w http.ResponseWriter, r *http.Request) {
	chunks, err := h.knowledge.ListChunks(r.Context(), organization(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if chunks == nil {
		chunks = []store.KnowledgeChunk{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"chunks": chunks})
}

type addChunkRequest struct {
	Content string `json:"content"`
}

func (h *APIHandler) AddChunkHandler(w http.ResponseWriter, r *http.Request) {
	var req addChunkRequest
	if !h.decode(w, r, &req) {
		return
	}
	chunk, err := h.knowledge.AddChunk(r.Context(), organization(r), req.Content)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, chunk)
}

func (h *APIHandler) DeleteChunkHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "chunkID"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, r, apperrors.Invalid("chunkID", "must be a positive integer"))
		return
	}
	if err := h.knowledge.DeleteChunk(r.Context(), organization(r), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": true, "id": id})
}

// ActivityLogsHandler lists the organization's admin activity, newest first.
func (h *APIHandler) ActivityLogsHandler(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := h.activity.List(r.Context(), organization(r), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"logs": logs})
}

func (h *APIHandler) ChatHistoryHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	history, err := h.chat.ListChatHistory(r.Context(), organization(r), page, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if history.Messages == nil {
		history.Messages = []store.ConversationMessage{}
	}
	h.writeJSON(w, http.StatusOK, history)
}

func (h *APIHandler) ListFeedbackHandler(w http.ResponseWriter, r *http.Request) {
	events, err := h.feedback.ListFeedback(r.Context(), organization(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if events == nil {
		events = []store.FeedbackEvent{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"feedback": events})
}
