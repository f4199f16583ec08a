package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	orchestratorx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/agents/orchestrator"
	approvalx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/approval"
	catalogx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/catalog"
	logx "github.com/tanpawarit/Chative-Shopping-Assistant/pkg/logger"
)

const maxBodyBytes = 64 << 10

type handler struct {
	conversations Conversations
	carts         CartViewer
	catalog       *catalogx.Catalog
	verifier      SignatureVerifier
}

type sendMessageRequest struct {
	Text   string `json:"text"`
	UserID *int   `json:"user_id,omitempty"`
}

type resumeRequest struct {
	Text string `json:"text"`
}

type cartLine struct {
	ProductID   int    `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
}

type cartResponse struct {
	ConversationID string     `json:"conversation_id"`
	Items          []cartLine `json:"items"`
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// createConversation hands out a fresh id; state is created on the first
// message.
func (h *handler) createConversation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, map[string]string{"conversation_id": uuid.NewString()})
}

func (h *handler) getConversation(w http.ResponseWriter, r *http.Request) {
	st, err := h.conversations.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var opts []orchestratorx.TurnOption
	if req.UserID != nil {
		opts = append(opts, orchestratorx.WithUserID(*req.UserID))
	}

	res, err := h.conversations.StartOrContinue(r.Context(), chi.URLParam(r, "id"), req.Text, opts...)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) resume(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.conversations.Resume(r.Context(), chi.URLParam(r, "id"), req.Text)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) getCart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.conversations.Snapshot(r.Context(), id); err != nil {
		writeSessionError(w, err)
		return
	}

	lines, err := h.carts.View(id)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	items := make([]cartLine, 0, len(lines))
	for _, line := range lines {
		items = append(items, cartLine{
			ProductID:   line.ProductID,
			ProductName: h.catalog.ProductName(line.ProductID),
			Quantity:    line.Quantity,
		})
	}
	writeJSON(w, http.StatusOK, cartResponse{ConversationID: id, Items: items})
}

// approvalWebhook resumes a conversation from a signed supervisor callback.
func (h *handler) approvalWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.verifier.Verify(r.Header.Get("Upstash-Signature"), body); err != nil {
		logx.Warn().Err(err).Msg("rejected approval callback")
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var decision approvalx.Decision
	if err := json.Unmarshal(body, &decision); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.conversations.Resume(r.Context(), decision.ConversationID, decision.Decision)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
