// Package handlers holds the HTTP handlers for the public API surface.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/resaflow/platform/internal/conversation"
	"github.com/resaflow/platform/internal/tenancy"
	"github.com/resaflow/platform/pkg/logging"
)

// ChatWebhookHandler accepts inbound chat events from channel integrations.
// With a publisher configured the event is queued and acknowledged; without
// one it is processed inline and the reply returned, which keeps local
// development a single process.
type ChatWebhookHandler struct {
	publisher *conversation.Publisher
	service   *conversation.Service
	logger    *logging.Logger
}

func NewChatWebhookHandler(publisher *conversation.Publisher, service *conversation.Service, logger *logging.Logger) *ChatWebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ChatWebhookHandler{publisher: publisher, service: service, logger: logger}
}

type chatEventRequest struct {
	AccountID      string `json:"account_id"`
	SenderID       string `json:"sender_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	Text           string `json:"text,omitempty"`
	ButtonPayload  string `json:"button_payload,omitempty"`
}

type chatEventAccepted struct {
	JobID string `json:"job_id"`
}

type chatEventReply struct {
	ConversationID string                 `json:"conversation_id,omitempty"`
	Text           string                 `json:"text"`
	QuickReplies   []quickReplyJSON       `json:"quick_replies,omitempty"`
	NextNodeID     string                 `json:"next_node_id,omitempty"`
	Variables      conversation.Variables `json:"variables,omitempty"`
	Closed         bool                   `json:"closed,omitempty"`
}

type quickReplyJSON struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Payload string `json:"payload"`
}

// Handle is POST /webhooks/chat.
func (h *ChatWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req chatEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.AccountID == "" || req.SenderID == "" {
		writeError(w, http.StatusBadRequest, "account_id and sender_id are required")
		return
	}
	if req.Text == "" && req.ButtonPayload == "" {
		writeError(w, http.StatusBadRequest, "text or button_payload is required")
		return
	}

	ctx := tenancy.WithAccountID(r.Context(), req.AccountID)
	msg := conversation.InboundMessage{
		AccountID:      req.AccountID,
		SenderID:       req.SenderID,
		ConversationID: req.ConversationID,
		Text:           req.Text,
		ButtonPayload:  req.ButtonPayload,
	}

	if h.publisher != nil {
		jobID, err := h.publisher.EnqueueTurn(ctx, msg)
		if err != nil {
			h.logger.Error("failed to enqueue turn", "error", err, "account_id", req.AccountID)
			writeError(w, http.StatusServiceUnavailable, "failed to queue message")
			return
		}
		writeJSON(w, http.StatusAccepted, chatEventAccepted{JobID: jobID})
		return
	}

	resp, err := h.service.ProcessMessage(ctx, msg)
	if err != nil {
		h.logger.Error("turn processing failed", "error", err, "account_id", req.AccountID)
		writeError(w, http.StatusInternalServerError, "failed to process message")
		return
	}
	writeJSON(w, http.StatusOK, toChatReply(resp))
}

func toChatReply(resp *conversation.Response) chatEventReply {
	out := chatEventReply{
		ConversationID: resp.ConversationID,
		Text:           resp.Reply.Text,
		NextNodeID:     resp.Reply.NodeID,
		Variables:      resp.Variables,
		Closed:         resp.Closed,
	}
	for _, qr := range resp.Reply.QuickReplies {
		out.QuickReplies = append(out.QuickReplies, quickReplyJSON{ID: qr.ID, Label: qr.Label, Payload: qr.Payload})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
