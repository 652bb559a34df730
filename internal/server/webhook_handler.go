package server

import (
	"net/http"

	"github.com/emonklabs/emonk/internal/assistant"
	"github.com/emonklabs/emonk/internal/httputil"
)

// webhookResponse is the chat card returned to the messaging platform.
type webhookResponse struct {
	Text string `json:"text"`
}

// handleWebhook is the chat ingress. It replies synchronously with the
// assistant's answer; anything scheduled (reminders) happens on later ticks.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.chat == nil {
		httputil.WriteError(w, http.StatusNotImplemented, "chat is not configured")
		return
	}

	var msg assistant.Incoming
	if !httputil.DecodeJSON(w, r, &msg) {
		return
	}
	if msg.ConversationID == "" {
		httputil.WriteError(w, http.StatusBadRequest, "conversation_id is required")
		return
	}
	if msg.Text == "" {
		httputil.WriteError(w, http.StatusBadRequest, "text is required")
		return
	}

	reply, err := s.chat.HandleMessage(r.Context(), msg)
	if err != nil {
		s.logger.Error("webhook handling failed", "conversation", msg.ConversationID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to process message")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, webhookResponse{Text: reply})
}
