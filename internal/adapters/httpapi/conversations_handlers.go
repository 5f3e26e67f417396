package httpapi

import (
	"net/http"

	"github.com/Overland-East-Bay/carpool-api/internal/domain"
)

func (s *Server) ListMyConversations(w http.ResponseWriter, r *http.Request) {
	me, ok := s.caller(w, r)
	if !ok {
		return
	}

	out := make([]ConversationSummary, 0)
	for c, err := range s.Chat.ConversationsFor(r.Context(), me.UserID) {
		if err != nil {
			writeAppError(w, r, s.Log, err)
			return
		}
		out = append(out, toConversationSummary(c, me.UserID))
	}
	writeJSON(w, http.StatusOK, ConversationListResponse{Conversations: out})
}

func (s *Server) GetConversation(w http.ResponseWriter, r *http.Request) {
	me, ok := s.caller(w, r)
	if !ok {
		return
	}
	convID, ok := s.pathParam(w, r, "conversationId")
	if !ok {
		return
	}
	conv, err := s.Chat.Get(r.Context(), domain.ConversationID(convID), me.UserID)
	if err != nil {
		writeAppError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, ConversationResponse{Conversation: toConversation(conv)})
}

// PostMessage appends the caller's message. Supports Idempotency-Key.
func (s *Server) PostMessage(w http.ResponseWriter, r *http.Request) {
	me, ok := s.caller(w, r)
	if !ok {
		return
	}
	convID, ok := s.pathParam(w, r, "conversationId")
	if !ok {
		return
	}
	var body PostMessageRequest
	if !s.decodeJSON(w, r, &body) {
		return
	}

	payload := struct {
		ConversationId string             `json:"conversationId"`
		Body           PostMessageRequest `json:"body"`
	}{ConversationId: convID, Body: body}
	s.idempotent(w, r, me.UserID, payload, func() (int, any, error) {
		msg, err := s.Booking.PostMessage(r.Context(), domain.ConversationID(convID), me.UserID, body.Text)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, MessageResponse{Message: toMessage(msg)}, nil
	})
}

func (s *Server) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	me, ok := s.caller(w, r)
	if !ok {
		return
	}
	convID, ok := s.pathParam(w, r, "conversationId")
	if !ok {
		return
	}
	if err := s.Chat.Delete(r.Context(), domain.ConversationID(convID), me.UserID); err != nil {
		writeAppError(w, r, s.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
