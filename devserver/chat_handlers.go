package devserver

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-agent-client/resources"
)

// ChatHandler records the user's message and answers with a canned reply
// from the agent.
func (s *Server) ChatHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req resources.ChatRequest
		if !decodeBody(w, r, &req) {
			return
		}
		req.Message = strings.TrimSpace(req.Message)
		if req.AgentID == "" || req.Message == "" {
			writeError(w, http.StatusBadRequest, "invalid chat message", "agentId and message are required")
			return
		}
		agent, err := s.data.agent(req.AgentID)
		if err != nil {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		if req.SessionID == "" {
			req.SessionID = uuid.NewString()
		} else if _, err := s.data.history(req.SessionID); err != nil {
			writeError(w, http.StatusNotFound, "chat session not found")
			return
		}

		now := time.Now().UTC()
		question := resources.ChatMessage{
			ID:        uuid.NewString(),
			SessionID: req.SessionID,
			Role:      resources.RoleUser,
			Content:   req.Message,
			CreatedAt: now,
		}
		reply := resources.ChatMessage{
			ID:        uuid.NewString(),
			SessionID: req.SessionID,
			Role:      resources.RoleAssistant,
			Content:   fmt.Sprintf("%s received: %s", agent.Name, req.Message),
			CreatedAt: now,
		}
		s.data.appendMessages(req.SessionID, question, reply)
		writeData(w, http.StatusOK, resources.ChatReply{SessionID: req.SessionID, Reply: reply}, "")
	}
}

func (s *Server) ChatHistoryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msgs, err := s.data.history(r.PathValue("id"))
		if err != nil {
			writeError(w, http.StatusNotFound, "chat session not found")
			return
		}
		writeData(w, http.StatusOK, msgs, "")
	}
}
