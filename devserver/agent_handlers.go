package devserver

import (
	"net/http"
	"strings"

	apperrors "github.com/jrsteele09/go-agent-client/internal/errors"
	"github.com/jrsteele09/go-agent-client/resources"
)

func validateAgent(in *resources.AgentInput) []string {
	in.Name = strings.TrimSpace(in.Name)
	var problems []string
	if in.Name == "" {
		problems = append(problems, "name is required")
	}
	if len(in.Name) > 100 {
		problems = append(problems, "name must be at most 100 characters")
	}
	return problems
}

func (s *Server) ListAgentsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, s.data.listAgents(), "")
	}
}

func (s *Server) GetAgentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent, err := s.data.agent(r.PathValue("id"))
		if err != nil {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		writeData(w, http.StatusOK, agent, "")
	}
}

func (s *Server) CreateAgentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in resources.AgentInput
		if !decodeBody(w, r, &in) {
			return
		}
		if problems := validateAgent(&in); len(problems) > 0 {
			writeError(w, http.StatusBadRequest, "invalid agent", problems...)
			return
		}
		writeData(w, http.StatusCreated, s.data.createAgent(in), "agent created")
	}
}

func (s *Server) UpdateAgentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in resources.AgentInput
		if !decodeBody(w, r, &in) {
			return
		}
		if problems := validateAgent(&in); len(problems) > 0 {
			writeError(w, http.StatusBadRequest, "invalid agent", problems...)
			return
		}
		agent, err := s.data.updateAgent(r.PathValue("id"), in)
		if err != nil {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		writeData(w, http.StatusOK, agent, "agent updated")
	}
}

func (s *Server) DeleteAgentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.data.deleteAgent(r.PathValue("id")); apperrors.Is(err, apperrors.ErrNotFound) {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		writeData(w, http.StatusOK, nil, "agent deleted")
	}
}
