package devserver

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-agent-client/internal/errors"
	"github.com/jrsteele09/go-agent-client/resources"
)

// store keeps the business resources in memory.
type store struct {
	lock     sync.RWMutex
	agents   map[string]*resources.Agent
	sources  map[string]*resources.Source
	files    map[string][]byte
	sessions map[string][]resources.ChatMessage
}

func newStore() *store {
	return &store{
		agents:   make(map[string]*resources.Agent),
		sources:  make(map[string]*resources.Source),
		files:    make(map[string][]byte),
		sessions: make(map[string][]resources.ChatMessage),
	}
}

func (st *store) createAgent(in resources.AgentInput) resources.Agent {
	st.lock.Lock()
	defer st.lock.Unlock()
	now := time.Now().UTC()
	a := &resources.Agent{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Description:  in.Description,
		Model:        in.Model,
		Instructions: in.Instructions,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	st.agents[a.ID] = a
	return *a
}

func (st *store) updateAgent(id string, in resources.AgentInput) (resources.Agent, error) {
	st.lock.Lock()
	defer st.lock.Unlock()
	a, ok := st.agents[id]
	if !ok {
		return resources.Agent{}, apperrors.ErrNotFound
	}
	a.Name = in.Name
	a.Description = in.Description
	a.Model = in.Model
	a.Instructions = in.Instructions
	a.UpdatedAt = time.Now().UTC()
	return *a, nil
}

func (st *store) agent(id string) (resources.Agent, error) {
	st.lock.RLock()
	defer st.lock.RUnlock()
	a, ok := st.agents[id]
	if !ok {
		return resources.Agent{}, apperrors.ErrNotFound
	}
	return *a, nil
}

func (st *store) listAgents() []resources.Agent {
	st.lock.RLock()
	defer st.lock.RUnlock()
	out := make([]resources.Agent, 0, len(st.agents))
	for _, a := range st.agents {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// deleteAgent removes the agent together with its sources.
func (st *store) deleteAgent(id string) error {
	st.lock.Lock()
	defer st.lock.Unlock()
	if _, ok := st.agents[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(st.agents, id)
	for sid, src := range st.sources {
		if src.AgentID == id {
			delete(st.sources, sid)
			delete(st.files, sid)
		}
	}
	return nil
}

func (st *store) addSource(src resources.Source, content []byte) (resources.Source, error) {
	st.lock.Lock()
	defer st.lock.Unlock()
	if _, ok := st.agents[src.AgentID]; !ok {
		return resources.Source{}, apperrors.ErrNotFound
	}
	src.ID = uuid.NewString()
	src.CreatedAt = time.Now().UTC()
	st.sources[src.ID] = &src
	if content != nil {
		st.files[src.ID] = content
	}
	return src, nil
}

func (st *store) listSources(agentID string) ([]resources.Source, error) {
	st.lock.RLock()
	defer st.lock.RUnlock()
	if _, ok := st.agents[agentID]; !ok {
		return nil, apperrors.ErrNotFound
	}
	out := make([]resources.Source, 0)
	for _, src := range st.sources {
		if src.AgentID == agentID {
			out = append(out, *src)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// sourceContent returns the raw bytes of a source: the uploaded file or the
// stored text.
func (st *store) sourceContent(id string) (resources.Source, []byte, error) {
	st.lock.RLock()
	defer st.lock.RUnlock()
	src, ok := st.sources[id]
	if !ok {
		return resources.Source{}, nil, apperrors.ErrNotFound
	}
	if data, ok := st.files[id]; ok {
		return *src, data, nil
	}
	return *src, []byte(src.Content), nil
}

func (st *store) deleteSource(id string) error {
	st.lock.Lock()
	defer st.lock.Unlock()
	if _, ok := st.sources[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(st.sources, id)
	delete(st.files, id)
	return nil
}

func (st *store) appendMessages(sessionID string, msgs ...resources.ChatMessage) {
	st.lock.Lock()
	defer st.lock.Unlock()
	st.sessions[sessionID] = append(st.sessions[sessionID], msgs...)
}

func (st *store) history(sessionID string) ([]resources.ChatMessage, error) {
	st.lock.RLock()
	defer st.lock.RUnlock()
	msgs, ok := st.sessions[sessionID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return append([]resources.ChatMessage(nil), msgs...), nil
}
