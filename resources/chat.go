package resources

import (
	"context"
	"net/url"
	"time"

	"github.com/jrsteele09/go-agent-client/client"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ChatMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChatRequest starts a session when SessionID is empty.
type ChatRequest struct {
	AgentID   string `json:"agentId"`
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message"`
}

type ChatReply struct {
	SessionID string      `json:"sessionId"`
	Reply     ChatMessage `json:"reply"`
}

type Chat struct {
	d Dispatcher
}

// Send posts a message. Offline the message is queued and the reply is nil.
func (c *Chat) Send(ctx context.Context, req ChatRequest) (*ChatReply, client.Result, error) {
	var out ChatReply
	res, err := c.d.Post(ctx, "/chat", req, &out)
	if err != nil {
		return nil, res, err
	}
	return created(res, &out), res, nil
}

func (c *Chat) History(ctx context.Context, sessionID string) ([]ChatMessage, error) {
	var out []ChatMessage
	if err := c.d.Get(ctx, "/chat/sessions/"+url.PathEscape(sessionID)+"/messages", &out); err != nil {
		return nil, err
	}
	return out, nil
}
