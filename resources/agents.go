package resources

import (
	"context"
	"net/url"
	"time"

	"github.com/jrsteele09/go-agent-client/client"
)

type Agent struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Model        string    `json:"model,omitempty"`
	Instructions string    `json:"instructions,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type AgentInput struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Model        string `json:"model,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

type Agents struct {
	d Dispatcher
}

func (a *Agents) List(ctx context.Context) ([]Agent, error) {
	var out []Agent
	if err := a.d.Get(ctx, "/agents", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Agents) Get(ctx context.Context, id string) (*Agent, error) {
	var out Agent
	if err := a.d.Get(ctx, "/agents/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create returns a nil agent with a Deferred result while offline.
func (a *Agents) Create(ctx context.Context, in AgentInput) (*Agent, client.Result, error) {
	var out Agent
	res, err := a.d.Post(ctx, "/agents", in, &out)
	if err != nil {
		return nil, res, err
	}
	return created(res, &out), res, nil
}

func (a *Agents) Update(ctx context.Context, id string, in AgentInput) (*Agent, client.Result, error) {
	var out Agent
	res, err := a.d.Put(ctx, "/agents/"+url.PathEscape(id), in, &out)
	if err != nil {
		return nil, res, err
	}
	return created(res, &out), res, nil
}

func (a *Agents) Delete(ctx context.Context, id string) (client.Result, error) {
	return a.d.Delete(ctx, "/agents/"+url.PathEscape(id), nil)
}
