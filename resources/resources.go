// Package resources holds typed callers for the dashboard's business
// resources. Each one is a thin wrapper that hands a path and payload
// to the dispatcher and decodes the result.
package resources

import (
	"context"
	"io"

	"github.com/jrsteele09/go-agent-client/client"
)

// Dispatcher is the part of *client.Client the resources use.
type Dispatcher interface {
	Get(ctx context.Context, path string, out any, opts ...client.RequestOption) error
	Post(ctx context.Context, path string, body, out any, opts ...client.RequestOption) (client.Result, error)
	Put(ctx context.Context, path string, body, out any, opts ...client.RequestOption) (client.Result, error)
	Delete(ctx context.Context, path string, out any, opts ...client.RequestOption) (client.Result, error)
	UploadFile(ctx context.Context, path string, upload client.Upload, out any, opts ...client.RequestOption) error
	DownloadFile(ctx context.Context, path string, w io.Writer, opts ...client.RequestOption) error
}

var _ Dispatcher = (*client.Client)(nil)

type Service struct {
	Agents  *Agents
	Sources *Sources
	Chat    *Chat
}

func New(d Dispatcher) *Service {
	return &Service{
		Agents:  &Agents{d: d},
		Sources: &Sources{d: d},
		Chat:    &Chat{d: d},
	}
}

// created returns out unless the call was deferred, in which case nothing was
// decoded and the caller only has the queue id.
func created[T any](res client.Result, out *T) *T {
	if res.Deferred {
		return nil
	}
	return out
}
