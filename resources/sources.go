package resources

import (
	"context"
	"io"
	"net/url"
	"time"

	"github.com/jrsteele09/go-agent-client/client"
)

type SourceKind string

const (
	SourceText SourceKind = "text"
	SourceURL  SourceKind = "url"
	SourceFile SourceKind = "file"
)

// Source is a piece of knowledge attached to an agent.
type Source struct {
	ID        string     `json:"id"`
	AgentID   string     `json:"agentId"`
	Kind      SourceKind `json:"kind"`
	Title     string     `json:"title,omitempty"`
	Content   string     `json:"content,omitempty"`
	URL       string     `json:"url,omitempty"`
	Filename  string     `json:"filename,omitempty"`
	Size      int64      `json:"size,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

type TextSourceInput struct {
	AgentID string `json:"agentId"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
}

type URLSourceInput struct {
	AgentID string `json:"agentId"`
	Title   string `json:"title,omitempty"`
	URL     string `json:"url"`
}

type Sources struct {
	d Dispatcher
}

func (s *Sources) List(ctx context.Context, agentID string) ([]Source, error) {
	var out []Source
	if err := s.d.Get(ctx, "/agents/"+url.PathEscape(agentID)+"/sources", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Sources) AddText(ctx context.Context, in TextSourceInput) (*Source, client.Result, error) {
	var out Source
	res, err := s.d.Post(ctx, "/sources/text", in, &out)
	if err != nil {
		return nil, res, err
	}
	return created(res, &out), res, nil
}

func (s *Sources) AddURL(ctx context.Context, in URLSourceInput) (*Source, client.Result, error) {
	var out Source
	res, err := s.d.Post(ctx, "/sources/url", in, &out)
	if err != nil {
		return nil, res, err
	}
	return created(res, &out), res, nil
}

// Upload sends a file source. Uploads need a connection; they are never queued.
func (s *Sources) Upload(ctx context.Context, agentID, filename string, content io.Reader) (*Source, error) {
	var out Source
	err := s.d.UploadFile(ctx, "/sources/upload", client.Upload{
		Filename: filename,
		Content:  content,
		Fields:   map[string]string{"agentId": agentID},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Sources) Download(ctx context.Context, id string, w io.Writer) error {
	return s.d.DownloadFile(ctx, "/sources/"+url.PathEscape(id)+"/download", w)
}

func (s *Sources) Delete(ctx context.Context, id string) (client.Result, error) {
	return s.d.Delete(ctx, "/sources/"+url.PathEscape(id), nil)
}
