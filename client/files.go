package client

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
)

// Upload is a multipart file upload: one file part plus optional form fields.
type Upload struct {
	Field    string
	Filename string
	Content  io.Reader
	Fields   map[string]string
}

// UploadFile posts a multipart form to path. Uploads are never deferred; the
// form is buffered so it can be replayed after a refresh.
func (c *Client) UploadFile(ctx context.Context, path string, upload Upload, out any, opts ...RequestOption) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, value := range upload.Fields {
		if err := w.WriteField(name, value); err != nil {
			return &Error{Kind: KindApp, Message: "could not build upload", Err: err}
		}
	}
	field := upload.Field
	if field == "" {
		field = "file"
	}
	part, err := w.CreateFormFile(field, upload.Filename)
	if err != nil {
		return &Error{Kind: KindApp, Message: "could not build upload", Err: err}
	}
	if _, err := io.Copy(part, upload.Content); err != nil {
		return &Error{Kind: KindApp, Message: "could not read upload", Err: err}
	}
	if err := w.Close(); err != nil {
		return &Error{Kind: KindApp, Message: "could not build upload", Err: err}
	}

	cl, err := c.newCall(http.MethodPost, path, nil, opts)
	if err != nil {
		return err
	}
	cl.body = buf.Bytes()
	cl.contentType = w.FormDataContentType()
	cl.noDefer = true
	_, err = c.send(ctx, cl, out)
	return err
}

// DownloadFile streams the raw response body of path into w.
func (c *Client) DownloadFile(ctx context.Context, path string, w io.Writer, opts ...RequestOption) error {
	cl, err := c.newCall(http.MethodGet, path, nil, opts)
	if err != nil {
		return err
	}
	cl.sink = w
	_, err = c.send(ctx, cl, nil)
	return err
}
