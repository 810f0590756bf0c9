package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/go-agent-client/internal/errors"
	"github.com/jrsteele09/go-agent-client/offline"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Result is the outcome of a mutating call. Deferred means the call was not
// sent but queued for replay; QueueID identifies the entry.
type Result struct {
	Deferred bool
	QueueID  string
	Message  string
}

// envelope is the backend's success body: {data, message?}.
type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message,omitempty"`
}

type call struct {
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
	headers     map[string]string
	priority    *offline.Priority
	maxRetries  int
	sink        io.Writer

	token    string
	retried  bool
	replay   bool
	skipAuth bool
	noDefer  bool
}

// RequestOption adjusts a single call.
type RequestOption func(*call)

func WithQuery(query url.Values) RequestOption {
	return func(c *call) {
		c.query = query
	}
}

func WithHeader(name, value string) RequestOption {
	return func(c *call) {
		if c.headers == nil {
			c.headers = map[string]string{}
		}
		c.headers[name] = value
	}
}

// WithPriority overrides the method based priority if the call is deferred.
func WithPriority(p offline.Priority) RequestOption {
	return func(c *call) {
		c.priority = &p
	}
}

// WithMaxRetries overrides the queue's retry budget if the call is deferred.
func WithMaxRetries(n int) RequestOption {
	return func(c *call) {
		c.maxRetries = n
	}
}

// Get fetches path and decodes the envelope's data into out. GET is never
// deferred.
func (c *Client) Get(ctx context.Context, path string, out any, opts ...RequestOption) error {
	cl, err := c.newCall(http.MethodGet, path, nil, opts)
	if err != nil {
		return err
	}
	_, err = c.send(ctx, cl, out)
	return err
}

func (c *Client) Post(ctx context.Context, path string, body, out any, opts ...RequestOption) (Result, error) {
	return c.mutate(ctx, http.MethodPost, path, body, out, opts)
}

func (c *Client) Put(ctx context.Context, path string, body, out any, opts ...RequestOption) (Result, error) {
	return c.mutate(ctx, http.MethodPut, path, body, out, opts)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any, opts ...RequestOption) (Result, error) {
	return c.mutate(ctx, http.MethodPatch, path, body, out, opts)
}

func (c *Client) Delete(ctx context.Context, path string, out any, opts ...RequestOption) (Result, error) {
	return c.mutate(ctx, http.MethodDelete, path, nil, out, opts)
}

func (c *Client) mutate(ctx context.Context, method, path string, body, out any, opts []RequestOption) (Result, error) {
	cl, err := c.newCall(method, path, body, opts)
	if err != nil {
		return Result{}, err
	}
	return c.send(ctx, cl, out)
}

func (c *Client) newCall(method, path string, body any, opts []RequestOption) (*call, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	cl := &call{method: method, path: path}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &Error{Kind: KindApp, Message: "could not encode request body", Err: err}
		}
		cl.body = data
		cl.contentType = "application/json"
	}
	for _, opt := range opts {
		opt(cl)
	}
	return cl, nil
}

// target is the path plus query as stored in the offline queue.
func (cl *call) target() string {
	if len(cl.query) == 0 {
		return cl.path
	}
	return cl.path + "?" + cl.query.Encode()
}

func (cl *call) deferrable() bool {
	return cl.method != http.MethodGet && !cl.replay && !cl.noDefer && !offline.IsAuthPath(cl.path)
}

func (c *Client) endpoint(cl *call) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + cl.path
	u.RawQuery = cl.query.Encode()
	return u.String()
}

// send runs one call through the pipeline: queue policy, send, a single
// refresh and replay on 401, then classification.
func (c *Client) send(ctx context.Context, cl *call, out any) (Result, error) {
	if c.queue != nil && cl.deferrable() && c.queue.ShouldQueue(cl.method, cl.path) {
		return c.deferCall(ctx, cl, nil)
	}

	start := time.Now()
	resp, err := c.roundTrip(ctx, cl)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, &Error{Kind: KindNetwork, Message: "request cancelled", Err: ctx.Err()}
		}
		if c.queue != nil && cl.deferrable() && neverSent(err) {
			c.queue.MarkUnreachable()
			return c.deferCall(ctx, cl, err)
		}
		appErr := networkError(err)
		c.announce(ctx, appErr)
		return Result{}, appErr
	}
	defer resp.Body.Close()

	if c.debug {
		log.Debug().Str("method", cl.method).Str("url", c.endpoint(cl)).Int("status", resp.StatusCode).
			Dur("elapsed", time.Since(start)).Bool("replay", cl.replay).Msg("api request")
	}

	if resp.StatusCode == http.StatusUnauthorized && !cl.retried && !cl.skipAuth && !offline.IsAuthPath(cl.path) {
		_, _ = io.Copy(io.Discard, resp.Body)
		token, err := c.refresher.Refresh(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, &Error{Kind: KindNetwork, Message: "request cancelled", Err: ctx.Err()}
			}
			return Result{}, &Error{
				Kind:    KindAuthentication,
				Status:  http.StatusUnauthorized,
				Message: "please sign in again",
				Err:     fmt.Errorf("%w: %w", apperrors.ErrSessionExpired, err),
			}
		}
		cl.retried = true
		cl.token = token
		return c.send(ctx, cl, out)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		appErr := classify(resp.StatusCode, body)
		if c.debug {
			log.Debug().Str("method", cl.method).Str("path", cl.path).RawJSON("body", jsonOrNull(body)).Msg("api error response")
		}
		c.announce(ctx, appErr)
		return Result{}, appErr
	}

	if cl.sink != nil {
		if _, err := io.Copy(cl.sink, resp.Body); err != nil {
			appErr := &Error{Kind: KindNetwork, Status: resp.StatusCode, Message: "response interrupted", Err: err}
			c.announce(ctx, appErr)
			return Result{}, appErr
		}
		return Result{}, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		appErr := &Error{Kind: KindNetwork, Status: resp.StatusCode, Message: "response interrupted", Err: err}
		c.announce(ctx, appErr)
		return Result{}, appErr
	}
	return c.unwrap(ctx, resp.StatusCode, body, out)
}

func (c *Client) unwrap(ctx context.Context, status int, body []byte, out any) (Result, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return Result{}, nil
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		appErr := &Error{Kind: KindApp, Status: status, Message: "malformed response", Err: err}
		c.announce(ctx, appErr)
		return Result{}, appErr
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			appErr := &Error{Kind: KindApp, Status: status, Message: "unexpected response data", Err: err}
			c.announce(ctx, appErr)
			return Result{}, appErr
		}
	}
	return Result{Message: env.Message}, nil
}

func (c *Client) roundTrip(ctx context.Context, cl *call) (*http.Response, error) {
	var body io.Reader
	if cl.body != nil {
		body = bytes.NewReader(cl.body)
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, c.endpoint(cl), body)
	if err != nil {
		return nil, err
	}
	if cl.contentType != "" {
		req.Header.Set("Content-Type", cl.contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	for name, value := range cl.headers {
		req.Header.Set(name, value)
	}
	if !cl.skipAuth {
		c.authorize(req, cl.token)
	}
	return c.http.Do(req)
}

// authorize attaches the bearer header. The credential store is read on
// every call unless the call carries a token from a refresh it just ran.
func (c *Client) authorize(req *http.Request, token string) {
	if token != "" {
		(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(req)
		return
	}
	if t, err := c.tokens.Token(); err == nil {
		t.SetAuthHeader(req)
	}
}

func (c *Client) deferCall(ctx context.Context, cl *call, cause error) (Result, error) {
	priority := offline.PriorityFor(cl.method)
	if cl.priority != nil {
		priority = *cl.priority
	}
	id, err := c.queue.AddRequest(offline.NewRequest{
		URL:        cl.target(),
		Method:     cl.method,
		Data:       cl.body,
		Headers:    cl.headers,
		Priority:   priority,
		MaxRetries: cl.maxRetries,
	})
	if err != nil {
		appErr := &Error{Kind: KindNetwork, Message: "offline and could not queue request", Err: err}
		if cause != nil {
			appErr.Err = fmt.Errorf("%w: %w", err, cause)
		}
		c.announce(ctx, appErr)
		return Result{}, appErr
	}
	if cause != nil {
		log.Warn().Err(cause).Str("method", cl.method).Str("path", cl.path).Str("id", id).Msg("backend unreachable, request queued")
	}
	if c.notifier != nil && !isQuiet(ctx) {
		c.notifier.Notify(Notification{Level: LevelInfo, Message: "queued, will retry when back online"})
	}
	return Result{Deferred: true, QueueID: id, Message: "queued, will retry when back online"}, nil
}

// Execute replays a queued request. It implements offline.Executor: replays
// go through the same pipeline, are never queued again, and report failures
// to the queue instead of the user.
func (c *Client) Execute(ctx context.Context, req *offline.QueuedRequest) error {
	u, err := url.Parse(req.URL)
	if err != nil {
		return apperrors.Wrapf(apperrors.ErrInvalidRequest, "client.Execute parse %q", req.URL)
	}
	cl := &call{
		method:  req.Method,
		path:    u.Path,
		headers: req.Headers,
		replay:  true,
	}
	if u.RawQuery != "" {
		cl.query = u.Query()
	}
	if len(req.Data) > 0 {
		cl.body = req.Data
		cl.contentType = "application/json"
	}
	_, err = c.send(withQuiet(ctx), cl, nil)
	return err
}

func jsonOrNull(body []byte) []byte {
	if json.Valid(body) {
		return body
	}
	data, _ := json.Marshal(string(body))
	return data
}
