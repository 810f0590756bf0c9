package client

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/go-agent-client/offline"
	"github.com/jrsteele09/go-agent-client/token"
	"github.com/jrsteele09/go-agent-client/token/refresh"
)

// Transport sends one HTTP request. *http.Client satisfies it.
type Transport interface {
	Do(req *http.Request) (*http.Response, error)
}

const (
	defaultUserAgent = "agent-client/0.1"
	defaultTimeout   = 30 * time.Second
)

// Client is the single entry point for backend calls. It attaches the current
// access token, coordinates one refresh across concurrently failing calls,
// and hands mutating calls to the offline queue when they cannot be sent.
type Client struct {
	baseURL          *url.URL
	http             Transport
	tokens           *token.Store
	queue            *offline.Manager
	refresher        *refresh.Coordinator
	notifier         Notifier
	debug            bool
	userAgent        string
	refreshTimeout   time.Duration
	retryAttempts    int
	retryDelay       time.Duration
	onSessionExpired func()
}

var _ offline.Executor = (*Client)(nil)

type Option func(*Client)

func WithTransport(t Transport) Option {
	return func(c *Client) {
		c.http = t
	}
}

// WithQueue enables offline deferral; the client becomes the queue's executor.
func WithQueue(q *offline.Manager) Option {
	return func(c *Client) {
		c.queue = q
	}
}

func WithNotifier(n Notifier) Option {
	return func(c *Client) {
		c.notifier = n
	}
}

// WithDebug logs every request/response pair.
func WithDebug(debug bool) Option {
	return func(c *Client) {
		c.debug = debug
	}
}

func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.refreshTimeout = d
	}
}

// WithRetry sets the defaults used by RequestWithRetry.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(c *Client) {
		c.retryAttempts = attempts
		c.retryDelay = delay
	}
}

// WithSessionExpiredHandler is called after an unrecoverable refresh failure,
// once credentials and queued work have been discarded. It is where a UI
// sends the user back to sign in.
func WithSessionExpiredHandler(fn func()) Option {
	return func(c *Client) {
		c.onSessionExpired = fn
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New builds a Client for the API rooted at baseURL, e.g. "https://host/api".
func New(baseURL string, tokens *token.Store, options ...Option) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if tokens == nil {
		return nil, fmt.Errorf("client.New: token store is required")
	}
	c := &Client{
		baseURL:       base,
		http:          &http.Client{Timeout: defaultTimeout},
		tokens:        tokens,
		notifier:      LogNotifier{},
		userAgent:     defaultUserAgent,
		retryAttempts: 3,
		retryDelay:    time.Second,
	}
	for _, opt := range options {
		opt(c)
	}
	c.refresher = refresh.NewCoordinator(tokens, c.refreshAccessToken,
		refresh.WithTimeout(c.refreshTimeout),
		refresh.WithFailureHandler(c.sessionExpired),
	)
	if c.queue != nil {
		c.queue.SetExecutor(c)
	}
	return c, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("client: base url required")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("client: base url %q has no host", raw)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	return u, nil
}

// QueueStatus reports the offline queue state; the zero Status when offline
// deferral is disabled.
func (c *Client) QueueStatus() offline.Status {
	if c.queue == nil {
		return offline.Status{IsOnline: true}
	}
	return c.queue.Status()
}

func (c *Client) ClearQueue() {
	if c.queue != nil {
		c.queue.Clear()
	}
}

// Authenticated reports whether an access or refresh token is stored.
func (c *Client) Authenticated() bool {
	return c.tokens.GetAuthToken() != "" || c.tokens.GetRefreshToken() != ""
}
