package client_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-agent-client/client"
	"github.com/jrsteele09/go-agent-client/connectivity"
	apperrors "github.com/jrsteele09/go-agent-client/internal/errors"
	"github.com/jrsteele09/go-agent-client/offline"
	"github.com/jrsteele09/go-agent-client/storage"
	"github.com/jrsteele09/go-agent-client/storage/backendfake"
	"github.com/jrsteele09/go-agent-client/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI is a backend under /api that records every call it receives.
type fakeAPI struct {
	mu     sync.Mutex
	calls  []string
	mux    *http.ServeMux
	server *httptest.Server
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{mux: http.NewServeMux()}
	api.server = httptest.NewServer(http.StripPrefix("/api", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		api.calls = append(api.calls, r.Method+" "+r.URL.Path)
		api.mu.Unlock()
		api.mux.ServeHTTP(w, r)
	})))
	t.Cleanup(api.server.Close)
	return api
}

func (a *fakeAPI) url() string {
	return a.server.URL + "/api"
}

func (a *fakeAPI) handle(pattern string, fn http.HandlerFunc) {
	a.mux.HandleFunc(pattern, fn)
}

func (a *fakeAPI) count(call string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.calls {
		if c == call {
			n++
		}
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type notes struct {
	mu   sync.Mutex
	list []client.Notification
}

func (n *notes) Notify(x client.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.list = append(n.list, x)
}

func (n *notes) all() []client.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]client.Notification(nil), n.list...)
}

// failingTransport refuses every dial until reachable is set, then answers
// with an empty envelope.
type failingTransport struct {
	calls     atomic.Int32
	reachable atomic.Bool
}

func (f *failingTransport) Do(req *http.Request) (*http.Response, error) {
	f.calls.Add(1)
	if !f.reachable.Load() {
		return nil, &url.Error{Op: req.Method, URL: req.URL.String(), Err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}}
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(`{"data":null}`)),
		Request:    req,
	}, nil
}

type fixture struct {
	client *client.Client
	tokens *token.Store
	queue  *offline.Manager
	notes  *notes
}

func newFixture(t *testing.T, baseURL string, options ...client.Option) *fixture {
	t.Helper()
	kv := storage.NewStore(backendfake.NewFakeBackend())
	f := &fixture{
		tokens: token.NewStore(kv),
		queue:  offline.NewManager(kv, nil, offline.WithBackoff([]time.Duration{time.Millisecond})),
		notes:  &notes{},
	}
	t.Cleanup(f.queue.Close)
	options = append([]client.Option{client.WithQueue(f.queue), client.WithNotifier(f.notes)}, options...)
	c, err := client.New(baseURL, f.tokens, options...)
	require.NoError(t, err)
	f.client = c
	return f
}

type agent struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func TestClient_GetUnwrapsEnvelope(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("GET /agents/5", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		assert.Equal(t, "full", r.URL.Query().Get("view"))
		writeJSON(w, http.StatusOK, map[string]any{"data": agent{ID: "5", Name: "scout"}})
	})
	f := newFixture(t, api.url())
	f.tokens.SetAuthToken("access-1", time.Hour)

	var got agent
	err := f.client.Get(context.Background(), "/agents/5", &got, client.WithQuery(map[string][]string{"view": {"full"}}))
	require.NoError(t, err)
	require.Equal(t, agent{ID: "5", Name: "scout"}, got)
	require.Empty(t, f.notes.all())
}

func TestClient_PostReturnsMessage(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("POST /agents", func(w http.ResponseWriter, r *http.Request) {
		var in agent
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		in.ID = "9"
		writeJSON(w, http.StatusCreated, map[string]any{"data": in, "message": "agent created"})
	})
	f := newFixture(t, api.url())

	var got agent
	res, err := f.client.Post(context.Background(), "/agents", agent{Name: "scout"}, &got)
	require.NoError(t, err)
	require.False(t, res.Deferred)
	require.Equal(t, "agent created", res.Message)
	require.Equal(t, "9", got.ID)
}

func TestClient_ClassifiesFailures(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("POST /agents", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": 400, "message": "invalid agent", "details": []any{"name is required", 3}})
	})
	api.handle("GET /agents/404", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"status": 404, "message": "agent not found"})
	})
	api.handle("GET /boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	api.handle("GET /teapot", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	f := newFixture(t, api.url())
	ctx := context.Background()

	_, err := f.client.Post(ctx, "/agents", agent{}, nil)
	var appErr *client.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, client.KindValidation, appErr.Kind)
	require.Equal(t, "invalid agent", appErr.Message)
	require.Equal(t, []string{"name is required", "3"}, appErr.Details)

	err = f.client.Get(ctx, "/agents/404", nil)
	require.True(t, client.IsKind(err, client.KindNotFound))

	err = f.client.Get(ctx, "/boom", nil)
	require.True(t, client.IsKind(err, client.KindServer))
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "Bad Gateway", appErr.Message)

	err = f.client.Get(ctx, "/teapot", nil)
	require.True(t, client.IsKind(err, client.KindApp))

	require.Len(t, f.notes.all(), 4)
	require.Equal(t, client.LevelWarning, f.notes.all()[0].Level)
	require.Equal(t, client.LevelError, f.notes.all()[2].Level)
}

// Offline POST is deferred with medium priority and replayed exactly once
// when connectivity returns.
func TestClient_OfflinePostIsDeferredAndReplayed(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("POST /sources/text", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"title":"notes","content":"hello"}`, string(body))
		writeJSON(w, http.StatusCreated, map[string]any{"data": map[string]string{"id": "s1"}})
	})
	f := newFixture(t, api.url())
	f.queue.SetOnline(false)

	res, err := f.client.Post(context.Background(), "/sources/text", map[string]string{"title": "notes", "content": "hello"}, nil)
	require.NoError(t, err)
	require.True(t, res.Deferred)
	require.NotEmpty(t, res.QueueID)
	require.Equal(t, offline.Status{QueueLength: 1, MediumCount: 1}, f.queue.Status())
	require.Zero(t, api.count("POST /sources/text"))
	require.Equal(t, []client.Notification{{Level: client.LevelInfo, Message: "queued, will retry when back online"}}, f.notes.all())

	f.queue.SetOnline(true)
	require.Eventually(t, func() bool {
		return f.queue.Status().QueueLength == 0 && !f.queue.Status().IsProcessing
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, api.count("POST /sources/text"))
}

func TestClient_OfflineDeleteIsHighPriority(t *testing.T) {
	f := newFixture(t, "http://example.invalid/api")
	f.queue.SetOnline(false)

	_, err := f.client.Put(context.Background(), "/agents/1", agent{Name: "a"}, nil)
	require.NoError(t, err)
	res, err := f.client.Delete(context.Background(), "/agents/2", nil, client.WithQuery(map[string][]string{"hard": {"true"}}))
	require.NoError(t, err)
	require.True(t, res.Deferred)

	reqs := f.queue.Requests()
	require.Len(t, reqs, 2)
	require.Equal(t, "/agents/2?hard=true", reqs[0].URL)
	require.Equal(t, offline.PriorityHigh, reqs[0].Priority)
	require.Equal(t, "/agents/1", reqs[1].URL)
}

func TestClient_NetworkFailureDefersMutationsOnly(t *testing.T) {
	transport := &failingTransport{}
	f := newFixture(t, "http://example.invalid/api", client.WithTransport(transport))
	ctx := context.Background()

	err := f.client.Get(ctx, "/agents", nil)
	require.True(t, client.IsKind(err, client.KindNetwork))
	require.Zero(t, f.queue.Status().QueueLength)

	f.queue.SetOnline(false)
	_, err = f.client.Post(ctx, "/agents", agent{Name: "a"}, nil)
	require.NoError(t, err)
	require.Equal(t, int32(1), transport.calls.Load(), "offline mutation must not be sent")

	_, err = f.client.Post(ctx, "/auth/login", map[string]string{}, nil)
	require.True(t, client.IsKind(err, client.KindNetwork), "auth calls are never queued")
	require.Equal(t, 1, f.queue.Status().QueueLength)
}

func TestClient_UnreachableBackendQueuesUntilReconnect(t *testing.T) {
	transport := &failingTransport{}
	monitor := connectivity.NewMonitor(true)
	var drops atomic.Int32
	kv := storage.NewStore(backendfake.NewFakeBackend())
	queue := offline.NewManager(kv, nil,
		offline.WithMonitor(monitor),
		offline.WithBackoff([]time.Duration{time.Millisecond}),
		offline.WithDropHandler(func(offline.DropEvent) { drops.Add(1) }),
	)
	t.Cleanup(queue.Close)
	queue.Start(context.Background())
	notifier := &notes{}
	c, err := client.New("http://example.invalid/api", token.NewStore(kv), client.WithTransport(transport),
		client.WithQueue(queue), client.WithNotifier(notifier))
	require.NoError(t, err)

	res, err := c.Patch(context.Background(), "/agents/3", agent{Name: "b"}, nil)
	require.NoError(t, err)
	require.True(t, res.Deferred)
	require.False(t, queue.Status().IsOnline)
	require.False(t, monitor.Online())

	// Nothing is replayed, and no retry is spent, until the backend is back.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(1), transport.calls.Load())
	reqs := queue.Requests()
	require.Len(t, reqs, 1)
	require.Zero(t, reqs[0].RetryCount)
	require.Len(t, notifier.all(), 1)

	transport.reachable.Store(true)
	monitor.SetOnline(true)
	require.Eventually(t, func() bool { return queue.Status().QueueLength == 0 }, time.Second, 5*time.Millisecond)
	require.Equal(t, int32(2), transport.calls.Load())
	require.Zero(t, drops.Load())
}

func TestClient_TimedOutMutationIsNotQueued(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("POST /agents", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		writeJSON(w, http.StatusCreated, map[string]any{"data": agent{ID: "1"}})
	})
	f := newFixture(t, api.url(), client.WithTransport(&http.Client{Timeout: 50 * time.Millisecond}))

	res, err := f.client.Post(context.Background(), "/agents", agent{Name: "a"}, nil)
	require.True(t, client.IsKind(err, client.KindNetwork))
	require.False(t, res.Deferred)
	require.Zero(t, f.queue.Status().QueueLength)
	require.True(t, f.queue.Status().IsOnline)

	// The server may have acted on the call, so it must not run again.
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 1, api.count("POST /agents"))
}

// Two concurrent calls hitting 401 share one refresh and both replay.
func TestClient_ConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	api := newFakeAPI(t)
	var stale sync.WaitGroup
	stale.Add(2)
	api.handle("GET /agents/5", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			stale.Done()
			stale.Wait()
			writeJSON(w, http.StatusUnauthorized, map[string]any{"status": 401, "message": "token expired"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": agent{ID: "5"}})
	})
	api.handle("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "refresh-1", in["refreshToken"])
		time.Sleep(100 * time.Millisecond)
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]string{"token": "fresh"}})
	})
	f := newFixture(t, api.url())
	f.tokens.SetAuthToken("stale", time.Hour)
	f.tokens.SetRefreshToken("refresh-1")

	var wg sync.WaitGroup
	results := make([]agent, 2)
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.client.Get(context.Background(), "/agents/5", &results[i])
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Equal(t, "5", results[0].ID)
	require.Equal(t, "5", results[1].ID)
	require.Equal(t, 1, api.count("POST /auth/refresh"))
	require.Equal(t, 4, api.count("GET /agents/5"))
	require.Equal(t, "fresh", f.tokens.GetAuthToken())
	require.Empty(t, f.notes.all())
}

func TestClient_RefreshFailureExpiresSession(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("GET /agents", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"status": 401, "message": "token expired"})
	})
	api.handle("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"status": 401, "message": "refresh token revoked"})
	})
	var expired atomic.Int32
	f := newFixture(t, api.url(), client.WithSessionExpiredHandler(func() { expired.Add(1) }))
	f.tokens.SetAuthToken("stale", time.Hour)
	f.tokens.SetRefreshToken("refresh-1")
	f.queue.SetOnline(false)
	_, err := f.client.Post(context.Background(), "/sources/text", map[string]string{"content": "x"}, nil)
	require.NoError(t, err)

	err = f.client.Get(context.Background(), "/agents", nil)
	require.True(t, client.IsKind(err, client.KindAuthentication))
	require.ErrorIs(t, err, apperrors.ErrSessionExpired)

	require.Eventually(t, func() bool { return expired.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Empty(t, f.tokens.GetAuthToken())
	require.Empty(t, f.tokens.GetRefreshToken())
	require.Zero(t, f.queue.Status().QueueLength)
	require.Equal(t, 1, api.count("GET /agents"), "no replay after a failed refresh")

	var warnings int
	for _, n := range f.notes.all() {
		if n.Level != client.LevelInfo {
			warnings++
			require.Equal(t, "session expired, please sign in again", n.Message)
		}
	}
	require.Equal(t, 1, warnings)
}

func TestClient_SecondUnauthorizedIsNotRefreshedAgain(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("GET /agents", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"status": 401, "message": "forbidden for this token"})
	})
	api.handle("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]string{"token": "fresh"}})
	})
	f := newFixture(t, api.url())
	f.tokens.SetRefreshToken("refresh-1")

	err := f.client.Get(context.Background(), "/agents", nil)
	require.True(t, client.IsKind(err, client.KindAuthentication))
	require.NotErrorIs(t, err, apperrors.ErrSessionExpired)
	require.Equal(t, 2, api.count("GET /agents"))
	require.Equal(t, 1, api.count("POST /auth/refresh"))
}

func TestClient_SignInAndSignOut(t *testing.T) {
	api := newFakeAPI(t)
	var loggedOut atomic.Value
	api.handle("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		var in map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		if in["password"] != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"status": 401, "message": "invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"token": "access-1", "refreshToken": "refresh-1", "user": map[string]string{"email": in["email"]}}})
	})
	api.handle("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		loggedOut.Store(in["refreshToken"])
		writeJSON(w, http.StatusOK, map[string]any{"message": "signed out"})
	})
	f := newFixture(t, api.url())
	ctx := context.Background()

	_, err := f.client.SignIn(ctx, "ada@example.com", "wrong")
	require.True(t, client.IsKind(err, client.KindAuthentication))
	require.Zero(t, api.count("POST /auth/refresh"), "login failures never trigger a refresh")
	require.False(t, f.client.Authenticated())

	session, err := f.client.SignIn(ctx, "ada@example.com", "secret")
	require.NoError(t, err)
	require.Equal(t, "access-1", session.Token)
	require.JSONEq(t, `{"email":"ada@example.com"}`, string(session.User))
	require.Equal(t, "access-1", f.tokens.GetAuthToken())
	require.Equal(t, "refresh-1", f.tokens.GetRefreshToken())
	require.True(t, f.client.Authenticated())

	f.queue.SetOnline(false)
	_, err = f.client.Post(ctx, "/sources/text", map[string]string{"content": "x"}, nil)
	require.NoError(t, err)

	f.client.SignOut(ctx)
	require.Equal(t, "refresh-1", loggedOut.Load())
	require.False(t, f.client.Authenticated())
	require.Zero(t, f.queue.Status().QueueLength)
}

func TestClient_SignInRequiresCredentials(t *testing.T) {
	f := newFixture(t, "http://example.invalid/api", client.WithTransport(&failingTransport{}))
	_, err := f.client.SignIn(context.Background(), "", "")
	require.True(t, client.IsKind(err, client.KindValidation))
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestClient_RequestWithRetry(t *testing.T) {
	api := newFakeAPI(t)
	var attempts atomic.Int32
	api.handle("GET /agents", func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": 503, "message": "warming up"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": []agent{{ID: "1"}}})
	})
	api.handle("POST /agents", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": 400, "message": "invalid"})
	})
	f := newFixture(t, api.url())
	ctx := context.Background()

	var got []agent
	err := f.client.RequestWithRetry(ctx, 3, time.Millisecond, func(ctx context.Context) error {
		return f.client.Get(ctx, "/agents", &got)
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, int32(3), attempts.Load())
	require.Empty(t, f.notes.all(), "intermediate failures are not announced")

	calls := 0
	err = f.client.RequestWithRetry(ctx, 3, time.Millisecond, func(ctx context.Context) error {
		calls++
		_, err := f.client.Post(ctx, "/agents", agent{}, nil)
		return err
	})
	require.True(t, client.IsKind(err, client.KindValidation))
	require.Equal(t, 1, calls, "validation errors are not retried")
	require.Len(t, f.notes.all(), 1)
}

func TestClient_UploadAndDownload(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("POST /sources/upload", func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))
		file, header, err := r.FormFile("file")
		assert.NoError(t, err)
		defer file.Close()
		content, _ := io.ReadAll(file)
		writeJSON(w, http.StatusCreated, map[string]any{"data": map[string]any{
			"name": header.Filename, "size": len(content), "title": r.FormValue("title"),
		}})
	})
	api.handle("GET /sources/s1/download", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("raw file body"))
	})
	f := newFixture(t, api.url())
	f.queue.SetOnline(false)
	ctx := context.Background()

	var uploaded struct {
		Name  string `json:"name"`
		Size  int    `json:"size"`
		Title string `json:"title"`
	}
	err := f.client.UploadFile(ctx, "/sources/upload", client.Upload{
		Filename: "notes.txt",
		Content:  strings.NewReader("hello world"),
		Fields:   map[string]string{"title": "Notes"},
	}, &uploaded)
	require.NoError(t, err, "uploads bypass the offline queue")
	require.Equal(t, "notes.txt", uploaded.Name)
	require.Equal(t, 11, uploaded.Size)
	require.Equal(t, "Notes", uploaded.Title)

	var buf bytes.Buffer
	require.NoError(t, f.client.DownloadFile(ctx, "/sources/s1/download", &buf))
	require.Equal(t, "raw file body", buf.String())
}

func TestNew_ValidatesBaseURL(t *testing.T) {
	kv := storage.NewStore(backendfake.NewFakeBackend())
	_, err := client.New("", token.NewStore(kv))
	require.Error(t, err)
	_, err = client.New("localhost:8080/api", token.NewStore(kv))
	require.NoError(t, err)
	_, err = client.New("http://localhost/api", nil)
	require.Error(t, err)
}
