package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-agent-client/client"
	"github.com/jrsteele09/go-agent-client/connectivity"
	"github.com/jrsteele09/go-agent-client/internal/config"
	"github.com/jrsteele09/go-agent-client/offline"
	"github.com/jrsteele09/go-agent-client/resources"
	"github.com/jrsteele09/go-agent-client/storage"
	"github.com/jrsteele09/go-agent-client/token"
	"github.com/rs/zerolog/log"
)

// app is one CLI invocation: storage, connectivity, the offline queue and
// the dispatcher, wired together.
type app struct {
	cfg     config.Config
	opts    options
	stderr  io.Writer
	kv      *storage.Store
	monitor *connectivity.Monitor
	prober  *connectivity.Prober
	queue   *offline.Manager
	client  *client.Client
	svc     *resources.Service
	cancel  context.CancelFunc
	probing chan struct{}
	closer  func() error
}

func newApp(ctx context.Context, cfg config.Config, opts options, stderr io.Writer) (*app, error) {
	baseURL := strings.TrimRight(firstNonEmpty(opts.baseURL, cfg.GetBaseURL()), "/")
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	backend, closer, err := openBackend(
		firstNonEmpty(opts.storage, cfg.GetStorageBackend()),
		firstNonEmpty(opts.dataDir, cfg.GetDataFolder()),
		cfg.GetStorageKey(),
	)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	a := &app{cfg: cfg, opts: opts, stderr: stderr, cancel: cancel, closer: closer, probing: make(chan struct{})}
	a.kv = storage.NewStore(backend, storage.WithNamespace(cfg.GetStorageNamespace()))
	if !a.kv.Available() {
		fmt.Fprintln(stderr, "warning: storage unavailable, nothing will persist")
	}

	a.monitor = connectivity.NewMonitor(false)
	a.prober = connectivity.NewProber(a.monitor, baseURL+"/health", cfg.GetProbeInterval())
	if opts.offline {
		close(a.probing)
	} else {
		a.prober.Check(runCtx)
		go func() {
			defer close(a.probing)
			a.prober.Run(runCtx)
		}()
	}

	a.queue = offline.NewManager(a.kv, nil,
		offline.WithMonitor(a.monitor),
		offline.WithCapacity(cfg.GetQueueCapacity()),
		offline.WithMaxRetries(cfg.GetQueueMaxRetries()),
		offline.WithBackoff(cfg.GetQueueBackoff()),
		offline.WithDropHandler(func(ev offline.DropEvent) {
			fmt.Fprintf(stderr, "dropped %s %s (%s)\n", ev.Request.Method, ev.Request.URL, ev.Reason)
		}),
	)

	a.client, err = client.New(baseURL, token.NewStore(a.kv),
		client.WithQueue(a.queue),
		client.WithTransport(&http.Client{Timeout: cfg.GetRequestTimeout()}),
		client.WithRefreshTimeout(cfg.GetRefreshTimeout()),
		client.WithRetry(cfg.GetRetryAttempts(), cfg.GetRetryDelay()),
		client.WithDebug(opts.debug || cfg.GetDebug()),
		client.WithNotifier(client.NotifierFunc(func(n client.Notification) {
			if n.Level == client.LevelInfo {
				return
			}
			fmt.Fprintf(stderr, "%s: %s\n", n.Level, n.Message)
		})),
		client.WithSessionExpiredHandler(func() {
			fmt.Fprintln(stderr, "run `agentctl login` to sign in again")
		}),
	)
	if err != nil {
		a.queue.Close()
		cancel()
		<-a.probing
		_ = closer()
		return nil, err
	}
	a.svc = resources.New(a.client)
	a.queue.Start(runCtx)
	return a, nil
}

// close lets a running replay finish, bounded by the wait option, then
// stops the queue and releases storage.
func (a *app) close() {
	a.waitIdle(a.opts.wait)
	a.cancel()
	<-a.probing
	a.queue.Close()
	if err := a.closer(); err != nil {
		log.Err(err).Msg("failed to close storage")
	}
}

func (a *app) waitIdle(limit time.Duration) {
	deadline := time.Now().Add(limit)
	for a.queue.Status().IsProcessing && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
