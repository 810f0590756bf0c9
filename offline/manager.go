package offline

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-agent-client/connectivity"
	apperrors "github.com/jrsteele09/go-agent-client/internal/errors"
	"github.com/jrsteele09/go-agent-client/storage"
	"github.com/rs/zerolog/log"
)

const (
	// QueueKey is the storage key the serialised queue lives under.
	QueueKey          = "offline_queue"
	DefaultCapacity   = 100
	DefaultMaxRetries = 3
)

// DefaultBackoff is the wait after the nth consecutive failure of an entry,
// indexed by min(retryCount-1, len-1).
var DefaultBackoff = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
}

// Executor replays a queued request.
type Executor interface {
	Execute(ctx context.Context, req *QueuedRequest) error
}

type ExecutorFunc func(ctx context.Context, req *QueuedRequest) error

func (f ExecutorFunc) Execute(ctx context.Context, req *QueuedRequest) error {
	return f(ctx, req)
}

type DropReason string

const (
	DropRetriesExhausted DropReason = "retries_exhausted"
	DropEvicted          DropReason = "evicted"
)

// DropEvent is emitted when an entry leaves the queue without succeeding.
type DropEvent struct {
	Request QueuedRequest
	Reason  DropReason
	Err     error
}

type Status struct {
	IsOnline     bool `json:"isOnline"`
	IsProcessing bool `json:"isProcessing"`
	QueueLength  int  `json:"queueLength"`
	HighCount    int  `json:"highCount"`
	MediumCount  int  `json:"mediumCount"`
	LowCount     int  `json:"lowCount"`
}

// Manager is the durable, priority ordered offline queue. Entries are kept in
// one FIFO band per priority and drained high before medium before low; the
// head is chosen afresh after every item. All state sits behind mu and the
// full queue is persisted after every mutation.
type Manager struct {
	store        *storage.Store
	executor     Executor
	monitor      *connectivity.Monitor
	capacity     int
	maxRetries   int
	backoff      []time.Duration
	dropHandlers []func(DropEvent)

	mu         sync.Mutex
	bands      [3][]*QueuedRequest
	online     bool
	processing bool
	closed     bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type ManagerOption func(*Manager)

func WithCapacity(capacity int) ManagerOption {
	return func(m *Manager) {
		m.capacity = capacity
	}
}

func WithMaxRetries(maxRetries int) ManagerOption {
	return func(m *Manager) {
		m.maxRetries = maxRetries
	}
}

func WithBackoff(backoff []time.Duration) ManagerOption {
	return func(m *Manager) {
		m.backoff = append([]time.Duration(nil), backoff...)
	}
}

// WithMonitor ties the manager's online flag to a connectivity monitor once
// Start is called.
func WithMonitor(monitor *connectivity.Monitor) ManagerOption {
	return func(m *Manager) {
		m.monitor = monitor
	}
}

// WithDropHandler registers a handler for entries dropped without success.
func WithDropHandler(fn func(DropEvent)) ManagerOption {
	return func(m *Manager) {
		m.dropHandlers = append(m.dropHandlers, fn)
	}
}

// WithOnline sets the initial connectivity state. Defaults to online.
func WithOnline(online bool) ManagerOption {
	return func(m *Manager) {
		m.online = online
	}
}

// NewManager restores any persisted queue from store. executor may be nil and
// set later with SetExecutor; nothing drains until it is set.
func NewManager(store *storage.Store, executor Executor, options ...ManagerOption) *Manager {
	m := &Manager{
		store:      store,
		executor:   executor,
		capacity:   DefaultCapacity,
		maxRetries: DefaultMaxRetries,
		backoff:    DefaultBackoff,
		online:     true,
	}
	for _, opt := range options {
		opt(m)
	}
	if m.monitor != nil {
		m.online = m.monitor.Online()
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.load()
	return m
}

func (m *Manager) SetExecutor(executor Executor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executor = executor
	m.maybeDrainLocked()
}

// Start follows the connectivity monitor until ctx is cancelled or Close is
// called, and drains anything restored from storage.
func (m *Manager) Start(ctx context.Context) {
	if m.monitor != nil {
		transitions, unsubscribe := m.monitor.Subscribe()
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			defer unsubscribe()
			for {
				select {
				case <-ctx.Done():
					return
				case <-m.ctx.Done():
					return
				case online, ok := <-transitions:
					if !ok {
						return
					}
					m.SetOnline(online)
				}
			}
		}()
		m.SetOnline(m.monitor.Online())
	}

	m.mu.Lock()
	m.maybeDrainLocked()
	m.mu.Unlock()
}

// Close stops the drain loop and waits for it to exit. Queued entries stay persisted.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()
	m.wg.Wait()
}

// SetOnline records a connectivity transition. Going online always attempts a
// drain; going offline only flips the flag and lets in-flight replays fail.
func (m *Manager) SetOnline(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := m.online != online
	m.online = online
	if changed {
		log.Info().Bool("online", online).Int("queued", m.lengthLocked()).Msg("offline queue connectivity changed")
	}
	if online {
		m.maybeDrainLocked()
	}
}

// MarkUnreachable takes the queue offline after a call could not reach the
// backend. The monitor, when attached, is flipped too so that the next online
// transition triggers the replay.
func (m *Manager) MarkUnreachable() {
	m.SetOnline(false)
	if m.monitor != nil {
		m.monitor.SetOnline(false)
	}
}

// ShouldQueue reports whether a call should be deferred instead of sent.
func (m *Manager) ShouldQueue(method, path string) bool {
	if strings.EqualFold(method, http.MethodGet) || IsAuthPath(path) {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.online
}

// AddRequest enqueues a deferred call and returns its id.
func (m *Manager) AddRequest(in NewRequest) (string, error) {
	if in.Method == "" || in.URL == "" {
		return "", apperrors.Wrapf(apperrors.ErrInvalidRequest, "offline.AddRequest method and url required")
	}
	if in.Priority < PriorityLow || in.Priority > PriorityHigh {
		in.Priority = PriorityMedium
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", apperrors.ErrQueueClosed
	}

	req := &QueuedRequest{
		ID:         uuid.NewString(),
		URL:        in.URL,
		Method:     strings.ToUpper(in.Method),
		Data:       in.Data,
		Headers:    in.Headers,
		Timestamp:  storage.NowTimeFunc().UnixMilli(),
		MaxRetries: in.MaxRetries,
		Priority:   in.Priority,
	}
	if req.MaxRetries <= 0 {
		req.MaxRetries = m.maxRetries
	}

	if req.Priority == PriorityLow && m.capacity > 0 && m.lengthLocked() >= m.capacity {
		evicted, ok := m.evictOldestLowLocked()
		if !ok {
			return "", apperrors.Wrapf(apperrors.ErrQueueFull, "offline.AddRequest capacity %d", m.capacity)
		}
		m.emitLater(DropEvent{Request: evicted, Reason: DropEvicted})
	}

	m.bands[req.Priority] = append(m.bands[req.Priority], req)
	m.persistLocked()
	log.Debug().Str("id", req.ID).Str("method", req.Method).Str("url", req.URL).Str("priority", req.Priority.String()).Msg("request queued for offline replay")
	m.maybeDrainLocked()
	return req.ID, nil
}

// RemoveRequest drops an entry by id. It reports whether the entry was present.
func (m *Manager) RemoveRequest(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.removeLocked(id); !ok {
		return false
	}
	m.persistLocked()
	return true
}

// Clear empties the queue, used on sign-out.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bands = [3][]*QueuedRequest{}
	m.persistLocked()
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		IsOnline:     m.online,
		IsProcessing: m.processing,
		QueueLength:  m.lengthLocked(),
		HighCount:    len(m.bands[PriorityHigh]),
		MediumCount:  len(m.bands[PriorityMedium]),
		LowCount:     len(m.bands[PriorityLow]),
	}
}

// Requests returns a copy of the queue in drain order.
func (m *Manager) Requests() []QueuedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]QueuedRequest, 0, m.lengthLocked())
	for _, r := range m.orderedLocked() {
		out = append(out, r.clone())
	}
	return out
}

func (m *Manager) lengthLocked() int {
	return len(m.bands[PriorityHigh]) + len(m.bands[PriorityMedium]) + len(m.bands[PriorityLow])
}

func (m *Manager) orderedLocked() []*QueuedRequest {
	ordered := make([]*QueuedRequest, 0, m.lengthLocked())
	for p := PriorityHigh; p >= PriorityLow; p-- {
		ordered = append(ordered, m.bands[p]...)
	}
	return ordered
}

func (m *Manager) headLocked() *QueuedRequest {
	for p := PriorityHigh; p >= PriorityLow; p-- {
		if len(m.bands[p]) > 0 {
			return m.bands[p][0]
		}
	}
	return nil
}

func (m *Manager) findLocked(id string) (Priority, int, bool) {
	for p := PriorityHigh; p >= PriorityLow; p-- {
		for i, r := range m.bands[p] {
			if r.ID == id {
				return p, i, true
			}
		}
	}
	return 0, 0, false
}

func (m *Manager) removeLocked(id string) (*QueuedRequest, bool) {
	p, i, ok := m.findLocked(id)
	if !ok {
		return nil, false
	}
	r := m.bands[p][i]
	m.bands[p] = append(m.bands[p][:i:i], m.bands[p][i+1:]...)
	return r, true
}

// evictOldestLowLocked removes the low priority entry with the earliest timestamp.
func (m *Manager) evictOldestLowLocked() (QueuedRequest, bool) {
	low := m.bands[PriorityLow]
	if len(low) == 0 {
		return QueuedRequest{}, false
	}
	oldest := 0
	for i, r := range low {
		if r.Timestamp < low[oldest].Timestamp {
			oldest = i
		}
	}
	evicted := low[oldest]
	m.bands[PriorityLow] = append(low[:oldest:oldest], low[oldest+1:]...)
	log.Warn().Str("id", evicted.ID).Str("url", evicted.URL).Msg("offline queue full, evicted oldest low priority request")
	return evicted.clone(), true
}

func (m *Manager) persistLocked() {
	ordered := m.orderedLocked()
	list := make([]QueuedRequest, 0, len(ordered))
	for _, r := range ordered {
		list = append(list, *r)
	}
	if !m.store.SetItem(QueueKey, list, 0) && m.store.Available() {
		log.Warn().Int("queued", len(list)).Msg("failed to persist offline queue")
	}
}

func (m *Manager) load() {
	list, ok := storage.Get[[]QueuedRequest](m.store, QueueKey)
	if !ok {
		return
	}
	for i := range list {
		r := list[i]
		if r.Priority < PriorityLow || r.Priority > PriorityHigh {
			r.Priority = PriorityMedium
		}
		m.bands[r.Priority] = append(m.bands[r.Priority], &r)
	}
	if n := len(list); n > 0 {
		log.Info().Int("queued", n).Msg("restored offline queue")
	}
}

// emitLater delivers drop events outside the lock. Callers hold mu; Close
// waits for delivery to finish.
func (m *Manager) emitLater(ev DropEvent) {
	if len(m.dropHandlers) == 0 {
		return
	}
	handlers := m.dropHandlers
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for _, h := range handlers {
			h(ev)
		}
	}()
}
