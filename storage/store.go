package storage

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-agent-client/internal/errors"
	"github.com/rs/zerolog/log"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

const (
	DefaultNamespace = "agentdash_"
	probeKey         = "__storage_test__"
)

// StoredEntry is the envelope persisted for every value. Callers of the Store
// only ever see Value.
type StoredEntry struct {
	Value     json.RawMessage `json:"value"`
	Timestamp int64           `json:"timestamp"`
	ExpiresAt *int64          `json:"expiresAt,omitempty"`
}

func (e StoredEntry) expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.UnixMilli() >= *e.ExpiresAt
}

// Store is a best-effort, namespaced key-value store with lazy expiry.
// When the backend fails the availability probe every operation becomes a
// no-op that reports failure; nothing is returned as an error.
type Store struct {
	backend   Backend
	namespace string
	available bool
	mu        sync.Mutex
}

type StoreOption func(*Store)

// WithNamespace sets the key prefix owned by this store.
func WithNamespace(namespace string) StoreOption {
	return func(s *Store) {
		s.namespace = namespace
	}
}

// NewStore wraps backend and probes it with a throwaway write.
func NewStore(backend Backend, options ...StoreOption) *Store {
	s := &Store{
		backend:   backend,
		namespace: DefaultNamespace,
	}
	for _, opt := range options {
		opt(s)
	}
	s.available = s.probe()
	if !s.available {
		log.Warn().Str("namespace", s.namespace).Msg("persistent storage unavailable, running without persistence")
	}
	return s
}

func (s *Store) probe() bool {
	if s.backend == nil {
		return false
	}
	key := s.namespace + probeKey
	if err := s.backend.Set(key, []byte("1")); err != nil {
		return false
	}
	if err := s.backend.Delete(key); err != nil {
		return false
	}
	return true
}

// Available reports whether the backing medium accepted the probe write.
func (s *Store) Available() bool {
	return s != nil && s.available
}

// SetItem stores value under key. A ttl greater than zero sets an expiry.
func (s *Store) SetItem(key string, value any, ttl time.Duration) bool {
	if !s.Available() {
		return false
	}
	raw, err := json.Marshal(value)
	if err != nil {
		log.Err(err).Str("key", key).Msg("storage: failed to encode value")
		return false
	}
	now := NowTimeFunc()
	entry := StoredEntry{Value: raw, Timestamp: now.UnixMilli()}
	if ttl > 0 {
		expiresAt := now.Add(ttl).UnixMilli()
		entry.ExpiresAt = &expiresAt
	}
	data, err := json.Marshal(entry)
	if err != nil {
		log.Err(err).Str("key", key).Msg("storage: failed to encode entry")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Set(s.namespace+key, data); err != nil {
		log.Err(err).Str("key", key).Msg("storage: write failed")
		return false
	}
	return true
}

// GetItem decodes the value stored under key into out. It reports false for
// missing, expired or undecodable entries; expired entries are removed.
func (s *Store) GetItem(key string, out any) bool {
	if !s.Available() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.readEntry(s.namespace + key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(entry.Value, out); err != nil {
		log.Err(err).Str("key", key).Msg("storage: failed to decode value")
		return false
	}
	return true
}

// Get is the typed form of GetItem.
func Get[T any](s *Store, key string) (T, bool) {
	var v T
	if !s.GetItem(key, &v) {
		return *new(T), false
	}
	return v, true
}

// readEntry loads and expiry-checks a fully qualified key. Callers hold s.mu.
func (s *Store) readEntry(fullKey string) (StoredEntry, bool) {
	data, err := s.backend.Get(fullKey)
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrNotFound) {
			log.Err(err).Str("key", fullKey).Msg("storage: read failed")
		}
		return StoredEntry{}, false
	}
	var entry StoredEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		log.Err(err).Str("key", fullKey).Msg("storage: corrupt entry")
		return StoredEntry{}, false
	}
	if entry.expired(NowTimeFunc()) {
		if err := s.backend.Delete(fullKey); err != nil {
			log.Err(err).Str("key", fullKey).Msg("storage: failed to remove expired entry")
		}
		return StoredEntry{}, false
	}
	return entry, true
}

func (s *Store) RemoveItem(key string) bool {
	if !s.Available() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Delete(s.namespace + key); err != nil {
		log.Err(err).Str("key", key).Msg("storage: delete failed")
		return false
	}
	return true
}

func (s *Store) HasItem(key string) bool {
	if !s.Available() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.readEntry(s.namespace + key)
	return ok
}

// ClearAll removes every key under the namespace and nothing else.
func (s *Store) ClearAll() bool {
	if !s.Available() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	keys, err := s.backend.Keys(s.namespace)
	if err != nil {
		log.Err(err).Msg("storage: failed to list keys")
		return false
	}
	ok := true
	for _, k := range keys {
		if err := s.backend.Delete(k); err != nil {
			log.Err(err).Str("key", k).Msg("storage: delete failed")
			ok = false
		}
	}
	return ok
}

// StorageInfo returns the persisted size in bytes of every live key, keyed
// without the namespace prefix. Expired entries are purged first.
func (s *Store) StorageInfo() (map[string]int, bool) {
	if !s.Available() {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	keys, err := s.backend.Keys(s.namespace)
	if err != nil {
		log.Err(err).Msg("storage: failed to list keys")
		return nil, false
	}
	info := make(map[string]int, len(keys))
	for _, k := range keys {
		if _, ok := s.readEntry(k); !ok {
			continue
		}
		data, err := s.backend.Get(k)
		if err != nil {
			continue
		}
		info[strings.TrimPrefix(k, s.namespace)] = len(k) + len(data)
	}
	return info, true
}
