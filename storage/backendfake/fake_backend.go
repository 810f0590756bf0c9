package backendfake

import (
	"errors"
	"sort"
	"strings"
	"sync"

	apperrors "github.com/jrsteele09/go-agent-client/internal/errors"
	"github.com/jrsteele09/go-agent-client/storage"
)

var _ storage.Backend = (*FakeBackend)(nil)

// ErrQuotaExceeded is returned by writes while the fake is set to fail.
var ErrQuotaExceeded = errors.New("quota exceeded")

type FakeBackend struct {
	values     map[string][]byte
	failWrites bool
	lock       sync.RWMutex
}

func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		values: make(map[string][]byte),
	}
}

// FailWrites makes every subsequent Set return ErrQuotaExceeded.
func (b *FakeBackend) FailWrites(fail bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.failWrites = fail
}

func (b *FakeBackend) Get(key string) ([]byte, error) {
	b.lock.RLock()
	defer b.lock.RUnlock()
	v, ok := b.values[key]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (b *FakeBackend) Set(key string, value []byte) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.failWrites {
		return ErrQuotaExceeded
	}
	b.values[key] = append([]byte(nil), value...)
	return nil
}

func (b *FakeBackend) Delete(key string) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	delete(b.values, key)
	return nil
}

func (b *FakeBackend) Keys(prefix string) ([]string, error) {
	b.lock.RLock()
	defer b.lock.RUnlock()
	keys := make([]string, 0)
	for k := range b.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Raw returns the stored bytes for a fully qualified key, for assertions.
func (b *FakeBackend) Raw(key string) ([]byte, bool) {
	b.lock.RLock()
	defer b.lock.RUnlock()
	v, ok := b.values[key]
	return v, ok
}
