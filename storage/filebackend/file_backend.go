// Package filebackend persists the key-value store as a single JSON document.
// Every write rewrites the file through a temporary file and rename so a crash
// never leaves a half-written store behind.
package filebackend

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	apperrors "github.com/jrsteele09/go-agent-client/internal/errors"
	"github.com/jrsteele09/go-agent-client/storage"
)

var _ storage.Backend = (*Backend)(nil)

type Backend struct {
	path   string
	values map[string][]byte
	mu     sync.RWMutex
}

// Open loads path, creating its directory if needed. A missing file is an
// empty store.
func Open(path string) (*Backend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("filebackend.Open mkdir: %w", err)
	}
	b := &Backend{path: path, values: make(map[string][]byte)}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return b, nil
		}
		return nil, fmt.Errorf("filebackend.Open read: %w", err)
	}
	if len(data) == 0 {
		return b, nil
	}
	if err := json.Unmarshal(data, &b.values); err != nil {
		return nil, fmt.Errorf("filebackend.Open decode %s: %w", path, err)
	}
	return b, nil
}

func (b *Backend) Get(key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[key]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (b *Backend) Set(key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev, had := b.values[key]
	b.values[key] = append([]byte(nil), value...)
	if err := b.flush(); err != nil {
		if had {
			b.values[key] = prev
		} else {
			delete(b.values, key)
		}
		return err
	}
	return nil
}

func (b *Backend) Delete(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.values[key]; !ok {
		return nil
	}
	delete(b.values, key)
	return b.flush()
}

func (b *Backend) Keys(prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.values))
	for k := range b.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// flush writes the whole map. Callers hold b.mu.
func (b *Backend) flush() error {
	data, err := json.Marshal(b.values)
	if err != nil {
		return fmt.Errorf("filebackend: encode: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(b.path), ".store-*.tmp")
	if err != nil {
		return fmt.Errorf("filebackend: create temp: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("filebackend: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("filebackend: close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.path); err != nil {
		return fmt.Errorf("filebackend: rename: %w", err)
	}
	return nil
}
