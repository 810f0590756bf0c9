package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jrsteele09/go-agent-client/storage"
	"github.com/jrsteele09/go-agent-client/storage/backendfake"
	"github.com/jrsteele09/go-agent-client/storage/filebackend"
	"github.com/jrsteele09/go-agent-client/storage/sealed"
	"github.com/jrsteele09/go-agent-client/storage/sqlitebackend"
)

const (
	backendFile   = "file"
	backendSQLite = "sqlite"
	backendMemory = "memory"
)

// openBackend builds the storage backend named by kind under dataDir. A
// non-empty hexKey wraps it so values are encrypted at rest.
func openBackend(kind, dataDir, hexKey string) (storage.Backend, func() error, error) {
	noop := func() error { return nil }

	var (
		backend storage.Backend
		closer  = noop
	)
	switch kind {
	case backendMemory:
		backend = backendfake.NewFakeBackend()
	case backendFile, "":
		if err := os.MkdirAll(dataDir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("create data folder: %w", err)
		}
		b, err := filebackend.Open(filepath.Join(dataDir, "agentctl.json"))
		if err != nil {
			return nil, nil, err
		}
		backend = b
	case backendSQLite:
		if err := os.MkdirAll(dataDir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("create data folder: %w", err)
		}
		b, err := sqlitebackend.Open(filepath.Join(dataDir, "agentctl.db"))
		if err != nil {
			return nil, nil, err
		}
		backend, closer = b, b.Close
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q (want %s, %s or %s)", kind, backendFile, backendSQLite, backendMemory)
	}

	if hexKey == "" {
		return backend, closer, nil
	}
	wrapped, err := sealed.NewFromHex(backend, hexKey)
	if err != nil {
		_ = closer()
		return nil, nil, err
	}
	return wrapped, closer, nil
}
