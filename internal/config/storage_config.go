package config

type StorageConfig interface {
	GetStorageBackend() string
	GetStorageNamespace() string
	GetStorageKey() string
}

type Storage struct {
	src *source
}

var _ StorageConfig = Storage{}

// GetStorageBackend is one of "file", "sqlite" or "memory".
func (s Storage) GetStorageBackend() string {
	return s.src.value("STORAGE_BACKEND", "file")
}

func (s Storage) GetStorageNamespace() string {
	return s.src.value("STORAGE_NAMESPACE", "agentdash_")
}

// GetStorageKey is a hex encoded 32 byte key. When set, persisted values are sealed.
func (s Storage) GetStorageKey() string {
	return s.src.value("STORAGE_KEY", "")
}
