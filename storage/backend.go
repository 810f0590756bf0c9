package storage

// Backend is the persistence port the Store is built on. Implementations only
// move bytes; namespacing, expiry and (de)serialisation stay in the Store.
// Get returns errors.ErrNotFound when the key is absent.
type Backend interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
	Keys(prefix string) ([]string, error)
}
