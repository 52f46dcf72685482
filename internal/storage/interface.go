package storage

// KeyValueStore opens namespaced handles onto durable string storage.
type KeyValueStore interface {
	// Open returns a handle for namespace. Failures are io kind errors.
	Open(namespace string) (Handle, error)
}

// Handle reads and writes string values within one namespace. Writes are
// only durable after Commit.
type Handle interface {
	// GetString returns the value for key. found is false, with a nil error,
	// when the key has never been written.
	GetString(key string) (value string, found bool, err error)
	SetString(key, value string) error
	Commit() error
	Close() error
}

// Eraser is implemented by handles that can clear their whole namespace.
// The erase is staged like a write and applied on Commit.
type Eraser interface {
	EraseAll() error
}

// Backend is the durable layer under a staged handle.
type Backend interface {
	Get(namespace, key string) (string, bool, error)
	// Put writes all entries of one namespace atomically. When erase is
	// true, keys not in entries are removed first.
	Put(namespace string, entries map[string]string, erase bool) error
}

// Provider is a Backend with a lifecycle, one per storage technology.
type Provider interface {
	Backend

	// Init creates the underlying storage (directories, schema) if needed.
	Init() error
	// Load opens storage that Init has already created.
	Load() error
	Close() error

	// GetConfigPath returns a non-sensitive description of where data lives.
	GetConfigPath() string
}
