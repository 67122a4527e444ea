package storage

import (
	"context"
	"fmt"
	"path/filepath"
)

// KV is a durable key/value store. A missing key is reported with ok == false.
type KV interface {
	// Get returns the value stored under key.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Close releases resources.
	Close() error
}

// StoreError reports a failed read or write of persisted state.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
	BackendFile   = "file"
)

// Open creates the KV backend named by backend at path. For the file backend
// path is a directory; for the others it is the database file.
func Open(backend, path string) (KV, error) {
	switch backend {
	case BackendSQLite, "":
		return NewSQLite(path)
	case BackendBolt:
		return NewBolt(path)
	case BackendFile:
		return NewFileKV(path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// DefaultPath returns the conventional location of a backend under dir.
func DefaultPath(backend, dir string) string {
	switch backend {
	case BackendBolt:
		return filepath.Join(dir, "guardian.bolt")
	case BackendFile:
		return filepath.Join(dir, "baselines")
	default:
		return filepath.Join(dir, "guardian.db")
	}
}
