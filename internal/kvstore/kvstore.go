// Package kvstore provides the key-value backends the state store persists
// to. Every backend replaces a value as a whole: a failed Put leaves the
// previous value readable.
package kvstore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/iwvelando/split-payment-forecast/pkg/constants"
	"go.uber.org/zap"
)

// KeyValue is a blob store keyed by string.
type KeyValue interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend string
	Path    string
}

// Open creates the backend named by opts.Backend. An empty backend selects
// the in-memory store.
func Open(opts Options, logger *zap.Logger) (KeyValue, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	logger.Debug("opening key-value backend",
		zap.String("op", "kvstore.Open"),
		zap.String("backend", backend),
		zap.String("path", opts.Path),
	)

	switch backend {
	case "", constants.BackendMemory:
		return NewMemory(), nil
	case constants.BackendFile:
		path := opts.Path
		if path == "" {
			path = constants.DefaultFileStoreDir
		}
		return NewFile(path, logger)
	case constants.BackendSQLite:
		path := opts.Path
		if path == "" {
			path = constants.DefaultSQLitePath
		}
		return NewSQLite(path, logger)
	}
	return nil, fmt.Errorf("unknown persistence backend %q", opts.Backend)
}

// Memory keeps values in process memory.
type Memory struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

// Get returns a copy of the stored value.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Put stores a copy of value.
func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = append([]byte(nil), value...)
	return nil
}

// Delete removes key. Missing keys are not an error.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}
