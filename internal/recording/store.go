package recording

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Store persists recordings by request id.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put stores rec under rec.RequestID, replacing any previous value.
	Put(ctx context.Context, rec *Recording) error
	// Get returns the recording for requestID or ErrNotFound.
	Get(ctx context.Context, requestID string) (*Recording, error)
	// List returns every stored request id in lexical order.
	List(ctx context.Context) ([]string, error)
	// Delete removes the recording for requestID. Deleting a missing id is not an error.
	Delete(ctx context.Context, requestID string) error
	// Close releases backend resources.
	Close() error
}

// MemoryStore is an in-process Store. Values are kept encoded so callers
// never share slices with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Put(ctx context.Context, rec *Recording) error {
	data, err := encodeForStore(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[rec.RequestID] = data
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, requestID string) (*Recording, error) {
	s.mu.RLock()
	data, ok := s.data[requestID]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.Wrap(ErrNotFound, requestID)
	}
	return decodeFromStore(data)
}

func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Delete(ctx context.Context, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, requestID)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func encodeForStore(rec *Recording) ([]byte, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if rec.RequestID == "" {
		return nil, errors.Wrap(ErrInvalidArgs, "recording has no requestId")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, errors.Wrap(err, "encoding recording")
	}
	return data, nil
}

func decodeFromStore(data []byte) (*Recording, error) {
	var rec Recording
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrapf(ErrMalformedRecording, "decoding stored recording: %v", err)
	}
	return &rec, nil
}
