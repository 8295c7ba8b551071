// Package recording exposes the recording model, sources and stores.
package recording

import (
	"context"

	internalrecording "github.com/SmitUplenchwar2687/sockreplay/internal/recording"
)

const (
	TypeSocketIO   = internalrecording.TypeSocketIO
	ClientToServer = internalrecording.ClientToServer
	ServerToClient = internalrecording.ServerToClient
	BackendMemory  = internalrecording.BackendMemory
	BackendRedis   = internalrecording.BackendRedis
)

var (
	ErrMalformedRecording = internalrecording.ErrMalformedRecording
	ErrInvalidArgs        = internalrecording.ErrInvalidArgs
	ErrNotFound           = internalrecording.ErrNotFound
)

type (
	Direction   = internalrecording.Direction
	Message     = internalrecording.Message
	Reject      = internalrecording.Reject
	Connection  = internalrecording.Connection
	Recording   = internalrecording.Recording
	Source      = internalrecording.Source
	Store       = internalrecording.Store
	RedisConfig = internalrecording.RedisConfig
	MemoryStore = internalrecording.MemoryStore
	RedisStore  = internalrecording.RedisStore
	FileSource  = internalrecording.FileSource
	DataSource  = internalrecording.DataSource
	StoreSource = internalrecording.StoreSource
)

// NewFileSource returns a Source reading a recording file.
func NewFileSource(path string) (*FileSource, error) {
	return internalrecording.NewFileSource(path)
}

// NewDataSource returns a Source over an in-memory recording value.
func NewDataSource(data any) (*DataSource, error) {
	return internalrecording.NewDataSource(data)
}

// NewStoreSource returns a Source reading requestID from store.
func NewStoreSource(store Store, requestID string) (*StoreSource, error) {
	return internalrecording.NewStoreSource(store, requestID)
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return internalrecording.NewMemoryStore()
}

// NewRedisStore connects a Redis-backed store.
func NewRedisStore(ctx context.Context, cfg *RedisConfig) (*RedisStore, error) {
	return internalrecording.NewRedisStore(ctx, cfg)
}

// WriteFile encodes rec to path; the extension picks the format.
func WriteFile(path string, rec *Recording) error {
	return internalrecording.WriteFile(path, rec)
}
