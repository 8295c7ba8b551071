package recording

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

// Source loads a single recording.
type Source interface {
	Load(ctx context.Context) (*Recording, error)
}

// DataSource builds a recording from an in-memory value: a Recording, raw
// JSON bytes, or any JSON-shaped value (including a mixed array, in which
// case the first Socket.IO entry is used).
type DataSource struct {
	data any
}

// NewDataSource returns a Source over data. data must not be nil.
func NewDataSource(data any) (*DataSource, error) {
	if data == nil {
		return nil, errors.Wrap(ErrInvalidArgs, "data is required")
	}
	return &DataSource{data: data}, nil
}

// Load validates and returns the recording held by the source.
func (s *DataSource) Load(ctx context.Context) (*Recording, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch v := s.data.(type) {
	case *Recording:
		if err := v.Validate(); err != nil {
			return nil, err
		}
		out := *v
		return &out, nil
	case Recording:
		if err := v.Validate(); err != nil {
			return nil, err
		}
		return &v, nil
	case []byte:
		return parseJSON(v)
	case json.RawMessage:
		return parseJSON(v)
	case string:
		return parseJSON([]byte(v))
	default:
		return parseValue(v, true)
	}
}

func parseJSON(data []byte) (*Recording, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, errors.Wrapf(ErrMalformedRecording, "parsing json: %v", err)
	}
	return parseValue(v, true)
}

// StoreSource loads a recording by request id from a Store.
type StoreSource struct {
	store     Store
	requestID string
}

// NewStoreSource returns a Source reading requestID from store.
func NewStoreSource(store Store, requestID string) (*StoreSource, error) {
	if store == nil {
		return nil, errors.Wrap(ErrInvalidArgs, "store is required")
	}
	if requestID == "" {
		return nil, errors.Wrap(ErrInvalidArgs, "request id is required")
	}
	return &StoreSource{store: store, requestID: requestID}, nil
}

// Load fetches the recording from the store.
func (s *StoreSource) Load(ctx context.Context) (*Recording, error) {
	rec, err := s.store.Get(ctx, s.requestID)
	if err != nil {
		return nil, errors.Wrapf(err, "loading recording %q", s.requestID)
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}
