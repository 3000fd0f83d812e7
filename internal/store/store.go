package store

import (
	"context"
	"encoding/json"
	"time"
)

// Record is a single durable key/value entry. Values are opaque JSON;
// the components that own each key prefix decide the shape.
type Record struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Store is the durable store adapter: a transactional key/record
// store. Single-key operations are atomic; PutMany is atomic across
// all its records. Implementations must be safe for concurrent use
// across entity keys.
type Store interface {
	// Get returns the record for key, or (nil, nil) when absent.
	Get(ctx context.Context, key string) (*Record, error)
	// Put overwrites the record for rec.Key.
	Put(ctx context.Context, rec *Record) error
	// Delete removes the record for key. Deleting an absent key is not
	// an error.
	Delete(ctx context.Context, key string) error
	// ListByPrefix returns all records whose key starts with prefix,
	// ordered by key.
	ListByPrefix(ctx context.Context, prefix string) ([]*Record, error)
	// PutMany writes all records in a single transaction: either every
	// record lands or none do.
	PutMany(ctx context.Context, recs []*Record) error

	// Lifecycle
	Close() error
}
