package nonce

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// KVStore implements Store on a NATS JetStream key/value bucket. The
// bucket carries the TTL (every nonce shares the same lifetime), and
// revision-guarded deletes make the consume atomic: when two callers
// race on the same nonce, only the delete that matches the entry's
// revision succeeds, so exactly one sees "valid".
type KVStore struct {
	kv nats.KeyValue
}

var _ Store = (*KVStore)(nil)

// BucketName is the JetStream KV bucket holding pending challenges.
const BucketName = "loom-nonces"

// NewKVStore creates (or binds to) the nonce bucket on an existing
// NATS connection. ttl of zero means DefaultTTL.
func NewKVStore(nc *nats.Conn, ttl time.Duration) (*KVStore, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	kv, err := js.CreateKeyValue(&nats.KeyValueConfig{
		Bucket:  BucketName,
		TTL:     ttl,
		Storage: nats.MemoryStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("create nonce bucket: %w", err)
	}
	return &KVStore{kv: kv}, nil
}

func (s *KVStore) Generate(_ context.Context, agentID string) (string, error) {
	value, err := newValue()
	if err != nil {
		return "", err
	}
	if _, err := s.kv.Put(challengeKey(agentID, value), []byte{1}); err != nil {
		return "", fmt.Errorf("store nonce: %w", err)
	}
	return value, nil
}

func (s *KVStore) Validate(_ context.Context, agentID, value string) (bool, error) {
	key := challengeKey(agentID, value)

	entry, err := s.kv.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			recordValidation(false)
			return false, nil
		}
		return false, fmt.Errorf("get nonce: %w", err)
	}

	// Delete guarded by the revision we read: a concurrent consumer
	// that got there first bumps the revision, and our delete fails.
	if err := s.kv.Delete(key, nats.LastRevision(entry.Revision())); err != nil {
		recordValidation(false)
		return false, nil
	}

	recordValidation(true)
	return true, nil
}

func (s *KVStore) Close() error { return nil }
