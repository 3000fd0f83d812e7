package model

import (
	"fmt"
	"strings"
)

// Namespace is the first component of an entity key. It decides which
// actor variant owns the key.
type Namespace string

const (
	// NamespaceTenant addresses the per-tenant configuration actor.
	NamespaceTenant Namespace = "tenant"
	// NamespaceTriage addresses the per-mailbox email triage actor.
	NamespaceTriage Namespace = "triage"
)

// String returns the string representation of the namespace.
func (n Namespace) String() string {
	return string(n)
}

// IsValid checks whether the namespace is a known value.
func (n Namespace) IsValid() bool {
	switch n {
	case NamespaceTenant, NamespaceTriage:
		return true
	}
	return false
}

// EntityKey addresses exactly one coordination actor. Keys are
// deterministic: the same namespace and identifier always produce the
// same key, so callers can re-derive them without a lookup.
type EntityKey string

// NewEntityKey builds a key from a namespace tag and an entity
// identifier (tenant subdomain, mailbox owner, ...).
func NewEntityKey(ns Namespace, id string) EntityKey {
	return EntityKey(string(ns) + ":" + id)
}

// ParseEntityKey splits and validates an entity key string.
func ParseEntityKey(s string) (EntityKey, error) {
	ns, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return "", fmt.Errorf("entity key %q: want <namespace>:<id>", s)
	}
	if !Namespace(ns).IsValid() {
		return "", fmt.Errorf("entity key %q: unknown namespace %q", s, ns)
	}
	return EntityKey(s), nil
}

// String returns the string representation of the key.
func (k EntityKey) String() string {
	return string(k)
}

// Namespace returns the namespace component of the key.
func (k EntityKey) Namespace() Namespace {
	ns, _, _ := strings.Cut(string(k), ":")
	return Namespace(ns)
}

// ID returns the identifier component of the key.
func (k EntityKey) ID() string {
	_, id, _ := strings.Cut(string(k), ":")
	return id
}

// Storage key builders. All durable state for one entity shares the
// entity key as a path component so ListByPrefix can scope scans to
// a single entity.

// ConfigRecordKey is the storage key for an entity's config record.
func ConfigRecordKey(k EntityKey) string {
	return "config:" + string(k)
}

// DraftRecordKey is the storage key for an entity's authoritative draft.
func DraftRecordKey(k EntityKey) string {
	return "draft:" + string(k)
}

// EventBatchKey is the storage key for one event within a flushed
// analytics batch. seq orders batches, idx orders events within one.
func EventBatchKey(k EntityKey, seq uint64, idx int) string {
	return fmt.Sprintf("events:%s:%012d:%04d", k, seq, idx)
}

// EventBatchPrefix scopes a ListByPrefix scan to one entity's flushed
// analytics events.
func EventBatchPrefix(k EntityKey) string {
	return "events:" + string(k) + ":"
}

// TriageItemKey is the storage key for one triage inbox item.
func TriageItemKey(k EntityKey, itemID string) string {
	return "triage:item:" + string(k) + ":" + itemID
}

// TriageItemPrefix scopes a ListByPrefix scan to one entity's items.
func TriageItemPrefix(k EntityKey) string {
	return "triage:item:" + string(k) + ":"
}

// EpisodeRecordKey is the storage key for one processing episode record.
func EpisodeRecordKey(k EntityKey, seq uint64) string {
	return fmt.Sprintf("episode:%s:%012d", k, seq)
}

// EpisodePrefix scopes a ListByPrefix scan to one entity's episodes.
func EpisodePrefix(k EntityKey) string {
	return "episode:" + string(k) + ":"
}
