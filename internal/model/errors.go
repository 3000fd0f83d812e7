package model

import (
	"errors"
	"fmt"
)

// Error taxonomy. Component-local failures (cache miss, flush retry)
// are recovered without surfacing; these are the errors that cross an
// operation boundary.

// ErrStorageUnavailable indicates the durable store could not be
// reached. Surfaced to the caller as-is; the actor does not retry.
var ErrStorageUnavailable = errors.New("storage unavailable")

// ErrNonceInvalid covers expired, unknown, and already-consumed
// nonces. Callers treat all three identically; no detail is leaked.
var ErrNonceInvalid = errors.New("nonce invalid")

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("not found")

// StorageError wraps a driver failure as ErrStorageUnavailable while
// keeping the operation name for logs.
func StorageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

// StaleWriteError reports a draft write that arrived behind the
// authoritative draft. Not fatal: the write is kept for audit and the
// caller receives the draft that actually won so the client UI can
// reconcile.
type StaleWriteError struct {
	Authoritative *Draft
}

func (e *StaleWriteError) Error() string {
	return fmt.Sprintf("stale draft write: device %s holds the authoritative draft",
		e.Authoritative.Meta.DeviceID)
}

// ClassificationError is a per-item pipeline failure. The item is
// recorded and skipped; the batch continues.
type ClassificationError struct {
	ItemID string
	Err    error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classify item %s: %v", e.ItemID, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// DispatchError reports a failed digest send. The episode is recorded
// as failed, but the next alarm is still armed.
type DispatchError struct {
	Entity EntityKey
	Err    error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch digest for %s: %v", e.Entity, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// InputError indicates invalid caller input. The HTTP layer maps it
// to 400.
type InputError string

func (e InputError) Error() string { return string(e) }
