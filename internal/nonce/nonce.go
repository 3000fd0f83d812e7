// Package nonce issues single-use, time-bounded challenge tokens for
// agent authentication.
//
// A nonce is valid exactly once: validation deletes it atomically
// before answering, so two concurrent callers can never both observe
// "valid". Expired, unknown, and already-consumed nonces are
// indistinguishable to callers.
package nonce

import (
	"context"
	"fmt"
	"time"

	"github.com/loomworks/loom/internal/idgen"
	"github.com/loomworks/loom/internal/metrics"
)

// DefaultTTL bounds a nonce's lifetime when the caller passes zero.
const DefaultTTL = 30 * time.Second

// Store issues and consumes nonces. Implementations must be safe for
// concurrent use; the single-use guarantee must hold under concurrent
// Validate calls for the same nonce.
type Store interface {
	// Generate creates, stores, and returns a fresh nonce for agentID.
	Generate(ctx context.Context, agentID string) (string, error)
	// Validate consumes the nonce. It reports true exactly once per
	// generated (agentID, nonce) pair, and false ever after — or false
	// from the start if the TTL has lapsed.
	Validate(ctx context.Context, agentID, value string) (bool, error)
	Close() error
}

// challengeKey namespaces stored nonces by agent so one agent's token
// can never validate for another.
func challengeKey(agentID, value string) string {
	return agentID + "." + value
}

// newValue mints the random token payload.
func newValue() (string, error) {
	value, err := idgen.NewNonce()
	if err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return value, nil
}

func recordValidation(valid bool) {
	if valid {
		metrics.NonceValidations.WithLabelValues("valid").Inc()
	} else {
		metrics.NonceValidations.WithLabelValues("invalid").Inc()
	}
}
