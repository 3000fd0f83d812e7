package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DraftMetadata identifies who wrote a draft and when. DeviceID is
// retained for audit; precedence between devices is decided by
// UpdatedAt alone (with DeviceID only as a tie-break).
type DraftMetadata struct {
	DeviceID    string    `json:"device_id"`
	UpdatedAt   time.Time `json:"updated_at"`
	ContentHash string    `json:"content_hash"`
}

// Draft is a per-entity content blob being edited from one or more
// devices. The reconciler exposes exactly one authoritative draft per
// entity at any instant.
type Draft struct {
	Content []byte        `json:"content"`
	Meta    DraftMetadata `json:"meta"`
}

// HashContent returns the hex SHA-256 of a draft body.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Supersedes reports whether a write carrying meta wins over the
// current authoritative metadata. Strictly newer UpdatedAt wins;
// equal timestamps fall to the lexicographically greater DeviceID so
// the outcome is deterministic regardless of arrival order.
func (m DraftMetadata) Supersedes(current DraftMetadata) bool {
	if m.UpdatedAt.After(current.UpdatedAt) {
		return true
	}
	if m.UpdatedAt.Equal(current.UpdatedAt) {
		return m.DeviceID > current.DeviceID
	}
	return false
}
