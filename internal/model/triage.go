package model

import (
	"time"
)

// TriageItem is one inbox item awaiting classification. Handled is the
// idempotence marker: alarm re-delivery skips items already marked.
type TriageItem struct {
	ID         string    `json:"id"`
	Sender     string    `json:"sender"`
	Subject    string    `json:"subject"`
	Snippet    string    `json:"snippet,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
	Handled    bool      `json:"handled"`
	Category   string    `json:"category,omitempty"`
	HandledAt  time.Time `json:"handled_at,omitzero"`
}

// FilterRule is a per-entity triage rule evaluated before the external
// classifier. A rule with Skip set drops the item from the digest; a
// rule with Category set assigns it without a classifier call.
type FilterRule struct {
	Name            string `json:"name"`
	SenderContains  string `json:"sender_contains,omitempty"`
	SubjectContains string `json:"subject_contains,omitempty"`
	Category        string `json:"category,omitempty"`
	Skip            bool   `json:"skip,omitempty"`
}

// DigestLine is one categorized item in a composed digest.
type DigestLine struct {
	ItemID   string `json:"item_id"`
	Sender   string `json:"sender"`
	Subject  string `json:"subject"`
	Category string `json:"category"`
}

// Digest is the composed summary of one processing episode.
type Digest struct {
	Entity     EntityKey      `json:"entity"`
	Lines      []DigestLine   `json:"lines"`
	Counts     map[string]int `json:"counts"`
	Skipped    int            `json:"skipped"`
	Failed     int            `json:"failed"`
	ComposedAt time.Time      `json:"composed_at"`
}

// Empty reports whether the digest has nothing to dispatch.
func (d *Digest) Empty() bool {
	return d == nil || len(d.Lines) == 0
}

// EpisodeStatus records the outcome of one pipeline run.
type EpisodeStatus string

const (
	EpisodeSucceeded      EpisodeStatus = "succeeded"
	EpisodeDispatchFailed EpisodeStatus = "dispatch_failed"
	EpisodeEmpty          EpisodeStatus = "empty"
)

// Episode is the durable record of one pipeline run, written in the
// same transaction that marks its items handled.
type Episode struct {
	Entity     EntityKey     `json:"entity"`
	Seq        uint64        `json:"seq"`
	Status     EpisodeStatus `json:"status"`
	Processed  int           `json:"processed"`
	Failed     int           `json:"failed"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}
