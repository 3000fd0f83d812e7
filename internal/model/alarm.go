package model

import (
	"fmt"
	"strings"
	"time"
)

// ProcessingState tracks whether an entity's background pipeline is
// running. At most one processing episode per entity is active at any
// time; the actor serializes transitions.
type ProcessingState string

const (
	StateIdle       ProcessingState = "idle"
	StateProcessing ProcessingState = "processing"
)

// AlarmEntry is a pending wake-up for one entity. At most one pending
// entry exists per entity; re-arming replaces it.
type AlarmEntry struct {
	Entity EntityKey `json:"entity"`
	FireAt time.Time `json:"fire_at"`
}

// TimeOfDay is a wall-clock schedule point (UTC).
type TimeOfDay struct {
	Hour   int
	Minute int
}

// String formats the point as "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Minutes returns the point as minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// ParseTimeOfDay parses "HH:MM" (24-hour, UTC).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var tod TimeOfDay
	if _, err := fmt.Sscanf(s, "%d:%d", &tod.Hour, &tod.Minute); err != nil {
		return TimeOfDay{}, fmt.Errorf("time of day %q: %w", s, err)
	}
	if tod.Hour < 0 || tod.Hour > 23 || tod.Minute < 0 || tod.Minute > 59 {
		return TimeOfDay{}, fmt.Errorf("time of day %q: out of range", s)
	}
	return tod, nil
}

// ParseSchedule parses a comma-separated list of schedule points, as
// stored in the digest_times config setting.
func ParseSchedule(s string) ([]TimeOfDay, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	points := make([]TimeOfDay, 0, len(parts))
	for _, p := range parts {
		tod, err := ParseTimeOfDay(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		points = append(points, tod)
	}
	return points, nil
}

// DefaultSchedule is used when an entity has no digest_times setting.
var DefaultSchedule = []TimeOfDay{
	{Hour: 8}, {Hour: 13}, {Hour: 18},
}
