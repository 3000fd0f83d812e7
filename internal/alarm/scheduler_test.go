package alarm

import (
	"sync"
	"testing"
	"time"

	"github.com/loomworks/loom/internal/model"
)

func TestComputeNextStrictlyFuture(t *testing.T) {
	points := []model.TimeOfDay{{Hour: 8}, {Hour: 13}, {Hour: 18}}

	for _, tc := range []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "between points",
			now:  time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC),
			want: time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC),
		},
		{
			name: "exactly on a point returns the next one",
			now:  time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC),
		},
		{
			name: "after last point wraps to tomorrow",
			now:  time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		},
		{
			name: "exactly on the last point wraps to tomorrow",
			now:  time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		},
		{
			name: "before first point",
			now:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeNext(points, tc.now)
			if !got.Equal(tc.want) {
				t.Errorf("ComputeNext(%v) = %v, want %v", tc.now, got, tc.want)
			}
			if !got.After(tc.now) {
				t.Errorf("ComputeNext returned a non-future time %v for now=%v", got, tc.now)
			}
		})
	}
}

func TestComputeNextEmptyScheduleUsesDefault(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	got := ComputeNext(nil, now)
	want := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ComputeNext with default schedule = %v, want %v", got, want)
	}
}

// fireRecorder collects fire callbacks for assertions.
type fireRecorder struct {
	mu    sync.Mutex
	fired []model.EntityKey
	ch    chan model.EntityKey
}

func newFireRecorder() *fireRecorder {
	return &fireRecorder{ch: make(chan model.EntityKey, 16)}
}

func (r *fireRecorder) fire(entity model.EntityKey, _ time.Time) {
	r.mu.Lock()
	r.fired = append(r.fired, entity)
	r.mu.Unlock()
	r.ch <- entity
}

func (r *fireRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fired)
}

func TestSchedulerFires(t *testing.T) {
	rec := newFireRecorder()
	s := NewScheduler(rec.fire, nil)
	defer s.Stop()

	entity := model.NewEntityKey(model.NamespaceTriage, "alice")
	s.Arm(entity, time.Now().Add(10*time.Millisecond))

	select {
	case got := <-rec.ch:
		if got != entity {
			t.Errorf("fired %s, want %s", got, entity)
		}
	case <-time.After(time.Second):
		t.Fatal("alarm did not fire")
	}

	// Fired entries are consumed, not re-fired.
	if _, ok := s.Pending(entity); ok {
		t.Error("entry still pending after firing")
	}
}

func TestPendingDescribesArmedAlarm(t *testing.T) {
	rec := newFireRecorder()
	s := NewScheduler(rec.fire, nil)
	defer s.Stop()

	entity := model.NewEntityKey(model.NamespaceTriage, "alice")
	at := time.Now().Add(time.Hour).UTC()
	s.Arm(entity, at)

	entry, ok := s.Pending(entity)
	if !ok {
		t.Fatal("no pending entry after Arm")
	}
	if entry.Entity != entity {
		t.Errorf("entry.Entity = %s, want %s", entry.Entity, entity)
	}
	if !entry.FireAt.Equal(at) {
		t.Errorf("entry.FireAt = %v, want %v", entry.FireAt, at)
	}
}

func TestArmReplacesPendingEntry(t *testing.T) {
	rec := newFireRecorder()
	s := NewScheduler(rec.fire, nil)
	defer s.Stop()

	entity := model.NewEntityKey(model.NamespaceTriage, "alice")
	// First arm far out, then replace with a near time.
	s.Arm(entity, time.Now().Add(time.Hour))
	s.Arm(entity, time.Now().Add(10*time.Millisecond))

	select {
	case <-rec.ch:
	case <-time.After(time.Second):
		t.Fatal("replacement alarm did not fire")
	}

	// The superseded hour-out entry must not fire a second time.
	time.Sleep(30 * time.Millisecond)
	if got := rec.count(); got != 1 {
		t.Errorf("fired %d times, want 1", got)
	}
}

func TestArmSameTimeIsNoop(t *testing.T) {
	rec := newFireRecorder()
	s := NewScheduler(rec.fire, nil)
	defer s.Stop()

	entity := model.NewEntityKey(model.NamespaceTriage, "alice")
	at := time.Now().Add(15 * time.Millisecond)
	s.Arm(entity, at)
	s.Arm(entity, at)
	s.Arm(entity, at)

	select {
	case <-rec.ch:
	case <-time.After(time.Second):
		t.Fatal("alarm did not fire")
	}
	time.Sleep(30 * time.Millisecond)
	if got := rec.count(); got != 1 {
		t.Errorf("fired %d times, want 1", got)
	}
}

func TestDisarm(t *testing.T) {
	rec := newFireRecorder()
	s := NewScheduler(rec.fire, nil)
	defer s.Stop()

	entity := model.NewEntityKey(model.NamespaceTriage, "alice")
	s.Arm(entity, time.Now().Add(15*time.Millisecond))
	s.Disarm(entity)

	time.Sleep(40 * time.Millisecond)
	if got := rec.count(); got != 0 {
		t.Errorf("disarmed alarm fired %d times", got)
	}
}

func TestIndependentEntities(t *testing.T) {
	rec := newFireRecorder()
	s := NewScheduler(rec.fire, nil)
	defer s.Stop()

	a := model.NewEntityKey(model.NamespaceTriage, "alice")
	b := model.NewEntityKey(model.NamespaceTriage, "bob")
	s.Arm(a, time.Now().Add(10*time.Millisecond))
	s.Arm(b, time.Now().Add(20*time.Millisecond))

	seen := map[model.EntityKey]bool{}
	for i := 0; i < 2; i++ {
		select {
		case got := <-rec.ch:
			seen[got] = true
		case <-time.After(time.Second):
			t.Fatal("missing fire")
		}
	}
	if !seen[a] || !seen[b] {
		t.Errorf("fired = %v", seen)
	}
}
