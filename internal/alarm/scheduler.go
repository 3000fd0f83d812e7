// Package alarm provides durable-style single-fire wake-ups for
// entity actors: a pure next-fire computation over configured times
// of day, and a delay queue that drives the actors' alarm callbacks.
package alarm

import (
	"container/heap"
	"log/slog"
	"sync"
	"time"

	"github.com/loomworks/loom/internal/model"
)

// ComputeNext returns the nearest occurrence of any schedule point
// strictly after now (UTC). A now that lands exactly on a point
// resolves to that point's next occurrence, never the current
// instant. An empty schedule falls back to the default points.
func ComputeNext(points []model.TimeOfDay, now time.Time) time.Time {
	if len(points) == 0 {
		points = model.DefaultSchedule
	}
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var next time.Time
	for _, p := range points {
		candidate := midnight.Add(time.Duration(p.Minutes()) * time.Minute)
		if !candidate.After(now) {
			candidate = candidate.Add(24 * time.Hour)
		}
		if next.IsZero() || candidate.Before(next) {
			next = candidate
		}
	}
	return next
}

// FireFunc is invoked when an entity's alarm fires. Each invocation
// runs on its own goroutine so one slow entity never delays others.
type FireFunc func(entity model.EntityKey, fireAt time.Time)

// Scheduler is a process-wide delay queue of per-entity alarms. At
// most one pending entry exists per entity; Arm replaces.
type Scheduler struct {
	fire FireFunc
	now  func() time.Time

	mu      sync.Mutex
	pending map[model.EntityKey]time.Time
	queue   alarmQueue
	wake    chan struct{}

	stop chan struct{}
	done chan struct{}
}

// NewScheduler creates a scheduler and starts its timer loop. now may
// be nil for the wall clock.
func NewScheduler(fire FireFunc, now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	s := &Scheduler{
		fire:    fire,
		now:     now,
		pending: make(map[model.EntityKey]time.Time),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Arm schedules the entity's alarm for at, replacing any pending
// entry. Arming twice with the same timestamp is a no-op.
func (s *Scheduler) Arm(entity model.EntityKey, at time.Time) {
	at = at.UTC()
	s.mu.Lock()
	if current, ok := s.pending[entity]; ok && current.Equal(at) {
		s.mu.Unlock()
		return
	}
	s.pending[entity] = at
	heap.Push(&s.queue, &queued{entity: entity, at: at})
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Disarm cancels the entity's pending alarm, if any.
func (s *Scheduler) Disarm(entity model.EntityKey) {
	s.mu.Lock()
	delete(s.pending, entity)
	s.mu.Unlock()
}

// Pending returns the entity's pending alarm entry, if any.
func (s *Scheduler) Pending(entity model.EntityKey) (model.AlarmEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.pending[entity]
	if !ok {
		return model.AlarmEntry{}, false
	}
	return model.AlarmEntry{Entity: entity, FireAt: at}, true
}

// Stop shuts down the timer loop. Pending alarms are discarded;
// in-flight fire callbacks are not interrupted.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) run() {
	defer close(s.done)

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		next, ok := s.nextFireTime()
		if ok {
			d := next.Sub(s.now())
			if d < 0 {
				d = 0
			}
			timer.Reset(d)
		}

		select {
		case <-s.stop:
			if ok && !timer.Stop() {
				<-timer.C
			}
			return
		case <-s.wake:
			if ok && !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
			s.fireDue()
		}
	}
}

// nextFireTime peeks the earliest still-valid queue entry, discarding
// entries superseded by a later Arm or removed by Disarm.
func (s *Scheduler) nextFireTime() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.queue.Len() > 0 {
		head := s.queue[0]
		at, ok := s.pending[head.entity]
		if !ok || !at.Equal(head.at) {
			heap.Pop(&s.queue)
			continue
		}
		return head.at, true
	}
	return time.Time{}, false
}

// fireDue pops and fires every entry whose time has come.
func (s *Scheduler) fireDue() {
	now := s.now()

	for {
		s.mu.Lock()
		if s.queue.Len() == 0 {
			s.mu.Unlock()
			return
		}
		head := s.queue[0]
		at, ok := s.pending[head.entity]
		if !ok || !at.Equal(head.at) {
			heap.Pop(&s.queue)
			s.mu.Unlock()
			continue
		}
		if head.at.After(now) {
			s.mu.Unlock()
			return
		}
		heap.Pop(&s.queue)
		delete(s.pending, head.entity)
		s.mu.Unlock()

		slog.Debug("alarm fired", "entity", head.entity, "fire_at", head.at)
		go s.fire(head.entity, head.at)
	}
}

// queued is one heap entry. Superseded entries stay in the heap and
// are discarded lazily when they surface.
type queued struct {
	entity model.EntityKey
	at     time.Time
}

type alarmQueue []*queued

func (q alarmQueue) Len() int            { return len(q) }
func (q alarmQueue) Less(i, j int) bool  { return q[i].at.Before(q[j].at) }
func (q alarmQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *alarmQueue) Push(x any)         { *q = append(*q, x.(*queued)) }
func (q *alarmQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}
