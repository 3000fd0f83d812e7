package actor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loomworks/loom/internal/alarm"
	"github.com/loomworks/loom/internal/events"
	"github.com/loomworks/loom/internal/model"
	"github.com/loomworks/loom/internal/store/memory"
	"github.com/loomworks/loom/internal/triage"
)

var (
	acme  = model.NewEntityKey(model.NamespaceTenant, "acme")
	alice = model.NewEntityKey(model.NamespaceTriage, "alice")
)

// fixedNow is mid-morning UTC so the default schedule's next point is
// 13:00 the same day.
var fixedNow = time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)

// stubProcessor records episode runs.
type stubProcessor struct {
	mu   sync.Mutex
	runs int
	err  error
}

func (p *stubProcessor) Run(_ context.Context, entity model.EntityKey, _ *model.Config, _ model.TierLimits) (*model.Digest, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runs++
	return &model.Digest{Entity: entity}, p.err
}

func (p *stubProcessor) runCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runs
}

func newTestRegistry(t *testing.T, mem *memory.MemoryStore, proc Processor) *Registry {
	t.Helper()
	if proc == nil {
		proc = &stubProcessor{}
	}
	reg := NewRegistry(Deps{
		Store:    mem,
		Pipeline: proc,
		Now:      func() time.Time { return fixedNow },
	})
	t.Cleanup(func() {
		if err := reg.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	})
	return reg
}

func TestGetCreatesAndArmsActor(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t, memory.New(), nil)

	a := reg.Get(ctx, acme)
	if a == nil {
		t.Fatal("nil actor")
	}
	if reg.Len() != 1 {
		t.Errorf("registry holds %d actors, want 1", reg.Len())
	}
	if again := reg.Get(ctx, acme); again != a {
		t.Error("second Get returned a different actor")
	}

	// Fresh entities pick up the default digest schedule.
	entry, ok := reg.Scheduler().Pending(acme)
	if !ok {
		t.Fatal("no alarm armed for new actor")
	}
	want := alarm.ComputeNext(model.DefaultSchedule, fixedNow)
	if !entry.FireAt.Equal(want) {
		t.Errorf("armed for %v, want %v", entry.FireAt, want)
	}
}

func TestConfigLifecycle(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t, memory.New(), nil)
	a := reg.Get(ctx, acme)

	cfg, err := a.GetConfig(ctx)
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if cfg.Version != 0 || len(cfg.Settings) != 0 {
		t.Errorf("fresh config = %+v", cfg)
	}

	cfg, err = a.PutConfig(ctx, map[string]string{model.SettingPlan: "elm"})
	if err != nil {
		t.Fatalf("PutConfig: %v", err)
	}
	if cfg.Version != 1 || cfg.Plan() != "elm" {
		t.Errorf("after patch: %+v", cfg)
	}

	a.InvalidateConfig(ctx)
	cfg, err = a.GetConfig(ctx)
	if err != nil {
		t.Fatalf("GetConfig after invalidate: %v", err)
	}
	if cfg.Plan() != "elm" {
		t.Errorf("reloaded config lost the patch: %+v", cfg)
	}
}

func TestDigestTimesPatchRearmsAlarm(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t, memory.New(), nil)
	a := reg.Get(ctx, acme)

	if _, err := a.PutConfig(ctx, map[string]string{model.SettingDigestTimes: "22:15"}); err != nil {
		t.Fatalf("PutConfig: %v", err)
	}

	entry, ok := reg.Scheduler().Pending(acme)
	if !ok {
		t.Fatal("no alarm pending")
	}
	want := time.Date(2026, 3, 2, 22, 15, 0, 0, time.UTC)
	if !entry.FireAt.Equal(want) {
		t.Errorf("armed for %v, want %v", entry.FireAt, want)
	}
}

func TestDraftFlow(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t, memory.New(), nil)
	a := reg.Get(ctx, alice)

	older := fixedNow.Add(-time.Minute)
	if _, err := a.PutDraft(ctx, []byte("hello"), "phone", fixedNow); err != nil {
		t.Fatalf("PutDraft: %v", err)
	}

	// A stale write loses and gets the authoritative copy back.
	_, err := a.PutDraft(ctx, []byte("hel"), "laptop", older)
	var stale *model.StaleWriteError
	if !errors.As(err, &stale) {
		t.Fatalf("want StaleWriteError, got %v", err)
	}
	if string(stale.Authoritative.Content) != "hello" {
		t.Errorf("authoritative content = %q", stale.Authoritative.Content)
	}

	got, err := a.GetDraft(ctx)
	if err != nil {
		t.Fatalf("GetDraft: %v", err)
	}
	if got.Meta.DeviceID != "phone" {
		t.Errorf("draft held by %q, want phone", got.Meta.DeviceID)
	}

	if err := a.ClearDraft(ctx); err != nil {
		t.Fatalf("ClearDraft: %v", err)
	}
	if _, err := a.GetDraft(ctx); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("after clear: %v", err)
	}
}

func TestDraftSizeLimitFromTier(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(Deps{
		Store:    memory.New(),
		Pipeline: &stubProcessor{},
		Tiers:    model.TierCatalog{"oak": {MaxDraftBytes: 8}},
		Now:      func() time.Time { return fixedNow },
	})
	t.Cleanup(func() { reg.Shutdown(context.Background()) })
	a := reg.Get(ctx, alice)

	if _, err := a.PutDraft(ctx, []byte("short"), "phone", fixedNow); err != nil {
		t.Fatalf("within limit: %v", err)
	}
	_, err := a.PutDraft(ctx, []byte("far too long for oak"), "phone", fixedNow.Add(time.Second))
	var input model.InputError
	if !errors.As(err, &input) {
		t.Errorf("oversized draft: got %v, want InputError", err)
	}
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestAppendEventTierFlush(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	reg := NewRegistry(Deps{
		Store:    mem,
		Pipeline: &stubProcessor{},
		Tiers:    model.TierCatalog{"oak": {MaxEventsPerFlush: 3}},
		Now:      func() time.Time { return fixedNow },
	})
	t.Cleanup(func() { reg.Shutdown(context.Background()) })
	a := reg.Get(ctx, acme)

	for i := 0; i < 3; i++ {
		if err := a.AppendEvent(ctx, model.AnalyticsEvent{EventType: "page_view", OccurredAt: fixedNow}); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	// Hitting the tier limit flushes on the background goroutine.
	waitFor(t, time.Second, func() bool { return mem.Len() == 3 })
	recs, err := mem.ListByPrefix(ctx, model.EventBatchPrefix(acme))
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Errorf("flushed %d event records, want 3", len(recs))
	}
}

func TestAppendEventNeverSurfacesFlushFailure(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	reg := NewRegistry(Deps{
		Store:    mem,
		Pipeline: &stubProcessor{},
		Tiers:    model.TierCatalog{"oak": {MaxEventsPerFlush: 2}},
		Now:      func() time.Time { return fixedNow },
	})
	t.Cleanup(func() { reg.Shutdown(context.Background()) })
	a := reg.Get(ctx, acme)

	// Prime the config cache before the outage starts.
	if _, err := a.GetConfig(ctx); err != nil {
		t.Fatal(err)
	}

	mem.FailWith(model.StorageError("put many", errors.New("backend down")))
	for i := 0; i < 3; i++ {
		if err := a.AppendEvent(ctx, model.AnalyticsEvent{EventType: "click", OccurredAt: fixedNow}); err != nil {
			t.Fatalf("append %d during outage: %v", i, err)
		}
	}

	// Nothing dropped: the failed flush re-merges its batch, so the
	// buffer settles back at three events with the store untouched.
	waitFor(t, time.Second, func() bool { return a.buffer.Len() == 3 })
	if mem.Len() != 0 {
		t.Errorf("store has %d records during outage", mem.Len())
	}

	// After the store heals, the events drain in the background.
	mem.FailWith(nil)
	a.buffer.RequestFlush()
	waitFor(t, time.Second, func() bool { return mem.Len() >= 3 })
}

func TestOnAlarmRunsProcessorAndRearms(t *testing.T) {
	ctx := context.Background()
	proc := &stubProcessor{}
	reg := newTestRegistry(t, memory.New(), proc)
	a := reg.Get(ctx, alice)

	if err := a.OnAlarm(ctx, fixedNow); err != nil {
		t.Fatalf("OnAlarm: %v", err)
	}
	if proc.runCount() != 1 {
		t.Errorf("processor ran %d times, want 1", proc.runCount())
	}
	if a.State() != model.StateIdle {
		t.Errorf("state after episode = %s", a.State())
	}

	entry, ok := reg.Scheduler().Pending(alice)
	if !ok {
		t.Fatal("next alarm not armed")
	}
	if want := alarm.ComputeNext(model.DefaultSchedule, fixedNow); !entry.FireAt.Equal(want) {
		t.Errorf("next alarm %v, want %v", entry.FireAt, want)
	}
}

func TestOnAlarmRearmsAfterProcessorFailure(t *testing.T) {
	ctx := context.Background()
	proc := &stubProcessor{err: errors.New("classifier down")}
	reg := newTestRegistry(t, memory.New(), proc)
	a := reg.Get(ctx, alice)

	if err := a.OnAlarm(ctx, fixedNow); err == nil {
		t.Fatal("want processor error")
	}
	if _, ok := reg.Scheduler().Pending(alice); !ok {
		t.Error("failed episode left entity with no alarm")
	}
}

func TestEvictFlushesAndRecreates(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	reg := newTestRegistry(t, mem, nil)
	a := reg.Get(ctx, acme)

	if err := a.AppendEvent(ctx, model.AnalyticsEvent{EventType: "click", OccurredAt: fixedNow}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Evict(ctx, acme); err != nil {
		t.Fatalf("Evict: %v", err)
	}
	if reg.Len() != 0 {
		t.Errorf("registry holds %d actors after evict", reg.Len())
	}

	// The buffered event made it to the store on eviction.
	recs, err := mem.ListByPrefix(ctx, model.EventBatchPrefix(acme))
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Errorf("flushed %d event records, want 1", len(recs))
	}

	// Evicting an absent actor is a no-op.
	if err := reg.Evict(ctx, acme); err != nil {
		t.Errorf("second Evict: %v", err)
	}

	if again := reg.Get(ctx, acme); again == a {
		t.Error("Get after evict returned the closed actor")
	}
}

// End-to-end: a tenant on the default tier upgrades, drafts reconcile
// across devices, a storage outage is surfaced without corrupting
// cached state, and the alarm episode processes the inbox exactly
// once across a double delivery.
func TestActorEndToEnd(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()

	var mailer recordingMailer
	pipeline := triage.New(mem, keywordClassifier{}, &mailer, &events.NoopPublisher{},
		func() time.Time { return fixedNow })
	reg := newTestRegistry(t, mem, pipeline)
	a := reg.Get(ctx, alice)

	// Upgrade the plan; the change is durable across invalidation.
	if _, err := a.PutConfig(ctx, map[string]string{model.SettingPlan: "elm"}); err != nil {
		t.Fatalf("PutConfig: %v", err)
	}

	// Two devices race on the draft; the newer write holds.
	if _, err := a.PutDraft(ctx, []byte("draft v1"), "phone", fixedNow.Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}
	if _, err := a.PutDraft(ctx, []byte("draft v2"), "laptop", fixedNow); err != nil {
		t.Fatal(err)
	}

	// Storage outage: writes fail loudly, nothing cached is corrupted.
	outage := errors.New("backend unavailable")
	mem.FailWith(outage)
	if _, err := a.PutConfig(ctx, map[string]string{"theme": "dark"}); !errors.Is(err, outage) {
		t.Fatalf("config write during outage: %v", err)
	}
	if _, err := a.PutDraft(ctx, []byte("draft v3"), "phone", fixedNow.Add(time.Minute)); !errors.Is(err, outage) {
		t.Fatalf("draft write during outage: %v", err)
	}
	mem.FailWith(nil)

	cfg, err := a.GetConfig(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Plan() != "elm" || cfg.Settings["theme"] != "" {
		t.Errorf("config after outage = %+v", cfg)
	}
	d, err := a.GetDraft(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if string(d.Content) != "draft v2" {
		t.Errorf("draft after outage = %q", d.Content)
	}

	// Inbox arrives; the alarm fires twice (redelivery) but the
	// digest goes out once.
	if err := triage.SaveItem(ctx, mem, alice, model.TriageItem{
		ID: "m1", Sender: "billing@vendor.com", Subject: "invoice overdue", ReceivedAt: fixedNow,
	}); err != nil {
		t.Fatal(err)
	}
	if err := a.OnAlarm(ctx, fixedNow); err != nil {
		t.Fatalf("first alarm: %v", err)
	}
	if err := a.OnAlarm(ctx, fixedNow); err != nil {
		t.Fatalf("redelivered alarm: %v", err)
	}
	if got := mailer.count(); got != 1 {
		t.Errorf("digest dispatched %d times, want 1", got)
	}
}

type keywordClassifier struct{}

func (keywordClassifier) Classify(_ context.Context, item model.TriageItem) (string, float64, error) {
	if strings.Contains(item.Subject, "invoice") {
		return "billing", 0.9, nil
	}
	return "", 0.1, nil
}

type recordingMailer struct {
	mu    sync.Mutex
	sends int
}

func (m *recordingMailer) Send(context.Context, model.EntityKey, string, string) error {
	m.mu.Lock()
	m.sends++
	m.mu.Unlock()
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sends
}
