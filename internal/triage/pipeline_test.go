package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loomworks/loom/internal/events"
	"github.com/loomworks/loom/internal/model"
	"github.com/loomworks/loom/internal/store/memory"
)

var entity = model.NewEntityKey(model.NamespaceTriage, "alice")

// fakeClassifier categorizes by subject keyword and fails on demand.
type fakeClassifier struct {
	mu      sync.Mutex
	calls   int
	failFor map[string]bool
}

func (c *fakeClassifier) Classify(_ context.Context, item model.TriageItem) (string, float64, error) {
	c.mu.Lock()
	c.calls++
	fail := c.failFor[item.ID]
	c.mu.Unlock()
	if fail {
		return "", 0, errors.New("model overloaded")
	}
	switch {
	case strings.Contains(item.Subject, "invoice"):
		return "billing", 0.9, nil
	case strings.Contains(item.Subject, "meeting"):
		return "calendar", 0.8, nil
	}
	return "", 0.2, nil
}

// fakeMailer records sends and fails on demand.
type fakeMailer struct {
	mu    sync.Mutex
	sends []string
	fail  bool
}

func (m *fakeMailer) Send(_ context.Context, _ model.EntityKey, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("smtp unavailable")
	}
	m.sends = append(m.sends, subject+"\n"+body)
	return nil
}

func (m *fakeMailer) sendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sends)
}

func newTestPipeline(t *testing.T) (*Pipeline, *memory.MemoryStore, *fakeClassifier, *fakeMailer) {
	t.Helper()
	mem := memory.New()
	classifier := &fakeClassifier{failFor: map[string]bool{}}
	mailer := &fakeMailer{}
	p := New(mem, classifier, mailer, &events.NoopPublisher{}, nil)
	return p, mem, classifier, mailer
}

func seedItems(t *testing.T, mem *memory.MemoryStore, items ...model.TriageItem) {
	t.Helper()
	for _, item := range items {
		if err := SaveItem(context.Background(), mem, entity, item); err != nil {
			t.Fatalf("SaveItem %s: %v", item.ID, err)
		}
	}
}

func item(id, sender, subject string) model.TriageItem {
	return model.TriageItem{
		ID:         id,
		Sender:     sender,
		Subject:    subject,
		ReceivedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func loadItem(t *testing.T, mem *memory.MemoryStore, id string) model.TriageItem {
	t.Helper()
	rec, err := mem.Get(context.Background(), model.TriageItemKey(entity, id))
	if err != nil || rec == nil {
		t.Fatalf("item %s not found: %v", id, err)
	}
	var got model.TriageItem
	if err := json.Unmarshal(rec.Value, &got); err != nil {
		t.Fatalf("unmarshal item: %v", err)
	}
	return got
}

func emptyConfig() *model.Config {
	return &model.Config{Settings: map[string]string{}}
}

func TestRunClassifiesAndDispatches(t *testing.T) {
	ctx := context.Background()
	p, mem, _, mailer := newTestPipeline(t)
	seedItems(t, mem,
		item("m1", "billing@vendor.com", "invoice #42"),
		item("m2", "boss@acme.com", "meeting tomorrow"),
	)

	digest, err := p.Run(ctx, entity, emptyConfig(), model.TierLimits{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(digest.Lines) != 2 {
		t.Fatalf("digest has %d lines, want 2", len(digest.Lines))
	}
	if digest.Counts["billing"] != 1 || digest.Counts["calendar"] != 1 {
		t.Errorf("counts = %v", digest.Counts)
	}
	if mailer.sendCount() != 1 {
		t.Errorf("dispatched %d times, want 1", mailer.sendCount())
	}

	// Items marked handled with their category.
	for id, want := range map[string]string{"m1": "billing", "m2": "calendar"} {
		got := loadItem(t, mem, id)
		if !got.Handled || got.Category != want {
			t.Errorf("item %s = %+v, want handled with category %s", id, got, want)
		}
	}

	// Episode recorded.
	episodes, _ := mem.ListByPrefix(ctx, model.EpisodePrefix(entity))
	if len(episodes) != 1 {
		t.Fatalf("%d episode records, want 1", len(episodes))
	}
	var ep model.Episode
	if err := json.Unmarshal(episodes[0].Value, &ep); err != nil {
		t.Fatal(err)
	}
	if ep.Status != model.EpisodeSucceeded || ep.Processed != 2 {
		t.Errorf("episode = %+v", ep)
	}
}

func TestRunIsIdempotentUnderRedelivery(t *testing.T) {
	ctx := context.Background()
	p, mem, _, mailer := newTestPipeline(t)
	seedItems(t, mem, item("m1", "billing@vendor.com", "invoice #42"))

	if _, err := p.Run(ctx, entity, emptyConfig(), model.TierLimits{}); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	// Alarm re-delivery: everything already handled.
	digest, err := p.Run(ctx, entity, emptyConfig(), model.TierLimits{})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !digest.Empty() {
		t.Errorf("re-delivered run produced a non-empty digest: %+v", digest)
	}
	if mailer.sendCount() != 1 {
		t.Errorf("mail dispatched %d times across both runs, want 1", mailer.sendCount())
	}
	// No second episode record for the no-op run.
	episodes, _ := mem.ListByPrefix(ctx, model.EpisodePrefix(entity))
	if len(episodes) != 1 {
		t.Errorf("%d episode records, want 1", len(episodes))
	}
}

func TestClassificationFailureSkipsItemOnly(t *testing.T) {
	ctx := context.Background()
	p, mem, classifier, mailer := newTestPipeline(t)
	classifier.failFor["m2"] = true
	seedItems(t, mem,
		item("m1", "billing@vendor.com", "invoice #42"),
		item("m2", "noise@spam.com", "unclear"),
		item("m3", "boss@acme.com", "meeting tomorrow"),
	)

	digest, err := p.Run(ctx, entity, emptyConfig(), model.TierLimits{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(digest.Lines) != 2 || digest.Failed != 1 {
		t.Errorf("digest = %+v", digest)
	}
	if mailer.sendCount() != 1 {
		t.Errorf("partial progress should still dispatch, sends = %d", mailer.sendCount())
	}

	// The failed item stays unhandled for a future episode.
	if got := loadItem(t, mem, "m2"); got.Handled {
		t.Error("failed item was marked handled")
	}

	// Next episode retries it and succeeds.
	classifier.failFor["m2"] = false
	digest, err = p.Run(ctx, entity, emptyConfig(), model.TierLimits{})
	if err != nil {
		t.Fatalf("retry Run: %v", err)
	}
	if len(digest.Lines) != 1 || digest.Lines[0].ItemID != "m2" {
		t.Errorf("retry digest = %+v", digest)
	}
}

func TestRulesShortCircuitClassifier(t *testing.T) {
	ctx := context.Background()
	p, mem, classifier, _ := newTestPipeline(t)
	seedItems(t, mem,
		item("m1", "newsletter@shop.example", "weekly deals"),
		item("m2", "alerts@bank.example", "statement ready"),
	)

	rules := `[
		{"name":"mute newsletters","sender_contains":"newsletter@","skip":true},
		{"name":"bank","sender_contains":"@bank.example","category":"finance"}
	]`
	cfg := &model.Config{Settings: map[string]string{SettingRules: rules}}

	digest, err := p.Run(ctx, entity, cfg, model.TierLimits{MaxRulesPerEntity: 10})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if classifier.calls != 0 {
		t.Errorf("classifier called %d times despite matching rules", classifier.calls)
	}
	if digest.Skipped != 1 || len(digest.Lines) != 1 || digest.Lines[0].Category != "finance" {
		t.Errorf("digest = %+v", digest)
	}
	// The muted item is handled, never resurfacing.
	if got := loadItem(t, mem, "m1"); !got.Handled {
		t.Error("skipped item should be marked handled")
	}
}

func TestBatchLimitRespected(t *testing.T) {
	ctx := context.Background()
	p, mem, _, _ := newTestPipeline(t)
	for i := 0; i < 15; i++ {
		seedItems(t, mem, item(fmt.Sprintf("m%02d", i), "someone@acme.com", "meeting"))
	}

	digest, err := p.Run(ctx, entity, emptyConfig(), model.TierLimits{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(digest.Lines) != DefaultBatchLimit {
		t.Errorf("processed %d items, want %d", len(digest.Lines), DefaultBatchLimit)
	}

	// The remainder is picked up by the next episode.
	digest, err = p.Run(ctx, entity, emptyConfig(), model.TierLimits{})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(digest.Lines) != 5 {
		t.Errorf("second episode processed %d items, want 5", len(digest.Lines))
	}
}

func TestDispatchFailureRecordedNotFatal(t *testing.T) {
	ctx := context.Background()
	p, mem, _, mailer := newTestPipeline(t)
	mailer.fail = true
	seedItems(t, mem, item("m1", "billing@vendor.com", "invoice #42"))

	_, err := p.Run(ctx, entity, emptyConfig(), model.TierLimits{})
	var dispatch *model.DispatchError
	if !errors.As(err, &dispatch) {
		t.Fatalf("want DispatchError, got %v", err)
	}

	// Items stay handled (the digest content was committed first) and
	// the episode records the failure.
	if got := loadItem(t, mem, "m1"); !got.Handled {
		t.Error("item unhandled after dispatch failure")
	}
	episodes, _ := mem.ListByPrefix(ctx, model.EpisodePrefix(entity))
	var ep model.Episode
	if err := json.Unmarshal(episodes[0].Value, &ep); err != nil {
		t.Fatal(err)
	}
	if ep.Status != model.EpisodeDispatchFailed {
		t.Errorf("episode status = %s", ep.Status)
	}
}

func TestRulesFromConfig(t *testing.T) {
	cfg := &model.Config{Settings: map[string]string{
		SettingRules: `[{"name":"a","sender_contains":"x"},{"name":"b","sender_contains":"y"}]`,
	}}
	if got := RulesFromConfig(cfg, 1); len(got) != 1 || got[0].Name != "a" {
		t.Errorf("capped rules = %+v", got)
	}
	if got := RulesFromConfig(&model.Config{Settings: map[string]string{SettingRules: "not json"}}, 5); got != nil {
		t.Errorf("malformed rules = %+v, want nil", got)
	}
	if got := RulesFromConfig(nil, 5); got != nil {
		t.Errorf("nil config rules = %+v, want nil", got)
	}
}

func TestRenderDeterministic(t *testing.T) {
	d := &model.Digest{
		Entity: entity,
		Counts: map[string]int{"billing": 1, "calendar": 2},
		Lines: []model.DigestLine{
			{ItemID: "m1", Sender: "a@x", Subject: "invoice", Category: "billing"},
		},
	}
	subject, body := Render(d)
	if !strings.Contains(subject, "1 new message") {
		t.Errorf("subject = %q", subject)
	}
	// Category summary is sorted for stable output.
	if !strings.Contains(body, "billing: 1\ncalendar: 2") {
		t.Errorf("body = %q", body)
	}
}
