package etl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"civimetre/models"
)

type fakeStore struct {
	mu         sync.Mutex
	watermarks map[string]time.Time
	runs       []*models.ETLRun
	rebuilt    []string
	rebuildErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{watermarks: make(map[string]time.Time)}
}

func (s *fakeStore) Watermark(dataset string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watermarks[dataset], nil
}

func (s *fakeStore) SetWatermark(dataset string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watermarks[dataset] = t
	return nil
}

func (s *fakeStore) CreateRun(run *models.ETLRun) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return int64(len(s.runs)), nil
}

func (s *fakeStore) UpdateRun(run *models.ETLRun) error { return nil }

func (s *fakeStore) Log(runID *int64, level models.LogLevel, message, dataset string) error {
	return nil
}

func (s *fakeStore) RebuildSearchIndex(dataset string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rebuildErr != nil {
		return s.rebuildErr
	}
	s.rebuilt = append(s.rebuilt, dataset)
	return nil
}

type fakePipeline struct {
	name       string
	searchable bool
	err        error
	result     PipelineResult
	calls      int
	lastSince  time.Time
}

func (p *fakePipeline) Name() string     { return p.name }
func (p *fakePipeline) Searchable() bool { return p.searchable }

func (p *fakePipeline) Run(ctx context.Context, mode models.RunMode, since time.Time) (PipelineResult, error) {
	p.calls++
	p.lastSince = since
	if p.err != nil {
		return PipelineResult{}, p.err
	}
	return p.result, nil
}

type recordingInvalidator struct {
	paths []string
}

func (r *recordingInvalidator) Invalidate(path string) {
	r.paths = append(r.paths, path)
}

func newTestOrchestrator(store *fakeStore, pipelines ...Pipeline) (*Orchestrator, *recordingInvalidator) {
	inv := &recordingInvalidator{}
	return NewOrchestrator(store, NewTriggerGate(60*time.Second), pipelines, inv), inv
}

func TestTrigger_UnknownDataset(t *testing.T) {
	store := newFakeStore()
	o, _ := newTestOrchestrator(store, &fakePipeline{name: "permits"})

	_, err := o.Trigger(context.Background(), "parking", models.ModeIncremental)
	if !errors.Is(err, ErrUnknownDataset) {
		t.Fatalf("expected ErrUnknownDataset, got %v", err)
	}
	if !strings.Contains(err.Error(), "permits") {
		t.Fatalf("error should list valid datasets: %v", err)
	}

	// A rejected request must not consume the cooldown.
	if _, err := o.Trigger(context.Background(), "permits", models.ModeIncremental); err != nil {
		t.Fatalf("valid trigger after invalid one should pass: %v", err)
	}
}

func TestTrigger_InvalidMode(t *testing.T) {
	store := newFakeStore()
	o, _ := newTestOrchestrator(store, &fakePipeline{name: "permits"})

	if _, err := o.Trigger(context.Background(), "permits", "yearly"); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
}

func TestTrigger_RateLimit(t *testing.T) {
	store := newFakeStore()
	p := &fakePipeline{name: "permits"}
	o, _ := newTestOrchestrator(store, p)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	o.gate.clock = func() time.Time { return now }

	if _, err := o.Trigger(context.Background(), "permits", models.ModeIncremental); err != nil {
		t.Fatalf("first trigger: %v", err)
	}

	now = now.Add(10 * time.Second)
	if _, err := o.Trigger(context.Background(), "permits", models.ModeIncremental); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("trigger 10s later should be rate limited, got %v", err)
	}

	now = now.Add(51 * time.Second) // 61s after the first accept
	if _, err := o.Trigger(context.Background(), "permits", models.ModeIncremental); err != nil {
		t.Fatalf("trigger 61s later should pass: %v", err)
	}
	if p.calls != 2 {
		t.Fatalf("expected 2 pipeline runs, got %d", p.calls)
	}
}

func TestTrigger_RateLimitAfterFailure(t *testing.T) {
	store := newFakeStore()
	p := &fakePipeline{name: "permits", err: errors.New("upstream down")}
	o, _ := newTestOrchestrator(store, p)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	o.gate.clock = func() time.Time { return now }

	res, err := o.Trigger(context.Background(), "permits", models.ModeIncremental)
	if err != nil {
		t.Fatalf("trigger itself should be accepted: %v", err)
	}
	if res.OK {
		t.Fatal("result should report failure")
	}

	// Failed runs still start the cooldown.
	now = now.Add(30 * time.Second)
	if _, err := o.Trigger(context.Background(), "permits", models.ModeIncremental); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limit after failed run, got %v", err)
	}
}

func TestTrigger_AllRunsInOrderAndIsolatesFailure(t *testing.T) {
	store := newFakeStore()
	permits := &fakePipeline{name: "permits", searchable: true,
		result: PipelineResult{Fetched: 10, Upserted: 8, Output: "10 fetched, 8 upserted"}}
	contracts := &fakePipeline{name: "contracts", searchable: true, err: errors.New("boom")}
	promises := &fakePipeline{name: "promises"}
	o, _ := newTestOrchestrator(store, permits, contracts, promises)

	res, err := o.Trigger(context.Background(), DatasetAll, models.ModeIncremental)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if res.OK {
		t.Fatal("aggregate should not be OK when one dataset fails")
	}
	if !res.Results["permits"].OK || !res.Results["promises"].OK {
		t.Fatalf("siblings of a failed dataset should still succeed: %+v", res.Results)
	}
	if res.Results["contracts"].OK || !strings.Contains(res.Results["contracts"].Error, "boom") {
		t.Fatalf("failed dataset should carry its diagnostic: %+v", res.Results["contracts"])
	}
	if promises.calls != 1 {
		t.Fatal("pipeline after the failed one should still run")
	}

	// Only the successful searchable dataset gets its index rebuilt.
	if len(store.rebuilt) != 1 || store.rebuilt[0] != "permits" {
		t.Fatalf("expected only permits index rebuild, got %v", store.rebuilt)
	}
}

func TestTrigger_WatermarkOnlyOnSuccess(t *testing.T) {
	store := newFakeStore()
	ok := &fakePipeline{name: "permits"}
	bad := &fakePipeline{name: "contracts", err: errors.New("boom")}
	o, _ := newTestOrchestrator(store, ok, bad)

	if _, err := o.Trigger(context.Background(), DatasetAll, models.ModeFull); err != nil {
		t.Fatalf("trigger: %v", err)
	}

	if wm, _ := store.Watermark("permits"); wm.IsZero() {
		t.Fatal("successful dataset should have a watermark")
	}
	if wm, _ := store.Watermark("contracts"); !wm.IsZero() {
		t.Fatal("failed dataset must not advance its watermark")
	}
}

func TestTrigger_PassesWatermarkToPipeline(t *testing.T) {
	store := newFakeStore()
	since := time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)
	store.SetWatermark("permits", since)
	p := &fakePipeline{name: "permits"}
	o, _ := newTestOrchestrator(store, p)

	if _, err := o.Trigger(context.Background(), "permits", models.ModeIncremental); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if !p.lastSince.Equal(since) {
		t.Fatalf("pipeline got since=%v, want %v", p.lastSince, since)
	}
}

func TestTrigger_InvalidatesViewsForSuccessfulDatasets(t *testing.T) {
	store := newFakeStore()
	permits := &fakePipeline{name: "permits"}
	contracts := &fakePipeline{name: "contracts", err: errors.New("boom")}
	o, inv := newTestOrchestrator(store, permits, contracts)

	if _, err := o.Trigger(context.Background(), DatasetAll, models.ModeIncremental); err != nil {
		t.Fatalf("trigger: %v", err)
	}

	got := strings.Join(inv.paths, ",")
	if got != "/,/permits,/scores" {
		t.Fatalf("expected permit views only, got %q", got)
	}
}

func TestTrigger_IndexRebuildFailureMarksDataset(t *testing.T) {
	store := newFakeStore()
	store.rebuildErr = errors.New("fts locked")
	p := &fakePipeline{name: "permits", searchable: true}
	o, _ := newTestOrchestrator(store, p)

	res, err := o.Trigger(context.Background(), "permits", models.ModeIncremental)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if res.OK || res.Results["permits"].OK {
		t.Fatal("index rebuild failure should surface in the outcome")
	}
	if !strings.Contains(res.Results["permits"].Error, "fts locked") {
		t.Fatalf("unexpected diagnostic: %q", res.Results["permits"].Error)
	}
}

func TestTrigger_RecordsRunsWithSharedTriggerID(t *testing.T) {
	store := newFakeStore()
	o, _ := newTestOrchestrator(store,
		&fakePipeline{name: "permits"}, &fakePipeline{name: "contracts"})

	if _, err := o.Trigger(context.Background(), DatasetAll, models.ModeIncremental); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if len(store.runs) != 2 {
		t.Fatalf("expected 2 run records, got %d", len(store.runs))
	}
	if store.runs[0].TriggerID == "" || store.runs[0].TriggerID != store.runs[1].TriggerID {
		t.Fatalf("runs of one trigger must share a trigger id: %q vs %q",
			store.runs[0].TriggerID, store.runs[1].TriggerID)
	}
	for _, run := range store.runs {
		if run.Status != models.RunStatusCompleted {
			t.Fatalf("run %s should be completed, got %s", run.Dataset, run.Status)
		}
	}
}

func TestTrigger_ConcurrentRunRejected(t *testing.T) {
	store := newFakeStore()
	o, _ := newTestOrchestrator(store, &fakePipeline{name: "permits"})

	if err := o.gate.TryAcquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer o.gate.Release()

	if _, err := o.Trigger(context.Background(), "permits", models.ModeIncremental); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("x", maxOutputLen+50)
	got := truncate(long)
	if len(got) >= len(long) {
		t.Fatal("long output should be truncated")
	}
	if !strings.HasSuffix(got, "(truncated)") {
		t.Fatalf("truncated output should be marked: %q", got[len(got)-20:])
	}
	if truncate("short") != "short" {
		t.Fatal("short output should pass through")
	}
}

func TestTruncate_KeepsValidUTF8(t *testing.T) {
	// é is two bytes; an odd-length prefix forces the cut mid-rune.
	long := "x" + strings.Repeat("é", maxOutputLen)
	got := truncate(long)
	if !utf8.ValidString(got) {
		t.Fatal("truncated diagnostic must stay valid UTF-8")
	}
	if len(got) > maxOutputLen+len("…(truncated)") {
		t.Fatalf("truncation exceeded the cap: %d bytes", len(got))
	}
}

func TestSkipFresh(t *testing.T) {
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	probe := staticFreshness{updated: since.Add(-time.Hour)}

	if !skipFresh(context.Background(), probe, "https://example.org/dataset", models.ModeIncremental, since) {
		t.Fatal("stale catalog should allow skipping")
	}
	if skipFresh(context.Background(), staticFreshness{updated: since.Add(time.Hour)}, "https://example.org/dataset", models.ModeIncremental, since) {
		t.Fatal("fresh catalog must not be skipped")
	}
	if skipFresh(context.Background(), probe, "https://example.org/dataset", models.ModeFull, since) {
		t.Fatal("full runs never skip")
	}
	if skipFresh(context.Background(), probe, "https://example.org/dataset", models.ModeIncremental, time.Time{}) {
		t.Fatal("first sync never skips")
	}
	if skipFresh(context.Background(), failingFreshness{}, "https://example.org/dataset", models.ModeIncremental, since) {
		t.Fatal("probe failure must not skip")
	}
}

type staticFreshness struct {
	updated time.Time
}

func (f staticFreshness) LastUpdated(ctx context.Context, catalogURL string) (time.Time, error) {
	return f.updated, nil
}

type failingFreshness struct{}

func (failingFreshness) LastUpdated(ctx context.Context, catalogURL string) (time.Time, error) {
	return time.Time{}, fmt.Errorf("catalog unreachable")
}
