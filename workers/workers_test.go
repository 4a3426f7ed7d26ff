package workers

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"civimetre/models"
	"civimetre/storage"
)

type fakeSource struct {
	permits  []models.Permit
	requests []models.ServiceRequest
	promises []models.Promise
	synced   map[string][]string
}

func (f *fakeSource) UnsyncedPermits(limit int) ([]models.Permit, error)  { return f.permits, nil }
func (f *fakeSource) UnsyncedContracts(limit int) ([]models.Contract, error) {
	return nil, nil
}
func (f *fakeSource) UnsyncedServiceRequests(limit int) ([]models.ServiceRequest, error) {
	return f.requests, nil
}
func (f *fakeSource) UnsyncedPromises(limit int) ([]models.Promise, error) {
	return f.promises, nil
}
func (f *fakeSource) MarkSynced(table string, ids []string) error {
	if f.synced == nil {
		f.synced = make(map[string][]string)
	}
	f.synced[table] = append(f.synced[table], ids...)
	return nil
}

type fakeSink struct {
	failPermit map[string]bool
	mirrored   []string
}

func (f *fakeSink) MirrorPermit(ctx context.Context, p *models.Permit) error {
	if f.failPermit[p.ExternalID] {
		return errors.New("connection refused")
	}
	f.mirrored = append(f.mirrored, p.ExternalID)
	return nil
}

func (f *fakeSink) MirrorContract(ctx context.Context, c *models.Contract) error { return nil }

func (f *fakeSink) MirrorServiceRequest(ctx context.Context, r *models.ServiceRequest) error {
	f.mirrored = append(f.mirrored, r.ExternalID)
	return nil
}

func (f *fakeSink) MirrorPromise(ctx context.Context, p *models.Promise) error {
	f.mirrored = append(f.mirrored, p.ID)
	return nil
}

func TestMirrorCycle_MarksOnlyAcceptedRows(t *testing.T) {
	source := &fakeSource{
		permits: []models.Permit{
			{ExternalID: "a"}, {ExternalID: "b"}, {ExternalID: "c"},
		},
	}
	sink := &fakeSink{failPermit: map[string]bool{"b": true}}
	w := NewMirrorWorker(source, sink, time.Minute)

	if err := w.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	got := source.synced["permits"]
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("rejected row must stay unsynced, got %v", got)
	}
}

func TestMirrorCycle_DrainsServiceRequests(t *testing.T) {
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "mirror.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	opened := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	reqs := []models.ServiceRequest{{
		ExternalID: "req-1",
		Borough:    "Verdun",
		Category:   "collecte",
		Status:     "open",
		OpenedDate: &opened,
	}}
	if _, err := store.UpsertServiceRequests(reqs); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	sink := &fakeSink{}
	w := NewMirrorWorker(store, sink, time.Minute)
	if err := w.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	if len(sink.mirrored) != 1 || sink.mirrored[0] != "req-1" {
		t.Fatalf("service request should reach the sink, got %v", sink.mirrored)
	}
	left, err := store.UnsyncedServiceRequests(10)
	if err != nil {
		t.Fatalf("unsynced: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("service request left unsynced after mirror cycle: %d row(s)", len(left))
	}
}

func TestMirrorCycle_Promises(t *testing.T) {
	source := &fakeSource{promises: []models.Promise{{ID: "housing-12500-units"}}}
	sink := &fakeSink{}
	w := NewMirrorWorker(source, sink, time.Minute)

	if err := w.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if got := source.synced["promises"]; len(got) != 1 || got[0] != "housing-12500-units" {
		t.Fatalf("promise should be marked synced by id, got %v", got)
	}
}

type fakePromiseStore struct {
	promises []models.Promise
	updates  map[string]models.PromiseStatus
}

func (f *fakePromiseStore) AutoTrackablePromises() ([]models.Promise, error) {
	return f.promises, nil
}

func (f *fakePromiseStore) UpdatePromiseStatus(id string, status models.PromiseStatus, currentValue float64) error {
	if f.updates == nil {
		f.updates = make(map[string]models.PromiseStatus)
	}
	f.updates[id] = status
	return nil
}

func TestStatusFor(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	future := now.AddDate(1, 0, 0)
	past := now.AddDate(-1, 0, 0)

	cases := []struct {
		name    string
		promise models.Promise
		value   float64
		want    models.PromiseStatus
	}{
		{"target met", models.Promise{TargetValue: 100, TargetDate: &future}, 120, models.PromiseCompleted},
		{"underway", models.Promise{TargetValue: 100, TargetDate: &future}, 40, models.PromiseInProgress},
		{"nothing yet", models.Promise{TargetValue: 100, TargetDate: &future}, 0, models.PromiseNotStarted},
		{"deadline missed", models.Promise{TargetValue: 100, TargetDate: &past}, 40, models.PromiseBroken},
		{"mostly there at deadline", models.Promise{TargetValue: 100, TargetDate: &past}, 80, models.PromisePartiallyMet},
		{"no deadline", models.Promise{TargetValue: 100}, 40, models.PromiseInProgress},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := statusFor(&tc.promise, tc.value, now); got != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestEvaluateAll(t *testing.T) {
	future := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &fakePromiseStore{promises: []models.Promise{
		{ID: "housing-12500-units", TargetValue: 12500, TargetDate: &future, Status: models.PromiseNotStarted, AutoTrackable: true},
		{ID: "vision-zero-plan", Status: models.PromiseNotStarted, AutoTrackable: true},
	}}
	measures := map[string]Measurement{
		"housing-12500-units": func(ctx context.Context) (float64, error) { return 4200, nil },
	}
	e := NewPromiseEvaluator(store, measures, time.Hour)
	e.clock = func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) }

	if err := e.EvaluateAll(context.Background()); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if store.updates["housing-12500-units"] != models.PromiseInProgress {
		t.Fatalf("measured promise should become in_progress, got %s", store.updates["housing-12500-units"])
	}
	if _, touched := store.updates["vision-zero-plan"]; touched {
		t.Fatal("promise without a measurement must keep its seeded status")
	}
}
