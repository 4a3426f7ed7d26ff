package scheduler

import (
	"context"
	"testing"

	"civimetre/etl"
	"civimetre/models"
)

type fakeTrigger struct {
	err     error
	dataset string
	mode    models.RunMode
	calls   int
}

func (f *fakeTrigger) Trigger(ctx context.Context, dataset string, mode models.RunMode) (*etl.TriggerResult, error) {
	f.calls++
	f.dataset = dataset
	f.mode = mode
	if f.err != nil {
		return nil, f.err
	}
	return &etl.TriggerResult{OK: true, Mode: mode}, nil
}

func TestRunAll_TriggersIncrementalAll(t *testing.T) {
	trigger := &fakeTrigger{}
	s := New(trigger)

	s.runAll()

	if trigger.calls != 1 {
		t.Fatalf("expected 1 trigger, got %d", trigger.calls)
	}
	if trigger.dataset != etl.DatasetAll || trigger.mode != models.ModeIncremental {
		t.Fatalf("scheduled runs must be incremental all, got %s/%s", trigger.dataset, trigger.mode)
	}
}

func TestRunAll_ToleratesRateLimit(t *testing.T) {
	trigger := &fakeTrigger{err: etl.ErrRateLimited}
	s := New(trigger)

	// Must not panic or retry; the next cron tick covers it.
	s.runAll()
	if trigger.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", trigger.calls)
	}
}

func TestStart_RejectsBadSpec(t *testing.T) {
	s := New(&fakeTrigger{})
	if err := s.Start("not a cron spec"); err == nil {
		t.Fatal("expected error for malformed cron spec")
	}
}

func TestStart_EmptySpecDisables(t *testing.T) {
	s := New(&fakeTrigger{})
	if err := s.Start(""); err != nil {
		t.Fatalf("empty spec should be a no-op, got %v", err)
	}
}
