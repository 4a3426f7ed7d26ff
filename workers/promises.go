package workers

import (
	"context"
	"log"
	"time"

	"civimetre/models"
)

// Measurement produces the current value for one auto-trackable promise,
// in the same unit as the promise's target value.
type Measurement func(ctx context.Context) (float64, error)

// PromiseStore is the store slice the evaluator needs.
type PromiseStore interface {
	AutoTrackablePromises() ([]models.Promise, error)
	UpdatePromiseStatus(id string, status models.PromiseStatus, currentValue float64) error
}

// PromiseEvaluator periodically re-derives the status of auto-trackable
// promises from measured data. Promises without a registered measurement
// keep their seeded status.
type PromiseEvaluator struct {
	store    PromiseStore
	measures map[string]Measurement
	interval time.Duration
	clock    func() time.Time
}

func NewPromiseEvaluator(store PromiseStore, measures map[string]Measurement, interval time.Duration) *PromiseEvaluator {
	return &PromiseEvaluator{
		store:    store,
		measures: measures,
		interval: interval,
		clock:    time.Now,
	}
}

// Run loops until ctx is done, with one evaluation pass up front so a
// fresh deployment does not wait a full interval for first statuses.
func (e *PromiseEvaluator) Run(ctx context.Context) {
	if err := e.EvaluateAll(ctx); err != nil {
		log.Printf("promises: evaluation failed: %v", err)
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.EvaluateAll(ctx); err != nil {
				log.Printf("promises: evaluation failed: %v", err)
			}
		}
	}
}

// EvaluateAll measures and re-statuses every auto-trackable promise.
func (e *PromiseEvaluator) EvaluateAll(ctx context.Context) error {
	promises, err := e.store.AutoTrackablePromises()
	if err != nil {
		return err
	}
	now := e.clock()
	for _, p := range promises {
		measure, ok := e.measures[p.ID]
		if !ok {
			continue
		}
		value, err := measure(ctx)
		if err != nil {
			log.Printf("promises: measure %s: %v", p.ID, err)
			continue
		}
		status := statusFor(&p, value, now)
		if status == p.Status && value == p.CurrentValue {
			continue
		}
		if err := e.store.UpdatePromiseStatus(p.ID, status, value); err != nil {
			log.Printf("promises: update %s: %v", p.ID, err)
			continue
		}
		log.Printf("promises: %s is now %s (%.1f of %.1f)", p.ID, status, value, p.TargetValue)
	}
	return nil
}

// statusFor derives a status from the measured value. A promise past its
// target date is settled: broken, or partially met when at least three
// quarters of the way there.
func statusFor(p *models.Promise, value float64, now time.Time) models.PromiseStatus {
	if p.TargetValue > 0 && value >= p.TargetValue {
		return models.PromiseCompleted
	}
	if p.TargetDate != nil && now.After(*p.TargetDate) {
		if p.TargetValue > 0 && value >= 0.75*p.TargetValue {
			return models.PromisePartiallyMet
		}
		return models.PromiseBroken
	}
	if value > 0 {
		return models.PromiseInProgress
	}
	return models.PromiseNotStarted
}
