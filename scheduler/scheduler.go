package scheduler

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"civimetre/etl"
	"civimetre/models"
)

// Triggerer is the slice of the orchestrator scheduled runs go through.
// Scheduled runs obey the same gate as manual triggers.
type Triggerer interface {
	Trigger(ctx context.Context, dataset string, mode models.RunMode) (*etl.TriggerResult, error)
}

// Scheduler fires unattended incremental runs on a cron spec.
type Scheduler struct {
	cron    *cron.Cron
	trigger Triggerer
	timeout time.Duration
}

func New(trigger Triggerer) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		trigger: trigger,
		timeout: 30 * time.Minute,
	}
}

// Start registers the spec and launches the cron loop. An empty spec
// disables scheduling.
func (s *Scheduler) Start(spec string) error {
	if spec == "" {
		log.Println("scheduler: no cron spec configured, scheduled runs disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(spec, s.runAll); err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("scheduler: incremental runs scheduled (%s)", spec)
	return nil
}

func (s *Scheduler) runAll() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	result, err := s.trigger.Trigger(ctx, etl.DatasetAll, models.ModeIncremental)
	switch {
	case errors.Is(err, etl.ErrRateLimited), errors.Is(err, etl.ErrAlreadyRunning):
		// A manual trigger beat us to it. The next tick will catch up.
		log.Printf("scheduler: skipped scheduled run: %v", err)
	case err != nil:
		log.Printf("scheduler: scheduled run failed: %v", err)
	case !result.OK:
		log.Printf("scheduler: scheduled run finished with failures: %+v", result.Results)
	default:
		log.Println("scheduler: scheduled run completed")
	}
}

// Stop halts the cron loop and waits for an in-flight job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
