package workers

import (
	"context"
	"log"
	"time"

	"civimetre/models"
)

const mirrorBatchSize = 200

// MirrorSource is the local-store slice the mirror worker drains.
type MirrorSource interface {
	UnsyncedPermits(limit int) ([]models.Permit, error)
	UnsyncedContracts(limit int) ([]models.Contract, error)
	UnsyncedServiceRequests(limit int) ([]models.ServiceRequest, error)
	UnsyncedPromises(limit int) ([]models.Promise, error)
	MarkSynced(table string, ids []string) error
}

// MirrorSink receives mirrored rows. Satisfied by *storage.PostgresStore.
type MirrorSink interface {
	MirrorPermit(ctx context.Context, p *models.Permit) error
	MirrorContract(ctx context.Context, c *models.Contract) error
	MirrorServiceRequest(ctx context.Context, r *models.ServiceRequest) error
	MirrorPromise(ctx context.Context, p *models.Promise) error
}

// MirrorWorker pushes unsynced local rows to the Postgres mirror. The
// local store stays the source of truth; a row's synced flag flips only
// after the mirror accepted it, so a crashed push is retried next cycle.
type MirrorWorker struct {
	source   MirrorSource
	sink     MirrorSink
	interval time.Duration
}

func NewMirrorWorker(source MirrorSource, sink MirrorSink, interval time.Duration) *MirrorWorker {
	return &MirrorWorker{source: source, sink: sink, interval: interval}
}

// Run loops until ctx is done, draining one batch per table per tick.
func (w *MirrorWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Cycle(ctx); err != nil {
				log.Printf("mirror: cycle failed: %v", err)
			}
		}
	}
}

// Cycle performs one mirror pass over all tables.
func (w *MirrorWorker) Cycle(ctx context.Context) error {
	if err := w.mirrorPermits(ctx); err != nil {
		return err
	}
	if err := w.mirrorContracts(ctx); err != nil {
		return err
	}
	if err := w.mirrorServiceRequests(ctx); err != nil {
		return err
	}
	return w.mirrorPromises(ctx)
}

func (w *MirrorWorker) mirrorPermits(ctx context.Context) error {
	permits, err := w.source.UnsyncedPermits(mirrorBatchSize)
	if err != nil {
		return err
	}
	var synced []string
	for i := range permits {
		if err := w.sink.MirrorPermit(ctx, &permits[i]); err != nil {
			log.Printf("mirror: permit %s: %v", permits[i].ExternalID, err)
			continue
		}
		synced = append(synced, permits[i].ExternalID)
	}
	if len(synced) == 0 {
		return nil
	}
	return w.source.MarkSynced("permits", synced)
}

func (w *MirrorWorker) mirrorContracts(ctx context.Context) error {
	contracts, err := w.source.UnsyncedContracts(mirrorBatchSize)
	if err != nil {
		return err
	}
	var synced []string
	for i := range contracts {
		if err := w.sink.MirrorContract(ctx, &contracts[i]); err != nil {
			log.Printf("mirror: contract %s: %v", contracts[i].ExternalID, err)
			continue
		}
		synced = append(synced, contracts[i].ExternalID)
	}
	if len(synced) == 0 {
		return nil
	}
	return w.source.MarkSynced("contracts", synced)
}

func (w *MirrorWorker) mirrorServiceRequests(ctx context.Context) error {
	reqs, err := w.source.UnsyncedServiceRequests(mirrorBatchSize)
	if err != nil {
		return err
	}
	var synced []string
	for i := range reqs {
		if err := w.sink.MirrorServiceRequest(ctx, &reqs[i]); err != nil {
			log.Printf("mirror: service request %s: %v", reqs[i].ExternalID, err)
			continue
		}
		synced = append(synced, reqs[i].ExternalID)
	}
	if len(synced) == 0 {
		return nil
	}
	return w.source.MarkSynced("service_requests", synced)
}

func (w *MirrorWorker) mirrorPromises(ctx context.Context) error {
	promises, err := w.source.UnsyncedPromises(mirrorBatchSize)
	if err != nil {
		return err
	}
	var synced []string
	for i := range promises {
		if err := w.sink.MirrorPromise(ctx, &promises[i]); err != nil {
			log.Printf("mirror: promise %s: %v", promises[i].ID, err)
			continue
		}
		synced = append(synced, promises[i].ID)
	}
	if len(synced) == 0 {
		return nil
	}
	return w.source.MarkSynced("promises", synced)
}
