package etl

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"civimetre/config"
	"civimetre/fetch"
	"civimetre/models"
	"civimetre/storage"
)

// Archiver persists a raw upstream payload before normalization. Nil is
// allowed everywhere an Archiver is taken; archiving is best effort and
// never fails a run.
type Archiver interface {
	ArchiveSnapshot(ctx context.Context, dataset string, payload []byte) (string, error)
}

// Freshness reports the upstream catalog's last-updated time so an
// incremental run can skip a dataset the portal has not touched.
type Freshness interface {
	LastUpdated(ctx context.Context, catalogURL string) (time.Time, error)
}

// IngestStore is the write slice of the store the dataset pipelines use.
type IngestStore interface {
	UpsertPermits(permits []models.Permit) (int, error)
	UpsertContracts(contracts []models.Contract) (int, error)
	UpsertServiceRequests(reqs []models.ServiceRequest) (int, error)
	UpsertPromises(promises []models.Promise) (int, error)
}

func archive(ctx context.Context, archiver Archiver, dataset string, records []fetch.RawRecord) {
	if archiver == nil || len(records) == 0 {
		return
	}
	payload, err := json.Marshal(records)
	if err != nil {
		log.Printf("etl: marshal snapshot for %s: %v", dataset, err)
		return
	}
	key, err := archiver.ArchiveSnapshot(ctx, dataset, payload)
	if err != nil {
		log.Printf("etl: archive snapshot for %s: %v", dataset, err)
		return
	}
	log.Printf("etl: archived %s snapshot to %s", dataset, key)
}

// skipFresh decides whether an incremental run can skip the dataset
// outright because the portal's catalog page shows no update since the
// watermark. Any probe failure means "do not skip".
func skipFresh(ctx context.Context, probe Freshness, catalogURL string, mode models.RunMode, since time.Time) bool {
	if probe == nil || catalogURL == "" || mode != models.ModeIncremental || since.IsZero() {
		return false
	}
	updated, err := probe.LastUpdated(ctx, catalogURL)
	if err != nil {
		log.Printf("etl: catalog probe failed for %s: %v", catalogURL, err)
		return false
	}
	return !updated.After(since)
}

// PermitsPipeline ingests building permit applications.
type PermitsPipeline struct {
	fetcher  *fetch.PermitFetcher
	cfg      *config.DatasetConfig
	store    IngestStore
	archiver Archiver
	probe    Freshness
}

func NewPermitsPipeline(client *fetch.CKANClient, cfg *config.DatasetConfig, store IngestStore, archiver Archiver, probe Freshness) *PermitsPipeline {
	return &PermitsPipeline{
		fetcher:  fetch.NewPermitFetcher(client, cfg),
		cfg:      cfg,
		store:    store,
		archiver: archiver,
		probe:    probe,
	}
}

func (p *PermitsPipeline) Name() string     { return "permits" }
func (p *PermitsPipeline) Searchable() bool { return p.cfg.Searchable }

func (p *PermitsPipeline) Run(ctx context.Context, mode models.RunMode, since time.Time) (PipelineResult, error) {
	if skipFresh(ctx, p.probe, p.cfg.CatalogURL, mode, since) {
		return PipelineResult{Output: "up to date, skipped"}, nil
	}
	records, err := p.fetcher.Fetch(ctx, mode, since)
	if err != nil {
		return PipelineResult{}, fmt.Errorf("fetch permits: %w", err)
	}
	archive(ctx, p.archiver, p.Name(), records)
	permits := fetch.NormalizePermits(records)
	upserted, err := p.store.UpsertPermits(permits)
	if err != nil {
		return PipelineResult{Fetched: len(records)}, fmt.Errorf("upsert permits: %w", err)
	}
	return PipelineResult{
		Fetched:  len(records),
		Upserted: upserted,
		Output:   fmt.Sprintf("%d fetched, %d upserted", len(records), upserted),
	}, nil
}

// ContractsPipeline ingests municipal contract awards.
type ContractsPipeline struct {
	fetcher  *fetch.ContractFetcher
	cfg      *config.DatasetConfig
	store    IngestStore
	archiver Archiver
	probe    Freshness
}

func NewContractsPipeline(client *fetch.CKANClient, cfg *config.DatasetConfig, store IngestStore, archiver Archiver, probe Freshness) *ContractsPipeline {
	return &ContractsPipeline{
		fetcher:  fetch.NewContractFetcher(client, cfg),
		cfg:      cfg,
		store:    store,
		archiver: archiver,
		probe:    probe,
	}
}

func (p *ContractsPipeline) Name() string     { return "contracts" }
func (p *ContractsPipeline) Searchable() bool { return p.cfg.Searchable }

func (p *ContractsPipeline) Run(ctx context.Context, mode models.RunMode, since time.Time) (PipelineResult, error) {
	if skipFresh(ctx, p.probe, p.cfg.CatalogURL, mode, since) {
		return PipelineResult{Output: "up to date, skipped"}, nil
	}
	records, err := p.fetcher.Fetch(ctx, mode, since)
	if err != nil {
		return PipelineResult{}, fmt.Errorf("fetch contracts: %w", err)
	}
	archive(ctx, p.archiver, p.Name(), records)
	contracts := fetch.NormalizeContracts(records)
	upserted, err := p.store.UpsertContracts(contracts)
	if err != nil {
		return PipelineResult{Fetched: len(records)}, fmt.Errorf("upsert contracts: %w", err)
	}
	return PipelineResult{
		Fetched:  len(records),
		Upserted: upserted,
		Output:   fmt.Sprintf("%d fetched, %d upserted", len(records), upserted),
	}, nil
}

// RequestsPipeline ingests 311 service requests.
type RequestsPipeline struct {
	fetcher  *fetch.RequestFetcher
	cfg      *config.DatasetConfig
	store    IngestStore
	archiver Archiver
	probe    Freshness
}

func NewRequestsPipeline(client *fetch.CKANClient, cfg *config.DatasetConfig, store IngestStore, archiver Archiver, probe Freshness) *RequestsPipeline {
	return &RequestsPipeline{
		fetcher:  fetch.NewRequestFetcher(client, cfg),
		cfg:      cfg,
		store:    store,
		archiver: archiver,
		probe:    probe,
	}
}

func (p *RequestsPipeline) Name() string     { return "requests311" }
func (p *RequestsPipeline) Searchable() bool { return p.cfg.Searchable }

func (p *RequestsPipeline) Run(ctx context.Context, mode models.RunMode, since time.Time) (PipelineResult, error) {
	if skipFresh(ctx, p.probe, p.cfg.CatalogURL, mode, since) {
		return PipelineResult{Output: "up to date, skipped"}, nil
	}
	records, err := p.fetcher.Fetch(ctx, mode, since)
	if err != nil {
		return PipelineResult{}, fmt.Errorf("fetch 311 requests: %w", err)
	}
	archive(ctx, p.archiver, p.Name(), records)
	reqs := fetch.NormalizeServiceRequests(records)
	upserted, err := p.store.UpsertServiceRequests(reqs)
	if err != nil {
		return PipelineResult{Fetched: len(records)}, fmt.Errorf("upsert 311 requests: %w", err)
	}
	return PipelineResult{
		Fetched:  len(records),
		Upserted: upserted,
		Output:   fmt.Sprintf("%d fetched, %d upserted", len(records), upserted),
	}, nil
}

// PromisesPipeline loads the curated promise seed file. The seed is the
// source of truth for promise definitions; live status updates come from
// the evaluation worker, not from here.
type PromisesPipeline struct {
	seedPath string
	store    IngestStore
}

func NewPromisesPipeline(seedPath string, store IngestStore) *PromisesPipeline {
	return &PromisesPipeline{seedPath: seedPath, store: store}
}

func (p *PromisesPipeline) Name() string     { return "promises" }
func (p *PromisesPipeline) Searchable() bool { return false }

func (p *PromisesPipeline) Run(ctx context.Context, mode models.RunMode, since time.Time) (PipelineResult, error) {
	promises, err := fetch.LoadPromiseSeed(p.seedPath)
	if err != nil {
		return PipelineResult{}, fmt.Errorf("load promise seed: %w", err)
	}
	upserted, err := p.store.UpsertPromises(promises)
	if err != nil {
		return PipelineResult{Fetched: len(promises)}, fmt.Errorf("upsert promises: %w", err)
	}
	return PipelineResult{
		Fetched:  len(promises),
		Upserted: upserted,
		Output:   fmt.Sprintf("%d promises seeded", upserted),
	}, nil
}

// BuildPipelines assembles the standard pipeline set in execution order
// from the loaded configuration. Datasets absent from the config are
// skipped so a deployment can run a subset.
func BuildPipelines(cfg *config.Config, store *storage.SQLiteStore, client *fetch.CKANClient, archiver Archiver, probe Freshness) []Pipeline {
	var pipelines []Pipeline
	if dc, ok := cfg.Datasets["permits"]; ok {
		pipelines = append(pipelines, NewPermitsPipeline(client, dc, store, archiver, probe))
	}
	if dc, ok := cfg.Datasets["contracts"]; ok {
		pipelines = append(pipelines, NewContractsPipeline(client, dc, store, archiver, probe))
	}
	if dc, ok := cfg.Datasets["requests311"]; ok {
		pipelines = append(pipelines, NewRequestsPipeline(client, dc, store, archiver, probe))
	}
	if _, ok := cfg.Datasets["promises"]; ok {
		pipelines = append(pipelines, NewPromisesPipeline(cfg.PromisesSeed, store))
	}
	return pipelines
}
