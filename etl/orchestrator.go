package etl

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"civimetre/models"
)

const (
	// DatasetAll runs every registered pipeline sequentially.
	DatasetAll = "all"

	incrementalTimeout = 5 * time.Minute
	fullTimeout        = 15 * time.Minute

	// maxOutputLen bounds the diagnostic captured per dataset.
	maxOutputLen = 2000
)

var (
	ErrUnknownDataset = errors.New("unknown dataset")
	ErrInvalidMode    = errors.New("invalid mode")
)

// PipelineResult is what a dataset pipeline reports on success.
type PipelineResult struct {
	Fetched  int
	Upserted int
	Output   string
}

// Pipeline is one dataset's fetch/normalize/upsert unit. since is the
// dataset's watermark (zero when it has never synced); the orchestrator
// owns watermark persistence.
type Pipeline interface {
	Name() string
	Searchable() bool
	Run(ctx context.Context, mode models.RunMode, since time.Time) (PipelineResult, error)
}

// RunStore is the bookkeeping slice of the store the orchestrator needs.
type RunStore interface {
	Watermark(dataset string) (time.Time, error)
	SetWatermark(dataset string, t time.Time) error
	CreateRun(run *models.ETLRun) (int64, error)
	UpdateRun(run *models.ETLRun) error
	Log(runID *int64, level models.LogLevel, message, dataset string) error
	RebuildSearchIndex(dataset string) error
}

// Invalidator tells the downstream cache which views went stale. The
// rendering layer owns what invalidation means.
type Invalidator interface {
	Invalidate(path string)
}

// NoopInvalidator is used when no cache collaborator is wired.
type NoopInvalidator struct{}

func (NoopInvalidator) Invalidate(string) {}

// Outcome is one dataset's result inside a trigger response.
type Outcome struct {
	OK     bool   `json:"ok"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// TriggerResult is the aggregate response for one accepted trigger.
type TriggerResult struct {
	OK      bool               `json:"ok"`
	Mode    models.RunMode     `json:"mode"`
	Results map[string]Outcome `json:"results"`
}

// viewsByDataset maps each dataset to the cached views it feeds.
var viewsByDataset = map[string][]string{
	"permits":     {"/", "/permits", "/scores"},
	"contracts":   {"/", "/contracts"},
	"requests311": {"/requests"},
	"promises":    {"/", "/promises"},
}

// Orchestrator runs dataset pipelines under the trigger protocol:
// rate-limited acceptance, sequential execution in a fixed order,
// per-dataset failure isolation, then index rebuild and cache
// invalidation.
type Orchestrator struct {
	store       RunStore
	gate        *TriggerGate
	pipelines   []Pipeline // fixed execution order
	invalidator Invalidator
}

func NewOrchestrator(store RunStore, gate *TriggerGate, pipelines []Pipeline, invalidator Invalidator) *Orchestrator {
	if invalidator == nil {
		invalidator = NoopInvalidator{}
	}
	return &Orchestrator{
		store:       store,
		gate:        gate,
		pipelines:   pipelines,
		invalidator: invalidator,
	}
}

// Datasets returns the valid dataset names in execution order.
func (o *Orchestrator) Datasets() []string {
	names := make([]string, 0, len(o.pipelines))
	for _, p := range o.pipelines {
		names = append(names, p.Name())
	}
	return names
}

func (o *Orchestrator) pipelineByName(name string) Pipeline {
	for _, p := range o.pipelines {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// Trigger validates and executes one trigger request. Validation happens
// before the gate so a malformed request does not burn the cooldown.
func (o *Orchestrator) Trigger(ctx context.Context, dataset string, mode models.RunMode) (*TriggerResult, error) {
	if mode == "" {
		mode = models.ModeIncremental
	}
	if mode != models.ModeIncremental && mode != models.ModeFull {
		return nil, fmt.Errorf("%w: %q (valid: incremental, full)", ErrInvalidMode, mode)
	}

	var selected []Pipeline
	if dataset == DatasetAll {
		selected = o.pipelines
	} else {
		p := o.pipelineByName(dataset)
		if p == nil {
			return nil, fmt.Errorf("%w: %q (valid: %s, all)", ErrUnknownDataset, dataset, strings.Join(o.Datasets(), ", "))
		}
		selected = []Pipeline{p}
	}

	if err := o.gate.TryAcquire(); err != nil {
		return nil, err
	}
	defer o.gate.Release()

	triggerID := uuid.NewString()
	log.Printf("etl: trigger %s accepted (dataset=%s mode=%s)", triggerID, dataset, mode)

	result := &TriggerResult{OK: true, Mode: mode, Results: make(map[string]Outcome)}
	var rebuilt []string

	for _, p := range selected {
		outcome := o.runPipeline(ctx, triggerID, p, mode)
		result.Results[p.Name()] = outcome
		if !outcome.OK {
			result.OK = false
			continue
		}
		if p.Searchable() {
			rebuilt = append(rebuilt, p.Name())
		}
	}

	// One index pass after all pipelines, covering every searchable
	// dataset that ingested successfully. A sibling's failure does not
	// block it.
	sort.Strings(rebuilt)
	for _, name := range rebuilt {
		if err := o.store.RebuildSearchIndex(name); err != nil {
			log.Printf("etl: index rebuild failed for %s: %v", name, err)
			result.OK = false
			outcome := result.Results[name]
			outcome.OK = false
			outcome.Error = truncate("index rebuild: " + err.Error())
			result.Results[name] = outcome
		}
	}

	o.invalidate(result)

	return result, nil
}

func (o *Orchestrator) runPipeline(ctx context.Context, triggerID string, p Pipeline, mode models.RunMode) Outcome {
	timeout := incrementalTimeout
	if mode == models.ModeFull {
		timeout = fullTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	startedAt := time.Now().UTC()
	run := &models.ETLRun{
		TriggerID: triggerID,
		Dataset:   p.Name(),
		Mode:      mode,
		StartedAt: startedAt,
		Status:    models.RunStatusRunning,
	}
	runID, err := o.store.CreateRun(run)
	if err != nil {
		log.Printf("etl: failed to create run record for %s: %v", p.Name(), err)
	}
	run.ID = runID

	since, err := o.store.Watermark(p.Name())
	if err != nil {
		return o.finishRun(run, PipelineResult{}, fmt.Errorf("read watermark: %w", err))
	}

	res, err := p.Run(runCtx, mode, since)
	if err == nil {
		// The watermark records when this successful run began, so the
		// next incremental run re-covers anything published mid-run.
		if wmErr := o.store.SetWatermark(p.Name(), startedAt); wmErr != nil {
			err = fmt.Errorf("persist watermark: %w", wmErr)
		}
	}
	if err != nil && runCtx.Err() == context.DeadlineExceeded {
		err = fmt.Errorf("timed out after %s: %w", timeout, err)
	}

	return o.finishRun(run, res, err)
}

func (o *Orchestrator) finishRun(run *models.ETLRun, res PipelineResult, err error) Outcome {
	now := time.Now().UTC()
	run.FinishedAt = &now
	run.RecordsFetched = res.Fetched
	run.RecordsUpserted = res.Upserted

	var outcome Outcome
	if err != nil {
		run.Status = models.RunStatusFailed
		run.Output = truncate(err.Error())
		outcome = Outcome{OK: false, Error: run.Output}
		o.log(run, models.LogLevelError, fmt.Sprintf("pipeline failed: %v", err))
	} else {
		run.Status = models.RunStatusCompleted
		run.Output = truncate(res.Output)
		outcome = Outcome{OK: true, Output: run.Output}
		o.log(run, models.LogLevelInfo,
			fmt.Sprintf("completed: %d fetched, %d upserted", res.Fetched, res.Upserted))
	}

	if updateErr := o.store.UpdateRun(run); updateErr != nil {
		log.Printf("etl: failed to update run %d: %v", run.ID, updateErr)
	}
	return outcome
}

func (o *Orchestrator) invalidate(result *TriggerResult) {
	seen := make(map[string]bool)
	var paths []string
	for name, outcome := range result.Results {
		if !outcome.OK {
			continue
		}
		for _, path := range viewsByDataset[name] {
			if !seen[path] {
				seen[path] = true
				paths = append(paths, path)
			}
		}
	}
	sort.Strings(paths)
	for _, path := range paths {
		o.invalidator.Invalidate(path)
	}
}

func (o *Orchestrator) log(run *models.ETLRun, level models.LogLevel, message string) {
	log.Printf("[%s] %s: %s", level, run.Dataset, message)
	if run.ID != 0 {
		o.store.Log(&run.ID, level, message, run.Dataset)
	} else {
		o.store.Log(nil, level, message, run.Dataset)
	}
}

func truncate(s string) string {
	if len(s) <= maxOutputLen {
		return s
	}
	// Cut on a rune boundary so multi-byte diagnostics stay valid UTF-8.
	cut := maxOutputLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…(truncated)"
}
