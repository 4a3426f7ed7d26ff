package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

type RunMode string

const (
	ModeIncremental RunMode = "incremental"
	ModeFull        RunMode = "full"
)

// ETLRun is one dataset pipeline execution. TriggerID correlates all runs
// started by the same trigger request.
type ETLRun struct {
	ID              int64      `json:"id" db:"id"`
	TriggerID       string     `json:"trigger_id" db:"trigger_id"`
	Dataset         string     `json:"dataset" db:"dataset"`
	Mode            RunMode    `json:"mode" db:"mode"`
	StartedAt       time.Time  `json:"started_at" db:"started_at"`
	FinishedAt      *time.Time `json:"finished_at" db:"finished_at"`
	Status          RunStatus  `json:"status" db:"status"`
	RecordsFetched  int        `json:"records_fetched" db:"records_fetched"`
	RecordsUpserted int        `json:"records_upserted" db:"records_upserted"`
	Output          string     `json:"output" db:"output"`
}
