package models

import "time"

type PromiseStatus string

const (
	PromiseNotStarted   PromiseStatus = "not_started"
	PromiseInProgress   PromiseStatus = "in_progress"
	PromiseCompleted    PromiseStatus = "completed"
	PromiseBroken       PromiseStatus = "broken"
	PromisePartiallyMet PromiseStatus = "partially_met"
)

// Promise is a tracked campaign commitment. ID is a stable slug assigned
// at seeding time; rows are never deleted, only re-seeded or re-evaluated.
type Promise struct {
	ID            string        `json:"id" db:"id" yaml:"id"`
	Category      string        `json:"category" db:"category" yaml:"category"`
	Borough       string        `json:"borough" db:"borough" yaml:"borough"`
	TextEN        string        `json:"text_en" db:"text_en" yaml:"text_en"`
	TextFR        string        `json:"text_fr" db:"text_fr" yaml:"text_fr"`
	Measurable    bool          `json:"measurable" db:"measurable" yaml:"measurable"`
	TargetValue   float64       `json:"target_value" db:"target_value" yaml:"target_value"`
	TargetDate    *time.Time    `json:"target_date" db:"target_date" yaml:"target_date"`
	CurrentValue  float64       `json:"current_value" db:"current_value" yaml:"current_value"`
	Status        PromiseStatus `json:"status" db:"status" yaml:"status"`
	AutoTrackable bool          `json:"auto_trackable" db:"auto_trackable" yaml:"auto_trackable"`
	First100Days  bool          `json:"first_100_days" db:"first_100_days" yaml:"first_100_days"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at" yaml:"-"`
	UpdatedAt     time.Time     `json:"updated_at" db:"updated_at" yaml:"-"`
}

// ValidPromiseStatus reports whether s is one of the known status values.
func ValidPromiseStatus(s PromiseStatus) bool {
	switch s {
	case PromiseNotStarted, PromiseInProgress, PromiseCompleted, PromiseBroken, PromisePartiallyMet:
		return true
	}
	return false
}
