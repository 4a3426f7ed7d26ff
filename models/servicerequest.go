package models

import "time"

// ServiceRequest is a normalized 311 request row keyed by the upstream
// request number.
type ServiceRequest struct {
	ExternalID   string     `json:"external_id" db:"external_id"`
	Borough      string     `json:"borough" db:"borough"`
	Category     string     `json:"category" db:"category"`
	Channel      string     `json:"channel" db:"channel"`
	Status       string     `json:"status" db:"status"`
	OpenedDate   *time.Time `json:"opened_date" db:"opened_date"`
	ClosedDate   *time.Time `json:"closed_date" db:"closed_date"`
	DurationDays *int       `json:"duration_days" db:"duration_days"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}
