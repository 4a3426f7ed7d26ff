package models

import "time"

// Contract is a normalized procurement contract row keyed by the upstream
// contract number. Amount is in dollars.
type Contract struct {
	ExternalID  string     `json:"external_id" db:"external_id"`
	Borough     string     `json:"borough" db:"borough"`
	Supplier    string     `json:"supplier" db:"supplier"`
	Description string     `json:"description" db:"description"`
	Amount      float64    `json:"amount" db:"amount"`
	SignedDate  *time.Time `json:"signed_date" db:"signed_date"`
	Category    string     `json:"category" db:"category"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}
