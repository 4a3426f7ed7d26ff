package models

import "time"

// Permit is a normalized construction permit row. ExternalID is the
// upstream application number and acts as the natural key.
type Permit struct {
	ExternalID       string     `json:"external_id" db:"external_id"`
	PermitID         string     `json:"permit_id" db:"permit_id"`
	ApplicationDate  *time.Time `json:"application_date" db:"application_date"`
	IssueDate        *time.Time `json:"issue_date" db:"issue_date"`
	ProcessingDays   *int       `json:"processing_days" db:"processing_days"`
	Address          string     `json:"address" db:"address"`
	BoroughRaw       string     `json:"borough_raw" db:"borough_raw"`
	Borough          string     `json:"borough" db:"borough"`
	TypeCode         string     `json:"type_code" db:"type_code"`
	TypeDescription  string     `json:"type_description" db:"type_description"`
	BuildingType     string     `json:"building_type" db:"building_type"`
	BuildingCategory string     `json:"building_category" db:"building_category"`
	WorkNature       string     `json:"work_nature" db:"work_nature"`
	HousingUnits     int        `json:"housing_units" db:"housing_units"`
	Latitude         *float64   `json:"latitude" db:"latitude"`
	Longitude        *float64   `json:"longitude" db:"longitude"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}
