package models

// BoroughScore is a derived ranking row. It is recomputed from normalized
// permits on demand and never persisted as a source of truth.
type BoroughScore struct {
	Borough string  `json:"borough"`
	Score   float64 `json:"score"`
	Grade   string  `json:"grade"`
	Rank    int     `json:"rank"`
}

// PermitStats holds per-borough processing statistics for one year.
type PermitStats struct {
	Borough          string  `json:"borough"`
	Year             int     `json:"year"`
	TotalPermits     int     `json:"total_permits"`
	PermitsIssued    int     `json:"permits_issued"`
	PermitsPending   int     `json:"permits_pending"`
	MedianDays       float64 `json:"median_processing_days"`
	AvgDays          float64 `json:"avg_processing_days"`
	P90Days          float64 `json:"p90_processing_days"`
	PctWithinTarget  float64 `json:"pct_within_target"`
	PctWithin120Days float64 `json:"pct_within_120_days"`
}

// CitySummary is the city-wide rollup for one year. TrendVsLastYear is
// median(year) - median(year-1) in days; negative means improvement.
type CitySummary struct {
	Year            int     `json:"year"`
	MedianDays      float64 `json:"median_processing_days"`
	PctWithinTarget float64 `json:"pct_within_target"`
	TrendVsLastYear float64 `json:"trend_vs_last_year"`
	BestBorough     string  `json:"best_borough"`
	WorstBorough    string  `json:"worst_borough"`
}

// YearTotal is one point in a year-over-year trend series.
type YearTotal struct {
	Year      int     `json:"year"`
	Total     int     `json:"total"`
	PctChange float64 `json:"pct_change"`
}
