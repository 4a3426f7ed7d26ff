package scoring

import (
	"errors"
	"fmt"
	"sort"

	"civimetre/jurisdiction"
	"civimetre/models"
)

// ErrNoDataForYear signals a year with zero qualifying records; callers
// own the fallback policy (typically retrying with the prior year).
var ErrNoDataForYear = errors.New("no data for year")

// Reader is the slice of the store the engine needs. The engine holds no
// state of its own: every result is recomputable from current rows plus
// the jurisdiction config.
type Reader interface {
	PermitsForYear(year int) ([]models.Permit, error)
	PermitYearTotals() ([]models.YearTotal, error)
	ContractsForYear(year int) ([]models.Contract, error)
}

type Engine struct {
	store Reader
	cfg   *jurisdiction.Config
}

func NewEngine(store Reader, cfg *jurisdiction.Config) *Engine {
	return &Engine{store: store, cfg: cfg}
}

// BoroughPermitStats computes per-borough processing statistics for one
// year.
func (e *Engine) BoroughPermitStats(year int) (map[string]models.PermitStats, error) {
	permits, err := e.store.PermitsForYear(year)
	if err != nil {
		return nil, err
	}
	if len(permits) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrNoDataForYear, year)
	}

	byBorough := make(map[string][]models.Permit)
	for _, p := range permits {
		if p.Borough == "" {
			continue
		}
		byBorough[p.Borough] = append(byBorough[p.Borough], p)
	}

	target := e.cfg.Targets.PermitTargetDays
	stats := make(map[string]models.PermitStats, len(byBorough))
	for borough, rows := range byBorough {
		issued := 0
		var days []int
		for _, p := range rows {
			if p.IssueDate == nil {
				continue
			}
			issued++
			if p.ProcessingDays != nil {
				days = append(days, *p.ProcessingDays)
			}
		}

		stats[borough] = models.PermitStats{
			Borough:          borough,
			Year:             year,
			TotalPermits:     len(rows),
			PermitsIssued:    issued,
			PermitsPending:   len(rows) - issued,
			MedianDays:       median(days),
			AvgDays:          mean(days),
			P90Days:          p90(days),
			PctWithinTarget:  pctWithin(days, target),
			PctWithin120Days: pctWithin(days, 120),
		}
	}

	return stats, nil
}

// BoroughScores ranks boroughs best to worst for one year. Lower median
// processing time scores better; ties break on borough name so the
// ordering is deterministic.
func (e *Engine) BoroughScores(year int) ([]models.BoroughScore, error) {
	stats, err := e.BoroughPermitStats(year)
	if err != nil {
		return nil, err
	}

	scores := make([]models.BoroughScore, 0, len(stats))
	for borough, st := range stats {
		scores = append(scores, models.BoroughScore{
			Borough: borough,
			Score:   st.MedianDays,
			Grade:   gradeFor(st.MedianDays, st.PctWithinTarget, e.cfg.Targets.PlusGradePct),
		})
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score < scores[j].Score
		}
		return scores[i].Borough < scores[j].Borough
	})
	for i := range scores {
		scores[i].Rank = i + 1
	}

	return scores, nil
}

// CitySummary rolls the year up city-wide. TrendVsLastYear is
// median(year) - median(year-1); it stays zero when the prior year has no
// data.
func (e *Engine) CitySummary(year int) (*models.CitySummary, error) {
	permits, err := e.store.PermitsForYear(year)
	if err != nil {
		return nil, err
	}
	if len(permits) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrNoDataForYear, year)
	}

	days := processingDays(permits)
	summary := &models.CitySummary{
		Year:            year,
		MedianDays:      median(days),
		PctWithinTarget: pctWithin(days, e.cfg.Targets.PermitTargetDays),
	}

	if prior, err := e.store.PermitsForYear(year - 1); err == nil && len(prior) > 0 {
		priorDays := processingDays(prior)
		if len(priorDays) > 0 {
			summary.TrendVsLastYear = summary.MedianDays - median(priorDays)
		}
	}

	scores, err := e.BoroughScores(year)
	if err != nil {
		return nil, err
	}
	if len(scores) > 0 {
		summary.BestBorough = scores[0].Borough
		summary.WorstBorough = scores[len(scores)-1].Borough
	}

	return summary, nil
}

func processingDays(permits []models.Permit) []int {
	var days []int
	for _, p := range permits {
		if p.IssueDate != nil && p.ProcessingDays != nil {
			days = append(days, *p.ProcessingDays)
		}
	}
	return days
}
