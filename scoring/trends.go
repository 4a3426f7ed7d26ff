package scoring

import "civimetre/models"

// Trends returns the yearly permit totals with percent change between
// consecutive years, ascending, one point per year that has records.
// Percent change is only computed when the prior total is non-zero.
func (e *Engine) Trends() ([]models.YearTotal, error) {
	totals, err := e.store.PermitYearTotals()
	if err != nil {
		return nil, err
	}

	for i := range totals {
		if i == 0 {
			continue
		}
		prev := totals[i-1].Total
		if prev != 0 {
			totals[i].PctChange = (float64(totals[i].Total) - float64(prev)) / float64(prev) * 100
		}
	}

	return totals, nil
}

// TrendSeries exposes the trend as a restartable pull sequence for chart
// consumers that page through years.
func (e *Engine) TrendSeries() (func(yield func(models.YearTotal) bool), error) {
	totals, err := e.Trends()
	if err != nil {
		return nil, err
	}
	return func(yield func(models.YearTotal) bool) {
		for _, t := range totals {
			if !yield(t) {
				return
			}
		}
	}, nil
}
