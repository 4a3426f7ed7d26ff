package fetch

import (
	"time"

	"civimetre/models"
)

// yearWindow decides which calendar years a run should request.
// Incremental runs cover the watermark year through the current year
// (falling back to the last two years when no watermark exists); full runs
// re-fetch everything since the dataset's floor year.
func yearWindow(mode models.RunMode, since time.Time, yearFloor int, now time.Time) []int {
	current := now.Year()

	start := current - 1
	if mode == models.ModeFull {
		if yearFloor == 0 {
			yearFloor = 1990
		}
		start = yearFloor
	} else if !since.IsZero() {
		start = since.Year()
	}
	if start > current {
		start = current
	}

	years := make([]int, 0, current-start+1)
	for y := start; y <= current; y++ {
		years = append(years, y)
	}
	return years
}

// filterByYear keeps records whose date field starts with the given year,
// for the paginated fallback path that cannot filter server-side.
func filterByYear(records []RawRecord, dateField string, year int) []RawRecord {
	prefix := itoa4(year)
	var out []RawRecord
	for _, r := range records {
		if v := strField(r, dateField); len(v) >= 4 && v[:4] == prefix {
			out = append(out, r)
		}
	}
	return out
}

func itoa4(year int) string {
	return time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC).Format("2006")
}

// Clock lets tests pin "now" for year-window decisions.
type Clock func() time.Time

func defaultClock() time.Time { return time.Now().UTC() }
