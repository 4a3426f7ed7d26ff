package scoring

import "sort"

// median uses the standard definition: the average of the two middle
// values for an even count. Input need not be sorted.
func median(days []int) float64 {
	if len(days) == 0 {
		return 0
	}
	sorted := make([]int, len(days))
	copy(sorted, days)
	sort.Ints(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return float64(sorted[mid])
	}
	return float64(sorted[mid-1]+sorted[mid]) / 2
}

func mean(days []int) float64 {
	if len(days) == 0 {
		return 0
	}
	sum := 0
	for _, d := range days {
		sum += d
	}
	return float64(sum) / float64(len(days))
}

// p90 returns the 90th-percentile value by rank index, matching the
// upstream stats computation.
func p90(days []int) float64 {
	if len(days) == 0 {
		return 0
	}
	sorted := make([]int, len(days))
	copy(sorted, days)
	sort.Ints(sorted)

	idx := int(float64(len(sorted)) * 0.9)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return float64(sorted[idx])
}

// pctWithin returns the share of values at or under limit, as a
// percentage.
func pctWithin(days []int, limit int) float64 {
	if len(days) == 0 {
		return 0
	}
	within := 0
	for _, d := range days {
		if d <= limit {
			within++
		}
	}
	return float64(within) / float64(len(days)) * 100
}
