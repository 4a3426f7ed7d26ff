package scoring

// gradeFor maps a borough's median processing days to a letter grade.
// The "+" modifier rewards consistency: most permits landing within the
// target window, not just a good median.
func gradeFor(medianDays, pctWithinTarget, plusPct float64) string {
	var grade string
	switch {
	case medianDays <= 45:
		grade = "A"
	case medianDays <= 60:
		grade = "B"
	case medianDays <= 75:
		grade = "C"
	case medianDays <= 90:
		grade = "D"
	default:
		return "F"
	}

	if pctWithinTarget >= plusPct {
		grade += "+"
	}
	return grade
}
