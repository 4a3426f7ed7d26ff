package scoring

import (
	"errors"
	"testing"
	"time"

	"civimetre/jurisdiction"
	"civimetre/models"
)

type fakeStore struct {
	permits   map[int][]models.Permit
	contracts map[int][]models.Contract
	totals    []models.YearTotal
}

func (f *fakeStore) PermitsForYear(year int) ([]models.Permit, error) {
	return f.permits[year], nil
}

func (f *fakeStore) PermitYearTotals() ([]models.YearTotal, error) {
	return append([]models.YearTotal(nil), f.totals...), nil
}

func (f *fakeStore) ContractsForYear(year int) ([]models.Contract, error) {
	return f.contracts[year], nil
}

func mustConfig(t *testing.T) *jurisdiction.Config {
	t.Helper()
	cfg, err := jurisdiction.Get("montreal")
	if err != nil {
		t.Fatalf("get montreal config: %v", err)
	}
	return cfg
}

func permit(borough string, year int, processingDays int) models.Permit {
	applied := time.Date(year, 3, 1, 0, 0, 0, 0, time.UTC)
	issued := applied.AddDate(0, 0, processingDays)
	return models.Permit{
		Borough:         borough,
		ApplicationDate: &applied,
		IssueDate:       &issued,
		ProcessingDays:  &processingDays,
	}
}

func TestMedian(t *testing.T) {
	if got := median([]int{10, 20, 30, 40}); got != 25 {
		t.Fatalf("median of [10 20 30 40] = %v, want 25", got)
	}
	if got := median([]int{10, 20, 30}); got != 20 {
		t.Fatalf("median of [10 20 30] = %v, want 20", got)
	}
	if got := median(nil); got != 0 {
		t.Fatalf("median of empty = %v, want 0", got)
	}
}

func TestBoroughPermitStats(t *testing.T) {
	store := &fakeStore{permits: map[int][]models.Permit{
		2024: {
			permit("Verdun", 2024, 10),
			permit("Verdun", 2024, 20),
			permit("Verdun", 2024, 30),
			permit("Verdun", 2024, 40),
			permit("Outremont", 2024, 120),
		},
	}}
	engine := NewEngine(store, mustConfig(t))

	stats, err := engine.BoroughPermitStats(2024)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}

	verdun := stats["Verdun"]
	if verdun.MedianDays != 25 {
		t.Fatalf("Verdun median = %v, want 25", verdun.MedianDays)
	}
	if verdun.PctWithinTarget != 100 {
		t.Fatalf("Verdun pct within target = %v, want 100", verdun.PctWithinTarget)
	}
	if verdun.TotalPermits != 4 || verdun.PermitsIssued != 4 || verdun.PermitsPending != 0 {
		t.Fatalf("Verdun counts wrong: %+v", verdun)
	}

	outremont := stats["Outremont"]
	if outremont.PctWithinTarget != 0 {
		t.Fatalf("Outremont pct within 90 days = %v, want 0", outremont.PctWithinTarget)
	}
	if outremont.PctWithin120Days != 100 {
		t.Fatalf("Outremont pct within 120 days = %v, want 100", outremont.PctWithin120Days)
	}
}

func TestBoroughScores_OrderAndTies(t *testing.T) {
	store := &fakeStore{permits: map[int][]models.Permit{
		2024: {
			permit("Verdun", 2024, 30),
			permit("Anjou", 2024, 30),
			permit("Outremont", 2024, 95),
		},
	}}
	engine := NewEngine(store, mustConfig(t))

	scores, err := engine.BoroughScores(2024)
	if err != nil {
		t.Fatalf("scores failed: %v", err)
	}
	if len(scores) != 3 {
		t.Fatalf("expected 3 scores, got %d", len(scores))
	}

	// Anjou and Verdun tie on median; slug order decides.
	if scores[0].Borough != "Anjou" || scores[1].Borough != "Verdun" {
		t.Fatalf("tie order wrong: %s, %s", scores[0].Borough, scores[1].Borough)
	}
	if scores[0].Rank != 1 || scores[1].Rank != 2 || scores[2].Rank != 3 {
		t.Fatalf("ranks wrong: %+v", scores)
	}
	if scores[2].Borough != "Outremont" || scores[2].Grade != "F" {
		t.Fatalf("worst borough wrong: %+v", scores[2])
	}
	if scores[0].Grade != "A+" {
		t.Fatalf("expected A+ for 30-day median with full target compliance, got %s", scores[0].Grade)
	}
}

func TestCitySummary(t *testing.T) {
	store := &fakeStore{permits: map[int][]models.Permit{
		2023: {
			permit("Verdun", 2023, 50),
			permit("Verdun", 2023, 70),
		},
		2024: {
			permit("Verdun", 2024, 30),
			permit("Anjou", 2024, 50),
		},
	}}
	engine := NewEngine(store, mustConfig(t))

	summary, err := engine.CitySummary(2024)
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if summary.MedianDays != 40 {
		t.Fatalf("median = %v, want 40", summary.MedianDays)
	}
	// median(2024)=40, median(2023)=60: 20 days faster.
	if summary.TrendVsLastYear != -20 {
		t.Fatalf("trend = %v, want -20", summary.TrendVsLastYear)
	}
	if summary.BestBorough != "Verdun" || summary.WorstBorough != "Anjou" {
		t.Fatalf("best/worst wrong: %s / %s", summary.BestBorough, summary.WorstBorough)
	}
}

func TestCitySummary_NoData(t *testing.T) {
	engine := NewEngine(&fakeStore{permits: map[int][]models.Permit{}}, mustConfig(t))
	_, err := engine.CitySummary(2024)
	if !errors.Is(err, ErrNoDataForYear) {
		t.Fatalf("expected ErrNoDataForYear, got %v", err)
	}
}

func TestTrends(t *testing.T) {
	store := &fakeStore{totals: []models.YearTotal{
		{Year: 2022, Total: 100},
		{Year: 2023, Total: 150},
		{Year: 2024, Total: 120},
	}}
	engine := NewEngine(store, mustConfig(t))

	trends, err := engine.Trends()
	if err != nil {
		t.Fatalf("trends failed: %v", err)
	}
	if trends[0].PctChange != 0 {
		t.Fatalf("first year pct change = %v, want 0", trends[0].PctChange)
	}
	if trends[1].PctChange != 50 {
		t.Fatalf("2023 pct change = %v, want +50", trends[1].PctChange)
	}
	if trends[2].PctChange != -20 {
		t.Fatalf("2024 pct change = %v, want -20", trends[2].PctChange)
	}
}

func TestTrends_ZeroPriorTotal(t *testing.T) {
	store := &fakeStore{totals: []models.YearTotal{
		{Year: 2022, Total: 0},
		{Year: 2023, Total: 50},
	}}
	engine := NewEngine(store, mustConfig(t))

	trends, err := engine.Trends()
	if err != nil {
		t.Fatalf("trends failed: %v", err)
	}
	if trends[1].PctChange != 0 {
		t.Fatalf("pct change after zero total = %v, want 0", trends[1].PctChange)
	}
}

func TestTrendSeries_Restartable(t *testing.T) {
	store := &fakeStore{totals: []models.YearTotal{
		{Year: 2023, Total: 10},
		{Year: 2024, Total: 20},
	}}
	engine := NewEngine(store, mustConfig(t))

	seq, err := engine.TrendSeries()
	if err != nil {
		t.Fatalf("series failed: %v", err)
	}

	count := func() int {
		n := 0
		seq(func(models.YearTotal) bool {
			n++
			return true
		})
		return n
	}
	if first, second := count(), count(); first != 2 || second != 2 {
		t.Fatalf("series not restartable: %d then %d", first, second)
	}
}

func TestGradeFor(t *testing.T) {
	cases := []struct {
		median float64
		pct    float64
		want   string
	}{
		{30, 90, "A+"},
		{30, 50, "A"},
		{55, 85, "B+"},
		{70, 10, "C"},
		{88, 81, "D+"},
		{120, 100, "F"},
	}
	for _, c := range cases {
		if got := gradeFor(c.median, c.pct, 80); got != c.want {
			t.Fatalf("gradeFor(%v, %v) = %s, want %s", c.median, c.pct, got, c.want)
		}
	}
}

func TestContractThresholdBreakdown_EraCorrect(t *testing.T) {
	signedPre := time.Date(2017, 6, 30, 0, 0, 0, 0, time.UTC)
	signedPost := time.Date(2017, 7, 1, 0, 0, 0, 0, time.UTC)

	store := &fakeStore{contracts: map[int][]models.Contract{
		2017: {
			// $30K is above the $25K threshold in force before July 2017...
			{ExternalID: "c1", Amount: 30000, SignedDate: &signedPre},
			// ...and well under the $100K threshold the day after the reform.
			{ExternalID: "c2", Amount: 30000, SignedDate: &signedPost},
			// Just under the post-reform threshold, inside the $20K band.
			{ExternalID: "c3", Amount: 95000, SignedDate: &signedPost},
		},
	}}
	engine := NewEngine(store, mustConfig(t))

	breakdown, err := engine.ContractThresholdBreakdown(2017)
	if err != nil {
		t.Fatalf("breakdown failed: %v", err)
	}
	if breakdown.AboveThreshold != 1 {
		t.Fatalf("above = %d, want 1", breakdown.AboveThreshold)
	}
	if breakdown.UnderThreshold != 2 {
		t.Fatalf("under = %d, want 2", breakdown.UnderThreshold)
	}
	if breakdown.NearThreshold != 1 {
		t.Fatalf("near = %d, want 1", breakdown.NearThreshold)
	}
}
