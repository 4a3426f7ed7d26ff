package jurisdiction

import "time"

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

func init() {
	register(&Config{
		Slug:     "montreal",
		Name:     "Ville de Montréal",
		AreaType: "city",
		Targets: ScoringTargets{
			PermitTargetDays:   90,
			PlusGradePct:       80,
			Request311GoalDays: 30,
		},
		Source: DataSource{
			PortalBase:        "https://data.montreal.ca/api/3/action",
			PermitsResource:   "5232a72d-235a-48eb-ae20-bb9d501300ad",
			ContractsResource: "c478c818-d89f-4b34-9966-55b2f1b3dd96",
			RequestsResource:  "2cfa0e06-9be4-49a6-b7f1-ee9f2363a872",
		},
		// Quebec public-contract thresholds as they changed over time.
		// Contracts must be classified against the era in force on their
		// signing date.
		Eras: []ThresholdEra{
			{From: date(2011, 1, 1), To: date(2017, 7, 1), Threshold: 25000, BandSize: 5000, Label: "pre-2017 ($25K)"},
			{From: date(2017, 7, 1), To: date(2019, 8, 1), Threshold: 100000, BandSize: 20000, Label: "2017 reform ($100K)"},
			{From: date(2019, 8, 1), To: date(2021, 10, 1), Threshold: 101100, BandSize: 20000, Label: "indexed ($101.1K)"},
			{From: date(2021, 10, 1), To: date(2030, 1, 1), Threshold: 121200, BandSize: 25000, Label: "indexed ($121.2K)"},
		},
		AdminPeriods: []AdminPeriod{
			{Label: "Coderre administration", From: date(2013, 11, 14), To: datePtr(2017, 11, 16)},
			{Label: "Plante administration (1st)", From: date(2017, 11, 16), To: datePtr(2021, 11, 18)},
			{Label: "Plante administration (2nd)", From: date(2021, 11, 18)},
		},
		Flags: map[string]bool{
			"promises":      true,
			"contracts":     true,
			"requests311":   true,
			"search":        true,
			"postgres_sync": false,
		},
	})
}
