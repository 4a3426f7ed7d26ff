package jurisdiction

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownJurisdiction = errors.New("unknown jurisdiction")
	ErrDateOutOfRange      = errors.New("date outside configured threshold eras")
)

// ThresholdEra is a procurement-threshold regime valid over [From, To).
type ThresholdEra struct {
	From      time.Time
	To        time.Time
	Threshold float64
	BandSize  float64
	Label     string
}

// Contains reports whether d falls inside the era's half-open interval.
func (e ThresholdEra) Contains(d time.Time) bool {
	return !d.Before(e.From) && d.Before(e.To)
}

// AdminPeriod is one administration's time in office. To is nil while the
// administration is ongoing.
type AdminPeriod struct {
	Label string
	From  time.Time
	To    *time.Time
}

// ScoringTargets holds the jurisdiction's performance targets.
type ScoringTargets struct {
	PermitTargetDays   int     // permits issued within this many days count as on-target
	PlusGradePct       float64 // pct-within-target needed for a "+" grade
	Request311GoalDays int
}

// DataSource identifies the jurisdiction's upstream open-data portal.
type DataSource struct {
	PortalBase        string
	PermitsResource   string
	ContractsResource string
	RequestsResource  string
}

// Config is the immutable parameter set for one governed area. Loaded once
// per process from the registry; callers must not mutate it.
type Config struct {
	Slug         string
	Name         string
	AreaType     string // "city", "borough", ...
	Targets      ScoringTargets
	Source       DataSource
	Eras         []ThresholdEra
	AdminPeriods []AdminPeriod
	Flags        map[string]bool
}

var registry = map[string]*Config{}

// register validates a config and adds it to the registry. It panics on a
// malformed config since registration happens at package init with
// compiled-in values.
func register(cfg *Config) {
	if _, dup := registry[cfg.Slug]; dup {
		panic(fmt.Sprintf("jurisdiction: duplicate slug %q", cfg.Slug))
	}
	if err := validateEras(cfg.Eras); err != nil {
		panic(fmt.Sprintf("jurisdiction %q: %v", cfg.Slug, err))
	}
	registry[cfg.Slug] = cfg
}

func validateEras(eras []ThresholdEra) error {
	for i, e := range eras {
		if !e.From.Before(e.To) {
			return fmt.Errorf("era %d: from %s is not before to %s", i, e.From.Format("2006-01-02"), e.To.Format("2006-01-02"))
		}
		if i > 0 && !eras[i-1].To.Equal(e.From) {
			return fmt.Errorf("era %d: gap or overlap at %s", i, e.From.Format("2006-01-02"))
		}
	}
	return nil
}

// Get returns the registered config for slug.
func Get(slug string) (*Config, error) {
	cfg, ok := registry[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJurisdiction, slug)
	}
	return cfg, nil
}

// Slugs returns the registered jurisdiction slugs.
func Slugs() []string {
	out := make([]string, 0, len(registry))
	for slug := range registry {
		out = append(out, slug)
	}
	return out
}

// ResolveEra returns the threshold era legally in force on date. Era
// selection is always driven by the record's own date, never wall-clock
// time: classifying a 2016 contract against today's threshold would be
// materially wrong.
func ResolveEra(cfg *Config, date time.Time) (ThresholdEra, error) {
	for _, e := range cfg.Eras {
		if e.Contains(date) {
			return e, nil
		}
	}
	return ThresholdEra{}, fmt.Errorf("%w: %s", ErrDateOutOfRange, date.Format("2006-01-02"))
}

// PeriodPreset is a resolved date-range option for range selectors.
type PeriodPreset struct {
	Label string    `json:"label"`
	From  time.Time `json:"from"`
	To    time.Time `json:"to"`
}

// AdminPeriodPresets materializes admin periods into concrete ranges.
// Open-ended periods get dataMax (the newest date seen in the data) as
// their upper bound, so "since last inauguration" needs no hardcoded now.
func AdminPeriodPresets(periods []AdminPeriod, dataMax time.Time) []PeriodPreset {
	presets := make([]PeriodPreset, 0, len(periods))
	for _, p := range periods {
		to := dataMax
		if p.To != nil {
			to = *p.To
		}
		presets = append(presets, PeriodPreset{Label: p.Label, From: p.From, To: to})
	}
	return presets
}
