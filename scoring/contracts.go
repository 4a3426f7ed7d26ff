package scoring

import (
	"fmt"

	"civimetre/jurisdiction"
)

// ThresholdBreakdown classifies one year of contracts against the
// procurement threshold in force when each contract was signed.
// NearThreshold counts contracts landing inside the band just under the
// limit, the zone where contract splitting shows up.
type ThresholdBreakdown struct {
	Year           int `json:"year"`
	Total          int `json:"total"`
	AboveThreshold int `json:"above_threshold"`
	UnderThreshold int `json:"under_threshold"`
	NearThreshold  int `json:"near_threshold"`
	Unclassified   int `json:"unclassified"`
}

// ContractThresholdBreakdown resolves each contract's era from its own
// signing date. Comparing amounts against today's threshold would
// misclassify everything signed under an earlier regime.
func (e *Engine) ContractThresholdBreakdown(year int) (*ThresholdBreakdown, error) {
	contracts, err := e.store.ContractsForYear(year)
	if err != nil {
		return nil, err
	}
	if len(contracts) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrNoDataForYear, year)
	}

	breakdown := &ThresholdBreakdown{Year: year, Total: len(contracts)}
	for _, c := range contracts {
		if c.SignedDate == nil {
			breakdown.Unclassified++
			continue
		}
		era, err := jurisdiction.ResolveEra(e.cfg, *c.SignedDate)
		if err != nil {
			breakdown.Unclassified++
			continue
		}

		switch {
		case c.Amount >= era.Threshold:
			breakdown.AboveThreshold++
		case c.Amount >= era.Threshold-era.BandSize:
			breakdown.UnderThreshold++
			breakdown.NearThreshold++
		default:
			breakdown.UnderThreshold++
		}
	}

	return breakdown, nil
}
