package fetch

import (
	"context"
	"fmt"
	"log"
	"time"

	"civimetre/config"
	"civimetre/models"
)

// RequestFetcher pulls 311 service requests.
type RequestFetcher struct {
	client *CKANClient
	cfg    *config.DatasetConfig
	clock  Clock
}

func NewRequestFetcher(client *CKANClient, cfg *config.DatasetConfig) *RequestFetcher {
	return &RequestFetcher{client: client, cfg: cfg, clock: defaultClock}
}

func (f *RequestFetcher) Fetch(ctx context.Context, mode models.RunMode, since time.Time) ([]RawRecord, error) {
	years := yearWindow(mode, since, f.cfg.YearFloor, f.clock())

	var all []RawRecord
	var paginated []RawRecord
	for _, year := range years {
		sqlQuery := fmt.Sprintf(
			`SELECT * FROM "%s" WHERE EXTRACT(YEAR FROM "%s") = %d ORDER BY "%s" DESC`,
			f.cfg.Resource, f.cfg.DateField, year, f.cfg.DateField)

		records, err := f.client.QuerySQL(ctx, sqlQuery)
		if err != nil {
			log.Printf("requests311: SQL query failed for %d (%v), using paginated fetch", year, err)
			if paginated == nil {
				paginated, err = f.client.QueryPaginated(ctx, f.cfg.Resource, f.cfg.PageSize)
				if err != nil {
					return nil, fmt.Errorf("year %d: %w", year, err)
				}
			}
			records = filterByYear(paginated, f.cfg.DateField, year)
		}
		all = append(all, records...)
	}

	return all, nil
}

// NormalizeServiceRequest maps one raw 311 record onto the canonical row.
func NormalizeServiceRequest(r RawRecord) models.ServiceRequest {
	opened := dateField(r, "date_creation")
	closed := dateField(r, "date_fermeture")

	return models.ServiceRequest{
		ExternalID:   strField(r, "id_requete"),
		Borough:      NormalizeBorough(strField(r, "arrondissement")),
		Category:     strField(r, "nature"),
		Channel:      strField(r, "provenance"),
		Status:       strField(r, "statut"),
		OpenedDate:   opened,
		ClosedDate:   closed,
		DurationDays: daysBetween(opened, closed),
	}
}

func NormalizeServiceRequests(records []RawRecord) []models.ServiceRequest {
	reqs := make([]models.ServiceRequest, 0, len(records))
	for _, r := range records {
		sr := NormalizeServiceRequest(r)
		if sr.OpenedDate == nil {
			continue
		}
		reqs = append(reqs, sr)
	}
	return reqs
}
