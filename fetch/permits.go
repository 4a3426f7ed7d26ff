package fetch

import (
	"context"
	"fmt"
	"log"
	"time"

	"civimetre/config"
	"civimetre/models"
)

// PermitFetcher pulls construction permits from the portal's datastore.
type PermitFetcher struct {
	client *CKANClient
	cfg    *config.DatasetConfig
	clock  Clock
}

func NewPermitFetcher(client *CKANClient, cfg *config.DatasetConfig) *PermitFetcher {
	return &PermitFetcher{client: client, cfg: cfg, clock: defaultClock}
}

// Fetch returns raw permit records for the run's year window. The SQL path
// filters server-side per year; when it fails the paginated path fetches
// everything once and filters locally.
func (f *PermitFetcher) Fetch(ctx context.Context, mode models.RunMode, since time.Time) ([]RawRecord, error) {
	years := yearWindow(mode, since, f.cfg.YearFloor, f.clock())

	var all []RawRecord
	var paginated []RawRecord
	for _, year := range years {
		sqlQuery := fmt.Sprintf(
			`SELECT * FROM "%s" WHERE EXTRACT(YEAR FROM "%s") = %d ORDER BY "%s" DESC`,
			f.cfg.Resource, f.cfg.DateField, year, f.cfg.DateField)

		records, err := f.client.QuerySQL(ctx, sqlQuery)
		if err != nil {
			log.Printf("permits: SQL query failed for %d (%v), using paginated fetch", year, err)
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

// NormalizePermit maps one raw portal record onto the canonical permit
// row. Deterministic: the same raw record always yields the same row.
func NormalizePermit(r RawRecord) models.Permit {
	appDate := dateField(r, "date_debut")
	issueDate := dateField(r, "date_emission")
	boroughRaw := strField(r, "arrondissement")

	p := models.Permit{
		ExternalID:       strField(r, "no_demande"),
		PermitID:         strField(r, "id_permis"),
		ApplicationDate:  appDate,
		IssueDate:        issueDate,
		ProcessingDays:   daysBetween(appDate, issueDate),
		Address:          strField(r, "emplacement"),
		BoroughRaw:       boroughRaw,
		Borough:          NormalizeBorough(boroughRaw),
		TypeCode:         strField(r, "code_type_base_demande"),
		TypeDescription:  strField(r, "description_type_demande"),
		BuildingType:     strField(r, "description_type_batiment"),
		BuildingCategory: strField(r, "description_categorie_batiment"),
		WorkNature:       strField(r, "nature_travaux"),
		HousingUnits:     intField(r, "nb_logements"),
	}

	if lat, ok := floatField(r, "latitude"); ok {
		p.Latitude = &lat
	}
	if lng, ok := floatField(r, "longitude"); ok {
		p.Longitude = &lng
	}

	return p
}

// NormalizePermits drops records without an application date, matching the
// upstream ingest behavior.
func NormalizePermits(records []RawRecord) []models.Permit {
	permits := make([]models.Permit, 0, len(records))
	for _, r := range records {
		p := NormalizePermit(r)
		if p.ApplicationDate == nil {
			continue
		}
		permits = append(permits, p)
	}
	return permits
}
