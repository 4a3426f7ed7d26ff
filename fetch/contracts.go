package fetch

import (
	"context"
	"fmt"
	"log"
	"time"

	"civimetre/config"
	"civimetre/models"
)

// ContractFetcher pulls awarded procurement contracts.
type ContractFetcher struct {
	client *CKANClient
	cfg    *config.DatasetConfig
	clock  Clock
}

func NewContractFetcher(client *CKANClient, cfg *config.DatasetConfig) *ContractFetcher {
	return &ContractFetcher{client: client, cfg: cfg, clock: defaultClock}
}

func (f *ContractFetcher) Fetch(ctx context.Context, mode models.RunMode, since time.Time) ([]RawRecord, error) {
	years := yearWindow(mode, since, f.cfg.YearFloor, f.clock())

	var all []RawRecord
	var paginated []RawRecord
	for _, year := range years {
		sqlQuery := fmt.Sprintf(
			`SELECT * FROM "%s" WHERE EXTRACT(YEAR FROM "%s") = %d ORDER BY "%s" DESC`,
			f.cfg.Resource, f.cfg.DateField, year, f.cfg.DateField)

		records, err := f.client.QuerySQL(ctx, sqlQuery)
		if err != nil {
			log.Printf("contracts: SQL query failed for %d (%v), using paginated fetch", year, err)
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

// NormalizeContract maps one raw portal record onto the canonical
// contract row.
func NormalizeContract(r RawRecord) models.Contract {
	amount, _ := floatField(r, "montant")
	boroughRaw := strField(r, "arrondissement")
	if boroughRaw == "" {
		boroughRaw = strField(r, "service")
	}

	return models.Contract{
		ExternalID:  strField(r, "numero_contrat"),
		Borough:     NormalizeBorough(boroughRaw),
		Supplier:    strField(r, "fournisseur"),
		Description: strField(r, "description"),
		Amount:      amount,
		SignedDate:  dateField(r, "date_signature"),
		Category:    strField(r, "categorie"),
	}
}

// NormalizeContracts drops records without a signing date; threshold-era
// classification needs the record's own date.
func NormalizeContracts(records []RawRecord) []models.Contract {
	contracts := make([]models.Contract, 0, len(records))
	for _, r := range records {
		c := NormalizeContract(r)
		if c.SignedDate == nil {
			continue
		}
		contracts = append(contracts, c)
	}
	return contracts
}
