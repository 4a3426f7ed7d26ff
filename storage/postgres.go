package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"civimetre/models"
)

// PostgresStore mirrors normalized rows into a remote Postgres so the
// presentation layer can read without touching the SQLite working copy.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 5
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) MirrorPermit(ctx context.Context, p *models.Permit) error {
	query := `
		INSERT INTO permits (
			external_id, permit_id, application_date, issue_date, processing_days,
			address, borough, type_code, type_description, building_type,
			building_category, work_nature, housing_units, latitude, longitude,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (external_id) DO UPDATE SET
			permit_id = EXCLUDED.permit_id,
			application_date = EXCLUDED.application_date,
			issue_date = EXCLUDED.issue_date,
			processing_days = EXCLUDED.processing_days,
			address = EXCLUDED.address,
			borough = EXCLUDED.borough,
			type_code = EXCLUDED.type_code,
			type_description = EXCLUDED.type_description,
			building_type = EXCLUDED.building_type,
			building_category = EXCLUDED.building_category,
			work_nature = EXCLUDED.work_nature,
			housing_units = EXCLUDED.housing_units,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		p.ExternalID, p.PermitID, p.ApplicationDate, p.IssueDate, p.ProcessingDays,
		p.Address, p.Borough, p.TypeCode, p.TypeDescription, p.BuildingType,
		p.BuildingCategory, p.WorkNature, p.HousingUnits, p.Latitude, p.Longitude,
		p.CreatedAt, p.UpdatedAt)
	return err
}

func (s *PostgresStore) MirrorContract(ctx context.Context, c *models.Contract) error {
	query := `
		INSERT INTO contracts (
			external_id, borough, supplier, description, amount, signed_date, category,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (external_id) DO UPDATE SET
			borough = EXCLUDED.borough,
			supplier = EXCLUDED.supplier,
			description = EXCLUDED.description,
			amount = EXCLUDED.amount,
			signed_date = EXCLUDED.signed_date,
			category = EXCLUDED.category,
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		c.ExternalID, c.Borough, c.Supplier, c.Description, c.Amount, c.SignedDate, c.Category,
		c.CreatedAt, c.UpdatedAt)
	return err
}

func (s *PostgresStore) MirrorServiceRequest(ctx context.Context, r *models.ServiceRequest) error {
	query := `
		INSERT INTO service_requests (
			external_id, borough, category, channel, status, opened_date, closed_date,
			duration_days, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (external_id) DO UPDATE SET
			borough = EXCLUDED.borough,
			category = EXCLUDED.category,
			channel = EXCLUDED.channel,
			status = EXCLUDED.status,
			opened_date = EXCLUDED.opened_date,
			closed_date = EXCLUDED.closed_date,
			duration_days = EXCLUDED.duration_days,
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		r.ExternalID, r.Borough, r.Category, r.Channel, r.Status, r.OpenedDate, r.ClosedDate,
		r.DurationDays, r.CreatedAt, r.UpdatedAt)
	return err
}

func (s *PostgresStore) MirrorPromise(ctx context.Context, p *models.Promise) error {
	query := `
		INSERT INTO promises (
			id, category, borough, text_en, text_fr, measurable, target_value, target_date,
			current_value, status, auto_trackable, first_100_days, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			category = EXCLUDED.category,
			borough = EXCLUDED.borough,
			text_en = EXCLUDED.text_en,
			text_fr = EXCLUDED.text_fr,
			measurable = EXCLUDED.measurable,
			target_value = EXCLUDED.target_value,
			target_date = EXCLUDED.target_date,
			current_value = EXCLUDED.current_value,
			status = EXCLUDED.status,
			auto_trackable = EXCLUDED.auto_trackable,
			first_100_days = EXCLUDED.first_100_days,
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Category, p.Borough, p.TextEN, p.TextFR, p.Measurable, p.TargetValue, p.TargetDate,
		p.CurrentValue, p.Status, p.AutoTrackable, p.First100Days, p.CreatedAt, p.UpdatedAt)
	return err
}
