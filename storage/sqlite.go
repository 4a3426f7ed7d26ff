package storage

import (
	"database/sql"
	"log"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"civimetre/models"
)

type SQLiteStore struct {
	db         *sql.DB
	ftsEnabled bool
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS permits (
		external_id TEXT PRIMARY KEY,
		permit_id TEXT,
		application_date DATETIME,
		issue_date DATETIME,
		processing_days INTEGER,
		address TEXT,
		borough_raw TEXT,
		borough TEXT,
		type_code TEXT,
		type_description TEXT,
		building_type TEXT,
		building_category TEXT,
		work_nature TEXT,
		housing_units INTEGER DEFAULT 0,
		latitude REAL,
		longitude REAL,
		synced BOOLEAN DEFAULT FALSE,
		created_at DATETIME,
		updated_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS contracts (
		external_id TEXT PRIMARY KEY,
		borough TEXT,
		supplier TEXT,
		description TEXT,
		amount REAL,
		signed_date DATETIME,
		category TEXT,
		synced BOOLEAN DEFAULT FALSE,
		created_at DATETIME,
		updated_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS service_requests (
		external_id TEXT PRIMARY KEY,
		borough TEXT,
		category TEXT,
		channel TEXT,
		status TEXT,
		opened_date DATETIME,
		closed_date DATETIME,
		duration_days INTEGER,
		synced BOOLEAN DEFAULT FALSE,
		created_at DATETIME,
		updated_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS promises (
		id TEXT PRIMARY KEY,
		category TEXT,
		borough TEXT,
		text_en TEXT,
		text_fr TEXT,
		measurable BOOLEAN DEFAULT FALSE,
		target_value REAL DEFAULT 0,
		target_date DATETIME,
		current_value REAL DEFAULT 0,
		status TEXT DEFAULT 'not_started',
		auto_trackable BOOLEAN DEFAULT FALSE,
		first_100_days BOOLEAN DEFAULT FALSE,
		synced BOOLEAN DEFAULT FALSE,
		created_at DATETIME,
		updated_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS etl_runs (
		id INTEGER PRIMARY KEY,
		trigger_id TEXT,
		dataset TEXT,
		mode TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		records_fetched INTEGER DEFAULT 0,
		records_upserted INTEGER DEFAULT 0,
		output TEXT
	);

	CREATE TABLE IF NOT EXISTS etl_logs (
		id INTEGER PRIMARY KEY,
		run_id INTEGER,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		dataset TEXT
	);

	CREATE TABLE IF NOT EXISTS etl_watermarks (
		dataset TEXT PRIMARY KEY,
		last_synced_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_permits_borough_year ON permits(borough, application_date);
	CREATE INDEX IF NOT EXISTS idx_permits_unsynced ON permits(synced) WHERE synced = FALSE;
	CREATE INDEX IF NOT EXISTS idx_contracts_signed ON contracts(signed_date);
	CREATE INDEX IF NOT EXISTS idx_requests_opened ON service_requests(opened_date);
	CREATE INDEX IF NOT EXISTS idx_logs_run ON etl_logs(run_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON etl_runs(status, started_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return s.migrateSearch()
}

// migrateSearch sets up the FTS5 virtual tables. go-sqlite3 only includes
// the fts5 module when built with the sqlite_fts5 build tag; without it
// the store still opens and ingests, with search disabled.
func (s *SQLiteStore) migrateSearch() error {
	ftsSchema := `
	CREATE VIRTUAL TABLE IF NOT EXISTS permits_fts USING fts5(
		external_id UNINDEXED, address, type_description, work_nature
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS contracts_fts USING fts5(
		external_id UNINDEXED, supplier, description
	);
	`
	if _, err := s.db.Exec(ftsSchema); err != nil {
		if strings.Contains(err.Error(), "no such module: fts5") {
			log.Println("storage: sqlite built without fts5 (build with -tags sqlite_fts5), search disabled")
			s.ftsEnabled = false
			return nil
		}
		return err
	}
	s.ftsEnabled = true
	return nil
}

// SearchEnabled reports whether the FTS5 module is available.
func (s *SQLiteStore) SearchEnabled() bool {
	return s.ftsEnabled
}

// UpsertPermits writes a batch inside a single transaction. Conflicting
// rows are overwritten column by column (last-write-wins on external_id);
// created_at is set once, updated_at refreshed on every upsert so "last
// synced" stays observable even for unchanged rows.
func (s *SQLiteStore) UpsertPermits(permits []models.Permit) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO permits (external_id, permit_id, application_date, issue_date, processing_days,
			address, borough_raw, borough, type_code, type_description, building_type,
			building_category, work_nature, housing_units, latitude, longitude, synced, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, FALSE, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
			permit_id = excluded.permit_id,
			application_date = excluded.application_date,
			issue_date = excluded.issue_date,
			processing_days = excluded.processing_days,
			address = excluded.address,
			borough_raw = excluded.borough_raw,
			borough = excluded.borough,
			type_code = excluded.type_code,
			type_description = excluded.type_description,
			building_type = excluded.building_type,
			building_category = excluded.building_category,
			work_nature = excluded.work_nature,
			housing_units = excluded.housing_units,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			synced = FALSE,
			updated_at = excluded.updated_at`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	count := 0
	for _, p := range permits {
		if p.ExternalID == "" {
			continue
		}
		_, err := stmt.Exec(p.ExternalID, p.PermitID, p.ApplicationDate, p.IssueDate, p.ProcessingDays,
			p.Address, p.BoroughRaw, p.Borough, p.TypeCode, p.TypeDescription, p.BuildingType,
			p.BuildingCategory, p.WorkNature, p.HousingUnits, p.Latitude, p.Longitude, now, now)
		if err != nil {
			return 0, err
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *SQLiteStore) UpsertContracts(contracts []models.Contract) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO contracts (external_id, borough, supplier, description, amount, signed_date,
			category, synced, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, FALSE, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
			borough = excluded.borough,
			supplier = excluded.supplier,
			description = excluded.description,
			amount = excluded.amount,
			signed_date = excluded.signed_date,
			category = excluded.category,
			synced = FALSE,
			updated_at = excluded.updated_at`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	count := 0
	for _, c := range contracts {
		if c.ExternalID == "" {
			continue
		}
		_, err := stmt.Exec(c.ExternalID, c.Borough, c.Supplier, c.Description, c.Amount,
			c.SignedDate, c.Category, now, now)
		if err != nil {
			return 0, err
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *SQLiteStore) UpsertServiceRequests(reqs []models.ServiceRequest) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO service_requests (external_id, borough, category, channel, status,
			opened_date, closed_date, duration_days, synced, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, FALSE, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
			borough = excluded.borough,
			category = excluded.category,
			channel = excluded.channel,
			status = excluded.status,
			opened_date = excluded.opened_date,
			closed_date = excluded.closed_date,
			duration_days = excluded.duration_days,
			synced = FALSE,
			updated_at = excluded.updated_at`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	count := 0
	for _, r := range reqs {
		if r.ExternalID == "" {
			continue
		}
		_, err := stmt.Exec(r.ExternalID, r.Borough, r.Category, r.Channel, r.Status,
			r.OpenedDate, r.ClosedDate, r.DurationDays, now, now)
		if err != nil {
			return 0, err
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

// UpsertPromises seeds or re-seeds promises. Rows are never deleted.
func (s *SQLiteStore) UpsertPromises(promises []models.Promise) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO promises (id, category, borough, text_en, text_fr, measurable, target_value,
			target_date, current_value, status, auto_trackable, first_100_days, synced, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, FALSE, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			category = excluded.category,
			borough = excluded.borough,
			text_en = excluded.text_en,
			text_fr = excluded.text_fr,
			measurable = excluded.measurable,
			target_value = excluded.target_value,
			target_date = excluded.target_date,
			auto_trackable = excluded.auto_trackable,
			first_100_days = excluded.first_100_days,
			synced = FALSE,
			updated_at = excluded.updated_at`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	count := 0
	for _, p := range promises {
		if p.ID == "" {
			continue
		}
		status := p.Status
		if status == "" {
			status = models.PromiseNotStarted
		}
		_, err := stmt.Exec(p.ID, p.Category, p.Borough, p.TextEN, p.TextFR, p.Measurable,
			p.TargetValue, p.TargetDate, p.CurrentValue, status, p.AutoTrackable, p.First100Days, now, now)
		if err != nil {
			return 0, err
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

// UpdatePromiseStatus is used by the periodic evaluator; re-seeding owns
// every other column.
func (s *SQLiteStore) UpdatePromiseStatus(id string, status models.PromiseStatus, currentValue float64) error {
	_, err := s.db.Exec(`
		UPDATE promises SET status = ?, current_value = ?, synced = FALSE, updated_at = ?
		WHERE id = ?`, status, currentValue, time.Now().UTC(), id)
	return err
}

// Watermark returns the last successful sync point for a dataset, or the
// zero time when the dataset has never synced.
func (s *SQLiteStore) Watermark(dataset string) (time.Time, error) {
	var wm time.Time
	err := s.db.QueryRow(`
		SELECT last_synced_at FROM etl_watermarks WHERE dataset = ?`, dataset).Scan(&wm)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	return wm, err
}

func (s *SQLiteStore) SetWatermark(dataset string, t time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO etl_watermarks (dataset, last_synced_at) VALUES (?, ?)
		ON CONFLICT(dataset) DO UPDATE SET last_synced_at = excluded.last_synced_at`,
		dataset, t)
	return err
}

func (s *SQLiteStore) CreateRun(run *models.ETLRun) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO etl_runs (trigger_id, dataset, mode, started_at, status, records_fetched, records_upserted, output)
		VALUES (?, ?, ?, ?, ?, 0, 0, '')`,
		run.TriggerID, run.Dataset, run.Mode, run.StartedAt, run.Status)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) UpdateRun(run *models.ETLRun) error {
	_, err := s.db.Exec(`
		UPDATE etl_runs SET finished_at = ?, status = ?, records_fetched = ?, records_upserted = ?, output = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.RecordsFetched, run.RecordsUpserted, run.Output, run.ID)
	return err
}

func (s *SQLiteStore) Log(runID *int64, level models.LogLevel, message, dataset string) error {
	_, err := s.db.Exec(`
		INSERT INTO etl_logs (run_id, timestamp, level, message, dataset)
		VALUES (?, ?, ?, ?, ?)`,
		runID, time.Now().UTC(), level, message, dataset)
	return err
}
