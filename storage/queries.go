package storage

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"civimetre/models"
)

const permitColumns = `external_id, permit_id, application_date, issue_date, processing_days,
	address, borough_raw, borough, type_code, type_description, building_type,
	building_category, work_nature, housing_units, latitude, longitude, created_at, updated_at`

func scanPermit(row interface{ Scan(...any) error }) (models.Permit, error) {
	var p models.Permit
	var appDate, issueDate, createdAt, updatedAt sql.NullTime
	var procDays, housingUnits sql.NullInt64
	var lat, lng sql.NullFloat64
	var permitID, address, boroughRaw, borough, typeCode, typeDesc, bType, bCat, workNature sql.NullString

	err := row.Scan(&p.ExternalID, &permitID, &appDate, &issueDate, &procDays,
		&address, &boroughRaw, &borough, &typeCode, &typeDesc, &bType,
		&bCat, &workNature, &housingUnits, &lat, &lng, &createdAt, &updatedAt)
	if err != nil {
		return p, err
	}

	p.PermitID = permitID.String
	p.Address = address.String
	p.BoroughRaw = boroughRaw.String
	p.Borough = borough.String
	p.TypeCode = typeCode.String
	p.TypeDescription = typeDesc.String
	p.BuildingType = bType.String
	p.BuildingCategory = bCat.String
	p.WorkNature = workNature.String
	p.HousingUnits = int(housingUnits.Int64)
	if appDate.Valid {
		p.ApplicationDate = &appDate.Time
	}
	if issueDate.Valid {
		p.IssueDate = &issueDate.Time
	}
	if procDays.Valid {
		d := int(procDays.Int64)
		p.ProcessingDays = &d
	}
	if lat.Valid {
		p.Latitude = &lat.Float64
	}
	if lng.Valid {
		p.Longitude = &lng.Float64
	}
	p.CreatedAt = createdAt.Time
	p.UpdatedAt = updatedAt.Time
	return p, nil
}

// PermitsForYear returns permits whose application date falls in year.
func (s *SQLiteStore) PermitsForYear(year int) ([]models.Permit, error) {
	rows, err := s.db.Query(`
		SELECT `+permitColumns+` FROM permits
		WHERE application_date IS NOT NULL AND strftime('%Y', application_date) = ?
		ORDER BY external_id`, strconv.Itoa(year))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var permits []models.Permit
	for rows.Next() {
		p, err := scanPermit(rows)
		if err != nil {
			return nil, err
		}
		permits = append(permits, p)
	}
	return permits, rows.Err()
}

// PermitYearTotals returns one row per year with at least one permit,
// ascending by year.
func (s *SQLiteStore) PermitYearTotals() ([]models.YearTotal, error) {
	rows, err := s.db.Query(`
		SELECT CAST(strftime('%Y', application_date) AS INTEGER) AS y, COUNT(*)
		FROM permits WHERE application_date IS NOT NULL
		GROUP BY y ORDER BY y`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []models.YearTotal
	for rows.Next() {
		var yt models.YearTotal
		if err := rows.Scan(&yt.Year, &yt.Total); err != nil {
			return nil, err
		}
		totals = append(totals, yt)
	}
	return totals, rows.Err()
}

// MaxApplicationDate is the newest date observed in the permit data, used
// to close open-ended admin period presets.
func (s *SQLiteStore) MaxApplicationDate() (time.Time, error) {
	var maxDate sql.NullTime
	err := s.db.QueryRow(`SELECT MAX(application_date) FROM permits`).Scan(&maxDate)
	if err != nil {
		return time.Time{}, err
	}
	return maxDate.Time, nil
}

// HousingUnitsSince sums housing units across permits applied for in or
// after the given year.
func (s *SQLiteStore) HousingUnitsSince(year int) (int, error) {
	var total sql.NullInt64
	err := s.db.QueryRow(`
		SELECT SUM(housing_units) FROM permits
		WHERE CAST(strftime('%Y', application_date) AS INTEGER) >= ?`, year).Scan(&total)
	if err != nil {
		return 0, err
	}
	return int(total.Int64), nil
}

const contractColumns = `external_id, borough, supplier, description, amount, signed_date, category, created_at, updated_at`

func scanContract(row interface{ Scan(...any) error }) (models.Contract, error) {
	var c models.Contract
	var borough, supplier, desc, category sql.NullString
	var signed, createdAt, updatedAt sql.NullTime

	err := row.Scan(&c.ExternalID, &borough, &supplier, &desc, &c.Amount, &signed, &category, &createdAt, &updatedAt)
	if err != nil {
		return c, err
	}
	c.Borough = borough.String
	c.Supplier = supplier.String
	c.Description = desc.String
	c.Category = category.String
	if signed.Valid {
		c.SignedDate = &signed.Time
	}
	c.CreatedAt = createdAt.Time
	c.UpdatedAt = updatedAt.Time
	return c, nil
}

// ContractsForYear returns contracts signed in year.
func (s *SQLiteStore) ContractsForYear(year int) ([]models.Contract, error) {
	rows, err := s.db.Query(`
		SELECT `+contractColumns+` FROM contracts
		WHERE signed_date IS NOT NULL AND strftime('%Y', signed_date) = ?
		ORDER BY external_id`, strconv.Itoa(year))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contracts []models.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

const promiseColumns = `id, category, borough, text_en, text_fr, measurable, target_value,
	target_date, current_value, status, auto_trackable, first_100_days, created_at, updated_at`

func scanPromise(row interface{ Scan(...any) error }) (models.Promise, error) {
	var p models.Promise
	var borough, category, textEN, textFR sql.NullString
	var targetDate sql.NullTime

	err := row.Scan(&p.ID, &category, &borough, &textEN, &textFR, &p.Measurable, &p.TargetValue,
		&targetDate, &p.CurrentValue, &p.Status, &p.AutoTrackable, &p.First100Days, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	p.Category = category.String
	p.Borough = borough.String
	p.TextEN = textEN.String
	p.TextFR = textFR.String
	if targetDate.Valid {
		p.TargetDate = &targetDate.Time
	}
	return p, nil
}

func (s *SQLiteStore) Promises() ([]models.Promise, error) {
	return s.queryPromises(`SELECT ` + promiseColumns + ` FROM promises ORDER BY id`)
}

func (s *SQLiteStore) AutoTrackablePromises() ([]models.Promise, error) {
	return s.queryPromises(`SELECT ` + promiseColumns + ` FROM promises WHERE auto_trackable = TRUE ORDER BY id`)
}

func (s *SQLiteStore) queryPromises(query string) ([]models.Promise, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var promises []models.Promise
	for rows.Next() {
		p, err := scanPromise(rows)
		if err != nil {
			return nil, err
		}
		promises = append(promises, p)
	}
	return promises, rows.Err()
}

// Unsynced readers and sync markers back the Postgres mirror worker.

func (s *SQLiteStore) UnsyncedPermits(limit int) ([]models.Permit, error) {
	rows, err := s.db.Query(`
		SELECT `+permitColumns+` FROM permits WHERE synced = FALSE ORDER BY external_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var permits []models.Permit
	for rows.Next() {
		p, err := scanPermit(rows)
		if err != nil {
			return nil, err
		}
		permits = append(permits, p)
	}
	return permits, rows.Err()
}

func (s *SQLiteStore) UnsyncedContracts(limit int) ([]models.Contract, error) {
	rows, err := s.db.Query(`
		SELECT `+contractColumns+` FROM contracts WHERE synced = FALSE ORDER BY external_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contracts []models.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

const requestColumns = `external_id, borough, category, channel, status, opened_date, closed_date, duration_days, created_at, updated_at`

func scanServiceRequest(row interface{ Scan(...any) error }) (models.ServiceRequest, error) {
	var r models.ServiceRequest
	var borough, category, channel, status sql.NullString
	var opened, closed, createdAt, updatedAt sql.NullTime
	var duration sql.NullInt64

	err := row.Scan(&r.ExternalID, &borough, &category, &channel, &status,
		&opened, &closed, &duration, &createdAt, &updatedAt)
	if err != nil {
		return r, err
	}
	r.Borough = borough.String
	r.Category = category.String
	r.Channel = channel.String
	r.Status = status.String
	if opened.Valid {
		r.OpenedDate = &opened.Time
	}
	if closed.Valid {
		r.ClosedDate = &closed.Time
	}
	if duration.Valid {
		d := int(duration.Int64)
		r.DurationDays = &d
	}
	r.CreatedAt = createdAt.Time
	r.UpdatedAt = updatedAt.Time
	return r, nil
}

func (s *SQLiteStore) UnsyncedServiceRequests(limit int) ([]models.ServiceRequest, error) {
	rows, err := s.db.Query(`
		SELECT `+requestColumns+` FROM service_requests WHERE synced = FALSE ORDER BY external_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []models.ServiceRequest
	for rows.Next() {
		r, err := scanServiceRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

func (s *SQLiteStore) UnsyncedPromises(limit int) ([]models.Promise, error) {
	rows, err := s.db.Query(`
		SELECT `+promiseColumns+` FROM promises WHERE synced = FALSE ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var promises []models.Promise
	for rows.Next() {
		p, err := scanPromise(rows)
		if err != nil {
			return nil, err
		}
		promises = append(promises, p)
	}
	return promises, rows.Err()
}

func (s *SQLiteStore) MarkSynced(table string, ids []string) error {
	switch table {
	case "permits", "contracts", "service_requests":
	case "promises":
	default:
		return fmt.Errorf("unknown table: %s", table)
	}
	if len(ids) == 0 {
		return nil
	}

	key := "external_id"
	if table == "promises" {
		key = "id"
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := fmt.Sprintf("UPDATE %s SET synced = TRUE WHERE %s IN (%s)", table, key, placeholders)
	_, err := s.db.Exec(query, args...)
	return err
}
