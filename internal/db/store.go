package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"car-market/internal/models"
	"car-market/internal/parse"
)

// Outcome classifies what a reconciliation did with one parsed record.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeRejected  Outcome = "rejected"
)

// UnspecifiedRegion is the sentinel row for listings without a usable
// location, in the site's own language.
const UnspecifiedRegion = "Nav norādīts"

// EnsureSource returns the id of the named source, creating it on first use.
func (db *DB) EnsureSource(name, url, country, config string) (int64, error) {
	var id int64
	err := db.Get(&id, "SELECT source_id FROM sources WHERE name = ?", name)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up source: %w", err)
	}

	now := time.Now()
	res, err := db.Exec(
		`INSERT INTO sources (name, url, country, scraping_config, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		name, url, country, config, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create source: %w", err)
	}
	return res.LastInsertId()
}

// TouchSource stamps a source's last_scraped_at at the end of a run.
func (db *DB) TouchSource(sourceID int64) error {
	now := time.Now()
	_, err := db.Exec(
		"UPDATE sources SET last_scraped_at = ?, updated_at = ? WHERE source_id = ?",
		now, now, sourceID,
	)
	return err
}

// Reconcile merges one parsed record into persisted state. Each call is its
// own transaction: a malformed record rolls back and is reported as rejected
// without affecting sibling records.
func (db *DB) Reconcile(sourceID int64, regionCountry string, rec parse.Record) (Outcome, error) {
	tx, err := db.Beginx()
	if err != nil {
		return OutcomeRejected, fmt.Errorf("failed to begin transaction: %w", err)
	}

	outcome, err := reconcileTx(tx, sourceID, regionCountry, rec)
	if err != nil {
		tx.Rollback()
		return OutcomeRejected, err
	}
	if err := tx.Commit(); err != nil {
		return OutcomeRejected, fmt.Errorf("failed to commit: %w", err)
	}
	return outcome, nil
}

func reconcileTx(tx *sqlx.Tx, sourceID int64, regionCountry string, rec parse.Record) (Outcome, error) {
	now := time.Now()

	brandID, err := getOrCreateBrand(tx, rec.Brand, now)
	if err != nil {
		return OutcomeRejected, err
	}
	modelID, err := getOrCreateModel(tx, brandID, rec.Model, now)
	if err != nil {
		return OutcomeRejected, err
	}

	regionName := rec.Region
	if regionName == "" {
		regionName = UnspecifiedRegion
	}
	regionID, err := getOrCreateRegion(tx, regionName, regionCountry, now)
	if err != nil {
		return OutcomeRejected, err
	}

	var listing models.Listing
	err = tx.Get(&listing, "SELECT * FROM listings WHERE external_id = ?", rec.ExternalID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return createCarAndListing(tx, sourceID, modelID, regionID, rec, now)
	case err != nil:
		return OutcomeRejected, fmt.Errorf("failed to look up listing %s: %w", rec.ExternalID, err)
	default:
		return updateCarAndListing(tx, &listing, rec, now)
	}
}

func getOrCreateBrand(tx *sqlx.Tx, name string, now time.Time) (int64, error) {
	var id int64
	err := tx.Get(&id, "SELECT brand_id FROM brands WHERE name = ? COLLATE NOCASE", name)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up brand %q: %w", name, err)
	}
	res, err := tx.Exec(
		"INSERT INTO brands (name, country, created_at, updated_at) VALUES (?, ?, ?, ?)",
		name, "Unknown", now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create brand %q: %w", name, err)
	}
	return res.LastInsertId()
}

func getOrCreateModel(tx *sqlx.Tx, brandID int64, name string, now time.Time) (int64, error) {
	var id int64
	err := tx.Get(&id,
		"SELECT model_id FROM models WHERE brand_id = ? AND name = ? COLLATE NOCASE",
		brandID, name,
	)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up model %q: %w", name, err)
	}
	res, err := tx.Exec(
		"INSERT INTO models (brand_id, name, created_at, updated_at) VALUES (?, ?, ?, ?)",
		brandID, name, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create model %q: %w", name, err)
	}
	return res.LastInsertId()
}

func getOrCreateRegion(tx *sqlx.Tx, name, country string, now time.Time) (int64, error) {
	var id int64
	err := tx.Get(&id, "SELECT region_id FROM regions WHERE name = ? COLLATE NOCASE", name)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up region %q: %w", name, err)
	}
	res, err := tx.Exec(
		"INSERT INTO regions (name, country, created_at, updated_at) VALUES (?, ?, ?, ?)",
		name, country, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create region %q: %w", name, err)
	}
	return res.LastInsertId()
}

func createCarAndListing(tx *sqlx.Tx, sourceID, modelID, regionID int64, rec parse.Record, now time.Time) (Outcome, error) {
	res, err := tx.Exec(
		`INSERT INTO cars (model_id, region_id, year, engine_volume, engine_type,
		                   transmission, mileage, body_type, color, inspection,
		                   created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		modelID, regionID,
		nullInt(rec.Year), nullFloat(rec.EngineVolume), nullString(rec.EngineType),
		nullString(rec.Transmission), nullInt(rec.Mileage),
		nullString(rec.BodyType), nullString(rec.Color), nullString(rec.TechInspection),
		now, now,
	)
	if err != nil {
		return OutcomeRejected, fmt.Errorf("failed to create car: %w", err)
	}
	carID, err := res.LastInsertId()
	if err != nil {
		return OutcomeRejected, err
	}

	_, err = tx.Exec(
		`INSERT INTO listings (car_id, source_id, external_id, price, listing_date,
		                       listing_url, thumbnail, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		carID, sourceID, rec.ExternalID, nullInt(rec.Price),
		listingDate(rec.ListingDate, now), rec.URL, nullString(rec.Thumbnail), now, now,
	)
	if err != nil {
		return OutcomeRejected, fmt.Errorf("failed to create listing %s: %w", rec.ExternalID, err)
	}
	return OutcomeCreated, nil
}

// updateCarAndListing applies field-level change detection: a new value is
// applied only when present and different. Timestamps are bumped on every
// re-observation so the staleness sweep treats the listing as fresh even
// when nothing changed.
func updateCarAndListing(tx *sqlx.Tx, listing *models.Listing, rec parse.Record, now time.Time) (Outcome, error) {
	var car models.Car
	if err := tx.Get(&car, "SELECT * FROM cars WHERE car_id = ?", listing.CarID); err != nil {
		return OutcomeRejected, fmt.Errorf("failed to load car %d: %w", listing.CarID, err)
	}

	changed := false

	if rec.Year != nil && (!car.Year.Valid || car.Year.Int64 != int64(*rec.Year)) {
		car.Year = sql.NullInt64{Int64: int64(*rec.Year), Valid: true}
		changed = true
	}
	if rec.EngineVolume != nil && (!car.EngineVolume.Valid || car.EngineVolume.Float64 != *rec.EngineVolume) {
		car.EngineVolume = sql.NullFloat64{Float64: *rec.EngineVolume, Valid: true}
		changed = true
	}
	if rec.EngineType != "" && (!car.EngineType.Valid || car.EngineType.String != rec.EngineType) {
		car.EngineType = sql.NullString{String: rec.EngineType, Valid: true}
		changed = true
	}
	if rec.Transmission != "" && (!car.Transmission.Valid || car.Transmission.String != rec.Transmission) {
		car.Transmission = sql.NullString{String: rec.Transmission, Valid: true}
		changed = true
	}
	if rec.Mileage != nil && (!car.Mileage.Valid || car.Mileage.Int64 != int64(*rec.Mileage)) {
		car.Mileage = sql.NullInt64{Int64: int64(*rec.Mileage), Valid: true}
		changed = true
	}
	if rec.BodyType != "" && (!car.BodyType.Valid || car.BodyType.String != rec.BodyType) {
		car.BodyType = sql.NullString{String: rec.BodyType, Valid: true}
		changed = true
	}
	if rec.Color != "" && (!car.Color.Valid || car.Color.String != rec.Color) {
		car.Color = sql.NullString{String: rec.Color, Valid: true}
		changed = true
	}
	if rec.TechInspection != "" && (!car.Inspection.Valid || car.Inspection.String != rec.TechInspection) {
		car.Inspection = sql.NullString{String: rec.TechInspection, Valid: true}
		changed = true
	}

	if rec.Price != nil && (!listing.Price.Valid || listing.Price.Int64 != int64(*rec.Price)) {
		listing.Price = sql.NullInt64{Int64: int64(*rec.Price), Valid: true}
		changed = true
	}
	if rec.Thumbnail != "" && (!listing.Thumbnail.Valid || listing.Thumbnail.String != rec.Thumbnail) {
		listing.Thumbnail = sql.NullString{String: rec.Thumbnail, Valid: true}
		changed = true
	}
	if date := listingDate(rec.ListingDate, now); date.Valid {
		if !listing.ListingDate.Valid || !sameDay(listing.ListingDate.Time, date.Time) {
			listing.ListingDate = date
			changed = true
		}
	}

	// Reappearance reactivates.
	if !listing.IsActive {
		listing.IsActive = true
		changed = true
	}

	_, err := tx.Exec(
		`UPDATE cars SET year = ?, engine_volume = ?, engine_type = ?, transmission = ?,
		                 mileage = ?, body_type = ?, color = ?, inspection = ?, updated_at = ?
		 WHERE car_id = ?`,
		car.Year, car.EngineVolume, car.EngineType, car.Transmission,
		car.Mileage, car.BodyType, car.Color, car.Inspection, now, car.ID,
	)
	if err != nil {
		return OutcomeRejected, fmt.Errorf("failed to update car %d: %w", car.ID, err)
	}

	_, err = tx.Exec(
		`UPDATE listings SET price = ?, listing_date = ?, thumbnail = ?, is_active = ?, updated_at = ?
		 WHERE listing_id = ?`,
		listing.Price, listing.ListingDate, listing.Thumbnail, listing.IsActive, now, listing.ID,
	)
	if err != nil {
		return OutcomeRejected, fmt.Errorf("failed to update listing %d: %w", listing.ID, err)
	}

	if changed {
		return OutcomeUpdated, nil
	}
	return OutcomeUnchanged, nil
}

// SweepStale deactivates active listings not re-observed since the cutoff.
// Delisted vehicles disappear from active search results without ever being
// deleted.
func (db *DB) SweepStale(cutoff time.Time) (int64, error) {
	res, err := db.Exec(
		"UPDATE listings SET is_active = 0, updated_at = ? WHERE is_active = 1 AND updated_at < ?",
		time.Now(), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stale listings: %w", err)
	}
	return res.RowsAffected()
}

// RegionsMissingCoords returns regions the geocoder has not resolved yet.
// The sentinel region is never geocoded.
func (db *DB) RegionsMissingCoords(limit int) ([]models.Region, error) {
	var regions []models.Region
	err := db.Select(&regions,
		"SELECT * FROM regions WHERE lat IS NULL AND name != ? LIMIT ?",
		UnspecifiedRegion, limit,
	)
	return regions, err
}

// SetRegionCoords stores a geocoding result.
func (db *DB) SetRegionCoords(regionID int64, lat, lng float64) error {
	_, err := db.Exec(
		"UPDATE regions SET lat = ?, lng = ?, updated_at = ? WHERE region_id = ?",
		lat, lng, time.Now(), regionID,
	)
	return err
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func listingDate(iso string, now time.Time) sql.NullTime {
	if iso == "" {
		return sql.NullTime{Time: now, Valid: true}
	}
	t, err := time.Parse("2006-01-02", iso)
	if err != nil {
		return sql.NullTime{Time: now, Valid: true}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func sameDay(a, b time.Time) bool {
	return a.Format("2006-01-02") == b.Format("2006-01-02")
}
