package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// SearchFilter contains all filter parameters for listing searches.
type SearchFilter struct {
	Brand        string
	Model        string
	Region       string
	EngineType   string
	Transmission string
	YearFrom     *int
	YearTo       *int
	PriceMin     *int
	PriceMax     *int
	ActiveOnly   bool
	Limit        int
	Offset       int
}

// ListingItem is one row of a search result.
type ListingItem struct {
	ID           int64    `db:"listing_id" json:"id"`
	ExternalID   string   `db:"external_id" json:"external_id"`
	Brand        string   `db:"brand" json:"brand"`
	Model        string   `db:"model" json:"model"`
	Region       string   `db:"region" json:"region"`
	Year         *int64   `db:"year" json:"year,omitempty"`
	Price        *int64   `db:"price" json:"price,omitempty"`
	Mileage      *int64   `db:"mileage" json:"mileage,omitempty"`
	EngineType   *string  `db:"engine_type" json:"engine_type,omitempty"`
	EngineVolume *float64 `db:"engine_volume" json:"engine_volume,omitempty"`
	Transmission *string  `db:"transmission" json:"transmission,omitempty"`
	BodyType     *string  `db:"body_type" json:"body_type,omitempty"`
	Color        *string  `db:"color" json:"color,omitempty"`
	Inspection   *string  `db:"inspection" json:"inspection,omitempty"`
	ListingDate  *string  `db:"listing_date" json:"listing_date,omitempty"`
	ListingURL   string   `db:"listing_url" json:"listing_url"`
	Thumbnail    *string  `db:"thumbnail" json:"thumbnail,omitempty"`
	IsActive     bool     `db:"is_active" json:"is_active"`
}

const listingSelect = `
	SELECT
		l.listing_id, l.external_id, b.name AS brand, m.name AS model,
		r.name AS region, c.year, l.price, c.mileage, c.engine_type,
		c.engine_volume, c.transmission, c.body_type, c.color, c.inspection,
		strftime('%Y-%m-%d', l.listing_date) AS listing_date,
		COALESCE(l.listing_url, '') AS listing_url, l.thumbnail, l.is_active
	FROM listings l
	JOIN cars c ON c.car_id = l.car_id
	JOIN models m ON m.model_id = c.model_id
	JOIN brands b ON b.brand_id = m.brand_id
	JOIN regions r ON r.region_id = c.region_id
`

// SearchListings returns listings matching the given filters.
func (db *DB) SearchListings(f SearchFilter) ([]ListingItem, error) {
	query := listingSelect + " WHERE 1=1"
	var args []interface{}

	if f.ActiveOnly {
		query += " AND l.is_active = 1"
	}
	if f.Brand != "" {
		query += " AND b.name = ? COLLATE NOCASE"
		args = append(args, f.Brand)
	}
	if f.Model != "" {
		query += " AND m.name = ? COLLATE NOCASE"
		args = append(args, f.Model)
	}
	if f.Region != "" {
		query += " AND r.name = ? COLLATE NOCASE"
		args = append(args, f.Region)
	}
	if f.EngineType != "" {
		query += " AND c.engine_type = ? COLLATE NOCASE"
		args = append(args, f.EngineType)
	}
	if f.Transmission != "" {
		query += " AND c.transmission = ? COLLATE NOCASE"
		args = append(args, f.Transmission)
	}
	if f.YearFrom != nil {
		query += " AND c.year >= ?"
		args = append(args, *f.YearFrom)
	}
	if f.YearTo != nil {
		query += " AND c.year <= ?"
		args = append(args, *f.YearTo)
	}
	if f.PriceMin != nil {
		query += " AND l.price >= ?"
		args = append(args, *f.PriceMin)
	}
	if f.PriceMax != nil {
		query += " AND l.price <= ?"
		args = append(args, *f.PriceMax)
	}

	query += " ORDER BY l.updated_at DESC"

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT %d", limit)
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", f.Offset)
	}

	var items []ListingItem
	if err := db.Select(&items, query, args...); err != nil {
		return nil, fmt.Errorf("failed to search listings: %w", err)
	}
	return items, nil
}

// GetListing returns one listing with full detail, or nil when absent.
func (db *DB) GetListing(id int64) (*ListingItem, error) {
	var item ListingItem
	err := db.Get(&item, listingSelect+" WHERE l.listing_id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing %d: %w", id, err)
	}
	return &item, nil
}

// BrandCount pairs a brand with its active listing count.
type BrandCount struct {
	Brand string `db:"brand" json:"brand"`
	Count int    `db:"cnt" json:"count"`
}

// ModelCount pairs a model with its active listing count.
type ModelCount struct {
	Brand string `db:"brand" json:"brand"`
	Model string `db:"model" json:"model"`
	Count int    `db:"cnt" json:"count"`
}

// PopularBrands returns brands ordered by active listing count.
func (db *DB) PopularBrands(limit int) ([]BrandCount, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []BrandCount
	err := db.Select(&rows, `
		SELECT b.name AS brand, COUNT(l.listing_id) AS cnt
		FROM listings l
		JOIN cars c ON c.car_id = l.car_id
		JOIN models m ON m.model_id = c.model_id
		JOIN brands b ON b.brand_id = m.brand_id
		WHERE l.is_active = 1
		GROUP BY b.brand_id
		ORDER BY cnt DESC
		LIMIT ?`, limit)
	return rows, err
}

// PopularModels returns models ordered by active listing count, optionally
// narrowed to one brand.
func (db *DB) PopularModels(brand string, limit int) ([]ModelCount, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
		SELECT b.name AS brand, m.name AS model, COUNT(l.listing_id) AS cnt
		FROM listings l
		JOIN cars c ON c.car_id = l.car_id
		JOIN models m ON m.model_id = c.model_id
		JOIN brands b ON b.brand_id = m.brand_id
		WHERE l.is_active = 1`
	var args []interface{}
	if brand != "" {
		query += " AND b.name = ? COLLATE NOCASE"
		args = append(args, brand)
	}
	query += " GROUP BY m.model_id ORDER BY cnt DESC LIMIT ?"
	args = append(args, limit)

	var rows []ModelCount
	err := db.Select(&rows, query, args...)
	return rows, err
}

// PricePoint is one month's average price for a brand/model.
type PricePoint struct {
	Month    string  `db:"month" json:"month"`
	AvgPrice float64 `db:"avg_price" json:"avg_price"`
	Count    int     `db:"cnt" json:"count"`
}

// PriceHistory returns monthly average prices over the trailing window.
func (db *DB) PriceHistory(brand, model string, months int) ([]PricePoint, error) {
	if months <= 0 {
		months = 6
	}
	var rows []PricePoint
	err := db.Select(&rows, `
		SELECT strftime('%Y-%m', l.listing_date) AS month,
		       AVG(l.price) AS avg_price,
		       COUNT(*) AS cnt
		FROM listings l
		JOIN cars c ON c.car_id = l.car_id
		JOIN models m ON m.model_id = c.model_id
		JOIN brands b ON b.brand_id = m.brand_id
		WHERE b.name = ? COLLATE NOCASE
		  AND m.name = ? COLLATE NOCASE
		  AND l.price IS NOT NULL
		  AND l.listing_date >= date('now', ?)
		GROUP BY month
		ORDER BY month`,
		brand, model, fmt.Sprintf("-%d months", months))
	return rows, err
}

// Estimate is a value estimate derived from comparable active listings.
type Estimate struct {
	AvgPrice   float64 `db:"avg_price" json:"avg_price"`
	MinPrice   int64   `db:"min_price" json:"min_price"`
	MaxPrice   int64   `db:"max_price" json:"max_price"`
	SampleSize int     `db:"cnt" json:"sample_size"`
}

// EstimateValue estimates a car's value from active listings of the same
// brand/model within two model years, optionally narrowed by drivetrain.
func (db *DB) EstimateValue(brand, model string, year int, engineType, transmission string) (*Estimate, error) {
	query := `
		SELECT AVG(l.price) AS avg_price, MIN(l.price) AS min_price,
		       MAX(l.price) AS max_price, COUNT(*) AS cnt
		FROM listings l
		JOIN cars c ON c.car_id = l.car_id
		JOIN models m ON m.model_id = c.model_id
		JOIN brands b ON b.brand_id = m.brand_id
		WHERE l.is_active = 1 AND l.price IS NOT NULL
		  AND b.name = ? COLLATE NOCASE
		  AND m.name = ? COLLATE NOCASE
		  AND c.year BETWEEN ? AND ?`
	args := []interface{}{brand, model, year - 2, year + 2}
	if engineType != "" {
		query += " AND c.engine_type = ? COLLATE NOCASE"
		args = append(args, engineType)
	}
	if transmission != "" {
		query += " AND c.transmission = ? COLLATE NOCASE"
		args = append(args, transmission)
	}

	var row struct {
		AvgPrice sql.NullFloat64 `db:"avg_price"`
		MinPrice sql.NullInt64   `db:"min_price"`
		MaxPrice sql.NullInt64   `db:"max_price"`
		Count    int             `db:"cnt"`
	}
	if err := db.Get(&row, query, args...); err != nil {
		return nil, fmt.Errorf("failed to estimate value: %w", err)
	}
	if row.Count == 0 {
		return nil, nil
	}
	return &Estimate{
		AvgPrice:   row.AvgPrice.Float64,
		MinPrice:   row.MinPrice.Int64,
		MaxPrice:   row.MaxPrice.Int64,
		SampleSize: row.Count,
	}, nil
}

// StatusCounts summarizes the store for the status endpoint.
type StatusCounts struct {
	Brands         int `json:"brands"`
	Models         int `json:"models"`
	Regions        int `json:"regions"`
	Listings       int `json:"listings"`
	ActiveListings int `json:"active_listings"`
}

// Counts returns row counts per entity.
func (db *DB) Counts() (*StatusCounts, error) {
	var s StatusCounts
	for _, q := range []struct {
		dst   *int
		query string
	}{
		{&s.Brands, "SELECT COUNT(*) FROM brands"},
		{&s.Models, "SELECT COUNT(*) FROM models"},
		{&s.Regions, "SELECT COUNT(*) FROM regions"},
		{&s.Listings, "SELECT COUNT(*) FROM listings"},
		{&s.ActiveListings, "SELECT COUNT(*) FROM listings WHERE is_active = 1"},
	} {
		if err := db.Get(q.dst, q.query); err != nil {
			return nil, fmt.Errorf("failed to count (%s): %w", strings.TrimPrefix(q.query, "SELECT COUNT(*) FROM "), err)
		}
	}
	return &s, nil
}

// Sources returns all configured sources with their last-scraped timestamps.
func (db *DB) Sources() ([]SourceStatus, error) {
	var rows []SourceStatus
	err := db.Select(&rows, `
		SELECT name, url, strftime('%Y-%m-%dT%H:%M:%SZ', last_scraped_at) AS last_scraped_at
		FROM sources ORDER BY name`)
	return rows, err
}

// SourceStatus is one source's row on the status endpoint.
type SourceStatus struct {
	Name          string  `db:"name" json:"name"`
	URL           string  `db:"url" json:"url"`
	LastScrapedAt *string `db:"last_scraped_at" json:"last_scraped_at,omitempty"`
}
