package models

import (
	"database/sql"
	"time"
)

// Brand is a car manufacturer, created on first sighting during discovery.
type Brand struct {
	ID        int64          `db:"brand_id" json:"id"`
	Name      string         `db:"name" json:"name"`
	Country   sql.NullString `db:"country" json:"country"`
	LogoURL   sql.NullString `db:"logo_url" json:"logo_url"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

// Model is a product line, unique per (brand, name) case-insensitively.
type Model struct {
	ID              int64          `db:"model_id" json:"id"`
	BrandID         int64          `db:"brand_id" json:"brand_id"`
	Name            string         `db:"name" json:"name"`
	ClassType       sql.NullString `db:"class_type" json:"class_type"`
	ProductionStart sql.NullInt64  `db:"production_start" json:"production_start"`
	ProductionEnd   sql.NullInt64  `db:"production_end" json:"production_end"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// Region is a normalized location; unknown text maps to a sentinel row.
type Region struct {
	ID        int64           `db:"region_id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Country   string          `db:"country" json:"country"`
	Lat       sql.NullFloat64 `db:"lat" json:"lat"`
	Lng       sql.NullFloat64 `db:"lng" json:"lng"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// Car is one vehicle's specification snapshot, owned by its listing and
// updated in place as re-scrapes reveal more complete data.
type Car struct {
	ID           int64           `db:"car_id" json:"id"`
	ModelID      int64           `db:"model_id" json:"model_id"`
	RegionID     int64           `db:"region_id" json:"region_id"`
	Year         sql.NullInt64   `db:"year" json:"year"`
	EngineVolume sql.NullFloat64 `db:"engine_volume" json:"engine_volume"`
	EngineType   sql.NullString  `db:"engine_type" json:"engine_type"`
	Transmission sql.NullString  `db:"transmission" json:"transmission"`
	Mileage      sql.NullInt64   `db:"mileage" json:"mileage"`
	BodyType     sql.NullString  `db:"body_type" json:"body_type"`
	Color        sql.NullString  `db:"color" json:"color"`
	Inspection   sql.NullString  `db:"inspection" json:"inspection"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// Listing is one posted advertisement, keyed by the site's external id.
type Listing struct {
	ID          int64          `db:"listing_id" json:"id"`
	CarID       int64          `db:"car_id" json:"car_id"`
	SourceID    int64          `db:"source_id" json:"source_id"`
	ExternalID  string         `db:"external_id" json:"external_id"`
	Price       sql.NullInt64  `db:"price" json:"price"`
	ListingDate sql.NullTime   `db:"listing_date" json:"listing_date"`
	ListingURL  string         `db:"listing_url" json:"listing_url"`
	Thumbnail   sql.NullString `db:"thumbnail" json:"thumbnail"`
	IsActive    bool           `db:"is_active" json:"is_active"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// Source is one crawled site.
type Source struct {
	ID             int64          `db:"source_id" json:"id"`
	Name           string         `db:"name" json:"name"`
	URL            string         `db:"url" json:"url"`
	Country        sql.NullString `db:"country" json:"country"`
	ScrapingConfig sql.NullString `db:"scraping_config" json:"scraping_config"`
	LastScrapedAt  sql.NullTime   `db:"last_scraped_at" json:"last_scraped_at"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}
