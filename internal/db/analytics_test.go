package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"car-market/internal/parse"
)

// seedListings inserts a small inventory: three BMW 320s, one BMW 520 and
// one Audi A4, all dated today.
func seedListings(t *testing.T, database *DB, sourceID int64) {
	t.Helper()
	today := time.Now().Format("2006-01-02")

	rows := []struct {
		id    string
		brand string
		model string
		year  int
		price int
	}{
		{"1", "BMW", "320", 2015, 9500},
		{"2", "BMW", "320", 2016, 11000},
		{"3", "BMW", "320", 2014, 8000},
		{"4", "BMW", "520", 2017, 15000},
		{"5", "Audi", "A4", 2015, 10500},
	}
	for _, r := range rows {
		rec := parse.Record{
			ExternalID:   r.id,
			Brand:        r.brand,
			Model:        r.model,
			URL:          "https://www.ss.example/msg/" + r.id + ".html",
			Year:         intp(r.year),
			Price:        intp(r.price),
			EngineType:   "Diesel",
			Transmission: "Automatic",
			Region:       "Rīga",
			ListingDate:  today,
		}
		_, err := database.Reconcile(sourceID, "Latvia", rec)
		require.NoError(t, err)
	}
}

func TestSearchListingsFilters(t *testing.T) {
	database := newTestDB(t)
	sourceID := newTestSource(t, database)
	seedListings(t, database, sourceID)

	all, err := database.SearchListings(SearchFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 5)

	bmw320, err := database.SearchListings(SearchFilter{Brand: "bmw", Model: "320"})
	require.NoError(t, err)
	assert.Len(t, bmw320, 3)

	yearFrom := 2015
	priceMax := 10000
	narrow, err := database.SearchListings(SearchFilter{
		Brand:    "BMW",
		YearFrom: &yearFrom,
		PriceMax: &priceMax,
	})
	require.NoError(t, err)
	require.Len(t, narrow, 1)
	assert.Equal(t, "1", narrow[0].ExternalID)

	limited, err := database.SearchListings(SearchFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSearchListingsActiveOnly(t *testing.T) {
	database := newTestDB(t)
	sourceID := newTestSource(t, database)
	seedListings(t, database, sourceID)

	_, err := database.SweepStale(time.Now().Add(time.Hour))
	require.NoError(t, err)

	active, err := database.SearchListings(SearchFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := database.SearchListings(SearchFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestGetListing(t *testing.T) {
	database := newTestDB(t)
	sourceID := newTestSource(t, database)
	seedListings(t, database, sourceID)

	items, err := database.SearchListings(SearchFilter{Brand: "Audi"})
	require.NoError(t, err)
	require.Len(t, items, 1)

	item, err := database.GetListing(items[0].ID)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "Audi", item.Brand)
	assert.Equal(t, "A4", item.Model)

	missing, err := database.GetListing(99999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPopularBrandsAndModels(t *testing.T) {
	database := newTestDB(t)
	sourceID := newTestSource(t, database)
	seedListings(t, database, sourceID)

	brands, err := database.PopularBrands(10)
	require.NoError(t, err)
	require.Len(t, brands, 2)
	assert.Equal(t, "BMW", brands[0].Brand)
	assert.Equal(t, 4, brands[0].Count)
	assert.Equal(t, "Audi", brands[1].Brand)

	models, err := database.PopularModels("BMW", 10)
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "320", models[0].Model)
	assert.Equal(t, 3, models[0].Count)
}

func TestPriceHistory(t *testing.T) {
	database := newTestDB(t)
	sourceID := newTestSource(t, database)
	seedListings(t, database, sourceID)

	points, err := database.PriceHistory("BMW", "320", 6)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, time.Now().Format("2006-01"), points[0].Month)
	assert.InDelta(t, 9500.0, points[0].AvgPrice, 0.1)
	assert.Equal(t, 3, points[0].Count)
}

func TestEstimateValue(t *testing.T) {
	database := newTestDB(t)
	sourceID := newTestSource(t, database)
	seedListings(t, database, sourceID)

	est, err := database.EstimateValue("BMW", "320", 2015, "", "")
	require.NoError(t, err)
	require.NotNil(t, est)
	assert.Equal(t, 3, est.SampleSize)
	assert.Equal(t, int64(8000), est.MinPrice)
	assert.Equal(t, int64(11000), est.MaxPrice)
	assert.InDelta(t, 9500.0, est.AvgPrice, 0.1)

	// Nothing comparable for an unseen brand.
	est, err = database.EstimateValue("Lada", "Niva", 1995, "", "")
	require.NoError(t, err)
	assert.Nil(t, est)
}
