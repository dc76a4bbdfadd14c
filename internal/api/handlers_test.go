package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"car-market/internal/crawler"
	"car-market/internal/db"
	"car-market/internal/parse"
)

func intp(v int) *int { return &v }

func newTestServer(t *testing.T, trigger TriggerFunc) (*httptest.Server, *db.DB) {
	t.Helper()
	database, err := db.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	sourceID, err := database.EnsureSource("ss.lv", "https://www.ss.example", "Latvia", "")
	require.NoError(t, err)

	today := time.Now().Format("2006-01-02")
	for _, r := range []struct {
		id, brand, model string
		year, price      int
	}{
		{"1", "BMW", "320", 2015, 9500},
		{"2", "BMW", "320", 2016, 11000},
		{"3", "Audi", "A4", 2015, 10500},
	} {
		_, err := database.Reconcile(sourceID, "Latvia", parse.Record{
			ExternalID:  r.id,
			Brand:       r.brand,
			Model:       r.model,
			URL:         "https://www.ss.example/msg/" + r.id + ".html",
			Year:        intp(r.year),
			Price:       intp(r.price),
			Region:      "Rīga",
			ListingDate: today,
		})
		require.NoError(t, err)
	}

	srv := httptest.NewServer(NewRouter(database, trigger, zerolog.Nop()))
	t.Cleanup(srv.Close)
	return srv, database
}

func TestSearchEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Post(srv.URL+"/api/search", "application/json",
		strings.NewReader(`{"brand":"bmw"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Listings []db.ListingItem `json:"listings"`
		Count    int              `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 2, body.Count)
	for _, item := range body.Listings {
		assert.Equal(t, "BMW", item.Brand)
	}
}

func TestSearchEndpointBadBody(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Post(srv.URL+"/api/search", "application/json",
		strings.NewReader(`{broken`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetListingEndpoint(t *testing.T) {
	srv, database := newTestServer(t, nil)

	items, err := database.SearchListings(db.SearchFilter{Brand: "Audi"})
	require.NoError(t, err)
	require.Len(t, items, 1)

	resp, err := http.Get(srv.URL + "/api/listings/" + itoa(items[0].ID))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var item db.ListingItem
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&item))
	assert.Equal(t, "Audi", item.Brand)

	missing, err := http.Get(srv.URL + "/api/listings/99999")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)

	bad, err := http.Get(srv.URL + "/api/listings/not-a-number")
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestPopularEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/popular/brands")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var brands []db.BrandCount
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&brands))
	require.Len(t, brands, 2)
	assert.Equal(t, "BMW", brands[0].Brand)

	resp, err = http.Get(srv.URL + "/api/popular/models?brand=BMW")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var models []db.ModelCount
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&models))
	require.Len(t, models, 1)
	assert.Equal(t, "320", models[0].Model)
}

func TestPriceHistoryEndpointRequiresParams(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/price-history?brand=BMW")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/price-history?brand=BMW&model=320")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEstimateEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Post(srv.URL+"/api/estimate", "application/json",
		strings.NewReader(`{"brand":"BMW","model":"320","year":2015}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var est db.Estimate
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&est))
	assert.Equal(t, 2, est.SampleSize)

	missing, err := http.Post(srv.URL+"/api/estimate", "application/json",
		strings.NewReader(`{"brand":"Lada","model":"Niva","year":1995}`))
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)

	invalid, err := http.Post(srv.URL+"/api/estimate", "application/json",
		strings.NewReader(`{"brand":"BMW"}`))
	require.NoError(t, err)
	defer invalid.Body.Close()
	assert.Equal(t, http.StatusBadRequest, invalid.StatusCode)
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Counts  db.StatusCounts   `json:"counts"`
		Sources []db.SourceStatus `json:"sources"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 3, body.Counts.Listings)
	require.Len(t, body.Sources, 1)
	assert.Equal(t, "ss.lv", body.Sources[0].Name)
}

func TestTriggerEndpoint(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	trigger := func(ctx context.Context) (*crawler.Summary, error) {
		close(started)
		<-release
		return &crawler.Summary{Success: true}, nil
	}

	srv, _ := newTestServer(t, trigger)

	resp, err := http.Post(srv.URL+"/api/scrape/trigger", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	<-started

	// Second trigger while the first crawl is still running is rejected.
	busy, err := http.Post(srv.URL+"/api/scrape/trigger", "application/json", nil)
	require.NoError(t, err)
	defer busy.Body.Close()
	assert.Equal(t, http.StatusConflict, busy.StatusCode)

	close(release)
}

func TestTriggerEndpointUnconfigured(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Post(srv.URL+"/api/scrape/trigger", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
