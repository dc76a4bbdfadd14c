// Package geo resolves region names to coordinates via Nominatim.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Geocoder handles region geocoding using Nominatim
type Geocoder struct {
	client      *http.Client
	userAgent   string
	baseURL     string
	countryCode string
}

// NominatimResult represents a geocoding result from Nominatim
type NominatimResult struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	DisplayName string  `json:"display_name"`
	Type        string  `json:"type"`
	Importance  float64 `json:"importance"`
}

// NewGeocoder creates a new Nominatim geocoder. countryCode narrows results
// to one country (e.g. "lv"); empty means no restriction.
func NewGeocoder(countryCode string) *Geocoder {
	return &Geocoder{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		userAgent:   "CarMarket/1.0 (vehicle listings search)",
		baseURL:     "https://nominatim.openstreetmap.org",
		countryCode: countryCode,
	}
}

// Geocode converts a region name to coordinates
func (g *Geocoder) Geocode(ctx context.Context, region string) (lat, lng float64, err error) {
	params := url.Values{}
	params.Set("q", region)
	params.Set("format", "json")
	params.Set("limit", "1")
	if g.countryCode != "" {
		params.Set("countrycodes", g.countryCode)
	}

	reqURL := fmt.Sprintf("%s/search?%s", g.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to create request: %w", err)
	}

	// Nominatim requires a valid User-Agent
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read response: %w", err)
	}

	var results []NominatimResult
	if err := json.Unmarshal(body, &results); err != nil {
		return 0, 0, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(results) == 0 {
		return 0, 0, fmt.Errorf("no results found for region: %s", region)
	}

	result := results[0]
	if _, err := fmt.Sscanf(result.Lat, "%f", &lat); err != nil {
		return 0, 0, fmt.Errorf("failed to parse latitude: %w", err)
	}
	if _, err := fmt.Sscanf(result.Lon, "%f", &lng); err != nil {
		return 0, 0, fmt.Errorf("failed to parse longitude: %w", err)
	}

	return lat, lng, nil
}
