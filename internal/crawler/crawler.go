// Package crawler walks the classifieds category tree (brands, models,
// listing pages) and reconciles what it finds into the store.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"car-market/internal/db"
	"car-market/internal/parse"
)

// Fetcher retrieves page bodies. Satisfied by fetch.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Geocoder resolves region names to coordinates. Satisfied by geo.Geocoder.
type Geocoder interface {
	Geocode(ctx context.Context, region string) (lat, lng float64, err error)
}

// ErrNoBrands means the category root yielded nothing: either the markup
// changed or the crawl was blocked end to end. The run is aborted rather than
// sweeping every listing stale on bad input.
var ErrNoBrands = errors.New("no brands discovered")

// priorityBrands are crawled first so an interrupted run still covers the
// brands with the deepest inventories.
var priorityBrands = []string{
	"Audi", "BMW", "Volkswagen", "Mercedes", "Toyota", "Volvo",
	"Ford", "Opel", "Peugeot", "Renault", "Skoda",
}

// Config controls the shape and size of one crawl.
type Config struct {
	SourceName string
	BaseURL    string
	StartPath  string // category root, e.g. /lv/transport/cars/
	Country    string // country attached to newly seen regions

	MaxBrands         int // 0 means all
	MaxModelsPerBrand int
	MaxPagesPerModel  int
	DetailConcurrency int
	StaleAfter        time.Duration
	TargetBrands      []string // restrict the crawl to these brands
	PriorityBrands    []string // crawled first; defaults to the built-in list
	GeocodeRegions    int      // regions geocoded per run, 0 disables

	ModelDelayMin time.Duration
	ModelDelayMax time.Duration
	BrandDelayMin time.Duration
	BrandDelayMax time.Duration
}

// DefaultConfig returns the politeness and depth settings a nightly run uses.
func DefaultConfig() Config {
	return Config{
		MaxPagesPerModel:  3,
		DetailConcurrency: 3,
		StaleAfter:        14 * 24 * time.Hour,
		GeocodeRegions:    10,
		ModelDelayMin:     time.Second,
		ModelDelayMax:     3 * time.Second,
		BrandDelayMin:     2 * time.Second,
		BrandDelayMax:     5 * time.Second,
	}
}

// Summary reports what one run did.
type Summary struct {
	Success     bool      `json:"success"`
	Total       int       `json:"total"`
	New         int       `json:"new"`
	Updated     int       `json:"updated"`
	Unchanged   int       `json:"unchanged"`
	Discarded   int       `json:"discarded"`
	Deactivated int64     `json:"deactivated"`
	Errors      int       `json:"errors"`
	Elapsed     float64   `json:"elapsed_seconds"`
	Timestamp   time.Time `json:"timestamp"`
	Error       string    `json:"error,omitempty"`
}

// Crawler drives one source end to end.
type Crawler struct {
	cfg      Config
	fetcher  Fetcher
	store    *db.DB
	geocoder Geocoder // nil disables geocoding
	log      zerolog.Logger
}

// New creates a crawler. geocoder may be nil.
func New(cfg Config, fetcher Fetcher, store *db.DB, geocoder Geocoder, log zerolog.Logger) *Crawler {
	if cfg.DetailConcurrency <= 0 {
		cfg.DetailConcurrency = 3
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 14 * 24 * time.Hour
	}
	if len(cfg.PriorityBrands) == 0 {
		cfg.PriorityBrands = priorityBrands
	}
	return &Crawler{
		cfg:      cfg,
		fetcher:  fetcher,
		store:    store,
		geocoder: geocoder,
		log:      log.With().Str("component", "crawler").Logger(),
	}
}

// Run performs one full crawl. Per-brand and per-listing failures are counted
// and skipped; the only fatal condition is failing to discover any brands.
func (c *Crawler) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	summary := &Summary{Timestamp: start}

	sourceID, err := c.store.EnsureSource(c.cfg.SourceName, c.cfg.BaseURL, c.cfg.Country, c.cfg.StartPath)
	if err != nil {
		return c.fail(summary, start, err)
	}

	rootURL := strings.TrimRight(c.cfg.BaseURL, "/") + c.cfg.StartPath
	body, err := c.fetcher.Fetch(ctx, rootURL)
	if err != nil {
		return c.fail(summary, start, fmt.Errorf("failed to fetch category root: %w", err))
	}

	brands := parse.Brands(string(body), c.cfg.BaseURL, c.cfg.StartPath)
	if len(brands) == 0 {
		return c.fail(summary, start, fmt.Errorf("%w at %s", ErrNoBrands, rootURL))
	}

	brands = c.selectBrands(brands)
	c.log.Info().Int("brands", len(brands)).Msg("starting crawl")

	for i, brand := range brands {
		if err := ctx.Err(); err != nil {
			return c.fail(summary, start, err)
		}
		if i > 0 {
			if err := c.pause(ctx, c.cfg.BrandDelayMin, c.cfg.BrandDelayMax); err != nil {
				return c.fail(summary, start, err)
			}
		}
		c.crawlBrand(ctx, sourceID, brand, summary)
	}

	deactivated, err := c.store.SweepStale(start.Add(-c.cfg.StaleAfter))
	if err != nil {
		c.log.Error().Err(err).Msg("stale sweep failed")
		summary.Errors++
	}
	summary.Deactivated = deactivated

	c.geocodeRegions(ctx)

	if err := c.store.TouchSource(sourceID); err != nil {
		c.log.Error().Err(err).Msg("failed to stamp source")
		summary.Errors++
	}

	summary.Success = true
	summary.Elapsed = time.Since(start).Seconds()
	c.log.Info().
		Int("total", summary.Total).
		Int("new", summary.New).
		Int("updated", summary.Updated).
		Int("unchanged", summary.Unchanged).
		Int("discarded", summary.Discarded).
		Int64("deactivated", summary.Deactivated).
		Int("errors", summary.Errors).
		Dur("elapsed", time.Since(start)).
		Msg("crawl finished")
	return summary, nil
}

// selectBrands applies the allow-list, moves priority brands to the front,
// and truncates to MaxBrands.
func (c *Crawler) selectBrands(brands []parse.Category) []parse.Category {
	if len(c.cfg.TargetBrands) > 0 {
		allowed := make(map[string]bool, len(c.cfg.TargetBrands))
		for _, name := range c.cfg.TargetBrands {
			allowed[strings.ToLower(name)] = true
		}
		var kept []parse.Category
		for _, b := range brands {
			if allowed[strings.ToLower(b.Name)] {
				kept = append(kept, b)
			}
		}
		brands = kept
	}

	rank := make(map[string]int, len(c.cfg.PriorityBrands))
	for i, name := range c.cfg.PriorityBrands {
		rank[strings.ToLower(name)] = i
	}
	var front, rest []parse.Category
	for _, b := range brands {
		if _, ok := rank[strings.ToLower(b.Name)]; ok {
			front = append(front, b)
		} else {
			rest = append(rest, b)
		}
	}
	for i := 1; i < len(front); i++ {
		for j := i; j > 0 && rank[strings.ToLower(front[j].Name)] < rank[strings.ToLower(front[j-1].Name)]; j-- {
			front[j], front[j-1] = front[j-1], front[j]
		}
	}
	ordered := append(front, rest...)

	if c.cfg.MaxBrands > 0 && len(ordered) > c.cfg.MaxBrands {
		ordered = ordered[:c.cfg.MaxBrands]
	}
	return ordered
}

func (c *Crawler) crawlBrand(ctx context.Context, sourceID int64, brand parse.Category, summary *Summary) {
	c.log.Info().Str("brand", brand.Name).Msg("crawling brand")

	body, err := c.fetcher.Fetch(ctx, brand.URL)
	if err != nil {
		c.log.Error().Str("brand", brand.Name).Err(err).Msg("brand page failed")
		summary.Errors++
		return
	}

	models := parse.Models(string(body), c.cfg.BaseURL, urlPath(brand.URL), brand.Name)
	if c.cfg.MaxModelsPerBrand > 0 && len(models) > c.cfg.MaxModelsPerBrand {
		models = models[:c.cfg.MaxModelsPerBrand]
	}

	// Some small brands list cars directly on the brand page.
	if len(models) == 0 {
		c.crawlModelPages(ctx, sourceID, brand.Name, brand.Name, brand.URL, string(body), summary)
		return
	}

	for i, model := range models {
		if ctx.Err() != nil {
			return
		}
		if i > 0 {
			if err := c.pause(ctx, c.cfg.ModelDelayMin, c.cfg.ModelDelayMax); err != nil {
				return
			}
		}
		c.crawlModel(ctx, sourceID, brand.Name, model, summary)
	}
}

func (c *Crawler) crawlModel(ctx context.Context, sourceID int64, brand string, model parse.Category, summary *Summary) {
	body, err := c.fetcher.Fetch(ctx, model.URL)
	if err != nil {
		c.log.Error().Str("brand", brand).Str("model", model.Name).Err(err).Msg("model page failed")
		summary.Errors++
		return
	}
	c.crawlModelPages(ctx, sourceID, brand, model.Name, model.URL, string(body), summary)
}

// crawlModelPages walks the pagination chain starting from an already-fetched
// first page.
func (c *Crawler) crawlModelPages(ctx context.Context, sourceID int64, brand, model, pageURL, html string, summary *Summary) {
	maxPages := c.cfg.MaxPagesPerModel
	if maxPages <= 0 {
		maxPages = 1
	}

	for page := 1; ; page++ {
		records := parse.Index(html, c.cfg.BaseURL, brand, model)
		c.log.Debug().Str("brand", brand).Str("model", model).Int("page", page).Int("records", len(records)).Msg("index page parsed")

		detailed := c.fetchDetails(ctx, records, summary)
		for _, rec := range detailed {
			c.reconcile(sourceID, rec, summary)
		}

		if page >= maxPages || len(records) == 0 {
			return
		}
		next, ok := parse.NextPage(html, c.cfg.BaseURL)
		if !ok || next == pageURL {
			return
		}

		body, err := c.fetcher.Fetch(ctx, next)
		if err != nil {
			c.log.Error().Str("url", next).Err(err).Msg("next page failed")
			summary.Errors++
			return
		}
		pageURL, html = next, string(body)
	}
}

// fetchDetails enriches index records from their listing pages, a bounded
// number in flight at a time. A failed detail fetch keeps the index-level
// record rather than losing the listing.
func (c *Crawler) fetchDetails(ctx context.Context, records []parse.Record, summary *Summary) []parse.Record {
	detailed := make([]parse.Record, len(records))
	errs := make([]bool, len(records))

	var wg sync.WaitGroup
	sem := make(chan struct{}, c.cfg.DetailConcurrency)

	for i, rec := range records {
		wg.Add(1)
		go func(i int, rec parse.Record) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			body, err := c.fetcher.Fetch(ctx, rec.URL)
			if err != nil {
				c.log.Warn().Str("url", rec.URL).Err(err).Msg("detail page failed")
				detailed[i] = rec
				errs[i] = true
				return
			}
			detailed[i] = parse.Detail(string(body), rec, time.Now())
		}(i, rec)
	}
	wg.Wait()

	for _, failed := range errs {
		if failed {
			summary.Errors++
		}
	}
	return detailed
}

func (c *Crawler) reconcile(sourceID int64, rec parse.Record, summary *Summary) {
	summary.Total++

	if !rec.Viable() {
		summary.Discarded++
		return
	}

	outcome, err := c.store.Reconcile(sourceID, c.cfg.Country, rec)
	if err != nil {
		c.log.Error().Str("external_id", rec.ExternalID).Err(err).Msg("reconcile failed")
		summary.Errors++
		return
	}
	switch outcome {
	case db.OutcomeCreated:
		summary.New++
	case db.OutcomeUpdated:
		summary.Updated++
	case db.OutcomeUnchanged:
		summary.Unchanged++
	case db.OutcomeRejected:
		summary.Discarded++
	}
}

// geocodeRegions resolves coordinates for regions that lack them, a bounded
// number per run with a one-second gap per Nominatim's usage policy.
func (c *Crawler) geocodeRegions(ctx context.Context) {
	if c.geocoder == nil || c.cfg.GeocodeRegions <= 0 {
		return
	}

	regions, err := c.store.RegionsMissingCoords(c.cfg.GeocodeRegions)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to list ungeocoded regions")
		return
	}

	for i, region := range regions {
		if ctx.Err() != nil {
			return
		}
		if i > 0 {
			if err := c.pause(ctx, time.Second, time.Second+time.Millisecond); err != nil {
				return
			}
		}
		lat, lng, err := c.geocoder.Geocode(ctx, region.Name+", "+region.Country)
		if err != nil {
			c.log.Warn().Str("region", region.Name).Err(err).Msg("geocode failed")
			continue
		}
		if err := c.store.SetRegionCoords(region.ID, lat, lng); err != nil {
			c.log.Error().Str("region", region.Name).Err(err).Msg("failed to save coordinates")
		}
	}
}

func (c *Crawler) fail(summary *Summary, start time.Time, err error) (*Summary, error) {
	summary.Success = false
	summary.Error = err.Error()
	summary.Elapsed = time.Since(start).Seconds()
	return summary, err
}

func (c *Crawler) pause(ctx context.Context, min, max time.Duration) error {
	d := min
	if max > min {
		d += time.Duration(rand.Int63n(int64(max - min)))
	}
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func urlPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Path
}
