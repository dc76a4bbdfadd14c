package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"car-market/internal/crawler"
	"car-market/internal/db"
)

// TriggerFunc runs a crawl on demand. Nil disables the trigger endpoint.
type TriggerFunc func(ctx context.Context) (*crawler.Summary, error)

// Handlers contains HTTP handlers and their dependencies
type Handlers struct {
	db      *db.DB
	trigger TriggerFunc
	log     zerolog.Logger

	crawlMu      sync.Mutex
	crawlRunning bool
}

// NewHandlers creates a new Handlers instance
func NewHandlers(database *db.DB, trigger TriggerFunc, log zerolog.Logger) *Handlers {
	return &Handlers{db: database, trigger: trigger, log: log}
}

// searchRequest is the POST /api/search body. Unknown fields are ignored.
type searchRequest struct {
	Brand        string `json:"brand"`
	Model        string `json:"model"`
	Region       string `json:"region"`
	EngineType   string `json:"engine_type"`
	Transmission string `json:"transmission"`
	YearFrom     *int   `json:"year_from"`
	YearTo       *int   `json:"year_to"`
	PriceMin     *int   `json:"price_min"`
	PriceMax     *int   `json:"price_max"`
	IncludeSold  bool   `json:"include_sold"`
	Limit        int    `json:"limit"`
	Offset       int    `json:"offset"`
}

// Search handles POST /api/search
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	listings, err := h.db.SearchListings(db.SearchFilter{
		Brand:        req.Brand,
		Model:        req.Model,
		Region:       req.Region,
		EngineType:   req.EngineType,
		Transmission: req.Transmission,
		YearFrom:     req.YearFrom,
		YearTo:       req.YearTo,
		PriceMin:     req.PriceMin,
		PriceMax:     req.PriceMax,
		ActiveOnly:   !req.IncludeSold,
		Limit:        req.Limit,
		Offset:       req.Offset,
	})
	if err != nil {
		h.serverError(w, err)
		return
	}

	writeJSON(w, map[string]interface{}{
		"listings": listings,
		"count":    len(listings),
	})
}

// GetListing handles GET /api/listings/{id}
func (h *Handlers) GetListing(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid listing ID", http.StatusBadRequest)
		return
	}

	listing, err := h.db.GetListing(id)
	if err != nil {
		h.serverError(w, err)
		return
	}
	if listing == nil {
		http.Error(w, "listing not found", http.StatusNotFound)
		return
	}

	writeJSON(w, listing)
}

// PopularBrands handles GET /api/popular/brands
func (h *Handlers) PopularBrands(w http.ResponseWriter, r *http.Request) {
	brands, err := h.db.PopularBrands(queryInt(r, "limit", 10))
	if err != nil {
		h.serverError(w, err)
		return
	}
	writeJSON(w, brands)
}

// PopularModels handles GET /api/popular/models?brand=
func (h *Handlers) PopularModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.db.PopularModels(r.URL.Query().Get("brand"), queryInt(r, "limit", 10))
	if err != nil {
		h.serverError(w, err)
		return
	}
	writeJSON(w, models)
}

// PriceHistory handles GET /api/price-history?brand=&model=&months=
func (h *Handlers) PriceHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	brand, model := q.Get("brand"), q.Get("model")
	if brand == "" || model == "" {
		http.Error(w, "brand and model are required", http.StatusBadRequest)
		return
	}

	history, err := h.db.PriceHistory(brand, model, queryInt(r, "months", 6))
	if err != nil {
		h.serverError(w, err)
		return
	}
	writeJSON(w, history)
}

// estimateRequest is the POST /api/estimate body.
type estimateRequest struct {
	Brand        string `json:"brand"`
	Model        string `json:"model"`
	Year         int    `json:"year"`
	EngineType   string `json:"engine_type"`
	Transmission string `json:"transmission"`
}

// Estimate handles POST /api/estimate
func (h *Handlers) Estimate(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Brand == "" || req.Model == "" || req.Year == 0 {
		http.Error(w, "brand, model and year are required", http.StatusBadRequest)
		return
	}

	estimate, err := h.db.EstimateValue(req.Brand, req.Model, req.Year, req.EngineType, req.Transmission)
	if err != nil {
		h.serverError(w, err)
		return
	}
	if estimate == nil {
		http.Error(w, "not enough comparable listings", http.StatusNotFound)
		return
	}

	writeJSON(w, estimate)
}

// Status handles GET /api/status
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	counts, err := h.db.Counts()
	if err != nil {
		h.serverError(w, err)
		return
	}
	sources, err := h.db.Sources()
	if err != nil {
		h.serverError(w, err)
		return
	}

	writeJSON(w, map[string]interface{}{
		"counts":  counts,
		"sources": sources,
	})
}

// TriggerScrape handles POST /api/scrape/trigger. At most one crawl runs at a
// time; a second trigger while one is in flight gets 409.
func (h *Handlers) TriggerScrape(w http.ResponseWriter, r *http.Request) {
	if h.trigger == nil {
		http.Error(w, "scrape trigger not configured", http.StatusServiceUnavailable)
		return
	}

	h.crawlMu.Lock()
	if h.crawlRunning {
		h.crawlMu.Unlock()
		http.Error(w, "a crawl is already running", http.StatusConflict)
		return
	}
	h.crawlRunning = true
	h.crawlMu.Unlock()

	go func() {
		defer func() {
			h.crawlMu.Lock()
			h.crawlRunning = false
			h.crawlMu.Unlock()
		}()
		if _, err := h.trigger(context.Background()); err != nil {
			h.log.Error().Err(err).Msg("triggered crawl failed")
		}
	}()

	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]string{
		"status":  "started",
		"message": "crawl started in background",
	})
}

func (h *Handlers) serverError(w http.ResponseWriter, err error) {
	h.log.Error().Err(err).Msg("request failed")
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
