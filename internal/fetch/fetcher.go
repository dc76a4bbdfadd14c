// Package fetch issues polite HTTP requests against the classifieds site:
// rotating identity headers, a process-wide concurrency cap, retry with
// backoff, and a bounded-TTL response cache.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrBlocked marks responses that look like rate limiting or bot blocking
// (HTTP 403/429). Callers treat it as "no data this attempt", never fatal.
var ErrBlocked = errors.New("blocked by server")

// defaultUserAgents is the identity pool requests rotate through.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// Renderer fetches a page through a real browser; used as a fallback once
// plain HTTP keeps getting blocked.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// Config holds fetcher settings.
type Config struct {
	Concurrency    int           // in-flight request cap
	Retries        int           // retries after the first attempt
	RetryDelay     time.Duration // base backoff unit
	Timeout        time.Duration // per-request timeout
	RatePerSecond  float64       // token-bucket pacing across all requests
	DelayMin       time.Duration // politeness delay bounds between requests
	DelayMax       time.Duration
	Referer        string
	AcceptLanguage string
	UserAgents     []string
	DebugDir       string // when set, every body is written here
	BlockThreshold int    // consecutive blocks before the renderer kicks in
}

// DefaultConfig returns the settings a polite crawl uses.
func DefaultConfig() Config {
	return Config{
		Concurrency:    3,
		Retries:        3,
		RetryDelay:     time.Second,
		Timeout:        10 * time.Second,
		RatePerSecond:  2,
		DelayMin:       500 * time.Millisecond,
		DelayMax:       2 * time.Second,
		AcceptLanguage: "en-US,en;q=0.9,lv;q=0.8",
		UserAgents:     defaultUserAgents,
		BlockThreshold: 5,
	}
}

// Fetcher is safe for concurrent use.
type Fetcher struct {
	client   *http.Client
	cfg      Config
	sem      chan struct{}
	limiter  *rate.Limiter
	cache    *Cache
	renderer Renderer
	log      zerolog.Logger

	blocked chan int // consecutive-block counter, guarded by channel handoff
}

// New creates a fetcher. cache and renderer may be nil.
func New(cfg Config, cache *Cache, renderer Renderer, log zerolog.Logger) *Fetcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = defaultUserAgents
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 2
	}
	f := &Fetcher{
		client:   &http.Client{Timeout: cfg.Timeout},
		cfg:      cfg,
		sem:      make(chan struct{}, cfg.Concurrency),
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Concurrency),
		cache:    cache,
		renderer: renderer,
		log:      log.With().Str("component", "fetch").Logger(),
		blocked:  make(chan int, 1),
	}
	f.blocked <- 0
	return f
}

// Fetch GETs a URL, serving from cache when a fresh entry exists. On
// exhausted retries it returns an error the orchestrator logs and moves past.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if f.cache != nil {
		if body, ok := f.cache.Get(url); ok {
			f.log.Debug().Str("url", url).Msg("cache hit")
			return body, nil
		}
	}

	select {
	case f.sem <- struct{}{}:
		defer func() { <-f.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if err := f.politenessDelay(ctx); err != nil {
		return nil, err
	}

	body, err := f.fetchWithRetries(ctx, url)
	if err != nil {
		if errors.Is(err, ErrBlocked) && f.shouldRender() {
			return f.renderFallback(ctx, url)
		}
		return nil, err
	}

	f.resetBlocked()
	f.store(url, body)
	return body, nil
}

func (f *Fetcher) fetchWithRetries(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= f.cfg.Retries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, f.backoff(lastErr, attempt)); err != nil {
				return nil, err
			}
		}

		body, err := f.doRequest(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if errors.Is(err, ErrBlocked) {
			f.bumpBlocked()
			f.log.Warn().Str("url", url).Int("attempt", attempt+1).Msg("rate limited, backing off")
		} else {
			f.log.Warn().Str("url", url).Int("attempt", attempt+1).Err(err).Msg("request failed")
		}
	}

	return nil, fmt.Errorf("fetch %s: %w", url, lastErr)
}

func (f *Fetcher) doRequest(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.cfg.UserAgents[rand.Intn(len(f.cfg.UserAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml")
	req.Header.Set("Accept-Language", f.cfg.AcceptLanguage)
	req.Header.Set("Connection", "keep-alive")
	if f.cfg.Referer != "" {
		req.Header.Set("Referer", f.cfg.Referer)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return io.ReadAll(resp.Body)
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("HTTP %d: %w", resp.StatusCode, ErrBlocked)
	default:
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
}

// backoff is linear for transient failures and doubled per attempt for
// blocking signals, the more punitive failure class.
func (f *Fetcher) backoff(err error, attempt int) time.Duration {
	d := f.cfg.RetryDelay * time.Duration(attempt)
	if errors.Is(err, ErrBlocked) {
		d *= 2
	}
	return d
}

func (f *Fetcher) politenessDelay(ctx context.Context) error {
	if f.cfg.DelayMax <= f.cfg.DelayMin {
		return nil
	}
	jitter := time.Duration(rand.Int63n(int64(f.cfg.DelayMax - f.cfg.DelayMin)))
	return sleep(ctx, f.cfg.DelayMin+jitter)
}

func (f *Fetcher) store(url string, body []byte) {
	if f.cache != nil {
		f.cache.Put(url, body)
	}
	if f.cfg.DebugDir != "" {
		f.writeDebug(url, body)
	}
}

// writeDebug persists the raw HTML for offline selector development.
func (f *Fetcher) writeDebug(url string, body []byte) {
	if err := os.MkdirAll(f.cfg.DebugDir, 0755); err != nil {
		f.log.Warn().Err(err).Msg("debug dir")
		return
	}
	name := strings.NewReplacer("/", "_", ":", "", "?", "_", "&", "_").Replace(url) + ".html"
	if err := os.WriteFile(filepath.Join(f.cfg.DebugDir, name), body, 0644); err != nil {
		f.log.Warn().Err(err).Str("url", url).Msg("debug write failed")
	}
}

func (f *Fetcher) bumpBlocked() {
	n := <-f.blocked
	f.blocked <- n + 1
}

func (f *Fetcher) resetBlocked() {
	<-f.blocked
	f.blocked <- 0
}

func (f *Fetcher) shouldRender() bool {
	if f.renderer == nil {
		return false
	}
	n := <-f.blocked
	f.blocked <- n
	return n >= f.cfg.BlockThreshold
}

func (f *Fetcher) renderFallback(ctx context.Context, url string) ([]byte, error) {
	f.log.Info().Str("url", url).Msg("falling back to rendered fetch")
	html, err := f.renderer.Render(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("rendered fetch %s: %w", url, err)
	}
	body := []byte(html)
	f.store(url, body)
	return body, nil
}

func sleep(ctx context.Context, d time.Duration) error {
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
