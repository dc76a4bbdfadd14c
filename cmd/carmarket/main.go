package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"car-market/internal/api"
	"car-market/internal/config"
	"car-market/internal/crawler"
	"car-market/internal/db"
	"car-market/internal/fetch"
	"car-market/internal/geo"
	"car-market/internal/schedule"
)

var (
	cfgPath string
	cfg     config.Config
	log     zerolog.Logger
)

func main() {
	root := &cobra.Command{
		Use:   "carmarket",
		Short: "Car listings crawler and search API",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(cfgPath)
			if err != nil {
				return err
			}
			log = newLogger(cfg.Log)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file")

	root.AddCommand(crawlCmd(), serveCmd(), scheduleCmd(), statsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(lc config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(lc.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if lc.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func crawlCmd() *cobra.Command {
	var (
		maxBrands int
		maxModels int
		maxPages  int
		brands    []string
	)

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run one crawl and print the summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxBrands > 0 {
				cfg.Crawl.MaxBrands = maxBrands
			}
			if maxModels > 0 {
				cfg.Crawl.MaxModelsPerBrand = maxModels
			}
			if maxPages > 0 {
				cfg.Crawl.MaxPagesPerModel = maxPages
			}
			if len(brands) > 0 {
				cfg.Crawl.TargetBrands = brands
			}

			database, c, cleanup, err := buildCrawler()
			if err != nil {
				return err
			}
			defer cleanup()
			defer database.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			summary, err := c.Run(ctx)
			if summary != nil {
				out, _ := json.MarshalIndent(summary, "", "  ")
				fmt.Println(string(out))
			}
			return err
		},
	}

	cmd.Flags().IntVar(&maxBrands, "max-brands", 0, "limit the number of brands crawled")
	cmd.Flags().IntVar(&maxModels, "max-models", 0, "limit models per brand")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "limit index pages per model")
	cmd.Flags().StringSliceVar(&brands, "brands", nil, "only crawl these brands")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the search and analytics API",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, c, cleanup, err := buildCrawler()
			if err != nil {
				return err
			}
			defer cleanup()
			defer database.Close()

			trigger := func(ctx context.Context) (*crawler.Summary, error) {
				return c.Run(ctx)
			}

			addr := fmt.Sprintf(":%d", cfg.Server.Port)
			log.Info().Str("addr", addr).Msg("starting server")
			return http.ListenAndServe(addr, api.NewRouter(database, trigger, log))
		},
	}
}

func scheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run crawls on the configured cron schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, c, cleanup, err := buildCrawler()
			if err != nil {
				return err
			}
			defer cleanup()
			defer database.Close()

			sched := schedule.New(func(ctx context.Context) (*crawler.Summary, error) {
				return c.Run(ctx)
			}, log)
			if err := sched.Start(cfg.Crawl.Schedule); err != nil {
				return err
			}
			defer sched.Stop()

			log.Info().Str("schedule", cfg.Crawl.Schedule).Msg("scheduler started")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print store counts and source status",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := db.New(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer database.Close()

			counts, err := database.Counts()
			if err != nil {
				return err
			}
			sources, err := database.Sources()
			if err != nil {
				return err
			}

			out, _ := json.MarshalIndent(map[string]interface{}{
				"counts":  counts,
				"sources": sources,
			}, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
}

// buildCrawler wires the fetch stack, store and crawler from config. The
// returned cleanup closes the cache and browser.
func buildCrawler() (*db.DB, *crawler.Crawler, func(), error) {
	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return nil, nil, nil, err
	}

	cleanup := func() {}

	var cache *fetch.Cache
	if cfg.Fetch.CachePath != "" {
		cache, err = fetch.OpenCache(cfg.Fetch.CachePath, cfg.Fetch.CacheTTL.Std())
		if err != nil {
			database.Close()
			return nil, nil, nil, err
		}
	}

	var renderer fetch.Renderer
	if cfg.Fetch.UseBrowser {
		browser := fetch.NewBrowserRenderer(true)
		if err := browser.Start(); err != nil {
			log.Warn().Err(err).Msg("browser renderer unavailable")
		} else {
			renderer = browser
			cleanup = browser.Stop
		}
	}

	fcfg := fetch.DefaultConfig()
	fcfg.Retries = cfg.Fetch.Retries
	fcfg.RetryDelay = cfg.Fetch.RetryDelay.Std()
	fcfg.Timeout = cfg.Fetch.Timeout.Std()
	fcfg.RatePerSecond = cfg.Fetch.RatePerSecond
	fcfg.Referer = cfg.Source.BaseURL
	fcfg.DebugDir = cfg.Fetch.DebugDir
	fetcher := fetch.New(fcfg, cache, renderer, log)

	ccfg := crawler.DefaultConfig()
	ccfg.SourceName = cfg.Source.Name
	ccfg.BaseURL = cfg.Source.BaseURL
	ccfg.StartPath = cfg.Source.StartPath
	ccfg.Country = cfg.Source.Country
	ccfg.MaxBrands = cfg.Crawl.MaxBrands
	ccfg.MaxModelsPerBrand = cfg.Crawl.MaxModelsPerBrand
	ccfg.MaxPagesPerModel = cfg.Crawl.MaxPagesPerModel
	ccfg.DetailConcurrency = cfg.Crawl.DetailConcurrency
	ccfg.StaleAfter = cfg.Crawl.StaleAfter.Std()
	ccfg.TargetBrands = cfg.Crawl.TargetBrands
	ccfg.GeocodeRegions = cfg.Crawl.GeocodeRegions

	geocoder := geo.NewGeocoder(countryCode(cfg.Source.Country))
	c := crawler.New(ccfg, fetcher, database, geocoder, log)

	allCleanup := cleanup
	if cache != nil {
		prev := cleanup
		allCleanup = func() {
			prev()
			cache.Close()
		}
	}
	return database, c, allCleanup, nil
}

// countryCode maps the configured country name to an ISO code for Nominatim.
func countryCode(country string) string {
	switch country {
	case "Latvia":
		return "lv"
	case "Lithuania":
		return "lt"
	case "Estonia":
		return "ee"
	default:
		return ""
	}
}
