// Command bot runs the Hadith chat bot: the Telegram long-poll loop, the
// update-processing pipeline, the operational HTTP server (health and
// Prometheus metrics), and the background sweeps for expired cache entries
// and idle rate-limit windows.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-hadith-bot/internal/bot"
	"github.com/tbourn/go-hadith-bot/internal/cache"
	"github.com/tbourn/go-hadith-bot/internal/config"
	"github.com/tbourn/go-hadith-bot/internal/hadith"
	httpapi "github.com/tbourn/go-hadith-bot/internal/http"
	"github.com/tbourn/go-hadith-bot/internal/observability"
	"github.com/tbourn/go-hadith-bot/internal/repo"
	"github.com/tbourn/go-hadith-bot/internal/sysutil"
	"github.com/tbourn/go-hadith-bot/internal/transport"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	_ = godotenv.Load()
	cfg := config.MustLoad()

	// Logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Info().Str("version", version).Msg("starting hadith bot")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tracing
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(c); err != nil {
			log.Error().Err(err).Msg("otel shutdown failed")
		}
	}()

	// Storage
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	// Domain services
	store := cache.New(db, cfg.CacheTTL)
	client := hadith.NewClient(cfg.API.BaseURL, cfg.API.ClientName, cfg.API.Timeout, cfg.API.RPS, cfg.API.Burst)
	hadiths := hadith.NewService(db, store, client)

	// Transport + pipeline
	tg := transport.NewTelegram(cfg.Telegram.APIBase, cfg.Telegram.Token, cfg.Telegram.PollTimeout)
	gate := bot.NewGate(db, tg, cfg.AdminIDs)
	limiter := bot.NewLimiter(cfg.Rate)
	responder := bot.NewResponder(tg)

	router := bot.NewRouter()
	handlers := &bot.Handlers{
		DB:              db,
		Hadiths:         hadiths,
		Transport:       tg,
		Limiter:         limiter,
		AdminOpsEnabled: cfg.AdminOpsEnabled,
	}
	handlers.Register(router)

	pipeline := bot.NewPipeline(gate, limiter, router, responder, tg, cfg.SlowUpdate)

	var wg sync.WaitGroup

	// Operational HTTP surface
	srv := httpapi.NewServer(db, cfg)
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	// Background sweeps
	wg.Add(1)
	go func() {
		defer wg.Done()
		runSweeps(ctx, store, limiter, cfg)
	}()

	// Inbound updates. Each update is handled on its own goroutine so one
	// slow handler cannot stall the poll loop.
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := tg.Poll(ctx, func(ctx context.Context, u bot.Update) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				pipeline.HandleUpdate(ctx, u)
			}()
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("poll loop exited")
		}
		stop()
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}

	wg.Wait()
	log.Info().Msg("bye")
}

// runSweeps drives the two periodic maintenance tasks until ctx is canceled:
// deleting expired cache rows and evicting idle rate-limit windows.
func runSweeps(ctx context.Context, store *cache.Store, limiter *bot.Limiter, cfg config.Config) {
	cacheTick := time.NewTicker(cfg.CacheSweep)
	defer cacheTick.Stop()
	rateTick := time.NewTicker(cfg.Rate.SweepInterval)
	defer rateTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cacheTick.C:
			if n := store.Sweep(ctx); n > 0 {
				log.Debug().Int64("deleted", n).Msg("cache sweep")
			}
		case <-rateTick.C:
			if n := limiter.Sweep(); n > 0 {
				log.Debug().Int("evicted", n).Msg("rate window sweep")
			}
		}
	}
}
