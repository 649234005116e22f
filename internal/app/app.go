// Package app assembles the CampusTrace process: storage, embedding,
// notifications, services, the HTTP server and the background workers.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/go-campustrace-backend/internal/config"
	"github.com/tbourn/go-campustrace-backend/internal/embedding"
	httpapi "github.com/tbourn/go-campustrace-backend/internal/http"
	"github.com/tbourn/go-campustrace-backend/internal/http/handlers"
	"github.com/tbourn/go-campustrace-backend/internal/notify"
	"github.com/tbourn/go-campustrace-backend/internal/observability"
	"github.com/tbourn/go-campustrace-backend/internal/repo"
	"github.com/tbourn/go-campustrace-backend/internal/services"
)

const (
	janitorEvery    = 15 * time.Minute
	shutdownTimeout = 15 * time.Second
)

// App is a fully wired process.
type App struct {
	Cfg      config.Config
	Log      zerolog.Logger
	DB       *gorm.DB
	Services handlers.Services
	Matcher  *services.ProactiveMatcher
	Server   *http.Server

	shutdownTracing observability.Shutdown
	closeOnce       sync.Once
	closeErr        error
}

// OpenDB opens the configured database, attaches query tracing, migrates
// the schema and seeds the badge catalog.
func OpenDB(ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	dsn := cfg.DB.Path
	if cfg.DB.Driver == "postgres" {
		dsn = cfg.DB.URL
	}
	db, err := repo.Open(cfg.DB.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DB.Driver, err)
	}
	if err := repo.Instrument(db); err != nil {
		return nil, fmt.Errorf("instrument db: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := repo.SeedBadges(ctx, db); err != nil {
		return nil, fmt.Errorf("seed badges: %w", err)
	}
	return db, nil
}

// New wires every component. Nothing is started until Run.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger, version string) (*App, error) {
	shutdown, err := observability.SetupTracing(ctx, cfg.OTEL, version)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	db, err := OpenDB(ctx, cfg)
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}

	a := &App{Cfg: cfg, Log: log, DB: db, shutdownTracing: shutdown}
	a.Services, a.Matcher = buildServices(db, cfg, log)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, a.Services, cfg)

	a.Server = &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
	return a, nil
}

func buildServices(db *gorm.DB, cfg config.Config, log zerolog.Logger) (handlers.Services, *services.ProactiveMatcher) {
	embedder, tagger := newEmbedding(cfg.Embedding, log)

	var push notify.PushSender
	if cfg.Push.Enabled {
		push = notify.NewExpoSender(cfg.Push.Endpoint, cfg.Push.Timeout)
	}
	n := notify.NewDispatcher(db, push, log)

	matcher := services.NewProactiveMatcher(db, n, log, services.ProactiveConfig{
		Threshold:  cfg.Proactive.Threshold,
		Workers:    cfg.Proactive.Workers,
		QueueSize:  cfg.Proactive.QueueSize,
		MaxRetries: uint(cfg.Proactive.MaxRetries),
	})
	badges := &services.BadgeService{DB: db, Notifier: n, Log: log}

	return handlers.Services{
		Items: &services.ItemService{
			DB:          db,
			Embedder:    embedder,
			Tagger:      tagger,
			Badges:      badges,
			Matcher:     matcher,
			Notifier:    n,
			Log:         log,
			AutoApprove: cfg.AutoApproveItems,
		},
		Matches:       &services.MatchService{DB: db, Embedder: embedder},
		Claims:        &services.ClaimService{DB: db, Notifier: n, Badges: badges, Log: log},
		Handover:      &services.HandoverService{DB: db, Notifier: n, Badges: badges, Log: log},
		Badges:        badges,
		Conversations: &services.ConversationService{DB: db, Notifier: n, Log: log},
		Notifications: &services.NotificationService{DB: db},
	}, matcher
}

func newEmbedding(cfg config.EmbeddingConfig, log zerolog.Logger) (embedding.Provider, embedding.Tagger) {
	if !cfg.Enabled() {
		log.Warn().Msg("embedding backend not configured; matching scores will be zero")
		return embedding.Nop{}, embedding.KeywordTagger{}
	}
	p := embedding.NewOpenAIProvider(embedding.Config{
		BaseURL:        cfg.BaseURL,
		APIKey:         cfg.APIKey,
		TextModel:      cfg.TextModel,
		ImageModel:     cfg.ImageModel,
		Timeout:        cfg.Timeout,
		MaxConcurrency: cfg.MaxConcurrency,
		ImageMaxSide:   cfg.ImageMaxSide,
	}, log)
	if cfg.TaggerModel == "" {
		return p, embedding.KeywordTagger{}
	}
	return p, &embedding.ChatTagger{Provider: p, Model: cfg.TaggerModel, Log: log, Fallback: embedding.KeywordTagger{}}
}

// Run serves HTTP and runs the background workers until ctx is cancelled
// or the listener fails, then shuts down: HTTP first, then the matcher,
// then tracing.
func (a *App) Run(ctx context.Context) error {
	a.Matcher.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Log.Info().Str("addr", a.Server.Addr).Msg("http server listening")
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		a.purgeIdempotency(gctx, janitorEvery)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return a.Close()
	})
	return g.Wait()
}

// Close stops the server, the matcher and the trace exporter. Later calls
// return the first result.
func (a *App) Close() error {
	a.closeOnce.Do(func() { a.closeErr = a.close() })
	return a.closeErr
}

func (a *App) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if a.Matcher != nil {
		a.Matcher.Stop()
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracing shutdown: %w", err))
		}
	}
	a.Log.Info().Msg("shutdown complete")
	return errors.Join(errs...)
}

// purgeIdempotency deletes expired Idempotency-Key records every interval
// until ctx ends.
func (a *App) purgeIdempotency(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, a.DB, now.UTC())
			if err != nil {
				a.Log.Warn().Err(err).Msg("idempotency purge failed")
				continue
			}
			if n > 0 {
				a.Log.Debug().Int64("rows", n).Msg("idempotency keys purged")
			}
		}
	}
}
