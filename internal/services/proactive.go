// Package services – ProactiveMatcher
//
// ProactiveMatcher notifies owners of Lost items when a newly published
// Found item is a near-certain match. Work is queued on a bounded channel
// and drained by a fixed pool of workers so item creation never waits on
// scanning. Each scan is independent; failures are logged and dropped.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-campustrace-backend/internal/domain"
	"github.com/tbourn/go-campustrace-backend/internal/notify"
	"github.com/tbourn/go-campustrace-backend/internal/observability"
	"github.com/tbourn/go-campustrace-backend/internal/repo"
	"github.com/tbourn/go-campustrace-backend/internal/similarity"
)

// Enqueuer accepts Found item IDs for proactive matching.
type Enqueuer interface {
	Enqueue(itemID string) bool
}

// ProactiveConfig tunes the matcher.
type ProactiveConfig struct {
	Threshold  float64 // default 0.90
	Workers    int     // default 2
	QueueSize  int     // default 256
	MaxRetries uint    // attempts per load, default 3

	// InitialBackoff is the first retry delay; 0 keeps the backoff default.
	InitialBackoff time.Duration
}

// ProactiveMatcher runs proactive scans in the background.
type ProactiveMatcher struct {
	DB       *gorm.DB
	Notifier notify.Notifier
	Log      zerolog.Logger
	cfg      ProactiveConfig

	queue chan string

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewProactiveMatcher builds a matcher; call Start to launch its workers.
func NewProactiveMatcher(db *gorm.DB, n notify.Notifier, log zerolog.Logger, cfg ProactiveConfig) *ProactiveMatcher {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.90
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	return &ProactiveMatcher{
		DB:       db,
		Notifier: n,
		Log:      log.With().Str("component", "proactive").Logger(),
		cfg:      cfg,
		queue:    make(chan string, cfg.QueueSize),
	}
}

// Start launches the worker pool. It is a no-op if already running.
func (m *ProactiveMatcher) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.running = true
	for i := 0; i < m.cfg.Workers; i++ {
		m.wg.Add(1)
		go m.worker(ctx)
	}
	m.Log.Info().Int("workers", m.cfg.Workers).Msg("proactive matcher started")
}

// Stop cancels the workers and waits for in-flight scans to return.
// Tasks still queued are discarded.
func (m *ProactiveMatcher) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.cancel()
	m.mu.Unlock()

	m.wg.Wait()
	m.Log.Info().Msg("proactive matcher stopped")
}

// Enqueue schedules a scan for itemID without blocking. It returns false
// when the queue is full.
func (m *ProactiveMatcher) Enqueue(itemID string) bool {
	select {
	case m.queue <- itemID:
		return true
	default:
		observability.ProactiveQueueDropped.Inc()
		m.Log.Warn().Str("item_id", itemID).Msg("proactive queue full, task dropped")
		return false
	}
}

func (m *ProactiveMatcher) worker(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-m.queue:
			m.run(ctx, id)
		}
	}
}

func (m *ProactiveMatcher) run(ctx context.Context, itemID string) {
	defer func() {
		if r := recover(); r != nil {
			m.Log.Error().Interface("panic", r).Str("item_id", itemID).Msg("proactive scan panicked")
		}
	}()
	if _, err := m.ScanNow(ctx, itemID); err != nil && !errors.Is(err, context.Canceled) {
		m.Log.Warn().Err(err).Str("item_id", itemID).Msg("proactive scan failed")
	}
}

// ScanNow runs one scan synchronously and returns how many owners were
// notified. Items that are not approved Found reports are skipped.
func (m *ProactiveMatcher) ScanNow(ctx context.Context, itemID string) (int, error) {
	tr := otel.Tracer("services/ProactiveMatcher")
	ctx, span := tr.Start(ctx, "ScanNow", trace.WithAttributes(attribute.String("item.id", itemID)))
	defer span.End()

	found, err := retry(ctx, m.cfg, func() (*domain.Item, error) {
		it, err := repo.GetItem(ctx, m.DB, itemID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, backoff.Permanent(ErrItemNotFound)
		}
		return it, err
	})
	if err != nil {
		return 0, err
	}
	if found.Status != domain.ItemFound || found.ModerationStatus != domain.ModerationApproved {
		return 0, nil
	}

	lost, err := retry(ctx, m.cfg, func() ([]domain.Item, error) {
		return repo.ListCandidates(ctx, m.DB, found.TenantID, domain.ItemLost, found.OwnerID)
	})
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range lost {
		l := &lost[i]
		sim := similarity.MaxChannel(found.TextEmbedding, l.TextEmbedding, found.ImageEmbedding, l.ImageEmbedding)
		if sim < m.cfg.Threshold {
			continue
		}
		delivered, err := m.Notifier.Notify(ctx, notify.Request{
			RecipientID: l.OwnerID,
			TenantID:    l.TenantID,
			Kind:        domain.KindMatch,
			Message:     fmt.Sprintf("A found item %q looks like your lost %q.", found.Title, l.Title),
			Link:        "/items/" + found.ID,
			DedupeKey:   MatchDedupeKey(l.OwnerID, found.ID),
		})
		switch {
		case err != nil:
			observability.ProactiveNotifications.WithLabelValues("failed").Inc()
			m.Log.Warn().Err(err).Str("recipient_id", l.OwnerID).Str("item_id", found.ID).Msg("proactive notification failed")
		case delivered:
			observability.ProactiveNotifications.WithLabelValues("sent").Inc()
			sent++
		default:
			observability.ProactiveNotifications.WithLabelValues("duplicate").Inc()
		}
	}
	span.SetAttributes(attribute.Int("notified", sent))
	return sent, nil
}

// MatchDedupeKey identifies a proactive match notification for recipient
// about a found item, so repeated scans never notify twice.
func MatchDedupeKey(recipientID, foundItemID string) string {
	return recipientID + "|" + foundItemID + "|" + string(domain.KindMatch)
}

func retry[T any](ctx context.Context, cfg ProactiveConfig, op backoff.Operation[T]) (T, error) {
	b := backoff.NewExponentialBackOff()
	if cfg.InitialBackoff > 0 {
		b.InitialInterval = cfg.InitialBackoff
	}
	return backoff.Retry(ctx, op, backoff.WithBackOff(b), backoff.WithMaxTries(cfg.MaxRetries))
}
