// Package notify persists in-app notifications and forwards them to push
// devices on a best-effort basis.
package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-campustrace-backend/internal/domain"
	"github.com/tbourn/go-campustrace-backend/internal/repo"
)

// Request describes one notification. DedupeKey is optional; when set, a
// second request with the same key is dropped.
type Request struct {
	RecipientID string
	TenantID    string
	Message     string
	Link        string
	Kind        domain.NotificationKind
	DedupeKey   string
}

// Notifier is what the workflow services depend on. Delivered is false when
// the request was suppressed as a duplicate. An error means the in-app row
// could not be written; push problems are never reported.
type Notifier interface {
	Notify(ctx context.Context, req Request) (delivered bool, err error)
}

// Dispatcher is the production Notifier.
type Dispatcher struct {
	DB   *gorm.DB
	Push PushSender // optional
	Log  zerolog.Logger
}

// NewDispatcher wires a Dispatcher. push may be nil.
func NewDispatcher(db *gorm.DB, push PushSender, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{DB: db, Push: push, Log: log.With().Str("component", "notify").Logger()}
}

// Notify implements Notifier.
func (d *Dispatcher) Notify(ctx context.Context, req Request) (bool, error) {
	ctx, span := otel.Tracer("notify").Start(ctx, "Notify",
		trace.WithAttributes(
			attribute.String("recipient.id", req.RecipientID),
			attribute.String("notification.kind", string(req.Kind)),
		))
	defer span.End()

	if req.RecipientID == "" {
		return false, fmt.Errorf("notify: empty recipient")
	}
	kind := domain.ParseNotificationKind(string(req.Kind))
	n := &domain.Notification{
		RecipientID: req.RecipientID,
		TenantID:    req.TenantID,
		Message:     req.Message,
		Link:        req.Link,
		Kind:        kind,
	}
	if req.DedupeKey != "" {
		key := req.DedupeKey
		n.DedupeKey = &key
	}

	inserted, err := repo.CreateNotification(ctx, d.DB, n)
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("persist notification: %w", err)
	}
	if !inserted {
		return false, nil
	}

	d.push(ctx, n)
	return true, nil
}

func (d *Dispatcher) push(ctx context.Context, n *domain.Notification) {
	if d.Push == nil {
		return
	}
	tokens, err := repo.ListPushTokens(ctx, d.DB, n.RecipientID)
	if err != nil {
		d.Log.Warn().Err(err).Str("recipient_id", n.RecipientID).Msg("push: token lookup failed")
		return
	}
	if len(tokens) == 0 {
		return
	}

	p := n.Kind.Push()
	msgs := make([]PushMessage, 0, len(tokens))
	for _, tok := range tokens {
		msgs = append(msgs, PushMessage{
			To:        tok,
			Title:     p.Title,
			Body:      n.Message,
			ChannelID: p.ChannelID,
			Priority:  p.Priority,
			Sound:     "default",
			Data: map[string]string{
				"type":            string(n.Kind),
				"link":            n.Link,
				"notification_id": n.ID,
			},
		})
	}

	dead, err := d.Push.Send(ctx, msgs)
	if err != nil {
		d.Log.Warn().Err(err).Str("recipient_id", n.RecipientID).Msg("push delivery failed")
	}
	for _, tok := range dead {
		if err := repo.DeletePushToken(ctx, d.DB, tok); err != nil {
			d.Log.Warn().Err(err).Msg("push: failed to drop unregistered token")
		}
	}
}

// MultiNotify sends each request and logs failures. It is meant for the
// post-commit fan-out of workflow transitions, where nothing can be undone.
func MultiNotify(ctx context.Context, n Notifier, log zerolog.Logger, reqs ...Request) {
	if n == nil {
		return
	}
	for _, r := range reqs {
		if _, err := n.Notify(ctx, r); err != nil {
			log.Warn().Err(err).
				Str("recipient_id", r.RecipientID).
				Str("kind", string(r.Kind)).
				Msg("notification dropped")
		}
	}
}
