package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-campustrace-backend/internal/domain"
	"github.com/tbourn/go-campustrace-backend/internal/repo"
	"github.com/tbourn/go-campustrace-backend/internal/utils"
)

// NotificationService exposes a user's notification inbox and push token
// registration. Notifications themselves are written by notify.Dispatcher.
type NotificationService struct {
	DB *gorm.DB
}

// NotificationStats summarizes an inbox for conditional GETs.
type NotificationStats struct {
	Count  int64
	Unread int64
	Latest *time.Time
}

// ListPage returns one page of userID's notifications, newest first, and
// the total count.
func (s *NotificationService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Notification, int64, error) {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	page, pageSize = utils.NormalizePage(page, pageSize)

	total, _, err := repo.CountNotifications(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Notification{}, 0, nil
	}
	out, err := repo.ListNotificationsPage(ctx, s.DB, userID, utils.Offset(page, pageSize), pageSize)
	return out, total, err
}

// Stats returns the counters used to derive the inbox ETag.
func (s *NotificationService) Stats(ctx context.Context, userID string) (NotificationStats, error) {
	count, unread, latest, err := repo.NotificationsStats(ctx, s.DB, userID)
	if err != nil {
		return NotificationStats{}, err
	}
	return NotificationStats{Count: count, Unread: unread, Latest: latest}, nil
}

// MarkRead marks one of userID's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "MarkRead", trace.WithAttributes(attribute.String("notification.id", id)))
	defer span.End()

	if err := repo.MarkNotificationRead(ctx, s.DB, id, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotificationNotFound
		}
		return err
	}
	return nil
}

// MarkAllRead marks every unread notification of userID and returns how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "MarkAllRead", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	return repo.MarkAllNotificationsRead(ctx, s.DB, userID)
}

// RegisterPushToken binds a device token to userID. A token registered by
// another user moves to userID.
func (s *NotificationService) RegisterPushToken(ctx context.Context, userID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyPushToken
	}
	return repo.SavePushToken(ctx, s.DB, userID, token)
}

