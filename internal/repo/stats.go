// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-campustrace-backend/internal/domain"
)

// NotificationsStats returns the number of notifications for a recipient,
// how many are unread, and the newest CreatedAt (nil when there are none).
// The unread count is part of the result so that marking a notification read
// changes the derived ETag.
func NotificationsStats(ctx context.Context, db *gorm.DB, recipientID string) (count, unread int64, latest *time.Time, err error) {
	count, unread, err = CountNotifications(ctx, db, recipientID)
	if err != nil || count == 0 {
		return count, unread, nil, err
	}

	// avoid MAX() -> TEXT in SQLite
	var row struct {
		CreatedAt time.Time
	}
	if err = db.WithContext(ctx).Model(&domain.Notification{}).
		Where("recipient_id = ?", recipientID).
		Select("created_at").Order("created_at DESC").Limit(1).
		Scan(&row).Error; err != nil {
		return 0, 0, nil, err
	}
	return count, unread, &row.CreatedAt, nil
}

// MessagesStats returns the message count of a conversation and the newest
// CreatedAt among them (nil when empty).
func MessagesStats(ctx context.Context, db *gorm.DB, conversationID string) (count int64, latest *time.Time, err error) {
	q := func() *gorm.DB {
		return db.WithContext(ctx).Model(&domain.Message{}).Where("conversation_id = ?", conversationID)
	}

	if err = q().Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	var row struct {
		CreatedAt time.Time
	}
	if err = q().Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}
