// Package services – ConversationService
//
// Conversations connect the finder and the claimant of an item. The claim
// workflow creates them on approval; any other user may also open one with
// an item's owner to ask about it. Only the two parties can read or post.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-campustrace-backend/internal/domain"
	"github.com/tbourn/go-campustrace-backend/internal/notify"
	"github.com/tbourn/go-campustrace-backend/internal/repo"
	"github.com/tbourn/go-campustrace-backend/internal/utils"
)

const defaultMaxMessageRunes = 2000

// ConversationService manages item conversations and their messages.
type ConversationService struct {
	DB       *gorm.DB
	Notifier notify.Notifier
	Log      zerolog.Logger

	// Optional guard; 0 uses defaultMaxMessageRunes.
	MaxMessageRunes int
}

// GetOrCreate returns the conversation for the triple, creating it on first
// use. Repeated calls return the same conversation.
func (s *ConversationService) GetOrCreate(ctx context.Context, itemID, finderID, claimantID string) (*domain.Conversation, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "GetOrCreate",
		trace.WithAttributes(
			attribute.String("item.id", itemID),
			attribute.String("finder.id", finderID),
			attribute.String("claimant.id", claimantID),
		),
	)
	defer span.End()

	if finderID == claimantID {
		return nil, ErrSelfConversation
	}
	if _, err := repo.GetItem(ctx, s.DB, itemID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	conv, _, err := repo.GetOrCreateConversation(ctx, s.DB, itemID, finderID, claimantID)
	return conv, err
}

// Open starts (or resumes) a conversation between userID and the owner of
// itemID within tenantID. For a Found item the owner is the finder; for a
// Lost item the caller is treated as the finder.
func (s *ConversationService) Open(ctx context.Context, tenantID, userID, itemID string) (*domain.Conversation, error) {
	item, err := getTenantItem(ctx, s.DB, tenantID, itemID)
	if err != nil {
		return nil, err
	}
	if item.OwnerID == userID {
		return nil, ErrSelfConversation
	}
	if item.Status == domain.ItemLost {
		return s.GetOrCreate(ctx, item.ID, userID, item.OwnerID)
	}
	return s.GetOrCreate(ctx, item.ID, item.OwnerID, userID)
}

// Get returns a conversation visible to userID.
func (s *ConversationService) Get(ctx context.Context, userID, convID string) (*domain.Conversation, error) {
	conv, err := repo.GetConversation(ctx, s.DB, convID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	if !conv.Participant(userID) {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

// ListForUser returns every conversation userID takes part in.
func (s *ConversationService) ListForUser(ctx context.Context, userID string) ([]domain.Conversation, error) {
	return repo.ListConversationsForUser(ctx, s.DB, userID)
}

// Send posts a message from userID and notifies the other party.
func (s *ConversationService) Send(ctx context.Context, userID, convID, content string) (*domain.Message, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("conversation.id", convID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	max := s.MaxMessageRunes
	if max <= 0 {
		max = defaultMaxMessageRunes
	}
	if utf8.RuneCountInString(content) > max {
		return nil, ErrMessageTooLong
	}

	conv, err := s.Get(ctx, userID, convID)
	if err != nil {
		return nil, err
	}

	msg, err := repo.CreateMessage(s.DB.WithContext(ctx), conv.ID, userID, content)
	if err != nil {
		return nil, err
	}

	other := conv.FinderID
	if other == userID {
		other = conv.ClaimantID
	}
	tenant := ""
	if item, err := repo.GetItem(ctx, s.DB, conv.ItemID); err == nil {
		tenant = item.TenantID
	} else {
		s.Log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("message notification without tenant")
	}
	notify.MultiNotify(ctx, s.Notifier, s.Log, notify.Request{
		RecipientID: other,
		TenantID:    tenant,
		Kind:        domain.KindMessage,
		Message:     fmt.Sprintf("New message: %s", preview(content, 80)),
		Link:        "/messages/" + conv.ID,
	})
	return msg, nil
}

// ListMessages returns one page of a conversation, oldest first, and the
// total message count.
func (s *ConversationService) ListMessages(ctx context.Context, userID, convID string, page, pageSize int) ([]domain.Message, int64, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "ListMessages",
		trace.WithAttributes(
			attribute.String("conversation.id", convID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	page, pageSize = utils.NormalizePage(page, pageSize)

	if _, err := s.Get(ctx, userID, convID); err != nil {
		return nil, 0, err
	}

	total, err := repo.CountMessages(s.DB.WithContext(ctx), convID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	msgs, err := repo.ListMessagesPage(s.DB.WithContext(ctx), convID, utils.Offset(page, pageSize), pageSize)
	return msgs, total, err
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}

// MessageStats returns the message count and newest timestamp of a
// conversation visible to userID, for conditional GETs.
func (s *ConversationService) MessageStats(ctx context.Context, userID, convID string) (int64, *time.Time, error) {
	if _, err := s.Get(ctx, userID, convID); err != nil {
		return 0, nil, err
	}
	return repo.MessagesStats(ctx, s.DB, convID)
}
