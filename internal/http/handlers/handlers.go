// Package handlers adapts HTTP requests to the application services. The
// handlers only parse input, read the caller identity set by middleware.Auth,
// call one service method and translate the result or error.
package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-campustrace-backend/internal/domain"
	"github.com/tbourn/go-campustrace-backend/internal/services"
	"github.com/tbourn/go-campustrace-backend/internal/utils"
)

// ItemService is the item surface used by the handlers.
type ItemService interface {
	Create(ctx context.Context, in services.CreateItemInput) (*domain.Item, error)
	Get(ctx context.Context, id string) (*domain.Item, error)
	ListByTenant(ctx context.Context, tenantID string, status domain.ItemStatus, category string, page, pageSize int) ([]domain.Item, int64, error)
	ListMine(ctx context.Context, ownerID string, page, pageSize int) ([]domain.Item, int64, error)
	Moderate(ctx context.Context, tenantID, itemID string, status domain.ModerationStatus) (*domain.Item, error)
}

// MatchService ranks candidate items.
type MatchService interface {
	FindMatches(ctx context.Context, userID, lostItemID string, opts services.MatchOptions) ([]services.Match, error)
	SearchByImage(ctx context.Context, tenantID string, image []byte, threshold float64, n int) ([]services.Match, error)
}

// ClaimService drives claims up to recovery.
type ClaimService interface {
	Submit(ctx context.Context, tenantID, claimantID, itemID, message string) (*domain.Claim, error)
	ListForItem(ctx context.Context, tenantID, userID, itemID string) ([]domain.Claim, error)
	Respond(ctx context.Context, finderID, claimID string, approve bool) (*services.RespondResult, error)
	MarkRecovered(ctx context.Context, userID, itemID string) (*domain.Item, error)
}

// HandoverService runs the code-verified handover.
type HandoverService interface {
	Start(ctx context.Context, claimantID, itemID string) (string, error)
	Complete(ctx context.Context, finderID, itemID, code string) (*domain.Item, error)
	ThankYou(ctx context.Context, claimantID, itemID, message string) (*domain.ThankYouNote, error)
	ListThankYouNotes(ctx context.Context, userID string) ([]domain.ThankYouNote, error)
}

// BadgeService lists earned badges.
type BadgeService interface {
	List(ctx context.Context, userID string) ([]domain.UserBadge, error)
}

// ConversationService is the chat surface.
type ConversationService interface {
	Open(ctx context.Context, tenantID, userID, itemID string) (*domain.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]domain.Conversation, error)
	Send(ctx context.Context, userID, convID, content string) (*domain.Message, error)
	ListMessages(ctx context.Context, userID, convID string, page, pageSize int) ([]domain.Message, int64, error)
	MessageStats(ctx context.Context, userID, convID string) (int64, *time.Time, error)
}

// NotificationService is the inbox surface.
type NotificationService interface {
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Notification, int64, error)
	Stats(ctx context.Context, userID string) (services.NotificationStats, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	RegisterPushToken(ctx context.Context, userID, token string) error
}

// IdempotencyRecorder stores the resource created under an Idempotency-Key.
type IdempotencyRecorder interface {
	Record(ctx context.Context, userID, scope, key, resourceID string, status int) error
}

// Options carries the tunables the handlers apply on behalf of callers.
type Options struct {
	MatchThreshold       float64
	MatchLimit           int
	MatchTextWeight      float64
	MatchImageWeight     float64
	ImageSearchThreshold float64
	ImageSearchLimit     int
	MaxUploadBytes       int64
}

// Services bundles the handler dependencies.
type Services struct {
	Items         ItemService
	Matches       MatchService
	Claims        ClaimService
	Handover      HandoverService
	Badges        BadgeService
	Conversations ConversationService
	Notifications NotificationService
	Idempotency   IdempotencyRecorder // optional
}

// Handlers holds every endpoint.
type Handlers struct {
	svc  Services
	opts Options
}

// New returns Handlers over svc.
func New(svc Services, opts Options) *Handlers {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 8 << 20
	}
	return &Handlers{svc: svc, opts: opts}
}

// Pagination is the paging block of list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func pagination(page, pageSize int, total int64) Pagination {
	pages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{Page: page, PageSize: pageSize, Total: total, TotalPages: pages, HasNext: page < pages}
}

// pageParams reads page and page_size with the same bounds the services use.
func pageParams(c *gin.Context) (page, pageSize int) {
	return utils.NormalizePage(
		utils.AtoiDefault(c.Query("page"), 1),
		utils.AtoiDefault(c.Query("page_size"), utils.DefaultPageSize),
	)
}
