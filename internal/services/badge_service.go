// Package services – BadgeService
//
// BadgeService awards achievement badges when a user crosses a milestone.
// Awarding is idempotent: the catalog lookup, the ownership check and the
// insert can race with a concurrent award, and the unique (user, badge)
// index makes the loser a no-op. Trigger methods never fail the calling
// workflow; problems are logged and dropped.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-campustrace-backend/internal/domain"
	"github.com/tbourn/go-campustrace-backend/internal/notify"
	"github.com/tbourn/go-campustrace-backend/internal/observability"
	"github.com/tbourn/go-campustrace-backend/internal/repo"
)

// BadgeTriggers is the part of BadgeService the item workflows call into.
type BadgeTriggers interface {
	OnItemPosted(ctx context.Context, userID, tenantID string)
	OnItemRecovered(ctx context.Context, finderID, tenantID string)
}

type milestone struct {
	min   int64
	badge string
}

var (
	postedMilestones    = []milestone{{1, domain.BadgeFirstPost}}
	foundMilestones     = []milestone{{10, domain.BadgeGoodSamaritan}}
	recoveredMilestones = []milestone{{1, domain.BadgeFirstReturn}, {5, domain.BadgeCampusHero}}
)

// BadgeService awards and lists badges.
type BadgeService struct {
	DB       *gorm.DB
	Notifier notify.Notifier
	Log      zerolog.Logger
}

// Award grants badgeName to userID. It reports true only when this call
// inserted the badge; a badge already held is (false, nil).
func (s *BadgeService) Award(ctx context.Context, userID, badgeName, tenantID string) (bool, error) {
	tr := otel.Tracer("services/BadgeService")
	ctx, span := tr.Start(ctx, "Award",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("badge.name", badgeName),
		),
	)
	defer span.End()

	badge, err := repo.GetBadgeByName(ctx, s.DB, badgeName)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, ErrBadgeNotFound
		}
		return false, err
	}

	has, err := repo.HasBadge(ctx, s.DB, userID, badge.ID)
	if err != nil {
		return false, err
	}
	if has {
		return false, nil
	}

	inserted, err := repo.InsertUserBadge(ctx, s.DB, userID, badge.ID, tenantID)
	if err != nil || !inserted {
		return false, err
	}

	observability.BadgesAwarded.WithLabelValues(badge.Name).Inc()
	notify.MultiNotify(ctx, s.Notifier, s.Log, notify.Request{
		RecipientID: userID,
		TenantID:    tenantID,
		Kind:        domain.KindBadge,
		Message:     fmt.Sprintf("You earned the %q badge!", badge.Name),
		Link:        "/profile/badges",
	})
	return true, nil
}

// OnItemPosted evaluates the posting milestones for userID.
func (s *BadgeService) OnItemPosted(ctx context.Context, userID, tenantID string) {
	posted, err := repo.CountItems(ctx, s.DB, repo.ItemFilter{OwnerID: userID})
	if err != nil {
		s.Log.Warn().Err(err).Str("user_id", userID).Msg("badges: count posts failed")
		return
	}
	s.awardReached(ctx, userID, tenantID, posted, postedMilestones)

	found, err := repo.CountFoundReports(ctx, s.DB, userID)
	if err != nil {
		s.Log.Warn().Err(err).Str("user_id", userID).Msg("badges: count found reports failed")
		return
	}
	s.awardReached(ctx, userID, tenantID, found, foundMilestones)
}

// OnItemRecovered evaluates the return milestones for the finder.
func (s *BadgeService) OnItemRecovered(ctx context.Context, finderID, tenantID string) {
	n, err := repo.CountRecoveredByFinder(ctx, s.DB, finderID)
	if err != nil {
		s.Log.Warn().Err(err).Str("user_id", finderID).Msg("badges: count returns failed")
		return
	}
	s.awardReached(ctx, finderID, tenantID, n, recoveredMilestones)
}

func (s *BadgeService) awardReached(ctx context.Context, userID, tenantID string, count int64, ms []milestone) {
	for _, m := range ms {
		if count < m.min {
			continue
		}
		if _, err := s.Award(ctx, userID, m.badge, tenantID); err != nil {
			s.Log.Warn().Err(err).
				Str("user_id", userID).
				Str("badge", m.badge).
				Msg("badge award failed")
		}
	}
}

// List returns the badges userID has earned.
func (s *BadgeService) List(ctx context.Context, userID string) ([]domain.UserBadge, error) {
	tr := otel.Tracer("services/BadgeService")
	ctx, span := tr.Start(ctx, "List", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	return repo.ListUserBadges(ctx, s.DB, userID)
}
