// Package services – ItemService
//
// ItemService owns the lifecycle of lost-and-found posts up to the point a
// claim is filed: creation (validation, tagging, embeddings), browsing, and
// admin moderation. Creation triggers badge evaluation and, for published
// Found items, a proactive matching task.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/go-campustrace-backend/internal/domain"
	"github.com/tbourn/go-campustrace-backend/internal/embedding"
	"github.com/tbourn/go-campustrace-backend/internal/notify"
	"github.com/tbourn/go-campustrace-backend/internal/repo"
	"github.com/tbourn/go-campustrace-backend/internal/similarity"
	"github.com/tbourn/go-campustrace-backend/internal/utils"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// CreateItemInput is a new Lost or Found post. Image is the raw photo used
// for the image embedding; ImageURL is where the client stored it.
type CreateItemInput struct {
	TenantID    string            `validate:"required,max=64"`
	OwnerID     string            `validate:"required,max=64"`
	Status      domain.ItemStatus `validate:"required,oneof=Lost Found"`
	Category    string            `validate:"required,max=64"`
	Title       string            `validate:"required,max=255"`
	Description string            `validate:"max=4000"`
	Location    string            `validate:"max=255"`
	ContactInfo string            `validate:"max=255"`
	ImageURL    string            `validate:"omitempty,url,max=2048"`
	Tags        []string          `validate:"max=20,dive,max=64"`
	Image       []byte            `validate:"-"`
}

func (in *CreateItemInput) normalize() {
	in.Category = strings.TrimSpace(in.Category)
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Location = strings.TrimSpace(in.Location)
	in.ContactInfo = strings.TrimSpace(in.ContactInfo)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
}

// ItemService coordinates item persistence and its side effects.
type ItemService struct {
	DB       *gorm.DB
	Embedder embedding.Provider
	Tagger   embedding.Tagger
	Badges   BadgeTriggers // optional
	Matcher  Enqueuer      // optional
	Notifier notify.Notifier
	Log      zerolog.Logger

	// AutoApprove publishes new items immediately instead of queueing them
	// for moderation.
	AutoApprove bool
}

// Create validates and stores a new item.
func (s *ItemService) Create(ctx context.Context, in CreateItemInput) (*domain.Item, error) {
	tr := otel.Tracer("services/ItemService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("tenant.id", in.TenantID),
			attribute.String("owner.id", in.OwnerID),
			attribute.String("item.status", string(in.Status)),
		),
	)
	defer span.End()

	in.normalize()
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidItem, describeValidation(err))
	}

	tags := similarity.NormalizeTags(in.Tags, embedding.MaxTags)
	if len(tags) == 0 && s.Tagger != nil {
		tags = s.Tagger.Tags(ctx, in.Title, in.Description)
	}
	if tags == nil {
		tags = []string{}
	}

	text, image := s.embed(ctx, in)

	moderation := domain.ModerationPending
	if s.AutoApprove {
		moderation = domain.ModerationApproved
	}
	item := &domain.Item{
		TenantID:         in.TenantID,
		OwnerID:          in.OwnerID,
		Status:           in.Status,
		ModerationStatus: moderation,
		Category:         in.Category,
		Title:            in.Title,
		Description:      in.Description,
		Location:         in.Location,
		ContactInfo:      in.ContactInfo,
		ImageURL:         in.ImageURL,
		TextEmbedding:    text,
		ImageEmbedding:   image,
		Tags:             tags,
	}
	if err := repo.CreateItem(ctx, s.DB, item); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if s.Badges != nil {
		s.Badges.OnItemPosted(ctx, item.OwnerID, item.TenantID)
	}
	s.maybeEnqueue(item)
	return item, nil
}

// embed computes the text and image vectors concurrently. Either may be nil.
func (s *ItemService) embed(ctx context.Context, in CreateItemInput) (text, image domain.Embedding) {
	if s.Embedder == nil {
		return nil, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		text = s.Embedder.Embed(gctx, embedding.Input{Text: strings.TrimSpace(in.Title + " " + in.Description)})
		return nil
	})
	if len(in.Image) > 0 {
		g.Go(func() error {
			image = s.Embedder.Embed(gctx, embedding.Input{Image: in.Image})
			return nil
		})
	}
	_ = g.Wait()
	return text, image
}

func (s *ItemService) maybeEnqueue(it *domain.Item) {
	if s.Matcher == nil {
		return
	}
	if it.Status == domain.ItemFound && it.ModerationStatus == domain.ModerationApproved {
		s.Matcher.Enqueue(it.ID)
	}
}

// Get returns one item.
func (s *ItemService) Get(ctx context.Context, id string) (*domain.Item, error) {
	it, err := repo.GetItem(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return it, nil
}

// getTenantItem loads id and hides items that belong to another tenant.
func getTenantItem(ctx context.Context, db *gorm.DB, tenantID, id string) (*domain.Item, error) {
	it, err := repo.GetItem(ctx, db, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	if it.TenantID != tenantID {
		return nil, ErrItemNotFound
	}
	return it, nil
}

// ListByTenant returns one page of published items in a tenant, newest
// first, optionally narrowed by status and category.
func (s *ItemService) ListByTenant(ctx context.Context, tenantID string, status domain.ItemStatus, category string, page, pageSize int) ([]domain.Item, int64, error) {
	tr := otel.Tracer("services/ItemService")
	ctx, span := tr.Start(ctx, "ListByTenant",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if status != "" && !status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrInvalidItem, status)
	}
	return s.listPage(ctx, repo.ItemFilter{
		TenantID:         tenantID,
		Status:           status,
		Category:         strings.TrimSpace(category),
		ModerationStatus: domain.ModerationApproved,
	}, page, pageSize)
}

// ListMine returns one page of ownerID's items in any moderation state.
func (s *ItemService) ListMine(ctx context.Context, ownerID string, page, pageSize int) ([]domain.Item, int64, error) {
	tr := otel.Tracer("services/ItemService")
	ctx, span := tr.Start(ctx, "ListMine", trace.WithAttributes(attribute.String("owner.id", ownerID)))
	defer span.End()

	return s.listPage(ctx, repo.ItemFilter{OwnerID: ownerID}, page, pageSize)
}

func (s *ItemService) listPage(ctx context.Context, f repo.ItemFilter, page, pageSize int) ([]domain.Item, int64, error) {
	page, pageSize = utils.NormalizePage(page, pageSize)

	total, err := repo.CountItems(ctx, s.DB, f)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Item{}, 0, nil
	}
	items, err := repo.ListItemsPage(ctx, s.DB, f, utils.Offset(page, pageSize), pageSize)
	return items, total, err
}

// Moderate sets an item's moderation status on behalf of an admin of
// tenantID. Items already in the return workflow cannot be moderated.
func (s *ItemService) Moderate(ctx context.Context, tenantID, itemID string, status domain.ModerationStatus) (*domain.Item, error) {
	tr := otel.Tracer("services/ItemService")
	ctx, span := tr.Start(ctx, "Moderate",
		trace.WithAttributes(
			attribute.String("item.id", itemID),
			attribute.String("moderation.status", string(status)),
		),
	)
	defer span.End()

	if !status.Moderatable() {
		return nil, ErrInvalidModeration
	}
	item, err := getTenantItem(ctx, s.DB, tenantID, itemID)
	if err != nil {
		return nil, err
	}
	if !item.ModerationStatus.Moderatable() {
		return nil, ErrItemInWorkflow
	}

	err = repo.UpdateItemGuarded(ctx, s.DB, item.ID, item.Version, map[string]any{"moderation_status": status})
	if err != nil {
		if errors.Is(err, repo.ErrStaleVersion) {
			return nil, ErrConcurrentUpdate
		}
		return nil, err
	}
	item.ModerationStatus = status
	item.Version++

	notify.MultiNotify(ctx, s.Notifier, s.Log, notify.Request{
		RecipientID: item.OwnerID,
		TenantID:    item.TenantID,
		Kind:        domain.KindModeration,
		Message:     fmt.Sprintf("Your post %q is now %s.", item.Title, status),
		Link:        "/items/" + item.ID,
	})
	s.maybeEnqueue(item)
	return item, nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return strings.ToLower(fe.Field()) + " is required"
	case "oneof":
		return strings.ToLower(fe.Field()) + " must be one of: " + fe.Param()
	case "max":
		return strings.ToLower(fe.Field()) + " is too long"
	case "url":
		return strings.ToLower(fe.Field()) + " must be a URL"
	}
	return fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag())
}
