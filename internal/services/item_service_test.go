package services

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"

	"gorm.io/gorm"

	"github.com/tbourn/go-campustrace-backend/internal/domain"
	"github.com/tbourn/go-campustrace-backend/internal/embedding"
)

type fixedTagger []string

func (f fixedTagger) Tags(context.Context, string, string) []string { return f }

func newItemSvc(t *testing.T, autoApprove bool) (*ItemService, *gorm.DB, *recNotifier, *recEnqueuer) {
	t.Helper()
	db := newSvcDB(t)
	n := &recNotifier{}
	q := &recEnqueuer{}
	return &ItemService{
		DB:          db,
		Tagger:      fixedTagger{"wallet", "leather"},
		Badges:      &BadgeService{DB: db, Notifier: n, Log: nopLog()},
		Matcher:     q,
		Notifier:    n,
		Log:         nopLog(),
		AutoApprove: autoApprove,
	}, db, n, q
}

func validInput() CreateItemInput {
	return CreateItemInput{
		TenantID: "t1",
		OwnerID:  "u1",
		Status:   domain.ItemFound,
		Category: "Accessories",
		Title:    "Brown wallet",
	}
}

func TestItemService_Create_Validation(t *testing.T) {
	s, _, _, _ := newItemSvc(t, true)
	ctx := context.Background()

	mutate := map[string]func(*CreateItemInput){
		"missing title":    func(in *CreateItemInput) { in.Title = "   " },
		"missing category": func(in *CreateItemInput) { in.Category = "" },
		"bad status":       func(in *CreateItemInput) { in.Status = "Stolen" },
		"workflow status":  func(in *CreateItemInput) { in.Status = domain.ItemRecovered },
		"bad image url":    func(in *CreateItemInput) { in.ImageURL = "not a url" },
		"missing tenant":   func(in *CreateItemInput) { in.TenantID = "" },
	}
	for name, fn := range mutate {
		t.Run(name, func(t *testing.T) {
			in := validInput()
			fn(&in)
			if _, err := s.Create(ctx, in); !errors.Is(err, ErrInvalidItem) {
				t.Fatalf("want ErrInvalidItem, got %v", err)
			}
		})
	}
}

func TestItemService_Create_EmbedsTagsAndTriggers(t *testing.T) {
	s, db, n, q := newItemSvc(t, true)
	ctx := context.Background()

	var calls atomic.Int32
	s.Embedder = embedding.Func(func(_ context.Context, in embedding.Input) []float32 {
		calls.Add(1)
		if len(in.Image) > 0 {
			return []float32{0, 1}
		}
		if in.Text != "Brown wallet left in library" {
			t.Errorf("unexpected text input %q", in.Text)
		}
		return []float32{1, 0}
	})

	in := validInput()
	in.Description = "left in library"
	in.Image = []byte("jpeg")
	item, err := s.Create(ctx, in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("want 2 embedding calls, got %d", calls.Load())
	}

	got := mustItem(t, db, item.ID)
	if !reflect.DeepEqual([]float32(got.TextEmbedding), []float32{1, 0}) ||
		!reflect.DeepEqual([]float32(got.ImageEmbedding), []float32{0, 1}) {
		t.Fatalf("embeddings not stored: %v / %v", got.TextEmbedding, got.ImageEmbedding)
	}
	if !reflect.DeepEqual(got.Tags, []string{"wallet", "leather"}) {
		t.Fatalf("tagger tags not used: %v", got.Tags)
	}
	if got.ModerationStatus != domain.ModerationApproved {
		t.Fatalf("auto-approve not applied: %s", got.ModerationStatus)
	}
	if ids := q.queued(); len(ids) != 1 || ids[0] != item.ID {
		t.Fatalf("found item should be enqueued, got %v", ids)
	}
	if has, _ := hasBadge(ctx, db, "u1", domain.BadgeFirstPost); !has {
		t.Fatal("First Post not awarded")
	}
	if len(n.byKind(domain.KindBadge)) != 1 {
		t.Fatal("badge notification missing")
	}
}

func TestItemService_Create_ClientTagsAndMissingChannels(t *testing.T) {
	s, db, _, q := newItemSvc(t, false)
	s.Embedder = embedding.Nop{}

	in := validInput()
	in.Status = domain.ItemLost
	in.Tags = []string{" #Keys ", "keys", "Blue"}
	item, err := s.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got := mustItem(t, db, item.ID)
	if !reflect.DeepEqual(got.Tags, []string{"keys", "blue"}) {
		t.Fatalf("client tags not normalized: %v", got.Tags)
	}
	if got.TextEmbedding != nil || got.ImageEmbedding != nil {
		t.Fatalf("absent channels must stay NULL: %v / %v", got.TextEmbedding, got.ImageEmbedding)
	}
	if got.ModerationStatus != domain.ModerationPending {
		t.Fatalf("want pending moderation, got %s", got.ModerationStatus)
	}
	if len(q.queued()) != 0 {
		t.Fatal("lost/pending items must not be enqueued")
	}
}

func TestItemService_ListByTenantAndMine(t *testing.T) {
	s, db, _, _ := newItemSvc(t, true)
	ctx := context.Background()

	seedItem(t, db, domain.Item{OwnerID: "u1", CreatedAt: at(1)})
	seedItem(t, db, domain.Item{OwnerID: "u1", Status: domain.ItemLost, Category: "Keys", CreatedAt: at(2)})
	seedItem(t, db, domain.Item{OwnerID: "u1", ModerationStatus: domain.ModerationPending, CreatedAt: at(3)})
	seedItem(t, db, domain.Item{OwnerID: "u2", TenantID: "t2", CreatedAt: at(4)})

	items, total, err := s.ListByTenant(ctx, "t1", "", "", 1, 10)
	if err != nil || total != 2 || len(items) != 2 {
		t.Fatalf("ListByTenant = %d/%d, %v", len(items), total, err)
	}
	if items[0].Category != "Keys" {
		t.Fatalf("want newest first, got %+v", items[0])
	}

	keys, total, _ := s.ListByTenant(ctx, "t1", domain.ItemLost, "Keys", 1, 10)
	if total != 1 || len(keys) != 1 {
		t.Fatalf("filtered list = %d", total)
	}
	if _, _, err := s.ListByTenant(ctx, "t1", "Stolen", "", 1, 10); !errors.Is(err, ErrInvalidItem) {
		t.Fatalf("want ErrInvalidItem for unknown status, got %v", err)
	}

	mine, total, err := s.ListMine(ctx, "u1", 1, 2)
	if err != nil || total != 3 || len(mine) != 2 {
		t.Fatalf("ListMine = %d/%d, %v", len(mine), total, err)
	}

	none, total, err := s.ListMine(ctx, "nobody", 0, 0)
	if err != nil || total != 0 || none == nil {
		t.Fatalf("empty ListMine = %#v/%d, %v", none, total, err)
	}
}

func TestItemService_Moderate(t *testing.T) {
	s, db, n, q := newItemSvc(t, false)
	ctx := context.Background()

	item := seedItem(t, db, domain.Item{OwnerID: "u1", ModerationStatus: domain.ModerationPending})

	if _, err := s.Moderate(ctx, "t1", item.ID, domain.ModerationRecovered); !errors.Is(err, ErrInvalidModeration) {
		t.Fatalf("want ErrInvalidModeration, got %v", err)
	}
	if _, err := s.Moderate(ctx, "t1", "nope", domain.ModerationApproved); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("want ErrItemNotFound, got %v", err)
	}
	if _, err := s.Moderate(ctx, "t2", item.ID, domain.ModerationApproved); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("want ErrItemNotFound for another tenant's admin, got %v", err)
	}

	got, err := s.Moderate(ctx, "t1", item.ID, domain.ModerationApproved)
	if err != nil {
		t.Fatalf("Moderate: %v", err)
	}
	if got.ModerationStatus != domain.ModerationApproved {
		t.Fatalf("status not applied: %+v", got)
	}
	if m := n.byKind(domain.KindModeration); len(m) != 1 || m[0].RecipientID != "u1" {
		t.Fatalf("owner not notified: %+v", m)
	}
	if ids := q.queued(); len(ids) != 1 || ids[0] != item.ID {
		t.Fatalf("approved Found item should be enqueued, got %v", ids)
	}

	inFlow := seedItem(t, db, domain.Item{ModerationStatus: domain.ModerationPendingReturn})
	if _, err := s.Moderate(ctx, "t1", inFlow.ID, domain.ModerationRejected); !errors.Is(err, ErrItemInWorkflow) {
		t.Fatalf("want ErrItemInWorkflow, got %v", err)
	}
}
