package services

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/go-campustrace-backend/internal/domain"
	"github.com/tbourn/go-campustrace-backend/internal/embedding"
)

func TestMatchService_FindMatches_Guards(t *testing.T) {
	db := newSvcDB(t)
	s := &MatchService{DB: db}
	ctx := context.Background()

	lost := seedItem(t, db, domain.Item{OwnerID: "loser", Status: domain.ItemLost})
	found := seedItem(t, db, domain.Item{})

	cases := []struct {
		name   string
		user   string
		itemID string
		opts   MatchOptions
		want   error
	}{
		{"no threshold", "loser", lost.ID, MatchOptions{}, ErrThresholdRequired},
		{"missing item", "loser", "nope", MatchOptions{Threshold: 0.5}, ErrItemNotFound},
		{"not owner", "someone", lost.ID, MatchOptions{Threshold: 0.5}, ErrNotItemOwner},
		{"not lost", "finder", found.ID, MatchOptions{Threshold: 0.5}, ErrItemNotLost},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.FindMatches(ctx, tc.user, tc.itemID, tc.opts)
			if !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
			if got == nil || len(got) != 0 {
				t.Fatalf("want empty non-nil slice, got %#v", got)
			}
		})
	}
}

func TestMatchService_FindMatches_NoVectorsNoMatches(t *testing.T) {
	db := newSvcDB(t)
	s := &MatchService{DB: db}
	lost := seedItem(t, db, domain.Item{OwnerID: "loser", Status: domain.ItemLost})
	seedItem(t, db, domain.Item{TextEmbedding: domain.Embedding{1, 0}})

	got, err := s.FindMatches(context.Background(), "loser", lost.ID, MatchOptions{Threshold: 0.01})
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("want empty result for an item without vectors, got %#v (%v)", got, err)
	}
}

func TestMatchService_FindMatches_RanksAndFilters(t *testing.T) {
	db := newSvcDB(t)
	s := &MatchService{DB: db}
	ctx := context.Background()

	lost := seedItem(t, db, domain.Item{
		OwnerID: "loser", Status: domain.ItemLost, CreatedAt: at(0),
		TextEmbedding: domain.Embedding{1, 0}, ImageEmbedding: domain.Embedding{1, 0},
		Tags: []string{"iphone", "black"},
	})
	textOnly := seedItem(t, db, domain.Item{
		CreatedAt: at(10), TextEmbedding: domain.Embedding{1, 0},
	})
	both := seedItem(t, db, domain.Item{
		CreatedAt: at(5), TextEmbedding: domain.Embedding{1, 0}, ImageEmbedding: domain.Embedding{1, 0},
		Tags: []string{"iphone", "black"},
	})
	seedItem(t, db, domain.Item{CreatedAt: at(6), TextEmbedding: domain.Embedding{0, 1}})
	seedItem(t, db, domain.Item{TenantID: "t2", TextEmbedding: domain.Embedding{1, 0}, ImageEmbedding: domain.Embedding{1, 0}})
	seedItem(t, db, domain.Item{ModerationStatus: domain.ModerationPending, TextEmbedding: domain.Embedding{1, 0}})

	got, err := s.FindMatches(ctx, "loser", lost.ID, MatchOptions{Threshold: 0.5})
	if err != nil {
		t.Fatalf("FindMatches: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 matches, got %d", len(got))
	}
	if got[0].Item.ID != both.ID || got[1].Item.ID != textOnly.ID {
		t.Fatalf("wrong order: %s, %s", got[0].Item.ID, got[1].Item.ID)
	}
	if got[0].Score < 0.999 || got[1].Score < 0.599 || got[1].Score > 0.601 {
		t.Fatalf("unexpected scores: %v %v", got[0].Score, got[1].Score)
	}
	if got[1].ImageScore != 0 {
		t.Fatalf("absent image channel must score 0, got %v", got[1].ImageScore)
	}
	if got[0].HeuristicScore <= got[1].HeuristicScore {
		t.Fatalf("tag overlap should raise the heuristic score: %d vs %d", got[0].HeuristicScore, got[1].HeuristicScore)
	}

	limited, _ := s.FindMatches(ctx, "loser", lost.ID, MatchOptions{Threshold: 0.5, Limit: 1})
	if len(limited) != 1 || limited[0].Item.ID != both.ID {
		t.Fatalf("limit not applied: %+v", limited)
	}

	textOnlyWeights, _ := s.FindMatches(ctx, "loser", lost.ID, MatchOptions{Threshold: 0.5, TextWeight: 1})
	if len(textOnlyWeights) != 2 || textOnlyWeights[0].Score != textOnlyWeights[1].Score {
		t.Fatalf("text-only weights should tie: %+v", textOnlyWeights)
	}
	if textOnlyWeights[0].Item.ID != textOnly.ID {
		t.Fatalf("ties must prefer the newer item, got %s", textOnlyWeights[0].Item.ID)
	}
}

func TestMatchService_SearchByImage(t *testing.T) {
	db := newSvcDB(t)
	ctx := context.Background()

	hit := seedItem(t, db, domain.Item{ImageEmbedding: domain.Embedding{0, 1}})
	seedItem(t, db, domain.Item{ImageEmbedding: domain.Embedding{1, 0}})
	seedItem(t, db, domain.Item{Status: domain.ItemLost, ImageEmbedding: domain.Embedding{0, 1}})

	s := &MatchService{DB: db, Embedder: embedding.Func(func(_ context.Context, in embedding.Input) []float32 {
		if len(in.Image) == 0 || in.Text != "" {
			t.Errorf("expected image-only input, got %+v", in)
		}
		return []float32{0, 1}
	})}

	got, err := s.SearchByImage(ctx, "t1", []byte("png"), 0.75, 10)
	if err != nil {
		t.Fatalf("SearchByImage: %v", err)
	}
	if len(got) != 1 || got[0].Item.ID != hit.ID {
		t.Fatalf("unexpected results: %+v", got)
	}

	if _, err := s.SearchByImage(ctx, "t1", nil, 0.75, 10); !errors.Is(err, ErrImageRequired) {
		t.Fatalf("want ErrImageRequired, got %v", err)
	}

	s.Embedder = embedding.Nop{}
	got, err = s.SearchByImage(ctx, "t1", []byte("png"), 0.75, 10)
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("absent embedding should yield empty result, got %+v, %v", got, err)
	}
}
