// Package services – MatchService
//
// MatchService ranks Found items against a Lost report by embedding
// similarity. Text and image channels are compared separately and blended
// with configurable weights; a channel missing on either side contributes
// nothing. The heuristic score (category, recency, tags, location) is
// reported alongside for display but does not affect ranking.
package services

import (
	"context"
	"errors"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-campustrace-backend/internal/domain"
	"github.com/tbourn/go-campustrace-backend/internal/embedding"
	"github.com/tbourn/go-campustrace-backend/internal/observability"
	"github.com/tbourn/go-campustrace-backend/internal/repo"
	"github.com/tbourn/go-campustrace-backend/internal/similarity"
)

const (
	defaultTextWeight  = 0.6
	defaultImageWeight = 0.4
	defaultMatchLimit  = 5
)

// MatchOptions tunes one match query. Threshold is required.
type MatchOptions struct {
	Threshold   float64
	Limit       int
	TextWeight  float64
	ImageWeight float64
}

func (o MatchOptions) weights() (float64, float64) {
	if o.TextWeight == 0 && o.ImageWeight == 0 {
		return defaultTextWeight, defaultImageWeight
	}
	return o.TextWeight, o.ImageWeight
}

// Match is one ranked candidate.
type Match struct {
	Item           domain.Item `json:"item"`
	Score          float64     `json:"score"`
	TextScore      float64     `json:"text_score"`
	ImageScore     float64     `json:"image_score"`
	HeuristicScore int         `json:"heuristic_score"`
}

// MatchService finds candidate Found items for Lost reports.
type MatchService struct {
	DB       *gorm.DB
	Embedder embedding.Provider
}

// FindMatches returns the Found items in the lost item's tenant whose
// combined similarity reaches opts.Threshold, best first. The result is
// never nil, even alongside an error.
func (s *MatchService) FindMatches(ctx context.Context, userID, lostItemID string, opts MatchOptions) ([]Match, error) {
	tr := otel.Tracer("services/MatchService")
	ctx, span := tr.Start(ctx, "FindMatches",
		trace.WithAttributes(
			attribute.String("item.id", lostItemID),
			attribute.String("user.id", userID),
			attribute.Float64("threshold", opts.Threshold),
		),
	)
	defer span.End()

	empty := []Match{}
	if opts.Threshold <= 0 {
		return empty, ErrThresholdRequired
	}

	lost, err := repo.GetItem(ctx, s.DB, lostItemID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return empty, ErrItemNotFound
		}
		return empty, err
	}
	if lost.OwnerID != userID {
		return empty, ErrNotItemOwner
	}
	if lost.Status != domain.ItemLost {
		return empty, ErrItemNotLost
	}

	if !lost.TextEmbedding.Present() && !lost.ImageEmbedding.Present() {
		span.SetAttributes(attribute.Int("matches", 0))
		return empty, nil
	}

	candidates, err := repo.ListCandidates(ctx, s.DB, lost.TenantID, domain.ItemFound, "")
	if err != nil {
		span.RecordError(err)
		return empty, err
	}

	wt, wi := opts.weights()
	out := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		if c.ID == lost.ID {
			continue
		}
		ts := similarity.Cosine(lost.TextEmbedding, c.TextEmbedding)
		is := similarity.Cosine(lost.ImageEmbedding, c.ImageEmbedding)
		score := similarity.Weighted(ts, is, wt, wi)
		if score < opts.Threshold {
			continue
		}
		out = append(out, Match{
			Item:           c,
			Score:          score,
			TextScore:      ts,
			ImageScore:     is,
			HeuristicScore: similarity.HeuristicScore(attributesOf(lost), attributesOf(&c)),
		})
	}

	rank(out)
	out = limit(out, opts.Limit)
	observability.MatchesReturned.Observe(float64(len(out)))
	span.SetAttributes(attribute.Int("matches", len(out)))
	return out, nil
}

// SearchByImage embeds a photo and compares it with the image channel of
// approved Found items in tenantID. When no image vector can be produced
// the result is empty.
func (s *MatchService) SearchByImage(ctx context.Context, tenantID string, image []byte, threshold float64, n int) ([]Match, error) {
	tr := otel.Tracer("services/MatchService")
	ctx, span := tr.Start(ctx, "SearchByImage",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.Int("image.bytes", len(image)),
		),
	)
	defer span.End()

	empty := []Match{}
	if len(image) == 0 {
		return empty, ErrImageRequired
	}
	if threshold <= 0 {
		return empty, ErrThresholdRequired
	}
	if s.Embedder == nil {
		return empty, nil
	}

	query := s.Embedder.Embed(ctx, embedding.Input{Image: image})
	if len(query) == 0 {
		return empty, nil
	}

	candidates, err := repo.ListCandidates(ctx, s.DB, tenantID, domain.ItemFound, "")
	if err != nil {
		return empty, err
	}

	out := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		if !c.ImageEmbedding.Present() {
			continue
		}
		is := similarity.Cosine(query, c.ImageEmbedding)
		if is < threshold {
			continue
		}
		out = append(out, Match{Item: c, Score: is, ImageScore: is})
	}
	rank(out)
	return limit(out, n), nil
}

// rank orders by score descending, newest item first on ties.
func rank(ms []Match) {
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].Score != ms[j].Score {
			return ms[i].Score > ms[j].Score
		}
		return ms[i].Item.CreatedAt.After(ms[j].Item.CreatedAt)
	})
}

func limit(ms []Match, n int) []Match {
	if n <= 0 {
		n = defaultMatchLimit
	}
	if len(ms) > n {
		return ms[:n]
	}
	return ms
}

func attributesOf(it *domain.Item) similarity.Attributes {
	return similarity.Attributes{
		Category:  it.Category,
		Tags:      it.Tags,
		Location:  it.Location,
		CreatedAt: it.CreatedAt,
	}
}
