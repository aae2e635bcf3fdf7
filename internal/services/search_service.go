package services

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/repo"
	"github.com/tbourn/go-social-backend/internal/search"
)

// Search limits.
const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 20

	// searchCandidates bounds the SQL prefilter before in-memory ranking.
	searchCandidates = 200
)

// SearchService finds profiles and posts.
type SearchService struct {
	DB *gorm.DB
}

// foldQuery trims and case-folds a search query.
func foldQuery(q string) string {
	return cases.Fold().String(strings.TrimSpace(q))
}

// Users returns profiles whose username or display name contains q.
func (s *SearchService) Users(ctx context.Context, q string, limit int) ([]domain.ProfileSummary, error) {
	q = foldQuery(q)
	if q == "" {
		return []domain.ProfileSummary{}, nil
	}
	tr := otel.Tracer("services/SearchService")
	ctx, span := tr.Start(ctx, "Users",
		trace.WithAttributes(
			attribute.String("query", q),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	limit, _ = page(limit, 0, DefaultSearchLimit, MaxSearchLimit)
	rows, err := repo.SearchProfiles(ctx, s.DB, q, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ProfileSummary, len(rows))
	for i, p := range rows {
		out[i] = p.Summary()
	}
	return out, nil
}

// Posts returns posts matching q, best match first, as seen by viewerID.
// Candidates containing any query token are fetched newest first and ranked
// by token overlap.
func (s *SearchService) Posts(ctx context.Context, viewerID, q string, limit int) ([]domain.PostView, error) {
	q = foldQuery(q)
	tokens := search.Tokens(q, search.DefaultStopwords)
	if len(tokens) == 0 {
		return []domain.PostView{}, nil
	}
	tr := otel.Tracer("services/SearchService")
	ctx, span := tr.Start(ctx, "Posts",
		trace.WithAttributes(
			attribute.String("query", q),
			attribute.Int("tokens", len(tokens)),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	limit, _ = page(limit, 0, DefaultSearchLimit, MaxSearchLimit)
	cands, err := repo.SearchPostCandidates(ctx, s.DB, tokens, searchCandidates)
	if err != nil {
		return nil, err
	}
	docs := make([]search.Doc, len(cands))
	byID := make(map[string]domain.Post, len(cands))
	for i, p := range cands {
		docs[i] = search.Doc{ID: p.ID, Text: p.Content, At: p.CreatedAt}
		byID[p.ID] = p
	}
	idx := search.NewIndex(docs, search.WithStopwords(search.DefaultStopwords))
	hits := idx.TopK(q, limit)

	ranked := make([]domain.Post, 0, len(hits))
	for _, h := range hits {
		ranked = append(ranked, byID[h.ID])
	}
	span.SetAttributes(attribute.Int("candidates", len(cands)), attribute.Int("results", len(ranked)))
	return postViews(ctx, s.DB, viewerID, ranked)
}
