package service

import (
	"context"
	"fmt"
	"strings"

	"docsearch/internal/embedding"
	"docsearch/internal/model"
	"docsearch/internal/repository"
)

const (
	MinSearchLimit = 1
	MaxSearchLimit = 50
	// ExcerptLength is counted in runes.
	ExcerptLength = 200
)

// SearchService finds an owner's documents that are semantically close to a free-text query.
type SearchService interface {
	Search(ctx context.Context, query, ownerID string, limit int) ([]SimilarDocument, error)
}

type searchService struct {
	repo     repository.DocumentRepository
	embedder embedding.Generator
}

func NewSearchService(repo repository.DocumentRepository, emb embedding.Generator) SearchService {
	return &searchService{repo: repo, embedder: emb}
}

func (s *searchService) Search(ctx context.Context, query, ownerID string, limit int) ([]SimilarDocument, error) {
	if limit < MinSearchLimit || limit > MaxSearchLimit {
		return nil, fmt.Errorf("%w: limit must be between %d and %d", ErrValidation, MinSearchLimit, MaxSearchLimit)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query must not be blank", ErrValidation)
	}
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrValidation)
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vec) != model.EmbeddingDimension {
		return nil, fmt.Errorf("%w: query vector has %d dimensions, want %d",
			embedding.ErrDimensionMismatch, len(vec), model.EmbeddingDimension)
	}

	matches, err := s.repo.FindNearest(ctx, vec, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("find nearest documents: %w", err)
	}

	out := make([]SimilarDocument, 0, len(matches))
	for _, m := range matches {
		out = append(out, SimilarDocument{
			ID:       m.Document.ID,
			FileName: m.Document.OriginalFileName,
			Excerpt:  Excerpt(m.Document.ExtractedText, ExcerptLength),
			Score:    1 - m.Distance,
		})
	}
	return out, nil
}

// Excerpt returns the first max runes of text, with "..." appended when something was cut.
func Excerpt(text *string, max int) string {
	if text == nil {
		return ""
	}
	cut := embedding.Truncate(*text, max)
	if len(cut) < len(*text) {
		return cut + "..."
	}
	return cut
}
