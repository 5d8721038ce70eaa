package service

import (
	"context"
	"errors"
	"time"

	"docsearch/internal/model"
	"docsearch/internal/repository"
	"docsearch/internal/storage"
)

// QueryService exposes read access to an owner's documents.
type QueryService interface {
	// Get returns a document owned by ownerID.
	Get(ctx context.Context, id, ownerID string) (*DocumentDetails, error)

	// List returns all documents of ownerID, newest first.
	List(ctx context.Context, ownerID string) ([]DocumentDetails, error)

	// DownloadURL returns a presigned link to the raw PDF of a document owned by ownerID.
	DownloadURL(ctx context.Context, id, ownerID string, expiry time.Duration) (*DownloadLink, error)
}

type queryService struct {
	repo  repository.DocumentRepository
	store storage.Storage
}

func NewQueryService(repo repository.DocumentRepository, store storage.Storage) QueryService {
	return &queryService{repo: repo, store: store}
}

func (s *queryService) Get(ctx context.Context, id, ownerID string) (*DocumentDetails, error) {
	doc, err := s.owned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	details := toDetails(doc)
	return &details, nil
}

func (s *queryService) List(ctx context.Context, ownerID string) ([]DocumentDetails, error) {
	docs, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := make([]DocumentDetails, 0, len(docs))
	for i := range docs {
		out = append(out, toDetails(&docs[i]))
	}
	return out, nil
}

func (s *queryService) DownloadURL(ctx context.Context, id, ownerID string, expiry time.Duration) (*DownloadLink, error) {
	doc, err := s.owned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if doc.StorageKey == "" {
		return nil, ErrNotReady
	}
	url, err := s.store.PresignGet(ctx, doc.StorageKey, expiry)
	if err != nil {
		return nil, err
	}
	return &DownloadLink{URL: url, ExpiresIn: int64(expiry.Seconds())}, nil
}

func (s *queryService) owned(ctx context.Context, id, ownerID string) (*model.Document, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if doc.OwnerID != ownerID {
		return nil, ErrAccessDenied
	}
	return doc, nil
}
