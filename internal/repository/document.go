package repository

import (
	"context"
	"errors"
	"time"

	"docsearch/internal/model"
)

var (
	ErrNotFound = errors.New("document not found")
	// ErrConflict means the stored status no longer matches the one the caller expected.
	ErrConflict = errors.New("document status changed concurrently")
)

// DocumentRepository defines data access for documents using SQL queries only.
// No business logic here, only persistence.
type DocumentRepository interface {
	// Create inserts a new document record.
	Create(ctx context.Context, doc *model.Document) error

	// Update writes every mutable column of doc, but only if the stored status still equals expected.
	// It returns ErrConflict when another writer moved the document first and ErrNotFound when the row is gone.
	Update(ctx context.Context, doc *model.Document, expected model.Status) error

	// FindByID returns a document by its ID, or ErrNotFound.
	FindByID(ctx context.Context, id string) (*model.Document, error)

	// ListByOwner returns all documents of one owner, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]model.Document, error)

	// FindNearest returns the owner's completed documents closest to vec by cosine distance, ascending.
	FindNearest(ctx context.Context, vec []float32, ownerID string, limit int) ([]Match, error)

	// ListStalePending returns PENDING documents that already have a storage key and were
	// last updated before the given time, oldest first.
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]model.Document, error)
}

// Match is a search hit with its cosine distance to the query vector.
type Match struct {
	Document model.Document
	Distance float64
}
