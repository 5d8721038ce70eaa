package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	"docsearch/internal/model"
	"docsearch/internal/repository"
)

// DocumentPostgres is a PostgreSQL implementation of repository.DocumentRepository.
// Embeddings live in a pgvector column; it contains no business logic.
type DocumentPostgres struct {
	db *sql.DB
}

// NewDocumentPostgres creates a new DocumentPostgres repository.
func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

const documentColumns = `id, file_name, original_file_name, storage_key, file_size, content_type, owner_id,
		status, extracted_text, embedding, error_message, created_at, updated_at, processed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanDocument reads one row selected with documentColumns, plus any trailing destinations.
func scanDocument(row rowScanner, extra ...any) (*model.Document, error) {
	var (
		d           model.Document
		storageKey  sql.NullString
		text        sql.NullString
		errMsg      sql.NullString
		embedding   *pgvector.Vector
		processedAt sql.NullTime
		status      string
	)
	dest := []any{
		&d.ID, &d.FileName, &d.OriginalFileName, &storageKey, &d.FileSize, &d.ContentType, &d.OwnerID,
		&status, &text, &embedding, &errMsg, &d.CreatedAt, &d.UpdatedAt, &processedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	d.Status = model.Status(status)
	d.StorageKey = storageKey.String
	if text.Valid {
		d.ExtractedText = &text.String
	}
	if errMsg.Valid {
		d.ErrorMessage = &errMsg.String
	}
	if embedding != nil {
		d.Embedding = embedding.Slice()
	}
	if processedAt.Valid {
		t := processedAt.Time
		d.ProcessedAt = &t
	}
	return &d, nil
}

func embeddingArg(vec []float32) any {
	if len(vec) == 0 {
		return nil
	}
	return pgvector.NewVector(vec)
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// Create inserts a new document row.
func (r *DocumentPostgres) Create(ctx context.Context, doc *model.Document) error {
	const q = `
		INSERT INTO documents (id, file_name, original_file_name, storage_key, file_size, content_type, owner_id,
			status, extracted_text, embedding, error_message, created_at, updated_at, processed_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.db.ExecContext(ctx, q,
		doc.ID,
		doc.FileName,
		doc.OriginalFileName,
		doc.StorageKey,
		doc.FileSize,
		doc.ContentType,
		doc.OwnerID,
		string(doc.Status),
		doc.ExtractedText,
		embeddingArg(doc.Embedding),
		doc.ErrorMessage,
		doc.CreatedAt,
		doc.UpdatedAt,
		timeArg(doc.ProcessedAt),
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// Update writes the mutable columns guarded by the expected status.
func (r *DocumentPostgres) Update(ctx context.Context, doc *model.Document, expected model.Status) error {
	const q = `
		UPDATE documents
		SET storage_key = NULLIF($2, ''), status = $3, extracted_text = $4, embedding = $5,
			error_message = $6, updated_at = $7, processed_at = $8
		WHERE id = $1 AND status = $9
	`
	res, err := r.db.ExecContext(ctx, q,
		doc.ID,
		doc.StorageKey,
		string(doc.Status),
		doc.ExtractedText,
		embeddingArg(doc.Embedding),
		doc.ErrorMessage,
		doc.UpdatedAt,
		timeArg(doc.ProcessedAt),
		string(expected),
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1)`, doc.ID).Scan(&exists); err != nil {
		return fmt.Errorf("check document existence: %w", err)
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

// FindByID fetches a single document by its ID.
func (r *DocumentPostgres) FindByID(ctx context.Context, id string) (*model.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	d, err := scanDocument(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

// ListByOwner returns the owner's documents, newest first.
func (r *DocumentPostgres) ListByOwner(ctx context.Context, ownerID string) ([]model.Document, error) {
	q := `SELECT ` + documentColumns + `
		FROM documents
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC`
	return r.list(ctx, q, ownerID)
}

// ListStalePending returns documents stuck in PENDING after their bytes were stored.
func (r *DocumentPostgres) ListStalePending(ctx context.Context, before time.Time, limit int) ([]model.Document, error) {
	q := `SELECT ` + documentColumns + `
		FROM documents
		WHERE status = $1 AND storage_key IS NOT NULL AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3`
	return r.list(ctx, q, string(model.StatusPending), before, limit)
}

func (r *DocumentPostgres) list(ctx context.Context, q string, args ...any) ([]model.Document, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// FindNearest orders by the pgvector cosine distance operator so the HNSW index can be used.
func (r *DocumentPostgres) FindNearest(ctx context.Context, vec []float32, ownerID string, limit int) ([]repository.Match, error) {
	q := `SELECT ` + documentColumns + `, embedding <=> $1 AS distance
		FROM documents
		WHERE owner_id = $2 AND status = $3 AND embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $4`
	rows, err := r.db.QueryContext(ctx, q, pgvector.NewVector(vec), ownerID, string(model.StatusCompleted), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := make([]repository.Match, 0, limit)
	for rows.Next() {
		var distance float64
		d, err := scanDocument(rows, &distance)
		if err != nil {
			return nil, err
		}
		matches = append(matches, repository.Match{Document: *d, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return matches, nil
}
