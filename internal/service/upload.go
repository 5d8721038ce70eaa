package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"regexp"

	"github.com/google/uuid"

	"docsearch/internal/messaging"
	"docsearch/internal/model"
	"docsearch/internal/repository"
	"docsearch/internal/storage"
)

// UploadAcceptedMessage is returned with every accepted upload.
const UploadAcceptedMessage = "Document submitted for processing"

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// newID is replaced in tests.
var newID = func() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// UploadService accepts PDF uploads and hands them to the processing pipeline.
type UploadService interface {
	// Upload validates the file, records a PENDING document, stores the bytes, records the
	// storage key and publishes a processing job, in that order.
	Upload(ctx context.Context, r io.Reader, fileName, contentType string, size int64, ownerID string) (*DocumentSummary, error)
}

type uploadService struct {
	store   storage.Storage
	repo    repository.DocumentRepository
	channel messaging.Channel
	log     *slog.Logger
}

// NewUploadService constructs a new UploadService.
func NewUploadService(store storage.Storage, repo repository.DocumentRepository, ch messaging.Channel, log *slog.Logger) UploadService {
	return &uploadService{store: store, repo: repo, channel: ch, log: log}
}

// SanitizeFileName replaces every character outside [A-Za-z0-9._-] with an underscore.
func SanitizeFileName(name string) string {
	if name == "" {
		return "unnamed.pdf"
	}
	return unsafeFileChars.ReplaceAllString(name, "_")
}

func validateUpload(r io.Reader, fileName, contentType string, size int64, ownerID string) error {
	switch {
	case r == nil || size <= 0:
		return fmt.Errorf("%w: file must not be empty", ErrValidation)
	case contentType != model.ContentTypePDF || !model.HasPDFExtension(fileName):
		return fmt.Errorf("%w: only PDF files are accepted", ErrValidation)
	case size > model.MaxFileSizeBytes:
		return fmt.Errorf("%w: file exceeds the maximum size of 50MB", ErrValidation)
	case ownerID == "":
		return fmt.Errorf("%w: owner is required", ErrValidation)
	}
	return nil
}

func (s *uploadService) Upload(ctx context.Context, r io.Reader, fileName, contentType string, size int64, ownerID string) (*DocumentSummary, error) {
	if err := validateUpload(r, fileName, contentType, size, ownerID); err != nil {
		return nil, err
	}

	id, err := newID()
	if err != nil {
		return nil, fmt.Errorf("generate document id: %w", err)
	}
	genName := id + ".pdf"
	doc, err := model.NewDocument(id, genName, SanitizeFileName(fileName), contentType, ownerID, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if err := s.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("db save failed: %w", err)
	}

	key := path.Join("documents", genName)
	if _, err := s.store.Put(ctx, key, r, storage.PutObjectOptions{
		Size:        size,
		ContentType: contentType,
		Metadata: map[string]string{
			"original-filename": doc.OriginalFileName,
			"document-id":       doc.ID,
			"owner-id":          doc.OwnerID,
		},
	}); err != nil {
		s.markFailed(ctx, doc, fmt.Sprintf("upload to storage failed: %v", err))
		return nil, fmt.Errorf("upload to storage: %w", err)
	}

	if err := doc.AssignStorageKey(key); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, doc, model.StatusPending); err != nil {
		// Rollback: delete the object from storage
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			return nil, fmt.Errorf("db save failed: %v; rollback delete failed: %v", err, delErr)
		}
		return nil, fmt.Errorf("db save failed: %w", err)
	}

	if err := s.channel.Publish(ctx, model.ProcessingJob{DocumentID: doc.ID, StorageKey: key}); err != nil {
		s.log.Error("processing_job_publish_failed",
			"component", "upload",
			"document_id", doc.ID,
			"storage_key", key,
			"error", err.Error(),
		)
		return nil, fmt.Errorf("publish processing job: %w", err)
	}

	s.log.Info("document_uploaded",
		"component", "upload",
		"document_id", doc.ID,
		"owner_id", doc.OwnerID,
		"file_size", doc.FileSize,
	)
	return &DocumentSummary{
		ID:        doc.ID,
		FileName:  doc.OriginalFileName,
		FileSize:  doc.FileSize,
		Status:    doc.Status,
		CreatedAt: doc.CreatedAt,
		Message:   UploadAcceptedMessage,
	}, nil
}

// markFailed records a storage failure on the document. It is best effort; the
// caller already has the original error to report.
func (s *uploadService) markFailed(ctx context.Context, doc *model.Document, reason string) {
	if err := doc.FailProcessing(reason); err != nil {
		s.log.Error("document_fail_rejected",
			"component", "upload",
			"document_id", doc.ID,
			"error", err.Error(),
		)
		return
	}
	if err := s.repo.Update(ctx, doc, model.StatusPending); err != nil {
		s.log.Error("document_fail_persist_failed",
			"component", "upload",
			"document_id", doc.ID,
			"error", err.Error(),
		)
		return
	}
	s.log.Info("document_state_transition",
		"document_id", doc.ID,
		"from", model.StatusPending,
		"to", model.StatusFailed,
	)
}
