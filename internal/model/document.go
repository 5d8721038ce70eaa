package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Upload policy shared by the upload use case and the entity constructor.
const (
	ContentTypePDF     = "application/pdf"
	MaxFileSizeBytes   = int64(50 << 20) // 50 MiB
	EmbeddingDimension = 768
)

// Status is the lifecycle state of a Document. Values are stored verbatim in the database.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var (
	// ErrIllegalState is matched by every *StateError.
	ErrIllegalState     = errors.New("illegal document state")
	ErrInvalidEmbedding = errors.New("invalid embedding")
	ErrInvalidDocument  = errors.New("invalid document")
)

// StateError reports a state-machine guard violation.
type StateError struct {
	Op   string
	From Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s document in state %s", e.Op, e.From)
}

func (e *StateError) Is(target error) bool {
	return target == ErrIllegalState
}

var safeFileName = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// now is replaced in tests.
var now = func() time.Time { return time.Now().UTC() }

// Document is the record of one uploaded PDF and its derived artifacts.
// It is a pure domain model; persistence adapters map it to their own representation.
// All status changes go through the methods below, which refuse illegal transitions
// without mutating the receiver.
type Document struct {
	ID               string     `json:"id"`
	FileName         string     `json:"file_name"`
	OriginalFileName string     `json:"original_file_name"`
	StorageKey       string     `json:"storage_key,omitempty"`
	FileSize         int64      `json:"file_size"`
	ContentType      string     `json:"content_type"`
	OwnerID          string     `json:"owner_id"`
	Status           Status     `json:"status"`
	ExtractedText    *string    `json:"extracted_text,omitempty"`
	Embedding        []float32  `json:"-"`
	ErrorMessage     *string    `json:"error_message,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
}

// NewDocument builds a PENDING document and checks the entity invariants.
func NewDocument(id, fileName, originalFileName, contentType, ownerID string, size int64) (*Document, error) {
	switch {
	case id == "":
		return nil, fmt.Errorf("%w: id is required", ErrInvalidDocument)
	case ownerID == "":
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidDocument)
	case !safeFileName.MatchString(originalFileName):
		return nil, fmt.Errorf("%w: file name %q contains unsupported characters", ErrInvalidDocument, originalFileName)
	case !HasPDFExtension(originalFileName):
		return nil, fmt.Errorf("%w: file name must end in .pdf", ErrInvalidDocument)
	case contentType != ContentTypePDF:
		return nil, fmt.Errorf("%w: content type must be %s", ErrInvalidDocument, ContentTypePDF)
	case size <= 0 || size > MaxFileSizeBytes:
		return nil, fmt.Errorf("%w: file size %d out of range", ErrInvalidDocument, size)
	}

	ts := now()
	return &Document{
		ID:               id,
		FileName:         fileName,
		OriginalFileName: originalFileName,
		FileSize:         size,
		ContentType:      contentType,
		OwnerID:          ownerID,
		Status:           StatusPending,
		CreatedAt:        ts,
		UpdatedAt:        ts,
	}, nil
}

// HasPDFExtension reports whether name ends in .pdf, ignoring case.
func HasPDFExtension(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".pdf")
}

// AssignStorageKey records where the raw bytes live. It may be called once, while PENDING.
func (d *Document) AssignStorageKey(key string) error {
	if d.Status != StatusPending || d.StorageKey != "" {
		return &StateError{Op: "assign storage key to", From: d.Status}
	}
	if key == "" {
		return fmt.Errorf("%w: storage key is empty", ErrInvalidDocument)
	}
	d.StorageKey = key
	d.touch()
	return nil
}

// StartProcessing moves a PENDING document to PROCESSING.
func (d *Document) StartProcessing() error {
	if d.Status != StatusPending {
		return &StateError{Op: "start processing", From: d.Status}
	}
	d.Status = StatusProcessing
	d.touch()
	return nil
}

// RecordExtractedText stores the text pulled out of the PDF.
func (d *Document) RecordExtractedText(text string) error {
	if d.Status != StatusProcessing {
		return &StateError{Op: "record extracted text for", From: d.Status}
	}
	d.ExtractedText = &text
	d.touch()
	return nil
}

// RecordEmbedding stores the document vector. The slice is copied.
func (d *Document) RecordEmbedding(vec []float32) error {
	if d.Status != StatusProcessing {
		return &StateError{Op: "record embedding for", From: d.Status}
	}
	if len(vec) != EmbeddingDimension {
		return fmt.Errorf("%w: got %d dimensions, want %d", ErrInvalidEmbedding, len(vec), EmbeddingDimension)
	}
	d.Embedding = append([]float32(nil), vec...)
	d.touch()
	return nil
}

// CompleteProcessing moves a PROCESSING document to COMPLETED.
func (d *Document) CompleteProcessing() error {
	if d.Status != StatusProcessing {
		return &StateError{Op: "complete", From: d.Status}
	}
	ts := now()
	d.Status = StatusCompleted
	d.ProcessedAt = &ts
	d.UpdatedAt = ts
	return nil
}

// FailProcessing moves a PENDING or PROCESSING document to FAILED and keeps the reason.
func (d *Document) FailProcessing(message string) error {
	if d.Status.IsTerminal() {
		return &StateError{Op: "fail", From: d.Status}
	}
	ts := now()
	d.Status = StatusFailed
	d.ErrorMessage = &message
	d.ProcessedAt = &ts
	d.UpdatedAt = ts
	return nil
}

// HasEmbedding reports whether the document can take part in similarity search.
func (d *Document) HasEmbedding() bool {
	return len(d.Embedding) > 0
}

func (d *Document) touch() {
	d.UpdatedAt = now()
}
