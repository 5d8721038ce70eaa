package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"docsearch/internal/embedding"
	"docsearch/internal/extractor"
	"docsearch/internal/model"
	"docsearch/internal/repository"
	"docsearch/internal/storage"
)

// Outcome is the result of processing one job.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// Processor drives one document from PENDING to COMPLETED or FAILED. Each step is
// persisted before the next one starts.
type Processor struct {
	repo      repository.DocumentRepository
	store     storage.Storage
	extractor extractor.Extractor
	embedder  embedding.Generator
	log       *slog.Logger
}

func NewProcessor(repo repository.DocumentRepository, store storage.Storage, ex extractor.Extractor, emb embedding.Generator, log *slog.Logger) *Processor {
	return &Processor{repo: repo, store: store, extractor: ex, embedder: emb, log: log}
}

// errSkip stops the pipeline without failing the document.
var errSkip = errors.New("skip")

// Process handles one job. It returns ErrNotFound when the document does not exist, and a
// nil error with OutcomeSkipped when the document is not PENDING or another worker claimed it.
// Dependency failures never surface as errors; they move the document to FAILED.
func (p *Processor) Process(ctx context.Context, job model.ProcessingJob) (Outcome, error) {
	doc, err := p.repo.FindByID(ctx, job.DocumentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return OutcomeSkipped, fmt.Errorf("%w: %s", ErrNotFound, job.DocumentID)
		}
		return "", fmt.Errorf("load document %s: %w", job.DocumentID, err)
	}

	if err := p.transition(ctx, doc, doc.StartProcessing); err != nil {
		if errors.Is(err, errSkip) {
			return OutcomeSkipped, nil
		}
		return "", err
	}

	if err := p.run(ctx, doc); err != nil {
		if errors.Is(err, errSkip) {
			return OutcomeSkipped, nil
		}
		return p.fail(ctx, doc, err)
	}
	return OutcomeCompleted, nil
}

func (p *Processor) run(ctx context.Context, doc *model.Document) error {
	text, err := p.extract(ctx, doc)
	if err != nil {
		return err
	}
	if err := p.record(ctx, doc, func() error { return doc.RecordExtractedText(text) }); err != nil {
		return err
	}

	vec, err := p.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("generate embedding: %w", err)
	}
	if err := p.record(ctx, doc, func() error { return doc.RecordEmbedding(vec) }); err != nil {
		return err
	}

	return p.transition(ctx, doc, doc.CompleteProcessing)
}

func (p *Processor) extract(ctx context.Context, doc *model.Document) (string, error) {
	if doc.StorageKey == "" {
		return "", fmt.Errorf("document has no storage key")
	}
	rc, _, err := p.store.Get(ctx, doc.StorageKey)
	if err != nil {
		return "", fmt.Errorf("retrieve %s: %w", doc.StorageKey, err)
	}
	defer rc.Close()

	text, err := p.extractor.Extract(ctx, rc)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	return text, nil
}

// record applies a same-state mutation and persists it.
func (p *Processor) record(ctx context.Context, doc *model.Document, apply func() error) error {
	snapshot := *doc
	if err := apply(); err != nil {
		return err
	}
	if err := p.save(ctx, doc, doc.Status); err != nil {
		*doc = snapshot
		return err
	}
	return nil
}

// transition applies a state change, persists it guarded by the prior status and logs it.
// The in-memory document is restored when the write does not go through.
func (p *Processor) transition(ctx context.Context, doc *model.Document, apply func() error) error {
	from := doc.Status
	snapshot := *doc
	if err := apply(); err != nil {
		if errors.Is(err, model.ErrIllegalState) {
			p.illegalState(doc, from, err)
			return errSkip
		}
		return err
	}
	if err := p.save(ctx, doc, from); err != nil {
		*doc = snapshot
		return err
	}
	p.log.Info("document_state_transition",
		"document_id", doc.ID,
		"from", from,
		"to", doc.Status,
	)
	return nil
}

func (p *Processor) save(ctx context.Context, doc *model.Document, expected model.Status) error {
	err := p.repo.Update(ctx, doc, expected)
	if errors.Is(err, repository.ErrConflict) {
		p.illegalState(doc, expected, err)
		return errSkip
	}
	if err != nil {
		return fmt.Errorf("persist document: %w", err)
	}
	return nil
}

func (p *Processor) illegalState(doc *model.Document, from model.Status, err error) {
	p.log.Warn("document_illegal_state",
		"document_id", doc.ID,
		"status", from,
		"error", err.Error(),
	)
}

// fail records cause on the document. The returned error is non-nil only when FAILED could not be persisted.
// The write ignores cancellation of ctx so the document never stays in PROCESSING.
func (p *Processor) fail(ctx context.Context, doc *model.Document, cause error) (Outcome, error) {
	ctx = context.WithoutCancel(ctx)
	p.log.Error("document_processing_failed",
		"document_id", doc.ID,
		"error", cause.Error(),
	)
	if err := p.transition(ctx, doc, func() error { return doc.FailProcessing(cause.Error()) }); err != nil {
		if errors.Is(err, errSkip) {
			return OutcomeSkipped, nil
		}
		return OutcomeFailed, fmt.Errorf("record failure of %s: %w", doc.ID, err)
	}
	return OutcomeFailed, nil
}
