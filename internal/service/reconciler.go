package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"docsearch/internal/messaging"
	"docsearch/internal/model"
	"docsearch/internal/repository"
)

// Reconciler republishes jobs for documents whose bytes were stored but whose job never
// reached a worker. Duplicate deliveries are harmless: only a PENDING document is processed.
type Reconciler struct {
	repo    repository.DocumentRepository
	channel messaging.Channel
	log     *slog.Logger
	now     func() time.Time
}

func NewReconciler(repo repository.DocumentRepository, ch messaging.Channel, log *slog.Logger) *Reconciler {
	return &Reconciler{repo: repo, channel: ch, log: log, now: time.Now}
}

// Sweep republishes up to limit PENDING documents last touched more than olderThan ago.
// It returns how many jobs were published.
func (r *Reconciler) Sweep(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	if olderThan <= 0 || limit <= 0 {
		return 0, fmt.Errorf("%w: threshold and limit must be positive", ErrValidation)
	}
	docs, err := r.repo.ListStalePending(ctx, r.now().Add(-olderThan), limit)
	if err != nil {
		return 0, fmt.Errorf("list stale documents: %w", err)
	}

	var (
		published int
		errs      []error
	)
	for _, d := range docs {
		job := model.ProcessingJob{DocumentID: d.ID, StorageKey: d.StorageKey}
		if err := r.channel.Publish(ctx, job); err != nil {
			r.log.Error("reconcile_publish_failed", "component", "reconciler", "document_id", d.ID, "error", err.Error())
			errs = append(errs, fmt.Errorf("republish %s: %w", d.ID, err))
			continue
		}
		published++
	}

	r.log.Info("reconcile_sweep_done",
		"component", "reconciler",
		"candidates", len(docs),
		"published", published,
	)
	return published, errors.Join(errs...)
}
