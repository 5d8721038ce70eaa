// Package messaging carries processing jobs from the upload path to the workers.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"docsearch/internal/model"
)

var (
	ErrMalformedJob = errors.New("malformed processing job")
	ErrClosed       = errors.New("channel closed")
)

// Handler processes one job. A nil return acknowledges it; an error rejects it.
type Handler func(ctx context.Context, job model.ProcessingJob) error

// Channel is a durable job queue with at-least-once delivery.
type Channel interface {
	// Publish enqueues a job.
	Publish(ctx context.Context, job model.ProcessingJob) error
	// Consume delivers jobs to h until ctx is cancelled or the channel is closed.
	// It may be called from several goroutines to consume concurrently.
	Consume(ctx context.Context, h Handler) error
	Close() error
}

// Encode renders the wire payload {"documentId": ..., "storageKey": ...}.
func Encode(job model.ProcessingJob) ([]byte, error) {
	if strings.TrimSpace(job.DocumentID) == "" {
		return nil, fmt.Errorf("%w: document id is empty", ErrMalformedJob)
	}
	return json.Marshal(job)
}

// Decode parses a wire payload and rejects jobs without a document id.
func Decode(body []byte) (model.ProcessingJob, error) {
	var job model.ProcessingJob
	if err := json.Unmarshal(body, &job); err != nil {
		return model.ProcessingJob{}, fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}
	if strings.TrimSpace(job.DocumentID) == "" {
		return model.ProcessingJob{}, fmt.Errorf("%w: document id is empty", ErrMalformedJob)
	}
	return job, nil
}
