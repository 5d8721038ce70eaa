package messaging

import (
	"context"
	"log/slog"
	"sync"

	"docsearch/internal/model"
)

// Memory is an in-process Channel backed by a buffered Go channel.
// Jobs are lost on restart, so it is only meant for single-process deployments and tests.
type Memory struct {
	jobs   chan model.ProcessingJob
	log    *slog.Logger
	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

// NewMemory creates a channel that holds up to buffer pending jobs.
func NewMemory(buffer int, log *slog.Logger) *Memory {
	if buffer < 0 {
		buffer = 0
	}
	return &Memory{jobs: make(chan model.ProcessingJob, buffer), log: log}
}

var _ Channel = (*Memory)(nil)

// Publish blocks while the buffer is full.
func (m *Memory) Publish(ctx context.Context, job model.ProcessingJob) error {
	if _, err := Encode(job); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	select {
	case m.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns nil once the channel is closed and drained.
func (m *Memory) Consume(ctx context.Context, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job, ok := <-m.jobs:
			if !ok {
				return nil
			}
			if err := h(ctx, job); err != nil {
				m.log.Error("job_rejected",
					"component", "messaging",
					"document_id", job.DocumentID,
					"error", err.Error(),
				)
			}
		}
	}
}

func (m *Memory) Close() error {
	m.once.Do(func() {
		m.mu.Lock()
		m.closed = true
		close(m.jobs)
		m.mu.Unlock()
	})
	return nil
}
