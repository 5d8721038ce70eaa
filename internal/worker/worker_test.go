package worker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	embMocks "docsearch/internal/embedding/mocks"
	"docsearch/internal/extractor"
	"docsearch/internal/logger"
	"docsearch/internal/messaging"
	"docsearch/internal/model"
	"docsearch/internal/repository"
	"docsearch/internal/service"
	"docsearch/internal/storage"
)

const testOwner = "5f0c2d7e-3a1b-4c8d-9e6f-1a2b3c4d5e6f"

// memRepo is a DocumentRepository that honours the expected-status guard.
type memRepo struct {
	mu   sync.Mutex
	docs map[string]model.Document
}

func newMemRepo() *memRepo { return &memRepo{docs: map[string]model.Document{}} }

func (r *memRepo) Create(_ context.Context, doc *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = *doc
	return nil
}

func (r *memRepo) Update(_ context.Context, doc *model.Document, expected model.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.docs[doc.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Status != expected {
		return repository.ErrConflict
	}
	r.docs[doc.ID] = *doc
	return nil
}

func (r *memRepo) FindByID(_ context.Context, id string) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &d, nil
}

func (r *memRepo) ListByOwner(context.Context, string) ([]model.Document, error) { return nil, nil }

func (r *memRepo) FindNearest(context.Context, []float32, string, int) ([]repository.Match, error) {
	return nil, nil
}

func (r *memRepo) ListStalePending(context.Context, time.Time, int) ([]model.Document, error) {
	return nil, nil
}

func (r *memRepo) get(t *testing.T, id string) model.Document {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	require.True(t, ok, "document %s not stored", id)
	return d
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore { return &memStore{objects: map[string][]byte{}} }

func (s *memStore) Put(_ context.Context, key string, r io.Reader, opts storage.PutObjectOptions) (storage.ObjectInfo, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	s.mu.Lock()
	s.objects[key] = b
	s.mu.Unlock()
	return storage.ObjectInfo{Key: key, Size: int64(len(b)), ContentType: opts.ContentType}, nil
}

func (s *memStore) Get(_ context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[key]
	if !ok {
		return nil, storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), storage.ObjectInfo{Key: key, Size: int64(len(b))}, nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

func (s *memStore) PresignGet(context.Context, string, time.Duration) (string, error) {
	return "", errors.New("not supported")
}

type extractFunc func(ctx context.Context, r io.Reader) (string, error)

func (f extractFunc) Extract(ctx context.Context, r io.Reader) (string, error) { return f(ctx, r) }

type processFunc func(ctx context.Context, job model.ProcessingJob) (service.Outcome, error)

func (f processFunc) Process(ctx context.Context, job model.ProcessingJob) (service.Outcome, error) {
	return f(ctx, job)
}

func vector() []float32 {
	v := make([]float32, model.EmbeddingDimension)
	for i := range v {
		v[i] = 0.5
	}
	return v
}

type pipeline struct {
	repo    *memRepo
	store   *memStore
	channel *messaging.Memory
	emb     *embMocks.MockGenerator
	metrics *Metrics
	upload  service.UploadService
	runner  *Runner
	extract atomic.Int32
}

func newPipeline(t *testing.T, ex func(string) (string, error)) *pipeline {
	t.Helper()
	log := logger.Discard()
	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	p := &pipeline{
		repo:    newMemRepo(),
		store:   newMemStore(),
		channel: messaging.NewMemory(16, log),
		emb:     new(embMocks.MockGenerator),
		metrics: metrics,
	}
	p.emb.On("Embed", mock.Anything, mock.Anything).Return(vector(), nil).Maybe()

	extr := extractFunc(func(_ context.Context, r io.Reader) (string, error) {
		p.extract.Add(1)
		b, err := io.ReadAll(r)
		if err != nil {
			return "", err
		}
		return ex(string(b))
	})

	proc := service.NewProcessor(p.repo, p.store, extr, p.emb, log)
	p.upload = service.NewUploadService(p.store, p.repo, p.channel, log)
	p.runner = NewRunner(p.channel, proc, 2, metrics, log)
	return p
}

// drain closes the channel and runs the workers until every queued job is handled.
func (p *pipeline) drain(t *testing.T) {
	t.Helper()
	require.NoError(t, p.channel.Close())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.runner.Run(ctx))
}

func (p *pipeline) count(outcome string) float64 {
	return testutil.ToFloat64(p.metrics.jobsProcessed.WithLabelValues(outcome))
}

func TestPipeline_UploadToCompleted(t *testing.T) {
	p := newPipeline(t, func(body string) (string, error) {
		return "text of " + body, nil
	})

	res, err := p.upload.Upload(context.Background(), strings.NewReader("%PDF-1.7"), "Q3 report.pdf", model.ContentTypePDF, 8, testOwner)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, res.Status)

	p.drain(t)

	doc := p.repo.get(t, res.ID)
	assert.Equal(t, model.StatusCompleted, doc.Status)
	require.NotNil(t, doc.ExtractedText)
	assert.Equal(t, "text of %PDF-1.7", *doc.ExtractedText)
	assert.Len(t, doc.Embedding, model.EmbeddingDimension)
	assert.NotNil(t, doc.ProcessedAt)
	assert.Nil(t, doc.ErrorMessage)
	assert.Equal(t, "Q3_report.pdf", doc.OriginalFileName)
	assert.Equal(t, float64(1), p.count("completed"))
	assert.Equal(t, 1, testutil.CollectAndCount(p.metrics.jobDuration))
}

func TestPipeline_ExtractionFailure(t *testing.T) {
	p := newPipeline(t, func(string) (string, error) {
		return "", extractor.ErrEncrypted
	})

	res, err := p.upload.Upload(context.Background(), strings.NewReader("%PDF-1.7"), "locked.pdf", model.ContentTypePDF, 8, testOwner)
	require.NoError(t, err)

	p.drain(t)

	doc := p.repo.get(t, res.ID)
	assert.Equal(t, model.StatusFailed, doc.Status)
	require.NotNil(t, doc.ErrorMessage)
	assert.Contains(t, *doc.ErrorMessage, "encrypted")
	assert.Nil(t, doc.Embedding)
	assert.NotNil(t, doc.ProcessedAt)
	assert.Equal(t, float64(1), p.count("failed"))
	p.emb.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
}

func TestPipeline_RedeliveryWhileProcessing(t *testing.T) {
	p := newPipeline(t, func(string) (string, error) { return "text", nil })
	ctx := context.Background()

	doc, err := model.NewDocument("0190c8a4-7e1f-7d3c-9a55-2b1e4c9d0f11", "x.pdf", "x.pdf", model.ContentTypePDF, testOwner, 10)
	require.NoError(t, err)
	require.NoError(t, doc.AssignStorageKey("documents/x.pdf"))
	require.NoError(t, doc.StartProcessing())
	require.NoError(t, p.repo.Create(ctx, doc))
	before := p.repo.get(t, doc.ID)

	require.NoError(t, p.channel.Publish(ctx, model.ProcessingJob{DocumentID: doc.ID, StorageKey: doc.StorageKey}))
	require.NoError(t, p.channel.Publish(ctx, model.ProcessingJob{DocumentID: doc.ID, StorageKey: doc.StorageKey}))
	p.drain(t)

	assert.Equal(t, before, p.repo.get(t, doc.ID))
	assert.Equal(t, float64(2), p.count("skipped"))
	assert.Equal(t, int32(0), p.extract.Load())
}

func TestPipeline_DuplicateJobsProcessOnce(t *testing.T) {
	p := newPipeline(t, func(string) (string, error) { return "text", nil })
	ctx := context.Background()

	res, err := p.upload.Upload(ctx, strings.NewReader("%PDF"), "a.pdf", model.ContentTypePDF, 4, testOwner)
	require.NoError(t, err)
	doc := p.repo.get(t, res.ID)
	for i := 0; i < 3; i++ {
		require.NoError(t, p.channel.Publish(ctx, model.ProcessingJob{DocumentID: doc.ID, StorageKey: doc.StorageKey}))
	}

	p.drain(t)

	assert.Equal(t, model.StatusCompleted, p.repo.get(t, res.ID).Status)
	assert.Equal(t, float64(1), p.count("completed"))
	assert.Equal(t, float64(3), p.count("skipped"))
	assert.Equal(t, int32(1), p.extract.Load())
}

func TestPipeline_UnknownDocumentIsDropped(t *testing.T) {
	p := newPipeline(t, func(string) (string, error) { return "text", nil })

	require.NoError(t, p.channel.Publish(context.Background(), model.ProcessingJob{DocumentID: "missing"}))
	p.drain(t)

	assert.Equal(t, float64(1), p.count("skipped"))
	assert.Equal(t, float64(0), p.count(outcomeError))
}

// ctxRepo rejects writes on a cancelled context like database/sql does.
type ctxRepo struct{ *memRepo }

func (r ctxRepo) Update(ctx context.Context, doc *model.Document, expected model.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.memRepo.Update(ctx, doc, expected)
}

func TestRunner_Handle_ShutdownMidJob(t *testing.T) {
	tests := []struct {
		name       string
		extract    func(ctx context.Context, cancel context.CancelFunc) (string, error)
		wantStatus model.Status
	}{
		{
			name: "dependency aborted by shutdown",
			extract: func(_ context.Context, cancel context.CancelFunc) (string, error) {
				cancel()
				return "", context.Canceled
			},
			wantStatus: model.StatusFailed,
		},
		{
			name: "job keeps running after shutdown",
			extract: func(ctx context.Context, cancel context.CancelFunc) (string, error) {
				cancel()
				if err := ctx.Err(); err != nil {
					return "", err
				}
				return "text", nil
			},
			wantStatus: model.StatusCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := logger.Discard()
			repo := ctxRepo{newMemRepo()}
			store := newMemStore()
			emb := new(embMocks.MockGenerator)
			emb.On("Embed", mock.Anything, "text").Return(vector(), nil).Maybe()
			metrics, err := NewMetrics(prometheus.NewRegistry())
			require.NoError(t, err)

			doc, err := model.NewDocument("0191d3a0-5b2c-7e4f-8a1d-3c5e7f9b1d24", "y.pdf", "y.pdf", model.ContentTypePDF, testOwner, 4)
			require.NoError(t, err)
			require.NoError(t, doc.AssignStorageKey("documents/y.pdf"))
			require.NoError(t, repo.Create(context.Background(), doc))
			_, err = store.Put(context.Background(), doc.StorageKey, strings.NewReader("%PDF"), storage.PutObjectOptions{})
			require.NoError(t, err)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			extr := extractFunc(func(c context.Context, _ io.Reader) (string, error) {
				return tt.extract(c, cancel)
			})
			r := NewRunner(messaging.NewMemory(1, log), service.NewProcessor(repo, store, extr, emb, log), 1, metrics, log)

			err = r.Handle(ctx, model.ProcessingJob{DocumentID: doc.ID, StorageKey: doc.StorageKey})

			require.NoError(t, err)
			assert.Error(t, ctx.Err())
			got := repo.get(t, doc.ID)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.NotNil(t, got.ProcessedAt)
		})
	}
}

func TestRunner_Handle(t *testing.T) {
	ctx := context.Background()
	job := model.ProcessingJob{DocumentID: "doc-1", StorageKey: "documents/doc-1.pdf"}

	tests := []struct {
		name      string
		outcome   service.Outcome
		err       error
		wantErr   bool
		wantLabel string
	}{
		{name: "completed", outcome: service.OutcomeCompleted, wantLabel: "completed"},
		{name: "failed document", outcome: service.OutcomeFailed, wantLabel: "failed"},
		{name: "not found is dropped", outcome: service.OutcomeSkipped, err: service.ErrNotFound, wantLabel: "skipped"},
		{name: "store error is rejected", err: errors.New("db down"), wantErr: true, wantLabel: outcomeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics, err := NewMetrics(prometheus.NewRegistry())
			require.NoError(t, err)
			proc := processFunc(func(_ context.Context, got model.ProcessingJob) (service.Outcome, error) {
				assert.Equal(t, job, got)
				return tt.outcome, tt.err
			})
			r := NewRunner(messaging.NewMemory(1, logger.Discard()), proc, 1, metrics, logger.Discard())

			err = r.Handle(ctx, job)

			if tt.wantErr {
				assert.ErrorIs(t, err, tt.err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, float64(1), testutil.ToFloat64(metrics.jobsProcessed.WithLabelValues(tt.wantLabel)))
		})
	}
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	ch := messaging.NewMemory(1, logger.Discard())
	r := NewRunner(ch, processFunc(func(context.Context, model.ProcessingJob) (service.Outcome, error) {
		return service.OutcomeCompleted, nil
	}), 0, metrics, logger.Discard())
	assert.Equal(t, 1, r.concurrency)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestNewMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)

	_, err = NewMetrics(reg)
	assert.Error(t, err)
}
