package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	embMocks "docsearch/internal/embedding/mocks"
	"docsearch/internal/extractor"
	exMocks "docsearch/internal/extractor/mocks"
	"docsearch/internal/logger"
	"docsearch/internal/model"
	"docsearch/internal/repository"
	repoMocks "docsearch/internal/repository/mocks"
	"docsearch/internal/storage"
	storeMocks "docsearch/internal/storage/mocks"
)

type processorDeps struct {
	repo  *repoMocks.MockDocumentRepository
	store *storeMocks.MockStorage
	ex    *exMocks.MockExtractor
	emb   *embMocks.MockGenerator
}

func newProcessorDeps() processorDeps {
	return processorDeps{
		repo:  new(repoMocks.MockDocumentRepository),
		store: new(storeMocks.MockStorage),
		ex:    new(exMocks.MockExtractor),
		emb:   new(embMocks.MockGenerator),
	}
}

func (d processorDeps) processor() *Processor {
	return NewProcessor(d.repo, d.store, d.ex, d.emb, logger.Discard())
}

func (d processorDeps) assert(t *testing.T) {
	d.repo.AssertExpectations(t)
	d.store.AssertExpectations(t)
	d.ex.AssertExpectations(t)
	d.emb.AssertExpectations(t)
}

func storedDoc(t *testing.T) *model.Document {
	t.Helper()
	doc, err := model.NewDocument(testDocID, testDocID+".pdf", "report.pdf", model.ContentTypePDF, testOwner, 2048)
	require.NoError(t, err)
	require.NoError(t, doc.AssignStorageKey(testKey))
	return doc
}

func embeddingVector() []float32 {
	v := make([]float32, model.EmbeddingDimension)
	for i := range v {
		v[i] = 0.01
	}
	return v
}

// write is one Update call as seen by the repository.
type write struct {
	status   model.Status
	expected model.Status
	hasText  bool
	hasVec   bool
}

func recordWrites(repo *repoMocks.MockDocumentRepository, writes *[]write, results ...error) {
	call := repo.On("Update", mock.Anything, mock.Anything, mock.Anything)
	n := 0
	call.Run(func(args mock.Arguments) {
		d := args.Get(1).(*model.Document)
		*writes = append(*writes, write{
			status:   d.Status,
			expected: args.Get(2).(model.Status),
			hasText:  d.ExtractedText != nil,
			hasVec:   d.HasEmbedding(),
		})
		var err error
		if n < len(results) {
			err = results[n]
		}
		n++
		call.ReturnArguments = mock.Arguments{err}
	})
}

func TestProcessor_Process_Completed(t *testing.T) {
	ctx := context.Background()
	d := newProcessorDeps()
	doc := storedDoc(t)
	var writes []write

	d.repo.On("FindByID", ctx, testDocID).Return(doc, nil).Once()
	recordWrites(d.repo, &writes)
	d.store.On("Get", ctx, testKey).Return(io.NopCloser(strings.NewReader("%PDF")), storage.ObjectInfo{}, nil).Once()
	d.ex.On("Extract", ctx, mock.Anything).Return("quarterly revenue grew", nil).Once()
	d.emb.On("Embed", ctx, "quarterly revenue grew").Return(embeddingVector(), nil).Once()

	outcome, err := d.processor().Process(ctx, model.ProcessingJob{DocumentID: testDocID, StorageKey: testKey})

	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)
	assert.Equal(t, []write{
		{status: model.StatusProcessing, expected: model.StatusPending},
		{status: model.StatusProcessing, expected: model.StatusProcessing, hasText: true},
		{status: model.StatusProcessing, expected: model.StatusProcessing, hasText: true, hasVec: true},
		{status: model.StatusCompleted, expected: model.StatusProcessing, hasText: true, hasVec: true},
	}, writes)
	assert.Equal(t, model.StatusCompleted, doc.Status)
	assert.NotNil(t, doc.ProcessedAt)
	assert.Nil(t, doc.ErrorMessage)
	d.assert(t)
}

func TestProcessor_Process_Failures(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		setup       func(d processorDeps)
		wantMessage string
		wantText    bool
	}{
		{
			name: "storage unavailable",
			setup: func(d processorDeps) {
				d.store.On("Get", ctx, testKey).Return(nil, storage.ObjectInfo{}, storage.ErrObjectNotFound)
			},
			wantMessage: "object not found",
		},
		{
			name: "encrypted pdf",
			setup: func(d processorDeps) {
				d.store.On("Get", ctx, testKey).Return(io.NopCloser(strings.NewReader("%PDF")), storage.ObjectInfo{}, nil)
				d.ex.On("Extract", ctx, mock.Anything).Return("", extractor.ErrEncrypted)
			},
			wantMessage: "pdf is encrypted",
		},
		{
			name: "embedding model down",
			setup: func(d processorDeps) {
				d.store.On("Get", ctx, testKey).Return(io.NopCloser(strings.NewReader("%PDF")), storage.ObjectInfo{}, nil)
				d.ex.On("Extract", ctx, mock.Anything).Return("text", nil)
				d.emb.On("Embed", ctx, "text").Return(nil, errors.New("connection refused"))
			},
			wantMessage: "generate embedding: connection refused",
			wantText:    true,
		},
		{
			name: "embedding has wrong dimension",
			setup: func(d processorDeps) {
				d.store.On("Get", ctx, testKey).Return(io.NopCloser(strings.NewReader("%PDF")), storage.ObjectInfo{}, nil)
				d.ex.On("Extract", ctx, mock.Anything).Return("text", nil)
				d.emb.On("Embed", ctx, "text").Return([]float32{1, 2, 3}, nil)
			},
			wantMessage: "invalid embedding",
			wantText:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newProcessorDeps()
			doc := storedDoc(t)
			var writes []write

			d.repo.On("FindByID", ctx, testDocID).Return(doc, nil)
			recordWrites(d.repo, &writes)
			tt.setup(d)

			outcome, err := d.processor().Process(ctx, model.ProcessingJob{DocumentID: testDocID})

			require.NoError(t, err)
			assert.Equal(t, OutcomeFailed, outcome)
			assert.Equal(t, model.StatusFailed, doc.Status)
			require.NotNil(t, doc.ErrorMessage)
			assert.Contains(t, *doc.ErrorMessage, tt.wantMessage)
			assert.NotNil(t, doc.ProcessedAt)
			assert.False(t, doc.HasEmbedding())

			require.NotEmpty(t, writes)
			last := writes[len(writes)-1]
			assert.Equal(t, model.StatusFailed, last.status)
			assert.Equal(t, model.StatusProcessing, last.expected)
			assert.Equal(t, tt.wantText, last.hasText)
			d.assert(t)
		})
	}
}

func TestProcessor_Process_NotFound(t *testing.T) {
	ctx := context.Background()
	d := newProcessorDeps()
	d.repo.On("FindByID", ctx, "gone").Return(nil, repository.ErrNotFound)

	_, err := d.processor().Process(ctx, model.ProcessingJob{DocumentID: "gone"})

	assert.ErrorIs(t, err, ErrNotFound)
	d.repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessor_Process_LoadError(t *testing.T) {
	ctx := context.Background()
	d := newProcessorDeps()
	d.repo.On("FindByID", ctx, testDocID).Return(nil, errors.New("connection reset"))

	_, err := d.processor().Process(ctx, model.ProcessingJob{DocumentID: testDocID})

	assert.ErrorContains(t, err, "connection reset")
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestProcessor_Process_SkipsNonPending(t *testing.T) {
	for _, status := range []model.Status{model.StatusProcessing, model.StatusCompleted, model.StatusFailed} {
		t.Run(string(status), func(t *testing.T) {
			ctx := context.Background()
			d := newProcessorDeps()
			doc := storedDoc(t)
			doc.Status = status
			before := *doc

			d.repo.On("FindByID", ctx, testDocID).Return(doc, nil)

			outcome, err := d.processor().Process(ctx, model.ProcessingJob{DocumentID: testDocID})

			require.NoError(t, err)
			assert.Equal(t, OutcomeSkipped, outcome)
			assert.Equal(t, before, *doc)
			d.repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
			d.store.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
		})
	}
}

func TestProcessor_Process_LostRace(t *testing.T) {
	ctx := context.Background()
	d := newProcessorDeps()
	doc := storedDoc(t)
	var writes []write

	d.repo.On("FindByID", ctx, testDocID).Return(doc, nil)
	recordWrites(d.repo, &writes, repository.ErrConflict)

	outcome, err := d.processor().Process(ctx, model.ProcessingJob{DocumentID: testDocID})

	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Len(t, writes, 1)
	assert.Equal(t, model.StatusPending, doc.Status)
	d.store.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestProcessor_Process_FailureNotPersisted(t *testing.T) {
	ctx := context.Background()
	d := newProcessorDeps()
	doc := storedDoc(t)
	var writes []write
	dbErr := errors.New("db down")

	d.repo.On("FindByID", ctx, testDocID).Return(doc, nil)
	recordWrites(d.repo, &writes, nil, dbErr)
	d.store.On("Get", ctx, testKey).Return(nil, storage.ObjectInfo{}, errors.New("timeout"))

	outcome, err := d.processor().Process(ctx, model.ProcessingJob{DocumentID: testDocID})

	assert.Equal(t, OutcomeFailed, outcome)
	assert.ErrorIs(t, err, dbErr)
	assert.Equal(t, model.StatusProcessing, doc.Status)
	assert.Len(t, writes, 2)
}

func TestProcessor_Process_MissingStorageKey(t *testing.T) {
	ctx := context.Background()
	d := newProcessorDeps()
	doc, err := model.NewDocument(testDocID, testDocID+".pdf", "report.pdf", model.ContentTypePDF, testOwner, 10)
	require.NoError(t, err)
	var writes []write

	d.repo.On("FindByID", ctx, testDocID).Return(doc, nil)
	recordWrites(d.repo, &writes)

	outcome, err := d.processor().Process(ctx, model.ProcessingJob{DocumentID: testDocID})

	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	require.NotNil(t, doc.ErrorMessage)
	assert.Contains(t, *doc.ErrorMessage, "no storage key")
	d.store.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestProcessor_Process_FailureSurvivesCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := newProcessorDeps()
	doc := storedDoc(t)
	live := mock.MatchedBy(func(c context.Context) bool { return c.Err() == nil })

	d.repo.On("FindByID", mock.Anything, testDocID).Return(doc, nil)
	d.repo.On("Update", live, mock.Anything, mock.Anything).Return(nil).Twice()
	d.store.On("Get", mock.Anything, testKey).Return(io.NopCloser(strings.NewReader("%PDF")), storage.ObjectInfo{}, nil)
	d.ex.On("Extract", mock.Anything, mock.Anything).Run(func(mock.Arguments) { cancel() }).Return("", context.Canceled)

	outcome, err := d.processor().Process(ctx, model.ProcessingJob{DocumentID: testDocID})

	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, model.StatusFailed, doc.Status)
	d.repo.AssertExpectations(t)
}
