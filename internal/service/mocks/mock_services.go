package mocks

import (
	"context"
	"io"
	"time"

	"docsearch/internal/service"
	"github.com/stretchr/testify/mock"
)

type MockUploadService struct {
	mock.Mock
}

func (m *MockUploadService) Upload(ctx context.Context, r io.Reader, fileName, contentType string, size int64, ownerID string) (*service.DocumentSummary, error) {
	args := m.Called(ctx, r, fileName, contentType, size, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DocumentSummary), args.Error(1)
}

type MockQueryService struct {
	mock.Mock
}

func (m *MockQueryService) Get(ctx context.Context, id, ownerID string) (*service.DocumentDetails, error) {
	args := m.Called(ctx, id, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DocumentDetails), args.Error(1)
}

func (m *MockQueryService) List(ctx context.Context, ownerID string) ([]service.DocumentDetails, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]service.DocumentDetails), args.Error(1)
}

func (m *MockQueryService) DownloadURL(ctx context.Context, id, ownerID string, expiry time.Duration) (*service.DownloadLink, error) {
	args := m.Called(ctx, id, ownerID, expiry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DownloadLink), args.Error(1)
}

type MockSearchService struct {
	mock.Mock
}

func (m *MockSearchService) Search(ctx context.Context, query, ownerID string, limit int) ([]service.SimilarDocument, error) {
	args := m.Called(ctx, query, ownerID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]service.SimilarDocument), args.Error(1)
}
