package mocks

import (
	"context"

	"github.com/Harvey-AU/site-mirror/internal/crawler"
	"github.com/stretchr/testify/mock"
)

// MockTransport is a mock implementation of crawler.Transport
type MockTransport struct {
	mock.Mock
}

// Fetch mocks the Fetch method
func (m *MockTransport) Fetch(ctx context.Context, targetURL string, opts crawler.FetchOptions) (*crawler.FetchResponse, error) {
	args := m.Called(ctx, targetURL, opts)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*crawler.FetchResponse), args.Error(1)
}
