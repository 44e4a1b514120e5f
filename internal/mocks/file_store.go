package mocks

import (
	"github.com/stretchr/testify/mock"
)

// MockFileStore is a mock implementation of crawler.FileStore
type MockFileStore struct {
	mock.Mock
}

// EnsureDir mocks the EnsureDir method
func (m *MockFileStore) EnsureDir(path string) error {
	args := m.Called(path)
	return args.Error(0)
}

// WriteFile mocks the WriteFile method
func (m *MockFileStore) WriteFile(path string, data []byte) error {
	args := m.Called(path, data)
	return args.Error(0)
}
