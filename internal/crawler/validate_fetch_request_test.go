package crawler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFetchRequest(t *testing.T) {
	tests := []struct {
		name           string
		targetURL      string
		expectError    bool
		expectedScheme string
		expectedHost   string
	}{
		{
			name:           "valid_https_url",
			targetURL:      "https://example.com",
			expectedScheme: "https",
			expectedHost:   "example.com",
		},
		{
			name:           "valid_http_url_with_port",
			targetURL:      "http://127.0.0.1:8080/styles/main.css",
			expectedScheme: "http",
			expectedHost:   "127.0.0.1:8080",
		},
		{
			name:           "valid_url_with_query",
			targetURL:      "https://example.com/page?param=value",
			expectedScheme: "https",
			expectedHost:   "example.com",
		},
		{name: "url_missing_scheme", targetURL: "example.com", expectError: true},
		{name: "url_missing_host", targetURL: "https://", expectError: true},
		{name: "empty_url", targetURL: "", expectError: true},
		{name: "malformed_url", targetURL: "ht!tp://bad-url", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsedURL, err := validateFetchRequest(context.Background(), tt.targetURL)

			if tt.expectError {
				require.Error(t, err)
				assert.Nil(t, parsedURL)

				var fe *FetchError
				require.True(t, errors.As(err, &fe))
				assert.Equal(t, tt.targetURL, fe.URL)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, parsedURL)
			assert.Equal(t, tt.expectedScheme, parsedURL.Scheme)
			assert.Equal(t, tt.expectedHost, parsedURL.Host)
		})
	}
}

func TestValidateFetchRequestContextCancellation(t *testing.T) {
	cancelledCtx, cancel := context.WithCancel(context.Background())
	cancel()

	parsedURL, err := validateFetchRequest(cancelledCtx, "https://example.com")

	assert.Nil(t, parsedURL)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, IsFetchError(err))
}
