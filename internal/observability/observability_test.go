package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDisabled(t *testing.T) {
	prov, err := Init(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, prov)
}

func TestInitServesMirrorMetrics(t *testing.T) {
	ctx := context.Background()

	prov, err := Init(ctx, Config{Enabled: true, Environment: "test"})
	require.NoError(t, err)
	require.NotNil(t, prov)
	defer func() { _ = prov.Shutdown(ctx) }()

	assert.Equal(t, "site-mirror", prov.Config.ServiceName)

	spanCtx, span := StartPageSpan(ctx, PageSpanInfo{RunID: "run-1", URL: "https://example.test/", Depth: 0})
	RecordFetch(spanCtx, FetchMetrics{RunID: "run-1", Role: "page", Status: "ok", Duration: 12 * time.Millisecond})
	RecordPage(spanCtx, "run-1", "persisted")
	span.End()

	srv := httptest.NewServer(WrapHandler(prov.MetricsHandler, prov))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Regexp(t, `mirror[._]fetch[._]total`, string(body))
	assert.Regexp(t, `mirror[._]page[._]total`, string(body))
}

func TestInitRebindsInstrumentsToNewProviders(t *testing.T) {
	ctx := context.Background()

	first, err := Init(ctx, Config{Enabled: true, Environment: "test"})
	require.NoError(t, err)
	require.NoError(t, first.Shutdown(ctx))

	second, err := Init(ctx, Config{Enabled: true, Environment: "test", ServiceName: "mirror-second"})
	require.NoError(t, err)
	defer func() { _ = second.Shutdown(ctx) }()

	RecordPage(ctx, "run-2", "failed")

	rec := httptest.NewRecorder()
	second.MetricsHandler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Regexp(t, `mirror[._]page[._]total`, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "run-2")
}

func TestWrapHandlerWithoutProviders(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	assert.NotNil(t, WrapHandler(h, nil))
}

func TestGetOTLPEndpointOption(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"full_url", "https://otlp.example.test/v1/traces"},
		{"host_port", "localhost:4318"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, getOTLPEndpointOption(tt.input))
		})
	}
}
