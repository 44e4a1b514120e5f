package crawler

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog/log"
)

// Transport fetches the body at a URL. Any non-2xx status or transport
// failure is reported as a *FetchError.
type Transport interface {
	Fetch(ctx context.Context, targetURL string, opts FetchOptions) (*FetchResponse, error)
}

// CollyTransport is a Transport backed by a shared colly collector
type CollyTransport struct {
	config     *Config
	colly      *colly.Collector
	metricsMap *sync.Map // Shared metrics storage for the tracing round tripper
}

// TransportOption customises a CollyTransport
type TransportOption func(*transportOptions)

type transportOptions struct {
	roundTripper http.RoundTripper
}

// WithRoundTripper replaces the base HTTP transport, mainly for tests
func WithRoundTripper(rt http.RoundTripper) TransportOption {
	return func(o *transportOptions) {
		o.roundTripper = rt
	}
}

// originalContentTypeHeader carries the Content-Type as served, before
// the charset parameter is removed
const originalContentTypeHeader = "X-Mirror-Original-Content-Type"

// tracingRoundTripper captures HTTP trace metrics for each request and hands
// colly the body exactly as served
type tracingRoundTripper struct {
	transport  http.RoundTripper
	metricsMap *sync.Map // Maps URL -> PerformanceMetrics
}

// RoundTrip implements the http.RoundTripper interface with httptrace instrumentation
func (t *tracingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	metrics := &PerformanceMetrics{}

	var dnsStartTime, connectStartTime, tlsStartTime time.Time
	requestStartTime := time.Now()

	trace := &httptrace.ClientTrace{
		DNSStart: func(info httptrace.DNSStartInfo) {
			dnsStartTime = time.Now()
		},
		DNSDone: func(info httptrace.DNSDoneInfo) {
			if !dnsStartTime.IsZero() {
				metrics.DNSLookupTime = time.Since(dnsStartTime).Milliseconds()
			}
		},
		ConnectStart: func(network, addr string) {
			connectStartTime = time.Now()
		},
		ConnectDone: func(network, addr string, err error) {
			if err == nil && !connectStartTime.IsZero() {
				metrics.TCPConnectionTime = time.Since(connectStartTime).Milliseconds()
			}
		},
		TLSHandshakeStart: func() {
			tlsStartTime = time.Now()
		},
		TLSHandshakeDone: func(state tls.ConnectionState, err error) {
			if err == nil && !tlsStartTime.IsZero() {
				metrics.TLSHandshakeTime = time.Since(tlsStartTime).Milliseconds()
			}
		},
		GotFirstResponseByte: func() {
			metrics.TTFB = time.Since(requestStartTime).Milliseconds()
		},
	}

	// Retrieved in OnResponse
	t.metricsMap.Store(req.URL.String(), metrics)

	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	resp, err := t.transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	// colly transcodes any body whose Content-Type names a charset
	if ct := resp.Header.Get("Content-Type"); strings.Contains(strings.ToLower(ct), "charset") {
		resp.Header.Set(originalContentTypeHeader, ct)
		resp.Header.Set("Content-Type", withoutCharset(ct))
	}

	return resp, nil
}

// withoutCharset drops the charset parameter from a Content-Type value
func withoutCharset(contentType string) string {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err == nil {
		delete(params, "charset")
		if formatted := mime.FormatMediaType(mediaType, params); formatted != "" {
			return formatted
		}
	}
	mediaType, _, _ = strings.Cut(contentType, ";")
	return strings.TrimSpace(mediaType)
}

// NewCollyTransport creates a Transport with the given configuration.
// If config is nil, default configuration is used.
func NewCollyTransport(config *Config, opts ...TransportOption) *CollyTransport {
	if config == nil {
		config = DefaultConfig()
	}

	var options transportOptions
	for _, opt := range opts {
		opt(&options)
	}

	// One byte past the limit is read so an oversized body can be told
	// apart from one that fits exactly
	bodyLimit := config.MaxBodyBytes
	if bodyLimit > 0 {
		bodyLimit++
	}

	c := colly.NewCollector(
		colly.UserAgent(config.UserAgent),
		colly.Async(true),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.MaxBodySize(bodyLimit),
	)

	parallelism := config.MaxConcurrency
	if parallelism <= 0 {
		parallelism = 1
	}
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: parallelism,
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to apply colly limit rule")
	}

	metricsMap := &sync.Map{}

	baseTransport := options.roundTripper
	if baseTransport == nil {
		baseTransport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: parallelism,
			MaxConnsPerHost:     parallelism * 2,
			IdleConnTimeout:     120 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			ForceAttemptHTTP2:   true,
		}
	}

	// Timeouts are applied per request through the collector context
	c.SetClient(&http.Client{
		Transport: &tracingRoundTripper{
			transport:  baseTransport,
			metricsMap: metricsMap,
		},
	})

	return &CollyTransport{
		config:     config,
		colly:      c,
		metricsMap: metricsMap,
	}
}

// GetUserAgent returns the user agent string for this transport
func (t *CollyTransport) GetUserAgent() string {
	return t.config.UserAgent
}

// validateFetchRequest validates the context and URL format
func validateFetchRequest(ctx context.Context, targetURL string) (*url.URL, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{URL: targetURL, Err: err}
	}

	parsed, err := url.Parse(targetURL)
	if err != nil {
		return nil, &FetchError{URL: targetURL, Err: err}
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, &FetchError{URL: targetURL, Err: fmt.Errorf("invalid URL format: %s", targetURL)}
	}

	return parsed, nil
}

func acceptHeader(kind ResponseKind) string {
	if kind == KindBinary {
		return "*/*"
	}
	return "text/html,application/xhtml+xml,application/xml;q=0.9,text/css;q=0.8,*/*;q=0.5"
}

// Fetch retrieves targetURL. It respects context cancellation, enforces
// opts.Timeout (or the configured default), and treats non-2xx statuses as errors.
func (t *CollyTransport) Fetch(ctx context.Context, targetURL string, opts FetchOptions) (*FetchResponse, error) {
	if _, err := validateFetchRequest(ctx, targetURL); err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = t.config.RequestTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	res := &FetchResponse{URL: targetURL}
	var fetchErr error

	collyClone := t.colly.Clone()
	collyClone.Context = ctx

	collyClone.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", acceptHeader(opts.Kind))
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")

		log.Debug().
			Str("url", r.URL.String()).
			Msg("Transport sending request")
	})

	collyClone.OnResponse(func(r *colly.Response) {
		if metricsVal, ok := t.metricsMap.LoadAndDelete(r.Request.URL.String()); ok {
			performanceMetrics := metricsVal.(*PerformanceMetrics)
			if performanceMetrics.TTFB > 0 {
				performanceMetrics.ContentTransferTime = time.Since(start).Milliseconds() - performanceMetrics.TTFB
			}
			res.Performance = *performanceMetrics
		}

		res.ResponseTime = time.Since(start).Milliseconds()
		res.StatusCode = r.StatusCode
		res.ContentType = r.Headers.Get(originalContentTypeHeader)
		if res.ContentType == "" {
			res.ContentType = r.Headers.Get("Content-Type")
		}
		res.URL = r.Request.URL.String()
		res.Body = r.Body

		switch {
		case r.StatusCode < 200 || r.StatusCode >= 300:
			fetchErr = &FetchError{URL: targetURL, StatusCode: r.StatusCode, Err: ErrNonSuccessStatus}
		case t.config.MaxBodyBytes > 0 && len(r.Body) > t.config.MaxBodyBytes:
			fetchErr = &FetchError{
				URL:        targetURL,
				StatusCode: r.StatusCode,
				Err:        fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, t.config.MaxBodyBytes),
			}
		}
	})

	collyClone.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
			if r.Request != nil && r.Request.URL != nil {
				t.metricsMap.Delete(r.Request.URL.String())
			}
		}
		res.ResponseTime = time.Since(start).Milliseconds()
		fetchErr = &FetchError{URL: targetURL, StatusCode: status, Err: err}
	})

	done := make(chan error, 1)

	// Visit in a goroutine so context cancellation is honoured
	go func() {
		if visitErr := collyClone.Visit(targetURL); visitErr != nil {
			done <- visitErr
			return
		}
		collyClone.Wait()
		done <- nil
	}()

	select {
	case err := <-done:
		if err != nil {
			log.Warn().
				Err(err).
				Str("url", targetURL).
				Msg("Colly visit failed")
			return nil, &FetchError{URL: targetURL, Err: err}
		}
	case <-ctx.Done():
		log.Warn().
			Err(ctx.Err()).
			Str("url", targetURL).
			Dur("timeout", timeout).
			Msg("Fetch cancelled due to context")
		return nil, &FetchError{URL: targetURL, Err: ctx.Err()}
	}

	if fetchErr != nil {
		log.Warn().
			Err(fetchErr).
			Str("url", targetURL).
			Int64("duration_ms", res.ResponseTime).
			Msg("Fetch failed")
		return nil, fetchErr
	}

	log.Debug().
		Int("status", res.StatusCode).
		Str("url", targetURL).
		Int("bytes", len(res.Body)).
		Int64("ttfb_ms", res.Performance.TTFB).
		Int64("duration_ms", res.ResponseTime).
		Msg("Fetch completed")

	return res, nil
}
