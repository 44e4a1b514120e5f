package testutil

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/joho/godotenv"
)

// LoadTestEnv loads variables from a .env.test file without overriding
// anything already set in the environment
func LoadTestEnv(t *testing.T) {
	t.Helper()

	envPath := findEnvTestFile()
	if envPath == "" {
		return
	}

	envMap, err := godotenv.Read(envPath)
	if err != nil {
		t.Logf("Warning: Failed to read %s: %v", envPath, err)
		return
	}

	for key, value := range envMap {
		if _, exists := os.LookupEnv(key); !exists {
			t.Setenv(key, value)
		}
	}
}

// findEnvTestFile searches for .env.test in current and parent directories
func findEnvTestFile() string {
	dir, _ := os.Getwd()

	for range 5 {
		envPath := filepath.Join(dir, ".env.test")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// Route is a canned response served by a Site
type Route struct {
	Status      int
	ContentType string
	Body        string
	Delay       time.Duration
}

// Site is an httptest server serving a fixed route table and counting hits
type Site struct {
	Server *httptest.Server

	mu     sync.Mutex
	routes map[string]Route
	hits   map[string]int
}

// NewSite starts a server for routes keyed by request URI (path plus query).
// Unknown URIs answer 404. The server is closed when the test ends.
func NewSite(t *testing.T, routes map[string]Route) *Site {
	t.Helper()

	s := &Site{
		routes: routes,
		hits:   make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Server.Close)

	return s
}

func (s *Site) serve(w http.ResponseWriter, r *http.Request) {
	key := r.URL.RequestURI()

	s.mu.Lock()
	s.hits[key]++
	route, ok := s.routes[key]
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	if route.Delay > 0 {
		select {
		case <-time.After(route.Delay):
		case <-r.Context().Done():
			return
		}
	}

	if route.ContentType != "" {
		w.Header().Set("Content-Type", route.ContentType)
	}
	status := route.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(route.Body))
}

// URL returns the absolute server URL for a request URI
func (s *Site) URL(uri string) string {
	return s.Server.URL + uri
}

// Hits returns how many times uri was requested
func (s *Site) Hits(uri string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[uri]
}

// RoundTripper returns a transport that sends every request to this server
// whatever host it names, so fixtures can use hosts like example.test
func (s *Site) RoundTripper() http.RoundTripper {
	target, _ := url.Parse(s.Server.URL)
	return &rewriteTransport{target: target, base: http.DefaultTransport}
}

type rewriteTransport struct {
	target *url.URL
	base   http.RoundTripper
}

func (rt *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = rt.target.Scheme
	out.URL.Host = rt.target.Host
	out.Host = rt.target.Host
	return rt.base.RoundTrip(out)
}
