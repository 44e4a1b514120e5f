package mirror

import (
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Harvey-AU/site-mirror/internal/crawler"
)

// SummaryFile is written under the mirror root when a run finishes
const SummaryFile = ".mirror-summary.json"

// Warning is a non-fatal failure recorded during a run
type Warning struct {
	URL     string `json:"url"`
	Role    string `json:"role"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Summary reports the outcome of a mirror run. PagesTruncated counts pages
// refused by the depth bound or page cap that no other path reached.
type Summary struct {
	RunID               string        `json:"run_id"`
	SeedURL             string        `json:"seed_url"`
	MirrorRoot          string        `json:"mirror_root"`
	PagesPersisted      int           `json:"pages_persisted"`
	PagesFailed         int           `json:"pages_failed"`
	PagesSkipped        int           `json:"pages_skipped"`
	PagesTruncated      int           `json:"pages_truncated"`
	ResourcesDownloaded int           `json:"resources_downloaded"`
	ResourcesFailed     int           `json:"resources_failed"`
	Warnings            []Warning     `json:"warnings"`
	StartedAt           time.Time     `json:"started_at"`
	Duration            time.Duration `json:"duration_ns"`
}

// HasFailures reports whether any page or resource failed
func (s *Summary) HasFailures() bool {
	return s.PagesFailed > 0 || s.ResourcesFailed > 0
}

// JSON renders the summary for the summary file
func (s *Summary) JSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// tally accumulates run counters from concurrent page and resource steps
type tally struct {
	pagesPersisted      atomic.Int64
	pagesFailed         atomic.Int64
	pagesSkipped        atomic.Int64
	pagesTruncated      atomic.Int64
	resourcesDownloaded atomic.Int64
	resourcesFailed     atomic.Int64

	mu       sync.Mutex
	warnings []Warning
}

func (t *tally) warn(url string, role crawler.Role, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.warnings = append(t.warnings, Warning{
		URL:     url,
		Role:    role.String(),
		Kind:    errorKind(err),
		Message: err.Error(),
	})
}

// snapshot copies the counters into s, warnings ordered by URL then role
func (t *tally) snapshot(s *Summary) {
	s.PagesPersisted = int(t.pagesPersisted.Load())
	s.PagesFailed = int(t.pagesFailed.Load())
	s.PagesSkipped = int(t.pagesSkipped.Load())
	s.PagesTruncated = int(t.pagesTruncated.Load())
	s.ResourcesDownloaded = int(t.resourcesDownloaded.Load())
	s.ResourcesFailed = int(t.resourcesFailed.Load())

	t.mu.Lock()
	warnings := make([]Warning, len(t.warnings))
	copy(warnings, t.warnings)
	t.mu.Unlock()

	sort.SliceStable(warnings, func(i, j int) bool {
		if warnings[i].URL != warnings[j].URL {
			return warnings[i].URL < warnings[j].URL
		}
		return warnings[i].Role < warnings[j].Role
	})
	s.Warnings = warnings
}
