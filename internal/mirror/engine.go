// Package mirror drives a recursive walk from a seed page, storing every
// page and embedded resource under a local root with the site's layout.
package mirror

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Harvey-AU/site-mirror/internal/crawler"
	"github.com/Harvey-AU/site-mirror/internal/observability"
	"github.com/Harvey-AU/site-mirror/internal/util"
	"github.com/Harvey-AU/site-mirror/internal/visited"
)

// PageFetcher retrieves and parses one page
type PageFetcher interface {
	FetchPage(ctx context.Context, pageURL string) (*crawler.PageContent, error)
}

// ResourceDownloader fetches one resource into a destination path
type ResourceDownloader interface {
	Download(ctx context.Context, resourceURL, destination string) error
}

// Store is the filesystem surface the engine persists pages through and
// reads stylesheets back from
type Store interface {
	crawler.FileStore
	Save(path string, data []byte) error
	ReadFile(path string) ([]byte, error)
}

// Engine mirrors sites. It keeps no state between Mirror calls, so one
// Engine may run several mirrors at once.
type Engine struct {
	cfg        Config
	fetcher    PageFetcher
	downloader ResourceDownloader
	store      Store
	newRunID   func() string
}

// Option customises an Engine
type Option func(*Engine)

// WithRunIDGenerator replaces the uuid run id source
func WithRunIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		e.newRunID = fn
	}
}

// New creates an Engine
func New(cfg Config, fetcher PageFetcher, downloader ResourceDownloader, store Store, opts ...Option) *Engine {
	e := &Engine{
		cfg:        cfg,
		fetcher:    fetcher,
		downloader: downloader,
		store:      store,
		newRunID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run holds the state of a single Mirror call
type run struct {
	engine    *Engine
	id        string
	seed      string
	root      string
	assetBase string
	log       zerolog.Logger

	pages     *visited.Set
	resources *visited.Set
	truncated *visited.Set
	claimed   atomic.Int64
	counts    tally

	sheetsMu    sync.Mutex
	stylesheets []stylesheet
}

// stylesheet is a persisted stylesheet awaiting the CSS pass
type stylesheet struct {
	url  string
	path string
}

// Mirror walks the site from seedURL and writes it under mirrorRoot. The
// returned summary is never nil. An error is returned only when the run
// as a whole failed, and it is always a *CrawlError.
func (e *Engine) Mirror(ctx context.Context, seedURL, mirrorRoot string) (*Summary, error) {
	span := sentry.StartSpan(ctx, "mirror.run")
	defer span.Finish()
	ctx = span.Context()

	start := time.Now()
	summary := &Summary{
		RunID:      e.newRunID(),
		SeedURL:    seedURL,
		MirrorRoot: mirrorRoot,
		StartedAt:  start,
	}
	span.SetTag("run_id", summary.RunID)

	fail := func(err error) (*Summary, error) {
		summary.Duration = time.Since(start)
		crawlErr := &CrawlError{SeedURL: seedURL, Err: err}
		span.SetTag("error", "true")
		span.SetData("error.message", crawlErr.Error())
		sentry.CaptureException(crawlErr)
		log.Error().
			Err(err).
			Str("run_id", summary.RunID).
			Str("seed", seedURL).
			Msg("Mirror run failed")
		return summary, crawlErr
	}

	if err := e.cfg.Validate(); err != nil {
		return fail(err)
	}

	seed, err := util.CanonicaliseURL(util.NormaliseURL(seedURL))
	if err != nil {
		return fail(err)
	}
	summary.SeedURL = seed
	if u, err := url.Parse(seed); err == nil {
		span.SetTag("domain", util.NormaliseDomain(u.Host))
	}

	if err := e.store.EnsureDir(mirrorRoot); err != nil {
		return fail(&crawler.WriteError{Path: mirrorRoot, Err: err})
	}

	r := &run{
		engine:    e,
		id:        summary.RunID,
		seed:      seed,
		root:      mirrorRoot,
		log:       log.With().Str("run_id", summary.RunID).Str("seed", seed).Logger(),
		pages:     visited.New(),
		resources: visited.New(),
		truncated: visited.New(),
	}
	if e.cfg.CSSAssetBase != "" {
		base, err := util.ResolveURL(e.cfg.CSSAssetBase, seed)
		if err != nil {
			return fail(fmt.Errorf("css asset base: %w", err))
		}
		r.assetBase = base
	}

	r.log.Info().
		Str("root", mirrorRoot).
		Int("max_depth", e.cfg.MaxDepth).
		Int("max_pages", e.cfg.MaxPages).
		Msg("Starting mirror run")

	r.pages.TryClaim(seed)
	r.claimed.Add(1)

	if err := r.visitPage(ctx, seed, 0); err != nil {
		r.countTruncated()
		r.counts.snapshot(summary)
		return fail(err)
	}

	r.cssPass(ctx)

	r.countTruncated()
	r.counts.snapshot(summary)
	summary.Duration = time.Since(start)

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	r.writeSummary(summary)

	r.log.Info().
		Int("pages_persisted", summary.PagesPersisted).
		Int("pages_failed", summary.PagesFailed).
		Int("pages_truncated", summary.PagesTruncated).
		Int("resources_downloaded", summary.ResourcesDownloaded).
		Int("resources_failed", summary.ResourcesFailed).
		Dur("duration", summary.Duration).
		Msg("Mirror run completed")

	return summary, nil
}

// visitPage fetches and persists one claimed page, then fans out its
// resources and child pages and waits for all of them. Only a seed failure
// is returned; deeper failures are recorded in the tally.
func (r *run) visitPage(ctx context.Context, pageURL string, depth int) error {
	ctx, span := observability.StartPageSpan(ctx, observability.PageSpanInfo{RunID: r.id, URL: pageURL, Depth: depth})
	defer span.End()
	defer r.pages.MarkDone(pageURL)

	start := time.Now()
	content, err := r.engine.fetcher.FetchPage(ctx, pageURL)
	r.recordFetch(ctx, crawler.RolePage, err, time.Since(start))
	if err != nil {
		return r.pageFailed(ctx, pageURL, depth, err)
	}

	dest, err := crawler.ToLocalPath(pageURL, r.root)
	if err == nil {
		err = r.persist(dest, content.Body)
	}
	if err != nil {
		return r.pageFailed(ctx, pageURL, depth, err)
	}
	r.counts.pagesPersisted.Add(1)
	observability.RecordPage(ctx, r.id, "persisted")

	r.log.Debug().
		Str("url", pageURL).
		Str("path", dest).
		Int("depth", depth).
		Msg("Page persisted")

	var g errgroup.Group

	for _, target := range crawler.ExtractResourceLinks(content, pageURL) {
		if !r.inScope(target) || !r.resources.TryClaim(target.URL) {
			continue
		}
		g.Go(func() error {
			r.fetchResource(ctx, target)
			return nil
		})
	}

	for _, target := range crawler.ExtractPageLinks(content, pageURL, r.engine.cfg.scopeFor(depth)) {
		if !r.inScope(target) || !r.admitPage(target.URL, depth+1) {
			continue
		}
		g.Go(func() error {
			_ = r.visitPage(ctx, target.URL, depth+1)
			return nil
		})
	}

	return g.Wait()
}

// admitPage applies the depth bound, the claim, and the page cap in that
// order. It reports whether the caller should visit pageURL. Refused URLs
// are recorded in r.truncated and counted once the run ends.
func (r *run) admitPage(pageURL string, depth int) bool {
	cfg := r.engine.cfg

	if depth > cfg.MaxDepth {
		if r.truncated.TryClaim(pageURL) {
			r.log.Debug().Str("url", pageURL).Int("depth", depth).Msg("Depth limit reached, not following")
		}
		return false
	}

	if !r.pages.TryClaim(pageURL) {
		r.counts.pagesSkipped.Add(1)
		return false
	}

	if cfg.MaxPages > 0 && r.claimed.Add(1) > int64(cfg.MaxPages) {
		r.truncated.TryClaim(pageURL)
		r.log.Debug().Str("url", pageURL).Msg("Page limit reached, not following")
		return false
	}

	return true
}

// countTruncated counts refused URLs that were never visited. A link refused
// for depth may still be reached later through a shallower path.
func (r *run) countTruncated() {
	var n int64
	for _, pageURL := range r.truncated.Keys() {
		if r.pages.State(pageURL) != visited.StateDone {
			n++
		}
	}
	r.counts.pagesTruncated.Store(n)
}

// inScope drops targets on other hosts when the run is restricted to the seed host
func (r *run) inScope(target crawler.CrawlTarget) bool {
	if !r.engine.cfg.SameHostOnly || util.IsSameHost(target.URL, r.seed) {
		return true
	}
	r.log.Debug().
		Str("url", target.URL).
		Str("role", target.Role.String()).
		Msg("Skipping off-host target")
	return false
}

func (r *run) pageFailed(ctx context.Context, pageURL string, depth int, err error) error {
	observability.RecordPage(ctx, r.id, "failed")
	r.counts.pagesFailed.Add(1)
	if depth == 0 {
		return err
	}

	r.counts.warn(pageURL, crawler.RolePage, err)
	r.log.Warn().
		Err(err).
		Str("url", pageURL).
		Int("depth", depth).
		Msg("Page failed, skipping its subtree")
	return nil
}

// persist writes data at dest, creating the parent directory first
func (r *run) persist(dest string, data []byte) error {
	if err := r.engine.store.EnsureDir(filepath.Dir(dest)); err != nil {
		return &crawler.WriteError{Path: dest, Err: err}
	}
	if err := r.engine.store.WriteFile(dest, data); err != nil {
		return &crawler.WriteError{Path: dest, Err: err}
	}
	return nil
}

// fetchResource downloads one claimed resource and records the outcome
func (r *run) fetchResource(ctx context.Context, target crawler.CrawlTarget) {
	dest, err := crawler.ToLocalPath(target.URL, r.root)
	if err != nil {
		r.resourceFailed(target, err)
		return
	}

	start := time.Now()
	err = r.engine.downloader.Download(ctx, target.URL, dest)
	r.recordFetch(ctx, target.Role, err, time.Since(start))
	if err != nil {
		r.resourceFailed(target, err)
		return
	}

	r.resources.MarkDone(target.URL)
	r.counts.resourcesDownloaded.Add(1)

	if isStylesheet(target, dest) {
		r.sheetsMu.Lock()
		r.stylesheets = append(r.stylesheets, stylesheet{url: target.URL, path: dest})
		r.sheetsMu.Unlock()
	}
}

func (r *run) resourceFailed(target crawler.CrawlTarget, err error) {
	r.counts.resourcesFailed.Add(1)
	r.counts.warn(target.URL, target.Role, err)
	r.log.Warn().
		Err(err).
		Str("url", target.URL).
		Str("role", target.Role.String()).
		Msg("Resource failed")
}

func (r *run) recordFetch(ctx context.Context, role crawler.Role, err error, elapsed time.Duration) {
	status := "ok"
	if err != nil {
		status = errorKind(err)
	}
	observability.RecordFetch(ctx, observability.FetchMetrics{
		RunID:    r.id,
		Role:     role.String(),
		Status:   status,
		Duration: elapsed,
	})
}

// writeSummary stores the summary next to the mirrored site
func (r *run) writeSummary(summary *Summary) {
	data, err := summary.JSON()
	if err == nil {
		err = r.engine.store.Save(filepath.Join(r.root, SummaryFile), data)
	}
	if err != nil {
		r.log.Warn().Err(err).Msg("Failed to write run summary")
	}
}
