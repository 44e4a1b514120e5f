package mirror

import (
	"context"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Harvey-AU/site-mirror/internal/crawler"
)

// isStylesheet reports whether a downloaded resource should be scanned for
// url() references: linked stylesheets and CSS files pulled in by @import
func isStylesheet(target crawler.CrawlTarget, dest string) bool {
	if target.Role == crawler.RoleStylesheet {
		return true
	}
	return target.Role == crawler.RoleCSSAsset && strings.EqualFold(filepath.Ext(dest), ".css")
}

// takeStylesheets drains the stylesheets persisted since the last call
func (r *run) takeStylesheets() []stylesheet {
	r.sheetsMu.Lock()
	defer r.sheetsMu.Unlock()

	sheets := r.stylesheets
	r.stylesheets = nil
	return sheets
}

// cssPass downloads assets referenced from persisted stylesheets. Stylesheets
// found along the way are scanned in a later round until none remain.
func (r *run) cssPass(ctx context.Context) {
	for round := 1; ; round++ {
		sheets := r.takeStylesheets()
		if len(sheets) == 0 {
			return
		}

		r.log.Debug().
			Int("round", round).
			Int("stylesheets", len(sheets)).
			Msg("Scanning stylesheets for asset references")

		var g errgroup.Group
		for _, sheet := range sheets {
			for _, target := range r.stylesheetAssets(sheet) {
				if !r.inScope(target) || !r.resources.TryClaim(target.URL) {
					continue
				}
				g.Go(func() error {
					r.fetchResource(ctx, target)
					return nil
				})
			}
		}
		_ = g.Wait()

		if ctx.Err() != nil {
			return
		}
	}
}

// stylesheetAssets reads a persisted stylesheet back and resolves its references
func (r *run) stylesheetAssets(sheet stylesheet) []crawler.CrawlTarget {
	data, err := r.engine.store.ReadFile(sheet.path)
	if err != nil {
		r.counts.warn(sheet.url, crawler.RoleStylesheet, &crawler.WriteError{Path: sheet.path, Err: err})
		r.log.Warn().Err(err).Str("path", sheet.path).Msg("Failed to read stylesheet back")
		return nil
	}

	base := r.assetBase
	if base == "" {
		base = sheet.url
	}

	var targets []crawler.CrawlTarget
	for _, ref := range crawler.ExtractURLReferences(string(data)) {
		target, err := crawler.ResolveTarget(ref, base, crawler.RoleCSSAsset)
		if err != nil {
			r.counts.warn(ref, crawler.RoleCSSAsset, err)
			r.log.Debug().Err(err).Str("stylesheet", sheet.url).Str("ref", ref).Msg("Dropping unresolvable CSS reference")
			continue
		}
		targets = append(targets, target)
	}
	return targets
}
