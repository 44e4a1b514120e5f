package crawler

import (
	"fmt"
	"hash/fnv"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/kennygrant/sanitize"

	"github.com/Harvey-AU/site-mirror/internal/util"
)

const (
	indexFile      = "index.html"
	maxQuerySuffix = 64
)

// ToLocalPath maps an absolute URL to its file under mirrorRoot. Scheme and
// host are dropped and the URL path is kept:
//
//	/ or ""                -> index.html
//	/dir/                  -> dir/index.html
//	/dir/name (no ext)     -> dir/name/index.html
//	/dir/page.html?page=2  -> dir/page_page-2.html
//
// The result depends on the URL alone, so the same URL always maps to the
// same path. ".." segments cannot climb above mirrorRoot.
func ToLocalPath(rawURL, mirrorRoot string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", util.ErrInvalidURL, rawURL, err)
	}
	if !u.IsAbs() {
		return "", fmt.Errorf("%w: %q is not absolute", util.ErrInvalidURL, rawURL)
	}

	trailingSlash := u.Path == "" || strings.HasSuffix(u.Path, "/")
	rel := strings.TrimPrefix(path.Clean("/"+u.Path), "/")

	if trailingSlash || rel == "" || path.Ext(rel) == "" {
		rel = path.Join(rel, indexFile)
	}

	if u.RawQuery != "" {
		rel = withQuerySuffix(rel, u.RawQuery)
	}

	return filepath.Join(mirrorRoot, filepath.FromSlash(rel)), nil
}

// withQuerySuffix appends a filesystem-safe form of query to the file stem.
// Queries that sanitise to nothing or to more than maxQuerySuffix characters
// are replaced by a hash of the raw query.
func withQuerySuffix(rel, rawQuery string) string {
	ext := path.Ext(rel)
	stem := strings.TrimSuffix(rel, ext)

	decoded := rawQuery
	if unescaped, err := url.QueryUnescape(rawQuery); err == nil {
		decoded = unescaped
	}

	suffix := sanitize.BaseName(decoded)
	if suffix == "" || len(suffix) > maxQuerySuffix {
		h := fnv.New64a()
		_, _ = h.Write([]byte(rawQuery))
		suffix = fmt.Sprintf("q%016x", h.Sum64())
	}

	return stem + "_" + suffix + ext
}
