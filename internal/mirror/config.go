package mirror

import (
	"fmt"
)

// Config holds the traversal settings for a mirror run
type Config struct {
	MaxDepth           int    // Deepest page level followed, the seed is depth 0
	MaxPages           int    // Maximum pages claimed per run, 0 means unlimited
	NavigationSelector string // Scope for page links on the seed page
	ContentSelector    string // Scope for page links on nested pages
	CSSAssetBase       string // Base for url() references in stylesheets, empty means the stylesheet URL
	SameHostOnly       bool   // Drop pages and resources hosted elsewhere
}

// DefaultConfig returns selectors for a books.toscrape.com style catalogue.
// Stylesheet references resolve against each stylesheet's own URL; sites
// that write them relative to the site root need CSSAssetBase set to "/".
func DefaultConfig() Config {
	return Config{
		MaxDepth:           5,
		MaxPages:           0,
		NavigationSelector: ".side_categories",
		ContentSelector:    "section",
		CSSAssetBase:       "",
		SameHostOnly:       true,
	}
}

// Validate checks the configuration for values the engine cannot honour
func (c Config) Validate() error {
	if c.MaxDepth < 0 {
		return fmt.Errorf("max depth must not be negative, got %d", c.MaxDepth)
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("max pages must not be negative, got %d", c.MaxPages)
	}
	return nil
}

// scopeFor returns the selector that bounds page links at depth
func (c Config) scopeFor(depth int) string {
	if depth == 0 {
		return c.NavigationSelector
	}
	return c.ContentSelector
}
