package mirror

import (
	"errors"
	"fmt"

	"github.com/Harvey-AU/site-mirror/internal/crawler"
	"github.com/Harvey-AU/site-mirror/internal/util"
)

// CrawlError aborts a whole run: the seed could not be fetched or stored,
// the mirror root is unusable, or the run was cancelled.
type CrawlError struct {
	SeedURL string
	Err     error
}

func (e *CrawlError) Error() string {
	return fmt.Sprintf("mirror %s: %v", e.SeedURL, e.Err)
}

func (e *CrawlError) Unwrap() error { return e.Err }

// Warning kinds recorded in a Summary
const (
	KindInvalidURL = "invalid_url"
	KindFetch      = "fetch"
	KindWrite      = "write"
	KindOther      = "error"
)

// errorKind maps a non-fatal failure to its warning kind
func errorKind(err error) string {
	var fe *crawler.FetchError
	var we *crawler.WriteError
	switch {
	case errors.As(err, &fe):
		return KindFetch
	case errors.As(err, &we):
		return KindWrite
	case errors.Is(err, util.ErrInvalidURL):
		return KindInvalidURL
	default:
		return KindOther
	}
}
