package crawler

import (
	"errors"
	"fmt"
)

// ErrNonSuccessStatus marks a response that arrived with a non-2xx status
var ErrNonSuccessStatus = errors.New("non-success status code")

// ErrBodyTooLarge marks a response longer than the configured body limit
var ErrBodyTooLarge = errors.New("response body too large")

// FetchError reports a network or HTTP-level failure for one URL
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// WriteError reports a local storage failure for one destination path
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// IsFetchError reports whether err is or wraps a FetchError
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// IsWriteError reports whether err is or wraps a WriteError
func IsWriteError(err error) bool {
	var we *WriteError
	return errors.As(err, &we)
}
