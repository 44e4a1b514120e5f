package crawler

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// FileStore is the filesystem surface the downloader writes through
type FileStore interface {
	EnsureDir(path string) error
	WriteFile(path string, data []byte) error
}

// Downloader fetches resource bytes and persists them at a destination path
type Downloader struct {
	transport Transport
	limiter   *Limiter
	store     FileStore
	timeout   time.Duration
}

// NewDownloader creates a Downloader. Fetches share limiter with page fetches.
func NewDownloader(transport Transport, limiter *Limiter, store FileStore, timeout time.Duration) *Downloader {
	return &Downloader{
		transport: transport,
		limiter:   limiter,
		store:     store,
		timeout:   timeout,
	}
}

// Download fetches resourceURL and writes it to destination. The parent
// directory is created before the write starts, in the same call.
// Repeating a successful call rewrites identical content.
func (d *Downloader) Download(ctx context.Context, resourceURL, destination string) error {
	release, err := d.limiter.Acquire(ctx)
	if err != nil {
		return &FetchError{URL: resourceURL, Err: err}
	}
	resp, err := d.transport.Fetch(ctx, resourceURL, FetchOptions{Kind: KindBinary, Timeout: d.timeout})
	release()
	if err != nil {
		return err
	}

	if err := d.store.EnsureDir(filepath.Dir(destination)); err != nil {
		return &WriteError{Path: destination, Err: err}
	}
	if err := d.store.WriteFile(destination, resp.Body); err != nil {
		return &WriteError{Path: destination, Err: err}
	}

	log.Debug().
		Str("url", resourceURL).
		Str("path", destination).
		Int("bytes", len(resp.Body)).
		Msg("Resource saved")

	return nil
}
