package crawler

import (
	"time"
)

// Config holds the configuration for the fetch side of a mirror run
type Config struct {
	RequestTimeout time.Duration // Timeout applied to each page or resource fetch
	MaxConcurrency int           // Maximum number of fetches in flight at once
	RateLimit      int           // Maximum requests per second, 0 disables pacing
	UserAgent      string        // User agent string for requests
	MaxBodyBytes   int           // Largest response body accepted, 0 means unlimited
}

// DefaultConfig returns a Config instance with default values
func DefaultConfig() *Config {
	return &Config{
		RequestTimeout: 30 * time.Second,
		MaxConcurrency: 8,
		RateLimit:      0,
		UserAgent:      "SiteMirror/1.0 (+https://github.com/Harvey-AU/site-mirror)",
		MaxBodyBytes:   50 * 1024 * 1024,
	}
}
