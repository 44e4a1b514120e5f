package util

import (
	"errors"
	"fmt"
	"strings"

	whatwgUrl "github.com/nlnwa/whatwg-url/url"
	"github.com/rs/zerolog/log"
)

// ErrInvalidURL is returned when an href is empty or cannot be parsed.
var ErrInvalidURL = errors.New("invalid url")

// urlParser follows the WHATWG URL standard, which is how browsers read hrefs.
// Default ports are dropped and hosts lower-cased as part of parsing.
var urlParser = whatwgUrl.NewParser(whatwgUrl.WithPercentEncodeSinglePercentSign())

// NormaliseDomain removes http/https prefix and www. from domain
func NormaliseDomain(domain string) string {
	domain = strings.TrimPrefix(domain, "http://")
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "www.")
	domain = strings.TrimSuffix(domain, "/")

	return domain
}

// NormaliseURL ensures a seed URL has a scheme and a host.
// Unlike resolved links, a bare "example.com" is accepted and given https://.
func NormaliseURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}

	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = "https://" + rawURL
	}

	parsed, err := urlParser.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		log.Debug().Str("url", rawURL).Err(err).Msg("Invalid URL format")
		return ""
	}

	return rawURL
}

// IsFetchableHref reports whether an href can point at a fetchable document.
// Script pseudo-links, mail links, inline data and bare fragments are not.
func IsFetchableHref(href string) bool {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return false
	}

	lower := strings.ToLower(href)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:", "about:"} {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}

	return true
}

// ResolveURL joins href against base the way a browser does (WHATWG URL
// parsing: backslashes act as slashes, tabs and newlines are stripped) and
// returns the canonical absolute form.
func ResolveURL(href, base string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", fmt.Errorf("%w: empty href", ErrInvalidURL)
	}

	baseURL, err := urlParser.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: base %q: %v", ErrInvalidURL, base, err)
	}
	if baseURL.Hostname() == "" {
		return "", fmt.Errorf("%w: base %q has no host", ErrInvalidURL, base)
	}

	resolved, err := baseURL.Parse(href)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidURL, href, err)
	}
	if resolved.Hostname() == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrInvalidURL, href)
	}

	return resolved.Href(true), nil
}

// CanonicaliseURL returns the key form used for deduplication: lower-case
// scheme and host, no default port, no fragment, and "/" for an empty path.
func CanonicaliseURL(rawURL string) (string, error) {
	parsed, err := urlParser.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidURL, rawURL, err)
	}
	if parsed.Hostname() == "" {
		return "", fmt.Errorf("%w: %q is not absolute", ErrInvalidURL, rawURL)
	}

	return parsed.Href(true), nil
}

// IsSameHost reports whether two absolute URLs point at the same host,
// ignoring a leading www. and default ports.
func IsSameHost(a, b string) bool {
	ua, errA := urlParser.Parse(a)
	ub, errB := urlParser.Parse(b)
	if errA != nil || errB != nil {
		return false
	}

	hostA := strings.TrimPrefix(ua.Host(), "www.")
	hostB := strings.TrimPrefix(ub.Host(), "www.")

	return hostA != "" && hostA == hostB
}
