package crawler

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/Harvey-AU/site-mirror/internal/util"
)

// resourceSelector matches every element that embeds a resource we mirror
const resourceSelector = "link[rel~=stylesheet][href], script[src], img[src]"

// Fetcher retrieves pages and parses them into queryable documents
type Fetcher struct {
	transport Transport
	limiter   *Limiter
	timeout   time.Duration
}

// NewFetcher creates a Fetcher that issues requests through transport,
// holding a limiter slot for each one
func NewFetcher(transport Transport, limiter *Limiter, timeout time.Duration) *Fetcher {
	return &Fetcher{
		transport: transport,
		limiter:   limiter,
		timeout:   timeout,
	}
}

// FetchPage retrieves the markup at pageURL and parses it once
func (f *Fetcher) FetchPage(ctx context.Context, pageURL string) (*PageContent, error) {
	release, err := f.limiter.Acquire(ctx)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}
	resp, err := f.transport.Fetch(ctx, pageURL, FetchOptions{Kind: KindText, Timeout: f.timeout})
	release()
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, &FetchError{URL: pageURL, StatusCode: resp.StatusCode, Err: err}
	}

	return &PageContent{
		URL:  pageURL,
		Body: resp.Body,
		Doc:  doc,
	}, nil
}

// effectiveBase honours a <base href> element when present
func effectiveBase(content *PageContent, baseURL string) string {
	href, ok := content.Doc.Find("base[href]").First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return baseURL
	}
	resolved, err := util.ResolveURL(href, baseURL)
	if err != nil {
		return baseURL
	}
	return resolved
}

// ExtractResourceLinks returns stylesheet, script and image targets in
// document order, each URL once
func ExtractResourceLinks(content *PageContent, baseURL string) []CrawlTarget {
	base := effectiveBase(content, baseURL)
	set := newTargetSet()

	content.Doc.Find(resourceSelector).Each(func(i int, s *goquery.Selection) {
		tag := goquery.NodeName(s)
		attr := "src"
		if tag == "link" {
			attr = "href"
		}

		role, ok := Classify(tag, attr)
		if !ok || role == RolePage {
			return
		}

		href := s.AttrOr(attr, "")
		if !util.IsFetchableHref(href) {
			return
		}

		target, err := ResolveTarget(href, base, role)
		if err != nil {
			log.Debug().
				Err(err).
				Str("page", content.URL).
				Str("href", href).
				Msg("Dropping unresolvable resource reference")
			return
		}
		set.add(target)
	})

	return set.targets
}

// ExtractPageLinks returns page targets for anchors inside scopeSelector,
// in document order, each URL once. An empty scope means the whole document.
func ExtractPageLinks(content *PageContent, baseURL, scopeSelector string) []CrawlTarget {
	base := effectiveBase(content, baseURL)
	set := newTargetSet()

	scope := content.Doc.Selection
	if strings.TrimSpace(scopeSelector) != "" {
		scope = content.Doc.Find(scopeSelector)
	}

	scope.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href := s.AttrOr("href", "")
		if !util.IsFetchableHref(href) {
			return
		}

		target, err := ResolveTarget(href, base, RolePage)
		if err != nil {
			log.Debug().
				Err(err).
				Str("page", content.URL).
				Str("href", href).
				Msg("Dropping unresolvable page link")
			return
		}
		set.add(target)
	})

	log.Debug().
		Str("page", content.URL).
		Str("scope", scopeSelector).
		Int("links", len(set.targets)).
		Msg("Extracted page links")

	return set.targets
}
