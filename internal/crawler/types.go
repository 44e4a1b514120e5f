package crawler

import (
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Role describes what a discovered URL is used for
type Role int

const (
	RolePage Role = iota
	RoleStylesheet
	RoleScript
	RoleImage
	RoleCSSAsset
)

func (r Role) String() string {
	switch r {
	case RolePage:
		return "page"
	case RoleStylesheet:
		return "stylesheet"
	case RoleScript:
		return "script"
	case RoleImage:
		return "image"
	case RoleCSSAsset:
		return "css_asset"
	default:
		return "unknown"
	}
}

// CrawlTarget is a discovered absolute URL together with its role
type CrawlTarget struct {
	URL  string `json:"url"`
	Role Role   `json:"role"`
}

// ResponseKind selects how a response body is requested
type ResponseKind int

const (
	KindText ResponseKind = iota
	KindBinary
)

// FetchOptions controls a single transport request
type FetchOptions struct {
	Kind    ResponseKind
	Timeout time.Duration
}

// PerformanceMetrics holds connection timings captured for one request
type PerformanceMetrics struct {
	DNSLookupTime       int64 `json:"dns_lookup_time"`
	TCPConnectionTime   int64 `json:"tcp_connection_time"`
	TLSHandshakeTime    int64 `json:"tls_handshake_time"`
	TTFB                int64 `json:"ttfb"`
	ContentTransferTime int64 `json:"content_transfer_time"`
}

// FetchResponse is the successful result of a transport request
type FetchResponse struct {
	URL          string             `json:"url"`
	StatusCode   int                `json:"status_code"`
	ContentType  string             `json:"content_type"`
	Body         []byte             `json:"-"`
	ResponseTime int64              `json:"response_time"`
	Performance  PerformanceMetrics `json:"performance"`
}

// PageContent is fetched markup parsed once into a queryable document
type PageContent struct {
	URL  string
	Body []byte
	Doc  *goquery.Document
}
