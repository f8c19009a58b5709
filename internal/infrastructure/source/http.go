// Package source provides document sources the discovery session can observe.
package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"TimelineWatch/internal/domain"
	"TimelineWatch/internal/ports"
)

const defaultUserAgent = "TimelineWatch/1.0"

// HTTPOptions configures an HTTPSource.
type HTTPOptions struct {
	// URL is fetched as is when set; otherwise a live search URL is built from BaseURL and Keywords.
	URL       string
	BaseURL   string
	Keywords  []string
	Cookie    string
	UserAgent string
	Client    *http.Client
}

// HTTPSource fetches a fresh rendered timeline on every snapshot.
type HTTPSource struct {
	url       string
	cookie    string
	userAgent string
	client    *http.Client
}

var _ ports.DocumentSource = (*HTTPSource)(nil)

// NewHTTPSource validates options and builds the source.
func NewHTTPSource(opts HTTPOptions) (*HTTPSource, error) {
	target := opts.URL
	if target == "" {
		built, err := BuildSearchURL(opts.BaseURL, opts.Keywords)
		if err != nil {
			return nil, err
		}
		target = built
	}
	if _, err := url.ParseRequestURI(target); err != nil {
		return nil, fmt.Errorf("source url %q: %w", target, err)
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	return &HTTPSource{url: target, cookie: opts.Cookie, userAgent: ua, client: client}, nil
}

// BuildSearchURL returns the live search page for keywords: <base>/search?q=a OR b&f=live.
func BuildSearchURL(base string, keywords []string) (string, error) {
	if base == "" {
		return "", &domain.ConfigurationError{Field: "source.baseURL", Reason: "base url or explicit url is required"}
	}
	var terms []string
	for _, kw := range keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			terms = append(terms, kw)
		}
	}
	if len(terms) == 0 {
		return "", &domain.ConfigurationError{Field: "settings.keywords", Reason: "at least one keyword is required to build a search url"}
	}

	u, err := url.Parse(strings.TrimSuffix(base, "/") + "/search")
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set("q", strings.Join(terms, " OR "))
	q.Set("f", "live")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (h *HTTPSource) Name() string { return h.url }

// Snapshot fetches and parses the page. Status codes meaning the session is gone
// (401, 403, 404, 410) yield a SourceUnavailableError.
func (h *HTTPSource) Snapshot(ctx context.Context) (*goquery.Document, error) {
	resp, err := h.do(ctx, http.MethodGet)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if err := h.checkStatus(resp); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

// Alive issues a HEAD request. Only a gone status is a SourceUnavailableError; network
// failures are returned as is and the session decides how many it tolerates.
func (h *HTTPSource) Alive(ctx context.Context) error {
	resp, err := h.do(ctx, http.MethodHead)
	if err != nil {
		return fmt.Errorf("probe %s: %w", h.url, err)
	}
	resp.Body.Close()
	if gone(resp.StatusCode) {
		return &domain.SourceUnavailableError{Source: h.url, Err: fmt.Errorf("status %s", resp.Status)}
	}
	return nil
}

func (h *HTTPSource) do(ctx context.Context, method string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, h.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set("Accept", "text/html")
	if h.cookie != "" {
		req.Header.Set("Cookie", h.cookie)
	}
	return h.client.Do(req)
}

func (h *HTTPSource) checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case gone(resp.StatusCode):
		return &domain.SourceUnavailableError{Source: h.url, Err: fmt.Errorf("status %s", resp.Status)}
	default:
		return fmt.Errorf("source returned %s", resp.Status)
	}
}

func gone(status int) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusGone:
		return true
	}
	return false
}
