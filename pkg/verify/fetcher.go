package verify

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
)

// DefaultUserAgent identifies the verifier to the servers it fetches from.
const DefaultUserAgent = "badge-engine-verifier/1.0 (+https://github.com/eventbadges/badge-engine)"

const (
	acceptHeader    = "application/ld+json, application/json"
	maxDocumentSize = 1 << 20
)

// Document is a fetched JSON(-LD) document. Its body is kept opaque and
// read with gjson paths.
type Document struct {
	URL        string
	StatusCode int
	Body       []byte
}

// OK reports whether the document was served with a 2xx status.
func (d *Document) OK() bool {
	return d.StatusCode >= 200 && d.StatusCode < 300
}

// Get reads a value from the body.
func (d *Document) Get(path string) gjson.Result {
	return gjson.GetBytes(d.Body, path)
}

// Fetcher retrieves documents referenced by a credential. Non-2xx
// responses are returned as documents; only transport failures are errors.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Document, error)
}

// HTTPFetcher fetches documents over HTTP. It makes exactly one attempt per
// call; deadlines come from the caller's context.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPFetcher creates a fetcher. A nil client uses a client without its
// own timeout.
func NewHTTPFetcher(client *http.Client, userAgent string) *HTTPFetcher {
	if client == nil {
		client = &http.Client{}
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &HTTPFetcher{client: client, userAgent: userAgent}
}

// Fetch retrieves url.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", url, err)
	}
	if len(body) > maxDocumentSize {
		return nil, fmt.Errorf("document at %s exceeds %d bytes", url, maxDocumentSize)
	}

	return &Document{URL: url, StatusCode: resp.StatusCode, Body: body}, nil
}
