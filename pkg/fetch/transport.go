package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Partial-content request headers sent with every page request.
const (
	HeaderRequestedWith = "X-Requested-With"
	RequestedWithXHR    = "XMLHttpRequest"
	AcceptPartial       = "text/html, application/json"
)

// DefaultMaxBodySize caps the bytes read from a page response.
const DefaultMaxBodySize = 8 << 20

// Response is a transport-level page response.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// Transport issues the GET for a page. href is the path as it appears in
// the address bar (base prefix included).
type Transport interface {
	Get(ctx context.Context, href string, header http.Header) (*Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, href string, header http.Header) (*Response, error)

// Get implements Transport.
func (f TransportFunc) Get(ctx context.Context, href string, header http.Header) (*Response, error) {
	return f(ctx, href, header)
}

// PartialHeader returns the headers that mark a partial-content request.
func PartialHeader() http.Header {
	h := make(http.Header)
	h.Set(HeaderRequestedWith, RequestedWithXHR)
	h.Set("Accept", AcceptPartial)
	return h
}

// IsPartialRequest reports whether r was sent by a Fetcher.
func IsPartialRequest(r *http.Request) bool {
	return r.Header.Get(HeaderRequestedWith) == RequestedWithXHR
}

// HTTPTransport fetches pages from an origin over HTTP.
type HTTPTransport struct {
	// BaseURL is the site origin, e.g. "https://architech.example".
	BaseURL string

	// Client is the HTTP client. Default: a client with a 10s timeout.
	Client *http.Client

	// MaxBodySize caps the response body. Default: 8 MiB.
	MaxBodySize int64
}

// NewHTTPTransport creates an HTTP transport for baseURL.
func NewHTTPTransport(baseURL string, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPTransport{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

// Get implements Transport.
func (t *HTTPTransport) Get(ctx context.Context, href string, header http.Header) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.BaseURL+href, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	limit := t.MaxBodySize
	if limit <= 0 {
		limit = DefaultMaxBodySize
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", href, err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("response for %s exceeds %d bytes", href, limit)
	}

	return &Response{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}
