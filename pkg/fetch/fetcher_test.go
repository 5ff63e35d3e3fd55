package fetch

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/architech/spanav/internal/errors"
	"github.com/architech/spanav/pkg/page"
	"github.com/architech/spanav/pkg/pagecache"
	"github.com/architech/spanav/pkg/router"
)

func navFor(path string, handler router.Handler) *router.Context {
	return &router.Context{
		Path:   path,
		Route:  &router.Route{Pattern: path, Handler: handler},
		Params: map[string]string{},
	}
}

func htmlTransport(calls *atomic.Int32, body string) Transport {
	return TransportFunc(func(ctx context.Context, href string, header http.Header) (*Response, error) {
		calls.Add(1)
		return &Response{Status: 200, ContentType: "text/html; charset=utf-8", Body: []byte(body)}, nil
	})
}

func mustFetcher(t *testing.T, opts Options) *Fetcher {
	t.Helper()
	f, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return f
}

func TestFetchUsesHandler(t *testing.T) {
	var calls atomic.Int32
	f := mustFetcher(t, Options{
		Transport: htmlTransport(&calls, "<main>net</main>"),
		Cache:     pagecache.New(pagecache.Options{}),
	})

	handler := func(ctx context.Context, nav *router.Context) (*page.Payload, error) {
		return page.New("<h1>Svc "+nav.Params["id"]+"</h1>", "Svc", nil, nil, nil), nil
	}
	nav := navFor("/services/42", handler)
	nav.Params["id"] = "42"

	p, err := f.Fetch(context.Background(), nav)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if p.HTML() != "<h1>Svc 42</h1>" {
		t.Errorf("HTML() = %q", p.HTML())
	}
	if calls.Load() != 0 {
		t.Errorf("transport called %d times, want 0", calls.Load())
	}
	if f.Cached("/services/42") {
		t.Error("handler payloads should not be cached")
	}
}

func TestFetchHandlerErrors(t *testing.T) {
	f := mustFetcher(t, Options{})

	empty := func(ctx context.Context, nav *router.Context) (*page.Payload, error) {
		return page.New("  ", "", nil, nil, nil), nil
	}
	if _, err := f.Fetch(context.Background(), navFor("/a", empty)); errors.Code(err) != "E106" {
		t.Errorf("empty html error code = %q, want E106", errors.Code(err))
	}

	boom := stderrors.New("boom")
	failing := func(ctx context.Context, nav *router.Context) (*page.Payload, error) {
		return nil, boom
	}
	_, err := f.Fetch(context.Background(), navFor("/b", failing))
	if errors.Code(err) != "E101" || !stderrors.Is(err, boom) {
		t.Errorf("handler error = %v, want E101 wrapping boom", err)
	}
}

func TestFetchCachesNetworkResult(t *testing.T) {
	var calls atomic.Int32
	f := mustFetcher(t, Options{
		Transport: htmlTransport(&calls, "<html><body><main>X</main></body></html>"),
		Cache:     pagecache.New(pagecache.Options{}),
	})

	for i := 0; i < 3; i++ {
		p, err := f.Fetch(context.Background(), navFor("/about", nil))
		if err != nil {
			t.Fatal(err)
		}
		if p.HTML() != "X" {
			t.Errorf("HTML() = %q", p.HTML())
		}
	}
	if calls.Load() != 1 {
		t.Errorf("transport called %d times, want 1", calls.Load())
	}

	forced := navFor("/about", nil)
	forced.Force = true
	if _, err := f.Fetch(context.Background(), forced); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Errorf("forced fetch should bypass cache: calls = %d", calls.Load())
	}
}

func TestFetchWithoutCache(t *testing.T) {
	var calls atomic.Int32
	f := mustFetcher(t, Options{Transport: htmlTransport(&calls, "<main>X</main>")})

	f.Fetch(context.Background(), navFor("/a", nil))
	f.Fetch(context.Background(), navFor("/a", nil))
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if f.Cached("/a") {
		t.Error("Cached() should be false without a cache")
	}
}

func TestFetchDeduplicatesConcurrentRequests(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	f := mustFetcher(t, Options{
		Transport: TransportFunc(func(ctx context.Context, href string, header http.Header) (*Response, error) {
			calls.Add(1)
			<-release
			return &Response{Status: 200, ContentType: "text/html", Body: []byte("<main>X</main>")}, nil
		}),
		Cache: pagecache.New(pagecache.Options{}),
	})

	var wg sync.WaitGroup
	results := make([]*page.Payload, 2)
	errs := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = f.Fetch(context.Background(), navFor("/slow", nil))
	}()

	waitFor(t, func() bool { return f.InFlight("/slow") })

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[1] = f.Warm(context.Background(), "/slow")
	}()

	// Give the second caller time to join before releasing.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if errs[0] != nil || errs[1] != nil {
		t.Fatalf("errors = %v", errs)
	}
	if calls.Load() != 1 {
		t.Errorf("transport called %d times, want 1", calls.Load())
	}
	if results[0].HTML() != "X" {
		t.Errorf("HTML() = %q", results[0].HTML())
	}
	if f.InFlight("/slow") {
		t.Error("InFlight() should be false after completion")
	}
}

func TestFetchFailureDoesNotPoisonCache(t *testing.T) {
	var calls atomic.Int32
	status := 500
	f := mustFetcher(t, Options{
		Transport: TransportFunc(func(ctx context.Context, href string, header http.Header) (*Response, error) {
			calls.Add(1)
			return &Response{Status: status, ContentType: "text/html", Body: []byte("<main>ok</main>")}, nil
		}),
		Cache: pagecache.New(pagecache.Options{}),
	})

	_, err := f.Fetch(context.Background(), navFor("/flaky", nil))
	if errors.Code(err) != "E101" {
		t.Fatalf("error code = %q, want E101", errors.Code(err))
	}
	if f.Cached("/flaky") || f.InFlight("/flaky") {
		t.Error("failed fetch left state behind")
	}

	status = 200
	if _, err := f.Fetch(context.Background(), navFor("/flaky", nil)); err != nil {
		t.Fatalf("retry error = %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestFetchJSONPayload(t *testing.T) {
	f := mustFetcher(t, Options{
		Transport: TransportFunc(func(ctx context.Context, href string, header http.Header) (*Response, error) {
			return &Response{
				Status:      200,
				ContentType: "application/json",
				Body:        []byte(`{"content":"<p>J</p>","title":"JSON","scripts":["/a.js"]}`),
			}, nil
		}),
	})

	p, err := f.Fetch(context.Background(), navFor("/json", nil))
	if err != nil {
		t.Fatal(err)
	}
	if p.HTML() != "<p>J</p>" || p.Title() != "JSON" || len(p.Scripts()) != 1 {
		t.Errorf("payload = %q %q %v", p.HTML(), p.Title(), p.Scripts())
	}
}

func TestFetchEmptyContainer(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{"empty main", "text/html", "<html><head><title>T</title></head><body><main></main></body></html>"},
		{"blank main", "text/html", "<html><head><title>T</title></head><body><main>   </main></body></html>"},
		{"empty json html", "application/json", `{"html":"","title":"T"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := mustFetcher(t, Options{
				Transport: TransportFunc(func(ctx context.Context, href string, header http.Header) (*Response, error) {
					return &Response{Status: 200, ContentType: tt.contentType, Body: []byte(tt.body)}, nil
				}),
				Cache: pagecache.New(pagecache.Options{}),
			})

			p, err := f.Fetch(context.Background(), navFor("/empty", nil))
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if strings.TrimSpace(p.HTML()) != "" || p.Title() != "T" {
				t.Errorf("payload = %q %q", p.HTML(), p.Title())
			}
			if !f.Cached("/empty") {
				t.Error("empty page should be cached")
			}
		})
	}
}

func TestFetchJSONWithoutHTMLField(t *testing.T) {
	f := mustFetcher(t, Options{
		Transport: TransportFunc(func(ctx context.Context, href string, header http.Header) (*Response, error) {
			return &Response{Status: 200, ContentType: "application/json", Body: []byte(`{"title":"T"}`)}, nil
		}),
	})

	_, err := f.Fetch(context.Background(), navFor("/nohtml", nil))
	if errors.Code(err) != "E106" || !stderrors.Is(err, page.ErrMissingHTML) {
		t.Errorf("Fetch() error = %v, want E106 wrapping ErrMissingHTML", err)
	}
}

func TestFetchSendsPartialHeadersThroughHref(t *testing.T) {
	var gotPath string
	var partial bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		partial = IsPartialRequest(r) && r.Header.Get("Accept") == AcceptPartial
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><head><title>T</title></head><body><main>X</main></body></html>"))
	}))
	defer srv.Close()

	f := mustFetcher(t, Options{
		Transport: NewHTTPTransport(srv.URL, time.Second),
		Href:      func(p string) string { return "/site" + p },
	})

	p, err := f.Fetch(context.Background(), navFor("/about", nil))
	if err != nil {
		t.Fatal(err)
	}
	if gotPath != "/site/about" {
		t.Errorf("request path = %q, want /site/about", gotPath)
	}
	if !partial {
		t.Error("partial-content headers missing")
	}
	if p.Title() != "T" {
		t.Errorf("Title() = %q", p.Title())
	}
}

func TestFetchEvents(t *testing.T) {
	var calls atomic.Int32
	var mu sync.Mutex
	var events []Event
	f := mustFetcher(t, Options{
		Transport: htmlTransport(&calls, "<main>X</main>"),
		Cache:     pagecache.New(pagecache.Options{}),
		OnFetch: func(e Event) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		},
	})

	f.Fetch(context.Background(), navFor("/a", nil))
	f.Fetch(context.Background(), navFor("/a", nil))

	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Source != SourceNetwork || events[1].Source != SourceCache {
		t.Errorf("sources = %s, %s", events[0].Source, events[1].Source)
	}
}

func TestFetchWithoutTransport(t *testing.T) {
	f := mustFetcher(t, Options{})
	if _, err := f.Fetch(context.Background(), navFor("/a", nil)); errors.Code(err) != "E101" {
		t.Errorf("error code = %q, want E101", errors.Code(err))
	}
}

func TestInvalidateAndClear(t *testing.T) {
	var calls atomic.Int32
	f := mustFetcher(t, Options{
		Transport: htmlTransport(&calls, "<main>X</main>"),
		Cache:     pagecache.New(pagecache.Options{}),
	})
	f.Warm(context.Background(), "/a")
	f.Warm(context.Background(), "/b")

	f.Invalidate("/a")
	if f.Cached("/a") || !f.Cached("/b") {
		t.Error("Invalidate removed the wrong entry")
	}
	f.Clear()
	if f.Cached("/b") {
		t.Error("Clear left entries")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}
