package spa

import (
	"context"
	stderrors "errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/architech/spanav/pkg/dom"
	"github.com/architech/spanav/pkg/fetch"
	"github.com/architech/spanav/pkg/history"
	"github.com/architech/spanav/pkg/page"
	"github.com/architech/spanav/pkg/router"
)

const testDoc = `<!DOCTYPE html><html><head><title>Home</title>
<script src="/app.js"></script></head>
<body><nav>
<a href="/about">About</a>
<a href="/services/7">Service</a>
<a href="https://other.example/x">Other</a>
<a href="/legacy" data-external>Legacy</a>
<a href="mailto:hi@site.example">Mail</a>
</nav><main><p>home</p></main></body></html>`

type harness struct {
	r     *Router
	tree  *dom.Tree
	mem   *history.Memory
	calls atomic.Int32
}

// pages maps request hrefs to full HTML documents.
func newHarness(t *testing.T, pages map[string]string, mutate ...func(*Config)) *harness {
	t.Helper()
	h := &harness{}

	tree, err := dom.NewTree(testDoc, "main", "/")
	if err != nil {
		t.Fatalf("NewTree() error = %v", err)
	}
	h.tree = tree
	h.mem = history.NewMemory("/")

	cfg := DefaultConfig()
	cfg.Origin = "https://site.example"
	cfg.TransitionDuration = 0
	cfg.Transport = fetch.TransportFunc(func(ctx context.Context, href string, header http.Header) (*fetch.Response, error) {
		h.calls.Add(1)
		body, ok := pages[href]
		if !ok {
			return &fetch.Response{Status: 404, ContentType: "text/html", Body: []byte("<main>missing</main>")}, nil
		}
		return &fetch.Response{Status: 200, ContentType: "text/html; charset=utf-8", Body: []byte(body)}, nil
	})
	for _, m := range mutate {
		m(cfg)
	}

	r, err := New(tree, h.mem, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(r.Close)
	h.r = r
	return h
}

func doc(title, body string) string {
	return "<html><head><title>" + title + "</title></head><body><main>" + body + "</main></body></html>"
}

func serviceHandler(ctx context.Context, nav *router.Context) (*page.Payload, error) {
	return page.New("<h1>Svc "+nav.Param("id")+"</h1>", "Service "+nav.Param("id"),
		map[string]string{"description": "service page"}, nil, nil), nil
}

func TestNavigateWithHandler(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.r.Route("/services/:id", serviceHandler); err != nil {
		t.Fatalf("Route() error = %v", err)
	}

	res, err := h.r.Push(context.Background(), "/services/42", nil)
	if err != nil || res != ResultNavigated {
		t.Fatalf("Push() = %v, %v; want navigated", res, err)
	}

	if got := h.tree.ContainerHTML(); got != "<h1>Svc 42</h1>" {
		t.Errorf("container = %q", got)
	}
	if got := h.tree.Title(); got != "Service 42" {
		t.Errorf("title = %q", got)
	}
	if got, _ := h.tree.Meta("description"); got != "service page" {
		t.Errorf("meta description = %q", got)
	}

	cur := h.r.CurrentRoute()
	if cur.Path != "/services/42" || cur.Param("id") != "42" || cur.Pattern() != "/services/:id" {
		t.Errorf("current = %+v", cur)
	}
	if prev := h.r.PreviousRoute(); prev == nil || prev.Path != "/" {
		t.Errorf("previous = %+v, want /", prev)
	}

	e, _ := h.mem.Current()
	if e.URL != "/services/42" || h.mem.Len() != 2 {
		t.Errorf("history current = %q len = %d", e.URL, h.mem.Len())
	}
	if !h.r.CanGoBack() {
		t.Error("CanGoBack() = false")
	}
	if h.calls.Load() != 0 {
		t.Errorf("transport calls = %d, want 0", h.calls.Load())
	}
	if h.tree.Loading() {
		t.Error("loading class left on body")
	}
	if got := h.tree.ContainerStyle("opacity"); got != "1" {
		t.Errorf("opacity = %q, want 1", got)
	}
	if got := h.tree.ContainerStyle("transition"); got != "" {
		t.Errorf("transition = %q, want cleared", got)
	}
}

func TestNavigateDispatchesEvents(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.r.Route("/services/:id", serviceHandler)

	if _, err := h.r.Push(context.Background(), "/services/1", nil); err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, ev := range h.tree.Events() {
		names = append(names, string(ev.Target)+":"+ev.Name)
	}
	want := []string{"container:contentLoaded", "window:routeChanged"}
	if len(names) != len(want) {
		t.Fatalf("events = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, names[i], want[i])
		}
	}

	change, ok := h.tree.Events()[1].Detail.(RouteChange)
	if !ok {
		t.Fatalf("routeChanged detail = %T", h.tree.Events()[1].Detail)
	}
	if change.Route.Path != "/services/1" || change.PreviousRoute.Path != "/" || change.Container != "main" {
		t.Errorf("change = %+v", change)
	}
}

func TestNavigateOverNetwork(t *testing.T) {
	h := newHarness(t, map[string]string{"/about": doc("T", "X")})

	res, err := h.r.Push(context.Background(), "/about", nil)
	if err != nil || res != ResultNavigated {
		t.Fatalf("Push() = %v, %v", res, err)
	}
	if h.tree.ContainerHTML() != "X" || h.tree.Title() != "T" {
		t.Errorf("container = %q title = %q", h.tree.ContainerHTML(), h.tree.Title())
	}
	if h.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", h.calls.Load())
	}
	if !h.r.Cache().Has("/about") {
		t.Error("page not cached")
	}
}

func TestNavigateNoRouteFallsBackOnce(t *testing.T) {
	h := newHarness(t, nil)

	res, err := h.r.Push(context.Background(), "/nope", nil)
	if res != ResultFallback {
		t.Fatalf("result = %v, want fallback", res)
	}
	if !stderrors.Is(err, ErrNoRoute) {
		t.Errorf("err = %v, want ErrNoRoute", err)
	}
	if got := h.tree.Assigned(); len(got) != 1 || got[0] != "/nope" {
		t.Errorf("assigned = %v, want [/nope]", got)
	}
	if h.calls.Load() != 0 {
		t.Errorf("transport calls = %d, want 0", h.calls.Load())
	}
	if h.mem.Pushes() != 0 {
		t.Errorf("pushes = %d, want 0", h.mem.Pushes())
	}
	if h.r.Navigating() {
		t.Error("navigating flag not cleared")
	}
}

func TestNavigateFetchFailureFallsBack(t *testing.T) {
	h := newHarness(t, nil, func(c *Config) { c.Base = "/site" })
	_ = h.r.Route("/gone", nil)

	res, err := h.r.Push(context.Background(), "/gone", nil)
	if res != ResultFallback || !stderrors.Is(err, ErrFetch) {
		t.Fatalf("Push() = %v, %v; want fallback with ErrFetch", res, err)
	}
	if got := h.tree.Assigned(); len(got) != 1 || got[0] != "/site/gone" {
		t.Errorf("assigned = %v", got)
	}
	if h.r.Cache().Has("/gone") {
		t.Error("failed fetch was cached")
	}
}

func TestNavigateToEmptyPage(t *testing.T) {
	h := newHarness(t, map[string]string{
		"/about": doc("Blank", ""),
	})

	res, err := h.r.Push(context.Background(), "/about", nil)
	if err != nil || res != ResultNavigated {
		t.Fatalf("Push() = %v, %v", res, err)
	}
	if h.tree.ContainerHTML() != "" || h.tree.Title() != "Blank" {
		t.Errorf("container = %q, title = %q", h.tree.ContainerHTML(), h.tree.Title())
	}
	if assigned := h.tree.Assigned(); len(assigned) != 0 {
		t.Errorf("Assigned() = %v, want none", assigned)
	}
}

func TestNavigateUnchangedAndForce(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.r.Route("/services/:id", serviceHandler)
	ctx := context.Background()

	if _, err := h.r.Push(ctx, "/services/1", nil); err != nil {
		t.Fatal(err)
	}
	res, err := h.r.Push(ctx, "/services/1/", nil)
	if res != ResultUnchanged || err != nil {
		t.Errorf("same path = %v, %v; want unchanged", res, err)
	}
	res, err = h.r.Navigate(ctx, "/services/1", WithForce(), WithReplace())
	if res != ResultNavigated || err != nil {
		t.Errorf("forced = %v, %v; want navigated", res, err)
	}
	if h.mem.Pushes() != 1 {
		t.Errorf("pushes = %d, want 1", h.mem.Pushes())
	}
}

func TestGuardsShortCircuit(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.r.Route("/services/:id", serviceHandler)

	var second atomic.Bool
	h.r.Use(
		router.GuardFunc(func(ctx context.Context, path string, state any, prev *router.Context) (bool, error) {
			return path != "/services/9", nil
		}),
		router.GuardFunc(func(ctx context.Context, path string, state any, prev *router.Context) (bool, error) {
			second.Store(true)
			return true, nil
		}),
	)

	res, err := h.r.Push(context.Background(), "/services/9", nil)
	if res != ResultRejected || err != nil {
		t.Fatalf("Push() = %v, %v; want rejected", res, err)
	}
	if second.Load() {
		t.Error("second guard ran after a rejection")
	}
	if h.tree.ContainerHTML() != "<p>home</p>" {
		t.Errorf("container changed: %q", h.tree.ContainerHTML())
	}
	if h.mem.Len() != 1 {
		t.Errorf("history len = %d, want 1", h.mem.Len())
	}

	res, _ = h.r.Push(context.Background(), "/services/1", nil)
	if res != ResultNavigated || !second.Load() {
		t.Errorf("allowed navigation = %v, second guard ran = %v", res, second.Load())
	}
}

func TestGuardErrorRejects(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.r.Route("/services/:id", serviceHandler)
	boom := stderrors.New("boom")
	h.r.Use(router.GuardFunc(func(context.Context, string, any, *router.Context) (bool, error) {
		return false, boom
	}))

	res, err := h.r.Push(context.Background(), "/services/1", nil)
	if res != ResultRejected {
		t.Fatalf("result = %v", res)
	}
	if !stderrors.Is(err, ErrRejected) || !stderrors.Is(err, boom) {
		t.Errorf("err = %v, want ErrRejected wrapping boom", err)
	}
	if len(h.tree.Assigned()) != 0 {
		t.Error("guard error triggered a full page load")
	}
}

func TestSingleFlightNavigation(t *testing.T) {
	h := newHarness(t, nil)
	started := make(chan struct{})
	release := make(chan struct{})
	_ = h.r.Route("/slow", func(ctx context.Context, nav *router.Context) (*page.Payload, error) {
		close(started)
		<-release
		return page.New("slow", "", nil, nil, nil), nil
	})
	_ = h.r.Route("/services/:id", serviceHandler)

	var wg sync.WaitGroup
	wg.Add(1)
	var first Result
	go func() {
		defer wg.Done()
		first, _ = h.r.Push(context.Background(), "/slow", nil)
	}()
	<-started

	if !h.r.Navigating() {
		t.Error("Navigating() = false during a navigation")
	}
	res, err := h.r.Push(context.Background(), "/services/1", nil)
	if res != ResultBusy || err != nil {
		t.Errorf("concurrent Push() = %v, %v; want busy", res, err)
	}

	close(release)
	wg.Wait()
	if first != ResultNavigated {
		t.Errorf("first = %v", first)
	}
	if h.tree.ContainerHTML() != "slow" {
		t.Errorf("container = %q", h.tree.ContainerHTML())
	}
	if h.r.Navigating() {
		t.Error("navigating flag not cleared")
	}
}

func TestPopReplaysWithoutPush(t *testing.T) {
	h := newHarness(t, map[string]string{
		"/about": doc("About", "about"),
	})
	_ = h.r.Route("/services/:id", serviceHandler)
	ctx := context.Background()

	if _, err := h.r.Push(ctx, "/about", nil); err != nil {
		t.Fatal(err)
	}
	_ = h.tree.ScrollTo(ctx, 120)
	if _, err := h.r.Push(ctx, "/services/3", "caller-state"); err != nil {
		t.Fatal(err)
	}
	if y, _ := h.tree.ScrollY(ctx); y != 0 {
		t.Errorf("scroll after forward navigation = %v, want 0", y)
	}
	pushes := h.mem.Pushes()

	if err := h.r.Back(); err != nil {
		t.Fatalf("Back() error = %v", err)
	}

	if h.tree.ContainerHTML() != "about" {
		t.Errorf("container = %q, want about", h.tree.ContainerHTML())
	}
	if h.mem.Pushes() != pushes {
		t.Errorf("pushes = %d, want %d", h.mem.Pushes(), pushes)
	}
	cur := h.r.CurrentRoute()
	if !cur.HistoryReplay || cur.Path != "/about" {
		t.Errorf("current = %+v", cur)
	}
	if y, _ := h.tree.ScrollY(ctx); y != 120 {
		t.Errorf("restored scroll = %v, want 120", y)
	}
	if h.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (cached replay)", h.calls.Load())
	}

	if err := h.r.Forward(); err != nil {
		t.Fatal(err)
	}
	cur = h.r.CurrentRoute()
	if cur.Path != "/services/3" || cur.State != "caller-state" {
		t.Errorf("forward current = %+v", cur)
	}
}

func TestBackToLandingPage(t *testing.T) {
	h := newHarness(t, map[string]string{
		"/":      doc("Home", "home"),
		"/about": doc("About", "about"),
	})
	ctx := context.Background()

	if res, err := h.r.Push(ctx, "/about", nil); err != nil || res != ResultNavigated {
		t.Fatalf("Push() = %v, %v", res, err)
	}
	if err := h.r.Back(); err != nil {
		t.Fatalf("Back() error = %v", err)
	}
	h.r.Wait()

	if assigned := h.tree.Assigned(); len(assigned) != 0 {
		t.Errorf("Assigned() = %v, want no full page load", assigned)
	}
	if h.tree.ContainerHTML() != "home" {
		t.Errorf("container = %q, want home", h.tree.ContainerHTML())
	}
	cur := h.r.CurrentRoute()
	if cur == nil || cur.Path != "/" || !cur.HistoryReplay {
		t.Errorf("current = %+v, want replayed /", cur)
	}
	if prev := h.r.PreviousRoute(); prev == nil || prev.Path != "/about" {
		t.Errorf("previous = %+v, want /about", prev)
	}
}

func TestPopDuringNavigationIsReplayedAfter(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.r.Route("/services/:id", serviceHandler)
	ctx := context.Background()
	if _, err := h.r.Push(ctx, "/services/1", nil); err != nil {
		t.Fatal(err)
	}

	started := make(chan struct{})
	release := make(chan struct{})
	_ = h.r.Route("/slow", func(ctx context.Context, nav *router.Context) (*page.Payload, error) {
		close(started)
		<-release
		return page.New("slow", "", nil, nil, nil), nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.r.Push(ctx, "/slow", nil)
	}()
	<-started

	// The address bar moves back to /services/1 while /slow renders.
	if err := h.mem.Back(); err != nil {
		t.Fatal(err)
	}
	close(release)
	<-done
	h.r.Wait()

	cur := h.r.CurrentRoute()
	if cur.Path != "/services/1" || !cur.HistoryReplay {
		t.Errorf("current = %+v, want replayed /services/1", cur)
	}
	if h.tree.ContainerHTML() != "<h1>Svc 1</h1>" {
		t.Errorf("container = %q", h.tree.ContainerHTML())
	}
}

func TestRefreshBypassesCache(t *testing.T) {
	h := newHarness(t, map[string]string{
		"/about": doc("About", "about"),
	})
	ctx := context.Background()

	if _, err := h.r.Push(ctx, "/about", nil); err != nil {
		t.Fatal(err)
	}
	replaces := h.mem.Replaces()

	res, err := h.r.Refresh(ctx)
	if res != ResultNavigated || err != nil {
		t.Fatalf("Refresh() = %v, %v", res, err)
	}
	if h.calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", h.calls.Load())
	}
	if h.mem.Replaces() != replaces+1 || h.mem.Len() != 2 {
		t.Errorf("replaces = %d len = %d", h.mem.Replaces(), h.mem.Len())
	}
}

func TestAssetsInjectedOnce(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.r.Route("/assets", func(ctx context.Context, nav *router.Context) (*page.Payload, error) {
		return page.New("a", "", nil,
			[]page.Script{{URL: "/app.js"}, {URL: "/page.js", Defer: true}},
			[]page.Style{{URL: "/page.css"}}), nil
	})
	_ = h.r.Route("/again", func(ctx context.Context, nav *router.Context) (*page.Payload, error) {
		return page.New("b", "", nil, []page.Script{{URL: "/page.js"}}, []page.Style{{URL: "/page.css"}}), nil
	})
	ctx := context.Background()

	for _, p := range []string{"/assets", "/again"} {
		if res, err := h.r.Push(ctx, p, nil); res != ResultNavigated {
			t.Fatalf("Push(%s) = %v, %v", p, res, err)
		}
	}

	scripts := h.tree.Assets(dom.AssetScript)
	if len(scripts) != 2 || scripts[0] != "/app.js" || scripts[1] != "/page.js" {
		t.Errorf("scripts = %v", scripts)
	}
	if styles := h.tree.Assets(dom.AssetStyle); len(styles) != 1 {
		t.Errorf("styles = %v", styles)
	}
}

func TestStartRegistersLinks(t *testing.T) {
	h := newHarness(t, nil)

	var patterns []string
	for _, r := range h.r.Routes() {
		patterns = append(patterns, r.Pattern)
	}
	want := []string{"/", "/about", "/services/7"}
	if len(patterns) != len(want) {
		t.Fatalf("routes = %v, want %v", patterns, want)
	}
	for i := range want {
		if patterns[i] != want[i] {
			t.Errorf("route %d = %s, want %s", i, patterns[i], want[i])
		}
	}
	if cur := h.r.CurrentRoute(); cur == nil || cur.Path != "/" {
		t.Errorf("current = %+v", cur)
	}
	if len(h.tree.Events()) != 0 {
		t.Error("Start rendered the page")
	}
}

func TestStartReplacesBaseContext(t *testing.T) {
	tree, err := dom.NewTree(testDoc, "main", "/")
	if err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	cfg.Origin = "https://site.example"
	r, err := New(tree, history.NewMemory("/"), cfg)
	if err != nil {
		t.Fatal(err)
	}
	before := r.context()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(r.Close)

	if before.Err() == nil {
		t.Error("context created by New was not cancelled by Start")
	}
	if r.context().Err() != nil {
		t.Error("context derived from Start is already done")
	}
	cancel()
	if r.context().Err() == nil {
		t.Error("context derived from Start ignores the caller's cancellation")
	}
}

func TestSubscribers(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.r.Route("/services/:id", serviceHandler)

	got := make(chan RouteChange, 1)
	h.r.Subscribe(func(RouteChange) { panic("subscriber bug") })
	unsub := h.r.Subscribe(func(c RouteChange) { got <- c })

	if _, err := h.r.Push(context.Background(), "/services/5", nil); err != nil {
		t.Fatal(err)
	}
	select {
	case c := <-got:
		if c.Route.Path != "/services/5" {
			t.Errorf("change route = %s", c.Route.Path)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber not called")
	}
	h.r.Wait()

	unsub()
	if _, err := h.r.Push(context.Background(), "/services/6", nil); err != nil {
		t.Fatal(err)
	}
	h.r.Wait()
	select {
	case <-got:
		t.Error("unsubscribed func called")
	default:
	}
}

func TestSubscribersGetOwnCopy(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.r.Route("/services/:id", serviceHandler)

	seen := make(chan string, 2)
	for i := 0; i < 2; i++ {
		h.r.Subscribe(func(c RouteChange) {
			seen <- c.Route.Params["id"]
			c.Route.Params["id"] = "mutated"
			c.Route.Query["q"] = "mutated"
		})
	}

	if _, err := h.r.Push(context.Background(), "/services/5?q=x", nil); err != nil {
		t.Fatal(err)
	}
	h.r.Wait()
	close(seen)

	for id := range seen {
		if id != "5" {
			t.Errorf("subscriber saw id %q, want 5", id)
		}
	}
	cur := h.r.CurrentRoute()
	if cur.Param("id") != "5" || cur.Query["q"] != "x" {
		t.Errorf("current route mutated: params=%v query=%v", cur.Params, cur.Query)
	}
}

func TestRouteChangeJSON(t *testing.T) {
	change := RouteChange{
		Route: &router.Context{
			Path:   "/services/1",
			Route:  &router.Route{Pattern: "/services/:id"},
			Params: map[string]string{"id": "1"},
			Query:  map[string]string{},
		},
		Container: "main",
	}
	b, err := change.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	want := `{"route":{"path":"/services/1","pattern":"/services/:id","params":{"id":"1"},"query":{},"isPopState":false},"previousRoute":null,"container":"main"}`
	if string(b) != want {
		t.Errorf("json = %s\nwant %s", b, want)
	}
}

func TestResultString(t *testing.T) {
	if ResultFallback.String() != "fallback" || Result(99).String() != "unknown" {
		t.Error("unexpected result names")
	}
}

func TestNewInvalidSelector(t *testing.T) {
	tree, _ := dom.NewTree(testDoc, "", "/")
	cfg := DefaultConfig()
	cfg.ContainerSelector = "main[["
	if _, err := New(tree, history.NewMemory("/"), cfg); err == nil {
		t.Error("New() accepted an invalid selector")
	}
}
