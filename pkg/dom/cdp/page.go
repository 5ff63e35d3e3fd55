package cdp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/architech/spanav/internal/errors"
	"github.com/architech/spanav/pkg/dom"
	"github.com/architech/spanav/pkg/history"
	"github.com/architech/spanav/pkg/page"
)

// Options configures a Page.
type Options struct {
	// URL is the DevTools endpoint of a running browser, e.g.
	// "http://127.0.0.1:9222" or a ws:// debugger URL.
	URL string

	// ContainerSelector selects the content container.
	// Default: "main"
	ContainerSelector string

	// Timeout bounds each browser command.
	// Default: 10 seconds
	Timeout time.Duration

	// Logger is the structured logger.
	// Default: slog.Default()
	Logger *slog.Logger
}

// Page is one browser tab. It implements dom.Page and history.Stack.
type Page struct {
	tab       context.Context
	cancelTab context.CancelFunc
	cancelAll context.CancelFunc

	container string
	timeout   time.Duration
	logger    *slog.Logger
	pops      history.Listeners
}

var (
	_ dom.Page      = (*Page)(nil)
	_ history.Stack = (*Page)(nil)
)

// Connect attaches to the browser at opts.URL and opens a new tab.
func Connect(ctx context.Context, opts Options) (*Page, error) {
	if opts.URL == "" {
		return nil, errors.New("E120").WithDetail("missing DevTools URL")
	}
	if opts.ContainerSelector == "" {
		opts.ContainerSelector = "main"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(ctx, opts.URL)
	tab, cancelTab := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(tab); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, errors.New("E130").WithDetail("connecting to " + opts.URL).Wrap(err)
	}

	opts.Logger.Info("browser tab opened", "devtools", opts.URL)
	return &Page{
		tab:       tab,
		cancelTab: cancelTab,
		cancelAll: cancelAlloc,
		container: opts.ContainerSelector,
		timeout:   opts.Timeout,
		logger:    opts.Logger,
	}, nil
}

// Open loads url in the tab and waits for the container.
func (p *Page) Open(ctx context.Context, url string) error {
	runCtx, cancel := p.runContext(ctx)
	defer cancel()
	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady(p.container, chromedp.ByQuery),
	)
	if err != nil {
		return p.wrap("open "+url, err)
	}
	return nil
}

// Close closes the tab and releases the browser connection.
func (p *Page) Close() {
	p.cancelTab()
	p.cancelAll()
}

// runContext derives a bounded context from the tab. Deadlines of ctx
// shorter than the page timeout win.
func (p *Page) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := p.timeout
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d < timeout {
			timeout = d
		}
	}
	return context.WithTimeout(p.tab, timeout)
}

func awaitPromise(params *runtime.EvaluateParams) *runtime.EvaluateParams {
	return params.WithAwaitPromise(true)
}

// eval runs body with the container selector and args.
func (p *Page) eval(ctx context.Context, op, body string, out any, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	script, err := buildScript(body, append([]any{p.container}, args...)...)
	if err != nil {
		return errors.New("E132").WithDetail(op).Wrap(err)
	}
	runCtx, cancel := p.runContext(ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.Evaluate(script, out, awaitPromise)); err != nil {
		return p.wrap(op, err)
	}
	return nil
}

func (p *Page) wrap(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.New("E131").WithDetail(op).Wrap(err)
	}
	return errors.New("E132").WithDetail(op).Wrap(err)
}

// SetContainerHTML implements dom.Document.
func (p *Page) SetContainerHTML(ctx context.Context, html string) error {
	return p.eval(ctx, "setHTML", jsSetHTML, nil, html)
}

// SetTitle implements dom.Document.
func (p *Page) SetTitle(ctx context.Context, title string) error {
	return p.eval(ctx, "setTitle", jsSetTitle, nil, title)
}

// SetMeta implements dom.Document.
func (p *Page) SetMeta(ctx context.Context, name, content string) error {
	return p.eval(ctx, "setMeta", jsSetMeta, nil, name, content)
}

// HasAsset implements dom.Document.
func (p *Page) HasAsset(ctx context.Context, kind dom.AssetKind, url string) (bool, error) {
	var ok bool
	err := p.eval(ctx, "hasAsset", jsHasAsset, &ok, string(kind), url)
	return ok, err
}

// InjectScript implements dom.Document. It waits for the script to load.
func (p *Page) InjectScript(ctx context.Context, s page.Script) error {
	return p.eval(ctx, "injectScript", jsInjectScript, nil, s)
}

// InjectStyle implements dom.Document. It waits for the stylesheet to load.
func (p *Page) InjectStyle(ctx context.Context, s page.Style) error {
	return p.eval(ctx, "injectStyle", jsInjectStyle, nil, s)
}

// SetContainerStyle implements dom.Document.
func (p *Page) SetContainerStyle(ctx context.Context, props map[string]string) error {
	return p.eval(ctx, "style", jsStyle, nil, props)
}

// ScrollY implements dom.Document.
func (p *Page) ScrollY(ctx context.Context) (float64, error) {
	var y float64
	err := p.eval(ctx, "scrollY", jsScrollY, &y)
	return y, err
}

// ScrollTo implements dom.Document.
func (p *Page) ScrollTo(ctx context.Context, y float64) error {
	return p.eval(ctx, "scrollTo", jsScrollTo, nil, y)
}

// Dispatch implements dom.Document.
func (p *Page) Dispatch(ctx context.Context, target dom.Target, name string, detail any) error {
	return p.eval(ctx, "dispatch", jsDispatch, nil, string(target), name, detail)
}

// SetLoading implements dom.Document.
func (p *Page) SetLoading(ctx context.Context, on bool) error {
	return p.eval(ctx, "loading", jsLoading, nil, on)
}

// Links implements dom.Document.
func (p *Page) Links(ctx context.Context) ([]dom.Link, error) {
	var links []dom.Link
	err := p.eval(ctx, "links", jsLinks, &links)
	return links, err
}

// Path implements dom.Location.
func (p *Page) Path(ctx context.Context) (string, error) {
	var path string
	err := p.eval(ctx, "location", jsLocation, &path)
	return path, err
}

// Assign implements dom.Location.
func (p *Page) Assign(ctx context.Context, url string) error {
	return p.eval(ctx, "assign", jsAssign, nil, url)
}

// Push implements history.Stack.
func (p *Page) Push(url string, state history.State) error {
	return p.eval(context.Background(), "history push", jsPush, nil, url, state)
}

// Replace implements history.Stack.
func (p *Page) Replace(url string, state history.State) error {
	return p.eval(context.Background(), "history replace", jsReplace, nil, url, state)
}

// Back implements history.Stack. Pop listeners run before it returns.
func (p *Page) Back() error { return p.move(-1) }

// Forward implements history.Stack. Pop listeners run before it returns.
func (p *Page) Forward() error { return p.move(1) }

func (p *Page) move(delta int) error {
	if delta < 0 && p.Len() <= 1 {
		return history.ErrNoEntry
	}
	var e history.Entry
	if err := p.eval(context.Background(), fmt.Sprintf("history go %d", delta), jsGo, &e, delta); err != nil {
		return err
	}
	p.pops.Notify(e)
	return nil
}

// Current implements history.Stack.
func (p *Page) Current() (history.Entry, bool) {
	var e history.Entry
	if err := p.eval(context.Background(), "history current", jsCurrent, &e); err != nil {
		p.logger.Debug("reading history entry failed", "error", err)
		return history.Entry{}, false
	}
	return e, true
}

// Len implements history.Stack.
func (p *Page) Len() int {
	var n int
	if err := p.eval(context.Background(), "history len", jsLen, &n); err != nil {
		p.logger.Debug("reading history length failed", "error", err)
		return 0
	}
	return n
}

// OnPop implements history.Stack.
func (p *Page) OnPop(fn func(history.Entry)) func() {
	return p.pops.Add(fn)
}
