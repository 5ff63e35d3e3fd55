package bridge

import (
	"context"
	"crypto/rand"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/architech/spanav/internal/errors"
	"github.com/architech/spanav/pkg/dom"
	"github.com/architech/spanav/pkg/history"
	"github.com/architech/spanav/pkg/page"
)

// ClientScript is the browser side of the bridge.
//
//go:embed client.js
var ClientScript []byte

// Options configures a Session.
type Options struct {
	// Timeout bounds each command round trip.
	// Default: 5 seconds
	Timeout time.Duration

	// PingInterval is how often the server pings the browser. The
	// connection is dropped after two missed pongs.
	// Default: 30 seconds
	PingInterval time.Duration

	// OnEvent receives browser events in arrival order on a single
	// goroutine. It may issue commands on the session.
	OnEvent func(*Session, Event)

	// OnError is called with a short error kind ("read", "write",
	// "protocol", "overflow") for metrics.
	OnError func(kind string)

	// Logger is the structured logger.
	// Default: slog.Default()
	Logger *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.OnError == nil {
		o.OnError = func(string) {}
	}
}

const eventBuffer = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // The preview server is local
	},
}

// Session is one connected browser page. It implements dom.Page and
// history.Stack. It is safe for concurrent use.
type Session struct {
	id     string
	conn   *websocket.Conn
	opts   Options
	logger *slog.Logger

	writeMu sync.Mutex
	nextID  atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan reply

	events chan Event
	pops   history.Listeners

	done      chan struct{}
	closeOnce sync.Once
}

var (
	_ dom.Page      = (*Session)(nil)
	_ history.Stack = (*Session)(nil)
)

// Accept upgrades an HTTP request to a bridge session. Call Run to
// start serving it.
func Accept(w http.ResponseWriter, r *http.Request, opts Options) (*Session, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewSession(conn, opts), nil
}

// NewSession wraps an established connection.
func NewSession(conn *websocket.Conn, opts Options) *Session {
	opts.applyDefaults()
	id := newID()
	return &Session{
		id:      id,
		conn:    conn,
		opts:    opts,
		logger:  opts.Logger.With("session", id),
		pending: make(map[uint64]chan reply),
		events:  make(chan Event, eventBuffer),
		done:    make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} { return s.done }

// Run serves the connection until it closes or ctx is done.
func (s *Session) Run(ctx context.Context) error {
	defer s.Close()

	go s.deliverEvents()
	go s.heartbeat()
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	readTimeout := 2*s.opts.PingInterval + s.opts.Timeout
	s.conn.SetReadDeadline(time.Now().Add(readTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			s.opts.OnError("read")
			return errors.New("E130").Wrap(err)
		}
		s.conn.SetReadDeadline(time.Now().Add(readTimeout))

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			s.opts.OnError("protocol")
			s.logger.Warn("malformed bridge message", "error", err)
			continue
		}
		s.route(msg)
	}
}

func (s *Session) route(msg inbound) {
	if msg.Event.Name == "" {
		s.mu.Lock()
		ch, ok := s.pending[msg.ID]
		delete(s.pending, msg.ID)
		s.mu.Unlock()
		if !ok {
			s.logger.Debug("reply for unknown command", "id", msg.ID)
			return
		}
		ch <- reply{ok: msg.OK, value: msg.Value, err: msg.Error}
		return
	}

	select {
	case s.events <- msg.Event:
	default:
		s.opts.OnError("overflow")
		s.logger.Warn("dropping browser event", "event", msg.Event.Name)
	}
}

// deliverEvents runs event handlers off the read loop so they can issue
// commands and wait for replies.
func (s *Session) deliverEvents() {
	for {
		select {
		case <-s.done:
			return
		case e := <-s.events:
			if e.Name == EventPopState {
				s.pops.Notify(history.Entry{URL: e.URL, State: e.State})
			}
			if s.opts.OnEvent != nil {
				s.opts.OnEvent(s, e)
			}
		}
	}
}

func (s *Session) heartbeat() {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.opts.Timeout))
			s.writeMu.Unlock()
			if err != nil {
				s.opts.OnError("write")
				s.Close()
				return
			}
		}
	}
}

// Close ends the session. Pending commands fail with E130.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

// Call sends a command and waits for the browser's reply. out, if not
// nil, receives the reply value.
func (s *Session) Call(ctx context.Context, op string, args, out any) error {
	select {
	case <-s.done:
		return errors.New("E130").WithDetail("command " + op)
	default:
	}

	id := s.nextID.Add(1)
	ch := make(chan reply, 1)
	s.mu.Lock()
	s.pending[id] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	data, err := json.Marshal(Command{ID: id, Op: op, Args: args})
	if err != nil {
		return errors.New("E132").WithDetail("encoding " + op).Wrap(err)
	}
	s.writeMu.Lock()
	s.conn.SetWriteDeadline(time.Now().Add(s.opts.Timeout))
	err = s.conn.WriteMessage(websocket.TextMessage, data)
	s.writeMu.Unlock()
	if err != nil {
		s.opts.OnError("write")
		return errors.New("E130").Wrap(err)
	}

	timer := time.NewTimer(s.opts.Timeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		if !r.ok {
			return errors.New("E132").WithDetail(op + ": " + r.err)
		}
		if out != nil && len(r.value) > 0 {
			if err := json.Unmarshal(r.value, out); err != nil {
				return errors.New("E132").WithDetail("decoding " + op).Wrap(err)
			}
		}
		return nil
	case <-timer.C:
		return errors.New("E131").WithDetail("command " + op)
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return errors.New("E130").WithDetail("command " + op)
	}
}

// SetContainerHTML implements dom.Document.
func (s *Session) SetContainerHTML(ctx context.Context, html string) error {
	return s.Call(ctx, OpSetHTML, map[string]string{"html": html}, nil)
}

// SetTitle implements dom.Document.
func (s *Session) SetTitle(ctx context.Context, title string) error {
	return s.Call(ctx, OpSetTitle, map[string]string{"title": title}, nil)
}

// SetMeta implements dom.Document.
func (s *Session) SetMeta(ctx context.Context, name, content string) error {
	return s.Call(ctx, OpSetMeta, map[string]string{"name": name, "content": content}, nil)
}

// HasAsset implements dom.Document.
func (s *Session) HasAsset(ctx context.Context, kind dom.AssetKind, url string) (bool, error) {
	var ok bool
	err := s.Call(ctx, OpHasAsset, map[string]string{"kind": string(kind), "url": url}, &ok)
	return ok, err
}

// InjectScript implements dom.Document.
func (s *Session) InjectScript(ctx context.Context, script page.Script) error {
	return s.Call(ctx, OpInjectScript, script, nil)
}

// InjectStyle implements dom.Document.
func (s *Session) InjectStyle(ctx context.Context, style page.Style) error {
	return s.Call(ctx, OpInjectStyle, style, nil)
}

// SetContainerStyle implements dom.Document.
func (s *Session) SetContainerStyle(ctx context.Context, props map[string]string) error {
	return s.Call(ctx, OpStyle, map[string]any{"props": props}, nil)
}

// ScrollY implements dom.Document.
func (s *Session) ScrollY(ctx context.Context) (float64, error) {
	var y float64
	err := s.Call(ctx, OpScrollY, nil, &y)
	return y, err
}

// ScrollTo implements dom.Document.
func (s *Session) ScrollTo(ctx context.Context, y float64) error {
	return s.Call(ctx, OpScrollTo, map[string]float64{"y": y}, nil)
}

// Dispatch implements dom.Document.
func (s *Session) Dispatch(ctx context.Context, target dom.Target, name string, detail any) error {
	return s.Call(ctx, OpDispatch, map[string]any{"target": target, "name": name, "detail": detail}, nil)
}

// SetLoading implements dom.Document.
func (s *Session) SetLoading(ctx context.Context, on bool) error {
	return s.Call(ctx, OpLoading, map[string]bool{"on": on}, nil)
}

// Links implements dom.Document.
func (s *Session) Links(ctx context.Context) ([]dom.Link, error) {
	var links []dom.Link
	err := s.Call(ctx, OpLinks, nil, &links)
	return links, err
}

// Path implements dom.Location.
func (s *Session) Path(ctx context.Context) (string, error) {
	var path string
	err := s.Call(ctx, OpLocation, nil, &path)
	return path, err
}

// Assign implements dom.Location.
func (s *Session) Assign(ctx context.Context, url string) error {
	return s.Call(ctx, OpAssign, map[string]string{"url": url}, nil)
}

// Push implements history.Stack.
func (s *Session) Push(url string, state history.State) error {
	return s.history(historyArgs{Action: HistoryPush, URL: url, State: &state}, nil)
}

// Replace implements history.Stack.
func (s *Session) Replace(url string, state history.State) error {
	return s.history(historyArgs{Action: HistoryReplace, URL: url, State: &state}, nil)
}

// Back implements history.Stack. The browser answers with a popstate
// event, which reaches the pop listeners.
func (s *Session) Back() error {
	return s.history(historyArgs{Action: HistoryBack}, nil)
}

// Forward implements history.Stack.
func (s *Session) Forward() error {
	return s.history(historyArgs{Action: HistoryForward}, nil)
}

// Current implements history.Stack.
func (s *Session) Current() (history.Entry, bool) {
	var e history.Entry
	if err := s.history(historyArgs{Action: HistoryCurrent}, &e); err != nil {
		s.logger.Debug("reading history entry failed", "error", err)
		return history.Entry{}, false
	}
	return e, true
}

// Len implements history.Stack.
func (s *Session) Len() int {
	var n int
	if err := s.history(historyArgs{Action: HistoryLen}, &n); err != nil {
		s.logger.Debug("reading history length failed", "error", err)
		return 0
	}
	return n
}

// OnPop implements history.Stack. Listeners run on the session's event
// goroutine.
func (s *Session) OnPop(fn func(history.Entry)) func() {
	return s.pops.Add(fn)
}

func (s *Session) history(args historyArgs, out any) error {
	return s.Call(context.Background(), OpHistory, args, out)
}

func newID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
