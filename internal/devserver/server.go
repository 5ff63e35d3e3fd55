package devserver

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/architech/spanav/internal/config"
	"github.com/architech/spanav/internal/watch"
	"github.com/architech/spanav/pkg/dom/bridge"
	"github.com/architech/spanav/pkg/fetch"
	spamw "github.com/architech/spanav/pkg/middleware"
	"github.com/architech/spanav/pkg/spa"
)

// Paths served by the preview server itself.
const (
	WebSocketPath = "/_spanav/ws"
	ClientPath    = "/_spanav/client.js"
	APIPrefix     = "/api/v1"
)

// Options configures the preview server.
type Options struct {
	// Config is the project configuration. Required.
	Config *config.Config

	// Router is the template for each session's router. Origin and
	// Transport are filled per session when empty.
	// Default: spa.DefaultConfig().
	Router *spa.Config

	// Transport overrides the loopback HTTP transport sessions use to
	// fetch pages.
	Transport fetch.Transport

	// Tracing adds spans to navigations and fetches when set.
	Tracing *spamw.Tracing

	// Registry receives the server's metrics.
	// Default: a new registry with Go and process collectors.
	Registry *prometheus.Registry

	// Logger is the structured logger.
	// Default: slog.Default()
	Logger *slog.Logger
}

// Server is the preview server.
type Server struct {
	cfg       *config.Config
	opts      Options
	logger    *slog.Logger
	registry  *prometheus.Registry
	metrics   *spamw.Metrics
	extractor *fetch.Extractor
	handler   http.Handler
	started   time.Time

	mu         sync.RWMutex
	sessions   map[string]*liveSession
	httpServer *http.Server
	running    bool
}

// New creates a preview server.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		opts.Config = config.New()
	}
	if opts.Router == nil {
		opts.Router = spa.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
		opts.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	extractor, err := fetch.NewExtractor(opts.Config.Router.Container)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       opts.Config,
		opts:      opts,
		logger:    opts.Logger,
		registry:  opts.Registry,
		extractor: extractor,
		started:   time.Now(),
		sessions:  make(map[string]*liveSession),
	}
	if opts.Config.Metrics.Enabled {
		s.metrics = spamw.NewMetrics(
			spamw.WithNamespace(opts.Config.Metrics.Namespace),
			spamw.WithRegistry(opts.Registry),
		)
	}
	s.handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewMux()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get(WebSocketPath, s.handleWebSocket)
	r.Get(ClientPath, handleClientScript)
	if s.cfg.Metrics.Enabled {
		r.Method(http.MethodGet, s.cfg.Metrics.Path,
			promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	}
	s.registerAPI(r)
	r.NotFound(s.handleSite)
	r.MethodNotAllowed(s.handleSite)
	return r
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Metrics returns the navigation metrics, or nil when disabled.
func (s *Server) Metrics() *spamw.Metrics {
	return s.metrics
}

// Start serves on the configured address until ctx is cancelled. When
// watching is enabled, site changes invalidate cached pages.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.httpServer = &http.Server{
		Addr:              s.cfg.DevAddress(),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	if s.cfg.Dev.Watch {
		w := watch.New(watch.Config{
			Root:     s.cfg.RootPath(),
			Debounce: s.cfg.Dev.Debounce.Std(),
			Logger:   s.logger,
		})
		w.OnChange(s.invalidate)
		go func() {
			if err := w.Run(ctx); err != nil {
				s.logger.Warn("watcher stopped", "error", err)
			}
		}()
	}

	s.logger.Info("preview server running", "url", s.cfg.DevURL(), "root", s.cfg.RootPath())

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.Stop()
		return nil
	case err := <-errCh:
		s.Stop()
		return err
	}
}

// Stop shuts the server down and closes every session.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	srv := s.httpServer
	live := make([]*liveSession, 0, len(s.sessions))
	for _, l := range s.sessions {
		live = append(live, l)
	}
	s.mu.Unlock()

	for _, l := range live {
		l.session.Close()
	}
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Warn("shutdown failed", "error", err)
		}
	}
}

// invalidate drops changed pages from every live router's cache and
// registers new ones. A change to a non-page file clears the caches.
func (s *Server) invalidate(changes []watch.Change) {
	clearAll := false
	var routes, added []string
	for _, c := range changes {
		s.logger.Info("changed", "file", c.File, "removed", c.Removed)
		if c.Route == "" {
			clearAll = true
			continue
		}
		routes = append(routes, c.Route)
		if !c.Removed && c.File != "404.html" {
			added = append(added, c.Route)
		}
	}

	for _, l := range s.snapshot() {
		for _, route := range added {
			if !l.router.HasRoute(route) {
				l.router.Route(route, nil)
			}
		}
		if clearAll {
			l.router.ClearCache()
			continue
		}
		for _, route := range routes {
			l.router.Invalidate(route)
		}
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"partial", fetch.IsPartialRequest(r),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func handleClientScript(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(bridge.ClientScript)
}
