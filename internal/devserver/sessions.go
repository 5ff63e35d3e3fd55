package devserver

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/architech/spanav/pkg/dom/bridge"
	"github.com/architech/spanav/pkg/fetch"
	spamw "github.com/architech/spanav/pkg/middleware"
	"github.com/architech/spanav/pkg/spa"
)

// liveSession is one connected tab and its router.
type liveSession struct {
	session *bridge.Session
	router  *spa.Router
	ctx     context.Context
	opened  time.Time
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	opts := bridge.Options{
		Timeout: s.cfg.Dev.CommandTimeout.Std(),
		OnEvent: s.onEvent,
		Logger:  s.logger,
	}
	if s.metrics != nil {
		opts.OnError = s.metrics.RecordWebSocketError
	}

	sess, err := bridge.Accept(w, r, opts)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		if s.metrics != nil {
			s.metrics.RecordWebSocketError("upgrade")
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := spa.New(sess, sess, s.routerConfig(r))
	if err != nil {
		s.logger.Error("router setup failed", "error", err)
		sess.Close()
		return
	}

	for _, page := range s.sitePages() {
		if err := rt.Route(page, nil); err != nil {
			s.logger.Debug("skipping page route", "route", page, "error", err)
		}
	}

	live := &liveSession{session: sess, router: rt, ctx: ctx, opened: time.Now()}
	s.mu.Lock()
	s.sessions[sess.ID()] = live
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.RecordSessionOpen()
	}
	s.logger.Info("session opened", "session", sess.ID(), "remote", r.RemoteAddr)

	err = sess.Run(ctx)

	s.mu.Lock()
	delete(s.sessions, sess.ID())
	s.mu.Unlock()
	cancel()
	rt.Close()
	if s.metrics != nil {
		s.metrics.RecordSessionClose()
	}
	s.logger.Info("session closed", "session", sess.ID(), "error", err)
}

// routerConfig derives a session's router configuration from the
// template. Pages are fetched back from this server unless a transport
// was configured.
func (s *Server) routerConfig(r *http.Request) *spa.Config {
	cfg := s.opts.Router.Clone()
	origin := "http://" + r.Host
	if cfg.Origin == "" {
		cfg.Origin = origin
	}
	if cfg.Base == "" {
		cfg.Base = s.cfg.Router.Base
	}
	if cfg.Logger == nil {
		cfg.Logger = s.logger
	}

	transport := s.opts.Transport
	if transport == nil {
		loopback := fetch.NewHTTPTransport(origin, s.cfg.Transport.Timeout.Std())
		loopback.MaxBodySize = s.cfg.Transport.MaxBodySize
		transport = loopback
	}
	if s.opts.Tracing != nil {
		transport = s.opts.Tracing.Transport(transport)
	}
	cfg.Transport = transport

	var observers []spa.Observer
	var hooks []func(fetch.Event)
	if cfg.Observer != nil {
		observers = append(observers, cfg.Observer)
	}
	if cfg.OnFetch != nil {
		hooks = append(hooks, cfg.OnFetch)
	}
	if s.metrics != nil {
		observers = append(observers, s.metrics)
		hooks = append(hooks, s.metrics.ObserveFetch)
	}
	if s.opts.Tracing != nil {
		observers = append(observers, s.opts.Tracing)
	}
	cfg.Observer = spamw.Combine(observers...)
	cfg.OnFetch = spamw.FetchHooks(hooks...)
	return cfg
}

// onEvent runs on the session's event goroutine, so a tab's events are
// handled one at a time.
func (s *Server) onEvent(sess *bridge.Session, ev bridge.Event) {
	live := s.lookup(sess.ID())
	if live == nil {
		return
	}
	ctx := live.ctx
	log := s.logger.With("session", sess.ID())

	switch ev.Name {
	case bridge.EventReady:
		if err := live.router.Start(ctx); err != nil {
			log.Warn("router start failed", "error", err)
		}

	case bridge.EventClick:
		res, err := live.router.HandleClick(ctx, spa.Click{
			Link:  ev.Link(),
			Ctrl:  ev.Ctrl,
			Meta:  ev.Meta,
			Shift: ev.Shift,
			Alt:   ev.Alt,
		})
		if err != nil {
			log.Warn("navigation failed", "href", ev.Href, "result", res.String(), "error", err)
		}
		if res == spa.ResultIgnored {
			// The client already cancelled the click.
			if err := sess.Assign(ctx, ev.Href); err != nil {
				log.Warn("assign failed", "href", ev.Href, "error", err)
			}
		}

	case bridge.EventHover:
		live.router.HandleHover(ev.Link())

	case bridge.EventVisible:
		live.router.HandleVisible(ev.Link())
	}
}

func (s *Server) lookup(id string) *liveSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

// snapshot returns the live sessions, oldest first.
func (s *Server) snapshot() []*liveSession {
	s.mu.RLock()
	out := make([]*liveSession, 0, len(s.sessions))
	for _, l := range s.sessions {
		out = append(out, l)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].opened.Before(out[j].opened) })
	return out
}

// SessionCount returns the number of connected tabs.
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
