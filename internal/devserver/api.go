package devserver

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"github.com/architech/spanav/internal/errors"
	"github.com/architech/spanav/pkg/spa"
)

// SessionInfo describes a connected tab.
type SessionInfo struct {
	ID          string    `json:"id"`
	Path        string    `json:"path,omitempty"`
	Previous    string    `json:"previous,omitempty"`
	Navigating  bool      `json:"navigating"`
	CanGoBack   bool      `json:"canGoBack"`
	Routes      int       `json:"routes"`
	CachedPages []string  `json:"cachedPages"`
	OpenedAt    time.Time `json:"openedAt"`
}

// NavigationResult is the outcome of a navigate or refresh call.
type NavigationResult struct {
	Result string `json:"result" enum:"navigated,unchanged,rejected,busy,fallback,ignored"`
	Path   string `json:"path,omitempty"`
	Error  string `json:"error,omitempty" doc:"Set when the router fell back to a full page load"`
}

type healthOutput struct {
	Body struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
		Uptime   string `json:"uptime"`
	}
}

type sessionsOutput struct {
	Body struct {
		Sessions []SessionInfo `json:"sessions"`
	}
}

type sessionIDInput struct {
	ID string `path:"id" doc:"Session ID"`
}

type navigateInput struct {
	ID   string `path:"id" doc:"Session ID"`
	Body struct {
		Path    string `json:"path" minLength:"1" doc:"Target path or URL"`
		Replace bool   `json:"replace,omitempty" doc:"Replace the current history entry"`
		Force   bool   `json:"force,omitempty" doc:"Bypass the page cache and the unchanged check"`
	}
}

type navigationOutput struct {
	Body NavigationResult
}

type invalidateInput struct {
	Body struct {
		Path string `json:"path,omitempty" doc:"Page path to drop; empty clears every cache"`
	} `required:"false"`
}

type invalidateOutput struct {
	Body struct {
		Sessions int `json:"sessions"`
	}
}

func (s *Server) registerAPI(r chi.Router) {
	cfg := huma.DefaultConfig("spanav preview API", "1.0.0")
	cfg.OpenAPIPath = APIPrefix + "/openapi"
	cfg.DocsPath = ""
	cfg.SchemasPath = APIPrefix + "/schemas"
	api := humachi.New(r, cfg)

	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: APIPrefix + "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			out.Body.Sessions = s.SessionCount()
			out.Body.Uptime = time.Since(s.started).Round(time.Second).String()
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "list-sessions", Method: http.MethodGet, Path: APIPrefix + "/sessions", Summary: "List connected tabs", Tags: []string{"Sessions"}},
		func(ctx context.Context, input *struct{}) (*sessionsOutput, error) {
			out := &sessionsOutput{}
			out.Body.Sessions = make([]SessionInfo, 0)
			for _, l := range s.snapshot() {
				out.Body.Sessions = append(out.Body.Sessions, l.info())
			}
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "navigate", Method: http.MethodPost, Path: APIPrefix + "/sessions/{id}/navigate", Summary: "Navigate a tab", Tags: []string{"Sessions"}},
		func(ctx context.Context, input *navigateInput) (*navigationOutput, error) {
			live := s.lookup(input.ID)
			if live == nil {
				return nil, huma.Error404NotFound("session " + input.ID + " not found")
			}
			var opts []spa.NavigateOption
			if input.Body.Replace {
				opts = append(opts, spa.WithReplace())
			}
			if input.Body.Force {
				opts = append(opts, spa.WithForce())
			}
			res, err := live.router.Navigate(ctx, input.Body.Path, opts...)
			return navigationResponse(live, res, err)
		})

	huma.Register(api, huma.Operation{OperationID: "refresh", Method: http.MethodPost, Path: APIPrefix + "/sessions/{id}/refresh", Summary: "Reload the current page of a tab, bypassing the cache", Tags: []string{"Sessions"}},
		func(ctx context.Context, input *sessionIDInput) (*navigationOutput, error) {
			live := s.lookup(input.ID)
			if live == nil {
				return nil, huma.Error404NotFound("session " + input.ID + " not found")
			}
			res, err := live.router.Refresh(ctx)
			return navigationResponse(live, res, err)
		})

	huma.Register(api, huma.Operation{OperationID: "invalidate-cache", Method: http.MethodPost, Path: APIPrefix + "/cache/invalidate", Summary: "Drop cached pages in every tab", Tags: []string{"Cache"}},
		func(ctx context.Context, input *invalidateInput) (*invalidateOutput, error) {
			live := s.snapshot()
			for _, l := range live {
				if input.Body.Path == "" {
					l.router.ClearCache()
				} else {
					l.router.Invalidate(input.Body.Path)
				}
			}
			out := &invalidateOutput{}
			out.Body.Sessions = len(live)
			return out, nil
		})
}

// navigationResponse reports fallbacks in the body; other errors map to
// HTTP statuses.
func navigationResponse(live *liveSession, res spa.Result, err error) (*navigationOutput, error) {
	out := &navigationOutput{}
	out.Body.Result = res.String()
	if cur := live.router.CurrentRoute(); cur != nil {
		out.Body.Path = cur.Path
	}
	if err == nil {
		return out, nil
	}
	if res == spa.ResultFallback {
		out.Body.Error = err.Error()
		return out, nil
	}
	return nil, mapErr(err)
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch errors.Code(err) {
	case "E100":
		return huma.Error404NotFound(err.Error())
	case "E102":
		return huma.Error403Forbidden(err.Error())
	case "E103":
		return huma.Error409Conflict(err.Error())
	case "E101", "E130", "E132":
		return huma.Error502BadGateway(err.Error())
	case "E131":
		return huma.Error504GatewayTimeout(err.Error())
	}
	return huma.Error500InternalServerError(err.Error())
}

func (l *liveSession) info() SessionInfo {
	info := SessionInfo{
		ID:          l.session.ID(),
		Navigating:  l.router.Navigating(),
		CanGoBack:   l.router.CanGoBack(),
		Routes:      len(l.router.Routes()),
		CachedPages: []string{},
		OpenedAt:    l.opened,
	}
	if cur := l.router.CurrentRoute(); cur != nil {
		info.Path = cur.Path
	}
	if prev := l.router.PreviousRoute(); prev != nil {
		info.Previous = prev.Path
	}
	if c := l.router.Cache(); c != nil {
		info.CachedPages = c.Keys()
	}
	return info
}
