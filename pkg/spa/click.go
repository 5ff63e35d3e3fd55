package spa

import (
	"context"
	"strings"

	"github.com/architech/spanav/pkg/dom"
)

// Click is a primary-button click on an anchor.
type Click struct {
	Link dom.Link

	Ctrl  bool
	Meta  bool
	Shift bool
	Alt   bool
}

// Intercepts reports whether the router should take over c. Clicks
// with a modifier key, on links opening elsewhere (new tab, download,
// other scheme or host) or marked external are left to the browser.
func (r *Router) Intercepts(c Click) bool {
	l := c.Link
	switch {
	case c.Ctrl || c.Meta || c.Shift || c.Alt:
		return false
	case l.External, l.Download:
		return false
	case strings.EqualFold(l.Target, "_blank"):
		return false
	}
	return r.norm.IsInternal(l.Href)
}

// HandleClick navigates to the clicked link when the router intercepts
// it. ResultIgnored means the browser's default action should proceed.
func (r *Router) HandleClick(ctx context.Context, c Click) (Result, error) {
	if !r.Intercepts(c) {
		return ResultIgnored, nil
	}
	return r.Push(ctx, r.resolve(c.Link.Href), nil)
}

// HandleHover preloads the page behind an internal link.
func (r *Router) HandleHover(l dom.Link) {
	r.preloadLink(l)
}

// HandleVisible preloads the page behind an internal link that scrolled
// into view.
func (r *Router) HandleVisible(l dom.Link) {
	r.preloadLink(l)
}

func (r *Router) preloadLink(l dom.Link) {
	if !r.cfg.EnablePreload || l.External || !r.norm.IsInternal(l.Href) {
		return
	}
	r.preloader.Preload(r.resolve(l.Href))
}

// resolve maps href to a normalized path relative to the current route,
// keeping its query string.
func (r *Router) resolve(href string) string {
	current := "/"
	if cur := r.CurrentRoute(); cur != nil {
		current = cur.Path
	}
	path := r.norm.Resolve(href, current)
	noFragment, _, _ := strings.Cut(href, "#")
	if _, query, ok := strings.Cut(noFragment, "?"); ok && query != "" {
		path += "?" + query
	}
	return path
}
