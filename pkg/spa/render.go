package spa

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/architech/spanav/pkg/dom"
	"github.com/architech/spanav/pkg/page"
	"github.com/architech/spanav/pkg/router"
)

// swap replaces the container content with payload: fade out, set
// content, update head, announce, fade in.
func (r *Router) swap(ctx context.Context, nav *router.Context, p *page.Payload) error {
	if err := r.fadeOut(ctx); err != nil {
		return err
	}

	if err := r.page.SetContainerHTML(ctx, p.HTML()); err != nil {
		return fmt.Errorf("set container: %w", err)
	}
	if r.cfg.UpdateTitle && p.Title() != "" {
		if err := r.page.SetTitle(ctx, p.Title()); err != nil {
			return fmt.Errorf("set title: %w", err)
		}
	}
	if err := r.applyMeta(ctx, p.Meta()); err != nil {
		return err
	}
	if err := r.loadAssets(ctx, p); err != nil {
		return err
	}

	detail := struct {
		Route *routeInfo `json:"route"`
	}{infoOf(nav)}
	if err := r.page.Dispatch(ctx, dom.TargetContainer, dom.EventContentLoaded, detail); err != nil {
		r.logger.Warn("contentLoaded dispatch failed", "path", nav.Path, "error", err)
	}

	return r.fadeIn(ctx)
}

func (r *Router) applyMeta(ctx context.Context, meta map[string]string) error {
	names := make([]string, 0, len(meta))
	for name := range meta {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := r.page.SetMeta(ctx, name, meta[name]); err != nil {
			return fmt.Errorf("set meta %q: %w", name, err)
		}
	}
	return nil
}

// loadAssets injects scripts and stylesheets not already in the document.
func (r *Router) loadAssets(ctx context.Context, p *page.Payload) error {
	for _, s := range p.Scripts() {
		ok, err := r.page.HasAsset(ctx, dom.AssetScript, s.URL)
		if err != nil {
			return fmt.Errorf("lookup script %s: %w", s.URL, err)
		}
		if ok {
			continue
		}
		if err := r.page.InjectScript(ctx, s); err != nil {
			return fmt.Errorf("inject script %s: %w", s.URL, err)
		}
	}
	for _, s := range p.Styles() {
		ok, err := r.page.HasAsset(ctx, dom.AssetStyle, s.URL)
		if err != nil {
			return fmt.Errorf("lookup style %s: %w", s.URL, err)
		}
		if ok {
			continue
		}
		if err := r.page.InjectStyle(ctx, s); err != nil {
			return fmt.Errorf("inject style %s: %w", s.URL, err)
		}
	}
	return nil
}

func (r *Router) fadeOut(ctx context.Context) error {
	d := r.cfg.TransitionDuration
	err := r.page.SetContainerStyle(ctx, map[string]string{
		"opacity":    "0",
		"transform":  "translateY(20px)",
		"transition": fmt.Sprintf("all %dms ease", d.Milliseconds()),
	})
	if err != nil {
		return fmt.Errorf("fade out: %w", err)
	}
	return r.sleep(ctx, d)
}

func (r *Router) fadeIn(ctx context.Context) error {
	err := r.page.SetContainerStyle(ctx, map[string]string{
		"opacity":   "1",
		"transform": "translateY(0)",
	})
	if err != nil {
		return fmt.Errorf("fade in: %w", err)
	}
	if err := r.sleep(ctx, r.cfg.TransitionDuration); err != nil {
		return err
	}
	if err := r.page.SetContainerStyle(ctx, map[string]string{"transition": ""}); err != nil {
		return fmt.Errorf("fade in: %w", err)
	}
	return nil
}

// restoreScroll returns to the saved offset on history replays and to
// the top on forward navigations.
func (r *Router) restoreScroll(ctx context.Context, nav *router.Context) {
	var y float64
	switch {
	case nav.HistoryReplay:
		y = nav.ScrollY
	case r.cfg.ScrollToTop:
		y = 0
	default:
		return
	}
	if err := r.page.ScrollTo(ctx, y); err != nil {
		r.logger.Debug("scroll failed", "y", y, "error", err)
	}
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
