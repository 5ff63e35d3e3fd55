// Package spa is the navigation controller: it turns link clicks,
// programmatic pushes and history pops into page swaps.
//
// A navigation runs, in order: route lookup, guards, history write,
// content fetch, DOM swap (fade out, replace the container, update title,
// meta tags and assets, fade in), scroll restoration, and a routeChanged
// notification. At most one navigation runs at a time; a call made while
// one is in flight returns ResultBusy immediately.
//
// Any failure after the guards (no route, fetch error, render error) ends
// in a hard fallback: the browser is sent to the target with a full page
// load, so the page is never left half swapped.
//
// # Usage
//
//	r, err := spa.New(page, history.NewMemory("/"), &spa.Config{
//	    Transport: fetch.NewHTTPTransport("https://architech.example", 10*time.Second),
//	})
//	r.Route("/services/:id", nil)
//	r.Use(router.GuardFunc(requireConsent))
//	if err := r.Start(ctx); err != nil { ... }
//
//	res, err := r.Push(ctx, "/services/42", nil)
package spa
