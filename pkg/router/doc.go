// Package router holds the route table and guard pipeline of the page
// navigation layer.
//
// # Patterns
//
// Patterns are slash separated. A segment is either static, a named
// parameter, or a final catch-all:
//
//	/services/:id        → params["id"]
//	/services/:id:int    → params["id"], only digits match
//	/docs/*rest          → params["rest"] = "a/b/c" (may be empty)
//
// Patterns are compiled once at registration. Lookup walks the routes in
// registration order and the first match wins; there is no specificity
// ranking, so register specific patterns before broad ones.
//
// # Usage
//
//	table := router.NewTable()
//	table.Register("/services/:id", func(ctx context.Context, nav *router.Context) (*page.Payload, error) {
//	    return page.New("<h1>Svc "+nav.Params["id"]+"</h1>", "Svc", nil, nil, nil), nil
//	})
//
//	route, params, ok := table.Find("/services/42")
//	// params["id"] == "42"
//
// # Guards
//
// A Pipeline runs guards in registration order before every navigation.
// The first guard that returns false or an error stops the pipeline.
//
//	var p router.Pipeline
//	p.Use(router.GuardFunc(requireLogin))
//	ok, err := p.Run(ctx, "/account", nil, current)
package router
