// Package watch reports site file changes as page routes.
//
// The preview server uses it to invalidate cached pages when the files
// behind them change:
//
//	w := watch.New(watch.Config{Root: "public", Debounce: 100 * time.Millisecond})
//	w.OnChange(func(changes []watch.Change) {
//	    for _, c := range changes {
//	        if c.Route == "" {
//	            fetcher.Clear()
//	            return
//	        }
//	        fetcher.Invalidate(c.Route)
//	    }
//	})
//	go w.Run(ctx)
//
// Page files map to routes the way the preview server resolves them:
// index.html serves its directory and other .html files serve their name
// without the extension. Changes to anything else (stylesheets, scripts,
// images) carry an empty Route.
package watch
