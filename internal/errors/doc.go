// Package errors provides structured, coded errors for spanav.
//
// Every failure the navigation layer can report has a registered code
// that maps to a category, a short message and a longer explanation:
//
//   - navigation: E100-E119 (no route, fetch, guard rejection, busy, render)
//   - config: E120-E129 (invalid or missing configuration)
//   - transport: E130-E139 (bridge and browser driver failures)
//
// # Usage
//
//	err := errors.New("E101").
//	    WithDetail("GET /services/42 returned 502").
//	    Wrap(cause)
//
//	if errors.Is(err, errors.New("E101")) {
//	    // any fetch failure
//	}
//
// Two RouterErrors compare equal under errors.Is when their codes match,
// so callers can test against a freshly built template without keeping
// sentinel values around.
package errors
