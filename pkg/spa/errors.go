package spa

import "github.com/architech/spanav/internal/errors"

// Result is the outcome of a navigation call.
type Result int

const (
	// ResultNavigated means the page was swapped.
	ResultNavigated Result = iota

	// ResultUnchanged means the target is already shown.
	ResultUnchanged

	// ResultRejected means a guard vetoed the navigation. The address bar
	// and the page are untouched.
	ResultRejected

	// ResultBusy means another navigation was in flight. Nothing was done.
	ResultBusy

	// ResultFallback means a full page load was triggered instead.
	ResultFallback

	// ResultIgnored means the event was not for the router (e.g. a click on
	// an external link) and the browser's default should proceed.
	ResultIgnored
)

var resultNames = [...]string{"navigated", "unchanged", "rejected", "busy", "fallback", "ignored"}

// String returns the lower-case result name.
func (r Result) String() string {
	if int(r) < len(resultNames) {
		return resultNames[r]
	}
	return "unknown"
}

// Navigation errors. Use errors.Is to match; the router returns these
// with the path and cause attached.
var (
	ErrNoRoute  = errors.New("E100")
	ErrFetch    = errors.New("E101")
	ErrRejected = errors.New("E102")
	ErrBusy     = errors.New("E103")
	ErrRender   = errors.New("E104")
)
