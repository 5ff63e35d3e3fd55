// Package dom is the narrow document capability the router mutates.
//
// The router never touches a document directly. It swaps the content
// container's HTML, updates the title and meta tags, injects page assets,
// animates the container through inline styles, scrolls, and dispatches
// custom events. Tree is an in-memory implementation over
// golang.org/x/net/html; the bridge and cdp subpackages drive real
// browsers.
package dom

import (
	"context"

	"github.com/architech/spanav/pkg/page"
)

// Event names dispatched by the router.
const (
	EventRouteChanged  = "routeChanged"
	EventContentLoaded = "contentLoaded"
)

// Target selects where an event is dispatched.
type Target string

const (
	TargetWindow    Target = "window"
	TargetContainer Target = "container"
)

// AssetKind distinguishes scripts from stylesheets.
type AssetKind string

const (
	AssetScript AssetKind = "script"
	AssetStyle  AssetKind = "style"
)

// LoadingClass is toggled on <body> while a navigation renders.
const LoadingClass = "spa-loading"

// Link is an anchor found in the document.
type Link struct {
	Href     string `json:"href"`
	Target   string `json:"target,omitempty"`
	Download bool   `json:"download,omitempty"`
	External bool   `json:"external,omitempty"`
}

// Document is the page the router renders into.
type Document interface {
	// SetContainerHTML replaces the content container's inner HTML.
	SetContainerHTML(ctx context.Context, html string) error

	// SetTitle sets the document title.
	SetTitle(ctx context.Context, title string) error

	// SetMeta updates the meta tag whose name or property is name,
	// creating a <meta name> tag when none exists.
	SetMeta(ctx context.Context, name, content string) error

	// HasAsset reports whether a script (by src) or stylesheet (by href)
	// with exactly url is present.
	HasAsset(ctx context.Context, kind AssetKind, url string) (bool, error)

	// InjectScript appends a script tag to <head>.
	InjectScript(ctx context.Context, s page.Script) error

	// InjectStyle appends a stylesheet link to <head>.
	InjectStyle(ctx context.Context, s page.Style) error

	// SetContainerStyle sets inline style properties on the container.
	// An empty value removes the property.
	SetContainerStyle(ctx context.Context, props map[string]string) error

	// ScrollY returns the vertical scroll offset.
	ScrollY(ctx context.Context) (float64, error)

	// ScrollTo scrolls the window to y.
	ScrollTo(ctx context.Context, y float64) error

	// Dispatch fires a custom event with detail on target.
	Dispatch(ctx context.Context, target Target, name string, detail any) error

	// SetLoading toggles the loading class on <body>.
	SetLoading(ctx context.Context, on bool) error

	// Links returns the anchors with an href.
	Links(ctx context.Context) ([]Link, error)
}

// Location is the browser's address.
type Location interface {
	// Path returns the current address-bar path (base prefix included),
	// with query and fragment.
	Path(ctx context.Context) (string, error)

	// Assign performs a full page navigation to url.
	Assign(ctx context.Context, url string) error
}

// Page combines Document and Location.
type Page interface {
	Document
	Location
}
