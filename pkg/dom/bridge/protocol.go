package bridge

import (
	"encoding/json"

	"github.com/architech/spanav/pkg/dom"
	"github.com/architech/spanav/pkg/history"
)

// Command ops.
const (
	OpSetHTML      = "setHTML"
	OpSetTitle     = "setTitle"
	OpSetMeta      = "setMeta"
	OpHasAsset     = "hasAsset"
	OpInjectScript = "injectScript"
	OpInjectStyle  = "injectStyle"
	OpStyle        = "style"
	OpScrollY      = "scrollY"
	OpScrollTo     = "scrollTo"
	OpDispatch     = "dispatch"
	OpLoading      = "loading"
	OpLinks        = "links"
	OpLocation     = "location"
	OpAssign       = "assign"
	OpHistory      = "history"
)

// Event names.
const (
	EventClick    = "click"
	EventHover    = "hover"
	EventVisible  = "visible"
	EventPopState = "popstate"
	EventReady    = "ready"
)

// History actions carried by OpHistory.
const (
	HistoryPush    = "push"
	HistoryReplace = "replace"
	HistoryBack    = "back"
	HistoryForward = "forward"
	HistoryCurrent = "current"
	HistoryLen     = "len"
)

// Command is a server to browser message.
type Command struct {
	ID   uint64 `json:"id"`
	Op   string `json:"op"`
	Args any    `json:"args,omitempty"`
}

// Event is a browser-initiated message.
type Event struct {
	Name string `json:"event"`

	// Link events (click, hover, visible).
	Href     string `json:"href,omitempty"`
	Target   string `json:"target,omitempty"`
	Download bool   `json:"download,omitempty"`
	External bool   `json:"external,omitempty"`

	// Modifier keys (click).
	Ctrl  bool `json:"ctrl,omitempty"`
	Meta  bool `json:"meta,omitempty"`
	Shift bool `json:"shift,omitempty"`
	Alt   bool `json:"alt,omitempty"`

	// URL is the address after a popstate, or the page address on ready.
	URL   string        `json:"url,omitempty"`
	State history.State `json:"state"`
}

// Link returns the anchor the event refers to.
func (e Event) Link() dom.Link {
	return dom.Link{Href: e.Href, Target: e.Target, Download: e.Download, External: e.External}
}

// inbound is any browser to server message.
type inbound struct {
	Event

	ID    uint64          `json:"id,omitempty"`
	OK    bool            `json:"ok"`
	Value json.RawMessage `json:"value,omitempty"`
	Error string          `json:"error,omitempty"`
}

type reply struct {
	ok    bool
	value json.RawMessage
	err   string
}

type historyArgs struct {
	Action string         `json:"action"`
	URL    string         `json:"url,omitempty"`
	State  *history.State `json:"state,omitempty"`
}
