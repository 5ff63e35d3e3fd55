package dom

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/architech/spanav/pkg/page"
)

var (
	selHead   = cascadia.MustCompile("head")
	selBody   = cascadia.MustCompile("body")
	selTitle  = cascadia.MustCompile("title")
	selMeta   = cascadia.MustCompile("meta")
	selScript = cascadia.MustCompile("script[src]")
	selStyle  = cascadia.MustCompile(`link[rel~="stylesheet"]`)
	selLinks  = cascadia.MustCompile("a[href]")
)

// DispatchedEvent is an event recorded by Tree.
type DispatchedEvent struct {
	Target Target
	Name   string
	Detail any
}

// Tree is an in-memory Page backed by a parsed HTML document. It is safe
// for concurrent use.
type Tree struct {
	mu        sync.Mutex
	root      *html.Node
	container *html.Node
	scrollY   float64
	location  string
	assigned  []string
	events    []DispatchedEvent
	listeners map[string][]func(DispatchedEvent)
}

// NewTree parses doc and locates the content container with selector
// (default "main"). location is the initial address-bar path.
func NewTree(doc, selector, location string) (*Tree, error) {
	if selector == "" {
		selector = "main"
	}
	sel, err := cascadia.ParseGroup(selector)
	if err != nil {
		return nil, fmt.Errorf("container selector %q: %w", selector, err)
	}
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, err
	}
	container := cascadia.Query(root, sel)
	if container == nil {
		return nil, fmt.Errorf("container %q not found", selector)
	}
	if location == "" {
		location = "/"
	}
	return &Tree{
		root:      root,
		container: container,
		location:  location,
		listeners: make(map[string][]func(DispatchedEvent)),
	}, nil
}

// SetContainerHTML implements Document.
func (t *Tree) SetContainerHTML(_ context.Context, fragment string) error {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), t.container)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for c := t.container.FirstChild; c != nil; {
		next := c.NextSibling
		t.container.RemoveChild(c)
		c = next
	}
	for _, n := range nodes {
		t.container.AppendChild(n)
	}
	return nil
}

// ContainerHTML returns the container's inner HTML.
func (t *Tree) ContainerHTML() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return innerHTML(t.container)
}

// SetTitle implements Document.
func (t *Tree) SetTitle(_ context.Context, title string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := cascadia.Query(t.root, selTitle)
	if n == nil {
		n = element(atom.Title)
		t.head().AppendChild(n)
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: title})
	return nil
}

// Title returns the document title.
func (t *Tree) Title() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := cascadia.Query(t.root, selTitle)
	if n == nil {
		return ""
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}

// SetMeta implements Document.
func (t *Tree) SetMeta(_ context.Context, name, content string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n := t.findMeta(name); n != nil {
		setAttr(n, "content", content)
		return nil
	}
	n := element(atom.Meta)
	setAttr(n, "name", name)
	setAttr(n, "content", content)
	t.head().AppendChild(n)
	return nil
}

// Meta returns the content of the meta tag named name.
func (t *Tree) Meta(name string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.findMeta(name)
	if n == nil {
		return "", false
	}
	return getAttr(n, "content"), true
}

func (t *Tree) findMeta(name string) *html.Node {
	for _, key := range []string{"name", "property"} {
		for _, n := range cascadia.QueryAll(t.root, selMeta) {
			if getAttr(n, key) == name {
				return n
			}
		}
	}
	return nil
}

// HasAsset implements Document.
func (t *Tree) HasAsset(_ context.Context, kind AssetKind, url string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Contains(t.assets(kind), url), nil
}

// Assets returns the script srcs or stylesheet hrefs in document order.
func (t *Tree) Assets(kind AssetKind) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.assets(kind)
}

func (t *Tree) assets(kind AssetKind) []string {
	sel, key := selScript, "src"
	if kind == AssetStyle {
		sel, key = selStyle, "href"
	}
	var out []string
	for _, n := range cascadia.QueryAll(t.root, sel) {
		out = append(out, getAttr(n, key))
	}
	return out
}

// InjectScript implements Document.
func (t *Tree) InjectScript(_ context.Context, s page.Script) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := element(atom.Script)
	setAttr(n, "src", s.URL)
	if s.Async {
		setAttr(n, "async", "")
	}
	if s.Defer {
		setAttr(n, "defer", "")
	}
	t.head().AppendChild(n)
	return nil
}

// InjectStyle implements Document.
func (t *Tree) InjectStyle(_ context.Context, s page.Style) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := element(atom.Link)
	setAttr(n, "rel", "stylesheet")
	setAttr(n, "href", s.URL)
	media := s.Media
	if media == "" {
		media = "all"
	}
	setAttr(n, "media", media)
	t.head().AppendChild(n)
	return nil
}

// SetContainerStyle implements Document.
func (t *Tree) SetContainerStyle(_ context.Context, props map[string]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	names, values := parseStyle(getAttr(t.container, "style"))
	for _, k := range slices.Sorted(maps.Keys(props)) {
		v := props[k]
		i := slices.Index(names, k)
		switch {
		case v == "" && i >= 0:
			names = slices.Delete(names, i, i+1)
			values = slices.Delete(values, i, i+1)
		case v == "":
		case i >= 0:
			values[i] = v
		default:
			names = append(names, k)
			values = append(values, v)
		}
	}
	parts := make([]string, len(names))
	for i := range names {
		parts[i] = names[i] + ": " + values[i]
	}
	if len(parts) == 0 {
		removeAttr(t.container, "style")
		return nil
	}
	setAttr(t.container, "style", strings.Join(parts, "; "))
	return nil
}

// ContainerStyle returns one inline style property of the container.
func (t *Tree) ContainerStyle(prop string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names, values := parseStyle(getAttr(t.container, "style"))
	if i := slices.Index(names, prop); i >= 0 {
		return values[i]
	}
	return ""
}

// ScrollY implements Document.
func (t *Tree) ScrollY(context.Context) (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scrollY, nil
}

// ScrollTo implements Document.
func (t *Tree) ScrollTo(_ context.Context, y float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scrollY = y
	return nil
}

// Dispatch implements Document. The event is recorded and delivered to
// listeners registered with On.
func (t *Tree) Dispatch(_ context.Context, target Target, name string, detail any) error {
	ev := DispatchedEvent{Target: target, Name: name, Detail: detail}
	t.mu.Lock()
	t.events = append(t.events, ev)
	fns := slices.Clone(t.listeners[name])
	t.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
	return nil
}

// On registers a listener for dispatched events named name.
func (t *Tree) On(name string, fn func(DispatchedEvent)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners[name] = append(t.listeners[name], fn)
}

// Events returns the dispatched events in order.
func (t *Tree) Events() []DispatchedEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.events)
}

// SetLoading implements Document.
func (t *Tree) SetLoading(_ context.Context, on bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	body := cascadia.Query(t.root, selBody)
	if body == nil {
		return nil
	}
	classes := strings.Fields(getAttr(body, "class"))
	i := slices.Index(classes, LoadingClass)
	switch {
	case on && i < 0:
		classes = append(classes, LoadingClass)
	case !on && i >= 0:
		classes = slices.Delete(classes, i, i+1)
	}
	if len(classes) == 0 {
		removeAttr(body, "class")
	} else {
		setAttr(body, "class", strings.Join(classes, " "))
	}
	return nil
}

// Loading reports whether the loading class is set.
func (t *Tree) Loading() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	body := cascadia.Query(t.root, selBody)
	return body != nil && slices.Contains(strings.Fields(getAttr(body, "class")), LoadingClass)
}

// Links implements Document.
func (t *Tree) Links(context.Context) ([]Link, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var links []Link
	for _, n := range cascadia.QueryAll(t.root, selLinks) {
		links = append(links, Link{
			Href:     getAttr(n, "href"),
			Target:   getAttr(n, "target"),
			Download: hasAttr(n, "download"),
			External: hasAttr(n, "data-external"),
		})
	}
	return links, nil
}

// Path implements Location.
func (t *Tree) Path(context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.location, nil
}

// SetPath moves the address bar without navigating, as a history pop does.
func (t *Tree) SetPath(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.location = path
}

// Assign implements Location. The tree records the full navigation.
func (t *Tree) Assign(_ context.Context, url string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.assigned = append(t.assigned, url)
	t.location = url
	return nil
}

// Assigned returns the URLs passed to Assign.
func (t *Tree) Assigned() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.assigned)
}

// Render serializes the whole document.
func (t *Tree) Render() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var buf bytes.Buffer
	_ = html.Render(&buf, t.root)
	return buf.String()
}

func (t *Tree) head() *html.Node {
	if n := cascadia.Query(t.root, selHead); n != nil {
		return n
	}
	return t.root
}

func element(a atom.Atom) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
}

func innerHTML(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&buf, c)
	}
	return buf.String()
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	n.Attr = slices.DeleteFunc(n.Attr, func(a html.Attribute) bool { return a.Key == key })
}

// parseStyle splits an inline style into ordered property names and values.
func parseStyle(style string) ([]string, []string) {
	var names, values []string
	for _, decl := range strings.Split(style, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "" {
			continue
		}
		names = append(names, k)
		values = append(values, v)
	}
	return names, values
}
