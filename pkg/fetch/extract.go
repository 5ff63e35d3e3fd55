package fetch

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/architech/spanav/pkg/page"
)

var (
	selMain       = cascadia.MustCompile("main")
	selBody       = cascadia.MustCompile("body")
	selTitle      = cascadia.MustCompile("title")
	selMeta       = cascadia.MustCompile("meta")
	selScripts    = cascadia.MustCompile("script[src]")
	selStylesheet = cascadia.MustCompile(`link[rel~="stylesheet"][href]`)
)

// Extractor pulls a page payload out of a full HTML document.
type Extractor struct {
	selector  string
	container cascadia.Matcher
}

// NewExtractor compiles the content container selector (e.g. "main",
// "#content"). An empty selector means "main".
func NewExtractor(selector string) (*Extractor, error) {
	if strings.TrimSpace(selector) == "" {
		selector = "main"
	}
	sel, err := cascadia.ParseGroup(selector)
	if err != nil {
		return nil, err
	}
	return &Extractor{selector: selector, container: sel}, nil
}

// Selector returns the container selector.
func (e *Extractor) Selector() string { return e.selector }

// Extract parses doc and returns the container's inner HTML with the
// document's title, meta tags, scripts and stylesheets. Relative asset
// URLs are resolved against href, the address of the page.
func (e *Extractor) Extract(doc []byte, href string) (*page.Payload, error) {
	root, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		return nil, err
	}

	content := string(doc)
	if container := firstMatch(root, e.container, selMain, selBody); container != nil {
		content = InnerHTML(container)
	}

	var title string
	if n := cascadia.Query(root, selTitle); n != nil {
		title = TextContent(n)
	}

	meta := make(map[string]string)
	for _, n := range cascadia.QueryAll(root, selMeta) {
		name := Attr(n, "name")
		if name == "" {
			name = Attr(n, "property")
		}
		if name != "" {
			meta[name] = Attr(n, "content")
		}
	}

	base, _ := url.Parse(href)
	var scripts []page.Script
	for _, n := range cascadia.QueryAll(root, selScripts) {
		scripts = append(scripts, page.Script{
			URL:   resolveURL(base, Attr(n, "src")),
			Async: HasAttr(n, "async"),
			Defer: HasAttr(n, "defer"),
		})
	}
	var styles []page.Style
	for _, n := range cascadia.QueryAll(root, selStylesheet) {
		styles = append(styles, page.Style{
			URL:   resolveURL(base, Attr(n, "href")),
			Media: Attr(n, "media"),
		})
	}

	return page.New(content, title, meta, scripts, styles), nil
}

func firstMatch(root *html.Node, sels ...cascadia.Matcher) *html.Node {
	for _, sel := range sels {
		if n := cascadia.Query(root, sel); n != nil {
			return n
		}
	}
	return nil
}

func resolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if base == nil || ref == "" {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

// InnerHTML renders the children of n.
func InnerHTML(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&buf, c)
	}
	return buf.String()
}

// TextContent concatenates the text nodes under n, trimmed.
func TextContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

// Attr returns the value of the named attribute, or "".
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

// HasAttr reports whether n carries the named attribute.
func HasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return true
		}
	}
	return false
}
