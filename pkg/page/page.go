// Package page defines the payload a navigation renders: an HTML fragment
// for the content container plus the document metadata and assets that
// travel with it.
package page

import (
	"encoding/json"
	"errors"
	"maps"
	"slices"
	"strings"
)

// ErrMissingHTML is returned by DecodeJSON when the response has neither
// an "html" nor a "content" field.
var ErrMissingHTML = errors.New("page: response has no html field")

// Script is an external script reference carried by a page.
type Script struct {
	URL   string `json:"src"`
	Async bool   `json:"async,omitempty"`
	Defer bool   `json:"defer,omitempty"`
}

// Style is an external stylesheet reference carried by a page.
type Style struct {
	URL   string `json:"href"`
	Media string `json:"media,omitempty"`
}

// Payload is the fetched-or-computed representation of a page.
// A Payload is immutable once built; accessors hand out copies.
type Payload struct {
	html    string
	title   string
	meta    map[string]string
	scripts []Script
	styles  []Style
}

// New builds a payload. Meta, scripts and styles are copied.
// Styles without a media query default to "all".
func New(html, title string, meta map[string]string, scripts []Script, styles []Style) *Payload {
	p := &Payload{
		html:    html,
		title:   title,
		meta:    maps.Clone(meta),
		scripts: slices.Clone(scripts),
		styles:  slices.Clone(styles),
	}
	if p.meta == nil {
		p.meta = map[string]string{}
	}
	for i := range p.styles {
		if p.styles[i].Media == "" {
			p.styles[i].Media = "all"
		}
	}
	return p
}

// HTML returns the container fragment.
func (p *Payload) HTML() string { return p.html }

// Title returns the document title ("" when the page has none).
func (p *Payload) Title() string { return p.title }

// Meta returns a copy of the meta name/content pairs.
func (p *Payload) Meta() map[string]string { return maps.Clone(p.meta) }

// Scripts returns a copy of the script references in document order.
func (p *Payload) Scripts() []Script { return slices.Clone(p.scripts) }

// Styles returns a copy of the stylesheet references in document order.
func (p *Payload) Styles() []Style { return slices.Clone(p.styles) }

// Valid reports whether the payload carries renderable HTML.
func (p *Payload) Valid() bool {
	return p != nil && strings.TrimSpace(p.html) != ""
}

// Size estimates the memory held by the payload in bytes.
func (p *Payload) Size() int64 {
	if p == nil {
		return 0
	}
	n := int64(64 + len(p.html) + len(p.title))
	for k, v := range p.meta {
		n += int64(len(k) + len(v) + 16)
	}
	for _, s := range p.scripts {
		n += int64(len(s.URL) + 24)
	}
	for _, s := range p.styles {
		n += int64(len(s.URL) + len(s.Media) + 32)
	}
	return n
}

// wire is the structured JSON shape a server may answer a partial
// request with. "content" is accepted as an alias of "html".
type wire struct {
	HTML    *string           `json:"html"`
	Content *string           `json:"content,omitempty"`
	Title   string            `json:"title"`
	Meta    map[string]string `json:"meta,omitempty"`
	Scripts []assetRef        `json:"scripts,omitempty"`
	Styles  []assetRef        `json:"styles,omitempty"`
}

// assetRef accepts either a bare URL string or an object form.
type assetRef struct {
	URL   string
	Async bool
	Defer bool
	Media string
}

func (a *assetRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		a.URL = s
		return nil
	}
	var obj struct {
		Src   string `json:"src"`
		Href  string `json:"href"`
		URL   string `json:"url"`
		Async bool   `json:"async"`
		Defer bool   `json:"defer"`
		Media string `json:"media"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	a.URL = firstNonEmpty(obj.Src, obj.Href, obj.URL)
	a.Async, a.Defer, a.Media = obj.Async, obj.Defer, obj.Media
	return nil
}

// DecodeJSON builds a payload from a structured server response.
func DecodeJSON(data []byte) (*Payload, error) {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	var content string
	switch {
	case w.HTML != nil && (*w.HTML != "" || w.Content == nil):
		content = *w.HTML
	case w.Content != nil:
		content = *w.Content
	default:
		return nil, ErrMissingHTML
	}
	scripts := make([]Script, 0, len(w.Scripts))
	for _, s := range w.Scripts {
		if s.URL == "" {
			continue
		}
		scripts = append(scripts, Script{URL: s.URL, Async: s.Async, Defer: s.Defer})
	}
	styles := make([]Style, 0, len(w.Styles))
	for _, s := range w.Styles {
		if s.URL == "" {
			continue
		}
		styles = append(styles, Style{URL: s.URL, Media: s.Media})
	}
	return New(content, w.Title, w.Meta, scripts, styles), nil
}

// MarshalJSON encodes the payload in the structured response shape.
func (p *Payload) MarshalJSON() ([]byte, error) {
	type script struct {
		Src   string `json:"src"`
		Async bool   `json:"async,omitempty"`
		Defer bool   `json:"defer,omitempty"`
	}
	type style struct {
		Href  string `json:"href"`
		Media string `json:"media,omitempty"`
	}
	out := struct {
		HTML    string            `json:"html"`
		Title   string            `json:"title"`
		Meta    map[string]string `json:"meta"`
		Scripts []script          `json:"scripts"`
		Styles  []style           `json:"styles"`
	}{HTML: p.html, Title: p.title, Meta: p.meta, Scripts: []script{}, Styles: []style{}}
	for _, s := range p.scripts {
		out.Scripts = append(out.Scripts, script{Src: s.URL, Async: s.Async, Defer: s.Defer})
	}
	for _, s := range p.styles {
		out.Styles = append(out.Styles, style{Href: s.URL, Media: s.Media})
	}
	return json.Marshal(out)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
