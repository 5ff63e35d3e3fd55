package devserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/architech/spanav/internal/watch"
	"github.com/architech/spanav/pkg/fetch"
)

// handleSite serves files from the site root. HTML pages answer partial
// requests with their JSON payload and full requests with the bridge
// client injected.
func (s *Server) handleSite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	urlPath, ok := s.stripBase(r.URL.Path)
	if !ok {
		s.notFound(w, r)
		return
	}
	file, ok := s.resolveFile(urlPath)
	if !ok {
		s.notFound(w, r)
		return
	}
	if !isHTML(file) {
		http.ServeFile(w, r, file)
		return
	}
	s.servePage(w, r, file, http.StatusOK)
}

func (s *Server) servePage(w http.ResponseWriter, r *http.Request, file string, status int) {
	doc, err := os.ReadFile(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Vary", fetch.HeaderRequestedWith)

	if fetch.IsPartialRequest(r) {
		payload, err := s.extractor.Extract(doc, r.URL.Path)
		if err != nil {
			s.logger.Warn("partial extraction failed", "file", file, "error", err)
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		body, err := json.Marshal(payload)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write(body)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(injectClient(doc, s.cfg.Router.Container))
}

// notFound serves 404.html from the site root when present. Partial
// requests get a bare 404 so the router falls back to a full load.
func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	custom := filepath.Join(s.cfg.RootPath(), "404.html")
	if !fetch.IsPartialRequest(r) && fileExists(custom) {
		s.servePage(w, r, custom, http.StatusNotFound)
		return
	}
	http.NotFound(w, r)
}

func (s *Server) stripBase(urlPath string) (string, bool) {
	base := strings.TrimRight(s.cfg.Router.Base, "/")
	if base == "" {
		return urlPath, true
	}
	if urlPath == base {
		return "/", true
	}
	if rest, ok := strings.CutPrefix(urlPath, base+"/"); ok {
		return "/" + rest, true
	}
	return "", false
}

// resolveFile maps a URL path to a file under the site root: the exact
// file, then name.html, then name/index.html.
func (s *Server) resolveFile(urlPath string) (string, bool) {
	root := s.cfg.RootPath()
	clean := path.Clean("/" + urlPath)
	full := filepath.Join(root, filepath.FromSlash(clean))

	candidates := []string{full}
	if clean != "/" && path.Ext(clean) == "" {
		candidates = append(candidates, full+".html")
	}
	candidates = append(candidates, filepath.Join(full, "index.html"))

	for _, c := range candidates {
		if fileExists(c) {
			return c, true
		}
	}
	return "", false
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

func isHTML(p string) bool {
	ext := strings.ToLower(filepath.Ext(p))
	return ext == ".html" || ext == ".htm"
}

// injectClient adds the bridge client script before </body>, or at the
// end when the page has no body tag.
func injectClient(doc []byte, container string) []byte {
	tag := []byte(fmt.Sprintf(`<script src="%s" data-container="%s" defer></script>`,
		ClientPath, html.EscapeString(container)))

	idx := bytes.LastIndex(bytes.ToLower(doc), []byte("</body>"))
	if idx < 0 {
		return append(append(doc[:len(doc):len(doc)], tag...), '\n')
	}
	out := make([]byte, 0, len(doc)+len(tag))
	out = append(out, doc[:idx]...)
	out = append(out, tag...)
	return append(out, doc[idx:]...)
}

// sitePages lists the page routes under the site root, 404.html
// excluded.
func (s *Server) sitePages() []string {
	root := s.cfg.RootPath()
	var pages []string
	filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel == "404.html" {
			return nil
		}
		if route, ok := watch.RouteFor(rel); ok {
			pages = append(pages, route)
		}
		return nil
	})
	return pages
}
