package watch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRouteFor(t *testing.T) {
	tests := []struct {
		file  string
		route string
		page  bool
	}{
		{"index.html", "/", true},
		{"about.html", "/about", true},
		{"services/index.html", "/services", true},
		{"services/web.HTML", "/services/web", true},
		{"./blog/../news.html", "/news", true},
		{"css/site.css", "", false},
		{"index.htm", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			route, page := RouteFor(tt.file)
			if route != tt.route || page != tt.page {
				t.Errorf("RouteFor(%q) = %q, %v; want %q, %v", tt.file, route, page, tt.route, tt.page)
			}
		})
	}
}

func TestIgnored(t *testing.T) {
	w := New(Config{Root: "site"})
	tests := []struct {
		path string
		want bool
	}{
		{"site/.git/HEAD", true},
		{"site/node_modules/x/index.html", true},
		{"site/about.html.swp", true},
		{"site/draft.tmp", true},
		{"site/about.html", false},
		{"site/gitlog/index.html", false},
	}
	for _, tt := range tests {
		if got := w.ignored(tt.path); got != tt.want {
			t.Errorf("ignored(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestRunReportsDebouncedChanges(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "services"), 0755); err != nil {
		t.Fatal(err)
	}

	w := New(Config{
		Root:     root,
		Debounce: 50 * time.Millisecond,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	batches := make(chan []Change, 4)
	w.OnChange(func(changes []Change) { batches <- changes })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !w.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("watcher did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}

	write := func(name string) {
		if err := os.WriteFile(filepath.Join(root, name), []byte("<main></main>"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("about.html")
	write(filepath.Join("services", "index.html"))
	write("about.html")

	seen := map[string]Change{}
	timeout := time.After(3 * time.Second)
	for len(seen) < 2 {
		select {
		case batch := <-batches:
			for _, c := range batch {
				seen[c.File] = c
			}
		case <-timeout:
			t.Fatalf("changes not reported, got %v", seen)
		}
	}

	if c := seen["about.html"]; c.Route != "/about" || c.Removed {
		t.Errorf("about change = %+v", c)
	}
	if c := seen["services/index.html"]; c.Route != "/services" {
		t.Errorf("services change = %+v", c)
	}
}
