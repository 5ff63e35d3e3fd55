package main

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/architech/spanav/internal/config"
	"github.com/architech/spanav/internal/errors"
	"github.com/architech/spanav/pkg/dom"
	"github.com/architech/spanav/pkg/fetch"
	"github.com/architech/spanav/pkg/history"
	"github.com/architech/spanav/pkg/pagecache"
	"github.com/architech/spanav/pkg/spa"
)

func TestRouterConfig(t *testing.T) {
	cfg := config.New()
	cfg.Router.Base = "/docs"
	cfg.Router.Origin = "https://site.example"
	cfg.Router.Transition = config.Duration(120 * time.Millisecond)
	cfg.Router.CachePolicy = "lru"
	cfg.Router.CacheTTL = config.Duration(time.Minute)
	cfg.Router.UpdateTitle = false
	cfg.Preload.Enabled = false
	cfg.Preload.Concurrency = 4

	rc := routerConfig(cfg)
	if rc.Base != "/docs" || rc.Origin != "https://site.example" {
		t.Errorf("base/origin = %q %q", rc.Base, rc.Origin)
	}
	if rc.TransitionDuration != 120*time.Millisecond {
		t.Errorf("TransitionDuration = %v", rc.TransitionDuration)
	}
	if rc.CachePolicy != pagecache.PolicyLRU || rc.CacheTTL != time.Minute {
		t.Errorf("cache = %v %v", rc.CachePolicy, rc.CacheTTL)
	}
	if rc.UpdateTitle || rc.EnablePreload {
		t.Error("UpdateTitle and EnablePreload should follow the config")
	}
	if rc.Preload.Concurrency != 4 {
		t.Errorf("Preload.Concurrency = %d", rc.Preload.Concurrency)
	}
	if !rc.ScrollToTop {
		t.Error("ScrollToTop should keep its default")
	}
}

func TestNewTransport(t *testing.T) {
	cfg := config.New()
	if tr := newTransport(cfg); tr != nil {
		t.Errorf("http without origin = %T, want nil", tr)
	}

	cfg.Router.Origin = "https://site.example/"
	httpT, ok := newTransport(cfg).(*fetch.HTTPTransport)
	if !ok {
		t.Fatalf("http transport = %T", newTransport(cfg))
	}
	if httpT.BaseURL != "https://site.example" {
		t.Errorf("BaseURL = %q", httpT.BaseURL)
	}

	cfg.Transport.Kind = config.TransportS3
	cfg.Transport.S3 = config.S3Config{Bucket: "pages", Prefix: "www/", Region: "eu-west-1", Anonymous: true}
	s3T, ok := newTransport(cfg).(*fetch.S3Transport)
	if !ok {
		t.Fatalf("s3 transport = %T", newTransport(cfg))
	}
	if got := s3T.Key("/about"); got != "www/about/index.html" {
		t.Errorf("Key(/about) = %q", got)
	}
}

func TestSetupLoggerWritesFile(t *testing.T) {
	dir := t.TempDir()
	cfg := config.New()
	cfg.Log.File = filepath.Join(dir, "logs", "spanav.log")
	cfg.Log.Level = "debug"

	var stderr bytes.Buffer
	logger, closeLog, err := setupLogger(cfg, &stderr)
	if err != nil {
		t.Fatalf("setupLogger() error = %v", err)
	}
	defer slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	logger.Debug("walk started", "paths", 3)
	closeLog()

	data, err := os.ReadFile(cfg.Log.File)
	if err != nil {
		t.Fatal(err)
	}
	for name, out := range map[string]string{"file": string(data), "stderr": stderr.String()} {
		if !strings.Contains(out, "walk started") || !strings.Contains(out, "paths=3") {
			t.Errorf("%s output = %q", name, out)
		}
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, config.ConfigFileName)
	if err := os.WriteFile(path, []byte(`{"router": {"cachePolicy": "random"}}`), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := loadConfig(&globalFlags{dir: dir})
	if errors.Code(err) != "E122" {
		t.Errorf("loadConfig() = %v, want E122", err)
	}

	_, err = loadConfig(&globalFlags{configPath: filepath.Join(dir, "missing.yaml")})
	if errors.Code(err) != "E141" {
		t.Errorf("loadConfig() = %v, want E141", err)
	}
}

func TestServeOverrides(t *testing.T) {
	cfg := config.New()
	applyServeOverrides(cfg, serveOptions{port: 8081, root: "dist", noWatch: true})
	if cfg.Dev.Port != 8081 || cfg.Dev.Root != "dist" || cfg.Dev.Watch {
		t.Errorf("dev = %+v", cfg.Dev)
	}
	if cfg.Dev.Host != config.DefaultHost {
		t.Errorf("Host = %q", cfg.Dev.Host)
	}
}

func TestVersionShort(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--short"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(out.String()); got != version {
		t.Errorf("version = %q, want %q", got, version)
	}
}

const startDoc = `<html><head><title>Home</title></head><body>
<nav><a href="/about">About</a><a href="/missing">Missing</a></nav>
<main>home</main></body></html>`

func newWalkRouter(t *testing.T) (*spa.Router, *dom.Tree) {
	t.Helper()
	pages := map[string]string{
		"/":      startDoc,
		"/about": `<html><head><title>About</title></head><body><main>about</main></body></html>`,
	}

	tree, err := dom.NewTree(startDoc, "main", "/")
	if err != nil {
		t.Fatal(err)
	}
	rc := spa.DefaultConfig()
	rc.Origin = "https://site.example"
	rc.TransitionDuration = 0
	rc.Logger = slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	rc.Transport = fetch.TransportFunc(func(ctx context.Context, href string, _ http.Header) (*fetch.Response, error) {
		body, ok := pages[href]
		if !ok {
			return &fetch.Response{Status: http.StatusNotFound}, nil
		}
		return &fetch.Response{Status: http.StatusOK, ContentType: "text/html", Body: []byte(body)}, nil
	})

	r, err := spa.New(tree, history.NewMemory("/"), rc)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Route("/posts/:slug", nil); err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(r.Close)
	return r, tree
}

func TestStaticRoutes(t *testing.T) {
	r, _ := newWalkRouter(t)
	if !r.HasRoute("/") {
		t.Error("start page is not a route")
	}

	got := staticRoutes(r)
	want := []string{"/about", "/missing"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("staticRoutes() = %v, want %v", got, want)
	}
}

func TestWalk(t *testing.T) {
	r, tree := newWalkRouter(t)

	report := walk(context.Background(), r, []string{"/about", "/missing"}, true)

	var results []string
	for _, s := range report.Steps {
		results = append(results, s.Path+":"+s.Result)
	}
	if got := strings.Join(results, " "); got != "/about:navigated /:back /missing:fallback" {
		t.Errorf("steps = %s", got)
	}
	if report.Failed != 1 {
		t.Errorf("Failed = %d, want 1", report.Failed)
	}
	if report.Counts["navigated"] != 1 || report.Counts["fallback"] != 1 {
		t.Errorf("Counts = %v", report.Counts)
	}
	if assigned := tree.Assigned(); len(assigned) != 1 || assigned[0] != "/missing" {
		t.Errorf("Assigned() = %v", assigned)
	}

	var out bytes.Buffer
	if err := printReport(&out, report, false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "3 steps, 1 failed") {
		t.Errorf("report = %q", out.String())
	}
}
