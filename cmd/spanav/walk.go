package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/architech/spanav/internal/config"
	"github.com/architech/spanav/pkg/dom/cdp"
	spamw "github.com/architech/spanav/pkg/middleware"
	"github.com/architech/spanav/pkg/spa"
)

type walkOptions struct {
	start  string
	limit  int
	back   bool
	asJSON bool
}

// walkStep is the outcome of one navigation.
type walkStep struct {
	Path     string        `json:"path"`
	Result   string        `json:"result"`
	Duration time.Duration `json:"durationNs"`
	Error    string        `json:"error,omitempty"`
	Back     bool          `json:"back,omitempty"`
}

// walkReport summarizes a walk.
type walkReport struct {
	Steps  []walkStep     `json:"steps"`
	Counts map[string]int `json:"counts"`
	Failed int            `json:"failed"`
}

func walkCmd(flags *globalFlags) *cobra.Command {
	opts := walkOptions{}

	cmd := &cobra.Command{
		Use:   "walk [paths...]",
		Short: "Navigate a live site in Chrome",
		Long: `Open the site in a running Chrome and navigate to every internal link
of the start page (or to the given paths) in place, reporting how each
navigation ended.

Chrome must be started with remote debugging enabled, e.g.
  chrome --headless --remote-debugging-port=9222

Examples:
  spanav walk
  spanav walk /about /services --back
  spanav walk --start=https://staging.example.com/ --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWalk(cmd, flags, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.start, "start", "", "Start URL (default: origin + base)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of pages to visit (0: no limit)")
	cmd.Flags().BoolVar(&opts.back, "back", false, "Go back after each navigation")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the report as JSON")

	return cmd
}

func runWalk(cmd *cobra.Command, flags *globalFlags, opts walkOptions, paths []string) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	if cfg.Transport.Kind == config.TransportHTTP {
		if err := cfg.RequireOrigin(); err != nil {
			return err
		}
	}
	logger, closeLog, err := setupLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := spamw.NewMetrics(
		spamw.WithNamespace(cfg.Metrics.Namespace),
		spamw.WithRegistry(prometheus.NewRegistry()),
	)
	tracing := spamw.NewTracing()

	rc := routerConfig(cfg)
	rc.EnablePreload = false
	rc.Transport = tracing.Transport(newTransport(cfg))
	rc.Observer = spamw.Combine(metrics, tracing)
	rc.OnFetch = metrics.ObserveFetch
	rc.Logger = logger

	browser, err := cdp.Connect(ctx, cdp.Options{
		URL:               cfg.CDP.URL,
		ContainerSelector: cfg.Router.Container,
		Timeout:           cfg.CDP.Timeout.Std(),
		Logger:            logger,
	})
	if err != nil {
		return err
	}
	defer browser.Close()

	start := opts.start
	if start == "" {
		start = strings.TrimRight(cfg.Router.Origin, "/") + cfg.Router.Base + "/"
	}
	if err := browser.Open(ctx, start); err != nil {
		return err
	}

	r, err := spa.New(browser, browser, rc)
	if err != nil {
		return err
	}
	if err := r.Start(ctx); err != nil {
		return err
	}
	defer r.Close()

	if len(paths) == 0 {
		paths = staticRoutes(r)
	}
	if opts.limit > 0 && len(paths) > opts.limit {
		paths = paths[:opts.limit]
	}

	report := walk(ctx, r, paths, opts.back)
	if err := printReport(cmd.OutOrStdout(), report, opts.asJSON); err != nil {
		return err
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d navigations failed", report.Failed, len(report.Steps))
	}
	return nil
}

// staticRoutes returns the registered patterns without parameters,
// except the page the walk starts on.
func staticRoutes(r *spa.Router) []string {
	current := ""
	if cur := r.CurrentRoute(); cur != nil {
		current = cur.Path
	}
	var out []string
	for _, route := range r.Routes() {
		if len(route.ParamNames) > 0 || strings.ContainsAny(route.Pattern, ":*") || route.Pattern == current {
			continue
		}
		out = append(out, route.Pattern)
	}
	return out
}

// walk pushes every path in turn. A step fails when the router fell back
// to a full page load, returned an error, or going back did not return
// to the previous page.
func walk(ctx context.Context, r *spa.Router, paths []string, back bool) walkReport {
	report := walkReport{Counts: make(map[string]int)}
	record := func(step walkStep, result string, failed bool) {
		step.Result = result
		if failed {
			report.Failed++
		}
		report.Counts[result]++
		report.Steps = append(report.Steps, step)
	}

	for _, p := range paths {
		if ctx.Err() != nil {
			break
		}
		start := time.Now()
		res, err := r.Push(ctx, p, nil)
		step := walkStep{Path: p, Duration: time.Since(start)}
		if err != nil {
			step.Error = err.Error()
		}
		record(step, res.String(), err != nil || res == spa.ResultFallback)

		if !back || res != spa.ResultNavigated {
			continue
		}
		prev := r.PreviousRoute()
		start = time.Now()
		err = r.Back()
		r.Wait()
		step = walkStep{Path: p, Duration: time.Since(start), Back: true}
		if cur := r.CurrentRoute(); cur != nil {
			step.Path = cur.Path
		}
		if err == nil && (prev == nil || step.Path != prev.Path) {
			err = fmt.Errorf("back landed on %s", step.Path)
		}
		if err != nil {
			step.Error = err.Error()
			record(step, "failed", true)
			continue
		}
		record(step, "back", false)
	}
	return report
}

func printReport(w io.Writer, report walkReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	for _, s := range report.Steps {
		arrow := "→"
		if s.Back {
			arrow = "←"
		}
		line := fmt.Sprintf("%s %-30s %-10s %s", arrow, s.Path, s.Result, s.Duration.Round(time.Millisecond))
		if s.Error != "" {
			line += "  " + s.Error
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "\n%d steps, %d failed\n", len(report.Steps), report.Failed)
	return nil
}
