package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/architech/spanav/internal/config"
	"github.com/architech/spanav/internal/errors"
	"github.com/architech/spanav/pkg/fetch"
	"github.com/architech/spanav/pkg/pagecache"
	"github.com/architech/spanav/pkg/spa"
)

// loadConfig loads and validates the configuration named by the flags.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if flags.configPath != "" {
		cfg, err = config.LoadFile(flags.configPath)
	} else {
		cfg, err = config.Load(flags.dir)
	}
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogger installs the default slog logger. Logs go to stderr and,
// when a log file is configured, to a rotated file as well. The returned
// func closes the file.
func setupLogger(cfg *config.Config, stderr io.Writer) (*slog.Logger, func(), error) {
	w := stderr
	closeLog := func() {}
	if file := cfg.LogFilePath(); file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return nil, nil, errors.New("E120").Wrap(err).WithDetail("creating log directory")
		}
		logWriter := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAgeDays,
			Compress:   true,
		}
		w = io.MultiWriter(stderr, logWriter)
		closeLog = func() { logWriter.Close() }
	}

	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	var h slog.Handler
	if cfg.Log.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger, closeLog, nil
}

// routerConfig converts the file configuration to a router configuration.
// Transport, observers and logger are left to the caller.
func routerConfig(cfg *config.Config) *spa.Config {
	rc := spa.DefaultConfig()
	rc.Base = cfg.Router.Base
	rc.Origin = cfg.Router.Origin
	rc.ContainerSelector = cfg.Router.Container
	rc.TransitionDuration = cfg.Router.Transition.Std()
	rc.CachePages = cfg.Router.CachePages
	rc.CacheSize = cfg.Router.CacheSize
	rc.CachePolicy = pagecache.Policy(cfg.Router.CachePolicy)
	rc.CacheTTL = cfg.Router.CacheTTL.Std()
	rc.ScrollToTop = cfg.Router.ScrollToTop
	rc.UpdateTitle = cfg.Router.UpdateTitle
	rc.EnablePreload = cfg.Preload.Enabled
	rc.Preload = spa.PreloadConfig{
		RateLimit:   cfg.Preload.RateLimit,
		Concurrency: cfg.Preload.Concurrency,
		Timeout:     cfg.Preload.Timeout.Std(),
	}
	return rc
}

// newTransport builds the configured page transport. With the http kind
// and no origin it returns nil, leaving the choice to the caller.
func newTransport(cfg *config.Config) fetch.Transport {
	switch cfg.Transport.Kind {
	case config.TransportS3:
		client := fetch.NewS3Client(fetch.S3ClientOptions{
			Region:    cfg.Transport.S3.Region,
			Endpoint:  cfg.Transport.S3.Endpoint,
			Anonymous: cfg.Transport.S3.Anonymous,
		})
		t := fetch.NewS3Transport(client, cfg.Transport.S3.Bucket, cfg.Transport.S3.Prefix)
		t.MaxBodySize = cfg.Transport.MaxBodySize
		return t
	default:
		if cfg.Router.Origin == "" {
			return nil
		}
		t := fetch.NewHTTPTransport(cfg.Router.Origin, cfg.Transport.Timeout.Std())
		t.MaxBodySize = cfg.Transport.MaxBodySize
		return t
	}
}
