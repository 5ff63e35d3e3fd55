package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/architech/spanav/internal/errors"
)

const (
	// ConfigFileName is the name of the JSON configuration file.
	ConfigFileName = "spanav.json"

	// DefaultPort is the default preview server port.
	DefaultPort = 3000

	// DefaultHost is the default preview server host.
	DefaultHost = "localhost"

	// EnvPrefix prefixes environment overrides.
	EnvPrefix = "SPANAV_"
)

// fileNames are tried in order by Load.
var fileNames = []string{ConfigFileName, "spanav.yaml", "spanav.yml"}

// Transport kinds.
const (
	TransportHTTP = "http"
	TransportS3   = "s3"
)

// Config represents the complete spanav configuration.
type Config struct {
	// Router contains navigation settings.
	Router RouterConfig `json:"router" yaml:"router"`

	// Transport selects where pages are fetched from.
	Transport TransportConfig `json:"transport" yaml:"transport"`

	// Preload contains preloader settings.
	Preload PreloadConfig `json:"preload" yaml:"preload"`

	// Dev contains preview server settings.
	Dev DevConfig `json:"dev" yaml:"dev"`

	// Log contains logging settings.
	Log LogConfig `json:"log" yaml:"log"`

	// Metrics contains Prometheus settings.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// CDP contains browser automation settings.
	CDP CDPConfig `json:"cdp" yaml:"cdp"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// RouterConfig contains navigation settings.
type RouterConfig struct {
	// Base is the path prefix the site is mounted under.
	Base string `json:"base,omitempty" yaml:"base,omitempty"`

	// Origin is the site's scheme and host.
	Origin string `json:"origin,omitempty" yaml:"origin,omitempty"`

	// Container is the content container selector (default: "main").
	Container string `json:"container,omitempty" yaml:"container,omitempty"`

	// Transition is the length of each fade step (default: "300ms").
	Transition Duration `json:"transition" yaml:"transition"`

	// CachePages enables the page cache (default: true).
	CachePages bool `json:"cachePages" yaml:"cachePages"`

	// CacheSize is the page cache capacity (default: 10).
	CacheSize int `json:"cacheSize,omitempty" yaml:"cacheSize,omitempty"`

	// CachePolicy is "fifo" (default) or "lru".
	CachePolicy string `json:"cachePolicy,omitempty" yaml:"cachePolicy,omitempty"`

	// CacheTTL expires cached pages; zero keeps them until evicted.
	CacheTTL Duration `json:"cacheTTL,omitempty" yaml:"cacheTTL,omitempty"`

	// ScrollToTop scrolls up after forward navigations (default: true).
	ScrollToTop bool `json:"scrollToTop" yaml:"scrollToTop"`

	// UpdateTitle applies fetched titles (default: true).
	UpdateTitle bool `json:"updateTitle" yaml:"updateTitle"`
}

// TransportConfig selects where pages are fetched from.
type TransportConfig struct {
	// Kind is "http" (default) or "s3".
	Kind string `json:"kind,omitempty" yaml:"kind,omitempty"`

	// Timeout bounds one request (default: "10s").
	Timeout Duration `json:"timeout" yaml:"timeout"`

	// MaxBodySize limits response bodies in bytes (default: 8 MiB).
	MaxBodySize int64 `json:"maxBodySize,omitempty" yaml:"maxBodySize,omitempty"`

	// S3 configures the s3 transport.
	S3 S3Config `json:"s3,omitempty" yaml:"s3,omitempty"`
}

// S3Config configures pages served from an S3 bucket.
type S3Config struct {
	Bucket    string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Prefix    string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Region    string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint  string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Anonymous bool   `json:"anonymous,omitempty" yaml:"anonymous,omitempty"`
}

// PreloadConfig contains preloader settings.
type PreloadConfig struct {
	// Enabled turns hover and visibility preloading on (default: true).
	Enabled bool `json:"enabled" yaml:"enabled"`

	// RateLimit is the maximum preloads per second (default: 5).
	RateLimit float64 `json:"rateLimit,omitempty" yaml:"rateLimit,omitempty"`

	// Concurrency is the maximum preloads in flight (default: 2).
	Concurrency int `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`

	// Timeout bounds one preload (default: "10s").
	Timeout Duration `json:"timeout" yaml:"timeout"`
}

// DevConfig contains preview server settings.
type DevConfig struct {
	// Host is the host to bind to.
	Host string `json:"host,omitempty" yaml:"host,omitempty"`

	// Port is the port to listen on.
	Port int `json:"port,omitempty" yaml:"port,omitempty"`

	// Root is the directory of site files (default: "public").
	Root string `json:"root,omitempty" yaml:"root,omitempty"`

	// Watch invalidates cached pages when site files change (default: true).
	Watch bool `json:"watch" yaml:"watch"`

	// Debounce coalesces bursts of file changes (default: "100ms").
	Debounce Duration `json:"debounce" yaml:"debounce"`

	// CommandTimeout bounds each browser command (default: "5s").
	CommandTimeout Duration `json:"commandTimeout" yaml:"commandTimeout"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is debug, info, warn or error (default: "info").
	Level string `json:"level,omitempty" yaml:"level,omitempty"`

	// Format is "text" (default) or "json".
	Format string `json:"format,omitempty" yaml:"format,omitempty"`

	// File also writes logs to a rotated file when set.
	File string `json:"file,omitempty" yaml:"file,omitempty"`

	// MaxSizeMB rotates the file at this size (default: 10).
	MaxSizeMB int `json:"maxSizeMB,omitempty" yaml:"maxSizeMB,omitempty"`

	// MaxBackups is the number of rotated files kept (default: 3).
	MaxBackups int `json:"maxBackups,omitempty" yaml:"maxBackups,omitempty"`

	// MaxAgeDays removes rotated files older than this (default: 28).
	MaxAgeDays int `json:"maxAgeDays,omitempty" yaml:"maxAgeDays,omitempty"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	// Enabled exposes /metrics on the preview server (default: true).
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Path is the metrics endpoint (default: "/metrics").
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Namespace prefixes metric names (default: "spanav").
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
}

// CDPConfig contains browser automation settings.
type CDPConfig struct {
	// URL is the DevTools endpoint (default: "http://127.0.0.1:9222").
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Timeout bounds one browser command (default: "10s").
	Timeout Duration `json:"timeout" yaml:"timeout"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Router: RouterConfig{
			Container:   "main",
			Transition:  Duration(300 * time.Millisecond),
			CachePages:  true,
			CacheSize:   10,
			CachePolicy: "fifo",
			ScrollToTop: true,
			UpdateTitle: true,
		},
		Transport: TransportConfig{
			Kind:        TransportHTTP,
			Timeout:     Duration(10 * time.Second),
			MaxBodySize: 8 << 20,
		},
		Preload: PreloadConfig{
			Enabled:     true,
			RateLimit:   5,
			Concurrency: 2,
			Timeout:     Duration(10 * time.Second),
		},
		Dev: DevConfig{
			Host:           DefaultHost,
			Port:           DefaultPort,
			Root:           "public",
			Watch:          true,
			Debounce:       Duration(100 * time.Millisecond),
			CommandTimeout: Duration(5 * time.Second),
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "spanav",
		},
		CDP: CDPConfig{
			URL:     "http://127.0.0.1:9222",
			Timeout: Duration(10 * time.Second),
		},
	}
}

// Load reads configuration from dir. It loads dir/.env first, then the
// first of spanav.json, spanav.yaml and spanav.yml found. Without a
// configuration file the defaults are used. Environment overrides are
// applied last.
func Load(dir string) (*Config, error) {
	loadDotEnv(dir)

	for _, name := range fileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}

	cfg := New()
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// LoadFile reads configuration from the specified file path. The format
// follows the extension (.yaml/.yml or JSON).
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E141").
				WithDetail("No configuration found at " + path).
				WithSuggestion("Create spanav.json or run without --config to use defaults")
		}
		return nil, errors.New("E120").Wrap(err)
	}
	expanded := []byte(os.ExpandEnv(string(data)))

	cfg := New()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(expanded, cfg); err != nil {
			return nil, errors.New("E120").
				WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error()).
				WithSuggestion("Check that the file is valid YAML")
		}
	default:
		if err := json.Unmarshal(expanded, cfg); err != nil {
			return nil, errors.New("E120").
				WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error()).
				WithSuggestion("Check that the file is valid JSON")
		}
	}

	cfg.configPath = path
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func loadDotEnv(dir string) {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		slog.Debug("failed to load .env file", "path", path, "error", err)
	}
}

// SaveTo writes the configuration as JSON or YAML, by extension.
func (c *Config) SaveTo(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return errors.New("E120").Wrap(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("E120").Wrap(err)
	}
	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file, or ".".
func (c *Config) Dir() string {
	if c.configPath == "" {
		return "."
	}
	return filepath.Dir(c.configPath)
}

// applyEnv applies SPANAV_* overrides. Malformed numbers are ignored.
func (c *Config) applyEnv() {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str("BASE", &c.Router.Base)
	str("ORIGIN", &c.Router.Origin)
	str("CONTAINER", &c.Router.Container)
	str("CACHE_POLICY", &c.Router.CachePolicy)
	num("CACHE_SIZE", &c.Router.CacheSize)
	flag("CACHE_PAGES", &c.Router.CachePages)
	str("TRANSPORT", &c.Transport.Kind)
	str("S3_BUCKET", &c.Transport.S3.Bucket)
	str("S3_PREFIX", &c.Transport.S3.Prefix)
	str("S3_REGION", &c.Transport.S3.Region)
	str("S3_ENDPOINT", &c.Transport.S3.Endpoint)
	flag("PRELOAD", &c.Preload.Enabled)
	str("HOST", &c.Dev.Host)
	num("PORT", &c.Dev.Port)
	str("ROOT", &c.Dev.Root)
	flag("WATCH", &c.Dev.Watch)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("LOG_FILE", &c.Log.File)
	flag("METRICS", &c.Metrics.Enabled)
	str("CDP_URL", &c.CDP.URL)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Router.Container == "" {
		c.Router.Container = "main"
	}
	if c.Router.CacheSize == 0 {
		c.Router.CacheSize = 10
	}
	if c.Router.CachePolicy == "" {
		c.Router.CachePolicy = "fifo"
	}
	c.Router.CachePolicy = strings.ToLower(c.Router.CachePolicy)
	if c.Transport.Kind == "" {
		c.Transport.Kind = TransportHTTP
	}
	if c.Transport.Timeout == 0 {
		c.Transport.Timeout = Duration(10 * time.Second)
	}
	if c.Transport.MaxBodySize == 0 {
		c.Transport.MaxBodySize = 8 << 20
	}
	if c.Preload.RateLimit == 0 {
		c.Preload.RateLimit = 5
	}
	if c.Preload.Concurrency == 0 {
		c.Preload.Concurrency = 2
	}
	if c.Preload.Timeout == 0 {
		c.Preload.Timeout = Duration(10 * time.Second)
	}
	if c.Dev.Host == "" {
		c.Dev.Host = DefaultHost
	}
	if c.Dev.Port == 0 {
		c.Dev.Port = DefaultPort
	}
	if c.Dev.Root == "" {
		c.Dev.Root = "public"
	}
	if c.Dev.Debounce == 0 {
		c.Dev.Debounce = Duration(100 * time.Millisecond)
	}
	if c.Dev.CommandTimeout == 0 {
		c.Dev.CommandTimeout = Duration(5 * time.Second)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "spanav"
	}
	if c.CDP.Timeout == 0 {
		c.CDP.Timeout = Duration(10 * time.Second)
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	checks := []struct {
		section string
		err     error
	}{
		{"router", validation.ValidateStruct(&c.Router,
			validation.Field(&c.Router.Origin, is.URL),
			validation.Field(&c.Router.Base, validation.Match(basePattern)),
			validation.Field(&c.Router.Container, validation.Required),
			validation.Field(&c.Router.CacheSize, validation.Min(1), validation.Max(10000)),
			validation.Field(&c.Router.CachePolicy, validation.In("fifo", "lru")),
			validation.Field(&c.Router.Transition, validation.Min(Duration(0))),
		)},
		{"transport", validation.ValidateStruct(&c.Transport,
			validation.Field(&c.Transport.Kind, validation.Required, validation.In(TransportHTTP, TransportS3)),
			validation.Field(&c.Transport.Timeout, validation.Min(Duration(0))),
			validation.Field(&c.Transport.MaxBodySize, validation.Min(int64(1))),
		)},
		{"transport.s3", validation.ValidateStruct(&c.Transport.S3,
			validation.Field(&c.Transport.S3.Bucket, validation.When(c.Transport.Kind == TransportS3, validation.Required)),
			validation.Field(&c.Transport.S3.Endpoint, is.URL),
		)},
		{"preload", validation.ValidateStruct(&c.Preload,
			validation.Field(&c.Preload.RateLimit, validation.Min(0.1)),
			validation.Field(&c.Preload.Concurrency, validation.Min(1), validation.Max(64)),
		)},
		{"dev", validation.ValidateStruct(&c.Dev,
			validation.Field(&c.Dev.Port, validation.Min(0), validation.Max(65535)),
			validation.Field(&c.Dev.Root, validation.Required),
		)},
		{"log", validation.ValidateStruct(&c.Log,
			validation.Field(&c.Log.Level, validation.In("debug", "info", "warn", "error")),
			validation.Field(&c.Log.Format, validation.In("text", "json")),
		)},
		{"metrics", validation.ValidateStruct(&c.Metrics,
			validation.Field(&c.Metrics.Path, validation.Required, validation.Match(pathPattern)),
		)},
	}
	for _, check := range checks {
		if check.err != nil {
			return errors.New("E122").
				WithDetail(check.section + ": " + check.err.Error())
		}
	}
	return nil
}

// RequireOrigin checks that an origin is configured, which commands
// fetching pages over HTTP need.
func (c *Config) RequireOrigin() error {
	err := validation.Validate(c.Router.Origin, validation.Required, is.URL)
	if err != nil {
		return errors.New("E122").
			WithDetail("router.origin: " + err.Error()).
			WithSuggestion("Set router.origin or SPANAV_ORIGIN, e.g. https://www.example.com")
	}
	return nil
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// DevAddress returns the address string for the preview server.
func (c *Config) DevAddress() string {
	return c.Dev.Host + ":" + strconv.Itoa(c.Dev.Port)
}

// DevURL returns the full URL for the preview server.
func (c *Config) DevURL() string {
	return "http://" + c.DevAddress()
}

// RootPath returns the absolute path to the site files.
func (c *Config) RootPath() string {
	if filepath.IsAbs(c.Dev.Root) {
		return c.Dev.Root
	}
	return filepath.Join(c.Dir(), c.Dev.Root)
}

// LogFilePath returns the log file path relative to the config, or "".
func (c *Config) LogFilePath() string {
	if c.Log.File == "" || filepath.IsAbs(c.Log.File) {
		return c.Log.File
	}
	return filepath.Join(c.Dir(), c.Log.File)
}
