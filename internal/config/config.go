// Package config loads service configuration from defaults, an optional YAML
// file named by CONFIG_FILE, and environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Map data sources.
const (
	SourceFile     = "file"
	SourceHTTP     = "http"
	SourcePostgres = "postgres"
)

// Config is the complete service configuration.
type Config struct {
	Env        string `yaml:"env"`
	Port       string `yaml:"port"`
	LogLevel   string `yaml:"log_level"`
	RequireTLS bool   `yaml:"require_tls"`

	Map       MapConfig       `yaml:"map"`
	Routing   RoutingConfig   `yaml:"routing"`
	Auth      AuthConfig      `yaml:"auth"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	PubSub    PubSubConfig    `yaml:"pubsub"`
	Warmup    WarmupConfig    `yaml:"warmup"`
}

// MapConfig selects and tunes the road network source.
type MapConfig struct {
	Source        string        `yaml:"source"` // file, http or postgres
	Path          string        `yaml:"path"`
	URL           string        `yaml:"url"`
	Watch         bool          `yaml:"watch"`
	CheckInterval time.Duration `yaml:"check_interval"`
	HTTPTimeout   time.Duration `yaml:"http_timeout"`
	BuildTimeout  time.Duration `yaml:"build_timeout"`
	CellSizeDeg   float64       `yaml:"cell_size_deg"`
}

// RoutingConfig tunes route computation.
type RoutingConfig struct {
	SearchRadiusKm float64       `yaml:"search_radius_km"`
	DefaultK       int           `yaml:"default_k"`
	MaxK           int           `yaml:"max_k"`
	ComputeTimeout time.Duration `yaml:"compute_timeout"`
	CacheSize      int           `yaml:"cache_size"` // negative disables the result cache
}

// AuthConfig configures bearer token validation.
type AuthConfig struct {
	SigningKey  string        `yaml:"-"` // env only
	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
	RequireAuth bool          `yaml:"require_auth"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRatio  float64 `yaml:"sample_ratio"`
}

// PubSubConfig enables the reload subscriber when both fields are set.
type PubSubConfig struct {
	ProjectID    string `yaml:"project_id"`
	Subscription string `yaml:"subscription"`
}

// Enabled reports whether a subscription is configured.
func (c PubSubConfig) Enabled() bool {
	return c.ProjectID != "" && c.Subscription != ""
}

// WarmupConfig lists routes precomputed after every graph reload.
type WarmupConfig struct {
	Pairs       []WarmupPair  `yaml:"pairs"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
}

// WarmupPair is a start/end pair in [lon, lat] order.
type WarmupPair struct {
	Name  string     `yaml:"name"`
	Start [2]float64 `yaml:"start"`
	End   [2]float64 `yaml:"end"`
	K     int        `yaml:"k"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Env:      "development",
		Port:     "8080",
		LogLevel: "info",
		Map: MapConfig{
			Source:        SourceFile,
			Path:          "data/roads.json",
			CheckInterval: 30 * time.Second,
			HTTPTimeout:   30 * time.Second,
			BuildTimeout:  10 * time.Minute,
		},
		Routing: RoutingConfig{
			SearchRadiusKm: 50,
			DefaultK:       3,
			MaxK:           10,
			ComputeTimeout: 10 * time.Second,
			CacheSize:      256,
		},
		Auth: AuthConfig{
			Issuer:   "https://routes.ridefinder.dev",
			Audience: "ridefinder-api",
			TokenTTL: time.Hour,
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "localhost:4317",
			SampleRatio:  1,
		},
		Warmup: WarmupConfig{
			Concurrency: 3,
			Timeout:     30 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, CONFIG_FILE and the environment,
// then validates it.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error

	setString(&c.Env, "APP_ENV")
	setString(&c.Port, "APP_PORT")
	setString(&c.LogLevel, "LOG_LEVEL")
	errs = append(errs, setBool(&c.RequireTLS, "REQUIRE_TLS"))

	setString(&c.Map.Source, "MAP_SOURCE")
	setString(&c.Map.Path, "MAP_DATA_PATH")
	setString(&c.Map.URL, "MAP_DATA_URL")
	errs = append(errs,
		setBool(&c.Map.Watch, "MAP_WATCH"),
		setDuration(&c.Map.CheckInterval, "GRAPH_CHECK_INTERVAL"),
		setDuration(&c.Map.HTTPTimeout, "MAP_HTTP_TIMEOUT"),
		setDuration(&c.Map.BuildTimeout, "GRAPH_BUILD_TIMEOUT"),
		setFloat(&c.Map.CellSizeDeg, "GRAPH_CELL_SIZE_DEG"),
	)

	errs = append(errs,
		setFloat(&c.Routing.SearchRadiusKm, "SEARCH_RADIUS_KM"),
		setInt(&c.Routing.DefaultK, "DEFAULT_K"),
		setInt(&c.Routing.MaxK, "MAX_K"),
		setDuration(&c.Routing.ComputeTimeout, "COMPUTE_TIMEOUT"),
		setInt(&c.Routing.CacheSize, "ROUTE_CACHE_SIZE"),
	)

	setString(&c.Auth.SigningKey, "JWT_SIGNING_KEY")
	setString(&c.Auth.Issuer, "JWT_ISSUER")
	setString(&c.Auth.Audience, "JWT_AUDIENCE")
	errs = append(errs,
		setDuration(&c.Auth.TokenTTL, "JWT_TOKEN_TTL"),
		setBool(&c.Auth.RequireAuth, "REQUIRE_AUTH"),
	)

	errs = append(errs,
		setBool(&c.Telemetry.Enabled, "OTEL_ENABLED"),
		setFloat(&c.Telemetry.SampleRatio, "OTEL_SAMPLE_RATIO"),
	)
	setString(&c.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")

	setString(&c.PubSub.ProjectID, "PUBSUB_PROJECT_ID")
	setString(&c.PubSub.Subscription, "PUBSUB_SUBSCRIPTION")

	errs = append(errs,
		setInt(&c.Warmup.Concurrency, "WARMUP_CONCURRENCY"),
		setDuration(&c.Warmup.Timeout, "WARMUP_TIMEOUT"),
	)

	return errors.Join(errs...)
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	if _, err := strconv.ParseUint(c.Port, 10, 16); err != nil {
		errs = append(errs, fmt.Errorf("APP_PORT %q is not a valid port", c.Port))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q: %w", c.LogLevel, err))
	}

	switch c.Map.Source {
	case SourceFile:
		if c.Map.Path == "" {
			errs = append(errs, errors.New("MAP_DATA_PATH is required for the file source"))
		}
	case SourceHTTP:
		if c.Map.URL == "" {
			errs = append(errs, errors.New("MAP_DATA_URL is required for the http source"))
		}
	case SourcePostgres:
	default:
		errs = append(errs, fmt.Errorf("MAP_SOURCE %q must be file, http or postgres", c.Map.Source))
	}
	if c.Map.Watch && c.Map.Source != SourceFile {
		errs = append(errs, errors.New("MAP_WATCH requires the file source"))
	}

	if c.Routing.SearchRadiusKm <= 0 {
		errs = append(errs, errors.New("SEARCH_RADIUS_KM must be positive"))
	}
	if c.Routing.MaxK <= 0 {
		errs = append(errs, errors.New("MAX_K must be positive"))
	}
	if c.Routing.DefaultK <= 0 || c.Routing.DefaultK > c.Routing.MaxK {
		errs = append(errs, fmt.Errorf("DEFAULT_K must be between 1 and MAX_K (%d)", c.Routing.MaxK))
	}
	if c.Routing.ComputeTimeout <= 0 {
		errs = append(errs, errors.New("COMPUTE_TIMEOUT must be positive"))
	}

	if c.Auth.RequireAuth && c.Auth.SigningKey == "" {
		errs = append(errs, errors.New("REQUIRE_AUTH needs JWT_SIGNING_KEY"))
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, errors.New("OTEL_SAMPLE_RATIO must be within [0, 1]"))
	}

	if (c.PubSub.ProjectID == "") != (c.PubSub.Subscription == "") {
		errs = append(errs, errors.New("PUBSUB_PROJECT_ID and PUBSUB_SUBSCRIPTION must be set together"))
	}

	for i, p := range c.Warmup.Pairs {
		if !validPosition(p.Start) || !validPosition(p.End) {
			errs = append(errs, fmt.Errorf("warmup pair %d (%s) has out-of-range coordinates", i, p.Name))
		}
		if p.K < 0 || p.K > c.Routing.MaxK {
			errs = append(errs, fmt.Errorf("warmup pair %d (%s) k must be between 0 and MAX_K", i, p.Name))
		}
	}

	return errors.Join(errs...)
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func validPosition(p [2]float64) bool {
	return p[0] >= -180 && p[0] <= 180 && p[1] >= -90 && p[1] <= 90
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
