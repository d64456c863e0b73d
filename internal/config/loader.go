package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ValidSessionProviders lists the session provider names known to this build.
// [Validate] warns about others since a third-party registration may supply
// them.
var ValidSessionProviders = []string{"gemini-live"}

// Environment variables that override file values when set and non-empty.
const (
	EnvGeminiAPIKey   = "GEMINI_API_KEY"
	EnvWeatherAPIKey  = "WEATHER_API_KEY"
	EnvVerifyToken    = "WHATSAPP_VERIFY_TOKEN"
	EnvAppSecret      = "WHATSAPP_APP_SECRET"
	EnvPostgresDSN    = "VOXDESK_POSTGRES_DSN"
	EnvLogLevel       = "VOXDESK_LOG_LEVEL"
	EnvStoreBackend   = "VOXDESK_STORE"
	EnvWebhookAddress = "VOXDESK_WEBHOOK_ADDR"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env") into
// the process environment. Variables already set are left alone and missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %q: %w", p, err)
		}
	}
	return nil
}

// Load builds a validated [Config]: defaults, then the YAML file at path (if
// path is non-empty), then environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		ApplyEnv(cfg, os.LookupEnv)
		if err := Validate(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := parse(data, os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r on top of [Default] and validates the
// result. Environment overrides are not applied.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parse(data []byte, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnv(cfg, lookup)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overwrites secrets and a few deployment settings from the
// environment. lookup is usually [os.LookupEnv].
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(&cfg.Session.APIKey, EnvGeminiAPIKey)
	set(&cfg.Weather.APIKey, EnvWeatherAPIKey)
	set(&cfg.Webhook.VerifyToken, EnvVerifyToken)
	set(&cfg.Webhook.AppSecret, EnvAppSecret)
	set(&cfg.Store.PostgresDSN, EnvPostgresDSN)
	set(&cfg.Webhook.ListenAddr, EnvWebhookAddress)

	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.Server.LogLevel = LogLevel(v)
	}
	if v, ok := lookup(EnvStoreBackend); ok && v != "" {
		cfg.Store.Backend = StoreBackend(v)
	}
}

// Validate checks that cfg is coherent and returns every problem found,
// joined.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Profile != "" && !cfg.Profile.IsValid() {
		errs = append(errs, fmt.Errorf("profile %q is invalid; valid values: complaints, weather", cfg.Profile))
	}

	// Session
	if cfg.Session.Provider == "" {
		errs = append(errs, errors.New("session.provider is required"))
	} else if !slices.Contains(ValidSessionProviders, cfg.Session.Provider) {
		slog.Warn("unknown session provider; it must be registered before use",
			"name", cfg.Session.Provider,
			"known", ValidSessionProviders,
		)
	}
	if cfg.Session.ConnectAttempts < 1 {
		errs = append(errs, fmt.Errorf("session.connect_attempts must be at least 1, got %d", cfg.Session.ConnectAttempts))
	}
	if cfg.Session.ConnectBackoff < 0 {
		errs = append(errs, fmt.Errorf("session.connect_backoff must not be negative, got %s", cfg.Session.ConnectBackoff))
	}

	// Audio
	if cfg.Audio.InputSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.input_sample_rate must be positive, got %d", cfg.Audio.InputSampleRate))
	}
	if cfg.Audio.OutputSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.output_sample_rate must be positive, got %d", cfg.Audio.OutputSampleRate))
	}
	if cfg.Audio.FramesPerBuffer <= 0 {
		errs = append(errs, fmt.Errorf("audio.frames_per_buffer must be positive, got %d", cfg.Audio.FramesPerBuffer))
	}
	if cfg.Audio.OutboundQueue < 1 {
		errs = append(errs, fmt.Errorf("audio.outbound_queue must be at least 1, got %d", cfg.Audio.OutboundQueue))
	}
	if cfg.Audio.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("audio.poll_interval must be positive, got %s", cfg.Audio.PollInterval))
	}

	// Store
	switch cfg.Store.Backend {
	case StoreMemory:
	case StorePostgres:
		if cfg.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("store.postgres_dsn is required when store.backend is postgres"))
		}
	case StoreBadger:
		if cfg.Store.BadgerDir == "" {
			errs = append(errs, errors.New("store.badger_dir is required when store.backend is badger"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend %q is invalid; valid values: memory, postgres, badger", cfg.Store.Backend))
	}

	// Weather
	if cfg.Weather.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("weather.timeout must be positive, got %s", cfg.Weather.Timeout))
	}
	if cfg.Weather.BreakerFailures < 1 {
		errs = append(errs, fmt.Errorf("weather.breaker_failures must be at least 1, got %d", cfg.Weather.BreakerFailures))
	}
	if cfg.Weather.BreakerReset <= 0 {
		errs = append(errs, fmt.Errorf("weather.breaker_reset must be positive, got %s", cfg.Weather.BreakerReset))
	}

	// Webhook
	if cfg.Webhook.ListenAddr == "" {
		errs = append(errs, errors.New("webhook.listen_addr is required"))
	}

	return errors.Join(errs...)
}

// ErrMissingSecret is wrapped by [Config.RequireSecrets] failures.
var ErrMissingSecret = errors.New("config: missing secret")

// RequireSecrets reports which of the secrets a command needs are unset.
// Valid names are "session", "weather" and "webhook".
func (c *Config) RequireSecrets(names ...string) error {
	var errs []error
	for _, n := range names {
		switch n {
		case "session":
			if c.Session.APIKey == "" {
				errs = append(errs, fmt.Errorf("%w: session.api_key (or %s)", ErrMissingSecret, EnvGeminiAPIKey))
			}
		case "weather":
			if c.Weather.APIKey == "" {
				errs = append(errs, fmt.Errorf("%w: weather.api_key (or %s)", ErrMissingSecret, EnvWeatherAPIKey))
			}
		case "webhook":
			if c.Webhook.VerifyToken == "" {
				errs = append(errs, fmt.Errorf("%w: webhook.verify_token (or %s)", ErrMissingSecret, EnvVerifyToken))
			}
			if c.Webhook.AppSecret == "" {
				errs = append(errs, fmt.Errorf("%w: webhook.app_secret (or %s)", ErrMissingSecret, EnvAppSecret))
			}
		}
	}
	return errors.Join(errs...)
}
