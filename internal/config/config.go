// Package config loads flujos.yaml and applies FLUJOS_* environment overrides.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/flujos/internal/logging"
	"github.com/aretw0/flujos/pkg/domain"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no --config flag is given. A missing default file is not an error.
const DefaultPath = "flujos.yaml"

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Config is the whole application configuration.
type Config struct {
	Addr    string  `yaml:"addr"`
	Marca   string  `yaml:"marca"`
	Log     Log     `yaml:"log"`
	Storage Storage `yaml:"storage"`
	Engine  Engine  `yaml:"engine"`
	Expiry  Expiry  `yaml:"expiry"`
	OpenAI  OpenAI  `yaml:"openai"`
	Privacy Privacy `yaml:"privacy"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Storage selects where flows, instances and logs live.
// With redis, flows stay in Dir; with postgres, instances stay in Dir.
type Storage struct {
	Driver        string        `yaml:"driver"`
	Dir           string        `yaml:"dir"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	RedisPrefix   string        `yaml:"redis_prefix"`
	RedisTTL      time.Duration `yaml:"redis_ttl"`
	PostgresURL   string        `yaml:"postgres_url"`
}

type Engine struct {
	AdapterTimeout time.Duration `yaml:"adapter_timeout"`
	MaxSteps       int           `yaml:"max_steps"`
	LockTTL        time.Duration `yaml:"lock_ttl"`
	MaxInputSize   int           `yaml:"max_input_size"`
}

// Expiry drives the idle instance sweep of `flujos serve`.
type Expiry struct {
	Enabled  bool          `yaml:"enabled"`
	MaxIdle  time.Duration `yaml:"max_idle"`
	Policy   string        `yaml:"policy"`
	Schedule string        `yaml:"schedule"`
}

type OpenAI struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// Privacy protects conversation data at rest.
type Privacy struct {
	// EncryptionKey is a base64 AES-256 key. When set, instance variables are stored encrypted.
	EncryptionKey string `yaml:"encryption_key"`
	// FallbackKeys still decrypt data sealed before a key rotation.
	FallbackKeys []string `yaml:"fallback_keys"`
	// MaskKeys are regular expressions; log data keys matching one are stored as "***".
	MaskKeys []string `yaml:"mask_keys"`
}

// Keys decodes the active and fallback encryption keys.
func (p Privacy) Keys() (active []byte, fallback [][]byte, err error) {
	if p.EncryptionKey == "" {
		return nil, nil, nil
	}
	if active, err = decodeKey(p.EncryptionKey); err != nil {
		return nil, nil, fmt.Errorf("privacy.encryption_key: %w", err)
	}
	for i, k := range p.FallbackKeys {
		key, err := decodeKey(k)
		if err != nil {
			return nil, nil, fmt.Errorf("privacy.fallback_keys[%d]: %w", i, err)
		}
		fallback = append(fallback, key)
	}
	return active, fallback, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Addr:    ":8080",
		Marca:   "Mi Marca",
		Log:     Log{Level: "info", Format: string(logging.FormatText)},
		Storage: Storage{Driver: DriverFile, Dir: ".flujos", RedisPrefix: "flujos:"},
		Engine: Engine{
			AdapterTimeout: 10 * time.Second,
			MaxSteps:       100,
			LockTTL:        30 * time.Second,
		},
		Expiry: Expiry{
			MaxIdle:  72 * time.Hour,
			Policy:   string(domain.InstanceCancelada),
			Schedule: "@every 10m",
		},
		OpenAI: OpenAI{Model: "gpt-4o-mini"},
	}
}

// Load reads path over the defaults, then applies environment overrides and validates.
// An empty path or a missing DefaultPath yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
	default:
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"FLUJOS_ADDR":            &c.Addr,
		"FLUJOS_MARCA":           &c.Marca,
		"FLUJOS_LOG_LEVEL":       &c.Log.Level,
		"FLUJOS_LOG_FORMAT":      &c.Log.Format,
		"FLUJOS_STORAGE_DRIVER":  &c.Storage.Driver,
		"FLUJOS_STORAGE_DIR":     &c.Storage.Dir,
		"FLUJOS_REDIS_ADDR":      &c.Storage.RedisAddr,
		"FLUJOS_REDIS_PASSWORD":  &c.Storage.RedisPassword,
		"FLUJOS_POSTGRES_URL":    &c.Storage.PostgresURL,
		"FLUJOS_EXPIRY_POLICY":   &c.Expiry.Policy,
		"FLUJOS_EXPIRY_SCHEDULE": &c.Expiry.Schedule,
		"FLUJOS_OPENAI_API_KEY":  &c.OpenAI.APIKey,
		"FLUJOS_OPENAI_BASE_URL": &c.OpenAI.BaseURL,
		"FLUJOS_OPENAI_MODEL":    &c.OpenAI.Model,
		"FLUJOS_ENCRYPTION_KEY":  &c.Privacy.EncryptionKey,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"FLUJOS_ADAPTER_TIMEOUT": &c.Engine.AdapterTimeout,
		"FLUJOS_LOCK_TTL":        &c.Engine.LockTTL,
		"FLUJOS_EXPIRY_MAX_IDLE": &c.Expiry.MaxIdle,
	}
	for key, dst := range durations {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}

	ints := map[string]*int{
		"FLUJOS_MAX_STEPS":      &c.Engine.MaxSteps,
		"FLUJOS_MAX_INPUT_SIZE": &c.Engine.MaxInputSize,
	}
	for key, dst := range ints {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}
	if v, ok := lookup("FLUJOS_EXPIRY_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("FLUJOS_EXPIRY_ENABLED: %w", err)
		}
		c.Expiry.Enabled = b
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if f := logging.Format(c.Log.Format); f != logging.FormatText && f != logging.FormatJSON {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	switch c.Storage.Driver {
	case DriverMemory, DriverFile:
	case DriverRedis:
		if c.Storage.RedisAddr == "" {
			errs = append(errs, errors.New("storage.redis_addr is required for the redis driver"))
		}
	case DriverPostgres:
		if c.Storage.PostgresURL == "" {
			errs = append(errs, errors.New("storage.postgres_url is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}

	if c.Engine.MaxSteps <= 0 {
		errs = append(errs, errors.New("engine.max_steps must be positive"))
	}
	if c.Engine.MaxInputSize < 0 {
		errs = append(errs, errors.New("engine.max_input_size must not be negative"))
	}
	if c.Engine.AdapterTimeout <= 0 || c.Engine.LockTTL <= 0 {
		errs = append(errs, errors.New("engine.adapter_timeout and engine.lock_ttl must be positive"))
	}

	if c.Expiry.Enabled {
		if c.Expiry.MaxIdle <= 0 {
			errs = append(errs, errors.New("expiry.max_idle must be positive"))
		}
		if p := domain.InstanceEstado(c.Expiry.Policy); p != domain.InstanceCancelada && p != domain.InstanceError {
			errs = append(errs, fmt.Errorf("expiry.policy must be cancelada or error, got %q", c.Expiry.Policy))
		}
		if _, err := cron.ParseStandard(c.Expiry.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("expiry.schedule: %w", err))
		}
	}
	if _, _, err := c.Privacy.Keys(); err != nil {
		errs = append(errs, err)
	}
	for _, p := range c.Privacy.MaskKeys {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("privacy.mask_keys: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Logger builds the application logger described by the log section.
func (c Config) Logger() *slog.Logger {
	level, _ := logging.ParseLevel(c.Log.Level)
	return logging.NewWithWriter(os.Stderr, level, logging.Format(strings.ToLower(c.Log.Format)))
}
