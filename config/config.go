// Package config loads server settings from defaults, an optional YAML file
// and environment variables, in that order.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

const (
	DriverMemory = "memory"
	DriverTable  = "table"
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

type Config struct {
	Env            string        `yaml:"env"`
	Port           int           `yaml:"port"`
	Debug          bool          `yaml:"debug"`
	Storage        Storage       `yaml:"storage"`
	Auth           Auth          `yaml:"auth"`
	Events         Events        `yaml:"events"`
	Redis          Redis         `yaml:"redis"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
}

type Storage struct {
	Driver           string `yaml:"driver"`
	ConnectionString string `yaml:"connection_string"`
	SQLitePath       string `yaml:"sqlite_path"`
	FixturesFile     string `yaml:"fixtures_file"`
	Tables           Tables `yaml:"tables"`
}

type Tables struct {
	Boards string `yaml:"boards"`
	Lists  string `yaml:"lists"`
	Cards  string `yaml:"cards"`
	Users  string `yaml:"users"`
}

type Auth struct {
	Enabled       bool          `yaml:"enabled"`
	LocalSecret   string        `yaml:"local_secret"`
	Auth0Domain   string        `yaml:"auth0_domain"`
	Auth0Audience string        `yaml:"auth0_audience"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
	JWKSCacheTTL  time.Duration `yaml:"jwks_cache_ttl"`
}

// Events controls change notifications. An empty Queue disables the queue sink.
type Events struct {
	Queue       string        `yaml:"queue"`
	Concurrency int           `yaml:"concurrency"`
	Workers     int           `yaml:"workers"`
	Buffer      int           `yaml:"buffer"`
	Timeout     time.Duration `yaml:"timeout"`
	Live        bool          `yaml:"live"`
}

type Redis struct {
	ConnectionString string `yaml:"connection_string"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Env:  "production",
		Port: 8080,
		Storage: Storage{
			Driver:     DriverMemory,
			SQLitePath: "boards.db",
			Tables: Tables{
				Boards: "boards",
				Lists:  "lists",
				Cards:  "cards",
				Users:  "users",
			},
		},
		Auth: Auth{
			TokenTTL:     7 * 24 * time.Hour,
			JWKSCacheTTL: 15 * time.Minute,
		},
		Events: Events{
			Concurrency: 8,
			Timeout:     30 * time.Second,
			Live:        true,
		},
		IdempotencyTTL: 24 * time.Hour,
	}
}

// Load builds the configuration. path may be empty, in which case CONFIG_FILE
// is consulted; a missing file is only an error when one was named.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	str := map[string]*string{
		"APP_ENV":                   &cfg.Env,
		"STORAGE_DRIVER":            &cfg.Storage.Driver,
		"STORAGE_CONNECTION_STRING": &cfg.Storage.ConnectionString,
		"SQLITE_PATH":               &cfg.Storage.SQLitePath,
		"FIXTURES_FILE":             &cfg.Storage.FixturesFile,
		"BOARDS_TABLE":              &cfg.Storage.Tables.Boards,
		"LISTS_TABLE":               &cfg.Storage.Tables.Lists,
		"CARDS_TABLE":               &cfg.Storage.Tables.Cards,
		"USERS_TABLE":               &cfg.Storage.Tables.Users,
		"REDIS_CONNECTION_STRING":   &cfg.Redis.ConnectionString,
		"EVENTS_QUEUE":              &cfg.Events.Queue,
		"LOCAL_AUTH_SHARED_SECRET":  &cfg.Auth.LocalSecret,
		"AUTH0_DOMAIN":              &cfg.Auth.Auth0Domain,
		"AUTH0_AUDIENCE":            &cfg.Auth.Auth0Audience,
	}
	for key, dst := range str {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"DEBUG":        &cfg.Debug,
		"AUTH_ENABLED": &cfg.Auth.Enabled,
		"EVENTS_LIVE":  &cfg.Events.Live,
	}
	for key, dst := range bools {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = b
		}
	}

	ints := map[string]*int{
		"EVENTS_CONCURRENCY": &cfg.Events.Concurrency,
		"EVENTS_WORKERS":     &cfg.Events.Workers,
		"EVENTS_BUFFER":      &cfg.Events.Buffer,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = n
		}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = os.Getenv("FUNCTIONS_CUSTOMHANDLER_PORT")
	}
	if port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = n
	}

	durations := map[string]*time.Duration{
		"TOKEN_TTL":       &cfg.Auth.TokenTTL,
		"IDEMPOTENCY_TTL": &cfg.IdempotencyTTL,
		"EVENTS_TIMEOUT":  &cfg.Events.Timeout,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = d
		}
	}
	return nil
}

// Validate checks that the selected features have what they need.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverTable:
		if c.Storage.ConnectionString == "" {
			errs = append(errs, errors.New("table storage requires STORAGE_CONNECTION_STRING"))
		}
		t := c.Storage.Tables
		if t.Boards == "" || t.Lists == "" || t.Cards == "" || t.Users == "" {
			errs = append(errs, errors.New("table storage requires all table names"))
		}
	case DriverRedis:
		if c.Redis.ConnectionString == "" {
			errs = append(errs, errors.New("redis storage requires REDIS_CONNECTION_STRING"))
		}
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite storage requires SQLITE_PATH"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if c.Auth.Enabled && c.Auth.LocalSecret == "" && (c.Auth.Auth0Domain == "" || c.Auth.Auth0Audience == "") {
		errs = append(errs, errors.New("auth requires LOCAL_AUTH_SHARED_SECRET or AUTH0_DOMAIN and AUTH0_AUDIENCE"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("token ttl must be positive"))
	}
	if c.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("idempotency ttl must be positive"))
	}
	if c.Events.Queue != "" && c.Storage.ConnectionString == "" {
		errs = append(errs, errors.New("events queue requires STORAGE_CONNECTION_STRING"))
	}
	if c.Events.Concurrency < 0 || c.Events.Workers < 0 || c.Events.Buffer < 0 {
		errs = append(errs, errors.New("event pool sizes must not be negative"))
	}
	return errors.Join(errs...)
}

// Development reports whether error responses may carry internal detail.
func (c *Config) Development() bool {
	return strings.EqualFold(c.Env, "development")
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// LocalAuth reports whether tokens are issued and verified with the shared secret.
func (c *Config) LocalAuth() bool {
	return c.Auth.Enabled && c.Auth.LocalSecret != ""
}

// JWKSURL is the Auth0 key set location.
func (c *Config) JWKSURL() string {
	return fmt.Sprintf("https://%s/.well-known/jwks.json", c.Auth.Auth0Domain)
}

// Auth0Issuer is the issuer claim Auth0 puts on its tokens.
func (c *Config) Auth0Issuer() string {
	return "https://" + c.Auth.Auth0Domain + "/"
}

// RedisOptions parses either a redis:// URL or an Azure style
// "host:port,password=...,ssl=true" connection string.
func RedisOptions(conn string) (*redis.Options, error) {
	if conn == "" {
		return nil, errors.New("empty redis connection string")
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	if opts.Addr == "" || strings.Contains(opts.Addr, "=") {
		return nil, fmt.Errorf("invalid redis connection string %q", conn)
	}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(strings.TrimSpace(kv[1]), "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts, nil
}
