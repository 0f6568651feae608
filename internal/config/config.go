package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ErrMissingConfig is returned by Validate when required settings are absent.
var ErrMissingConfig = errors.New("missing required configuration")

const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"

	ProviderExpo = "expo"
	ProviderFCM  = "fcm"
)

// Config holds all configuration for the worker
type Config struct {
	App      AppConfig
	Store    StoreConfig
	DB       DBConfig
	Redis    RedisConfig
	Push     PushConfig
	Expo     ExpoConfig
	Firebase FirebaseConfig
	Daily    DailyConfig
	Schedule ScheduleConfig
	HTTP     HTTPConfig
	CORS     CORSConfig
	Guard    GuardConfig
}

type AppConfig struct {
	Env      string `split_words:"true" default:"development"`
	LogLevel string `split_words:"true" default:"info"` // debug|info|warn|error
	// Timezone is the zone reminder times and completion dates are read in.
	// Empty means the process local zone.
	Timezone string `split_words:"true"`
}

type StoreConfig struct {
	Backend         string        `split_words:"true" default:"postgres"` // postgres|redis
	Table           string        `split_words:"true" default:"kv_store"`
	RedisPrefix     string        `split_words:"true" default:"habit:user:"`
	SnapshotTimeout time.Duration `split_words:"true" default:"30s"`
}

type DBConfig struct {
	Host     string `split_words:"true"`
	Port     string `split_words:"true" default:"5432"`
	User     string `split_words:"true"`
	Password string `split_words:"true"`
	Name     string `split_words:"true"`
	SSLMode  string `split_words:"true" default:"disable"` // DB_SSL_MODE
}

// DSN returns the PostgreSQL connection string
func (d DBConfig) DSN() string {
	return "host=" + d.Host +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.Name +
		" port=" + d.Port +
		" sslmode=" + d.SSLMode
}

// URL returns the PostgreSQL connection URL (for golang-migrate)
func (d DBConfig) URL() string {
	return "postgres://" + d.User + ":" + d.Password +
		"@" + d.Host + ":" + d.Port +
		"/" + d.Name + "?sslmode=" + d.SSLMode
}

type RedisConfig struct {
	Host     string `split_words:"true"`
	Port     string `split_words:"true" default:"6379"`
	Password string `split_words:"true"`
	DB       int    `split_words:"true" default:"0"`
}

// Addr returns the Redis address
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type PushConfig struct {
	Provider     string        `split_words:"true" default:"expo"` // expo|fcm
	BatchSize    int           `split_words:"true" default:"0"`    // 0 = provider limit
	ChunkTimeout time.Duration `split_words:"true" default:"15s"`
	Concurrency  int           `split_words:"true" default:"1"`
	RatePerSec   float64       `split_words:"true" default:"0"`
	DryRun       bool          `split_words:"true" default:"false"`
}

type ExpoConfig struct {
	URL         string `split_words:"true" default:"https://exp.host/--/api/v2/push/send"`
	AccessToken string `split_words:"true"`
}

type FirebaseConfig struct {
	CredentialsFile string `split_words:"true"`
}

type DailyConfig struct {
	WindowMinutes int `split_words:"true" default:"5"`
}

type ScheduleConfig struct {
	DailyCron    string        `split_words:"true" default:"*/5 * * * *"`
	FollowupCron string        `split_words:"true" default:"0 10 * * *"`
	RunTimeout   time.Duration `split_words:"true" default:"10m"`
}

type HTTPConfig struct {
	Addr string `split_words:"true" default:":8080"`
	// AdminToken protects the manual trigger endpoint. Empty disables it.
	AdminToken string `split_words:"true"`
}

type CORSConfig struct {
	Origins []string `split_words:"true" default:"http://localhost:3000"`
}

type GuardConfig struct {
	Enabled bool          `split_words:"true" default:"false"`
	TTL     time.Duration `split_words:"true" default:"26h"`
	Prefix  string        `split_words:"true" default:"habit:sent:"`
}

// Load reads configuration from .env file and environment variables
func Load() (*Config, error) {
	// Load .env file (ignore error if not exists - e.g. in Docker)
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading from environment variables")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the selected store backend and push provider have
// everything they need. Every missing key is reported at once.
func (c *Config) Validate() error {
	var missing []string
	need := func(key, val string) {
		if strings.TrimSpace(val) == "" {
			missing = append(missing, key)
		}
	}

	switch c.Store.Backend {
	case StorePostgres:
		need("DB_HOST", c.DB.Host)
		need("DB_USER", c.DB.User)
		need("DB_NAME", c.DB.Name)
	case StoreRedis:
		need("REDIS_HOST", c.Redis.Host)
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}

	switch c.Push.Provider {
	case ProviderExpo:
		need("EXPO_URL", c.Expo.URL)
	case ProviderFCM:
		if !c.Push.DryRun {
			need("FIREBASE_CREDENTIALS_FILE", c.Firebase.CredentialsFile)
		}
	default:
		return fmt.Errorf("unknown PUSH_PROVIDER %q", c.Push.Provider)
	}

	if c.Guard.Enabled {
		need("REDIS_HOST", c.Redis.Host)
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(dedupe(missing), ", "))
	}
	if c.Daily.WindowMinutes <= 0 {
		return fmt.Errorf("DAILY_WINDOW_MINUTES must be positive, got %d", c.Daily.WindowMinutes)
	}
	return nil
}

// NeedsRedis reports whether any component talks to redis.
func (c *Config) NeedsRedis() bool {
	return c.Store.Backend == StoreRedis || c.Guard.Enabled
}

// Location resolves APP_TIMEZONE, falling back to the process local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.App.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("APP_TIMEZONE: %w", err)
	}
	return loc, nil
}

func dedupe(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	out := ss[:0]
	for _, s := range ss {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
