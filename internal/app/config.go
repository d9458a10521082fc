package app

import (
	"io/fs"
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

// Storage and cart drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
	DriverRedis    = "redis"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (CANTEEN_ prefix), flags, a .env file or YAML.
type Config struct {
	Addr     string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Store    StoreConfig
	Cart     CartConfig
	Auth     AuthConfig
	SignIn   RateLimitConfig
	CORS     CORSConfig
	Graceful GracefulConfig
}

// StoreConfig selects the document gateway.
type StoreConfig struct {
	Driver      string `default:"postgres" usage:"Document store: postgres or memory"`
	DatabaseURL string `env:"DATABASE_URL" usage:"PostgreSQL connection URL (CANTEEN_STORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Migrate     bool   `default:"true" usage:"Apply embedded migrations on start"`
}

// CartConfig selects where carts live between requests.
type CartConfig struct {
	Driver        string        `default:"memory" usage:"Cart store: memory or redis"`
	RedisAddr     string        `default:"localhost:6379" usage:"Redis address" flag:"redis-addr"`
	RedisPassword string        `usage:"Redis password"`
	RedisDB       int           `env:"REDIS_DB" default:"0" usage:"Redis database number"`
	Prefix        string        `default:"canteen" usage:"Redis key prefix"`
	TTL           time.Duration `env:"TTL" default:"24h" usage:"Idle cart lifetime"`
}

// AuthConfig controls tokens and password hashing.
type AuthConfig struct {
	Secret           string        `usage:"HMAC secret for bearer tokens (at least 32 bytes)"`
	TokenTTL         time.Duration `env:"TOKEN_TTL" default:"24h" usage:"Bearer token lifetime"`
	BcryptCost       int           `default:"10" usage:"bcrypt cost for new passwords"`
	AllowAdminSignup bool          `default:"false" usage:"Allow registering admin accounts" flag:"allow-admin-signup"`
}

// RateLimitConfig throttles sign-in attempts per client IP.
type RateLimitConfig struct {
	Max    int           `default:"10" usage:"Sign-in attempts per window"`
	Window time.Duration `default:"1m" usage:"Sign-in rate limit window"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers. The same
// origins are accepted for the order feed WebSocket.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads .env, then configuration from environment variables,
// flags and YAML files, and applies platform defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}
	return loadConfig(aconfig.Config{
		EnvPrefix: "CANTEEN",
		// seed-db reads CANTEEN_SEED_* from the same environment.
		AllowUnknownEnvs: true,
		Files:            []string{"config.yaml", "/etc/canteen/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps the DATABASE_URL and PORT variables set by
// hosting platforms onto the configuration.
func (c *Config) applyPlatformDefaults() {
	if c.Store.DatabaseURL == "" {
		c.Store.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return errors.New("database URL is required: set CANTEEN_STORE_DATABASE_URL or DATABASE_URL")
		}
	case DriverMemory:
	default:
		return errors.Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch c.Cart.Driver {
	case DriverMemory, DriverRedis:
	default:
		return errors.Errorf("unknown cart driver %q", c.Cart.Driver)
	}

	if len(c.Auth.Secret) < 32 {
		return errors.New("auth secret must be at least 32 bytes: set CANTEEN_AUTH_SECRET")
	}
	return nil
}
