package app

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func load(t *testing.T) (*Config, error) {
	t.Helper()
	return loadConfig(aconfig.Config{
		EnvPrefix:        "CANTEEN",
		AllowUnknownEnvs: true,
		SkipFlags:        true,
		SkipFiles:        true,
	})
}

func clearPlatformEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PORT", "")
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearPlatformEnv(t)
	t.Setenv("CANTEEN_STORE_DRIVER", "memory")
	t.Setenv("CANTEEN_AUTH_SECRET", testSecret)

	cfg, err := load(t)
	require.NoError(t, err)

	assert.Equal(t, defaultAddr, cfg.Addr)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.True(t, cfg.Store.Migrate)
	assert.Equal(t, DriverMemory, cfg.Cart.Driver)
	assert.Equal(t, 24*time.Hour, cfg.Cart.TTL)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 10, cfg.Auth.BcryptCost)
	assert.False(t, cfg.Auth.AllowAdminSignup)
	assert.Equal(t, 10, cfg.SignIn.Max)
	assert.Equal(t, time.Minute, cfg.SignIn.Window)
	assert.Equal(t, []string{"*"}, cfg.CORS.Origins)
	assert.Equal(t, 3*time.Second, cfg.Graceful.ReadinessDelay)
	assert.Equal(t, 15*time.Second, cfg.Graceful.ShutdownTimeout)
}

func TestLoadConfig_Env(t *testing.T) {
	clearPlatformEnv(t)
	t.Setenv("CANTEEN_ADDR", "127.0.0.1:9000")
	t.Setenv("CANTEEN_STORE_DATABASE_URL", "postgres://canteen@db/canteen")
	t.Setenv("CANTEEN_CART_DRIVER", "redis")
	t.Setenv("CANTEEN_CART_REDIS_DB", "2")
	t.Setenv("CANTEEN_AUTH_SECRET", testSecret)
	t.Setenv("CANTEEN_AUTH_TOKEN_TTL", "2h")
	t.Setenv("CANTEEN_AUTH_ALLOW_ADMIN_SIGNUP", "true")

	cfg, err := load(t)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "postgres://canteen@db/canteen", cfg.Store.DatabaseURL)
	assert.Equal(t, DriverRedis, cfg.Cart.Driver)
	assert.Equal(t, 2, cfg.Cart.RedisDB)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.True(t, cfg.Auth.AllowAdminSignup)
}

func TestLoadConfig_PlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "5000")
	t.Setenv("CANTEEN_AUTH_SECRET", testSecret)

	cfg, err := load(t)
	require.NoError(t, err)

	assert.Equal(t, "postgres://platform/db", cfg.Store.DatabaseURL)
	assert.Equal(t, "0.0.0.0:5000", cfg.Addr)
}

func TestLoadConfig_Invalid(t *testing.T) {
	for _, tt := range []struct {
		name string
		env  map[string]string
		msg  string
	}{
		{
			name: "MissingDatabaseURL",
			env:  map[string]string{"CANTEEN_AUTH_SECRET": testSecret},
			msg:  "database URL is required",
		},
		{
			name: "ShortSecret",
			env:  map[string]string{"CANTEEN_STORE_DRIVER": "memory", "CANTEEN_AUTH_SECRET": "short"},
			msg:  "auth secret must be at least 32 bytes",
		},
		{
			name: "UnknownStore",
			env:  map[string]string{"CANTEEN_STORE_DRIVER": "mongo", "CANTEEN_AUTH_SECRET": testSecret},
			msg:  `unknown store driver "mongo"`,
		},
		{
			name: "UnknownCart",
			env: map[string]string{
				"CANTEEN_STORE_DRIVER": "memory",
				"CANTEEN_CART_DRIVER":  "memcached",
				"CANTEEN_AUTH_SECRET":  testSecret,
			},
			msg: `unknown cart driver "memcached"`,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			clearPlatformEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := load(t)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://canteen.example"})
	for _, tt := range []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://canteen.example", true},
		{"https://CANTEEN.example", true},
		{"https://evil.example", false},
	} {
		r := httptest.NewRequest("GET", "/api/orders/feed", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, check(r), tt.origin)
	}

	wildcard := originChecker([]string{"*"})
	r := httptest.NewRequest("GET", "/api/orders/feed", nil)
	r.Header.Set("Origin", "https://evil.example")
	assert.True(t, wildcard(r))
}
