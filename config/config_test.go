package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViper_Defaults(t *testing.T) {
	cfg, err := FromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "ledger.db", cfg.Database.Path)
	assert.Equal(t, 250*time.Millisecond, cfg.Refresh.Debounce)
	assert.Equal(t, "ar", cfg.Display.Language)
	assert.True(t, cfg.Snapshot.Enabled)
	assert.False(t, cfg.Auth.Enabled)
	assert.False(t, cfg.IsProduction())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Aden", loc.String())
}

func TestFromViper_EnvironmentOverrides(t *testing.T) {
	// GIVEN: LEDGER_ environment variables
	t.Setenv("LEDGER_HTTP_PORT", "9090")
	t.Setenv("LEDGER_DATABASE_PATH", ":memory:")
	t.Setenv("LEDGER_REFRESH_DEBOUNCE", "2s")
	t.Setenv("LEDGER_REDIS_ENABLED", "true")
	t.Setenv("LEDGER_APP_ENV", "production")

	// WHEN
	cfg, err := FromViper(viper.New())

	// THEN
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, ":memory:", cfg.Database.Path)
	assert.Equal(t, 2*time.Second, cfg.Refresh.Debounce)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.True(t, cfg.IsProduction())
}

func TestValidate(t *testing.T) {
	t.Run("short jwt secret", func(t *testing.T) {
		t.Setenv("LEDGER_AUTH_ENABLED", "true")
		t.Setenv("LEDGER_AUTH_JWT_SECRET", "short")
		_, err := FromViper(viper.New())
		assert.ErrorContains(t, err, "auth.jwt_secret")
	})

	t.Run("bad port", func(t *testing.T) {
		v := viper.New()
		v.Set("http.port", 70000)
		_, err := FromViper(v)
		assert.ErrorContains(t, err, "http.port")
	})

	t.Run("unknown timezone", func(t *testing.T) {
		v := viper.New()
		v.Set("display.timezone", "Mars/Olympus")
		_, err := FromViper(v)
		assert.ErrorContains(t, err, "display.timezone")
	})

	t.Run("empty timezone is UTC", func(t *testing.T) {
		cfg := &Config{Display: DisplayConfig{}}
		loc, err := cfg.Location()
		require.NoError(t, err)
		assert.Equal(t, time.UTC, loc)
	})
}
