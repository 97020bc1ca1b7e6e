package config_test

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/yoto-session-server/internal/config"
	apperrors "github.com/jrsteele09/yoto-session-server/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	for _, name := range []string{"ENV", "PORT", "SESSION_COOKIE_NAME", "SESSION_COOKIE_SECURE", "SESSION_COOKIE_MAX_AGE", "YOTO_AUTH_URL", "YOTO_TOKEN_URL"} {
		t.Setenv(name, "")
	}
	cfg := config.New()

	require.True(t, cfg.IsDev())
	require.Equal(t, ":8080", cfg.GetPort())
	require.Equal(t, "yoto_session", cfg.GetSessionCookieName())
	require.False(t, cfg.GetSessionCookieSecure())
	require.Equal(t, 30*24*time.Hour, cfg.GetSessionCookieMaxAge())
	require.Equal(t, "https://login.yotoplay.com/oauth/token", cfg.GetTokenURL())
	require.Equal(t, 10*time.Second, cfg.GetRefreshTimeout())

	t.Run("secure cookie outside dev", func(t *testing.T) {
		t.Setenv("ENV", "prod")
		require.Equal(t, "PROD", cfg.GetEnv())
		require.True(t, cfg.GetSessionCookieSecure())

		t.Setenv("SESSION_COOKIE_SECURE", "false")
		require.False(t, cfg.GetSessionCookieSecure())
	})
}

func TestGetEnvDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"":      time.Minute,
		"90s":   90 * time.Second,
		"120":   2 * time.Minute,
		"soon":  time.Minute,
		"-5s":   time.Minute,
		"1h30m": 90 * time.Minute,
	}
	for raw, want := range cases {
		t.Run(raw, func(t *testing.T) {
			t.Setenv("TEST_DURATION", raw)
			require.Equal(t, want, config.GetEnvDuration("TEST_DURATION", time.Minute))
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("TEST_BOOL", "")
	require.True(t, config.GetEnvBool("TEST_BOOL", true))
	t.Setenv("TEST_BOOL", "0")
	require.False(t, config.GetEnvBool("TEST_BOOL", true))
	t.Setenv("TEST_BOOL", "maybe")
	require.True(t, config.GetEnvBool("TEST_BOOL", true))
}

func TestLoadSessionKey(t *testing.T) {
	t.Run("missing outside dev is fatal", func(t *testing.T) {
		t.Setenv("ENV", "PROD")
		t.Setenv("SESSION_ENCRYPTION_KEY", "")
		_, err := config.LoadSessionKey(config.New())
		require.ErrorIs(t, err, apperrors.ErrMissingSessionKey)
	})

	t.Run("missing in dev is ephemeral", func(t *testing.T) {
		t.Setenv("ENV", "DEV")
		t.Setenv("SESSION_ENCRYPTION_KEY", "")
		first, err := config.LoadSessionKey(config.New())
		require.NoError(t, err)
		require.Len(t, first, config.MinSessionKeyLength)

		second, err := config.LoadSessionKey(config.New())
		require.NoError(t, err)
		require.NotEqual(t, first, second)
	})

	t.Run("short key is rejected", func(t *testing.T) {
		t.Setenv("ENV", "PROD")
		t.Setenv("SESSION_ENCRYPTION_KEY", "too-short")
		_, err := config.LoadSessionKey(config.New())
		require.ErrorIs(t, err, apperrors.ErrWeakSessionKey)
	})

	t.Run("raw key", func(t *testing.T) {
		t.Setenv("ENV", "PROD")
		raw := strings.Repeat("x", 40)
		t.Setenv("SESSION_ENCRYPTION_KEY", raw)
		key, err := config.LoadSessionKey(config.New())
		require.NoError(t, err)
		require.Equal(t, []byte(raw), key)
	})

	t.Run("base64 key", func(t *testing.T) {
		t.Setenv("ENV", "PROD")
		want := []byte(strings.Repeat("\x01\x02\x03\x04", 8))
		t.Setenv("SESSION_ENCRYPTION_KEY", base64.StdEncoding.EncodeToString(want))
		key, err := config.LoadSessionKey(config.New())
		require.NoError(t, err)
		require.Equal(t, want, key)
	})
}

func TestValidateOAuth(t *testing.T) {
	t.Setenv("YOTO_TOKEN_URL", "")
	t.Setenv("YOTO_API_BASE_URL", "")

	t.Setenv("YOTO_CLIENT_ID", "")
	require.ErrorIs(t, config.ValidateOAuth(config.New()), apperrors.ErrInvalidConfig)

	t.Setenv("YOTO_CLIENT_ID", "client")
	require.NoError(t, config.ValidateOAuth(config.New()))

	t.Setenv("YOTO_TOKEN_URL", "not a url")
	require.ErrorIs(t, config.ValidateOAuth(config.New()), apperrors.ErrInvalidConfig)
}
