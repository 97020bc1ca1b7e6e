package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/yoto-session-server/internal/errors"
	"github.com/rs/zerolog/log"
)

const (
	sessionKeyEnvVar = "SESSION_ENCRYPTION_KEY"

	// MinSessionKeyLength is the minimum number of key bytes accepted for cookie encryption.
	MinSessionKeyLength = 32
)

type Session struct{}

var _ SessionConfig = Session{}

func (Session) GetSessionEncryptionKey() string {
	return GetEnv(sessionKeyEnvVar, "")
}

func (Session) GetSessionCookieName() string {
	return GetEnv("SESSION_COOKIE_NAME", "yoto_session")
}

// GetSessionCookieSecure defaults to true everywhere except DEV, which is usually served over plain http.
func (Session) GetSessionCookieSecure() bool {
	return GetEnvBool("SESSION_COOKIE_SECURE", !EnvVars{}.IsDev())
}

// GetSessionCookieMaxAge is also the lifetime granted to refresh tokens.
func (Session) GetSessionCookieMaxAge() time.Duration {
	return GetEnvDuration("SESSION_COOKIE_MAX_AGE", 30*24*time.Hour)
}

func (Session) GetSessionSweepInterval() time.Duration {
	return GetEnvDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute)
}

// GetAccessExpirySkew treats access tokens as expired this long before their
// real expiry. Zero means the plain now >= expiry check.
func (Session) GetAccessExpirySkew() time.Duration {
	return GetEnvDuration("SESSION_ACCESS_EXPIRY_SKEW", 0)
}

// LoadSessionKey returns the cookie encryption secret. The configured value may
// be raw text or base64 (std or url alphabet); either way it must carry at
// least MinSessionKeyLength bytes. Outside DEV a missing key is fatal; in DEV an
// ephemeral key is generated and every restart logs all users out.
func LoadSessionKey(cfg Config) ([]byte, error) {
	raw := cfg.GetSessionEncryptionKey()
	if raw == "" {
		if !cfg.IsDev() {
			return nil, apperrors.Wrapf(apperrors.ErrMissingSessionKey, "[config LoadSessionKey] %s not set in %s", sessionKeyEnvVar, cfg.GetEnv())
		}
		key := make([]byte, MinSessionKeyLength)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("[config LoadSessionKey] generate ephemeral key: %w", err)
		}
		log.Warn().
			Str("env", cfg.GetEnv()).
			Msg("!!! no " + sessionKeyEnvVar + " configured: using an ephemeral key, every restart will invalidate all sessions !!!")
		return key, nil
	}

	key := decodeKey(raw)
	if len(key) < MinSessionKeyLength {
		return nil, apperrors.Wrapf(apperrors.ErrWeakSessionKey, "[config LoadSessionKey] got %d bytes, need %d", len(key), MinSessionKeyLength)
	}
	return key, nil
}

func decodeKey(raw string) []byte {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(raw); err == nil && len(b) >= MinSessionKeyLength {
			return b
		}
	}
	return []byte(raw)
}
