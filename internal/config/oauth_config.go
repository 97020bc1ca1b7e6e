package config

import (
	"net/url"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/yoto-session-server/internal/errors"
)

type OAuthConfig interface {
	GetClientID() string
	GetClientSecret() string
	GetAuthURL() string
	GetTokenURL() string
	GetIssuerURL() string
	GetRedirectURL() string
	GetAPIBaseURL() string
	GetRefreshTimeout() time.Duration
	GetAPITimeout() time.Duration
	GetDefaultAccessTokenExpiry() time.Duration
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

func (OAuth) GetClientID() string {
	return GetEnv("YOTO_CLIENT_ID", "")
}

func (OAuth) GetClientSecret() string {
	return GetEnv("YOTO_CLIENT_SECRET", "")
}

func (OAuth) GetAuthURL() string {
	return strings.TrimRight(GetEnv("YOTO_AUTH_URL", "https://login.yotoplay.com"), "/")
}

func (o OAuth) GetTokenURL() string {
	return GetEnv("YOTO_TOKEN_URL", o.GetAuthURL()+"/oauth/token")
}

// GetIssuerURL enables OIDC discovery of the token endpoint when set.
func (OAuth) GetIssuerURL() string {
	return GetEnv("OAUTH_ISSUER_URL", "")
}

func (OAuth) GetRedirectURL() string {
	return GetEnv("YOTO_REDIRECT_URL", "http://localhost:8080/auth/callback")
}

func (OAuth) GetAPIBaseURL() string {
	return strings.TrimRight(GetEnv("YOTO_API_BASE_URL", "https://api.yotoplay.com"), "/")
}

func (OAuth) GetRefreshTimeout() time.Duration {
	return GetEnvDuration("YOTO_REFRESH_TIMEOUT", 10*time.Second)
}

func (OAuth) GetAPITimeout() time.Duration {
	return GetEnvDuration("YOTO_API_TIMEOUT", 30*time.Second)
}

// GetDefaultAccessTokenExpiry is used when the provider reports no lifetime at all.
func (OAuth) GetDefaultAccessTokenExpiry() time.Duration {
	return 10 * time.Minute
}

// ValidateOAuth checks the settings every token call depends on.
func ValidateOAuth(cfg OAuthConfig) error {
	if cfg.GetClientID() == "" {
		return apperrors.Wrapf(apperrors.ErrInvalidConfig, "[config ValidateOAuth] YOTO_CLIENT_ID is required")
	}
	for name, raw := range map[string]string{
		"YOTO_TOKEN_URL":    cfg.GetTokenURL(),
		"YOTO_API_BASE_URL": cfg.GetAPIBaseURL(),
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return apperrors.Wrapf(apperrors.ErrInvalidConfig, "[config ValidateOAuth] %s must be an absolute URL, got %q", name, raw)
		}
	}
	return nil
}
