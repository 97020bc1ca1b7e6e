package config

import "time"

type Config interface {
	EnvConfig
	SessionConfig
	OAuthConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	IsDev() bool
}

type SessionConfig interface {
	GetSessionEncryptionKey() string
	GetSessionCookieName() string
	GetSessionCookieSecure() bool
	GetSessionCookieMaxAge() time.Duration
	GetSessionSweepInterval() time.Duration
	GetAccessExpirySkew() time.Duration
}

type mainConfig struct {
	EnvVars
	Session
	OAuth
}

func New() Config {
	return mainConfig{}
}
