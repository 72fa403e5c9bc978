package config

import (
	"errors"
	"strings"
	"time"
)

const (
	SessionStoreMemory = "memory"
	SessionStoreSQLite = "sqlite"
	SessionStoreRedis  = "redis"

	GuardModeLocal  = "local"
	GuardModeVerify = "verify"

	devSessionSecret = "dev-session-secret-change-me"
)

var ErrDefaultSessionSecret = errors.New("SESSION_SECRET must be set outside DEV")

type SecurityConfig interface {
	GetSessionSecret() string
	GetMaxSessionAge() time.Duration
	GetSessionStore() string
	GetSQLitePath() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetGuardMode() string
	GetGuardVerifyTTL() time.Duration
	GetEnableRateLimiting() bool
	GetLoginRatePerMinute() int
	GetLoginBurst() int
	GetTrustedProxies() []string
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetSessionSecret signs console cookies and seals stored backend credentials
func (Security) GetSessionSecret() string {
	return GetEnv("SESSION_SECRET", devSessionSecret)
}

// CheckSessionSecret refuses the built in secret unless the console runs in DEV
func CheckSessionSecret(c Config) error {
	if c.GetEnv() != "DEV" && c.GetSessionSecret() == devSessionSecret {
		return ErrDefaultSessionSecret
	}
	return nil
}

// GetMaxSessionAge matches the backend refresh token lifetime
func (Security) GetMaxSessionAge() time.Duration {
	return GetEnvDuration("SESSION_MAX_AGE", 7*24*time.Hour)
}

func (Security) GetSessionStore() string {
	return GetEnv("SESSION_STORE", SessionStoreMemory)
}

func (Security) GetSQLitePath() string {
	return GetEnv("SQLITE_PATH", EnvVars{}.GetDataFolder()+"/sessions.db")
}

func (Security) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", "localhost:6379")
}

func (Security) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}

func (Security) GetRedisDB() int {
	return GetEnvInt("REDIS_DB", 0)
}

func (Security) GetGuardMode() string {
	if GetEnv("GUARD_MODE", GuardModeLocal) == GuardModeVerify {
		return GuardModeVerify
	}
	return GuardModeLocal
}

func (Security) GetGuardVerifyTTL() time.Duration {
	return GetEnvDuration("GUARD_VERIFY_TTL", time.Minute)
}

func (Security) GetEnableRateLimiting() bool {
	return GetEnvBool("LOGIN_RATE_LIMIT", true)
}

func (Security) GetLoginRatePerMinute() int {
	return GetEnvInt("LOGIN_RATE_PER_MINUTE", 10)
}

func (Security) GetLoginBurst() int {
	return GetEnvInt("LOGIN_BURST", 5)
}

// GetTrustedProxies reads a comma separated TRUSTED_PROXIES list of IPs or
// CIDRs whose X-Forwarded-For header is believed
func (Security) GetTrustedProxies() []string {
	var proxies []string
	for _, p := range strings.Split(GetEnv("TRUSTED_PROXIES", ""), ",") {
		if p = strings.TrimSpace(p); p != "" {
			proxies = append(proxies, p)
		}
	}
	return proxies
}
