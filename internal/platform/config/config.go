package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Modos de autenticación soportados.
const (
	AuthModeDev        = "dev"
	AuthModeJWT        = "jwt"
	AuthModeIntrospect = "introspect"
)

// Config es la configuración del servicio, leída de variables de entorno.
type Config struct {
	AppName         string        `envconfig:"APP_NAME" default:"project-tracker"`
	AppAddr         string        `envconfig:"APP_ADDR" default:":8080"`
	ReadTimeout     time.Duration `envconfig:"APP_READ_TIMEOUT" default:"5s"`
	WriteTimeout    time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"10s"`
	ShutdownTimeout time.Duration `envconfig:"APP_SHUTDOWN_TIMEOUT" default:"15s"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	// Vacío: storage en memoria (modo dev).
	DBDSN          string `envconfig:"DB_DSN"`
	DBMaxOpenConns int    `envconfig:"DB_MAX_OPEN_CONNS" default:"10"`
	DBMaxIdleConns int    `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	// Vacío: sin detector de sondeo entre tenants.
	RedisAddr string `envconfig:"REDIS_ADDR"`

	AuthMode             string `envconfig:"AUTH_MODE" default:"dev"`
	AuthJWTSecret        string `envconfig:"AUTH_JWT_SECRET"`
	AuthJWTIssuer        string `envconfig:"AUTH_JWT_ISSUER"`
	AuthIntrospectURL    string `envconfig:"AUTH_INTROSPECT_URL"`
	AuthIntrospectAPIKey string `envconfig:"AUTH_INTROSPECT_API_KEY"`

	PlatformAdminIDs   []string `envconfig:"PLATFORM_ADMIN_IDS"`
	CapabilitiesURL    string   `envconfig:"CAPABILITIES_URL"`
	CapabilitiesAPIKey string   `envconfig:"CAPABILITIES_API_KEY"`

	RateLimitPerMinute int  `envconfig:"RATE_LIMIT_PER_MINUTE" default:"300"`
	SSLRedirect        bool `envconfig:"SSL_REDIRECT" default:"false"`

	ProbeThreshold int64         `envconfig:"PROBE_THRESHOLD" default:"20"`
	ProbeWindow    time.Duration `envconfig:"PROBE_WINDOW" default:"5m"`
}

// Load lee la configuración y valida las combinaciones.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	c.AuthMode = strings.ToLower(strings.TrimSpace(c.AuthMode))
	switch c.AuthMode {
	case AuthModeDev:
	case AuthModeJWT:
		if c.AuthJWTSecret == "" {
			return errors.New("config: AUTH_JWT_SECRET is required when AUTH_MODE=jwt")
		}
	case AuthModeIntrospect:
		if c.AuthIntrospectURL == "" {
			return errors.New("config: AUTH_INTROSPECT_URL is required when AUTH_MODE=introspect")
		}
	default:
		return fmt.Errorf("config: unknown AUTH_MODE %q", c.AuthMode)
	}
	if c.RateLimitPerMinute < 0 {
		return errors.New("config: RATE_LIMIT_PER_MINUTE must be >= 0")
	}
	return nil
}
