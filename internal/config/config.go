// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreDriverFile     = "file"
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address the gRPC health service listens on (e.g. :8081). Empty disables it.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`

	// StoreDriver selects the durable store: file (single JSON document), postgres or sqlite.
	StoreDriver string `mapstructure:"STORE_DRIVER"`
	// StorePath is the JSON document path (file) or database file path (sqlite).
	StorePath string `mapstructure:"STORE_PATH"`
	// DatabaseURL is the Postgres DSN; required when StoreDriver is postgres.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// StoreAutoMigrate applies embedded migrations at startup for SQL drivers.
	StoreAutoMigrate bool `mapstructure:"STORE_AUTO_MIGRATE"`

	// RPID is the WebAuthn relying party id (a registrable domain, e.g. "localhost").
	RPID string `mapstructure:"RP_ID"`
	// RPDisplayName is the relying party name shown by authenticators.
	RPDisplayName string `mapstructure:"RP_DISPLAY_NAME"`
	// RPOrigins is a comma-separated list of origins allowed in client data.
	RPOrigins string `mapstructure:"RP_ORIGINS"`
	// ChallengeTTL is how long a ceremony challenge stays completable (e.g. "2m").
	ChallengeTTL time.Duration `mapstructure:"CHALLENGE_TTL"`

	// OTPTTL is the emailed code lifetime (e.g. "5m").
	OTPTTL time.Duration `mapstructure:"OTP_TTL"`
	// OTPSingleUse deletes an emailed code on its first successful verification.
	OTPSingleUse bool `mapstructure:"OTP_SINGLE_USE"`
	// TOTPIssuer is the issuer label placed in otpauth:// provisioning URIs.
	TOTPIssuer string `mapstructure:"TOTP_ISSUER"`

	// SessionTTL is the lifetime of an issued session (e.g. "12h").
	SessionTTL time.Duration `mapstructure:"SESSION_TTL"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	// When both are empty an ephemeral ECDSA key is generated at startup.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim of session tokens.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim of session tokens.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`

	// EmailAPIURL is the transactional mail API endpoint. Empty means codes are not delivered
	// (logged as issued only) unless dev OTP mode is on.
	EmailAPIURL string `mapstructure:"EMAIL_API_URL"`
	// EmailAPIKey is the bearer key for EmailAPIURL.
	EmailAPIKey string `mapstructure:"EMAIL_API_KEY"`
	// EmailFrom is the sender address for code emails.
	EmailFrom string `mapstructure:"EMAIL_FROM"`
	// OTPReturnToClient when true enables dev OTP mode: no email, code kept for GET /dev/otp. Must not be true when Env is production.
	OTPReturnToClient bool `mapstructure:"OTP_RETURN_TO_CLIENT"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// TrustProxyHeaders takes client IPs from X-Forwarded-For / X-Real-IP. Only for deployments
	// behind a reverse proxy that sets them; otherwise any caller can forge the audited IP.
	TrustProxyHeaders bool `mapstructure:"TRUST_PROXY_HEADERS"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure disables TLS to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// LogJSON selects the JSON log handler instead of text.
	LogJSON bool `mapstructure:"LOG_JSON"`
	// LogDebug enables debug level logs.
	LogDebug bool `mapstructure:"LOG_DEBUG"`
	// LogService is the service attribute attached to every log line.
	LogService string `mapstructure:"LOG_SERVICE"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8000")
	v.SetDefault("GRPC_ADDR", ":8081")
	v.SetDefault("STORE_DRIVER", StoreDriverFile)
	v.SetDefault("STORE_PATH", "app_db.json")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("STORE_AUTO_MIGRATE", false)
	v.SetDefault("RP_ID", "localhost")
	v.SetDefault("RP_DISPLAY_NAME", "Camp Dashboard")
	v.SetDefault("RP_ORIGINS", "http://localhost:8000")
	v.SetDefault("CHALLENGE_TTL", "2m")
	v.SetDefault("OTP_TTL", "5m")
	v.SetDefault("OTP_SINGLE_USE", false)
	v.SetDefault("TOTP_ISSUER", "Camp Dashboard")
	v.SetDefault("SESSION_TTL", "12h")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "camp-auth")
	v.SetDefault("JWT_AUDIENCE", "camp-dashboard")
	v.SetDefault("EMAIL_API_URL", "")
	v.SetDefault("EMAIL_API_KEY", "")
	v.SetDefault("EMAIL_FROM", "")
	v.SetDefault("OTP_RETURN_TO_CLIENT", false)
	v.SetDefault("APP_ENV", "")
	v.SetDefault("TRUST_PROXY_HEADERS", false)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("LOG_JSON", false)
	v.SetDefault("LOG_DEBUG", false)
	v.SetDefault("LOG_SERVICE", "camp-auth")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints. Load calls it; tests build Config directly.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	switch c.StoreDriver {
	case StoreDriverFile, StoreDriverSQLite:
		if c.StorePath == "" {
			return fmt.Errorf("config: STORE_PATH must be set for STORE_DRIVER=%s", c.StoreDriver)
		}
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set for STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("config: STORE_DRIVER must be file, postgres or sqlite, got %q", c.StoreDriver)
	}
	if c.RPID == "" {
		return errors.New("config: RP_ID must be set")
	}
	origins := c.RPOriginList()
	if len(origins) == 0 {
		return errors.New("config: RP_ORIGINS must list at least one origin")
	}
	for _, o := range origins {
		u, err := url.Parse(o)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config: RP_ORIGINS entry %q is not an origin", o)
		}
	}
	if c.ChallengeTTL <= 0 {
		return errors.New("config: CHALLENGE_TTL must be positive")
	}
	if c.OTPTTL <= 0 {
		return errors.New("config: OTP_TTL must be positive")
	}
	if c.SessionTTL <= 0 {
		return errors.New("config: SESSION_TTL must be positive")
	}
	if (c.JWTPrivateKey == "") != (c.JWTPublicKey == "") {
		return errors.New("config: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY must be set together")
	}
	if c.OTPReturnToClient && c.IsProduction() {
		return errors.New("config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}
	return nil
}

// IsProduction reports whether APP_ENV names the production environment.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

// RPOriginList returns the allowed WebAuthn origins from the comma-separated config.
func (c *Config) RPOriginList() []string {
	if c == nil || c.RPOrigins == "" {
		return nil
	}
	parts := strings.Split(c.RPOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
