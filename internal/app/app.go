// Package app builds the store, telemetry and services from Config. cmd/server and
// cmd/authctl share it so both see the same store and the same policies.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	adminrepo "camp-auth/backend/internal/admin/repository"
	"camp-auth/backend/internal/audit"
	"camp-auth/backend/internal/ceremony"
	challengerepo "camp-auth/backend/internal/challenge/repository"
	"camp-auth/backend/internal/config"
	"camp-auth/backend/internal/db"
	"camp-auth/backend/internal/db/migrate"
	"camp-auth/backend/internal/devotp"
	"camp-auth/backend/internal/health"
	"camp-auth/backend/internal/mfa"
	"camp-auth/backend/internal/mfa/email"
	mfarepo "camp-auth/backend/internal/mfa/repository"
	participantrepo "camp-auth/backend/internal/participant/repository"
	"camp-auth/backend/internal/security"
	"camp-auth/backend/internal/server/middleware"
	"camp-auth/backend/internal/session"
	sessionrepo "camp-auth/backend/internal/session/repository"
	"camp-auth/backend/internal/store"
	telemetryotel "camp-auth/backend/internal/telemetry/otel"
)

// App holds everything a process needs to serve or administer authentication.
type App struct {
	Config    *config.Config
	Log       *slog.Logger
	Store     store.Store
	Telemetry *telemetryotel.Providers
	Metrics   *telemetryotel.Metrics

	Admins     *adminrepo.StoreRepository
	Sessions   *session.Service
	Ceremonies *ceremony.Service
	Codes      *mfa.Service
	Health     *health.Checker
	// DevOTP is set only in dev OTP mode.
	DevOTP devotp.Store
}

// OpenStore opens the store selected by cfg.StoreDriver, applying migrations first when
// StoreAutoMigrate is set.
func OpenStore(cfg *config.Config, log *slog.Logger) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverFile:
		return store.NewFileStore(cfg.StorePath, log)
	case config.StoreDriverPostgres:
		if cfg.StoreAutoMigrate {
			if err := migrate.Run("postgres", cfg.DatabaseURL, "up"); err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		conn, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return store.NewSQLStore(conn, store.Postgres, log), nil
	case config.StoreDriverSQLite:
		if cfg.StoreAutoMigrate {
			if err := migrate.Run("sqlite", cfg.StorePath, "up"); err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		conn, err := db.OpenSQLite(cfg.StorePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		return store.NewSQLStore(conn, store.SQLite, log), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// New opens the store and telemetry and wires the services. Close releases both.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, cfg.LogService, cfg.OTLPInsecure, log)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	providers.SetGlobal()
	metrics, err := telemetryotel.NewMetrics(providers.MeterProvider)
	if err != nil {
		_ = providers.Shutdown(ctx)
		return nil, fmt.Errorf("metrics: %w", err)
	}

	st, err := OpenStore(cfg, log)
	if err != nil {
		_ = providers.Shutdown(ctx)
		return nil, err
	}

	signer, pub, ephemeral, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		_ = st.Close()
		_ = providers.Shutdown(ctx)
		return nil, fmt.Errorf("session keys: %w", err)
	}
	if ephemeral {
		log.Warn("no JWT keys configured: session tokens are signed with an ephemeral key and stop validating on restart")
	}
	tokens := security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience)

	auditLogger := audit.NewLogger(log, telemetryotel.NewEventEmitter(providers.LoggerProvider), middleware.ClientIP)
	admins := adminrepo.NewStoreRepository(st)
	sessions := session.NewService(sessionrepo.NewStoreRepository(st), tokens, auditLogger, log, cfg.SessionTTL)

	ceremonies, err := ceremony.NewService(ceremony.Options{
		RPID:          cfg.RPID,
		RPDisplayName: cfg.RPDisplayName,
		RPOrigins:     cfg.RPOriginList(),
		ChallengeTTL:  cfg.ChallengeTTL,
	}, admins, challengerepo.NewStoreRepository(st), sessions, auditLogger, metrics, providers.Tracer(), log)
	if err != nil {
		_ = st.Close()
		_ = providers.Shutdown(ctx)
		return nil, err
	}

	a := &App{
		Config:     cfg,
		Log:        log,
		Store:      st,
		Telemetry:  providers,
		Metrics:    metrics,
		Admins:     admins,
		Sessions:   sessions,
		Ceremonies: ceremonies,
		Health:     health.NewChecker(st, 0),
	}

	var sender email.Sender
	switch {
	case cfg.OTPReturnToClient:
		a.DevOTP = devotp.NewMemoryStore()
		sender = devotp.NewSender(a.DevOTP, cfg.OTPTTL, log)
	case cfg.EmailAPIURL != "":
		sender = email.NewHTTPSender(cfg.EmailAPIKey, cfg.EmailAPIURL, cfg.EmailFrom)
	default:
		log.Warn("EMAIL_API_URL is not set: email codes are issued but not delivered")
		sender = email.LogSender{Log: log}
	}
	a.Codes = mfa.NewService(participantrepo.NewStoreRepository(st), mfarepo.NewStoreRepository(st), sender, auditLogger, metrics, log, mfa.Options{
		CodeTTL:    cfg.OTPTTL,
		SingleUse:  cfg.OTPSingleUse,
		TOTPIssuer: cfg.TOTPIssuer,
	})
	return a, nil
}

// Close waits for pending code deliveries, then closes the store and flushes telemetry.
func (a *App) Close(ctx context.Context) error {
	a.Codes.Wait()
	return errors.Join(a.Store.Close(), a.Telemetry.Shutdown(ctx))
}
