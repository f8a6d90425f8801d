// Package app wires the Wren server runtime: config, logging, HTTP routes, and the realtime gateway.
//
// It is intentionally small and deterministic so startup failures surface immediately.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"wren/cmd/identity"
	authapi "wren/cmd/internal/auth/api"
	"wren/cmd/internal/auth/emailtoken"
	"wren/cmd/internal/auth/session"
	"wren/cmd/internal/mail"
	"wren/cmd/internal/realtime"

	"github.com/jackc/pgx/v5/pgxpool"
)

// App is the Wren server runtime. It owns the HTTP server and the lifecycle
// of DB-backed resources.
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	dbEnabled bool

	hub  *realtime.Hub
	ws   *realtime.WSGateway
	auth *authapi.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	var (
		pool      *pgxpool.Pool
		dbEnabled bool

		users      identity.Store
		sessStore  session.Store
		tokenStore emailtoken.Store
		auditor    authapi.Auditor
	)

	if cfg.DatabaseURL != "" {
		p, err := NewDBPool(context.Background(), cfg)
		if err != nil {
			return nil, err
		}
		pool = p
		dbEnabled = true

		userStore, err := identity.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		users = userStore
		sessStore = session.NewPostgresStore(pool)
		tokenStore = emailtoken.NewPostgresStore(pool)
		auditor = authapi.NewPostgresAuditor(log, pool)
		log.Info("db.enabled.postgres_store")
	} else {
		users = identity.NewMemoryStore()
		sessStore = session.NewMemoryStore()
		tokenStore = emailtoken.NewMemoryStore()
		auditor = authapi.NewMemoryAuditor()
		log.Info("db.disabled.inmemory_store")
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		closePool(pool)
		return nil, err
	}
	tokens, err := session.NewHS256Manager(sessCfg)
	if err != nil {
		closePool(pool)
		return nil, err
	}

	hub := realtime.NewHub(log)
	sessions := session.NewService(sessCfg, users, sessStore, tokens,
		session.WithEventPublisher(hub))

	sender, err := newMailSender(log)
	if err != nil {
		closePool(pool)
		return nil, err
	}

	emailCfg, err := emailtoken.LoadConfigFromEnv()
	if err != nil {
		closePool(pool)
		return nil, err
	}
	emailTokens := emailtoken.NewService(emailCfg, users, tokenStore, sender, hub)

	auth := authapi.NewHandler(log, authapi.LoadConfigFromEnv(), users, sessions, emailTokens, auditor)
	ws := realtime.NewWSGateway(log, hub, tokens)

	return &App{
		cfg:       cfg,
		log:       log,
		dbPool:    pool,
		dbEnabled: dbEnabled,
		hub:       hub,
		ws:        ws,
		auth:      auth,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.ws, a.auth)

	var handler http.Handler = mux
	handler = WithSecurityHeaders(handler)
	handler = WithCORS(handler, a.cfg, a.log)
	handler = WithRequestLogging(handler, a.log)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	closePool(a.dbPool)
	a.log.Info("server.stopped")
	return nil
}

// newMailSender returns an SMTP sender when WREN_SMTP_HOST is configured and
// a no-op sender otherwise. Misconfigured SMTP is a startup error, not a
// silent fallback.
func newMailSender(log Logger) (mail.Sender, error) {
	smtpCfg, enabled, err := mail.LoadSMTPConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if !enabled {
		log.Info("mail.disabled.noop_sender")
		return mail.NoopSender{}, nil
	}
	sender, err := mail.NewSMTPSender(smtpCfg)
	if err != nil {
		return nil, err
	}
	log.Info("mail.enabled.smtp_sender", "host", smtpCfg.Host)
	return sender, nil
}

func closePool(pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
