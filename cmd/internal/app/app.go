// Package app wires the gate server runtime: config, logging, stores,
// HTTP routes, and lifecycle.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"gate/cmd/identity"
	authapi "gate/cmd/internal/auth/api"
	"gate/cmd/internal/auth/ledger"
	"gate/cmd/internal/auth/reset"
	"gate/cmd/internal/auth/service"
	"gate/cmd/internal/auth/throttle"
	"gate/cmd/internal/auth/token"
)

// App is the gate server runtime.
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	dbEnabled bool
	rdb       *redis.Client

	sessions ledger.Store
	resets   reset.Store

	auth    *authapi.Handler
	metrics *Metrics
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	// Refusing to start beats signing tokens with an empty key.
	if len(cfg.TokenSecret) < 32 {
		return nil, errors.New("app: GATE_TOKEN_SECRET must be set (min 32 bytes)")
	}

	a := &App{cfg: cfg, log: log, metrics: NewMetrics()}

	users, err := a.initStores(context.Background())
	if err != nil {
		return nil, err
	}

	issuer, err := token.NewIssuer(token.Config{
		Secret:     []byte(cfg.TokenSecret),
		Issuer:     cfg.TokenIssuer,
		KeyID:      cfg.TokenKeyID,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	})
	if err != nil {
		a.closeStores()
		return nil, err
	}

	svc := service.New(users, issuer, a.sessions, log)
	resets := reset.NewService(users, a.resets, a.sessions, nil, log, cfg.ResetTokenTTL)

	opts := []authapi.HandlerOption{authapi.WithResetService(resets)}
	if cfg.RedisURL != "" {
		ropts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.closeStores()
			return nil, err
		}
		a.rdb = redis.NewClient(ropts)
		opts = append(opts, authapi.WithLoginLimiter(throttle.New(a.rdb, throttle.Config{
			MaxAttempts: cfg.LoginMaxAttempts,
			Window:      cfg.LoginAttemptsWindow,
			PerIP:       true,
		})))
		log.Info("throttle.enabled.redis")
	} else {
		log.Info("throttle.disabled")
	}

	authHandler, err := authapi.NewHandler(log, authapi.LoadConfigFromEnv(), svc, opts...)
	if err != nil {
		a.closeStores()
		return nil, err
	}
	a.auth = authHandler

	return a, nil
}

// initStores decides between Postgres-backed persistence and the
// in-memory development stores, and returns the identity store.
func (a *App) initStores(ctx context.Context) (identity.Store, error) {
	if a.cfg.DatabaseURL == "" {
		a.log.Info("db.disabled.inmemory_store")
		users, err := identity.NewMemoryStore()
		if err != nil {
			return nil, err
		}
		a.sessions = ledger.NewMemory()
		a.resets = reset.NewMemory()
		return users, nil
	}

	if a.cfg.Migrate {
		if err := MigrateDB(ctx, a.cfg.DatabaseURL); err != nil {
			return nil, err
		}
	}

	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	a.dbPool = pool
	a.dbEnabled = true
	a.log.Info("db.enabled.postgres_store")

	users, err := identity.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	sessions, err := ledger.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	resets, err := reset.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}

	a.sessions = sessions
	a.resets = resets
	return users, nil
}

func (a *App) closeStores() {
	if a.dbPool != nil {
		a.dbPool.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
}

// Run starts the HTTP server and blocks until context cancellation or
// fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.auth, a.metrics)

	var handler http.Handler = mux
	handler = WithCORS(handler, a.cfg.CORSOrigin)
	handler = WithRequestLogging(handler, a.log, a.metrics)

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

	pruneCtx, stopPrune := context.WithCancel(ctx)
	defer stopPrune()
	go a.pruneLoop(pruneCtx)

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
		a.closeStores()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		a.closeStores()
		return err
	}

	a.closeStores()
	a.log.Info("server.stopped")
	return nil
}

// pruneLoop periodically drops expired refresh and reset rows. Expired
// rows are inert either way; this only keeps the tables small.
func (a *App) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()
			if n, err := a.sessions.PruneExpired(ctx, now); err != nil {
				a.log.Error("prune.refresh.fail", "err", err)
			} else if n > 0 {
				a.log.Info("prune.refresh", "deleted", n)
			}
			if n, err := a.resets.PruneExpired(ctx, now); err != nil {
				a.log.Error("prune.resets.fail", "err", err)
			} else if n > 0 {
				a.log.Info("prune.resets", "deleted", n)
			}
		}
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
