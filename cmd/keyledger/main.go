package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container
	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/keyledger/internal/adapter/driven/memory"
	sqliteadapter "github.com/ericfisherdev/keyledger/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/keyledger/internal/adapter/driving/http"
	"github.com/ericfisherdev/keyledger/internal/application"
	"github.com/ericfisherdev/keyledger/internal/config"
	"github.com/ericfisherdev/keyledger/internal/domain/port/driven"
	"github.com/ericfisherdev/keyledger/internal/keygen"
)

// memoryDBPath selects the process-local store instead of SQLite.
const memoryDBPath = ":memory:"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// stores groups the driven adapters the services need.
type stores struct {
	creds      driven.CredentialStore
	rotations  driven.RotationLedger
	audit      driven.AuditLog
	transactor driven.Transactor
	close      func() error
}

func openStores(ctx context.Context, dbPath string) (*stores, error) {
	if dbPath == memoryDBPath {
		store := memory.NewStore()
		slog.Warn("using in-memory store, credentials will not survive a restart")
		return &stores{
			creds:      store.Credentials(),
			rotations:  store.Rotations(),
			audit:      memory.NewAuditLog(),
			transactor: store,
			close:      func() error { return nil },
		}, nil
	}

	// Dual reader/writer with WAL mode.
	db, err := sqliteadapter.NewDB(ctx, dbPath)
	if err != nil {
		return nil, err
	}
	slog.Info("database opened", "path", db.Path())

	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("migrations complete")

	return &stores{
		creds:      sqliteadapter.NewCredentialRepo(db),
		rotations:  sqliteadapter.NewRotationRepo(db),
		audit:      sqliteadapter.NewAuditRepo(db),
		transactor: sqliteadapter.NewTransactor(db),
		close:      db.Close,
	}, nil
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"list_limit", cfg.ListLimit,
		"audit_buffer", cfg.AuditBuffer,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open storage and run migrations.
	st, err := openStores(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	// 4. Derive the key hasher from the configured secret.
	hasher, err := keygen.NewHasherFromSecret(cfg.HashSecret)
	if err != nil {
		return err
	}

	// 5. Start the audit worker. It is stopped after the server drains so
	// in-flight requests can still enqueue.
	auditor := application.NewAsyncAuditor(st.audit, cfg.AuditBuffer, cfg.AuditTimeout, logger)
	auditor.Start()

	// 6. Create services.
	lifecycleSvc := application.NewLifecycleService(st.creds, st.transactor, auditor, hasher, cfg.ListLimit, logger)
	auditSvc := application.NewAuditService(st.audit, st.rotations)

	// 7. Create HTTP handler with all routes and middleware.
	apiHandler := httphandler.NewHandler(lifecycleSvc, auditSvc, logger)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(apiHandler, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		// 8. Wait for shutdown signal or a server failure.
		<-gctx.Done()
		slog.Info("shutting down")

		// 9. Graceful shutdown with 10s timeout for HTTP drain.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", "error", err)
		}
		return nil
	})

	serveErr := g.Wait()

	// 10. Flush queued audit entries.
	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.AuditTimeout)
	defer cancel()
	if err := auditor.Stop(flushCtx); err != nil {
		slog.Error("audit flush incomplete", "error", err, "dropped", auditor.Dropped())
	}

	if serveErr != nil {
		return serveErr
	}

	// 11. Log shutdown complete.
	slog.Info("shutdown complete", "audit_dropped", auditor.Dropped())
	return nil
}
