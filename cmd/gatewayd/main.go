package main

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // Postgres Driver

	"github.com/inneri/gateway/pkg/api"
	"github.com/inneri/gateway/pkg/audit"
	"github.com/inneri/gateway/pkg/broker"
	"github.com/inneri/gateway/pkg/catalog"
	"github.com/inneri/gateway/pkg/config"
	"github.com/inneri/gateway/pkg/executor"
	"github.com/inneri/gateway/pkg/gateway"
	"github.com/inneri/gateway/pkg/identity"
	"github.com/inneri/gateway/pkg/nonce"
	"github.com/inneri/gateway/pkg/pdp"
	"github.com/inneri/gateway/pkg/receipts"
	"github.com/inneri/gateway/pkg/tokens"
)

func main() {
	os.Exit(Run())
}

// Run wires every component per cfg, starts the HTTP server, and blocks
// until SIGINT/SIGTERM, shutting down gracefully. Grounded on the teacher's
// cmd/helm/main.go runServer wiring idiom (DB connect, store construction,
// background serve goroutine, signal-driven shutdown).
func Run() int {
	cfg := config.Load()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx := context.Background()

	var db *sql.DB
	if cfg.IdentityStoreKind == "postgres" || cfg.AuditStoreKind == "postgres" || cfg.CatalogStoreKind == "postgres" {
		var err error
		db, err = sql.Open("postgres", cfg.DBDSN)
		if err != nil {
			log.Fatalf("gatewayd: connect postgres: %v", err)
		}
		if err := db.PingContext(ctx); err != nil {
			log.Fatalf("gatewayd: ping postgres: %v", err)
		}
		logger.Info("postgres: connected")
	}

	identityStore := buildIdentityStore(cfg, db)
	catalogStore := buildCatalogStore(ctx, cfg, db, logger)
	auditStore := buildAuditStore(cfg, db)
	nonceRegistry := buildNonceRegistry(cfg)

	pdpClient := pdp.NewHTTPClient(cfg.OPAURL, cfg.FailOpen)
	brokerClient := broker.NewHTTPClient(cfg.VaultAddr, cfg.VaultToken)
	pgWhoami := executor.NewPgWhoamiExecutor(brokerClient, cfg.PgWhoamiVaultRole, cfg.PgWhoamiHostPort, cfg.PgWhoamiDatabase)
	executors := executor.NewRegistry(pgWhoami)
	if cfg.WasiSandboxEnabled {
		runner, err := executor.NewWasiRunner(ctx, cfg.WasiSandboxMemLimitByte)
		if err != nil {
			logger.Error("gatewayd: wasi sandbox init failed, continuing without it", "error", err)
		} else {
			executors = executors.WithSandbox(runner, cfg.WasiSandboxModuleDir)
			logger.Info("wasi sandbox: enabled", "module_dir", cfg.WasiSandboxModuleDir)
		}
	}

	tokenManager := tokens.NewManager([]byte(cfg.JWTSigningKey))
	receiptIssuer := receipts.NewIssuer([]byte(cfg.ReceiptSigningKey))

	gw := gateway.New(
		identityStore,
		catalogStore,
		catalog.NewValidator(),
		nonceRegistry,
		pdpClient,
		executors,
		auditStore,
		tokenManager,
		receiptIssuer,
	)

	handler := api.NewRouter(gw, tokenManager, cfg.CORSOrigins)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("gatewayd: listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("gatewayd: server failed", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("gatewayd: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("gatewayd: shutdown error", "error", err)
		return 1
	}
	return 0
}

func buildIdentityStore(cfg *config.Config, db *sql.DB) identity.Store {
	if cfg.IdentityStoreKind == "postgres" {
		return identity.NewPostgresStore(db)
	}
	return identity.NewMemoryStore()
}

func buildAuditStore(cfg *config.Config, db *sql.DB) audit.Store {
	if cfg.AuditStoreKind == "postgres" {
		return audit.NewPostgresStore(db)
	}
	return audit.NewMemoryStore()
}

func buildCatalogStore(ctx context.Context, cfg *config.Config, db *sql.DB, logger *slog.Logger) catalog.Store {
	if cfg.CatalogStoreKind != "postgres" {
		return catalog.NewMemoryStore()
	}
	store := catalog.NewPostgresStore(db)
	for _, t := range catalog.DefaultTools() {
		if err := store.Upsert(ctx, t); err != nil {
			logger.Warn("gatewayd: seed tool failed", "tool_id", t.ToolID, "error", err)
		}
	}
	return store
}

func buildNonceRegistry(cfg *config.Config) nonce.Registry {
	if cfg.NonceRegistryKind == "redis" {
		return nonce.NewRedisRegistry(cfg.RedisAddr, "", 0)
	}
	return nonce.NewInMemoryRegistry()
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
