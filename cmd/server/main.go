// Package main initializes and starts the portal synchronization server,
// setting up configuration, logging, database connections, the session store,
// the portal client factory, and the HTTP handlers.
package main

import (
	"cmp"
	"context"
	"fmt"
	"time"

	nethttp "net/http"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/studentlink/portalsync/internal/config"
	"github.com/studentlink/portalsync/internal/db"
	"github.com/studentlink/portalsync/internal/logger"
	"github.com/studentlink/portalsync/internal/portal"
	"github.com/studentlink/portalsync/internal/repository"
	"github.com/studentlink/portalsync/internal/server/handler/http"
	"github.com/studentlink/portalsync/internal/service"
	"github.com/studentlink/portalsync/internal/session"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line and environment configuration.
	options := config.Parse()

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init("Info"); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	// Initialize PostgreSQL connection.
	postgresDB, err := db.InitPostgres(options.DatabaseDSN)
	if err != nil {
		zapLogger.Fatal("cannot init database", zap.Error(err))
	}

	// Reap sessions with no successful handshake in 30 days.
	db.StartSessionReaper(context.Background(), postgresDB,
		time.Hour,       // interval
		30*24*time.Hour, // retention: 30 days
		zapLogger,
	)

	// Handshake locks: Redis when configured, in-process otherwise.
	var locker session.Locker
	if options.RedisAddr != "" {
		locker = session.NewRedisLocker(redis.NewClient(&redis.Options{Addr: options.RedisAddr}))
	} else {
		locker = session.NewMemoryLocker()
	}

	// Initialize repositories and the session store.
	sessionRepo := repository.NewPostgresSessionRepository(postgresDB)
	recordsRepo := repository.NewPostgresRecordsRepository(postgresDB)
	sessions := session.NewStore(sessionRepo, locker, options.LockTTL(), options.Cooldown())

	// Each sync binds a fresh portal client to the user's cookie jar.
	newClient := func(userID string, jar []byte) (service.PortalClient, error) {
		return portal.NewClient(options.PortalBaseURL, userID, options.HTTPTimeout(), jar)
	}

	orchestrator := service.NewOrchestrator(sessions, recordsRepo, newClient, options.SyncTimeout(), zapLogger)

	// Create the HTTP handler and router.
	syncHandler := &http.SyncHandler{SyncService: orchestrator, Logger: zapLogger}
	router := http.NewRouter(syncHandler, zapLogger)

	server := &nethttp.Server{
		Addr:    options.Port,
		Handler: router,
	}

	zapLogger.Info("starting HTTP server", zap.String("addr", options.Port))
	if err := server.ListenAndServe(); err != nil {
		zapLogger.Fatal("failed to start HTTP server", zap.Error(err))
	}
}
