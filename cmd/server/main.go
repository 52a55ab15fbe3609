// Package main initializes and starts the GophSpend document store server,
// setting up configuration, logging, database connections, repositories,
// services, the subscription hub and handlers.
package main

import (
	"cmp"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/atinyakov/GophSpend/internal/auth"
	"github.com/atinyakov/GophSpend/internal/certgen"
	"github.com/atinyakov/GophSpend/internal/config"
	"github.com/atinyakov/GophSpend/internal/db"
	"github.com/atinyakov/GophSpend/internal/logger"
	"github.com/atinyakov/GophSpend/internal/metrics"
	"github.com/atinyakov/GophSpend/internal/repository"
	"github.com/atinyakov/GophSpend/internal/server/handler/http"
	"github.com/atinyakov/GophSpend/internal/server/ws"
	"github.com/atinyakov/GophSpend/internal/service"
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
	if err := log.Init(options.LogLevel); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize PostgreSQL connection.
	postgresDB, err := db.InitPostgres(options.DatabaseDSN)
	if err != nil {
		zapLogger.Fatal("cannot init database", zap.Error(err))
	}
	defer postgresDB.Close()

	db.StartTombstoneCleaner(ctx, postgresDB, time.Hour, options.TombstoneRetention, zapLogger)

	m := metrics.New()
	hub := ws.NewHub(m, zapLogger)
	go hub.Run(ctx)

	authRepo := repository.NewPostgresAuthRepository(postgresDB)
	docRepo := repository.NewPostgresDocumentRepository(postgresDB)

	issuer := auth.NewIssuer(options.JWTSecret, options.TokenTTL)
	authService := service.NewAuthService(authRepo, issuer, m)
	docService := service.NewDocumentService(docRepo, hub, m, zapLogger)

	router := http.NewRouter(http.Router{
		Auth:      &http.AuthHandler{AuthService: authService, Log: zapLogger},
		Documents: &http.DocumentHandler{Documents: docService, Log: zapLogger},
		Subscribe: &http.SubscribeHandler{
			Hub:       hub,
			Documents: docService,
			Upgrader:  newUpgrader(options.AllowedOrigins),
			Log:       zapLogger,
		},
		Health:         &http.HealthHandler{DB: postgresDB},
		Tokens:         issuer,
		Metrics:        m.Handler(),
		AllowedOrigins: options.AllowedOrigins,
		Log:            zapLogger,
	})

	server := &nethttp.Server{
		Addr:              options.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if options.TLSCert != "" {
		cert, created, err := certgen.LoadOrCreate(options.TLSCert, options.TLSKey, options.TLSHosts)
		if err != nil {
			zapLogger.Fatal("failed to load server TLS cert/key", zap.Error(err))
		}
		if created {
			zapLogger.Warn("generated self-signed TLS certificate",
				zap.String("cert", options.TLSCert),
				zap.Strings("hosts", options.TLSHosts),
			)
		}
		server.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("graceful shutdown failed", zap.Error(err))
		}
	}()

	if server.TLSConfig != nil {
		zapLogger.Info("starting HTTPS server", zap.String("addr", options.Port))
		err = server.ListenAndServeTLS("", "")
	} else {
		zapLogger.Info("starting HTTP server", zap.String("addr", options.Port))
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		zapLogger.Fatal("server failed", zap.Error(err))
	}
	zapLogger.Info("server stopped")
}

// newUpgrader accepts websocket handshakes from the CORS origins and from
// non-browser clients, which send no Origin header.
func newUpgrader(allowed []string) websocket.Upgrader {
	origins := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		origins[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || origins["*"] || origins[origin]
		},
	}
}
