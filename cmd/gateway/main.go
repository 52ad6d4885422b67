package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"pos-system/config"
	"pos-system/internal/app"
	"pos-system/internal/gateway"
	"pos-system/internal/gateway/clients"
	"pos-system/internal/gateway/middleware"
	"pos-system/internal/utils"
)

func main() {
	cfg := config.LoadConfig()
	config.SetupLogging(cfg.Log)
	if err := cfg.ValidateGateway(); err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}

	services, err := app.Open(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to start services")
	}
	defer services.Close()

	rateLimit, err := middleware.RateLimit(cfg.RateLimit)
	if err != nil {
		logrus.WithError(err).Fatal("Invalid rate limit")
	}

	deps := gateway.Deps{
		Identity:   services.Identity,
		Catalog:    services.Catalog,
		Promotions: services.Promotions,
		Loyalty:    services.Loyalty,
		Ledger:     services.Ledger,
		JWT:        utils.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTTTL),
		Metrics:    middleware.NewMetrics(),
		RateLimit:  rateLimit,
		Checks: map[string]gateway.Pinger{
			"database": services.PingDB,
			"redis":    services.PingRedis,
		},
	}

	if cfg.Ledger.RemoteAddr != "" {
		ledgerClient, err := clients.NewLedgerClient(cfg.Ledger.RemoteAddr)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to connect to ledger service")
		}
		defer ledgerClient.Close()
		deps.RemoteLedger = ledgerClient
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           gateway.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logrus.WithField("addr", srv.Addr).Info("Gateway listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down gateway")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Graceful shutdown failed")
	}
}
