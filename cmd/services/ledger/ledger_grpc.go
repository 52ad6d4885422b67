package main

import (
	"context"
	"net"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"pos-system/config"
	"pos-system/internal/app"
	"pos-system/internal/rpc"
)

func main() {
	cfg := config.LoadConfig()
	config.SetupLogging(cfg.Log)
	if err := cfg.Validate(); err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}

	services, err := app.Open(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to start services")
	}
	defer services.Close()

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to listen")
	}

	s, health := rpc.NewServer(services.Ledger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		logrus.Info("Shutting down ledger service")
		health.Shutdown()
		s.GracefulStop()
	}()

	logrus.WithField("addr", lis.Addr().String()).Info("Ledger service listening")
	if err := s.Serve(lis); err != nil {
		logrus.WithError(err).Fatal("Failed to serve")
	}
}
