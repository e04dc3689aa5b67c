package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"camp-auth/backend/internal/app"
	"camp-auth/backend/internal/config"
	"camp-auth/backend/internal/logging"
	"camp-auth/backend/internal/server"
	"camp-auth/backend/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.Setup(logging.Options{JSON: cfg.LogJSON, Debug: cfg.LogDebug, Service: cfg.LogService})

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "err", err)
		os.Exit(1)
	}

	httpSrv := server.NewHTTPServer(&server.HTTPServerConfig{
		ListenAddr:               cfg.HTTPAddr,
		Log:                      logger,
		DrainDuration:            2 * time.Second,
		GracefulShutdownDuration: 10 * time.Second,
		ReadTimeout:              15 * time.Second,
		WriteTimeout:             15 * time.Second,
	}, server.NewRouter(server.Deps{
		Ceremonies: a.Ceremonies,
		Codes:      a.Codes,
		Sessions:   a.Sessions,
		Health:     a.Health,
		DevOTP:     a.DevOTP,
		Metrics:    a.Metrics,
		Log:        logger,

		TrustProxyHeaders: cfg.TrustProxyHeaders,
	}), a.Health)
	httpErr := httpSrv.RunInBackground()

	var grpcErr <-chan error
	grpcSrv := server.NewGRPCServer(a.Health)
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			logger.Error("grpc listen failed", "addr", cfg.GRPCAddr, "err", err)
			os.Exit(1)
		}
		errc := make(chan error, 1)
		grpcErr = errc
		go func() {
			logger.Info("gRPC health server listening", "listenAddress", cfg.GRPCAddr)
			if err := grpcSrv.Serve(lis); err != nil {
				errc <- err
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-httpErr:
		logger.Error("http server stopped", "err", err)
	case err := <-grpcErr:
		logger.Error("grpc server stopped", "err", err)
	}

	httpSrv.Shutdown()
	grpcSrv.GracefulStop()
	time.Sleep(telemetry.ShutdownDrainDuration)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Close(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
	logger.Info("server stopped")
}
