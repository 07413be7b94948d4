package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/mtr002/linkboard/internal/api"
	"github.com/mtr002/linkboard/internal/app"
	"github.com/mtr002/linkboard/internal/config"
	batchgrpc "github.com/mtr002/linkboard/internal/grpc"
	"github.com/mtr002/linkboard/internal/logger"
	"github.com/mtr002/linkboard/internal/nats"
	"github.com/mtr002/linkboard/internal/websocket"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Init("linkboard-api", "info")
		logger.Logger.Fatal().Err(err).Msg("Failed to load config")
	}

	logger.Init("linkboard-api", cfg.Logging.Level)
	logger.Logger.Info().Msg("Starting linkboard API server")

	application, err := app.New(cfg)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer application.Close()
	if application.DB != nil {
		api.SetDBConnection(application.DB)
	}

	hub := websocket.NewHub()
	go hub.Run()
	defer hub.Close()
	application.Links.SetNotifier(hub)
	application.Marts.SetNotifier(hub)

	services := api.Services{
		Links:       application.Links,
		Marts:       application.Marts,
		Reports:     application.Reports,
		Hub:         hub,
		AccessToken: cfg.Server.AccessToken,
	}

	if cfg.NATS.Enabled {
		natsClient, err := nats.NewClient(cfg.NATS.URL)
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer natsClient.Close()

		// completions from the worker process are relayed to dashboard clients
		if err := natsClient.SubscribeBulkStatus(func(status *nats.BulkStatusMessage) {
			hub.Notify("bulk_status", status)
		}); err != nil {
			logger.Logger.Fatal().Err(err).Msg("Failed to subscribe to bulk status")
		}
		services.Queue = natsClient
		logger.Logger.Info().Str("url", cfg.NATS.URL).Msg("NATS publisher connected")
	}

	if cfg.Worker.GRPCAddr != "" {
		batchClient, err := batchgrpc.NewClient(cfg.Worker.GRPCAddr)
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("Failed to create worker gRPC client")
		}
		defer batchClient.Close()

		services.Batches = batchClient
		if services.Queue == nil {
			services.Queue = batchClient
		}
		logger.Logger.Info().Str("addr", cfg.Worker.GRPCAddr).Msg("Worker gRPC client configured")
	}

	server := api.NewServer(services, api.ServerOptions{
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Logger.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")
	case err := <-errCh:
		if err != nil {
			logger.Logger.Error().Err(err).Msg("HTTP server stopped")
		}
	}

	if err := server.Shutdown(); err != nil {
		logger.Logger.Error().Err(err).Msg("HTTP shutdown failed")
	}
	logger.Logger.Info().Msg("Server stopped")
}
