package main

import (
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	"github.com/mtr002/linkboard/internal/app"
	"github.com/mtr002/linkboard/internal/config"
	batchgrpc "github.com/mtr002/linkboard/internal/grpc"
	"github.com/mtr002/linkboard/internal/logger"
	"github.com/mtr002/linkboard/internal/nats"
	"github.com/mtr002/linkboard/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	workerCount := flag.Int("workers", 0, "number of bulk batches processed at once (overrides worker.count)")
	queueSize := flag.Int("queue", 0, "number of received batches buffered before rejecting (overrides worker.queue_size)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Init("linkboard-worker", "info")
		logger.Logger.Fatal().Err(err).Msg("Failed to load config")
	}
	if *workerCount > 0 {
		cfg.Worker.Count = *workerCount
	}
	if *queueSize > 0 {
		cfg.Worker.QueueSize = *queueSize
	}

	logger.Init("linkboard-worker", cfg.Logging.Level)
	logger.Logger.Info().Msg("Starting linkboard worker")

	if cfg.Database.URL == "" {
		logger.Logger.Warn().Msg("Worker is using the in-memory store; links will not be visible to the API process")
	}

	application, err := app.New(cfg)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer application.Close()

	var natsServer *nats.Server
	var publisher worker.StatusPublisher
	if cfg.NATS.Enabled {
		natsServer, err = nats.NewServer(cfg.NATS.URL)
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		publisher = natsServer
	}

	tracker := worker.NewTracker(cfg.Worker.StatusLimit)
	pool := worker.NewPool(application.Links, publisher, cfg.Worker.Count, cfg.Worker.QueueSize)
	pool.SetTracker(tracker)
	pool.Start()

	if natsServer != nil {
		if err := natsServer.Subscribe(func(msg *nats.BulkSubmissionMessage) {
			if err := pool.Submit(msg); err != nil {
				logger.WithBatchID(msg.BatchID).Error().Err(err).Msg("Bulk batch rejected")
				if pubErr := natsServer.PublishBulkStatus(nats.NewBulkStatus(msg.BatchID, nil, err)); pubErr != nil {
					logger.Logger.Error().Err(pubErr).Msg("Failed to publish bulk status")
				}
			}
		}); err != nil {
			logger.Logger.Fatal().Err(err).Msg("Failed to subscribe to NATS")
		}
		logger.Logger.Info().Str("subject", nats.BulkSubmitSubject).Msg("NATS consumer started")
	}

	lis, err := net.Listen("tcp", ":"+cfg.Worker.GRPCPort)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to listen")
	}

	s := grpc.NewServer()
	batchgrpc.RegisterBatchServiceServer(s, batchgrpc.NewBatchServer(pool, tracker))

	go func() {
		logger.Logger.Info().Str("port", cfg.Worker.GRPCPort).Msg("Batch service gRPC server listening")
		if err := s.Serve(lis); err != nil {
			logger.Logger.Fatal().Err(err).Msg("Failed to serve")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Logger.Info().Msg("Shutting down gracefully...")
	s.GracefulStop()
	if natsServer != nil {
		natsServer.Unsubscribe()
	}
	pool.Stop()
	if natsServer != nil {
		natsServer.Close()
	}
	logger.Logger.Info().Msg("Worker stopped")
}
