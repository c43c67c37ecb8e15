package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonderpush/segmenter/internal/core/api"
	"github.com/wonderpush/segmenter/internal/core/auth"
	"github.com/wonderpush/segmenter/internal/core/config"
	"github.com/wonderpush/segmenter/internal/core/db"
	"github.com/wonderpush/segmenter/internal/core/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC segmenter service",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "gRPC server host")
	serveCmd.Flags().Int("port", 50051, "gRPC server port")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	logger := env.logger
	cfg := &env.cfg.Service

	database, queries, err := env.openCatalogue(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no HMAC secrets configured (set %s_HMAC_SECRET environment variable)", config.EnvPrefix)
	}

	store, err := db.NewSegmentStore(queries, logger.Named("store"))
	if err != nil {
		return err
	}
	service, err := api.NewSegmenterService(cfg, store, logger.Named("api"))
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	metrics := server.NewMetrics()
	authenticator := auth.NewAuthenticator(secrets, queries, logger.Named("auth"))
	grpcServer, err := server.NewGRPCServer(cfg, service, authenticator, metrics, logger.Named("grpc"))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	metricsServer := server.NewMetricsServer(cfg.MetricsAddr, metrics)

	logger.Info("starting segmenter", "version", Version, "host", cfg.Host, "port", cfg.Port, "metrics_addr", cfg.MetricsAddr)
	errChan := make(chan error, 2)
	go func() {
		errChan <- grpcServer.Start(ctx)
	}()
	go func() {
		if err := metricsServer.Start(); err != nil {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		metricsServer.Shutdown(ctx)
		return err
	case sig := <-sigChan:
		logger.Info("shutting down gracefully", "signal", sig.String())
		metricsServer.Shutdown(ctx)
		return grpcServer.Shutdown(ctx)
	}
}
