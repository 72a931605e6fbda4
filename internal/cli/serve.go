package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/project-kessel/rolemapper/internal/config"
	"github.com/project-kessel/rolemapper/internal/server"
)

// NewServeCmd creates the serve command
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the rolemapper server",
		Long: `Start the rolemapper gRPC and HTTP servers.

The server will:
  - Issue tokens for realm sessions over HTTP
  - Publish the signing keys as a JWKS document
  - Report health over gRPC and HTTP
  - Reload the realm file when it changes
  - Apply log level changes from the config file without a restart

Configuration precedence (highest to lowest):
  1. Command-line flags
  2. Environment variables (ROLEMAPPER_*)
  3. Configuration file (if --config or ROLEMAPPER_CONFIG is set)
  4. Built-in defaults

Examples:
  # Start with a realm file
  rolemapper serve --realm ./realm.yaml

  # Override server ports
  rolemapper serve --realm ./realm.yaml --server-grpc-port 9091 --server-http-port 8081

  # Use custom config file
  rolemapper serve --config /etc/rolemapper/config.yaml`,
		RunE: runServe,
	}

	// Auto-register all config flags
	config.RegisterFlags(cmd.Flags())

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	configPath := resolveConfigPath()

	loader, err := config.NewLoaderWithFlags(configPath, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg, err := loader.Get()
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	provider := config.NewProvider(cfg)

	// One logger and observer shared by every component
	logger, logLevels := config.NewReloadableLogger(cfg.Observability, os.Stdout)

	observer, err := config.NewObserverWithLogger(cfg.Observability, logger)
	if err != nil {
		return fmt.Errorf("failed to create observer: %w", err)
	}
	provider.SetObserver(observer)

	tokenService, err := provider.TokenService()
	if err != nil {
		return fmt.Errorf("failed to create token service: %w", err)
	}

	issuerRegistry, err := provider.IssuerRegistry()
	if err != nil {
		return fmt.Errorf("failed to get issuer registry: %w", err)
	}

	refreshInterval, err := provider.JWKSRefreshInterval()
	if err != nil {
		return err
	}

	jwksServer := server.NewJWKSServer(server.JWKSServerConfig{
		IssuerRegistry:  issuerRegistry,
		RefreshInterval: refreshInterval,
		Clock:           provider.Clock(),
		Logger:          logger,
	})

	// Fail before listening if the keys cannot be published
	if _, err := jwksServer.KeySet(ctx); err != nil {
		return fmt.Errorf("failed to build key set: %w", err)
	}

	serverCfg := provider.ServerConfig()
	serverCfg.TokenHandler = server.NewTokenHandler(tokenService, logger)
	serverCfg.JWKSServer = jwksServer

	srv := server.New(serverCfg)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	go func() {
		if err := provider.WatchRealm(ctx, logger); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("realm reload disabled", "error", err)
		}
	}()

	// Log levels follow the config file; other settings need a restart
	go func() {
		err := loader.Watch(ctx, logger, func(next *config.Config) error {
			logLevels.Apply(next.Observability)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("config reload disabled", "error", err)
		}
	}()

	srv.SetReady()

	fmt.Println("rolemapper is running")
	fmt.Printf("  HTTP (tokens):         http://localhost:%d/v1/sessions/{session_id}/tokens\n", serverCfg.HTTPPort)
	fmt.Printf("  HTTP (mappers):        http://localhost:%d/v1/mappers\n", serverCfg.HTTPPort)
	fmt.Printf("  HTTP (JWKS):           http://localhost:%d/v1/jwks.json\n", serverCfg.HTTPPort)
	fmt.Printf("                         http://localhost:%d/.well-known/jwks.json\n", serverCfg.HTTPPort)
	fmt.Printf("  Health (gRPC):         localhost:%d (grpc.health.v1.Health)\n", serverCfg.GRPCPort)
	fmt.Printf("  Health (HTTP live):    http://localhost:%d/healthz/live\n", serverCfg.HTTPPort)
	fmt.Printf("  Health (HTTP ready):   http://localhost:%d/healthz/ready\n", serverCfg.HTTPPort)
	fmt.Printf("  Realm:                 %s\n", cfg.Realm)
	fmt.Printf("  Issuer:                %s\n", cfg.Issuer.URL)
	fmt.Printf("  Config:                %s\n", configPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down...")

	srv.SetNotReady()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("error during shutdown: %w", err)
	}

	fmt.Println("Shutdown complete")
	return nil
}
