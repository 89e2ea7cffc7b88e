package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"socialpulse/backend/internal/api"
	"socialpulse/backend/internal/config"
	"socialpulse/backend/internal/gateway"
	"socialpulse/backend/internal/logging"
	"socialpulse/backend/internal/mcp"
	"socialpulse/backend/internal/orchestrator"
	"socialpulse/backend/internal/repository"
	"socialpulse/backend/internal/tls"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "socialpulse-server",
		Short: "SocialPulse onboarding backend",
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and MCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	// Initialize logging
	logger := logging.NewLogger()

	// Load configuration
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("configuration loading failed: %w", err)
	}
	logger.Info("Configuration loaded",
		"environment", cfg.Environment,
		"gateway_url", cfg.Gateway.URL,
		"config_file", viper.ConfigFileUsed(),
	)

	logger.Info("Starting SocialPulse Onboarding Service")

	// Initialize database connection
	dbPool, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("database initialization failed: %w", err)
	}
	defer dbPool.Close()

	logger.Info("Database connected")

	// Initialize repository layer
	store := repository.NewPostgresStore(dbPool)

	// Initialize the gateway and the orchestrator components
	gw := gateway.NewHTTPGateway(cfg.Gateway.URL, cfg.Gateway.Token,
		time.Duration(cfg.Gateway.TimeoutSeconds)*time.Second)

	session := orchestrator.NewSession(cfg.Orchestrator.CompanyName, cfg.Orchestrator.WorkflowVersion)
	executor := orchestrator.NewTaskExecutor(gw, logger,
		orchestrator.WithPlatformDelay(cfg.PlatformDelay()))
	poller := orchestrator.NewJobPoller(logger)

	// the refresh callback closes over the controller, which needs the
	// handshake manager first
	var controller *orchestrator.Controller
	handshake := orchestrator.NewHandshakeManager(gw, openBrowserSurface, cfg.Orchestrator.ReturnURL, logger,
		orchestrator.WithSurfacePollInterval(cfg.HandshakePollInterval()),
		orchestrator.WithRefreshCallback(func() {
			refreshCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			controller.RefreshConnections(refreshCtx)
		}),
	)
	controller = orchestrator.NewController(store, gw, executor, handshake, poller, session, logger,
		orchestrator.WithPollSettings(cfg.PollInterval(), cfg.PollTimeout()))

	logger.Info("Orchestrator initialized")

	// Create Echo server
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("socialpulse-backend"))

	// Health endpoints
	e.GET("/health", echo.WrapHandler(http.HandlerFunc(api.HandleHealth)))
	e.GET("/ready", echo.WrapHandler(api.HandleReady(store.Ping)))

	// Mount REST API handlers
	apiServer := api.NewServer(controller, store)
	apiServer.RegisterRoutes(e.Group("/api/v1"))

	logger.Info("REST API handlers mounted")

	// Mount MCP protocol handlers
	mcpServer := mcp.NewServer(controller, store)
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	e.Any("/mcp/*", echo.WrapHandler(mcpHandlers))
	e.Any("/mcp", echo.WrapHandler(mcpHandlers))

	logger.Info("MCP protocol handlers mounted")

	// Create HTTP server
	addr := ":8080"
	if cfg.TLS.Enable {
		addr = ":8443"
	}
	server := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", addr, "tls", cfg.TLS.Enable)
		if cfg.TLS.Enable {
			if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
				serverErrors <- fmt.Errorf("tls enabled but cert/key file not provided")
				return
			}
			if len(cfg.TLS.Hostnames) > 0 {
				if err := tls.EnsureDevCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames); err != nil {
					logger.Error("failed to ensure self-signed cert", "error", err)
				}
			}
			serverErrors <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			serverErrors <- server.ListenAndServe()
		}
	}()

	// Wait for shutdown signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig.String())

		handshake.Stop()
		poller.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}

		logger.Info("Server stopped gracefully")
	}
	return nil
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection")

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
