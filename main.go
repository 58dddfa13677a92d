package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/athapong/concept-graph/pkg/api"
	"github.com/athapong/concept-graph/pkg/config"
	"github.com/athapong/concept-graph/pkg/graph/metrics"
	"github.com/athapong/concept-graph/prompts"
	"github.com/athapong/concept-graph/services"
	"github.com/athapong/concept-graph/tools"
)

func main() {
	envFile := flag.String("env", ".env", "Path to environment file")
	enableSSE := flag.Bool("sse", false, "Enable SSE server")
	sseAddr := flag.String("sse-addr", ":8080", "Address for SSE server to listen on")
	sseBasePath := flag.String("sse-base-path", "/mcp", "Base path for SSE endpoints")
	enableHTTP := flag.Bool("http", false, "Serve the REST API on HTTP_ADDR")
	logLevel := flag.String("log-level", "info", "Logging level (debug, info, warn, error)")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	// stdout carries the MCP stdio protocol
	logger.SetOutput(os.Stderr)
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatalf("Invalid log level: %v", err)
	}
	logger.SetLevel(level)

	if err := config.LoadEnvFile(*envFile); err != nil {
		logger.WithError(err).Warnf("Error loading env file %s", *envFile)
	}
	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cg, err := services.NewConceptGraph(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialise concept graph")
	}
	defer cg.Close()

	mcpServer := server.NewMCPServer(
		"concept-graph",
		"1.0.0",
		server.WithLogging(),
		server.WithPromptCapabilities(true),
	)

	tools.RegisterToolManagerTool(mcpServer)
	if cfg.ToolEnabled("concept_graph") {
		tools.RegisterConceptGraphTools(mcpServer, cg)
	}
	if cfg.ToolEnabled("fetch") {
		tools.RegisterFetchTool(mcpServer)
	}
	prompts.RegisterConceptMapPrompts(mcpServer)

	go collectSystemMetrics(ctx)

	var httpServer *http.Server
	if *enableHTTP {
		httpServer = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           api.NewRouter(cg, logger).Setup(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Infof("Starting HTTP API on %s", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Fatal("HTTP server failed")
			}
		}()
	}

	if *enableSSE || cfg.EnableSSE {
		sseServer := server.NewSSEServer(
			mcpServer,
			server.WithBasePath(*sseBasePath),
			server.WithKeepAlive(true),
		)

		go func() {
			logger.Infof("Starting SSE server on %s with base path %s", *sseAddr, *sseBasePath)
			if err := sseServer.Start(*sseAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Fatal("Failed to start SSE server")
			}
		}()

		<-ctx.Done()
		logger.Info("Received shutdown signal, shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sseServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Error during SSE server shutdown")
		}
		shutdownHTTP(shutdownCtx, httpServer, logger)
		logger.Info("SSE server shutdown complete")
		return
	}

	if err := server.ServeStdio(mcpServer); err != nil {
		logger.WithError(err).Error("Server error")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownHTTP(shutdownCtx, httpServer, logger)
}

func shutdownHTTP(ctx context.Context, srv *http.Server, logger *logrus.Logger) {
	if srv == nil {
		return
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Error during HTTP server shutdown")
	}
}

func collectSystemMetrics(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		metrics.UpdateSystemMetrics()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
