package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mikey/ta-triage/internal/config"
	"github.com/mikey/ta-triage/internal/core"
	"github.com/mikey/ta-triage/internal/di"
	"github.com/mikey/ta-triage/internal/factory"
	"github.com/mikey/ta-triage/internal/metrics"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	logger *zap.Logger,
	cfg *config.Config,
	coordinator *core.Coordinator,
	provider factory.Provider,
	knowledgeStore core.KnowledgeStore,
) error {
	defer logger.Sync()

	// Expose Prometheus metrics if enabled
	if cfg.GetBool("metrics.enabled") {
		metrics.Serve(cfg.GetString("metrics.listen_address"), logger)
	}

	// Start triage
	coordinator.Start()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	coordinator.Stop()

	// Close any resources that need closing
	if closer, ok := provider.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close LLM provider", zap.Error(err))
		}
	}
	if closer, ok := knowledgeStore.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close knowledge store", zap.Error(err))
		}
	}

	logger.Info("Shutdown complete")
	return nil
}
