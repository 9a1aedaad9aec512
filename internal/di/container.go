package di

import (
	"time"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/ta-triage/internal/config"
	"github.com/mikey/ta-triage/internal/core"
	"github.com/mikey/ta-triage/internal/factory"
	"github.com/mikey/ta-triage/internal/logging"
	"github.com/mikey/ta-triage/internal/metrics"
	"github.com/mikey/ta-triage/internal/roster"
	"github.com/mikey/ta-triage/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register text processor
	if err := container.Provide(utils.NewTextProcessor); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewLLMFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewTransportFactory); err != nil {
		return nil, err
	}

	// Register LLM provider and its two ports
	if err := container.Provide(func(f *factory.LLMFactory) (factory.Provider, error) {
		return f.CreateProvider()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(p factory.Provider) core.Classifier {
		return p
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(p factory.Provider) core.Responder {
		return p
	}); err != nil {
		return nil, err
	}

	// Register knowledge store and transport
	if err := container.Provide(func(f *factory.StoreFactory) (core.KnowledgeStore, error) {
		return f.CreateKnowledgeStore()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.TransportFactory) (core.Transport, error) {
		return f.CreateTransport()
	}); err != nil {
		return nil, err
	}

	// Register core state
	if err := container.Provide(core.NewSenderLedger); err != nil {
		return nil, err
	}
	if err := container.Provide(core.NewApprovalQueue); err != nil {
		return nil, err
	}
	if err := container.Provide(func(cfg *config.Config) *core.QuotaCounter {
		return core.NewQuotaCounter(cfg.GetInt("triage.daily_cap"), time.Now())
	}); err != nil {
		return nil, err
	}

	// Register student roster checker
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *roster.Checker {
		return roster.NewChecker(cfg.GetStringSlice("triage.student_domains"), logger)
	}); err != nil {
		return nil, err
	}

	// Register metrics
	if err := container.Provide(metrics.NewDefault); err != nil {
		return nil, err
	}

	// Register coordinator configuration
	if err := container.Provide(newCoordinatorConfig); err != nil {
		return nil, err
	}

	// Register coordinator
	if err := container.Provide(core.NewCoordinator); err != nil {
		return nil, err
	}

	return container, nil
}

func newCoordinatorConfig(cfg *config.Config) (core.CoordinatorConfig, error) {
	pollInterval, err := cfg.GetDuration("triage.poll_interval")
	if err != nil {
		return core.CoordinatorConfig{}, err
	}
	resetInterval, err := cfg.GetDuration("triage.reset_check_interval")
	if err != nil {
		return core.CoordinatorConfig{}, err
	}
	callTimeout, err := cfg.GetDuration("triage.call_timeout")
	if err != nil {
		return core.CoordinatorConfig{}, err
	}

	return core.CoordinatorConfig{
		Policy: core.PolicyConfig{
			RequireApproval:          cfg.GetBool("triage.require_approval"),
			GradeConfidenceThreshold: cfg.GetFloat64("triage.confidence_threshold"),
		},
		ReviewAddress:      cfg.GetString("triage.review_address"),
		PollInterval:       pollInterval,
		ResetCheckInterval: resetInterval,
		MaxConcurrency:     cfg.GetInt("triage.max_concurrency"),
		CallTimeout:        callTimeout,
	}, nil
}
