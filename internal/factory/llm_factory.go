package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/ta-triage/internal/adapters/bedrock"
	"github.com/mikey/ta-triage/internal/adapters/gemini"
	"github.com/mikey/ta-triage/internal/adapters/openai"
	"github.com/mikey/ta-triage/internal/config"
	"github.com/mikey/ta-triage/internal/core"
	"github.com/mikey/ta-triage/internal/utils"
)

// Provider bundles the two LLM-backed ports implemented by one client.
type Provider interface {
	core.Classifier
	core.Responder
}

// LLMFactory creates LLM provider clients
type LLMFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewLLMFactory creates a new LLM factory
func NewLLMFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *LLMFactory {
	return &LLMFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateProvider creates a provider client based on the configuration
func (f *LLMFactory) CreateProvider() (Provider, error) {
	course := f.cfg.GetCourse()

	switch f.cfg.GetLLM().Provider {
	case "openai":
		return openai.NewClient(f.cfg.GetOpenAI(), course, f.logger, f.textProcessor), nil
	case "bedrock":
		return bedrock.NewClient(f.cfg.GetBedrock(), course, f.logger, f.textProcessor)
	case "gemini":
		return gemini.NewClient(f.cfg.GetGemini(), course, f.logger, f.textProcessor)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", f.cfg.GetLLM().Provider)
	}
}
