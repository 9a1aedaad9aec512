package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/ta-triage/internal/adapters/mail"
	"github.com/mikey/ta-triage/internal/config"
	"github.com/mikey/ta-triage/internal/core"
)

// TransportFactory creates message transports based on configuration
type TransportFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewTransportFactory creates a new transport factory
func NewTransportFactory(cfg *config.Config, logger *zap.Logger) *TransportFactory {
	return &TransportFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateTransport creates a message transport based on the configuration
func (f *TransportFactory) CreateTransport() (core.Transport, error) {
	mailCfg := f.cfg.GetMail()

	switch mailCfg.Transport {
	case "imap":
		return mail.NewIMAPTransport(mailCfg, f.logger), nil
	default:
		return nil, fmt.Errorf("unsupported mail transport: %s", mailCfg.Transport)
	}
}
