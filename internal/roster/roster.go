package roster

import (
	"strings"

	"go.uber.org/zap"
)

// Checker decides whether a sender address belongs to the student body.
// An empty domain list accepts everyone, which is the permissive default
// for courses without a dedicated student domain.
type Checker struct {
	domains []string
	logger  *zap.Logger
}

// NewChecker creates a checker for the given student domains.
func NewChecker(domains []string, logger *zap.Logger) *Checker {
	normalized := make([]string, 0, len(domains))
	for _, domain := range domains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain != "" {
			normalized = append(normalized, domain)
		}
	}

	if len(normalized) > 0 && logger != nil {
		logger.Info("Initialized student roster checker", zap.Strings("domains", normalized))
	}

	return &Checker{
		domains: normalized,
		logger:  logger,
	}
}

// IsStudent checks if the address belongs to a configured student domain
func (c *Checker) IsStudent(addr string) bool {
	if len(c.domains) == 0 {
		return true
	}

	parts := strings.Split(addr, "@")
	if len(parts) != 2 {
		return false
	}
	domain := strings.ToLower(parts[1])

	for _, studentDomain := range c.domains {
		if domain == studentDomain || strings.HasSuffix(domain, "."+studentDomain) {
			if c.logger != nil {
				c.logger.Debug("Sender matched student domain",
					zap.String("domain", domain),
					zap.String("addr", addr))
			}
			return true
		}
	}

	return false
}
