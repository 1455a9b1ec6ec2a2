package services

import (
	"fmt"
	"net/http"
	"time"

	"ChatHub/pkg/config"
	"ChatHub/pkg/errs"
	"ChatHub/pkg/logger"
)

// NewGenerator returns the provider selected by cfg.Provider.
func NewGenerator(cfg config.LLM, log *logger.Logger) (Generator, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		// No client timeout: a response may stream for minutes. Requests are
		// bounded by their context instead.
		return NewGeminiGenerator(cfg, &http.Client{}, log), nil
	case config.ProviderOpenAI:
		return NewOpenAIGenerator(cfg, log), nil
	case config.ProviderLocal:
		return NewLocalGenerator(40 * time.Millisecond), nil
	}
	return nil, fmt.Errorf("%w: unknown provider %q", errs.ErrConfiguration, cfg.Provider)
}
