package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Providers understood by New.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config selects and configures a backend.
type Config struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
	Timeout  time.Duration
	Retry    RetryPolicy
}

// New constructs the configured backend wrapped in the retry decorator.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (Gateway, error) {
	var (
		backend Gateway
		err     error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderOpenAI, "":
		backend, err = NewOpenAIClient(cfg, logger)
	case ProviderGemini:
		backend, err = NewGeminiClient(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return NewRetrying(backend, cfg.Retry, logger), nil
}
