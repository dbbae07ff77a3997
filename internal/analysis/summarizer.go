package analysis

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ericksa/contractlens/internal/llm"
	"github.com/ericksa/contractlens/internal/logging"
)

const (
	summaryInputLimit = 8000
	summaryFallback   = "Could not read document."
)

const summarizerPrompt = `You are a legal document reader specializing in Indian contracts and agreements.
Read the contract and return a brief structural summary covering the document type,
the parties involved, key dates, duration and overall purpose.
Be concise: 3-5 sentences at most. Do not assess risk yet.`

// Summarizer produces a short structural synopsis of a document.
type Summarizer struct {
	gw     llm.Gateway
	model  string
	logger *zap.Logger
}

func NewSummarizer(gw llm.Gateway, model string, logger *zap.Logger) *Summarizer {
	return &Summarizer{gw: gw, model: model, logger: logging.OrNop(logger).Named("analysis.summarizer")}
}

// Summarize never fails; an unusable reply yields a fixed placeholder.
func (s *Summarizer) Summarize(ctx context.Context, text, fileName string) string {
	resp, err := s.gw.Complete(ctx, llm.Request{
		Model: s.model,
		Messages: []llm.Message{
			llm.System(summarizerPrompt),
			llm.User(fmt.Sprintf("File name: %s\n\nDocument text:\n%s", fileName, truncate(text, summaryInputLimit))),
		},
		Temperature: 0.2,
		MaxTokens:   512,
	})
	if err != nil {
		s.logger.Warn("summary call failed", zap.String("file", fileName), zap.Error(err))
		return summaryFallback
	}

	summary := strings.TrimSpace(resp.Text)
	if summary == "" {
		s.logger.Warn("summary came back empty", zap.String("file", fileName))
		return summaryFallback
	}
	return summary
}
