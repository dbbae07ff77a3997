package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/ericksa/contractlens/internal/logging"
)

// GeminiClient implements Gateway on the Google GenAI API.
type GeminiClient struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

var _ Gateway = (*GeminiClient)(nil)

// NewGeminiClient creates a Gemini-backed gateway.
func NewGeminiClient(ctx context.Context, cfg Config, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w: missing api key", ErrNotConfigured)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiClient{
		client: client,
		model:  cfg.Model,
		logger: logging.OrNop(logger).Named("llm.gemini"),
	}, nil
}

// Complete sends the request as a GenerateContent call.
func (c *GeminiClient) Complete(ctx context.Context, req Request) (Response, error) {
	if c == nil || c.client == nil {
		return Response{}, ErrNotConfigured
	}
	if len(req.Messages) == 0 {
		return Response{}, ErrNoMessages
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	instructions, turns := splitSystem(req.Messages)
	contents := make([]*genai.Content, 0, len(turns))
	for _, m := range turns {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if instructions != "" {
		config.SystemInstruction = genai.NewContentFromText(instructions, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.JSON || req.Schema != nil {
		config.ResponseMIMEType = "application/json"
	}
	if req.Schema != nil {
		config.ResponseJsonSchema = req.Schema.Definition
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return Response{}, fmt.Errorf("gemini generate: %w", geminiError(err))
	}

	text := strings.TrimSpace(resp.Text())
	c.logger.Debug("completion received",
		zap.String("model", model),
		zap.Int("output_chars", len(text)),
	)
	return Response{Text: text, Model: model}, nil
}

// geminiError maps API failures to StatusError so Retrying can classify them.
func geminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &StatusError{StatusCode: apiErr.Code, Message: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &StatusError{StatusCode: apiErrPtr.Code, Message: apiErrPtr.Message}
	}
	return err
}
