package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	"github.com/ericksa/contractlens/internal/logging"
)

// OpenAIClient implements Gateway on the OpenAI Responses API.
type OpenAIClient struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

var _ Gateway = (*OpenAIClient)(nil)

// NewOpenAIClient builds a client from configuration. SDK retries are
// disabled; wrap the client in Retrying for a retry policy.
func NewOpenAIClient(cfg Config, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: %w: missing api key", ErrNotConfigured)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	client := openai.NewClient(opts...)
	return &OpenAIClient{
		client: &client,
		model:  cfg.Model,
		logger: logging.OrNop(logger).Named("llm.openai"),
	}, nil
}

// Complete sends the request and returns the concatenated output text.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
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

	params := c.buildParams(model, req)
	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("openai responses: %w", err)
	}

	text := strings.TrimSpace(resp.OutputText())
	c.logger.Debug("completion received",
		zap.String("model", model),
		zap.Int("output_chars", len(text)),
	)
	return Response{Text: text, Model: model}, nil
}

func (c *OpenAIClient) buildParams(model string, req Request) responses.ResponseNewParams {
	instructions, turns := splitSystem(req.Messages)

	input := make([]responses.ResponseInputItemUnionParam, 0, len(turns))
	for _, m := range turns {
		role := responses.EasyInputMessageRoleUser
		if m.Role == RoleAssistant {
			role = responses.EasyInputMessageRoleAssistant
		}
		input = append(input, responses.ResponseInputItemParamOfMessage(m.Content, role))
	}

	params := responses.ResponseNewParams{
		Model:       model,
		Temperature: openai.Float(req.Temperature),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: input,
		},
	}
	if instructions != "" {
		params.Instructions = openai.String(instructions)
	}
	if req.MaxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(req.MaxTokens))
	}

	switch {
	case req.Schema != nil:
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:        req.Schema.Name,
					Schema:      req.Schema.Definition,
					Strict:      openai.Bool(true),
					Description: openai.String(req.Schema.Description),
					Type:        "json_schema",
				},
			},
		}
	case req.JSON:
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
			},
		}
	}
	return params
}
