package ai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"github.com/openai/openai-go/shared/constant"
)

// Completer sends one prompt to a language model and returns the raw JSON text
// it produced under schema.
type Completer interface {
	Complete(ctx context.Context, prompt string, schema map[string]any) (string, error)
}

// OpenAIConfig configures OpenAICompleter. BaseURL is optional.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// OpenAICompleter calls the OpenAI Responses API with a strict JSON schema.
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

func NewOpenAICompleter(cfg OpenAIConfig) *OpenAICompleter {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// The resolver owns the timeout and falls back on failure; SDK retries would outlive it.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = string(shared.ChatModelGPT4oMini)
	}
	client := openai.NewClient(opts...)
	return &OpenAICompleter{client: &client, model: model}
}

func (c *OpenAICompleter) Complete(ctx context.Context, prompt string, schema map[string]any) (string, error) {
	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(c.model),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: param.NewOpt(prompt),
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Type:        constant.JSONSchema("json_schema"),
					Name:        "intent_resolution",
					Strict:      param.NewOpt(true),
					Schema:      schema,
					Description: param.NewOpt("The classified intent of one user message with extracted parameters"),
				},
			},
		},
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai responses error: %w", err)
	}

	content := resp.OutputText()
	if content == "" {
		return "", fmt.Errorf("empty response content")
	}
	return content, nil
}
