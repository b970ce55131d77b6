package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/osvaldoandrade/autodeploy/pkg/config"
)

// OpenAILLM implements LLMClient with the openai-go chat completions API.
type OpenAILLM struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

func NewOpenAILLM(cfg config.AIConfig) (*OpenAILLM, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("ai api key missing")
	}
	if cfg.Model == "" {
		return nil, errors.New("ai model is required")
	}
	// Retries are owned by the caller's backoff policy, not the SDK.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAILLM{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}, nil
}

func (o *OpenAILLM) Complete(ctx context.Context, prompt Prompt) (string, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	msgs := []openai.ChatCompletionMessageParamUnion{}
	if prompt.System != "" {
		msgs = append(msgs, openai.SystemMessage(prompt.System))
	}
	msgs = append(msgs, openai.UserMessage(prompt.User))

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: msgs,
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("ai oracle returned status %d: %w", apiErr.StatusCode, err)
		}
		return "", fmt.Errorf("ai oracle request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("ai oracle: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}
