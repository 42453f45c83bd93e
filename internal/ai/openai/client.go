package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/spigell/interviewer/internal/ai"
	"github.com/spigell/interviewer/internal/logger"
	"github.com/spigell/interviewer/internal/utils"
)

const (
	Provider = "openai"

	defaultBaseURL = "https://openrouter.ai/api/v1/"
	defaultModel   = "google/gemini-2.5-flash"
)

// Generator talks to any OpenAI compatible chat completions endpoint.
type Generator struct {
	client *sdk.Client
	model  string
	logger *zap.Logger
}

func NewGenerator(apiKey, baseURL, model string, log *zap.Logger) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}
	if baseURL = strings.TrimSpace(baseURL); baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}

	client := sdk.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		// Failed exchanges are retried by the caller.
		option.WithMaxRetries(0),
	)

	return &Generator{
		client: client,
		model:  model,
		logger: logger.WithCommonFields(log, Provider, model),
	}, nil
}

func (g *Generator) Generate(ctx context.Context, req ai.Request) (string, error) {
	if g == nil || g.client == nil {
		return "", fmt.Errorf("%w: openai generator is not initialized", ai.ErrBackend)
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return "", fmt.Errorf("%w: message must not be empty", ai.ErrBackend)
	}

	resp, err := g.client.Chat.Completions.New(ctx, sdk.ChatCompletionNewParams{
		Messages: sdk.F(messages(req)),
		Model:    sdk.F(sdk.ChatModel(g.model)),
	})
	if err != nil {
		return "", fmt.Errorf("%w: chat completion: %w", ai.ErrBackend, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: chat completion returned no choices", ai.ErrBackend)
	}

	output := strings.TrimSpace(resp.Choices[0].Message.Content)
	if output == "" {
		return "", fmt.Errorf("%w: chat completion returned empty content", ai.ErrBackend)
	}

	g.logger.Debug("openai response",
		zap.String("preview", utils.TruncateForLog(output, 80)),
		zap.Int64("total_tokens", resp.Usage.TotalTokens),
	)

	return output, nil
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

func messages(req ai.Request) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if instruction := strings.TrimSpace(req.Instruction); instruction != "" {
		out = append(out, sdk.SystemMessage(instruction))
	}
	for _, turn := range req.History {
		text := strings.TrimSpace(turn.Text)
		if text == "" {
			continue
		}
		if turn.Role == ai.RoleAssistant {
			out = append(out, sdk.AssistantMessage(text))
			continue
		}
		out = append(out, sdk.UserMessage(text))
	}
	return append(out, sdk.UserMessage(strings.TrimSpace(req.Message)))
}
