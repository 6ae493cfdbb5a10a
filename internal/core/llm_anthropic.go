package core

import (
	"context"
	"fmt"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

// AnthropicClient implements Completer on the Anthropic Messages API.
// Anthropic has no embedding endpoint; pair it with another Embedder.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
	logger *zap.Logger
}

func NewAnthropicClient(apiKey, model string, logger *zap.Logger) *AnthropicClient {
	return &AnthropicClient{
		client: anthropic.NewClient(apiKey),
		model:  model,
		logger: logger.Named("anthropic"),
	}
}

func (c *AnthropicClient) Complete(ctx context.Context, template, contextText, question string) (string, error) {
	prompt := FillTemplate(template, contextText, question)
	temp := float32(completionTemperature)

	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		MaxTokens:   completionMaxTokens,
		Temperature: &temp,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic completion request failed: %w", err)
	}

	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil && *block.Text != "" {
			return *block.Text, nil
		}
	}
	return "", fmt.Errorf("anthropic returned an empty completion")
}
