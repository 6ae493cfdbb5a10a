package core

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const defaultOpenAIEmbeddingModel = "text-embedding-3-small"

// OpenAIClient implements Completer and Embedder on the OpenAI API.
type OpenAIClient struct {
	client         *openai.Client
	model          string
	embeddingModel string
	logger         *zap.Logger
}

func NewOpenAIClient(apiKey, model, embeddingModel string, logger *zap.Logger) *OpenAIClient {
	if embeddingModel == "" {
		embeddingModel = defaultOpenAIEmbeddingModel
	}
	return &OpenAIClient{
		client:         openai.NewClient(apiKey),
		model:          model,
		embeddingModel: embeddingModel,
		logger:         logger.Named("openai"),
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, template, contextText, question string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: completionTemperature,
		MaxTokens:   completionMaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: FillTemplate(template, contextText, question)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("openai returned an empty completion")
	}

	c.logger.Debug("Completion finished",
		zap.String("model", c.model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))
	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.embeddingModel),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("no embedding data received from openai")
	}
	return resp.Data[0].Embedding, nil
}
