package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Completer is the text-completion capability behind the chat pipeline.
// template carries {context} and {question} placeholders that the
// implementation fills before calling the model.
type Completer interface {
	Complete(ctx context.Context, template, contextText, question string) (string, error)
}

// Embedder turns chunk content into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

const (
	defaultGeminiChatModel      = "gemini-1.5-flash-latest"
	defaultGeminiEmbeddingModel = "text-embedding-004"

	completionTemperature = 0.3
	completionMaxTokens   = 210
)

// FillTemplate substitutes the chunk and question into a prompt template.
// Custom prompts may omit a placeholder; the missing part is appended so the
// model still sees the chunk and the question.
func FillTemplate(template, contextText, question string) string {
	out := template
	if !strings.Contains(out, "{context}") {
		out += "\n\nContext:\n{context}"
	}
	if !strings.Contains(out, "{question}") {
		out += "\n\nUser question: {question}\nAnswer:"
	}
	return strings.NewReplacer("{context}", contextText, "{question}", question).Replace(out)
}

// GeminiClient implements Completer and Embedder on Google's Generative AI API.
type GeminiClient struct {
	client         *genai.Client
	chatModel      string
	embeddingModel string
	logger         *zap.Logger
}

func NewGeminiClient(ctx context.Context, apiKey, embeddingModel string, logger *zap.Logger) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if embeddingModel == "" {
		embeddingModel = defaultGeminiEmbeddingModel
	}
	return &GeminiClient{
		client:         client,
		chatModel:      defaultGeminiChatModel,
		embeddingModel: embeddingModel,
		logger:         logger.Named("gemini"),
	}, nil
}

func (c *GeminiClient) Close() {
	if c.client == nil {
		return
	}
	if err := c.client.Close(); err != nil {
		c.logger.Warn("Error closing GenAI client", zap.Error(err))
	}
}

func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	em := c.client.EmbeddingModel(c.embeddingModel)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embedding request failed: %w", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("no embedding data received from gemini")
	}
	return res.Embedding.Values, nil
}

func (c *GeminiClient) Complete(ctx context.Context, template, contextText, question string) (string, error) {
	model := c.client.GenerativeModel(c.chatModel)

	temp := float32(completionTemperature)
	maxTokens := int32(completionMaxTokens)
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: &maxTokens,
		Temperature:     &temp,
	}

	resp, err := model.GenerateContent(ctx, genai.Text(FillTemplate(template, contextText, question)))
	if err != nil {
		return "", fmt.Errorf("gemini completion request failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		} else {
			c.logger.Debug("Skipping non-text response part", zap.String("type", fmt.Sprintf("%T", part)))
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("gemini returned an empty completion")
	}
	return text.String(), nil
}
