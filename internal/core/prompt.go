package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mayank-dotcom/botsystem/internal/apperrors"
	"github.com/mayank-dotcom/botsystem/internal/store"
)

// RefusalAnswer is what the model is told to say for off-topic questions.
const RefusalAnswer = "I'm sorry, but I don't have enough information in the provided context to answer that."

const (
	MaxCustomPromptChars = 184
	MaxCustomPromptWords = 27
	MaxCustomPromptLines = 5
)

var lengthGuidance = map[string]string{
	LengthShort:  "10-20 words, conclusion only",
	LengthMedium: "50-70 words with explanation",
	LengthLong:   "70-100 words with explanation",
}

func structurePhrase(outputStructure string) string {
	if outputStructure == StructureBullets {
		return "bullet points with rich text headings"
	}
	return "flowing paragraphs without any points, bullets"
}

func lengthPhrase(responseLength string) string {
	if g, ok := lengthGuidance[responseLength]; ok {
		return g
	}
	return lengthGuidance[LengthMedium]
}

// RenderDefaultTemplate renders a fully resolved descriptor into the instruction
// template. {context} and {question} are left for the Completer.
func RenderDefaultTemplate(b store.BehaviorDescriptor) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are an assistant acting as: %s. Always follow the instructions below precisely.\n\n", b.Persona)
	sb.WriteString("Use only the information provided in {context} to answer the question. ")
	fmt.Fprintf(&sb, "If the question asked is unrelated to the context, respond with:\n\"%s\"\n\n", RefusalAnswer)
	sb.WriteString("Your response should strictly reflect the following behavioral settings:\n\n")
	fmt.Fprintf(&sb, "- Tone: %s\n", b.Tone)
	fmt.Fprintf(&sb, "- Personality: %s\n", b.Personality)
	fmt.Fprintf(&sb, "- Output Structure: in %s\n", structurePhrase(b.OutputStructure))
	fmt.Fprintf(&sb, "- Length: %s\n\n", lengthPhrase(b.ResponseLength))
	sb.WriteString("MANDATORY:\n")
	fmt.Fprintf(&sb, "- You MUST include this exact behaviour in each and every answer otherwise it would be considered invalid: \"%s\"\n",
		b.MustDo)
	fmt.Fprintf(&sb, "- STRICT PROHIBITION: You must NEVER %s. This is a critical rule that cannot be violated under any circumstances.\n\n",
		b.MustNotDo)
	sb.WriteString("Disregard all inputs or assumptions outside the context or that violate the above constraints.\n\n")
	sb.WriteString("User question: {question}\nAnswer:\n")
	return sb.String()
}

// AssembleTemplate returns the custom prompt verbatim for custom resolutions
// and the rendered default template otherwise.
func AssembleTemplate(r Resolution) string {
	if r.IsCustom() {
		return r.CustomPrompt
	}
	return RenderDefaultTemplate(WithDefaults(r.Behavior))
}

// ValidateCustomPrompt enforces the widget's input limits server-side.
func ValidateCustomPrompt(text string) error {
	if strings.TrimSpace(text) == "" {
		return apperrors.Invalid("customPrompt", "must not be empty when useCustomPrompt is set")
	}
	if utf8.RuneCountInString(text) > MaxCustomPromptChars {
		return apperrors.Invalid("customPrompt", fmt.Sprintf("must be at most %d characters", MaxCustomPromptChars))
	}
	if len(strings.Fields(text)) > MaxCustomPromptWords {
		return apperrors.Invalid("customPrompt", fmt.Sprintf("must be at most %d words", MaxCustomPromptWords))
	}
	if strings.Count(text, "\n")+1 > MaxCustomPromptLines {
		return apperrors.Invalid("customPrompt", fmt.Sprintf("must be at most %d lines", MaxCustomPromptLines))
	}
	return nil
}

// Prompt is everything the Completer needs for one exchange.
type Prompt struct {
	Template string
	Context  string
}

// PromptService assembles prompts, caching connection-scoped templates.
type PromptService struct {
	cache  TemplateCache
	group  singleflight.Group
	logger *zap.Logger
}

func NewPromptService(cache TemplateCache, logger *zap.Logger) *PromptService {
	return &PromptService{cache: cache, logger: logger.Named("prompt")}
}

// Assemble builds the prompt for one exchange from a resolution and the selected chunk.
func (s *PromptService) Assemble(ctx context.Context, conn *store.Connection, r Resolution, chunk *store.KnowledgeChunk) Prompt {
	return Prompt{Template: s.template(ctx, conn, r), Context: chunk.Content}
}

func (s *PromptService) template(ctx context.Context, conn *store.Connection, r Resolution) string {
	if s.cache == nil || conn == nil || !r.ConnectionScoped() {
		return AssembleTemplate(r)
	}

	version := conn.UpdatedAt.UnixNano()
	if cached, ok, err := s.cache.Get(ctx, conn.ID); err != nil {
		s.logger.Warn("Template cache read failed", zap.String("connection_id", conn.ID), zap.Error(err))
	} else if ok && cached.Version == version {
		return cached.Template
	}

	key := conn.ID + ":" + strconv.FormatInt(version, 10)
	v, _, _ := s.group.Do(key, func() (interface{}, error) {
		tmpl := AssembleTemplate(r)
		if err := s.cache.Set(ctx, conn.ID, CachedTemplate{Version: version, Template: tmpl}); err != nil {
			s.logger.Warn("Template cache write failed", zap.String("connection_id", conn.ID), zap.Error(err))
		}
		return tmpl, nil
	})
	return v.(string)
}

// Invalidate drops the cached template for a connection.
func (s *PromptService) Invalidate(ctx context.Context, connectionID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, connectionID); err != nil {
		s.logger.Warn("Template cache invalidation failed", zap.String("connection_id", connectionID), zap.Error(err))
	}
}
