package core

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/mayank-dotcom/botsystem/internal/apperrors"
	"github.com/mayank-dotcom/botsystem/internal/store"
)

const embedDocumentTitleLen = 60

// EmbedDocument is one rank a widget may ask about.
type EmbedDocument struct {
	Rank  int    `json:"rank"`
	Title string `json:"title"`
}

// DocumentSelector picks the knowledge chunk an answer is grounded on.
type DocumentSelector struct {
	store              store.Store
	legacySingleTenant bool
	logger             *zap.Logger
}

func NewDocumentSelector(s store.Store, legacySingleTenant bool, logger *zap.Logger) *DocumentSelector {
	return &DocumentSelector{store: s, legacySingleTenant: legacySingleTenant, logger: logger.Named("selector")}
}

// SelectChunk returns the chunk at the 1-based rank among the candidates for
// the connection, or for the organization when no connection selects any.
// Candidate order is the store's insertion order, not selector order.
func (s *DocumentSelector) SelectChunk(ctx context.Context, conn *store.Connection, organizationID string, rank int) (*store.KnowledgeChunk, error) {
	if rank < 1 {
		return nil, apperrors.ErrNoDocumentAtRank
	}
	chunks, err := s.candidates(ctx, conn, organizationID)
	if err != nil {
		return nil, err
	}
	if rank > len(chunks) {
		return nil, apperrors.ErrNoDocumentAtRank
	}
	chunk := chunks[rank-1]
	return &chunk, nil
}

// ListEmbedDocuments lists the ranks SelectChunk would accept, with a short title each.
func (s *DocumentSelector) ListEmbedDocuments(ctx context.Context, conn *store.Connection, organizationID string) ([]EmbedDocument, error) {
	chunks, err := s.candidates(ctx, conn, organizationID)
	if err != nil {
		return nil, err
	}
	docs := make([]EmbedDocument, 0, len(chunks))
	for i, c := range chunks {
		docs = append(docs, EmbedDocument{Rank: i + 1, Title: chunkTitle(c.Content)})
	}
	return docs, nil
}

func (s *DocumentSelector) candidates(ctx context.Context, conn *store.Connection, organizationID string) ([]store.KnowledgeChunk, error) {
	if conn != nil {
		organizationID = conn.OrganizationID
		if len(conn.KnowledgeSelectors) > 0 {
			chunks, err := s.store.FindChunksByContent(ctx, conn.OrganizationID, conn.KnowledgeSelectors)
			if err != nil {
				return nil, fmt.Errorf("failed to load connection chunks: %w", err)
			}
			return chunks, nil
		}
	}

	var chunks []store.KnowledgeChunk
	if organizationID != "" {
		var err error
		chunks, err = s.store.ListChunksByOrganization(ctx, organizationID)
		if err != nil {
			return nil, fmt.Errorf("failed to load organization chunks: %w", err)
		}
	}
	if len(chunks) == 0 && s.legacySingleTenant {
		s.logger.Debug("Falling back to global chunk set", zap.String("organization_id", organizationID))
		all, err := s.store.ListAllChunks(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load chunks: %w", err)
		}
		return all, nil
	}
	return chunks, nil
}

func chunkTitle(content string) string {
	line := strings.TrimSpace(content)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if utf8.RuneCountInString(line) <= embedDocumentTitleLen {
		return line
	}
	runes := []rune(line)
	return strings.TrimSpace(string(runes[:embedDocumentTitleLen])) + "..."
}
