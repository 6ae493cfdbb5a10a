package core

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mayank-dotcom/botsystem/internal/apperrors"
	"github.com/mayank-dotcom/botsystem/internal/store"
)

// embedInterval keeps bulk ingestion under the embedding API rate limit (1500/min).
const embedInterval = 40 * time.Millisecond

// KnowledgeService produces knowledge chunks for an organization.
type KnowledgeService struct {
	store    store.Store
	embedder Embedder
	activity *ActivityRecorder
	interval time.Duration
	logger   *zap.Logger
}

func NewKnowledgeService(s store.Store, embedder Embedder, activity *ActivityRecorder, logger *zap.Logger) *KnowledgeService {
	return &KnowledgeService{
		store:    s,
		embedder: embedder,
		activity: activity,
		interval: embedInterval,
		logger:   logger.Named("knowledge"),
	}
}

// AddChunk embeds content and stores it as a new chunk. A connection already
// selecting the content becomes its back-reference.
func (s *KnowledgeService) AddChunk(ctx context.Context, organizationID, content string) (*store.KnowledgeChunk, error) {
	chunk, err := s.addChunk(ctx, organizationID, content)
	if err != nil {
		return nil, err
	}
	s.activity.Record(ctx, organizationID, ActionAddDocument, store.CollectionKnowledgeChunks, map[string]any{
		"chunkId": chunk.ID,
		"title":   chunkTitle(chunk.Content),
	})
	return chunk, nil
}

// DeleteChunk removes one of the organization's chunks. Rank-based document
// selection shifts for every chunk stored after it.
func (s *KnowledgeService) DeleteChunk(ctx context.Context, organizationID string, id int64) error {
	if err := s.store.DeleteChunk(ctx, organizationID, id); err != nil {
		return err
	}
	s.logger.Info("Deleted knowledge chunk", zap.String("organization_id", organizationID), zap.Int64("chunk_id", id))
	s.activity.Record(ctx, organizationID, ActionDeleteDocument, store.CollectionKnowledgeChunks, map[string]any{
		"chunkId": id,
	})
	return nil
}

func (s *KnowledgeService) addChunk(ctx context.Context, organizationID, content string) (*store.KnowledgeChunk, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, &apperrors.MissingFieldError{Field: "content"}
	}

	embedding, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunk: %w", err)
	}

	chunk := &store.KnowledgeChunk{OrganizationID: organizationID, Content: content, Embedding: embedding}
	if err := s.store.CreateChunk(ctx, chunk); err != nil {
		return nil, err
	}
	return chunk, nil
}

func (s *KnowledgeService) ListChunks(ctx context.Context, organizationID string) ([]store.KnowledgeChunk, error) {
	return s.store.ListChunksByOrganization(ctx, organizationID)
}

// ParseMarkdownTable extracts the cell of every row of a single-column
// Markdown table. The header row and separator are skipped.
func ParseMarkdownTable(r io.Reader) ([]string, error) {
	var rows []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	seenHeader := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "|") || !strings.HasSuffix(line, "|") || len(line) < 2 {
			continue
		}
		cell := strings.TrimSpace(line[1 : len(line)-1])
		if !seenHeader {
			seenHeader = true
			continue
		}
		if strings.Trim(cell, "-: ") == "" {
			continue
		}
		rows = append(rows, cell)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read table: %w", err)
	}
	return rows, nil
}

// IngestMarkdownTable stores one chunk per table row, embedding each at a
// bounded rate. Rows that fail to embed are skipped and logged.
func (s *KnowledgeService) IngestMarkdownTable(ctx context.Context, organizationID string, r io.Reader) (int, error) {
	rows, err := ParseMarkdownTable(r)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		s.logger.Warn("No rows found in table; expected a single-column Markdown table")
		return 0, nil
	}
	s.logger.Info("Embedding table rows", zap.Int("rows", len(rows)), zap.String("organization_id", organizationID))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	count := 0
	defer func() {
		if count > 0 {
			s.activity.Record(ctx, organizationID, ActionIngestDocuments, store.CollectionKnowledgeChunks, map[string]any{
				"rows":     len(rows),
				"ingested": count,
			})
		}
	}()
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		select {
		case <-ctx.Done():
			return count, ctx.Err()
		case <-ticker.C:
		}

		if _, err := s.addChunk(ctx, organizationID, row); err != nil {
			s.logger.Warn("Skipping row",
				zap.Int("row", i+1),
				zap.String("preview", chunkTitle(row)),
				zap.Error(err))
			continue
		}
		count++
	}
	return count, nil
}
