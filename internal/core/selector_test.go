package core

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mayank-dotcom/botsystem/internal/apperrors"
	"github.com/mayank-dotcom/botsystem/internal/store"
)

func TestSelectChunk_ConnectionSelectors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedChunks(t, "org1", "Doc A", "Unrelated", "Doc B")
	conn := env.createConnection(t, "org1", ConnectionInput{Name: "bot", EmbedURL: "https://a", KnowledgeSelectors: []string{"Doc A", "Doc B"}})

	chunk, err := env.selector.SelectChunk(ctx, conn, "", 1)
	require.NoError(t, err)
	assert.Equal(t, "Doc A", chunk.Content)

	chunk, err = env.selector.SelectChunk(ctx, conn, "", 2)
	require.NoError(t, err)
	assert.Equal(t, "Doc B", chunk.Content)

	for _, rank := range []int{0, -1, 3, 100} {
		_, err := env.selector.SelectChunk(ctx, conn, "", rank)
		assert.ErrorIs(t, err, apperrors.ErrNoDocumentAtRank, "rank %d", rank)
	}
}

func TestSelectChunk_ResultIsAlwaysASelectedChunk(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	selectors := []string{"s1", "s3", "s5"}
	env.seedChunks(t, "org1", "s1", "s2", "s3", "s4", "s5")
	conn := env.createConnection(t, "org1", ConnectionInput{Name: "bot", EmbedURL: "https://a", KnowledgeSelectors: selectors})

	for rank := 1; rank <= len(selectors); rank++ {
		chunk, err := env.selector.SelectChunk(ctx, conn, "", rank)
		require.NoError(t, err)
		assert.Contains(t, selectors, chunk.Content)
	}
}

func TestSelectChunk_OrganizationFallback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedChunks(t, "org1", "first", "second")
	env.seedChunks(t, "org2", "foreign")

	chunk, err := env.selector.SelectChunk(ctx, nil, "org1", 2)
	require.NoError(t, err)
	assert.Equal(t, "second", chunk.Content)

	conn := env.createConnection(t, "org1", ConnectionInput{Name: "bot", EmbedURL: "https://a"})
	chunk, err = env.selector.SelectChunk(ctx, conn, "", 1)
	require.NoError(t, err)
	assert.Equal(t, "first", chunk.Content, "a connection without selectors uses its organization's chunks")

	_, err = env.selector.SelectChunk(ctx, nil, "org3", 1)
	assert.ErrorIs(t, err, apperrors.ErrNoDocumentAtRank, "no cross-tenant fallback outside legacy mode")
}

func TestSelectChunk_LegacySingleTenantFallsBackGlobally(t *testing.T) {
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "legacy.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()
	require.NoError(t, s.CreateChunk(ctx, &store.KnowledgeChunk{OrganizationID: "legacy", Content: "only doc"}))

	selector := NewDocumentSelector(s, true, zap.NewNop())
	chunk, err := selector.SelectChunk(ctx, nil, "", 1)
	require.NoError(t, err)
	assert.Equal(t, "only doc", chunk.Content)
}

func TestListEmbedDocuments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	long := "This is a rather long first line that will certainly be trimmed for display purposes\nsecond line"
	env.seedChunks(t, "org1", "Short doc", long)

	docs, err := env.selector.ListEmbedDocuments(ctx, nil, "org1")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, EmbedDocument{Rank: 1, Title: "Short doc"}, docs[0])
	assert.Equal(t, 2, docs[1].Rank)
	assert.True(t, len(docs[1].Title) <= embedDocumentTitleLen+3)
	assert.NotContains(t, docs[1].Title, "second line")
}
