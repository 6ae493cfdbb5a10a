package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mayank-dotcom/botsystem/internal/apperrors"
	"github.com/mayank-dotcom/botsystem/internal/store"
)

const faqTable = `
| Content |
|---------|
| Opening hours are 9 to 5. |

| Returns are accepted within 30 days. |
not a table row
| Shipping is free over $50. |
`

func TestParseMarkdownTable(t *testing.T) {
	rows, err := ParseMarkdownTable(strings.NewReader(faqTable))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Opening hours are 9 to 5.",
		"Returns are accepted within 30 days.",
		"Shipping is free over $50.",
	}, rows)

	rows, err = ParseMarkdownTable(strings.NewReader("no table here"))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func newTestKnowledge(t *testing.T, embedder Embedder) (*KnowledgeService, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	svc := NewKnowledgeService(env.store, embedder, env.activity, zap.NewNop())
	svc.interval = time.Millisecond
	return svc, env
}

func TestIngestMarkdownTable(t *testing.T) {
	embedder := &MockEmbedder{}
	svc, env := newTestKnowledge(t, embedder)
	ctx := WithActor(context.Background(), "cli")

	n, err := svc.IngestMarkdownTable(ctx, "org1", strings.NewReader(faqTable))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.EqualValues(t, 3, embedder.Calls())

	chunks, err := svc.ListChunks(ctx, "org1")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "Opening hours are 9 to 5.", chunks[0].Content)

	other, err := svc.ListChunks(ctx, "org2")
	require.NoError(t, err)
	assert.Empty(t, other)

	// one entry for the whole run, not one per row
	logs, err := env.activity.List(ctx, "org1", 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, ActionIngestDocuments, logs[0].Action)
	assert.Equal(t, "cli", logs[0].ActorID)
	assert.EqualValues(t, 3, logs[0].Details["ingested"])
}

func TestIngestMarkdownTable_SkipsFailedRows(t *testing.T) {
	embedder := &MockEmbedder{EmbedFunc: func(_ context.Context, text string) ([]float32, error) {
		if strings.HasPrefix(text, "Returns") {
			return nil, errors.New("quota exceeded")
		}
		return []float32{1, 0}, nil
	}}
	svc, _ := newTestKnowledge(t, embedder)

	n, err := svc.IngestMarkdownTable(context.Background(), "org1", strings.NewReader(faqTable))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestIngestMarkdownTable_StopsOnCancel(t *testing.T) {
	svc, _ := newTestKnowledge(t, &MockEmbedder{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := svc.IngestMarkdownTable(ctx, "org1", strings.NewReader(faqTable))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
}

func TestAddChunk(t *testing.T) {
	svc, env := newTestKnowledge(t, &MockEmbedder{})
	ctx := context.Background()

	_, err := svc.AddChunk(ctx, "org1", "   ")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	chunk, err := svc.AddChunk(ctx, "org1", "  Doc A  ")
	require.NoError(t, err)
	assert.Equal(t, "Doc A", chunk.Content)

	got, err := env.selector.SelectChunk(ctx, nil, "org1", 1)
	require.NoError(t, err)
	assert.Equal(t, "Doc A", got.Content)
}

func TestDeleteChunk_ShiftsRanks(t *testing.T) {
	svc, env := newTestKnowledge(t, &MockEmbedder{})
	ctx := context.Background()

	var ids []int64
	for _, content := range []string{"Doc A", "Doc B", "Doc C"} {
		chunk, err := svc.AddChunk(ctx, "org1", content)
		require.NoError(t, err)
		ids = append(ids, chunk.ID)
	}

	got, err := env.selector.SelectChunk(ctx, nil, "org1", 2)
	require.NoError(t, err)
	assert.Equal(t, "Doc B", got.Content)

	assert.ErrorIs(t, svc.DeleteChunk(ctx, "org2", ids[1]), apperrors.ErrChunkNotFound)
	require.NoError(t, svc.DeleteChunk(ctx, "org1", ids[1]))

	got, err = env.selector.SelectChunk(ctx, nil, "org1", 2)
	require.NoError(t, err)
	assert.Equal(t, "Doc C", got.Content)

	_, err = env.selector.SelectChunk(ctx, nil, "org1", 3)
	assert.ErrorIs(t, err, apperrors.ErrNoDocumentAtRank)

	logs, err := env.activity.List(ctx, "org1", 0)
	require.NoError(t, err)
	require.Len(t, logs, 4)
	assert.Equal(t, ActionDeleteDocument, logs[0].Action)
	assert.Equal(t, SystemActor, logs[0].ActorID)
	assert.EqualValues(t, ids[1], logs[0].Details["chunkId"])
	assert.Equal(t, ActionAddDocument, logs[1].Action)
	assert.Equal(t, store.CollectionKnowledgeChunks, logs[1].CollectionType)
}
