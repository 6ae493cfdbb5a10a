package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mayank-dotcom/botsystem/internal/apperrors"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedChunks(t *testing.T, s Store, org string, contents ...string) []KnowledgeChunk {
	t.Helper()
	ctx := context.Background()
	var out []KnowledgeChunk
	for _, c := range contents {
		chunk := &KnowledgeChunk{OrganizationID: org, Content: c, Embedding: []float32{0.1, 0.2}}
		require.NoError(t, s.CreateChunk(ctx, chunk))
		out = append(out, *chunk)
	}
	return out
}

func strPtr(s string) *string { return &s }

func TestDiffSelectors(t *testing.T) {
	tests := []struct {
		name        string
		prev, next  []string
		wantRemoved []string
		wantAdded   []string
	}{
		{"empty to some", nil, []string{"A", "B"}, nil, []string{"A", "B"}},
		{"some to empty", []string{"A", "B"}, nil, []string{"A", "B"}, nil},
		{"swap one", []string{"A", "B"}, []string{"B", "C"}, []string{"A"}, []string{"C"}},
		{"unchanged", []string{"A", "B"}, []string{"B", "A"}, nil, nil},
		{"duplicates collapse", []string{"A", "A"}, []string{"C", "C"}, []string{"A"}, []string{"C"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			removed, added := DiffSelectors(tt.prev, tt.next)
			assert.Equal(t, tt.wantRemoved, removed)
			assert.Equal(t, tt.wantAdded, added)
		})
	}
}

func TestSQLiteStore_ConnectionRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	conn := &Connection{
		ID:                 "c1",
		OrganizationID:     "org1",
		Name:               "Docs bot",
		EmbedURL:           "https://example.com/docs",
		KnowledgeSelectors: []string{},
		Behavior:           &BehaviorDescriptor{Tone: "friendly"},
	}
	require.NoError(t, s.CreateConnection(ctx, conn))

	got, err := s.GetConnection(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Docs bot", got.Name)
	require.NotNil(t, got.Behavior)
	assert.Equal(t, "friendly", got.Behavior.Tone)
	assert.Empty(t, got.KnowledgeSelectors)

	byURL, err := s.FindConnectionByEmbedURL(ctx, "https://example.com/docs")
	require.NoError(t, err)
	require.NotNil(t, byURL)
	assert.Equal(t, "c1", byURL.ID)

	missing, err := s.GetConnection(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	dup := &Connection{ID: "c2", OrganizationID: "org2", Name: "x", EmbedURL: "https://example.com/docs"}
	err = s.CreateConnection(ctx, dup)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	got.Behavior = nil
	got.UseCustomPrompt = true
	got.CustomPromptText = "Answer like a pirate."
	require.NoError(t, s.UpdateConnection(ctx, got))

	updated, err := s.GetConnection(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, updated.Behavior)
	assert.True(t, updated.UseCustomPrompt)
	assert.Equal(t, "Answer like a pirate.", updated.CustomPromptText)

	err = s.UpdateConnection(ctx, &Connection{ID: "ghost", EmbedURL: "https://ghost"})
	assert.ErrorIs(t, err, apperrors.ErrConnectionNotFound)
}

func TestSQLiteStore_ListConnectionsScopedToOrganization(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateConnection(ctx, &Connection{ID: "a", OrganizationID: "org1", Name: "a", EmbedURL: "https://a"}))
	require.NoError(t, s.CreateConnection(ctx, &Connection{ID: "b", OrganizationID: "org2", Name: "b", EmbedURL: "https://b"}))

	conns, err := s.ListConnections(ctx, "org1")
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, "a", conns[0].ID)
}

func TestSQLiteStore_ReplaceConnectionSelectors(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	seedChunks(t, s, "org1", "A", "B", "C")
	seedChunks(t, s, "org2", "A")

	require.NoError(t, s.CreateConnection(ctx, &Connection{
		ID: "c1", OrganizationID: "org1", Name: "bot", EmbedURL: "https://bot", KnowledgeSelectors: []string{"A", "B"},
	}))

	n, err := s.CountChunksByConnection(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	removed, added, err := s.ReplaceConnectionSelectors(ctx, "c1", []string{"B", "C"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, removed)
	assert.Equal(t, []string{"C"}, added)

	chunks, err := s.ListChunksByOrganization(ctx, "org1")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Nil(t, chunks[0].AssociatedConnectionID, "A should be detached")
	assert.Equal(t, strPtr("c1"), chunks[1].AssociatedConnectionID)
	assert.Equal(t, strPtr("c1"), chunks[2].AssociatedConnectionID)

	other, err := s.ListChunksByOrganization(ctx, "org2")
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Nil(t, other[0].AssociatedConnectionID, "other tenants' chunks are never touched")

	conn, err := s.GetConnection(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C"}, conn.KnowledgeSelectors)

	_, _, err = s.ReplaceConnectionSelectors(ctx, "ghost", []string{"A"})
	assert.ErrorIs(t, err, apperrors.ErrConnectionNotFound)
}

func TestSQLiteStore_ReplaceSelectorsLeavesOtherConnectionsReferences(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	seedChunks(t, s, "org1", "A")
	require.NoError(t, s.CreateConnection(ctx, &Connection{ID: "c1", OrganizationID: "org1", Name: "1", EmbedURL: "https://1", KnowledgeSelectors: []string{"A"}}))
	require.NoError(t, s.CreateConnection(ctx, &Connection{ID: "c2", OrganizationID: "org1", Name: "2", EmbedURL: "https://2", KnowledgeSelectors: []string{"A"}}))

	// c2 now owns the back-reference; removing A from c1 must not clear it.
	_, _, err := s.ReplaceConnectionSelectors(ctx, "c1", nil)
	require.NoError(t, err)

	chunks, err := s.ListChunksByOrganization(ctx, "org1")
	require.NoError(t, err)
	assert.Equal(t, strPtr("c2"), chunks[0].AssociatedConnectionID)
}

func TestSQLiteStore_DeleteConnectionClearsBackReferences(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	seedChunks(t, s, "org1", "A", "B")
	require.NoError(t, s.CreateConnection(ctx, &Connection{
		ID: "c1", OrganizationID: "org1", Name: "bot", EmbedURL: "https://bot", KnowledgeSelectors: []string{"A", "B"},
	}))

	require.NoError(t, s.DeleteConnection(ctx, "c1"))

	n, err := s.CountChunksByConnection(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, n)

	gone, err := s.GetConnection(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, gone)

	assert.ErrorIs(t, s.DeleteConnection(ctx, "c1"), apperrors.ErrConnectionNotFound)
}

func TestSQLiteStore_ChunkCreatedAfterSelectionIsBound(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateConnection(ctx, &Connection{
		ID: "c1", OrganizationID: "org1", Name: "bot", EmbedURL: "https://bot", KnowledgeSelectors: []string{"Doc X"},
	}))

	late := seedChunks(t, s, "org1", "Doc X", "Doc Y")
	assert.Equal(t, strPtr("c1"), late[0].AssociatedConnectionID)
	assert.Nil(t, late[1].AssociatedConnectionID)

	// same content in another organization is not selected by c1
	other := seedChunks(t, s, "org2", "Doc X")
	assert.Nil(t, other[0].AssociatedConnectionID)

	n, err := s.CountChunksByConnection(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	explicit := &KnowledgeChunk{OrganizationID: "org1", Content: "Doc X", AssociatedConnectionID: strPtr("c9")}
	require.NoError(t, s.CreateChunk(ctx, explicit))
	assert.Equal(t, strPtr("c9"), explicit.AssociatedConnectionID)
}

func TestSQLiteStore_SharedChunkSurvivesDelete(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	seedChunks(t, s, "org1", "Doc X")
	require.NoError(t, s.CreateConnection(ctx, &Connection{ID: "a", OrganizationID: "org1", Name: "a", EmbedURL: "https://a", KnowledgeSelectors: []string{"Doc X"}}))
	require.NoError(t, s.CreateConnection(ctx, &Connection{ID: "b", OrganizationID: "org1", Name: "b", EmbedURL: "https://b", KnowledgeSelectors: []string{"Doc X"}}))

	chunks, err := s.ListChunksByOrganization(ctx, "org1")
	require.NoError(t, err)
	require.Equal(t, strPtr("b"), chunks[0].AssociatedConnectionID)

	require.NoError(t, s.DeleteConnection(ctx, "b"))

	chunks, err = s.ListChunksByOrganization(ctx, "org1")
	require.NoError(t, err)
	assert.Equal(t, strPtr("a"), chunks[0].AssociatedConnectionID, "a still selects Doc X")

	require.NoError(t, s.DeleteConnection(ctx, "a"))
	chunks, err = s.ListChunksByOrganization(ctx, "org1")
	require.NoError(t, err)
	assert.Nil(t, chunks[0].AssociatedConnectionID)
}

func TestSQLiteStore_SharedChunkSurvivesDeselect(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	seedChunks(t, s, "org1", "Doc X", "Doc Y")
	require.NoError(t, s.CreateConnection(ctx, &Connection{ID: "a", OrganizationID: "org1", Name: "a", EmbedURL: "https://a", KnowledgeSelectors: []string{"Doc X"}}))
	require.NoError(t, s.CreateConnection(ctx, &Connection{ID: "b", OrganizationID: "org1", Name: "b", EmbedURL: "https://b", KnowledgeSelectors: []string{"Doc X", "Doc Y"}}))

	removed, _, err := s.ReplaceConnectionSelectors(ctx, "b", nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Doc X", "Doc Y"}, removed)

	chunks, err := s.ListChunksByOrganization(ctx, "org1")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, strPtr("a"), chunks[0].AssociatedConnectionID)
	assert.Nil(t, chunks[1].AssociatedConnectionID, "nobody else selects Doc Y")
}

func TestSQLiteStore_DeleteChunk(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	seeded := seedChunks(t, s, "org1", "A", "B", "C")

	assert.ErrorIs(t, s.DeleteChunk(ctx, "org2", seeded[1].ID), apperrors.ErrChunkNotFound)
	require.NoError(t, s.DeleteChunk(ctx, "org1", seeded[1].ID))
	assert.ErrorIs(t, s.DeleteChunk(ctx, "org1", seeded[1].ID), apperrors.ErrChunkNotFound)

	chunks, err := s.ListChunksByOrganization(ctx, "org1")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "A", chunks[0].Content)
	assert.Equal(t, "C", chunks[1].Content)
}

func TestSQLiteStore_ActivityLogsNewestFirst(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, action := range []string{"first", "second", "third"} {
		entry := &ActivityLog{
			OrganizationID: "org1",
			ActorID:        "alice",
			Action:         action,
			CollectionType: CollectionConnections,
			Timestamp:      base.Add(time.Duration(i) * time.Minute),
		}
		if i == 2 {
			entry.Details = map[string]any{"connectionId": "c1"}
		}
		require.NoError(t, s.CreateActivityLog(ctx, entry))
		assert.NotZero(t, entry.ID)
	}
	require.NoError(t, s.CreateActivityLog(ctx, &ActivityLog{
		OrganizationID: "org2", ActorID: "bob", Action: "other", CollectionType: CollectionKnowledgeChunks,
	}))

	logs, err := s.ListActivityLogs(ctx, "org1", 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "third", logs[0].Action)
	assert.Equal(t, "second", logs[1].Action)
	assert.Equal(t, "alice", logs[0].ActorID)
	assert.Equal(t, map[string]any{"connectionId": "c1"}, logs[0].Details)
	assert.Nil(t, logs[1].Details)

	none, err := s.ListActivityLogs(ctx, "org3", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteStore_ChunksKeepInsertionOrder(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	seedChunks(t, s, "org1", "third", "first", "second")

	chunks, err := s.ListChunksByOrganization(ctx, "org1")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "third", chunks[0].Content)
	assert.Equal(t, "first", chunks[1].Content)
	assert.Equal(t, []float32{0.1, 0.2}, chunks[0].Embedding)

	found, err := s.FindChunksByContent(ctx, "org1", []string{"second", "third", "missing"})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "third", found[0].Content)
	assert.Equal(t, "second", found[1].Content)

	none, err := s.FindChunksByContent(ctx, "org2", []string{"third"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteStore_OrganizationBehaviorInsertOnce(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	err := s.UpdateOrganizationBehavior(ctx, &OrganizationBehavior{OrganizationID: "org1"})
	assert.ErrorIs(t, err, apperrors.ErrBehaviorNotFound)

	inserted, err := s.InsertOrganizationBehaviorIfAbsent(ctx, &OrganizationBehavior{
		OrganizationID: "org1", Behavior: BehaviorDescriptor{Tone: "formal"},
	})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.InsertOrganizationBehaviorIfAbsent(ctx, &OrganizationBehavior{
		OrganizationID: "org1", Behavior: BehaviorDescriptor{Tone: "casual"},
	})
	require.NoError(t, err)
	assert.False(t, inserted)

	ob, err := s.GetOrganizationBehavior(ctx, "org1")
	require.NoError(t, err)
	assert.Equal(t, "formal", ob.Behavior.Tone)

	require.NoError(t, s.UpdateOrganizationBehavior(ctx, &OrganizationBehavior{
		OrganizationID: "org1", Behavior: BehaviorDescriptor{Tone: "casual"},
	}))
	ob, err = s.GetOrganizationBehavior(ctx, "org1")
	require.NoError(t, err)
	assert.Equal(t, "casual", ob.Behavior.Tone)

	missing, err := s.GetOrganizationBehavior(ctx, "org2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteStore_MessagesPaginateNewestFirst(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"m1", "m2", "m3"} {
		require.NoError(t, s.CreateMessage(ctx, &ConversationMessage{
			MessageID:      id,
			UserID:         "u1",
			Question:       "q",
			AnswerHTML:     "a",
			Timestamp:      base.Add(time.Duration(i) * time.Minute),
			OrganizationID: strPtr("org1"),
		}))
	}
	require.NoError(t, s.CreateMessage(ctx, &ConversationMessage{
		MessageID: "other", UserID: "u2", Question: "q", AnswerHTML: "a", OrganizationID: strPtr("org2"),
	}))

	page, total, err := s.ListMessagesByOrganization(ctx, "org1", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, "m3", page[0].MessageID)
	assert.Equal(t, "m2", page[1].MessageID)

	page, _, err = s.ListMessagesByOrganization(ctx, "org1", 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "m1", page[0].MessageID)

	err = s.CreateMessage(ctx, &ConversationMessage{MessageID: "m1", UserID: "u1", Question: "q", AnswerHTML: "a"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestSQLiteStore_FeedbackAtMostOncePerType(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateMessage(ctx, &ConversationMessage{
		MessageID: "m1", UserID: "u1", Question: "q", AnswerHTML: "a", OrganizationID: strPtr("org1"),
	}))

	like := &FeedbackEvent{MessageID: "m1", UserID: "u1", ConversationID: "m1", Type: FeedbackLike, BotResponse: "a", UserQuestion: "q"}
	inserted, err := s.InsertFeedbackIfAbsent(ctx, like)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotZero(t, like.ID)

	again := &FeedbackEvent{MessageID: "m1", UserID: "u1", ConversationID: "m1", Type: FeedbackLike, BotResponse: "a", UserQuestion: "q"}
	inserted, err = s.InsertFeedbackIfAbsent(ctx, again)
	require.NoError(t, err)
	assert.False(t, inserted)

	retry := 2
	inserted, err = s.InsertFeedbackIfAbsent(ctx, &FeedbackEvent{
		MessageID: "m1", UserID: "u1", ConversationID: "m1", Type: FeedbackRetry, RetryCount: &retry, BotResponse: "a", UserQuestion: "q",
	})
	require.NoError(t, err)
	assert.True(t, inserted)

	events, err := s.ListFeedback(ctx, FeedbackFilter{MessageID: "m1"})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	events, err = s.ListFeedback(ctx, FeedbackFilter{OrganizationID: "org1"})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	events, err = s.ListFeedback(ctx, FeedbackFilter{OrganizationID: "org2"})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSQLiteStore_ConcurrentFeedbackInsertsOnlyOnce(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateMessage(ctx, &ConversationMessage{MessageID: "m1", UserID: "u1", Question: "q", AnswerHTML: "a"}))

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.InsertFeedbackIfAbsent(ctx, &FeedbackEvent{
				MessageID: "m1", UserID: "u1", ConversationID: "m1", Type: FeedbackDislike, BotResponse: "a", UserQuestion: "q",
			})
			assert.NoError(t, err)
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	count := 0
	for ok := range results {
		if ok {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
