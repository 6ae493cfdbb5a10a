package core

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mayank-dotcom/botsystem/internal/store"
)

type testEnv struct {
	store       *store.SQLiteStore
	cache       *MemoryTemplateCache
	prompts     *PromptService
	activity    *ActivityRecorder
	connections *ConnectionService
	behaviors   *BehaviorService
	selector    *DocumentSelector
	correlator  *Correlator
	feedback    *FeedbackService
	completer   *MockCompleter
	chat        *ChatService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "core.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	env := &testEnv{
		store:     s,
		cache:     NewMemoryTemplateCache(),
		completer: &MockCompleter{},
	}
	env.prompts = NewPromptService(env.cache, logger)
	env.activity = NewActivityRecorder(s, logger)
	env.connections = NewConnectionService(s, env.prompts, env.activity, logger)
	env.behaviors = NewBehaviorService(s, env.activity, logger)
	env.selector = NewDocumentSelector(s, false, logger)
	env.correlator = NewCorrelator(s, logger)
	env.feedback = NewFeedbackService(s, logger)
	env.chat = NewChatService(ChatDeps{
		Store:       s,
		Connections: env.connections,
		Behaviors:   env.behaviors,
		Selector:    env.selector,
		Prompts:     env.prompts,
		Completer:   env.completer,
		Correlator:  env.correlator,
		Timeout:     2 * time.Second,
	}, logger)
	return env
}

func (e *testEnv) seedChunks(t *testing.T, org string, contents ...string) {
	t.Helper()
	for _, c := range contents {
		require.NoError(t, e.store.CreateChunk(context.Background(), &store.KnowledgeChunk{OrganizationID: org, Content: c}))
	}
}

func (e *testEnv) createConnection(t *testing.T, org string, in ConnectionInput) *store.Connection {
	t.Helper()
	conn, err := e.connections.Create(context.Background(), org, in)
	require.NoError(t, err)
	return conn
}
