package core

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageID(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := NewMessageID()
		require.Len(t, id, 24)
		_, err := hex.DecodeString(id)
		require.NoError(t, err)
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}

func TestRecordExchange_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id, err := env.correlator.RecordExchange(ctx, Exchange{
		UserID: "u1", Question: "q?", AnswerHTML: "<strong>a</strong>", OrganizationID: "org1", ConnectionID: "c1",
	})
	require.NoError(t, err)

	msg, err := env.store.GetMessage(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "q?", msg.Question)
	assert.Equal(t, "<strong>a</strong>", msg.AnswerHTML)
	require.NotNil(t, msg.OrganizationID)
	assert.Equal(t, "org1", *msg.OrganizationID)
	require.NotNil(t, msg.ConnectionID)
	assert.Equal(t, "c1", *msg.ConnectionID)

	noOrg, err := env.correlator.RecordExchange(ctx, Exchange{UserID: "u1", Question: "q", AnswerHTML: "a"})
	require.NoError(t, err)
	msg, err = env.store.GetMessage(ctx, noOrg)
	require.NoError(t, err)
	assert.Nil(t, msg.OrganizationID)
	assert.Nil(t, msg.ConnectionID)
}
