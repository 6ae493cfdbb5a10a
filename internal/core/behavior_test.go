package core

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mayank-dotcom/botsystem/internal/apperrors"
	"github.com/mayank-dotcom/botsystem/internal/store"
)

func TestResolve_HardDefaultWhenNothingConfigured(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.behaviors.Resolve(context.Background(), nil, "org-without-defaults")
	require.NoError(t, err)

	assert.Equal(t, SourceHardDefault, res.Source)
	assert.Equal(t, store.BehaviorDescriptor{
		Tone:            "professional",
		ResponseLength:  "medium",
		Personality:     "helpful",
		OutputStructure: "paragraph",
		MustDo:          "_",
		MustNotDo:       "_",
		Persona:         "AI",
	}, res.Behavior)
}

func TestResolve_Precedence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, created, err := env.behaviors.CreateOrganizationBehavior(ctx, "org1", store.BehaviorDescriptor{Tone: "formal", Persona: "librarian"})
	require.NoError(t, err)
	require.True(t, created)

	t.Run("organization descriptor with field fallback", func(t *testing.T) {
		res, err := env.behaviors.Resolve(ctx, nil, "org1")
		require.NoError(t, err)
		assert.Equal(t, SourceOrganizationDescriptor, res.Source)
		assert.Equal(t, "formal", res.Behavior.Tone)
		assert.Equal(t, "librarian", res.Behavior.Persona)
		assert.Equal(t, "medium", res.Behavior.ResponseLength)
		assert.Equal(t, "_", res.Behavior.MustDo)
	})

	t.Run("connection without descriptor uses its organization", func(t *testing.T) {
		conn := &store.Connection{ID: "c0", OrganizationID: "org1"}
		res, err := env.behaviors.Resolve(ctx, conn, "")
		require.NoError(t, err)
		assert.Equal(t, SourceOrganizationDescriptor, res.Source)
	})

	t.Run("connection descriptor wins over organization", func(t *testing.T) {
		conn := &store.Connection{ID: "c1", OrganizationID: "org1", Behavior: &store.BehaviorDescriptor{Tone: "playful"}}
		res, err := env.behaviors.Resolve(ctx, conn, "org1")
		require.NoError(t, err)
		assert.Equal(t, SourceConnectionDescriptor, res.Source)
		assert.Equal(t, "playful", res.Behavior.Tone)
		assert.Equal(t, "AI", res.Behavior.Persona, "missing fields come from the hard default, not the organization")
	})

	t.Run("custom prompt wins over everything", func(t *testing.T) {
		conn := &store.Connection{
			ID: "c2", OrganizationID: "org1", UseCustomPrompt: true, CustomPromptText: "Be brief.",
			Behavior: &store.BehaviorDescriptor{Tone: "playful"},
		}
		res, err := env.behaviors.Resolve(ctx, conn, "org1")
		require.NoError(t, err)
		assert.Equal(t, SourceConnectionCustomPrompt, res.Source)
		assert.Equal(t, "Be brief.", res.CustomPrompt)
	})

	t.Run("empty custom prompt falls through", func(t *testing.T) {
		conn := &store.Connection{
			ID: "c3", OrganizationID: "org1", UseCustomPrompt: true, CustomPromptText: "  ",
			Behavior: &store.BehaviorDescriptor{Tone: "playful"},
		}
		res, err := env.behaviors.Resolve(ctx, conn, "org1")
		require.NoError(t, err)
		assert.Equal(t, SourceConnectionDescriptor, res.Source)
	})
}

func TestResolve_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conn := &store.Connection{ID: "c1", OrganizationID: "org1", Behavior: &store.BehaviorDescriptor{Tone: "warm", MustDo: "greet"}}

	first, err := env.behaviors.Resolve(ctx, conn, "org1")
	require.NoError(t, err)
	second, err := env.behaviors.Resolve(ctx, conn, "org1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestNormalizeBehavior(t *testing.T) {
	got, err := NormalizeBehavior(store.BehaviorDescriptor{ResponseLength: " Short ", OutputStructure: "Bullets", Tone: " calm "})
	require.NoError(t, err)
	assert.Equal(t, "short", got.ResponseLength)
	assert.Equal(t, "bullets", got.OutputStructure)
	assert.Equal(t, "calm", got.Tone)

	_, err = NormalizeBehavior(store.BehaviorDescriptor{ResponseLength: "epic"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = NormalizeBehavior(store.BehaviorDescriptor{OutputStructure: "table"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestNormalizeBehavior_ReportsFirstLongFieldInOrder(t *testing.T) {
	long := strings.Repeat("x", maxBehaviorFieldLen+1)
	d := store.BehaviorDescriptor{Tone: long, Personality: long, MustDo: long, MustNotDo: long, Persona: long}

	for i := 0; i < 20; i++ {
		_, err := NormalizeBehavior(d)
		var verr *apperrors.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "tone", verr.Field)
	}

	d.Tone = "calm"
	_, err := NormalizeBehavior(d)
	var verr *apperrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "personality", verr.Field)
}

func TestOrganizationBehavior_CreateOnceThenUpdate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.behaviors.UpdateOrganizationBehavior(ctx, "org1", store.BehaviorDescriptor{Tone: "x"})
	assert.ErrorIs(t, err, apperrors.ErrBehaviorNotFound)

	_, err = env.behaviors.GetOrganizationBehavior(ctx, "org1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	ob, created, err := env.behaviors.CreateOrganizationBehavior(ctx, "org1", store.BehaviorDescriptor{Tone: "formal"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "formal", ob.Behavior.Tone)

	ob, created, err = env.behaviors.CreateOrganizationBehavior(ctx, "org1", store.BehaviorDescriptor{Tone: "casual"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "formal", ob.Behavior.Tone, "second create returns the existing record untouched")

	ob, err = env.behaviors.UpdateOrganizationBehavior(ctx, "org1", store.BehaviorDescriptor{Tone: "casual"})
	require.NoError(t, err)
	assert.Equal(t, "casual", ob.Behavior.Tone)
}
