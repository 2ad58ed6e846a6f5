package biz

import (
	"context"
	"testing"

	apperrors "github.com/scenehub/scenehub-backend/internal/pkg/errors"
	"github.com/scenehub/scenehub-backend/internal/upload/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTransition(t *testing.T) {
	completedURLs := map[types.FileKind]string{
		types.FileKindModel: "acme_p1/options/o1/model_1.glb",
	}
	clearedURLs := map[types.FileKind]string{
		types.FileKindModel: "",
	}

	tests := []struct {
		name     string
		kind     types.EntityKind
		from     types.EntityStatus
		to       types.EntityStatus
		urls     map[types.FileKind]string
		wantCode int
	}{
		{
			name: "draft to uploading",
			kind: types.EntityKindOption,
			from: types.EntityStatusDraft,
			to:   types.EntityStatusUploading,
		},
		{
			name: "draft to failed",
			kind: types.EntityKindOption,
			from: types.EntityStatusDraft,
			to:   types.EntityStatusFailed,
		},
		{
			name:     "draft to completed is not an edge",
			kind:     types.EntityKindOption,
			from:     types.EntityStatusDraft,
			to:       types.EntityStatusCompleted,
			urls:     completedURLs,
			wantCode: apperrors.ErrUploadInvalidTransition,
		},
		{
			name: "uploading to completed with required urls",
			kind: types.EntityKindOption,
			from: types.EntityStatusUploading,
			to:   types.EntityStatusCompleted,
			urls: completedURLs,
		},
		{
			name:     "uploading to completed without urls",
			kind:     types.EntityKindOption,
			from:     types.EntityStatusUploading,
			to:       types.EntityStatusCompleted,
			wantCode: apperrors.ErrUploadInvalidTransition,
		},
		{
			name:     "uploading to completed with empty required url",
			kind:     types.EntityKindOption,
			from:     types.EntityStatusUploading,
			to:       types.EntityStatusCompleted,
			urls:     map[types.FileKind]string{types.FileKindModel: ""},
			wantCode: apperrors.ErrUploadInvalidTransition,
		},
		{
			name: "uploading to failed",
			kind: types.EntityKindOption,
			from: types.EntityStatusUploading,
			to:   types.EntityStatusFailed,
		},
		{
			name:     "uploading to draft is not an edge",
			kind:     types.EntityKindOption,
			from:     types.EntityStatusUploading,
			to:       types.EntityStatusDraft,
			wantCode: apperrors.ErrUploadInvalidTransition,
		},
		{
			name: "failed to uploading",
			kind: types.EntityKindOption,
			from: types.EntityStatusFailed,
			to:   types.EntityStatusUploading,
		},
		{
			name: "failed to draft",
			kind: types.EntityKindOption,
			from: types.EntityStatusFailed,
			to:   types.EntityStatusDraft,
		},
		{
			name:     "completed to uploading is not an edge",
			kind:     types.EntityKindOption,
			from:     types.EntityStatusCompleted,
			to:       types.EntityStatusUploading,
			wantCode: apperrors.ErrUploadInvalidTransition,
		},
		{
			name:     "completed to failed is not an edge",
			kind:     types.EntityKindOption,
			from:     types.EntityStatusCompleted,
			to:       types.EntityStatusFailed,
			wantCode: apperrors.ErrUploadInvalidTransition,
		},
		{
			name: "completed to draft with cleared urls",
			kind: types.EntityKindOption,
			from: types.EntityStatusCompleted,
			to:   types.EntityStatusDraft,
			urls: clearedURLs,
		},
		{
			name:     "completed to draft without clearing urls",
			kind:     types.EntityKindOption,
			from:     types.EntityStatusCompleted,
			to:       types.EntityStatusDraft,
			wantCode: apperrors.ErrUploadInvalidTransition,
		},
		{
			name:     "completed to draft keeping a url",
			kind:     types.EntityKindOption,
			from:     types.EntityStatusCompleted,
			to:       types.EntityStatusDraft,
			urls:     completedURLs,
			wantCode: apperrors.ErrUploadInvalidTransition,
		},
		{
			name:     "url write on an unguarded edge",
			kind:     types.EntityKindOption,
			from:     types.EntityStatusDraft,
			to:       types.EntityStatusUploading,
			urls:     completedURLs,
			wantCode: apperrors.ErrUploadInvalidTransition,
		},
		{
			name:     "unknown target status",
			kind:     types.EntityKindOption,
			from:     types.EntityStatusDraft,
			to:       types.EntityStatus("archived"),
			wantCode: apperrors.ErrUploadInvalidTransition,
		},
		{
			name: "project completion requires context url",
			kind: types.EntityKindProject,
			from: types.EntityStatusUploading,
			to:   types.EntityStatusCompleted,
			urls: map[types.FileKind]string{
				types.FileKindContext: "acme_p1/context/context_1.json",
			},
		},
		{
			name:     "project completion with only optional url",
			kind:     types.EntityKindProject,
			from:     types.EntityStatusUploading,
			to:       types.EntityStatusCompleted,
			urls:     map[types.FileKind]string{types.FileKindHeatmap: "acme_p1/heatmaps/o1/heatmap_1.png"},
			wantCode: apperrors.ErrUploadInvalidTransition,
		},
		{
			name: "record completion without optional raw recording",
			kind: types.EntityKindRecord,
			from: types.EntityStatusUploading,
			to:   types.EntityStatusCompleted,
			urls: map[types.FileKind]string{
				types.FileKindProcessedRecording: "acme_p1/records/records_glb/o1/s1/processed_recording_1.glb",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.kind, tt.from, tt.to, tt.urls)
			if tt.wantCode == 0 {
				assert.NoError(t, err)
			} else {
				assert.True(t, apperrors.Is(err, tt.wantCode), "got %v", err)
			}
		})
	}
}

func TestEntityUseCase_Transition_CAS(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	env.seedOption(ctx, "o1", "p1", types.EntityStatusDraft)

	stale, err := env.entities.Get(ctx, types.EntityKindOption, "o1")
	require.NoError(t, err)

	// Another caller wins the race.
	swapped, err := env.entityRepo.UpdateStatusCAS(ctx, types.EntityKindOption, "o1",
		types.EntityStatusDraft, types.EntityStatusUploading, nil)
	require.NoError(t, err)
	require.True(t, swapped)

	// The stale snapshot's transition must fail instead of clobbering.
	_, err = env.entities.Transition(ctx, stale, types.EntityStatusFailed, nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrUploadInvalidTransition))

	cur, err := env.entities.Get(ctx, types.EntityKindOption, "o1")
	require.NoError(t, err)
	assert.Equal(t, types.EntityStatusUploading, cur.Status)
}

func TestEntityUseCase_EnsureUploading(t *testing.T) {
	ctx := context.Background()

	t.Run("draft moves to uploading", func(t *testing.T) {
		env := newTestEnv()
		env.seedOption(ctx, "o1", "p1", types.EntityStatusDraft)

		require.NoError(t, env.entities.EnsureUploading(ctx, types.EntityKindOption, "o1"))

		cur, err := env.entities.Get(ctx, types.EntityKindOption, "o1")
		require.NoError(t, err)
		assert.Equal(t, types.EntityStatusUploading, cur.Status)
	})

	t.Run("failed moves to uploading", func(t *testing.T) {
		env := newTestEnv()
		env.seedOption(ctx, "o1", "p1", types.EntityStatusFailed)

		require.NoError(t, env.entities.EnsureUploading(ctx, types.EntityKindOption, "o1"))

		cur, err := env.entities.Get(ctx, types.EntityKindOption, "o1")
		require.NoError(t, err)
		assert.Equal(t, types.EntityStatusUploading, cur.Status)
	})

	t.Run("uploading is a no-op", func(t *testing.T) {
		env := newTestEnv()
		env.seedOption(ctx, "o1", "p1", types.EntityStatusUploading)

		assert.NoError(t, env.entities.EnsureUploading(ctx, types.EntityKindOption, "o1"))
	})

	t.Run("completed is rejected", func(t *testing.T) {
		env := newTestEnv()
		env.seedOption(ctx, "o1", "p1", types.EntityStatusCompleted)

		err := env.entities.EnsureUploading(ctx, types.EntityKindOption, "o1")
		assert.True(t, apperrors.Is(err, apperrors.ErrUploadInvalidTransition))
	})
}

func TestEntityUseCase_ResolveChain(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	project := env.seedProject(ctx, "p1", "Acme Tower", types.EntityStatusDraft)
	option := env.seedOption(ctx, "o1", "p1", types.EntityStatusDraft)
	record := env.seedRecord(ctx, "r1", "o1", "s1", types.EntityStatusDraft)

	chain, err := env.entities.ResolveChain(ctx, record)
	require.NoError(t, err)
	assert.Equal(t, "Acme Tower", chain.ProjectName)
	assert.Equal(t, "p1", chain.ProjectID)
	assert.Equal(t, "o1", chain.OptionID)
	assert.Equal(t, "s1", chain.ScenarioID)

	chain, err = env.entities.ResolveChain(ctx, option)
	require.NoError(t, err)
	assert.Equal(t, "o1", chain.OptionID)
	assert.Empty(t, chain.ScenarioID)

	chain, err = env.entities.ResolveChain(ctx, project)
	require.NoError(t, err)
	assert.Equal(t, "p1", chain.ProjectID)
	assert.Empty(t, chain.OptionID)
}
