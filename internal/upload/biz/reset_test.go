package biz

import (
	"context"
	"testing"

	apperrors "github.com/scenehub/scenehub-backend/internal/pkg/errors"
	"github.com/scenehub/scenehub-backend/internal/upload/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResetUseCase_ResetEntity(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	env.seedOption(ctx, "o1", "p1", types.EntityStatusUploading)

	artifact, err := env.artifacts.Register(ctx, types.EntityKindOption, "o1",
		types.FileKindModel, "acme_p1/options/o1/model_1.glb", true)
	require.NoError(t, err)
	_, err = env.artifacts.MarkCompleted(ctx, artifact.ID, 1024, "model/gltf-binary")
	require.NoError(t, err)

	_, err = env.finalize.Finalize(ctx, types.EntityKindOption, "o1")
	require.NoError(t, err)

	result, err := env.reset.ResetEntity(ctx, types.EntityKindOption, "o1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.DeletedArtifactCount)
	assert.Equal(t, []string{artifact.StoragePath}, result.StoragePathsToDelete)

	entity, err := env.entities.Get(ctx, types.EntityKindOption, "o1")
	require.NoError(t, err)
	assert.Equal(t, types.EntityStatusDraft, entity.Status)
	assert.Empty(t, entity.FinalURLs[types.FileKindModel])

	remaining, err := env.artifacts.ListByEntity(ctx, types.EntityKindOption, "o1")
	require.NoError(t, err)
	assert.Empty(t, remaining)

	// The freed path is registrable again.
	_, err = env.artifacts.Register(ctx, types.EntityKindOption, "o1",
		types.FileKindModel, artifact.StoragePath, true)
	assert.NoError(t, err)
}

// Resetting a project enumerates only the project's own slot prefixes, so
// objects belonging to its options and records stay untouched even though
// they share the project root.
func TestResetUseCase_ProjectResetKeepsChildObjects(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	env.seedProject(ctx, "p1", "Acme", types.EntityStatusCompleted)
	env.seedOption(ctx, "o1", "p1", types.EntityStatusCompleted)

	contextPath := "acme_p1/context/context_1.json"
	modelPath := "acme_p1/options/o1/model_1.glb"
	strayPath := "acme_p1/heatmaps/heatmap_9.png"

	_, err := env.artifacts.Register(ctx, types.EntityKindProject, "p1",
		types.FileKindContext, contextPath, true)
	require.NoError(t, err)
	_, err = env.artifacts.Register(ctx, types.EntityKindOption, "o1",
		types.FileKindModel, modelPath, true)
	require.NoError(t, err)

	env.blobs.put(contextPath, 10)
	env.blobs.put(modelPath, 20)
	env.blobs.put(strayPath, 30) // written but never registered

	_, err = env.reset.ResetEntity(ctx, types.EntityKindProject, "p1")
	require.NoError(t, err)

	assert.Contains(t, env.blobs.removed, contextPath)
	assert.Contains(t, env.blobs.removed, strayPath)
	assert.NotContains(t, env.blobs.removed, modelPath)

	remaining, err := env.blobs.ListObjects(ctx, "acme_p1/")
	require.NoError(t, err)
	assert.Equal(t, []string{modelPath}, remaining)
}

// The post-reset sweep spares objects another row still claims, covering
// records that share an option and scenario prefix.
func TestResetUseCase_SweepSparesClaimedPaths(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	env.seedProject(ctx, "p1", "Acme", types.EntityStatusDraft)
	env.seedOption(ctx, "o1", "p1", types.EntityStatusDraft)
	env.seedRecord(ctx, "r1", "o1", "s1", types.EntityStatusCompleted)
	env.seedRecord(ctx, "r2", "o1", "s1", types.EntityStatusUploading)

	ownPath := "acme_p1/records/records_glb/o1/s1/processed_recording_1.glb"
	siblingPath := "acme_p1/records/records_glb/o1/s1/processed_recording_2.glb"
	strayPath := "acme_p1/records/records_glb/o1/s1/processed_recording_0.glb"

	_, err := env.artifacts.Register(ctx, types.EntityKindRecord, "r1",
		types.FileKindProcessedRecording, ownPath, true)
	require.NoError(t, err)
	_, err = env.artifacts.Register(ctx, types.EntityKindRecord, "r2",
		types.FileKindProcessedRecording, siblingPath, true)
	require.NoError(t, err)

	// r2 also has an upload in flight whose bytes already landed.
	session, err := env.sessions.CreateSession(ctx, CreateSessionInput{
		EntityKind: types.EntityKindRecord,
		EntityID:   "r2",
		FileName:   "raw.json",
		FileKind:   types.FileKindRawRecording,
		TotalSize:  100,
		ChunkSize:  50,
	})
	require.NoError(t, err)

	env.blobs.put(ownPath, 10)
	env.blobs.put(siblingPath, 20)
	env.blobs.put(strayPath, 30)
	env.blobs.put(session.FinalPath, 40)

	_, err = env.reset.ResetEntity(ctx, types.EntityKindRecord, "r1")
	require.NoError(t, err)

	assert.Contains(t, env.blobs.removed, ownPath)
	assert.Contains(t, env.blobs.removed, strayPath)
	assert.NotContains(t, env.blobs.removed, siblingPath)
	assert.NotContains(t, env.blobs.removed, session.FinalPath)
}

func TestResetUseCase_RequiresCompleted(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	for _, status := range []types.EntityStatus{
		types.EntityStatusDraft,
		types.EntityStatusUploading,
		types.EntityStatusFailed,
	} {
		env.seedOption(ctx, "o_"+status.String(), "p1", status)

		_, err := env.reset.ResetEntity(ctx, types.EntityKindOption, "o_"+status.String())
		assert.True(t, apperrors.Is(err, apperrors.ErrUploadInvalidTransition), "status %s", status)
	}
}

func TestResetUseCase_UnknownEntity(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	_, err := env.reset.ResetEntity(ctx, types.EntityKindOption, "missing")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}
