package biz

import (
	"context"
	"testing"

	"github.com/scenehub/scenehub-backend/internal/upload/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcilerUseCase_FindOrphans(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	env.seedOption(ctx, "kept", "p1", types.EntityStatusUploading)
	env.seedOption(ctx, "doomed", "p1", types.EntityStatusUploading)

	_, err := env.artifacts.Register(ctx, types.EntityKindOption, "kept",
		types.FileKindModel, "acme_p1/options/kept/model_1.glb", true)
	require.NoError(t, err)
	orphaned, err := env.artifacts.Register(ctx, types.EntityKindOption, "doomed",
		types.FileKindModel, "acme_p1/options/doomed/model_1.glb", true)
	require.NoError(t, err)

	require.NoError(t, env.entityRepo.Delete(ctx, types.EntityKindOption, "doomed"))

	orphans, err := env.reconcile.FindOrphans(ctx)
	require.NoError(t, err)

	require.Len(t, orphans[types.EntityKindOption], 1)
	got := orphans[types.EntityKindOption][0]
	assert.Equal(t, orphaned.ID, got.ArtifactID)
	assert.Equal(t, "doomed", got.EntityID)
	assert.Equal(t, orphaned.StoragePath, got.StoragePath)

	assert.Empty(t, orphans[types.EntityKindProject])
	assert.Empty(t, orphans[types.EntityKindRecord])
}

func TestReconcilerUseCase_CleanupOrphans(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	env.seedProject(ctx, "p1", "Acme", types.EntityStatusDraft)
	env.seedOption(ctx, "o1", "p1", types.EntityStatusDraft)

	session, err := env.sessions.CreateSession(ctx, CreateSessionInput{
		EntityKind: types.EntityKindOption,
		EntityID:   "o1",
		FileName:   "model.glb",
		FileKind:   types.FileKindModel,
		TotalSize:  100,
		ChunkSize:  50,
	})
	require.NoError(t, err)

	artifact, err := env.artifacts.Register(ctx, types.EntityKindOption, "o1",
		types.FileKindModel, session.FinalPath, true)
	require.NoError(t, err)

	require.NoError(t, env.entityRepo.Delete(ctx, types.EntityKindOption, "o1"))

	result, err := env.reconcile.CleanupOrphans(ctx)
	require.NoError(t, err)

	// One artifact row and one session row, both pointing at the same path.
	assert.Equal(t, int64(2), result.DeletedCount)
	assert.ElementsMatch(t, []string{artifact.StoragePath, session.FinalPath}, result.StoragePathsToDelete)

	_, err = env.artifactRepo.GetByID(ctx, artifact.ID)
	assert.Error(t, err)
	_, err = env.sessionRepo.GetByID(ctx, session.ID)
	assert.Error(t, err)
}

func TestReconcilerUseCase_CleanupOrphans_NothingToDo(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	env.seedOption(ctx, "o1", "p1", types.EntityStatusUploading)
	_, err := env.artifacts.Register(ctx, types.EntityKindOption, "o1",
		types.FileKindModel, "acme_p1/options/o1/model_1.glb", true)
	require.NoError(t, err)

	result, err := env.reconcile.CleanupOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.DeletedCount)
	assert.Empty(t, result.StoragePathsToDelete)
}
