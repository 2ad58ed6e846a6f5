package biz

import (
	"context"
	"testing"

	apperrors "github.com/scenehub/scenehub-backend/internal/pkg/errors"
	"github.com/scenehub/scenehub-backend/internal/pkg/logger"
	"github.com/scenehub/scenehub-backend/internal/upload/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// With a blob store wired in, completion stats the object and records the
// size storage reports rather than the caller's claim.
func TestArtifactUseCase_MarkCompleted_VerifiesObject(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	env.seedOption(ctx, "o1", "p1", types.EntityStatusUploading)

	artifacts := NewArtifactUseCase(env.artifactRepo, env.entityRepo, env.blobs, logger.NewNop())

	a, err := artifacts.Register(ctx, types.EntityKindOption, "o1",
		types.FileKindModel, "acme_p1/options/o1/model_1.glb", true)
	require.NoError(t, err)

	env.blobs.put(a.StoragePath, 4096)

	completed, err := artifacts.MarkCompleted(ctx, a.ID, 1024, "model/gltf-binary")
	require.NoError(t, err)
	assert.Equal(t, types.ArtifactStatusCompleted, completed.Status)
	assert.Equal(t, int64(4096), completed.Size)
	require.NotNil(t, completed.VerifiedAt)
}

func TestArtifactUseCase_MarkCompleted_ObjectMissing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	env.seedOption(ctx, "o1", "p1", types.EntityStatusUploading)

	artifacts := NewArtifactUseCase(env.artifactRepo, env.entityRepo, env.blobs, logger.NewNop())

	a, err := artifacts.Register(ctx, types.EntityKindOption, "o1",
		types.FileKindModel, "acme_p1/options/o1/model_1.glb", true)
	require.NoError(t, err)

	_, err = artifacts.MarkCompleted(ctx, a.ID, 1024, "model/gltf-binary")
	assert.True(t, apperrors.Is(err, apperrors.ErrUploadStorageFailed))

	current, err := env.artifactRepo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ArtifactStatusUploading, current.Status)
}
