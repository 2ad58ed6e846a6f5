package data

import (
	"context"

	"github.com/scenehub/scenehub-backend/internal/pkg/minio"
	"github.com/scenehub/scenehub-backend/internal/upload/biz"
)

// BlobStore adapts the minio client to the biz.BlobStore surface.
type BlobStore struct {
	client *minio.Client
}

// NewBlobStore creates the minio-backed blob store
func NewBlobStore(client *minio.Client) biz.BlobStore {
	return &BlobStore{client: client}
}

func (s *BlobStore) StatObject(ctx context.Context, objectName string) (int64, string, error) {
	return s.client.StatObject(ctx, objectName)
}

func (s *BlobStore) RemoveObjects(ctx context.Context, objectNames []string) []string {
	return s.client.RemoveObjects(ctx, objectNames)
}

func (s *BlobStore) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	return s.client.ListObjects(ctx, prefix)
}
