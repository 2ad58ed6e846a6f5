package minio

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// StatObject returns size and content type for an object, or an error when absent
func (c *Client) StatObject(ctx context.Context, objectName string) (int64, string, error) {
	info, err := c.client.StatObject(ctx, c.config.Bucket, objectName, minio.StatObjectOptions{})
	if err != nil {
		return 0, "", fmt.Errorf("failed to stat object %q: %w", objectName, err)
	}
	return info.Size, info.ContentType, nil
}

// RemoveObject deletes a single object from the default bucket
func (c *Client) RemoveObject(ctx context.Context, objectName string) error {
	err := c.client.RemoveObject(ctx, c.config.Bucket, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to remove object %q: %w", objectName, err)
	}
	return nil
}

// RemoveObjects deletes the given objects, returning the paths that failed
func (c *Client) RemoveObjects(ctx context.Context, objectNames []string) []string {
	var failed []string
	for _, name := range objectNames {
		if err := c.RemoveObject(ctx, name); err != nil {
			c.logger.Warn("failed to remove object",
				zap.String("object", name),
				zap.Error(err),
			)
			failed = append(failed, name)
		}
	}
	return failed
}

// ListObjects lists object names under a prefix in the default bucket
func (c *Client) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	for info := range c.client.ListObjects(ctx, c.config.Bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, fmt.Errorf("failed to list objects under %q: %w", prefix, info.Err)
		}
		names = append(names, info.Key)
	}
	return names, nil
}
