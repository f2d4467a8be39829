package instructions

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSBucket stores instructions in a Google Cloud Storage bucket using
// application default credentials.
type GCSBucket struct {
	client *storage.Client
	bucket *storage.BucketHandle
}

// NewGCSBucket opens a bucket handle.
func NewGCSBucket(ctx context.Context, name string) (*GCSBucket, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSBucket{client: client, bucket: client.Bucket(name)}, nil
}

// Read downloads an object.
func (b *GCSBucket) Read(ctx context.Context, key string) ([]byte, error) {
	r, err := b.bucket.Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("open object %s: %w", key, err)
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// Write uploads an object, replacing any existing content.
func (b *GCSBucket) Write(ctx context.Context, key string, data []byte, contentType string) error {
	w := b.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize object %s: %w", key, err)
	}
	return nil
}

// Close releases the storage client.
func (b *GCSBucket) Close() error {
	return b.client.Close()
}
