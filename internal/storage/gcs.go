package storage

import (
	"context"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
)

// gcsStore keeps objects in a Google Cloud Storage bucket. Used when a bucket
// name is configured; credentials come from the ambient service account.
type gcsStore struct {
	client *gcs.Client
	bucket string
}

// NewGCSStore dials the storage API and binds to the given bucket.
func NewGCSStore(ctx context.Context, bucket string) (ObjectStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket name is required")
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &gcsStore{client: client, bucket: bucket}, nil
}

func (s *gcsStore) Put(ctx context.Context, key string, contents io.Reader) (string, error) {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, contents); err != nil {
		w.Close()
		return "", fmt.Errorf("write gcs object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize gcs object: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, key), nil
}

func (s *gcsStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open gcs object: %w", err)
	}
	return r, nil
}

func (s *gcsStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Bucket(s.bucket).Object(key).Delete(ctx); err != nil && err != gcs.ErrObjectNotExist {
		return fmt.Errorf("delete gcs object: %w", err)
	}
	return nil
}
