package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	gcs "cloud.google.com/go/storage"
)

// gcsStorage implements Storage on a Google Cloud Storage bucket.
// Credentials come from Application Default Credentials.
type gcsStorage struct {
	client *gcs.Client
	bucket *gcs.BucketHandle
}

// NewGCS opens a client for the given bucket and checks that the bucket is reachable.
func NewGCS(ctx context.Context, bucket string) (Storage, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	cli, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	bkt := cli.Bucket(bucket)
	if _, err := bkt.Attrs(cctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	return &gcsStorage{client: cli, bucket: bkt}, nil
}

func (g *gcsStorage) Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error) {
	w := g.bucket.Object(key).NewWriter(ctx)
	w.ContentType = opt.ContentType
	w.Metadata = opt.Metadata

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return ObjectInfo{}, fmt.Errorf("write gcs object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return ObjectInfo{}, fmt.Errorf("finalize gcs object %s: %w", key, err)
	}

	attrs := w.Attrs()
	return ObjectInfo{
		Key:          key,
		Size:         attrs.Size,
		ETag:         attrs.Etag,
		ContentType:  attrs.ContentType,
		LastModified: attrs.Updated,
		Metadata:     attrs.Metadata,
	}, nil
}

func (g *gcsStorage) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	rc, err := g.bucket.Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, ObjectInfo{}, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, ObjectInfo{}, err
	}
	return rc, ObjectInfo{
		Key:          key,
		Size:         rc.Attrs.Size,
		ContentType:  rc.Attrs.ContentType,
		LastModified: rc.Attrs.LastModified,
	}, nil
}

func (g *gcsStorage) Delete(ctx context.Context, key string) error {
	err := g.bucket.Object(key).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil
	}
	return err
}

// PresignGet signs a V4 GET URL. Signing needs a service account identity.
func (g *gcsStorage) PresignGet(_ context.Context, key string, expiry time.Duration) (string, error) {
	return g.bucket.SignedURL(key, &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(expiry),
	})
}
