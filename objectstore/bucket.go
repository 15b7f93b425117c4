package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"

	"gocloud.dev/blob"
	// Driver registrations: a urlOpener imported for its side effect of
	// registering with blob.OpenBucket against its URL scheme.
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/s3blob"
)

// Bucket uploads rapidflow output artifacts (Qout NetCDFs, warning
// GeoJSON, diagnostic plots) to wherever the operator configured via a
// gocloud.dev/blob URL -- "s3://bucket/prefix" or "file:///var/rapidflow"
// -- without rapidflow code needing to special-case the backend.
type Bucket struct {
	bucket *blob.Bucket
}

// OpenBucket opens the bucket addressed by urlstr (a gocloud.dev/blob URL).
func OpenBucket(ctx context.Context, urlstr string) (*Bucket, error) {
	b, err := blob.OpenBucket(ctx, urlstr)
	if err != nil {
		return nil, fmt.Errorf("rapidflow: opening output bucket %s: %w", urlstr, err)
	}
	return &Bucket{bucket: b}, nil
}

// Close releases the underlying bucket connection.
func (b *Bucket) Close() error { return b.bucket.Close() }

// UploadFile streams the local file at localPath to key.
func (b *Bucket) UploadFile(ctx context.Context, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("rapidflow: opening %s for upload: %w", localPath, err)
	}
	defer f.Close()

	w, err := b.bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("rapidflow: opening writer for %s: %w", key, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("rapidflow: uploading %s: %w", key, err)
	}
	return w.Close()
}

// Exists reports whether key is already present in the bucket.
func (b *Bucket) Exists(ctx context.Context, key string) (bool, error) {
	return b.bucket.Exists(ctx, key)
}
