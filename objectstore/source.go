// Package objectstore discovers and downloads upstream ECMWF release
// archives, and uploads rapidflow's own outputs, over two backends: an
// S3-compatible object store (the modern upstream distribution channel)
// and a plain local/NFS directory (for on-prem deployments that stage
// releases directly onto disk). Spec §6 generalizes the original's FTP
// polling loop to whichever of these the operator configures.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/cenkalti/backoff/v4"

	"github.com/erdc/rapidflow/rferrors"
)

// Release is one discovered upstream release, identified by its release
// key/path (parseable with cycle.ParseRelease).
type Release struct {
	Name string // e.g. "Runoff.20200101.00.ensemble.netcdf.tar.gz"
	Key  string // backend-specific locator: S3 key or filesystem path
	Size int64
}

// Source discovers and downloads upstream releases.
type Source interface {
	// List returns every release available, most recent first.
	List(ctx context.Context) ([]Release, error)
	// Download fetches r into destPath.
	Download(ctx context.Context, r Release, destPath string) error
}

// S3Source discovers and downloads releases from an S3-compatible bucket.
type S3Source struct {
	Bucket     string
	Prefix     string
	Downloader *s3manager.Downloader
	Client     *s3.S3
	MaxRetries uint64
}

// NewS3Source builds an S3Source from an AWS session, defaulting region
// handling to whatever the session/environment already provides.
func NewS3Source(sess *session.Session, bucket, prefix string) *S3Source {
	return &S3Source{
		Bucket:     bucket,
		Prefix:     prefix,
		Downloader: s3manager.NewDownloader(sess),
		Client:     s3.New(sess),
		MaxRetries: 5,
	}
}

// List enumerates objects under Prefix, sorted lexically descending (ECMWF
// release names sort chronologically, so this is also most-recent-first).
func (s *S3Source) List(ctx context.Context) ([]Release, error) {
	var releases []Release
	op := func() error {
		releases = releases[:0]
		return s.Client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
			Bucket: aws.String(s.Bucket),
			Prefix: aws.String(s.Prefix),
		}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, obj := range page.Contents {
				key := aws.StringValue(obj.Key)
				releases = append(releases, Release{
					Name: filepath.Base(key),
					Key:  key,
					Size: aws.Int64Value(obj.Size),
				})
			}
			return true
		})
	}
	if err := backoff.Retry(op, backoffPolicy(s.MaxRetries)); err != nil {
		return nil, fmt.Errorf("%w: listing s3://%s/%s: %v", rferrors.ErrUpstreamUnavailable, s.Bucket, s.Prefix, err)
	}
	sort.Slice(releases, func(i, j int) bool { return releases[i].Name > releases[j].Name })
	return releases, nil
}

// Download fetches r's object to destPath using the managed downloader's
// concurrent multi-part retrieval.
func (s *S3Source) Download(ctx context.Context, r Release, destPath string) error {
	op := func() error {
		f, err := os.Create(destPath)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating %s: %w", destPath, err))
		}
		defer f.Close()
		_, err = s.Downloader.DownloadWithContext(ctx, f, &s3.GetObjectInput{
			Bucket: aws.String(s.Bucket),
			Key:    aws.String(r.Key),
		})
		return err
	}
	if err := backoff.Retry(op, backoffPolicy(s.MaxRetries)); err != nil {
		return fmt.Errorf("%w: downloading s3://%s/%s: %v", rferrors.ErrUpstreamUnavailable, s.Bucket, r.Key, err)
	}
	return nil
}

// DirSource discovers and "downloads" (copies) releases already staged in
// a local or NFS-mounted directory, for deployments where an external
// process handles the actual upstream transfer.
type DirSource struct {
	Root string
}

// List enumerates *.tar and *.tar.gz entries directly under Root.
func (d *DirSource) List(ctx context.Context) ([]Release, error) {
	entries, err := os.ReadDir(d.Root)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", rferrors.ErrUpstreamUnavailable, d.Root, err)
	}
	var releases []Release
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".tar") && !strings.HasSuffix(name, ".tar.gz") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		releases = append(releases, Release{Name: name, Key: filepath.Join(d.Root, name), Size: info.Size()})
	}
	sort.Slice(releases, func(i, j int) bool { return releases[i].Name > releases[j].Name })
	return releases, nil
}

// Download copies r's file to destPath.
func (d *DirSource) Download(ctx context.Context, r Release, destPath string) error {
	src, err := os.Open(r.Key)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", rferrors.ErrUpstreamUnavailable, r.Key, err)
	}
	defer src.Close()
	dst, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("rapidflow: creating %s: %w", destPath, err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("%w: copying %s: %v", rferrors.ErrUpstreamUnavailable, r.Key, err)
	}
	return nil
}

func backoffPolicy(maxRetries uint64) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 2 * time.Second
	eb.MaxInterval = 30 * time.Second
	if maxRetries == 0 {
		maxRetries = 5
	}
	return backoff.WithMaxRetries(eb, maxRetries)
}
