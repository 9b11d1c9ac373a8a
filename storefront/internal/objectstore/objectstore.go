// Package objectstore issues short-lived download links for product deliverables.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrInvalidFileID  = errors.New("invalid file id")
)

const DefaultURLTTL = 15 * time.Minute

// GCS resolves file ids to V4 signed GET URLs in one bucket. The object must exist
// before a link is issued.
type GCS struct {
	bucket string
	ttl    time.Duration
	now    func() time.Time
	exists func(ctx context.Context, object string) error
	sign   func(object string, opts *storage.SignedURLOptions) (string, error)
}

func NewGCS(client *storage.Client, bucket string, ttl time.Duration) *GCS {
	b := client.Bucket(bucket)
	return &GCS{
		bucket: bucket,
		ttl:    ttl,
		now:    time.Now,
		exists: func(ctx context.Context, object string) error {
			_, err := b.Object(object).Attrs(ctx)
			return err
		},
		sign: b.SignedURL,
	}
}

func (g *GCS) DownloadURL(ctx context.Context, fileID string) (string, error) {
	object := strings.TrimPrefix(strings.TrimSpace(fileID), "/")
	if object == "" {
		return "", ErrInvalidFileID
	}
	if err := g.exists(ctx, object); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return "", fmt.Errorf("%w: %s", ErrObjectNotFound, object)
		}
		return "", fmt.Errorf("stat %s/%s: %w", g.bucket, object, err)
	}

	ttl := g.ttl
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	u, err := g.sign(object, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: g.now().UTC().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("sign %s/%s: %w", g.bucket, object, err)
	}
	return u, nil
}
