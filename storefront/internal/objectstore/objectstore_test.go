package objectstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGCS(existing map[string]bool) (*GCS, *[]*storage.SignedURLOptions) {
	var signed []*storage.SignedURLOptions
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	g := &GCS{
		bucket: "assets",
		ttl:    10 * time.Minute,
		now:    func() time.Time { return now },
		exists: func(_ context.Context, object string) error {
			if object == "broken" {
				return errors.New("backend unavailable")
			}
			if !existing[object] {
				return storage.ErrObjectNotExist
			}
			return nil
		},
		sign: func(object string, opts *storage.SignedURLOptions) (string, error) {
			signed = append(signed, opts)
			return "https://storage.example/assets/" + object + "?sig=1", nil
		},
	}
	return g, &signed
}

func TestDownloadURL_SignsExistingObject(t *testing.T) {
	g, signed := newTestGCS(map[string]bool{"files/icons.zip": true})

	u, err := g.DownloadURL(context.Background(), "/files/icons.zip")
	require.NoError(t, err)
	assert.Equal(t, "https://storage.example/assets/files/icons.zip?sig=1", u)

	require.Len(t, *signed, 1)
	opts := (*signed)[0]
	assert.Equal(t, "GET", opts.Method)
	assert.Equal(t, storage.SigningSchemeV4, opts.Scheme)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 10, 0, 0, time.UTC), opts.Expires)
}

func TestDownloadURL_Errors(t *testing.T) {
	g, signed := newTestGCS(nil)

	_, err := g.DownloadURL(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrInvalidFileID)

	_, err = g.DownloadURL(context.Background(), "missing.pdf")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	_, err = g.DownloadURL(context.Background(), "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrObjectNotFound)

	assert.Empty(t, *signed)
}

func TestDownloadURL_DefaultTTL(t *testing.T) {
	g, signed := newTestGCS(map[string]bool{"a": true})
	g.ttl = 0

	_, err := g.DownloadURL(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, g.now().Add(DefaultURLTTL), (*signed)[0].Expires)
}
