// artifacts.go - Where split invoice PDFs are written

package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	gcs "cloud.google.com/go/storage"
	"github.com/bosocmputer/invoice_po_matcher/configs"
	"go.uber.org/zap"
)

// ArtifactStore saves output documents by file name.
type ArtifactStore interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// LocalArtifactStore writes into a directory.
type LocalArtifactStore struct {
	Dir string
}

// Save writes data to Dir/name and returns the path.
func (l *LocalArtifactStore) Save(_ context.Context, name string, data []byte) (string, error) {
	if name != filepath.Base(name) {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	path := filepath.Join(l.Dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// GCSArtifactStore writes objects under Prefix in a bucket.
type GCSArtifactStore struct {
	Bucket *gcs.BucketHandle
	Name   string
	Prefix string
}

// Save uploads data and returns its gs:// URL.
func (g *GCSArtifactStore) Save(ctx context.Context, name string, data []byte) (string, error) {
	object := g.Prefix + name
	w := g.Bucket.Object(object).NewWriter(ctx)
	w.ContentType = "application/pdf"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to upload %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize %s: %w", object, err)
	}
	return fmt.Sprintf("gs://%s/%s", g.Name, object), nil
}

// NewArtifactStoreFromEnv returns a GCS store when GCS_BUCKET is set and a
// local OUTPUT_DIR store otherwise. The returned close func is never nil.
func NewArtifactStoreFromEnv(ctx context.Context, log *zap.Logger) (ArtifactStore, func() error, error) {
	if configs.GCS_BUCKET == "" {
		log.Info("writing artifacts locally", zap.String("dir", configs.OUTPUT_DIR))
		return &LocalArtifactStore{Dir: configs.OUTPUT_DIR}, func() error { return nil }, nil
	}

	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	log.Info("writing artifacts to GCS",
		zap.String("bucket", configs.GCS_BUCKET),
		zap.String("prefix", configs.GCS_PREFIX))
	store := &GCSArtifactStore{
		Bucket: client.Bucket(configs.GCS_BUCKET),
		Name:   configs.GCS_BUCKET,
		Prefix: configs.GCS_PREFIX,
	}
	return store, client.Close, nil
}
