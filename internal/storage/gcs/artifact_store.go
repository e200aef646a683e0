// Package gcs provides an artifact store backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/JakeFAU/sitewatch/internal/monitor"
)

// Config captures the bucket and optional object prefix.
type Config struct {
	Bucket string
	Prefix string
}

// ArtifactStore writes snapshots to a GCS bucket under
// <prefix>/<site>/<date>/<time>.<ext>.
type ArtifactStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed artifact store.
func New(client *storage.Client, cfg Config) (*ArtifactStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &ArtifactStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (s *ArtifactStore) objectName(rel string) string {
	if s.prefix == "" {
		return rel
	}
	return path.Join(s.prefix, rel)
}

// Put uploads data and returns a gs:// reference.
func (s *ArtifactStore) Put(ctx context.Context, key monitor.ArtifactKey, contentType string, data []byte) (string, error) {
	if key.SiteID == "" || key.Name == "" {
		return "", fmt.Errorf("artifact key %q is incomplete", key.Path())
	}
	name := s.objectName(key.Path())
	writer := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := writer.Write(data); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, name), nil
}

// Get downloads the object behind a gs:// reference or a key path.
func (s *ArtifactStore) Get(ctx context.Context, ref string) ([]byte, error) {
	name, ok := strings.CutPrefix(ref, "gs://"+s.bucket+"/")
	if !ok {
		name = s.objectName(ref)
	}
	reader, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("artifact %s: %w", ref, monitor.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open object: %w", err)
	}
	defer func() { _ = reader.Close() }()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

// List returns every artifact under the site's prefix, using the object's
// update time as its modification time.
func (s *ArtifactStore) List(ctx context.Context, siteID string) ([]monitor.ArtifactInfo, error) {
	sitePrefix := s.objectName(siteID) + "/"
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: sitePrefix})
	var out []monitor.ArtifactInfo
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		date, name, ok := strings.Cut(strings.TrimPrefix(attrs.Name, sitePrefix), "/")
		if !ok || strings.Contains(name, "/") {
			continue
		}
		out = append(out, monitor.ArtifactInfo{
			Key:     monitor.ArtifactKey{SiteID: siteID, Date: date, Name: name},
			ModTime: attrs.Updated,
			Size:    attrs.Size,
		})
	}
	return out, nil
}

// Delete removes the object. A missing object is not an error.
func (s *ArtifactStore) Delete(ctx context.Context, key monitor.ArtifactKey) error {
	err := s.client.Bucket(s.bucket).Object(s.objectName(key.Path())).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}
