package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSMirror stores snapshots in a Google Cloud Storage bucket
type GCSMirror struct {
	client     *storage.Client
	bucketName string
	prefix     string
}

// NewGCSMirror creates a GCS mirror. Without a credentials file the
// application default credentials are used.
func NewGCSMirror(ctx context.Context, config *GCSConfig, prefix string) (*GCSMirror, error) {
	if config == nil {
		return nil, errors.New("GCS mirror configuration is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var opts []option.ClientOption
	if config.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsPath))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSMirror{
		client:     client,
		bucketName: config.Bucket,
		prefix:     prefix,
	}, nil
}

// Name implements Mirror
func (m *GCSMirror) Name() string {
	return fmt.Sprintf("gs://%s/%s", m.bucketName, m.prefix)
}

// Close releases the underlying client
func (m *GCSMirror) Close() error {
	return m.client.Close()
}

// Upload implements Mirror
func (m *GCSMirror) Upload(ctx context.Context, localPath string) error {
	name := filepath.Base(localPath)
	if err := validateName(name); err != nil {
		return err
	}

	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer file.Close()

	writer := m.client.Bucket(m.bucketName).Object(m.prefix + name).NewWriter(ctx)
	writer.ContentType = contentType(name)

	if _, err := io.Copy(writer, file); err != nil {
		writer.Close()
		return fmt.Errorf("failed to upload %s to GCS: %w", name, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize %s in GCS: %w", name, err)
	}
	return nil
}

// List implements Mirror
func (m *GCSMirror) List(ctx context.Context) ([]Object, error) {
	var objects []Object

	it := m.client.Bucket(m.bucketName).Objects(ctx, &storage.Query{Prefix: m.prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list GCS objects: %w", err)
		}

		name := strings.TrimPrefix(attrs.Name, m.prefix)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		objects = append(objects, Object{
			Name:         name,
			Size:         attrs.Size,
			LastModified: attrs.Updated,
		})
	}
	return objects, nil
}

// Delete implements Mirror
func (m *GCSMirror) Delete(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	err := m.client.Bucket(m.bucketName).Object(m.prefix + name).Delete(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return fmt.Errorf("failed to delete %s from GCS: %w", name, err)
	}
	return nil
}
