package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/Azure/azure-storage-blob-go/azblob"
)

// AzureMirror stores snapshots in an Azure Blob Storage container
type AzureMirror struct {
	containerURL azblob.ContainerURL
	account      string
	prefix       string
}

// NewAzureMirror creates an Azure Blob mirror using shared key credentials
func NewAzureMirror(config *AzureConfig, prefix string) (*AzureMirror, error) {
	if config == nil {
		return nil, errors.New("Azure mirror configuration is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	credential, err := azblob.NewSharedKeyCredential(config.AccountName, config.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credentials: %w", err)
	}
	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})

	serviceURL, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net", config.AccountName))
	if err != nil {
		return nil, fmt.Errorf("failed to parse Azure service URL: %w", err)
	}

	return &AzureMirror{
		containerURL: azblob.NewServiceURL(*serviceURL, pipeline).NewContainerURL(config.ContainerName),
		account:      config.AccountName,
		prefix:       prefix,
	}, nil
}

// Name implements Mirror
func (m *AzureMirror) Name() string {
	u := m.containerURL.URL()
	return fmt.Sprintf("azure://%s%s/%s", m.account, u.Path, m.prefix)
}

// Upload implements Mirror
func (m *AzureMirror) Upload(ctx context.Context, localPath string) error {
	name := filepath.Base(localPath)
	if err := validateName(name); err != nil {
		return err
	}

	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer file.Close()

	blobURL := m.containerURL.NewBlockBlobURL(m.prefix + name)
	_, err = azblob.UploadFileToBlockBlob(ctx, file, blobURL, azblob.UploadToBlockBlobOptions{
		BlockSize:   4 * 1024 * 1024,
		Parallelism: 4,
		BlobHTTPHeaders: azblob.BlobHTTPHeaders{
			ContentType: contentType(name),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to Azure: %w", name, err)
	}
	return nil
}

// List implements Mirror
func (m *AzureMirror) List(ctx context.Context) ([]Object, error) {
	var objects []Object

	for marker := (azblob.Marker{}); marker.NotDone(); {
		listResponse, err := m.containerURL.ListBlobsFlatSegment(ctx, marker, azblob.ListBlobsSegmentOptions{
			Prefix: m.prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list Azure blobs: %w", err)
		}

		for _, blob := range listResponse.Segment.BlobItems {
			name := strings.TrimPrefix(blob.Name, m.prefix)
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			obj := Object{Name: name, LastModified: blob.Properties.LastModified}
			if blob.Properties.ContentLength != nil {
				obj.Size = *blob.Properties.ContentLength
			}
			objects = append(objects, obj)
		}

		marker = listResponse.NextMarker
	}
	return objects, nil
}

// Delete implements Mirror
func (m *AzureMirror) Delete(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	blobURL := m.containerURL.NewBlockBlobURL(m.prefix + name)
	_, err := blobURL.Delete(ctx, azblob.DeleteSnapshotsOptionInclude, azblob.BlobAccessConditions{})
	if err != nil {
		var serr azblob.StorageError
		if errors.As(err, &serr) && serr.ServiceCode() == azblob.ServiceCodeBlobNotFound {
			return fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return fmt.Errorf("failed to delete %s from Azure: %w", name, err)
	}
	return nil
}
