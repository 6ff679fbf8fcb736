// Package storage copies snapshot files to off-site destinations.
//
// Mirrors are flat: every snapshot is stored as one object named
// <prefix><file name>. The package knows nothing about snapshot naming;
// callers decide which objects to prune.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// DefaultPrefix is the object prefix used when none is configured.
const DefaultPrefix = "sqlite-backups/"

// ErrNotFound is returned when a named object does not exist in the mirror.
var ErrNotFound = errors.New("object not found")

// ProviderType selects a mirror implementation
type ProviderType string

const (
	ProviderLocal ProviderType = "LOCAL"
	ProviderS3    ProviderType = "S3"
	ProviderAzure ProviderType = "AZURE"
	ProviderGCS   ProviderType = "GCS"
)

// Object is a file held by a mirror
type Object struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Mirror stores copies of local snapshot files
type Mirror interface {
	// Upload copies the file at localPath, keeping its base name.
	Upload(ctx context.Context, localPath string) error
	// List returns every object under the mirror's prefix, names without the prefix.
	List(ctx context.Context) ([]Object, error)
	// Delete removes the object with the given base name.
	Delete(ctx context.Context, name string) error
	// Name identifies the mirror in logs.
	Name() string
}

// Config selects and configures a mirror
type Config struct {
	Enabled  bool         `yaml:"enabled" mapstructure:"enabled"`
	Provider ProviderType `yaml:"provider" mapstructure:"provider"`
	Prefix   string       `yaml:"prefix" mapstructure:"prefix"`
	// Prune removes remote snapshots that local retention has expired.
	Prune bool         `yaml:"prune" mapstructure:"prune"`
	Local *LocalConfig `yaml:"local,omitempty" mapstructure:"local"`
	S3    *S3Config    `yaml:"s3,omitempty" mapstructure:"s3"`
	Azure *AzureConfig `yaml:"azure,omitempty" mapstructure:"azure"`
	GCS   *GCSConfig   `yaml:"gcs,omitempty" mapstructure:"gcs"`
}

// LocalConfig for a mirror directory on a local or mounted file system
type LocalConfig struct {
	BasePath    string      `yaml:"base_path" mapstructure:"base_path"`
	Permissions os.FileMode `yaml:"permissions" mapstructure:"permissions"`
}

// S3Config for Amazon S3 or an S3-compatible endpoint
type S3Config struct {
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Region    string `yaml:"region" mapstructure:"region"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
}

// AzureConfig for Azure Blob Storage
type AzureConfig struct {
	AccountName   string `yaml:"account_name" mapstructure:"account_name"`
	AccountKey    string `yaml:"account_key" mapstructure:"account_key"`
	ContainerName string `yaml:"container_name" mapstructure:"container_name"`
}

// GCSConfig for Google Cloud Storage
type GCSConfig struct {
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	CredentialsPath string `yaml:"credentials_path" mapstructure:"credentials_path"`
}

// SetDefaults fills unset fields
func (c *Config) SetDefaults() {
	c.Provider = ProviderType(strings.ToUpper(string(c.Provider)))
	if c.Provider == "" {
		c.Provider = ProviderLocal
	}
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	if !strings.HasSuffix(c.Prefix, "/") {
		c.Prefix += "/"
	}
	if c.Local != nil && c.Local.Permissions == 0 {
		c.Local.Permissions = 0o755
	}
}

// Validate checks that the selected provider has what it needs
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderLocal:
		if c.Local == nil {
			return errors.New("local mirror configuration is required")
		}
		return c.Local.Validate()
	case ProviderS3:
		if c.S3 == nil {
			return errors.New("S3 mirror configuration is required")
		}
		return c.S3.Validate()
	case ProviderAzure:
		if c.Azure == nil {
			return errors.New("Azure mirror configuration is required")
		}
		return c.Azure.Validate()
	case ProviderGCS:
		if c.GCS == nil {
			return errors.New("GCS mirror configuration is required")
		}
		return c.GCS.Validate()
	default:
		return fmt.Errorf("unsupported mirror provider %q, must be one of: %s", c.Provider, providerList())
	}
}

// Validate validates the LocalConfig
func (c *LocalConfig) Validate() error {
	if c.BasePath == "" {
		return errors.New("local mirror base_path is required")
	}
	return nil
}

// Validate validates the S3Config
func (c *S3Config) Validate() error {
	var errs []error
	if c.Bucket == "" {
		errs = append(errs, errors.New("S3 bucket is required"))
	}
	if c.Region == "" {
		errs = append(errs, errors.New("S3 region is required"))
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		errs = append(errs, errors.New("S3 access_key and secret_key must be set together"))
	}
	return errors.Join(errs...)
}

// Validate validates the AzureConfig
func (c *AzureConfig) Validate() error {
	var errs []error
	if c.AccountName == "" {
		errs = append(errs, errors.New("Azure account_name is required"))
	}
	if c.AccountKey == "" {
		errs = append(errs, errors.New("Azure account_key is required"))
	}
	if c.ContainerName == "" {
		errs = append(errs, errors.New("Azure container_name is required"))
	}
	return errors.Join(errs...)
}

// Validate validates the GCSConfig
func (c *GCSConfig) Validate() error {
	if c.Bucket == "" {
		return errors.New("GCS bucket is required")
	}
	return nil
}

// validateName rejects names that could escape the mirror's prefix.
func validateName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid object name %q", name)
	}
	return nil
}
