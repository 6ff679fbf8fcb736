package storage

import (
	"context"
	"fmt"
	"strings"
)

// NewMirror validates config and builds the selected provider
func NewMirror(ctx context.Context, config Config) (Mirror, error) {
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mirror configuration: %w", err)
	}

	switch config.Provider {
	case ProviderLocal:
		return NewLocalMirror(config.Local, config.Prefix)
	case ProviderS3:
		return NewS3Mirror(config.S3, config.Prefix)
	case ProviderAzure:
		return NewAzureMirror(config.Azure, config.Prefix)
	case ProviderGCS:
		return NewGCSMirror(ctx, config.GCS, config.Prefix)
	default:
		return nil, fmt.Errorf("unsupported mirror provider: %s", config.Provider)
	}
}

// SupportedProviders lists the provider types NewMirror accepts
func SupportedProviders() []ProviderType {
	return []ProviderType{ProviderLocal, ProviderS3, ProviderAzure, ProviderGCS}
}

func providerList() string {
	names := make([]string, 0, 4)
	for _, p := range SupportedProviders() {
		names = append(names, string(p))
	}
	return strings.Join(names, ", ")
}
