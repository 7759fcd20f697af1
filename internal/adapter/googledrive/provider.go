package googledrive

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jun/cote/internal/adapter"
)

// ClientSource returns an authenticated HTTP client for a user.
type ClientSource interface {
	GetClient(ctx context.Context, userID string) (*http.Client, error)
}

// Provider implements adapter.StorageProvider for Google Drive.
type Provider struct {
	clients ClientSource
}

// NewProvider creates a new Google Drive provider.
func NewProvider(clients ClientSource) *Provider {
	return &Provider{clients: clients}
}

// GetAdapter returns a DriveAdapter for the given user ID.
func (p *Provider) GetAdapter(ctx context.Context, userID string) (adapter.StorageAdapter, error) {
	client, err := p.clients.GetClient(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get authenticated client: %w", err)
	}

	storage, err := NewDriveAdapter(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive adapter: %w", err)
	}
	return storage, nil
}
