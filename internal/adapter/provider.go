package adapter

import (
	"context"
	"strings"
)

// StorageProvider hands out a StorageAdapter per user.
type StorageProvider interface {
	GetAdapter(ctx context.Context, userID string) (StorageAdapter, error)
}

// DevUserPrefix marks users created by the development login. Their files
// live in the local store even when Google Drive is configured.
const DevUserPrefix = "dev-user-"

// HybridProvider sends development users to one provider and everyone else
// to another.
type HybridProvider struct {
	Google StorageProvider
	Local  StorageProvider
}

func (h *HybridProvider) GetAdapter(ctx context.Context, userID string) (StorageAdapter, error) {
	if strings.HasPrefix(userID, DevUserPrefix) {
		return h.Local.GetAdapter(ctx, userID)
	}
	return h.Google.GetAdapter(ctx, userID)
}
