// Package adapter abstracts the file store behind the contract server.
package adapter

import (
	"context"
	"time"
)

// FileMetadata describes a stored file.
type FileMetadata struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MIMEType     string    `json:"mimeType"`
	ModifiedTime time.Time `json:"modifiedTime"`
	Size         int64     `json:"size"`
	ETag         string    `json:"etag"`
	Starred      bool      `json:"starred"`
}

// File is a stored file with its content.
type File struct {
	FileMetadata
	Content []byte `json:"content"`
}

// StorageAdapter is the file store for one user. Implementations exist for
// Google Drive and for a local map or DynamoDB table used in development.
type StorageAdapter interface {
	// GetFile retrieves a file's content and metadata by its ID.
	GetFile(ctx context.Context, fileID string) (*File, error)

	// SaveFile replaces a file's content. A non-empty etag must match the
	// stored one or ErrPreconditionFailed is returned.
	SaveFile(ctx context.Context, fileID string, content []byte, etag string) (*FileMetadata, error)

	// CreateFile creates a new file.
	CreateFile(ctx context.Context, name string, content []byte) (*FileMetadata, error)

	// RenameFile renames a file. The stored name may differ from newName.
	RenameFile(ctx context.Context, fileID string, newName string) (*FileMetadata, error)

	// SetStarred sets the starred status of a file.
	SetStarred(ctx context.Context, fileID string, starred bool) (*FileMetadata, error)
}
