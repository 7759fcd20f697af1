package googledrive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jun/cote/internal/adapter"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	fileFields = "id, name, mimeType, modifiedTime, size, md5Checksum, starred"
	folderMIME = "application/vnd.google-apps.folder"
)

// ErrNotAFile is returned when the ID names a folder. It matches
// adapter.ErrNotFound.
var ErrNotAFile = fmt.Errorf("not a downloadable file: %w", adapter.ErrNotFound)

// DriveAdapter implements adapter.StorageAdapter for Google Drive.
type DriveAdapter struct {
	service *drive.Service
}

// NewDriveAdapter creates a new DriveAdapter.
// client should be an authenticated http.Client with specific user credentials.
func NewDriveAdapter(ctx context.Context, client *http.Client, opts ...option.ClientOption) (*DriveAdapter, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Drive client: %w", err)
	}
	return &DriveAdapter{service: srv}, nil
}

// GetFile retrieves a file's content and metadata by its ID.
func (d *DriveAdapter) GetFile(ctx context.Context, fileID string) (*adapter.File, error) {
	f, err := d.service.Files.Get(fileID).
		SupportsAllDrives(true).
		Fields(fileFields).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify(err, "unable to get file metadata")
	}
	if f.MimeType == folderMIME {
		return nil, ErrNotAFile
	}

	resp, err := d.service.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return nil, classify(err, "unable to download file")
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to read file content: %w", err)
	}

	return &adapter.File{
		FileMetadata: toMetadata(f),
		Content:      content,
	}, nil
}

// SaveFile updates an existing file's content. A non-empty etag is sent as
// If-Match.
func (d *DriveAdapter) SaveFile(ctx context.Context, fileID string, content []byte, etag string) (*adapter.FileMetadata, error) {
	call := d.service.Files.Update(fileID, &drive.File{}).
		Media(bytes.NewReader(content)).
		SupportsAllDrives(true).
		Fields(fileFields).
		Context(ctx)
	if etag != "" {
		call.Header().Set("If-Match", etag)
	}

	res, err := call.Do()
	if err != nil {
		return nil, classify(err, "unable to update file")
	}
	meta := toMetadata(res)
	return &meta, nil
}

// CreateFile creates a new file in the user's My Drive root.
func (d *DriveAdapter) CreateFile(ctx context.Context, name string, content []byte) (*adapter.FileMetadata, error) {
	f := &drive.File{
		Name:    name,
		Parents: []string{"root"},
	}
	res, err := d.service.Files.Create(f).
		Media(bytes.NewReader(content)).
		SupportsAllDrives(true).
		Fields(fileFields).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify(err, "unable to create file")
	}
	meta := toMetadata(res)
	return &meta, nil
}

// RenameFile renames a file. Drive allows duplicate names, so the stored
// name is newName.
func (d *DriveAdapter) RenameFile(ctx context.Context, fileID string, newName string) (*adapter.FileMetadata, error) {
	res, err := d.service.Files.Update(fileID, &drive.File{Name: newName}).
		SupportsAllDrives(true).
		Fields(fileFields).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify(err, "unable to rename file")
	}
	meta := toMetadata(res)
	return &meta, nil
}

// SetStarred sets the starred status of a file.
func (d *DriveAdapter) SetStarred(ctx context.Context, fileID string, starred bool) (*adapter.FileMetadata, error) {
	f := &drive.File{
		Starred: starred,
	}
	// false is the zero value and would otherwise be omitted.
	f.ForceSendFields = []string{"Starred"}

	res, err := d.service.Files.Update(fileID, f).
		SupportsAllDrives(true).
		Fields(fileFields).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify(err, "unable to update starred status")
	}
	meta := toMetadata(res)
	return &meta, nil
}

func toMetadata(f *drive.File) adapter.FileMetadata {
	modTime, _ := time.Parse(time.RFC3339, f.ModifiedTime)
	return adapter.FileMetadata{
		ID:           f.Id,
		Name:         f.Name,
		MIMEType:     f.MimeType,
		ModifiedTime: modTime,
		Size:         f.Size,
		ETag:         f.Md5Checksum,
		Starred:      f.Starred,
	}
}

// classify maps Drive API status codes onto the adapter errors.
func classify(err error, msg string) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		switch gErr.Code {
		case http.StatusNotFound:
			return adapter.ErrNotFound
		case http.StatusPreconditionFailed:
			return adapter.ErrPreconditionFailed
		case http.StatusRequestEntityTooLarge:
			return adapter.ErrTooLarge
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}
