// Package drive is a typed client for the file endpoints of the API.
package drive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/jun/cote/internal/config"
	"github.com/jun/cote/internal/session"
	"go.uber.org/zap"
)

// MaxContentSize is the largest body UpdateContent will submit.
const MaxContentSize = config.MaxContentSize

var (
	// ErrContentTooLarge is returned before any request when content exceeds MaxContentSize.
	ErrContentTooLarge = errors.New("file content is too large, please try with a smaller file")

	// ErrUnauthorized matches an APIError with status 401.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound matches an APIError with status 404.
	ErrNotFound = errors.New("file not found")
)

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// Is lets errors.Is match the status sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// File is an open document as served by the API.
type File struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
	Starred  bool   `json:"starred"`
}

// Renamed is the server's view of a file after a rename.
type Renamed struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Saved is the server's view of a file after a content update.
type Saved struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
}

type starBody struct {
	Starred bool `json:"starred"`
}

// Client talks to /api/drive/files through a credentialed caller.
type Client struct {
	caller session.Caller
	logger *zap.Logger
}

// NewClient creates a Client.
func NewClient(caller session.Caller, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{caller: caller, logger: logger}
}

// GetFile fetches a file's name, content and star.
func (c *Client) GetFile(ctx context.Context, id string) (*File, error) {
	var f File
	if err := c.do(ctx, http.MethodGet, filePath(id), nil, &f, "failed to fetch file"); err != nil {
		c.logger.Error("error fetching file", zap.String("file_id", id), zap.Error(err))
		return nil, err
	}
	return &f, nil
}

// UpdateFilename renames a file. The returned name may differ from the one
// requested.
func (c *Client) UpdateFilename(ctx context.Context, id, name string) (*Renamed, error) {
	body := map[string]string{"filename": name}
	var r Renamed
	if err := c.do(ctx, http.MethodPut, filePath(id), body, &r, "failed to update filename"); err != nil {
		c.logger.Error("error updating filename", zap.String("file_id", id), zap.Error(err))
		return nil, err
	}
	return &r, nil
}

// GetStar reads a file's starred flag.
func (c *Client) GetStar(ctx context.Context, id string) (bool, error) {
	var s starBody
	if err := c.do(ctx, http.MethodGet, filePath(id)+"/star", nil, &s, "failed to get file star status"); err != nil {
		c.logger.Error("error getting file star status", zap.String("file_id", id), zap.Error(err))
		return false, err
	}
	return s.Starred, nil
}

// SetStar requests a starred flag and returns the value the server confirmed.
func (c *Client) SetStar(ctx context.Context, id string, starred bool) (bool, error) {
	var s starBody
	if err := c.do(ctx, http.MethodPut, filePath(id)+"/star", starBody{Starred: starred}, &s, "failed to toggle file star status"); err != nil {
		c.logger.Error("error toggling file star status", zap.String("file_id", id), zap.Error(err))
		return false, err
	}
	return s.Starred, nil
}

// UpdateContent replaces a file's content.
func (c *Client) UpdateContent(ctx context.Context, id, content string) (*Saved, error) {
	if len(content) > MaxContentSize {
		c.logger.Error("error updating file content", zap.String("file_id", id), zap.Int("size", len(content)), zap.Error(ErrContentTooLarge))
		return nil, ErrContentTooLarge
	}
	body := map[string]string{"content": content}
	var s Saved
	if err := c.do(ctx, http.MethodPut, filePath(id)+"/content", body, &s, "failed to update file content"); err != nil {
		c.logger.Error("error updating file content", zap.String("file_id", id), zap.Error(err))
		return nil, err
	}
	return &s, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, fallback string) error {
	opts := session.RequestOptions{Method: method}
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		opts.Body = data
		opts.Header = http.Header{"Content-Type": []string{"application/json"}}
	}

	resp, err := c.caller.Call(ctx, path, opts)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp, fallback)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response, fallback string) error {
	apiErr := &APIError{Status: resp.StatusCode, Message: fallback}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		apiErr.Message = body.Error
	}
	return apiErr
}

func filePath(id string) string {
	return "/api/drive/files/" + url.PathEscape(id)
}
