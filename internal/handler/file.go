package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/jun/cote/internal/adapter"
	"github.com/jun/cote/internal/auth"
	"github.com/jun/cote/internal/config"
	"go.uber.org/zap"
)

// FileHandler serves the /drive/files routes.
type FileHandler struct {
	storage adapter.StorageProvider
	issuer  *auth.Issuer
	logger  *zap.Logger
}

func NewFileHandler(sp adapter.StorageProvider, issuer *auth.Issuer, logger *zap.Logger) *FileHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileHandler{storage: sp, issuer: issuer, logger: logger}
}

type fileResponse struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
	Starred  bool   `json:"starred"`
}

type renameResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type contentResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
}

type starPayload struct {
	Starred *bool `json:"starred"`
}

// storageFor authenticates req and returns the caller's store. On failure
// the returned response is ready to send.
func (h *FileHandler) storageFor(ctx context.Context, req events.APIGatewayProxyRequest) (adapter.StorageAdapter, *events.APIGatewayProxyResponse) {
	claims, err := Authenticate(req, h.issuer)
	if err != nil {
		resp := unauthorized()
		return nil, &resp
	}
	storage, err := h.storage.GetAdapter(ctx, claims.Subject)
	if err != nil {
		h.logger.Error("failed to get storage adapter", zap.String("user_id", claims.Subject), zap.Error(err))
		// Usually a missing or revoked Google grant.
		resp := unauthorized()
		return nil, &resp
	}
	return storage, nil
}

// GetFile returns a file's name, content and star.
func (h *FileHandler) GetFile(ctx context.Context, req events.APIGatewayProxyRequest, fileID string) (events.APIGatewayProxyResponse, error) {
	storage, denied := h.storageFor(ctx, req)
	if denied != nil {
		return *denied, nil
	}

	f, err := storage.GetFile(ctx, fileID)
	if err != nil {
		return h.fail(err, fileID, "Failed to fetch file"), nil
	}
	return jsonResponse(http.StatusOK, fileResponse{
		Filename: f.Name,
		Content:  string(f.Content),
		Starred:  f.Starred,
	}), nil
}

// UpdateFilename renames a file and returns the stored name.
func (h *FileHandler) UpdateFilename(ctx context.Context, req events.APIGatewayProxyRequest, fileID string) (events.APIGatewayProxyResponse, error) {
	var body struct {
		Filename string `json:"filename"`
	}
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return errorResponse(http.StatusBadRequest, "Invalid request body"), nil
	}
	name := strings.TrimSpace(body.Filename)
	if name == "" {
		return errorResponse(http.StatusBadRequest, "Filename is required"), nil
	}

	storage, denied := h.storageFor(ctx, req)
	if denied != nil {
		return *denied, nil
	}

	meta, err := storage.RenameFile(ctx, fileID, name)
	if err != nil {
		return h.fail(err, fileID, "Failed to update filename"), nil
	}
	return jsonResponse(http.StatusOK, renameResponse{ID: meta.ID, Name: meta.Name}), nil
}

// GetStar returns a file's star.
func (h *FileHandler) GetStar(ctx context.Context, req events.APIGatewayProxyRequest, fileID string) (events.APIGatewayProxyResponse, error) {
	storage, denied := h.storageFor(ctx, req)
	if denied != nil {
		return *denied, nil
	}

	f, err := storage.GetFile(ctx, fileID)
	if err != nil {
		return h.fail(err, fileID, "Failed to get file star status"), nil
	}
	return jsonResponse(http.StatusOK, map[string]bool{"starred": f.Starred}), nil
}

// SetStar sets a file's star and returns the stored value.
func (h *FileHandler) SetStar(ctx context.Context, req events.APIGatewayProxyRequest, fileID string) (events.APIGatewayProxyResponse, error) {
	var body starPayload
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil || body.Starred == nil {
		return errorResponse(http.StatusBadRequest, "Invalid request body"), nil
	}

	storage, denied := h.storageFor(ctx, req)
	if denied != nil {
		return *denied, nil
	}

	meta, err := storage.SetStarred(ctx, fileID, *body.Starred)
	if err != nil {
		return h.fail(err, fileID, "Failed to toggle file star status"), nil
	}
	return jsonResponse(http.StatusOK, map[string]bool{"starred": meta.Starred}), nil
}

// UpdateContent replaces a file's content.
func (h *FileHandler) UpdateContent(ctx context.Context, req events.APIGatewayProxyRequest, fileID string) (events.APIGatewayProxyResponse, error) {
	var body struct {
		Content *string `json:"content"`
	}
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil || body.Content == nil {
		return errorResponse(http.StatusBadRequest, "Invalid request body"), nil
	}
	if len(*body.Content) > config.MaxContentSize {
		return errorResponse(http.StatusRequestEntityTooLarge, "File content is too large"), nil
	}

	storage, denied := h.storageFor(ctx, req)
	if denied != nil {
		return *denied, nil
	}

	meta, err := storage.SaveFile(ctx, fileID, []byte(*body.Content), header(req, "If-Match"))
	if err != nil {
		return h.fail(err, fileID, "Failed to update file content"), nil
	}
	return jsonResponse(http.StatusOK, contentResponse{ID: meta.ID, Name: meta.Name, MIMEType: meta.MIMEType}), nil
}

func (h *FileHandler) fail(err error, fileID, msg string) events.APIGatewayProxyResponse {
	switch {
	case errors.Is(err, adapter.ErrNotFound):
		return errorResponse(http.StatusNotFound, "File not found")
	case errors.Is(err, adapter.ErrTooLarge):
		return errorResponse(http.StatusRequestEntityTooLarge, "File content is too large")
	case errors.Is(err, adapter.ErrPreconditionFailed):
		return errorResponse(http.StatusPreconditionFailed, "File was modified elsewhere")
	}
	h.logger.Error(msg, zap.String("file_id", fileID), zap.Error(err))
	return errorResponse(http.StatusInternalServerError, msg)
}
