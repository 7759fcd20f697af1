package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"github.com/jun/cote/internal/adapter"
	"github.com/jun/cote/internal/auth"
	"go.uber.org/zap"
	xoauth2 "golang.org/x/oauth2"
	"google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// ProfileFetcher loads the Google profile of the user owning token.
type ProfileFetcher func(ctx context.Context, token *xoauth2.Token) (auth.Profile, error)

// AuthOptions configure an AuthHandler.
type AuthOptions struct {
	DevMode     bool
	FrontendURL string
	// PublicURL is where this server is reachable; the dev login URL is
	// built from it.
	PublicURL string
	Logger    *zap.Logger
	// Profiles replaces the Google userinfo lookup.
	Profiles ProfileFetcher
}

// AuthHandler handles authentication requests.
type AuthHandler struct {
	authService *auth.AuthService
	issuer      *auth.Issuer
	storage     adapter.StorageProvider
	cookies     CookiePolicy
	opts        AuthOptions
	logger      *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(s *auth.AuthService, issuer *auth.Issuer, sp adapter.StorageProvider, opts AuthOptions) *AuthHandler {
	h := &AuthHandler{
		authService: s,
		issuer:      issuer,
		storage:     sp,
		cookies:     CookiePolicy{DevMode: opts.DevMode},
		opts:        opts,
		logger:      opts.Logger,
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.opts.Profiles == nil {
		h.opts.Profiles = h.googleProfile
	}
	h.opts.FrontendURL = strings.TrimRight(h.opts.FrontendURL, "/")
	h.opts.PublicURL = strings.TrimRight(h.opts.PublicURL, "/")
	return h
}

// AuthURL returns the consent URL. The return path travels in a signed
// state parameter.
func (h *AuthHandler) AuthURL(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	returnURL := SafeReturnPath(req.QueryStringParameters["returnUrl"])
	state, err := h.issuer.IssueState(returnURL)
	if err != nil {
		h.logger.Error("failed to sign state", zap.Error(err))
		return errorResponse(http.StatusInternalServerError, "Failed to generate auth URL"), nil
	}

	var target string
	if h.opts.DevMode {
		target = h.opts.PublicURL + "/auth/dev-login?" + url.Values{"state": {state}}.Encode()
	} else {
		target = h.authService.GenerateAuthURL(state, req.QueryStringParameters["login_hint"])
	}
	return jsonResponse(http.StatusOK, map[string]string{"url": target}), nil
}

// Callback handles the OAuth2 callback from Google.
func (h *AuthHandler) Callback(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if e := req.QueryStringParameters["error"]; e != "" {
		h.logger.Warn("consent denied", zap.String("error", e))
		return redirect(h.opts.FrontendURL + "/"), nil
	}

	code := req.QueryStringParameters["code"]
	if code == "" {
		return errorResponse(http.StatusBadRequest, "Missing code"), nil
	}
	claims, err := h.issuer.ParseState(req.QueryStringParameters["state"])
	if err != nil {
		h.logger.Warn("invalid oauth state", zap.Error(err))
		return errorResponse(http.StatusBadRequest, "Invalid state"), nil
	}

	token, err := h.authService.ExchangeCode(ctx, code)
	if err != nil {
		h.logger.Error("failed to exchange code", zap.Error(err))
		return errorResponse(http.StatusInternalServerError, "Failed to exchange code"), nil
	}

	profile, err := h.opts.Profiles(ctx, token)
	if err != nil {
		h.logger.Error("failed to get user info", zap.Error(err))
		return errorResponse(http.StatusInternalServerError, "Failed to get user info"), nil
	}

	if err := h.authService.SaveToken(ctx, profile, token); err != nil {
		// The session still works; Drive calls fail until the user consents again.
		h.logger.Warn("failed to save token", zap.String("user_id", profile.ID), zap.Error(err))
	}

	return h.signIn(profile, SafeReturnPath(claims.ReturnURL))
}

// DevLogin signs in a throwaway user backed by the local store and seeds it
// with a welcome file. A bare return path is replaced by that file.
func (h *AuthHandler) DevLogin(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	returnURL := "/"
	if state := req.QueryStringParameters["state"]; state != "" {
		claims, err := h.issuer.ParseState(state)
		if err != nil {
			return errorResponse(http.StatusBadRequest, "Invalid state"), nil
		}
		returnURL = SafeReturnPath(claims.ReturnURL)
	}

	profile := auth.Profile{
		ID:    adapter.DevUserPrefix + uuid.New().String(),
		Name:  "Dev User",
		Email: "dev@cote.local",
	}

	storage, err := h.storage.GetAdapter(ctx, profile.ID)
	if err != nil {
		h.logger.Error("failed to get storage adapter", zap.String("user_id", profile.ID), zap.Error(err))
		return errorResponse(http.StatusInternalServerError, "Failed to get storage adapter"), nil
	}
	welcome, err := storage.CreateFile(ctx, welcomeName, []byte(welcomeContent))
	if err != nil {
		h.logger.Warn("failed to create welcome file", zap.Error(err))
	} else if returnURL == "/" {
		returnURL = OpenPath(welcome.ID)
	}

	return h.signIn(profile, returnURL)
}

// OpenPath is the editor route that opens fileID.
func OpenPath(fileID string) string {
	state, _ := json.Marshal(map[string]any{"ids": []string{fileID}, "action": "open"})
	return "/file?" + url.Values{"state": {string(state)}}.Encode()
}

func (h *AuthHandler) signIn(profile auth.Profile, returnURL string) (events.APIGatewayProxyResponse, error) {
	access, err := h.issuer.IssueAccess(profile)
	if err != nil {
		return errorResponse(http.StatusInternalServerError, "Failed to sign token"), nil
	}
	refresh, err := h.issuer.IssueRefresh(profile)
	if err != nil {
		return errorResponse(http.StatusInternalServerError, "Failed to sign token"), nil
	}

	h.logger.Info("user signed in", zap.String("user_id", profile.ID))
	return redirect(h.opts.FrontendURL+returnURL,
		h.cookies.Set(AccessCookie, access, h.issuer.AccessTTL()),
		h.cookies.Set(RefreshCookie, refresh, h.issuer.RefreshTTL()),
	), nil
}

// Status returns the profile of the signed-in user.
func (h *AuthHandler) Status(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	claims, err := Authenticate(req, h.issuer)
	if err != nil {
		return unauthorized(), nil
	}
	return jsonResponse(http.StatusOK, claims.Profile()), nil
}

// Refresh issues a new access token from a valid refresh token.
func (h *AuthHandler) Refresh(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	claims, err := h.issuer.ParseRefresh(cookie(req, RefreshCookie))
	if err != nil {
		resp := unauthorized()
		resp.MultiValueHeaders = map[string][]string{
			"Set-Cookie": {h.cookies.Clear(AccessCookie), h.cookies.Clear(RefreshCookie)},
		}
		return resp, nil
	}

	access, err := h.issuer.IssueAccess(claims.Profile())
	if err != nil {
		return errorResponse(http.StatusInternalServerError, "Failed to sign token"), nil
	}
	resp := jsonResponse(http.StatusOK, map[string]bool{"success": true})
	resp.MultiValueHeaders = map[string][]string{
		"Set-Cookie": {h.cookies.Set(AccessCookie, access, h.issuer.AccessTTL())},
	}
	return resp, nil
}

// Logout clears the session cookies.
func (h *AuthHandler) Logout(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	resp := jsonResponse(http.StatusOK, map[string]bool{"success": true})
	resp.MultiValueHeaders = map[string][]string{
		"Set-Cookie": {h.cookies.Clear(AccessCookie), h.cookies.Clear(RefreshCookie)},
	}
	return resp, nil
}

func (h *AuthHandler) googleProfile(ctx context.Context, token *xoauth2.Token) (auth.Profile, error) {
	svc, err := oauth2.NewService(ctx, option.WithTokenSource(h.authService.Config().TokenSource(ctx, token)))
	if err != nil {
		return auth.Profile{}, fmt.Errorf("create oauth2 service: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return auth.Profile{}, fmt.Errorf("get userinfo: %w", err)
	}
	return auth.Profile{ID: info.Id, Name: info.Name, Email: info.Email, Picture: info.Picture}, nil
}

const welcomeName = "welcome.md"

const welcomeContent = "# Welcome to cote\n\n" +
	"This file lives in the development store. Edits are saved three seconds after you stop typing.\n\n" +
	"- Rename the file to change how it is highlighted (try `welcome.go`).\n" +
	"- Star it to find it again later.\n\n" +
	"```go\n" +
	"package main\n\n" +
	"import \"fmt\"\n\n" +
	"func main() {\n" +
	"\tfmt.Println(\"Hello, cote!\")\n" +
	"}\n" +
	"```\n"
