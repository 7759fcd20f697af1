package app_test

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/jun/cote/internal/adapter/memory"
	"github.com/jun/cote/internal/app"
	"github.com/jun/cote/internal/auth"
	"github.com/jun/cote/internal/config"
	"github.com/jun/cote/internal/crypto"
	"github.com/jun/cote/internal/document"
	"github.com/jun/cote/internal/drive"
	"github.com/jun/cote/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/oauth2"
)

func newApp(cfg config.Server, originSecret string) *app.App {
	if cfg.FrontendURL == "" {
		cfg.FrontendURL = "http://localhost:3000"
	}
	return app.New(app.Deps{
		Config:       cfg,
		Auth:         auth.NewAuthService(&oauth2.Config{ClientID: "id"}, nil, "", crypto.NewMockEncryptor()),
		Issuer:       auth.NewIssuer("test-secret", 15*time.Minute, time.Hour),
		Storage:      memory.NewProvider(nil, ""),
		OriginSecret: originSecret,
	})
}

// devServer runs the app in DEV_MODE behind httptest.
func devServer(t *testing.T) *httptest.Server {
	t.Helper()
	var application *app.App
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		application.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	application = newApp(config.Server{DevMode: true, PublicURL: srv.URL}, "")
	return srv
}

// signIn runs the dev login through a session client and returns the
// editor location the server redirected to.
func signIn(t *testing.T, srv *httptest.Server) (*session.Client, *cookiejar.Jar, *url.URL) {
	t.Helper()
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	require.NoError(t, err)
	hc := &http.Client{Jar: jar}

	var landed *url.URL
	follow := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	nav := session.NavigatorFunc(func(ctx context.Context, target string) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return err
		}
		resp, err := follow.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		landed, err = url.Parse(resp.Header.Get("Location"))
		return err
	})

	client := session.NewClient(srv.URL, session.New(), session.WithHTTPClient(hc), session.WithNavigator(nav))
	ctx := context.Background()
	client.InitiateAuth(ctx, session.AuthOptions{})
	require.NotNil(t, landed, "dev login did not redirect")

	client.CheckStatus(ctx)
	require.True(t, client.Session().Authorized())
	return client, jar, landed
}

func TestEditorAgainstDevServer(t *testing.T) {
	srv := devServer(t)
	client, _, landed := signIn(t, srv)
	ctx := context.Background()

	st := client.Session().Snapshot()
	require.NotNil(t, st.User)
	assert.Equal(t, "Dev User", st.User.Name)
	assert.Equal(t, "/file", landed.Path)

	files := drive.NewClient(client, nil)
	ctrl := document.New(files, client.Session(), document.WithDebounce(20*time.Millisecond))
	defer ctrl.Wait()
	defer ctrl.Close()

	ctrl.OpenURL(ctx, landed)
	snap := ctrl.Snapshot()
	require.Equal(t, document.PhaseReady, snap.Phase, "err: %+v", snap.Err)
	assert.Equal(t, document.ModeRemote, snap.Mode)
	assert.Equal(t, "welcome.md", snap.Name)
	assert.Contains(t, snap.Body, "Welcome to cote")

	ctrl.Edit("package main\n")
	require.NoError(t, ctrl.Flush(ctx))
	assert.Equal(t, document.Saved, ctrl.Snapshot().SaveState)

	require.NoError(t, ctrl.Rename(ctx, "main.go"))
	assert.Equal(t, "main.go", ctrl.Snapshot().Name)
	assert.Equal(t, "go", ctrl.Language())

	require.NoError(t, ctrl.ToggleStar(ctx))
	assert.True(t, ctrl.Snapshot().Starred)

	f, err := files.GetFile(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, "main.go", f.Filename)
	assert.Equal(t, "package main\n", f.Content)
	assert.True(t, f.Starred)
}

func TestExpiredAccessIsRefreshed(t *testing.T) {
	srv := devServer(t)
	client, jar, landed := signIn(t, srv)
	ctx := context.Background()

	// Drop the access cookie; the refresh cookie remains.
	base, _ := url.Parse(srv.URL)
	jar.SetCookies(base, []*http.Cookie{{Name: "access_token", Value: "", Path: "/", MaxAge: -1}})

	desc, err := document.DescriptorFromURL(landed)
	require.NoError(t, err)

	f, err := drive.NewClient(client, nil).GetFile(ctx, desc.FileID())
	require.NoError(t, err)
	assert.Equal(t, "welcome.md", f.Filename)
	assert.True(t, client.Session().Authorized())
}

func TestLogoutEndsSession(t *testing.T) {
	srv := devServer(t)
	client, _, _ := signIn(t, srv)
	ctx := context.Background()

	require.NoError(t, client.Logout(ctx))
	client.CheckStatus(ctx)
	assert.False(t, client.Session().Authorized())
}

func TestMissingFileIsNotFound(t *testing.T) {
	srv := devServer(t)
	client, _, _ := signIn(t, srv)

	_, err := drive.NewClient(client, nil).GetFile(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, drive.ErrNotFound)
}

func TestHandleRequest_Routing(t *testing.T) {
	ctx := context.Background()

	prod := newApp(config.Server{}, "origin-secret")
	tests := []struct {
		name    string
		req     events.APIGatewayProxyRequest
		status  int
		contain string
	}{
		{
			name:   "preflight skips origin check",
			req:    events.APIGatewayProxyRequest{HTTPMethod: http.MethodOptions, Path: "/api/auth/status"},
			status: http.StatusNoContent,
		},
		{
			name:   "missing origin header",
			req:    events.APIGatewayProxyRequest{HTTPMethod: http.MethodGet, Path: "/api/auth/status"},
			status: http.StatusForbidden,
		},
		{
			name: "status without session",
			req: events.APIGatewayProxyRequest{HTTPMethod: http.MethodGet, Path: "/api/auth/status",
				Headers: map[string]string{"x-origin-verify": "origin-secret"}},
			status: http.StatusUnauthorized,
		},
		{
			name: "dev login disabled outside dev mode",
			req: events.APIGatewayProxyRequest{HTTPMethod: http.MethodGet, Path: "/auth/dev-login",
				Headers: map[string]string{"X-Origin-Verify": "origin-secret"}},
			status: http.StatusNotFound,
		},
		{
			name: "unknown file action",
			req: events.APIGatewayProxyRequest{HTTPMethod: http.MethodGet, Path: "/api/drive/files/abc/history",
				Headers: map[string]string{"X-Origin-Verify": "origin-secret"}},
			status:  http.StatusNotFound,
			contain: "Not Found",
		},
		{
			name: "file route requires session",
			req: events.APIGatewayProxyRequest{HTTPMethod: http.MethodPut, Path: "/api/drive/files/abc/content",
				Headers: map[string]string{"X-Origin-Verify": "origin-secret"}, Body: `{"content":"x"}`},
			status: http.StatusUnauthorized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := prod.HandleRequest(ctx, tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode, resp.Body)
			assert.Equal(t, "http://localhost:3000", resp.Headers["Access-Control-Allow-Origin"])
			assert.Equal(t, "true", resp.Headers["Access-Control-Allow-Credentials"])
			if tt.contain != "" {
				assert.True(t, strings.Contains(resp.Body, tt.contain), resp.Body)
			}
		})
	}
}
