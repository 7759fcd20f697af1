package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/jun/cote/internal/adapter/memory"
	"github.com/jun/cote/internal/auth"
	"github.com/jun/cote/internal/crypto"
	"golang.org/x/oauth2"
)

const (
	testFrontend = "http://localhost:3000"
	testPublic   = "http://localhost:8080"
)

type authFixture struct {
	handler *AuthHandler
	service *auth.AuthService
	issuer  *auth.Issuer
	storage *memory.Provider
}

func newAuthFixture(t *testing.T, devMode bool, tokenURL string) *authFixture {
	t.Helper()
	service := auth.NewAuthService(&oauth2.Config{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  testPublic + "/auth/google/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.example.com/o/oauth2/auth",
			TokenURL: tokenURL,
		},
	}, nil, "", crypto.NewMockEncryptor())
	issuer := auth.NewIssuer("test-secret", 15*time.Minute, 30*24*time.Hour)
	storage := memory.NewProvider(nil, "")

	h := NewAuthHandler(service, issuer, storage, AuthOptions{
		DevMode:     devMode,
		FrontendURL: testFrontend + "/",
		PublicURL:   testPublic,
		Profiles: func(ctx context.Context, token *oauth2.Token) (auth.Profile, error) {
			if token.AccessToken != "google-access" {
				return auth.Profile{}, fmt.Errorf("unexpected token %q", token.AccessToken)
			}
			return auth.Profile{ID: "google-1", Name: "Alice", Email: "alice@example.com"}, nil
		},
	})
	return &authFixture{handler: h, service: service, issuer: issuer, storage: storage}
}

// setCookies parses the Set-Cookie values of resp by name.
func setCookies(t *testing.T, resp events.APIGatewayProxyResponse) map[string]*http.Cookie {
	t.Helper()
	out := make(map[string]*http.Cookie)
	for _, line := range resp.MultiValueHeaders["Set-Cookie"] {
		c, err := http.ParseSetCookie(line)
		if err != nil {
			t.Fatalf("invalid Set-Cookie %q: %v", line, err)
		}
		out[c.Name] = c
	}
	return out
}

func TestAuthURL_DevMode(t *testing.T) {
	f := newAuthFixture(t, true, "")

	resp, _ := f.handler.AuthURL(context.Background(), events.APIGatewayProxyRequest{
		QueryStringParameters: map[string]string{"returnUrl": "/file?state=abc"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		URL string `json:"url"`
	}
	json.Unmarshal([]byte(resp.Body), &body)
	u, err := url.Parse(body.URL)
	if err != nil {
		t.Fatalf("invalid url %q", body.URL)
	}
	if u.Host != "localhost:8080" || u.Path != "/auth/dev-login" {
		t.Errorf("Expected dev login URL, got %s", body.URL)
	}
	claims, err := f.issuer.ParseState(u.Query().Get("state"))
	if err != nil {
		t.Fatalf("ParseState failed: %v", err)
	}
	if claims.ReturnURL != "/file?state=abc" {
		t.Errorf("Expected return URL to survive, got %q", claims.ReturnURL)
	}
}

func TestAuthURL_Google(t *testing.T) {
	f := newAuthFixture(t, false, "")

	resp, _ := f.handler.AuthURL(context.Background(), events.APIGatewayProxyRequest{
		QueryStringParameters: map[string]string{"returnUrl": "//evil", "login_hint": "alice@example.com"},
	})

	var body struct {
		URL string `json:"url"`
	}
	json.Unmarshal([]byte(resp.Body), &body)
	u, _ := url.Parse(body.URL)
	if u.Host != "accounts.example.com" {
		t.Errorf("Expected Google consent URL, got %s", body.URL)
	}
	if u.Query().Get("login_hint") != "alice@example.com" {
		t.Errorf("Expected login hint, got %s", body.URL)
	}
	claims, _ := f.issuer.ParseState(u.Query().Get("state"))
	if claims == nil || claims.ReturnURL != "/" {
		t.Errorf("Expected unsafe return URL to be replaced by /, got %+v", claims)
	}
}

func TestDevLogin_SeedsWelcomeFile(t *testing.T) {
	f := newAuthFixture(t, true, "")
	ctx := context.Background()

	resp, _ := f.handler.DevLogin(ctx, events.APIGatewayProxyRequest{})
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("Expected status 302, got %d. Body: %s", resp.StatusCode, resp.Body)
	}

	cookies := setCookies(t, resp)
	access := cookies[AccessCookie]
	if access == nil || cookies[RefreshCookie] == nil {
		t.Fatalf("Expected both session cookies, got %v", resp.MultiValueHeaders)
	}
	if access.Secure {
		t.Error("Dev cookies must not be Secure")
	}
	claims, err := f.issuer.ParseAccess(access.Value)
	if err != nil {
		t.Fatalf("ParseAccess failed: %v", err)
	}
	if !strings.HasPrefix(claims.Subject, "dev-user-") {
		t.Errorf("Expected dev user, got %q", claims.Subject)
	}

	location := resp.Headers["Location"]
	if !strings.HasPrefix(location, testFrontend+"/file?") {
		t.Fatalf("Expected redirect to the welcome file, got %q", location)
	}
	u, _ := url.Parse(location)
	var desc struct {
		IDs    []string `json:"ids"`
		Action string   `json:"action"`
	}
	if err := json.Unmarshal([]byte(u.Query().Get("state")), &desc); err != nil {
		t.Fatalf("invalid state in %q: %v", location, err)
	}
	if desc.Action != "open" || len(desc.IDs) != 1 {
		t.Fatalf("unexpected descriptor %+v", desc)
	}

	storage, _ := f.storage.GetAdapter(ctx, claims.Subject)
	file, err := storage.GetFile(ctx, desc.IDs[0])
	if err != nil {
		t.Fatalf("GetFile failed: %v", err)
	}
	if file.Name != "welcome.md" {
		t.Errorf("Expected 'welcome.md', got %q", file.Name)
	}
}

func TestDevLogin_KeepsReturnURL(t *testing.T) {
	f := newAuthFixture(t, true, "")
	state, _ := f.issuer.IssueState("/file?state=xyz")

	resp, _ := f.handler.DevLogin(context.Background(), events.APIGatewayProxyRequest{
		QueryStringParameters: map[string]string{"state": state},
	})
	if got := resp.Headers["Location"]; got != testFrontend+"/file?state=xyz" {
		t.Errorf("Expected return URL, got %q", got)
	}

	resp, _ = f.handler.DevLogin(context.Background(), events.APIGatewayProxyRequest{
		QueryStringParameters: map[string]string{"state": "forged"},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for forged state, got %d", resp.StatusCode)
	}
}

func TestCallback(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.Form.Get("code") != "auth-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"google-access","refresh_token":"google-refresh","token_type":"Bearer","expires_in":3600}`)
	}))
	defer tokenSrv.Close()

	f := newAuthFixture(t, false, tokenSrv.URL)
	ctx := context.Background()
	state, _ := f.issuer.IssueState("/file?state=abc")

	resp, _ := f.handler.Callback(ctx, events.APIGatewayProxyRequest{
		QueryStringParameters: map[string]string{"code": "auth-code", "state": state},
	})
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("Expected 302, got %d: %s", resp.StatusCode, resp.Body)
	}
	if got := resp.Headers["Location"]; got != testFrontend+"/file?state=abc" {
		t.Errorf("Expected redirect to return URL, got %q", got)
	}

	cookies := setCookies(t, resp)
	if c := cookies[AccessCookie]; c == nil || !c.Secure || c.SameSite != http.SameSiteNoneMode {
		t.Errorf("Expected Secure SameSite=None access cookie, got %+v", c)
	}

	saved, err := f.service.GetUserToken(ctx, "google-1")
	if err != nil {
		t.Fatalf("GetUserToken failed: %v", err)
	}
	if saved.EncryptedRefreshToken != "mock:google-refresh" || saved.Email != "alice@example.com" {
		t.Errorf("Unexpected stored token %+v", saved)
	}
}

func TestCallback_BadRequests(t *testing.T) {
	f := newAuthFixture(t, false, "")
	state, _ := f.issuer.IssueState("/")

	tests := []struct {
		name   string
		params map[string]string
		status int
	}{
		{"missing code", map[string]string{"state": state}, http.StatusBadRequest},
		{"invalid state", map[string]string{"code": "c", "state": "nope"}, http.StatusBadRequest},
		{"consent denied", map[string]string{"error": "access_denied"}, http.StatusFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := f.handler.Callback(context.Background(), events.APIGatewayProxyRequest{QueryStringParameters: tt.params})
			if resp.StatusCode != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, resp.StatusCode)
			}
		})
	}
}

func TestStatusRefreshLogout(t *testing.T) {
	f := newAuthFixture(t, true, "")
	ctx := context.Background()
	profile := auth.Profile{ID: "u1", Name: "Alice", Email: "alice@example.com", Picture: "p.png"}
	access, _ := f.issuer.IssueAccess(profile)
	refresh, _ := f.issuer.IssueRefresh(profile)

	resp, _ := f.handler.Status(ctx, events.APIGatewayProxyRequest{
		Headers: map[string]string{"Cookie": "access_token=" + access},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var got auth.Profile
	json.Unmarshal([]byte(resp.Body), &got)
	if got != profile {
		t.Errorf("Expected %+v, got %+v", profile, got)
	}
	if !strings.Contains(resp.Body, `"sub":"u1"`) {
		t.Errorf("Expected sub field, got %s", resp.Body)
	}

	resp, _ = f.handler.Status(ctx, events.APIGatewayProxyRequest{})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 without cookie, got %d", resp.StatusCode)
	}

	resp, _ = f.handler.Refresh(ctx, events.APIGatewayProxyRequest{
		Headers: map[string]string{"Cookie": "refresh_token=" + refresh},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 from refresh, got %d", resp.StatusCode)
	}
	renewed := setCookies(t, resp)[AccessCookie]
	if renewed == nil {
		t.Fatal("Expected a new access cookie")
	}
	if claims, err := f.issuer.ParseAccess(renewed.Value); err != nil || claims.Email != profile.Email {
		t.Errorf("Expected renewed token for the same user, got %+v, %v", claims, err)
	}

	resp, _ = f.handler.Refresh(ctx, events.APIGatewayProxyRequest{
		Headers: map[string]string{"Cookie": "refresh_token=" + access},
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 when an access token is used to refresh, got %d", resp.StatusCode)
	}

	resp, _ = f.handler.Logout(ctx, events.APIGatewayProxyRequest{})
	cookies := setCookies(t, resp)
	if resp.StatusCode != http.StatusOK || cookies[AccessCookie] == nil || cookies[AccessCookie].MaxAge >= 0 {
		t.Errorf("Expected cleared cookies, got %v", resp.MultiValueHeaders)
	}
}
