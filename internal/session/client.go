package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/singleflight"
)

const (
	statusPath  = "/api/auth/status"
	refreshPath = "/api/auth/refresh"
	logoutPath  = "/api/auth/logout"
	authURLPath = "/auth/google/url"

	// FileRoutePrefix is the editor route whose query string carries the
	// open request and must survive the login round trip.
	FileRoutePrefix = "/file"

	requestIDHeader = "X-Request-ID"
)

// RequestOptions describes one outbound call. Body is kept as bytes so the
// request can be replayed after a refresh.
type RequestOptions struct {
	Method string
	Header http.Header
	Body   []byte
}

// Caller performs credentialed requests against the API.
type Caller interface {
	Call(ctx context.Context, path string, opts RequestOptions) (*http.Response, error)
}

// Navigator performs the full navigation to the provider's consent page.
type Navigator interface {
	Navigate(ctx context.Context, target string) error
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, target string) error

// Navigate calls f.
func (f NavigatorFunc) Navigate(ctx context.Context, target string) error {
	return f(ctx, target)
}

// AuthOptions tune InitiateAuth.
type AuthOptions struct {
	LoginHint string
}

// Client is the sole mediator of credentialed calls. It owns the writes to
// its Session.
type Client struct {
	baseURL   string
	http      *http.Client
	session   *Session
	logger    *zap.Logger
	navigator Navigator
	location  func() *url.URL

	refreshes singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default cookie-jar backed client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithNavigator sets where InitiateAuth sends the consent URL.
func WithNavigator(n Navigator) Option {
	return func(c *Client) { c.navigator = n }
}

// WithLocation sets the source of the current location used to compute the
// post-login return path.
func WithLocation(fn func() *url.URL) Option {
	return func(c *Client) { c.location = fn }
}

// NewClient creates a Client for the API at baseURL writing to sess.
func NewClient(baseURL string, sess *Session, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		session:  sess,
		logger:   zap.NewNop(),
		location: func() *url.URL { return &url.URL{Path: "/"} },
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		c.http = &http.Client{Jar: jar}
	}
	if c.navigator == nil {
		c.navigator = NavigatorFunc(func(_ context.Context, target string) error {
			c.logger.Info("open this URL to sign in", zap.String("url", target))
			return nil
		})
	}
	return c
}

// Session returns the session this client writes to.
func (c *Client) Session() *Session {
	return c.session
}

// CheckStatus probes the session and loads the user profile. Failures are
// reflected in the session state only.
func (c *Client) CheckStatus(ctx context.Context) {
	resp, err := c.Call(ctx, statusPath, RequestOptions{Method: http.MethodGet})
	if err != nil {
		c.logger.Error("failed to check auth status", zap.Error(err))
		c.session.clear()
		return
	}
	defer resp.Body.Close()

	if !ok(resp) {
		c.session.clear()
		return
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil || user.ID == "" {
		c.session.setAuthorized(nil, false)
		return
	}
	c.session.setAuthorized(&user, false)
}

// Call performs a credentialed request to path. A 401 triggers exactly one
// Refresh followed by exactly one retry, whatever the refresh outcome; the
// retried response is returned as is. Transport errors are returned.
func (c *Client) Call(ctx context.Context, path string, opts RequestOptions) (*http.Response, error) {
	resp, err := c.do(ctx, path, opts)
	if err != nil {
		c.logger.Error("API call failed", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	drain(resp)

	c.Refresh(ctx)

	resp, err = c.do(ctx, path, opts)
	if err != nil {
		c.logger.Error("API call failed after refresh", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	return resp, nil
}

// Refresh renews the session. Concurrent callers share one request, which
// is not cancelled with the caller that started it.
func (c *Client) Refresh(ctx context.Context) {
	shared := context.WithoutCancel(ctx)
	c.refreshes.Do("refresh", func() (any, error) {
		c.refresh(shared)
		return nil, nil
	})
}

func (c *Client) refresh(ctx context.Context) {
	header := http.Header{}
	header.Set("Content-Type", "application/json")

	resp, err := c.do(ctx, refreshPath, RequestOptions{Method: http.MethodPost, Header: header})
	if err != nil {
		c.logger.Error("failed to refresh token", zap.Error(err))
		c.session.clear()
		return
	}
	drain(resp)

	if !ok(resp) {
		c.logger.Warn("failed to refresh token", zap.Int("status", resp.StatusCode))
		c.session.clear()
		return
	}
	c.session.setAuthorized(nil, true)
}

// InitiateAuth asks the API for the provider's consent URL and navigates to
// it. The current location is passed as the return path; on the file route
// its query string is kept so the open request survives the round trip.
func (c *Client) InitiateAuth(ctx context.Context, opts AuthOptions) {
	q := url.Values{}
	q.Set("returnUrl", ReturnPath(c.location()))
	if opts.LoginHint != "" {
		q.Set("login_hint", opts.LoginHint)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+authURLPath+"?"+q.Encode(), nil)
	if err != nil {
		c.logger.Error("failed to initiate auth", zap.Error(err))
		return
	}
	req.Header.Set(requestIDHeader, uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("failed to initiate auth", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	var data struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		c.logger.Error("failed to initiate auth", zap.Error(fmt.Errorf("decode auth url: %w", err)))
		return
	}
	if data.URL == "" {
		c.logger.Error("failed to initiate auth", zap.Int("status", resp.StatusCode))
		return
	}
	if err := c.navigator.Navigate(ctx, data.URL); err != nil {
		c.logger.Error("failed to navigate to auth url", zap.Error(err))
	}
}

// Logout ends the session remotely and always clears the local state, even
// when the remote call fails.
func (c *Client) Logout(ctx context.Context) error {
	defer c.session.clear()

	resp, err := c.Call(ctx, logoutPath, RequestOptions{Method: http.MethodPost})
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	drain(resp)
	if !ok(resp) {
		return fmt.Errorf("logout: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// ReturnPath computes the post-login return path for loc.
func ReturnPath(loc *url.URL) string {
	if loc == nil || loc.Path == "" {
		return "/"
	}
	onFileRoute := loc.Path == FileRoutePrefix || strings.HasPrefix(loc.Path, FileRoutePrefix+"/")
	if onFileRoute && loc.RawQuery != "" {
		return loc.Path + "?" + loc.RawQuery
	}
	return loc.Path
}

func (c *Client) do(ctx context.Context, path string, opts RequestOptions) (*http.Response, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if opts.Body != nil {
		body = bytes.NewReader(opts.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set(requestIDHeader, uuid.NewString())

	return c.http.Do(req)
}

func ok(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
