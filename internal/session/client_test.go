package session

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI is a minimal stand-in for the API. A request is authorized when it
// carries the current access cookie.
type fakeAPI struct {
	mu           sync.Mutex
	access       string
	refreshOK    bool
	refreshCalls atomic.Int32
	dataCalls    atomic.Int32
	logoutStatus int
	// alwaysUnauthorized makes /api/data return 401 even after refresh.
	alwaysUnauthorized bool
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/status", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"sub":"u1","name":"Ada","email":"ada@example.com","picture":"https://example.com/a.png"}`)
	})
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		f.refreshCalls.Add(1)
		if r.Method != http.MethodPost || !f.refreshOK {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.mu.Lock()
		f.access = "fresh"
		f.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "access_token", Value: "fresh", Path: "/"})
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		if f.logoutStatus != 0 {
			w.WriteHeader(f.logoutStatus)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "access_token", Value: "", Path: "/", MaxAge: -1})
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/data", func(w http.ResponseWriter, r *http.Request) {
		f.dataCalls.Add(1)
		if f.alwaysUnauthorized || !f.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"echo":"`+string(body)+`"}`)
	})
	mux.HandleFunc("/auth/google/url", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"url":"https://accounts.example.com/consent?`+r.URL.RawQuery+`"}`)
	})
	return mux
}

func (f *fakeAPI) authorized(r *http.Request) bool {
	c, err := r.Cookie("access_token")
	if err != nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.access != "" && c.Value == f.access
}

func newTestClient(t *testing.T, api *fakeAPI, opts ...Option) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, New(), opts...), srv
}

func TestCall_401RefreshThenRetrySucceeds(t *testing.T) {
	api := &fakeAPI{refreshOK: true}
	c, _ := newTestClient(t, api)

	resp, err := c.Call(context.Background(), "/api/data", RequestOptions{Method: http.MethodPost, Body: []byte("hello")})
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"echo":"hello"}`, string(body), "retried request must replay the body")
	assert.EqualValues(t, 1, api.refreshCalls.Load())
	assert.EqualValues(t, 2, api.dataCalls.Load())
	assert.True(t, c.Session().Authorized())
}

func TestCall_Second401IsReturnedWithoutAnotherRefresh(t *testing.T) {
	api := &fakeAPI{refreshOK: true, alwaysUnauthorized: true}
	c, _ := newTestClient(t, api)

	resp, err := c.Call(context.Background(), "/api/data", RequestOptions{})
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.EqualValues(t, 1, api.refreshCalls.Load())
	assert.EqualValues(t, 2, api.dataCalls.Load())
}

func TestCall_RetriesEvenWhenRefreshFails(t *testing.T) {
	api := &fakeAPI{refreshOK: false}
	c, _ := newTestClient(t, api)

	resp, err := c.Call(context.Background(), "/api/data", RequestOptions{})
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.EqualValues(t, 2, api.dataCalls.Load())
	assert.False(t, c.Session().Authorized())
}

func TestCall_TransportErrorPropagates(t *testing.T) {
	api := &fakeAPI{}
	c, srv := newTestClient(t, api)
	srv.Close()

	_, err := c.Call(context.Background(), "/api/data", RequestOptions{})
	assert.Error(t, err)
}

func TestCheckStatus_LoadsProfile(t *testing.T) {
	api := &fakeAPI{refreshOK: true}
	c, _ := newTestClient(t, api)

	c.CheckStatus(context.Background())

	st := c.Session().Snapshot()
	require.True(t, st.Authorized)
	require.NotNil(t, st.User)
	assert.Equal(t, "u1", st.User.ID)
	assert.Equal(t, "Ada", st.User.Name)
	assert.Equal(t, "https://example.com/a.png", st.User.PictureURL)
}

func TestCheckStatus_FailureClearsState(t *testing.T) {
	api := &fakeAPI{refreshOK: false}
	c, _ := newTestClient(t, api)

	c.CheckStatus(context.Background())

	st := c.Session().Snapshot()
	assert.False(t, st.Authorized)
	assert.Nil(t, st.User)
}

func TestCheckStatus_TransportErrorIsAbsorbed(t *testing.T) {
	api := &fakeAPI{}
	c, srv := newTestClient(t, api)
	srv.Close()

	c.CheckStatus(context.Background())
	assert.False(t, c.Session().Authorized())
}

func TestRefresh_FailureClearsUser(t *testing.T) {
	api := &fakeAPI{refreshOK: true}
	c, _ := newTestClient(t, api)
	c.CheckStatus(context.Background())
	require.NotNil(t, c.Session().Snapshot().User)

	api.refreshOK = false
	c.Refresh(context.Background())

	st := c.Session().Snapshot()
	assert.False(t, st.Authorized)
	assert.Nil(t, st.User)
}

func TestRefresh_OutlivesCancelledCaller(t *testing.T) {
	api := &fakeAPI{refreshOK: true}
	c, _ := newTestClient(t, api)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Refresh(ctx)

	assert.Equal(t, int32(1), api.refreshCalls.Load())
	assert.True(t, c.Session().Authorized(), "a cancelled caller must not sign everyone out")
}

func TestLogout_ClearsStateEvenOnFailure(t *testing.T) {
	api := &fakeAPI{refreshOK: true, logoutStatus: http.StatusInternalServerError}
	c, _ := newTestClient(t, api)
	c.CheckStatus(context.Background())
	require.True(t, c.Session().Authorized())

	err := c.Logout(context.Background())
	assert.Error(t, err)
	assert.False(t, c.Session().Authorized())
	assert.Nil(t, c.Session().Snapshot().User)
}

func TestInitiateAuth_PreservesQueryOnFileRoute(t *testing.T) {
	var navigated string
	api := &fakeAPI{}
	loc, _ := url.Parse(`/file/f/abc?state={"ids":["abc"],"action":"open"}`)
	c, _ := newTestClient(t, api,
		WithLocation(func() *url.URL { return loc }),
		WithNavigator(NavigatorFunc(func(_ context.Context, target string) error {
			navigated = target
			return nil
		})),
	)

	c.InitiateAuth(context.Background(), AuthOptions{LoginHint: "ada@example.com"})

	require.NotEmpty(t, navigated)
	u, err := url.Parse(navigated)
	require.NoError(t, err)
	assert.Equal(t, "/file/f/abc?"+loc.RawQuery, u.Query().Get("returnUrl"))
	assert.Equal(t, "ada@example.com", u.Query().Get("login_hint"))
}

func TestReturnPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "/"},
		{"/", "/"},
		{"/?x=1", "/"},
		{"/file?state=s", "/file?state=s"},
		{"/file/f/1?state=s", "/file/f/1?state=s"},
		{"/filer?state=s", "/filer"},
		{"/file/f/1", "/file/f/1"},
	}
	for _, tc := range tests {
		u, _ := url.Parse(tc.in)
		assert.Equal(t, tc.want, ReturnPath(u), "ReturnPath(%q)", tc.in)
	}
}

func TestSession_SubscribeAndUserImpliesAuthorized(t *testing.T) {
	s := New()
	var got []State
	cancel := s.Subscribe(func(st State) { got = append(got, st) })

	s.setAuthorized(&User{ID: "u1"}, false)
	s.clear()
	cancel()
	s.setAuthorized(nil, false)

	require.Len(t, got, 2)
	assert.True(t, got[0].Authorized)
	assert.Equal(t, "u1", got[0].User.ID)
	assert.False(t, got[1].Authorized)
	assert.Nil(t, got[1].User)
}

func TestFileJar_PersistsAcrossInstances(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/set" {
			http.SetCookie(w, &http.Cookie{Name: "access_token", Value: "abc", Path: "/"})
			return
		}
		c, err := r.Cookie("access_token")
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, c.Value)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "cote", "cookies.json")

	jar, err := NewFileJar(path, srv.URL)
	require.NoError(t, err)
	resp, err := (&http.Client{Jar: jar}).Get(srv.URL + "/set")
	require.NoError(t, err)
	resp.Body.Close()
	require.NoError(t, jar.Err())

	reloaded, err := NewFileJar(path, srv.URL)
	require.NoError(t, err)
	resp, err = (&http.Client{Jar: reloaded}).Get(srv.URL + "/get")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "abc", string(body))
}
