package session

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/net/publicsuffix"
)

type storedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// FileJar is a cookie jar that mirrors the API's cookies to a file so a
// terminal session survives restarts. Only cookies visible at the API base
// URL are persisted.
type FileJar struct {
	jar  *cookiejar.Jar
	path string
	base *url.URL

	mu      sync.Mutex
	saveErr error
}

// NewFileJar loads the jar at path for the API at baseURL. A missing file
// yields an empty jar.
func NewFileJar(path, baseURL string) (*FileJar, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	j := &FileJar{jar: jar, path: path, base: base}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return j, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cookie file: %w", err)
	}

	var stored []storedCookie
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("parse cookie file: %w", err)
	}
	cookies := make([]*http.Cookie, 0, len(stored))
	for _, s := range stored {
		cookies = append(cookies, &http.Cookie{Name: s.Name, Value: s.Value, Path: "/"})
	}
	jar.SetCookies(base, cookies)
	return j, nil
}

// SetCookies implements http.CookieJar and rewrites the file.
func (j *FileJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.jar.SetCookies(u, cookies)

	j.mu.Lock()
	j.saveErr = j.save()
	j.mu.Unlock()
}

// Cookies implements http.CookieJar.
func (j *FileJar) Cookies(u *url.URL) []*http.Cookie {
	return j.jar.Cookies(u)
}

// Err returns the error from the most recent write, if any.
func (j *FileJar) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.saveErr
}

func (j *FileJar) save() error {
	current := j.jar.Cookies(j.base)
	stored := make([]storedCookie, 0, len(current))
	for _, c := range current {
		stored = append(stored, storedCookie{Name: c.Name, Value: c.Value})
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode cookies: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0o700); err != nil {
		return fmt.Errorf("create cookie dir: %w", err)
	}
	if err := os.WriteFile(j.path, data, 0o600); err != nil {
		return fmt.Errorf("write cookie file: %w", err)
	}
	return nil
}
