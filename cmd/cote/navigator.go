package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/jun/cote/internal/session"
	"go.uber.org/zap"
)

// navigator follows consent URLs. A URL served by the API itself (the dev
// login) is fetched with the cookie jar so the issued cookies land in the
// terminal session; anything else is printed for the user to open.
type navigator struct {
	api    *url.URL
	http   *http.Client
	logger *zap.Logger
	out    io.Writer
}

func newNavigator(apiURL string, hc *http.Client, logger *zap.Logger) *navigator {
	api, _ := url.Parse(apiURL)
	follow := &http.Client{
		Jar:       hc.Jar,
		Transport: hc.Transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &navigator{api: api, http: follow, logger: logger, out: os.Stderr}
}

func (n *navigator) Navigate(ctx context.Context, target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("parse auth url: %w", err)
	}
	if n.api == nil || u.Host != n.api.Host {
		fmt.Fprintf(n.out, "Open this URL to sign in with Google:\n\n  %s\n\n", target)
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("follow auth url: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("follow auth url: unexpected status %d", resp.StatusCode)
	}
	n.logger.Debug("followed auth url", zap.Int("status", resp.StatusCode))

	// The dev login lands on a seeded file when no return path was given.
	if loc, err := url.Parse(resp.Header.Get("Location")); err == nil && loc.Path == session.FileRoutePrefix {
		fmt.Fprintf(n.out, "Open the sample file with:\n\n  cote open --url '%s'\n\n", loc)
	}
	return nil
}
