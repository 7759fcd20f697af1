package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jun/cote/internal/document"
	"github.com/jun/cote/internal/session"
	"github.com/jun/cote/internal/tui"
	"github.com/spf13/cobra"
)

type openOptions struct {
	local        bool
	state        string
	rawURL       string
	name         string
	sameUserOnly bool
}

func newOpenCmd(a *app) *cobra.Command {
	opts := &openOptions{}

	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open a Drive file, or a local scratch buffer, in the editor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := opts.location()
			if err != nil {
				return err
			}
			return runOpen(cmd.Context(), a, loc, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.local, "local", false, "edit without Drive")
	cmd.Flags().StringVar(&opts.state, "state", "", "open request JSON as passed in the state parameter")
	cmd.Flags().StringVar(&opts.rawURL, "url", "", "editor URL carrying the state parameter")
	cmd.Flags().StringVar(&opts.name, "name", document.DefaultName, "initial name of a local buffer")
	cmd.Flags().BoolVar(&opts.sameUserOnly, "same-user", false, "ask to sign in again when the request names another account")
	cmd.MarkFlagsMutuallyExclusive("local", "state", "url")
	return cmd
}

// location is the editor location the open request arrives on.
func (o *openOptions) location() (*url.URL, error) {
	switch {
	case o.rawURL != "":
		u, err := url.Parse(o.rawURL)
		if err != nil {
			return nil, fmt.Errorf("parse --url: %w", err)
		}
		return &url.URL{Path: u.Path, RawQuery: u.RawQuery}, nil
	case o.state != "":
		q := url.Values{}
		q.Set(document.StateParam, o.state)
		return &url.URL{Path: session.FileRoutePrefix, RawQuery: q.Encode()}, nil
	}
	return &url.URL{Path: "/"}, nil
}

func runOpen(ctx context.Context, a *app, loc *url.URL, opts *openOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	changes := tui.NewChanges()
	ctrl := openDocument(ctx, a, loc, opts, changes)
	defer func() {
		ctrl.Close()
		ctrl.Wait()
	}()

	p := tea.NewProgram(tui.NewModel(ctrl, a.client, changes), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run editor: %w", err)
	}

	if snap := ctrl.Snapshot(); snap.Err != nil {
		return snap.Err
	}
	return a.jarErr()
}

// openDocument probes the session and opens the request at loc. The
// session is probed in local mode too so the signed-in user is known.
func openDocument(ctx context.Context, a *app, loc *url.URL, opts *openOptions, changes tui.Changes) *document.Controller {
	a.location = loc

	docOpts := []document.Option{
		document.WithDebounce(a.cfg.Debounce),
		document.WithLogger(a.logger.Named("document")),
		document.WithInitial(opts.name, ""),
	}
	if opts.sameUserOnly {
		docOpts = append(docOpts, document.WithUserPolicy(document.RequireSameUser))
	}
	if changes != nil {
		docOpts = append(docOpts, document.WithOnChange(changes.Notify))
	}

	ctrl := document.New(a.drive, a.session, docOpts...)
	a.client.CheckStatus(ctx)
	ctrl.OpenURL(ctx, loc)
	return ctrl
}
