package main

import (
	"errors"
	"fmt"

	"github.com/jun/cote/internal/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var errNotSignedIn = errors.New("not signed in")

func newLoginCmd(a *app) *cobra.Command {
	var hint string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with Google",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a.client.InitiateAuth(ctx, session.AuthOptions{LoginHint: hint})
			a.client.CheckStatus(ctx)
			if !a.session.Authorized() {
				fmt.Fprintln(cmd.OutOrStdout(), "Finish signing in, then run `cote status`.")
				return a.jarErr()
			}
			printUser(cmd, a.session.Snapshot())
			return a.jarErr()
		},
	}
	cmd.Flags().StringVar(&hint, "login-hint", "", "account to preselect on the consent page")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the session cookies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client.Logout(cmd.Context()); err != nil {
				// Local state is cleared regardless.
				a.logger.Warn("logout failed", zap.Error(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return a.jarErr()
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the session is signed in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.client.CheckStatus(cmd.Context())
			st := a.session.Snapshot()
			if !st.Authorized {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
				return errNotSignedIn
			}
			printUser(cmd, st)
			return a.jarErr()
		},
	}
}

func printUser(cmd *cobra.Command, st session.State) {
	out := cmd.OutOrStdout()
	if st.User == nil {
		fmt.Fprintln(out, "Signed in.")
		return
	}
	fmt.Fprintf(out, "Signed in as %s <%s>\n", st.User.Name, st.User.Email)
}
