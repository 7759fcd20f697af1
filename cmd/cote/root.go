package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/jun/cote/internal/config"
	"github.com/jun/cote/internal/drive"
	"github.com/jun/cote/internal/logging"
	"github.com/jun/cote/internal/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app is the state shared by every subcommand.
type app struct {
	configPath string
	cfg        config.Client
	logger     *zap.Logger

	jar      *session.FileJar
	http     *http.Client
	session  *session.Session
	location *url.URL
	client   *session.Client
	drive    *drive.Client
}

func newRootCmd() *cobra.Command {
	a := &app{location: &url.URL{Path: "/"}}

	cmd := &cobra.Command{
		Use:          "cote",
		Short:        "Edit Google Drive files from the terminal",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Edit a scratch buffer without Drive
  cote open --local

  # Open the file Drive handed to the editor
  cote open --url 'https://cote.rhamzthev.com/file?state=...'

  # Sign in, check the session, sign out
  cote login
  cote status
  cote logout
`),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultPath(), "path to the YAML config file")

	cmd.AddCommand(
		newOpenCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newStatusCmd(a),
		newLangCmd(a),
	)
	return cmd
}

func (a *app) setup() error {
	cfg, err := config.LoadClient(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.New(logging.Options{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
		OutputPath:  cfg.LogFile,
	})
	if err != nil {
		return err
	}
	a.logger = logger

	if cfg.CookieFile != "" {
		jar, err := session.NewFileJar(cfg.CookieFile, cfg.APIURL)
		if err != nil {
			return fmt.Errorf("load cookies: %w", err)
		}
		a.jar = jar
		a.http = &http.Client{Jar: jar}
	} else {
		a.http = &http.Client{}
	}

	a.session = session.New()
	a.client = session.NewClient(cfg.APIURL, a.session,
		session.WithHTTPClient(a.http),
		session.WithLogger(logger.Named("session")),
		session.WithNavigator(newNavigator(cfg.APIURL, a.http, logger.Named("navigator"))),
		session.WithLocation(func() *url.URL { return a.location }),
	)
	a.drive = drive.NewClient(a.client, logger.Named("drive"))
	return nil
}

// jarErr reports a failure to persist cookies, which would otherwise only
// show up on the next run.
func (a *app) jarErr() error {
	if a.jar == nil {
		return nil
	}
	if err := a.jar.Err(); err != nil {
		return fmt.Errorf("save cookies: %w", err)
	}
	return nil
}
