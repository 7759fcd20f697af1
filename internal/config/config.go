// Package config loads client and server settings from the environment and,
// for the client, an optional YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	developmentAPIURL = "http://localhost:8080"
	developmentWSURL  = "ws://localhost:8080"
	productionAPIURL  = "https://api.cote.rhamzthev.com"
	productionWSURL   = "wss://api.cote.rhamzthev.com"

	// DefaultDebounce is the autosave quiet period.
	DefaultDebounce = 3 * time.Second

	// MaxContentSize is the largest body the client will submit.
	MaxContentSize = 10 * 1024 * 1024
)

// Client holds settings for the editor client.
type Client struct {
	Env        string        `yaml:"env"`
	APIURL     string        `yaml:"api_url"`
	WSURL      string        `yaml:"ws_url"`
	Debounce   time.Duration `yaml:"debounce"`
	CookieFile string        `yaml:"cookie_file"`
	LogLevel   string        `yaml:"log_level"`
	LogFile    string        `yaml:"log_file"`
}

// IsDevelopment reports whether the client targets the local contract server.
func (c Client) IsDevelopment() bool {
	return c.Env == "development"
}

// DefaultClient returns the client settings for env.
func DefaultClient(env string) Client {
	c := Client{
		Env:        env,
		APIURL:     productionAPIURL,
		WSURL:      productionWSURL,
		Debounce:   DefaultDebounce,
		CookieFile: defaultCookieFile(),
		LogLevel:   "info",
	}
	if env == "development" {
		c.APIURL = developmentAPIURL
		c.WSURL = developmentWSURL
	}
	return c
}

// LoadClient builds the client configuration. Precedence, lowest first:
// defaults for COTE_ENV, the YAML file at path (if non-empty and present),
// then COTE_* environment variables.
func LoadClient(path string) (Client, error) {
	env := getenv("COTE_ENV", "production")
	cfg := DefaultClient(env)

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Client{}, fmt.Errorf("parse config %s: %w", path, err)
			}
			// A file that only sets env: development still gets local URLs.
			if cfg.IsDevelopment() && cfg.APIURL == productionAPIURL {
				cfg.APIURL, cfg.WSURL = developmentAPIURL, developmentWSURL
			}
		case !os.IsNotExist(err):
			return Client{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.APIURL = strings.TrimRight(getenv("COTE_API_URL", cfg.APIURL), "/")
	cfg.WSURL = strings.TrimRight(getenv("COTE_WS_URL", cfg.WSURL), "/")
	cfg.Debounce = getenvDuration("COTE_DEBOUNCE", cfg.Debounce)
	cfg.CookieFile = getenv("COTE_COOKIE_FILE", cfg.CookieFile)
	cfg.LogLevel = getenv("COTE_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getenv("COTE_LOG_FILE", cfg.LogFile)

	if cfg.Debounce <= 0 {
		return Client{}, fmt.Errorf("debounce must be positive, got %s", cfg.Debounce)
	}
	return cfg, nil
}

// DefaultPath returns the default location of the client YAML file.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "cote", "config.yaml")
}

func defaultCookieFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "cote", "cookies.json")
}

// Server holds settings for the contract server. DemoLogin exposes
// /auth/dev-login outside DevMode; UseDynamo stores tokens and dev files in
// DynamoDB instead of memory.
type Server struct {
	DevMode     bool
	DemoLogin   bool
	UseDynamo   bool
	Addr        string
	FrontendURL string
	PublicURL   string

	GoogleClientID          string
	GoogleClientSecretParam string
	JWTSecretParam          string
	OriginSecretParam       string
	KMSKeyID                string

	UserTokensTable string
	FileStoreTable  string

	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// LoadServer reads the contract server settings from the environment.
func LoadServer() Server {
	s := Server{
		DevMode:     os.Getenv("DEV_MODE") == "true",
		DemoLogin:   os.Getenv("DEMO_LOGIN") == "true",
		Addr:        getenv("SERVER_ADDR", ":8080"),
		FrontendURL: getenv("FRONTEND_URL", "http://localhost:3000"),

		GoogleClientID:          os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecretParam: getenv("GOOGLE_CLIENT_SECRET_PARAM", "/cote/google-client-secret"),
		JWTSecretParam:          getenv("JWT_SECRET_PARAM", "/cote/jwt-secret"),
		OriginSecretParam:       getenv("API_GATEWAY_SECRET_PARAM", "/cote/api-gateway-secret"),
		KMSKeyID:                getenv("KMS_KEY_ID", "alias/cote-token-key"),

		UserTokensTable: getenv("USER_TOKENS_TABLE", "UserTokens"),
		FileStoreTable:  getenv("FILE_STORE_TABLE", "FileStore"),

		AccessTTL:  time.Duration(getenvInt("ACCESS_TTL_SECONDS", 900)) * time.Second,
		RefreshTTL: time.Duration(getenvInt("REFRESH_TTL_SECONDS", 2592000)) * time.Second,
	}
	s.PublicURL = getenv("PUBLIC_URL", "http://localhost"+s.Addr)
	// Development talks to LocalStack only when an endpoint is configured.
	s.UseDynamo = !s.DevMode || os.Getenv("AWS_ENDPOINT_URL") != ""
	return s
}

// RedirectURL is the OAuth callback registered with Google.
func (s Server) RedirectURL() string {
	if v := os.Getenv("GOOGLE_REDIRECT_URL"); v != "" {
		return v
	}
	return strings.TrimRight(s.PublicURL, "/") + "/auth/google/callback"
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
