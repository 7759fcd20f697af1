// Package app wires the contract server and routes API Gateway requests.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	oauth2api "google.golang.org/api/oauth2/v2"

	"github.com/jun/cote/internal/adapter"
	"github.com/jun/cote/internal/adapter/googledrive"
	"github.com/jun/cote/internal/adapter/memory"
	"github.com/jun/cote/internal/auth"
	"github.com/jun/cote/internal/config"
	"github.com/jun/cote/internal/crypto"
	"github.com/jun/cote/internal/handler"
	"github.com/jun/cote/internal/secret"
)

const (
	originHeader = "X-Origin-Verify"
	filesPrefix  = "/drive/files/"

	devJWTSecret = "default-dev-secret"
)

// Deps are the collaborators of an App.
type Deps struct {
	Config       config.Server
	Auth         *auth.AuthService
	Issuer       *auth.Issuer
	Storage      adapter.StorageProvider
	OriginSecret string
	Logger       *zap.Logger
	// Profiles replaces the Google userinfo lookup in the OAuth callback.
	Profiles handler.ProfileFetcher
}

// App holds the dependencies for the Lambda function.
type App struct {
	authHandler  *handler.AuthHandler
	fileHandler  *handler.FileHandler
	originSecret string
	frontendURL  string
	devMode      bool
	devLogin     bool
	logger       *zap.Logger
}

// New assembles an App from ready collaborators.
func New(d Deps) *App {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := d.Config
	return &App{
		authHandler: handler.NewAuthHandler(d.Auth, d.Issuer, d.Storage, handler.AuthOptions{
			DevMode:     cfg.DevMode,
			FrontendURL: cfg.FrontendURL,
			PublicURL:   cfg.PublicURL,
			Logger:      logger.Named("auth"),
			Profiles:    d.Profiles,
		}),
		fileHandler:  handler.NewFileHandler(d.Storage, d.Issuer, logger.Named("files")),
		originSecret: d.OriginSecret,
		frontendURL:  cfg.FrontendURL,
		devMode:      cfg.DevMode,
		devLogin:     cfg.DevMode || cfg.DemoLogin,
		logger:       logger,
	}
}

// NewApp initializes the application dependencies from the AWS environment.
func NewApp(ctx context.Context, cfg config.Server, logger *zap.Logger) (*App, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	var dynamoClient *dynamodb.Client
	if cfg.UseDynamo {
		dynamoClient = dynamodb.NewFromConfig(awsCfg)
	} else {
		logger.Info("using in-memory token and file stores")
	}

	var (
		encryptor crypto.Encryptor
		resolver  secret.Resolver
	)
	if cfg.DevMode {
		encryptor = crypto.NewMockEncryptor()
		resolver = secret.NewEnvResolver()
		logger.Info("using mock encryptor and environment secrets (DEV_MODE=true)")
	} else {
		encryptor = crypto.NewKMSService(kms.NewFromConfig(awsCfg), cfg.KMSKeyID)
		resolver = secret.NewCached(secret.NewSSMResolver(ssm.NewFromConfig(awsCfg)))
	}

	googleSecret, err := resolver.GetSecret(ctx, cfg.GoogleClientSecretParam)
	if err != nil {
		logger.Warn("failed to resolve Google client secret", zap.Error(err))
	}

	jwtSecret, err := resolver.GetSecret(ctx, cfg.JWTSecretParam)
	if err != nil {
		if !cfg.DevMode {
			return nil, fmt.Errorf("resolve JWT secret: %w", err)
		}
		logger.Warn("using default JWT secret", zap.Error(err))
		jwtSecret = devJWTSecret
	}

	originSecret := secret.Optional(ctx, resolver, cfg.OriginSecretParam)
	if originSecret == "" && !cfg.DevMode {
		logger.Warn("origin verification disabled: no API gateway secret")
	}

	oauthConfig := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: googleSecret,
		RedirectURL:  cfg.RedirectURL(),
		Scopes: []string{
			drive.DriveScope,
			oauth2api.UserinfoEmailScope,
			oauth2api.UserinfoProfileScope,
		},
		Endpoint: google.Endpoint,
	}

	authService := auth.NewAuthService(oauthConfig, dynamoClient, cfg.UserTokensTable, encryptor)

	// Google users read and write their Drive; dev users get the local store.
	storage := &adapter.HybridProvider{
		Google: googledrive.NewProvider(authService),
		Local:  memory.NewProvider(dynamoClient, cfg.FileStoreTable),
	}

	return New(Deps{
		Config:       cfg,
		Auth:         authService,
		Issuer:       auth.NewIssuer(jwtSecret, cfg.AccessTTL, cfg.RefreshTTL),
		Storage:      storage,
		OriginSecret: originSecret,
		Logger:       logger,
	}), nil
}

// HandleRequest routes API Gateway requests to the appropriate handler.
func (app *App) HandleRequest(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	method := req.HTTPMethod
	// Strip /api prefix if present (for CloudFront proxying)
	path := strings.TrimPrefix(req.Path, "/api")

	app.logger.Debug("request", zap.String("method", method), zap.String("path", req.Path))

	if method == http.MethodOptions {
		return app.cors(events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}), nil
	}

	// Only CloudFront knows the secret.
	if !app.devMode && app.originSecret != "" && headerValue(req, originHeader) != app.originSecret {
		app.logger.Warn("missing or invalid origin header", zap.String("path", req.Path))
		return app.cors(events.APIGatewayProxyResponse{
			StatusCode: http.StatusForbidden,
			Body:       `{"error":"Forbidden"}`,
			Headers:    map[string]string{"Content-Type": "application/json"},
		}), nil
	}

	return app.cors(app.must(app.route(ctx, method, path, req))), nil
}

func (app *App) route(ctx context.Context, method, path string, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	switch {
	case path == "/auth/google/url" && method == http.MethodGet:
		return app.authHandler.AuthURL(ctx, req)
	case (path == "/auth/google/callback" || path == "/auth/callback") && method == http.MethodGet:
		return app.authHandler.Callback(ctx, req)
	case path == "/auth/dev-login" && method == http.MethodGet && app.devLogin:
		return app.authHandler.DevLogin(ctx, req)
	case path == "/auth/status" && method == http.MethodGet:
		return app.authHandler.Status(ctx, req)
	case path == "/auth/refresh" && method == http.MethodPost:
		return app.authHandler.Refresh(ctx, req)
	case path == "/auth/logout" && method == http.MethodPost:
		return app.authHandler.Logout(ctx, req)
	case strings.HasPrefix(path, filesPrefix):
		return app.routeFile(ctx, method, strings.TrimPrefix(path, filesPrefix), req)
	}
	return notFound(method, path), nil
}

// routeFile serves {id}, {id}/star and {id}/content.
func (app *App) routeFile(ctx context.Context, method, rest string, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	parts := strings.Split(rest, "/")
	id, err := url.PathUnescape(parts[0])
	if err != nil || id == "" || len(parts) > 2 {
		return notFound(method, filesPrefix+rest), nil
	}

	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch {
	case action == "" && method == http.MethodGet:
		return app.fileHandler.GetFile(ctx, req, id)
	case action == "" && method == http.MethodPut:
		return app.fileHandler.UpdateFilename(ctx, req, id)
	case action == "star" && method == http.MethodGet:
		return app.fileHandler.GetStar(ctx, req, id)
	case action == "star" && method == http.MethodPut:
		return app.fileHandler.SetStar(ctx, req, id)
	case action == "content" && method == http.MethodPut:
		return app.fileHandler.UpdateContent(ctx, req, id)
	}
	return notFound(method, filesPrefix+rest), nil
}

// cors adds CORS headers for the frontend origin. Credentials are allowed
// because the session lives in cookies.
func (app *App) cors(resp events.APIGatewayProxyResponse) events.APIGatewayProxyResponse {
	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	resp.Headers["Access-Control-Allow-Origin"] = app.frontendURL
	resp.Headers["Access-Control-Allow-Credentials"] = "true"
	resp.Headers["Access-Control-Allow-Methods"] = "GET,POST,PUT,OPTIONS"
	resp.Headers["Access-Control-Allow-Headers"] = "Content-Type,Authorization,If-Match,X-Request-ID"
	return resp
}

// must unwraps a handler response, logging the error.
func (app *App) must(resp events.APIGatewayProxyResponse, err error) events.APIGatewayProxyResponse {
	if err != nil {
		app.logger.Error("handler error", zap.Error(err))
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusInternalServerError,
			Body:       `{"error":"Internal Server Error"}`,
			Headers:    map[string]string{"Content-Type": "application/json"},
		}
	}
	return resp
}

func notFound(method, path string) events.APIGatewayProxyResponse {
	body, _ := json.Marshal(map[string]string{"error": fmt.Sprintf("Not Found: %s %s", method, path)})
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusNotFound,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

func headerValue(req events.APIGatewayProxyRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
