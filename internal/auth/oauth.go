// Package auth manages Google sign-in and the JWT session cookies of the
// contract server.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jun/cote/internal/crypto"
	"golang.org/x/oauth2"
)

// ErrUserNotFound is returned when no token is stored for a user.
var ErrUserNotFound = errors.New("user not found")

// UserToken is the stored Google credential and profile of a user.
type UserToken struct {
	UserID                string    `json:"user_id" dynamodbav:"user_id"`
	EncryptedRefreshToken string    `json:"encrypted_refresh_token" dynamodbav:"encrypted_refresh_token"`
	Name                  string    `json:"name" dynamodbav:"name"`
	Email                 string    `json:"email" dynamodbav:"email"`
	Picture               string    `json:"picture" dynamodbav:"picture"`
	UpdatedAt             time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

// AuthService handles OAuth2 authentication flows and token management.
type AuthService struct {
	oauthConfig  *oauth2.Config
	dynamoClient *dynamodb.Client
	tableName    string
	encryptor    crypto.Encryptor

	// In-memory fallback
	tokens map[string]UserToken
	mu     sync.RWMutex
}

// NewAuthService creates a new AuthService. With a nil dynamoClient tokens
// are kept in memory.
func NewAuthService(oauthConfig *oauth2.Config, dynamoClient *dynamodb.Client, tableName string, encryptor crypto.Encryptor) *AuthService {
	return &AuthService{
		oauthConfig:  oauthConfig,
		dynamoClient: dynamoClient,
		tableName:    tableName,
		encryptor:    encryptor,
		tokens:       make(map[string]UserToken),
	}
}

// Config returns the OAuth2 config.
func (s *AuthService) Config() *oauth2.Config {
	return s.oauthConfig
}

// GenerateAuthURL returns the Google consent URL. A non-empty loginHint
// preselects the account.
func (s *AuthService) GenerateAuthURL(state, loginHint string) string {
	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOffline, oauth2.ApprovalForce}
	if loginHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("login_hint", loginHint))
	}
	return s.oauthConfig.AuthCodeURL(state, opts...)
}

// ExchangeCode exchanges the authorization code for an access token.
func (s *AuthService) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return s.oauthConfig.Exchange(ctx, code)
}

// SaveToken encrypts the refresh token and stores it with the profile.
// Google omits the refresh token on repeat consent; the stored one is kept
// in that case.
func (s *AuthService) SaveToken(ctx context.Context, profile Profile, token *oauth2.Token) error {
	userToken := UserToken{
		UserID:    profile.ID,
		Name:      profile.Name,
		Email:     profile.Email,
		Picture:   profile.Picture,
		UpdatedAt: time.Now(),
	}

	if token.RefreshToken != "" {
		encrypted, err := s.encryptor.Encrypt(ctx, token.RefreshToken)
		if err != nil {
			return fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
		userToken.EncryptedRefreshToken = encrypted
	} else {
		existing, err := s.GetUserToken(ctx, profile.ID)
		if err != nil {
			return fmt.Errorf("no refresh token in response")
		}
		userToken.EncryptedRefreshToken = existing.EncryptedRefreshToken
	}

	if s.dynamoClient == nil {
		s.mu.Lock()
		s.tokens[profile.ID] = userToken
		s.mu.Unlock()
		return nil
	}

	item, err := attributevalue.MarshalMap(userToken)
	if err != nil {
		return fmt.Errorf("failed to marshal user token: %w", err)
	}
	_, err = s.dynamoClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to save token to DynamoDB: %w", err)
	}
	return nil
}

// GetUserToken retrieves the stored token of a user.
func (s *AuthService) GetUserToken(ctx context.Context, userID string) (*UserToken, error) {
	if s.dynamoClient == nil {
		s.mu.RLock()
		t, ok := s.tokens[userID]
		s.mu.RUnlock()
		if !ok {
			return nil, ErrUserNotFound
		}
		return &t, nil
	}

	out, err := s.dynamoClient.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item from DynamoDB: %w", err)
	}
	if out.Item == nil {
		return nil, ErrUserNotFound
	}

	var userToken UserToken
	if err := attributevalue.UnmarshalMap(out.Item, &userToken); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user token: %w", err)
	}
	return &userToken, nil
}

// GetClient returns an http.Client that calls Google APIs as the user.
func (s *AuthService) GetClient(ctx context.Context, userID string) (*http.Client, error) {
	userToken, err := s.GetUserToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.encryptor.Decrypt(ctx, userToken.EncryptedRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	// An expired token forces the source to refresh on first use.
	token := &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Now().Add(-1 * time.Hour),
	}
	return oauth2.NewClient(ctx, s.oauthConfig.TokenSource(ctx, token)), nil
}
