package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token types carried in the "typ" claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
	TypeState   = "state"
)

const stateTTL = 10 * time.Minute

// ErrWrongTokenType is returned when a valid token is presented where a
// different kind is expected, e.g. a refresh token as an access token.
var ErrWrongTokenType = errors.New("wrong token type")

// Profile is the signed-in user as reported by the status endpoint.
type Profile struct {
	ID      string `json:"sub"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

// Claims are the JWT claims of every token the server issues.
type Claims struct {
	Type      string `json:"typ"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	Picture   string `json:"picture,omitempty"`
	ReturnURL string `json:"returnUrl,omitempty"`
	jwt.RegisteredClaims
}

// Profile returns the user described by c.
func (c *Claims) Profile() Profile {
	return Profile{ID: c.Subject, Name: c.Name, Email: c.Email, Picture: c.Picture}
}

// Issuer signs and verifies HS256 tokens.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewIssuer(secret string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

func (i *Issuer) AccessTTL() time.Duration  { return i.accessTTL }
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

// IssueAccess signs a short-lived access token for p.
func (i *Issuer) IssueAccess(p Profile) (string, error) {
	return i.sign(i.profileClaims(TypeAccess, p, i.accessTTL))
}

// IssueRefresh signs a long-lived refresh token for p with a unique ID.
func (i *Issuer) IssueRefresh(p Profile) (string, error) {
	c := i.profileClaims(TypeRefresh, p, i.refreshTTL)
	c.ID = uuid.NewString()
	return i.sign(c)
}

// IssueState signs the OAuth state parameter, binding the return path to
// this server.
func (i *Issuer) IssueState(returnURL string) (string, error) {
	now := i.now()
	return i.sign(&Claims{
		Type:      TypeState,
		ReturnURL: returnURL,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
		},
	})
}

func (i *Issuer) ParseAccess(token string) (*Claims, error)  { return i.parse(token, TypeAccess) }
func (i *Issuer) ParseRefresh(token string) (*Claims, error) { return i.parse(token, TypeRefresh) }
func (i *Issuer) ParseState(token string) (*Claims, error)   { return i.parse(token, TypeState) }

func (i *Issuer) profileClaims(typ string, p Profile, ttl time.Duration) *Claims {
	now := i.now()
	return &Claims{
		Type:    typ,
		Name:    p.Name,
		Email:   p.Email,
		Picture: p.Picture,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func (i *Issuer) sign(c *Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (i *Issuer) parse(token, typ string) (*Claims, error) {
	var c Claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if c.Type != typ {
		return nil, ErrWrongTokenType
	}
	if typ != TypeState && c.Subject == "" {
		return nil, fmt.Errorf("invalid token claims")
	}
	return &c, nil
}
