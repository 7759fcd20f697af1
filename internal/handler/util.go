// Package handler implements the API Gateway handlers of the contract server.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/jun/cote/internal/auth"
)

const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"
)

var errNoToken = errors.New("no authorization token found")

// CookiePolicy decides the attributes of the session cookies.
type CookiePolicy struct {
	// DevMode drops Secure so the cookies survive plain http on localhost.
	DevMode bool
}

// Set renders a Set-Cookie value.
func (p CookiePolicy) Set(name, value string, maxAge time.Duration) string {
	sameSite := "None"
	if p.DevMode {
		sameSite = "Lax"
	}
	cookie := fmt.Sprintf("%s=%s; HttpOnly; Path=/; Max-Age=%d; SameSite=%s", name, value, int(maxAge.Seconds()), sameSite)
	if !p.DevMode {
		cookie += "; Secure"
	}
	return cookie
}

// Clear renders a Set-Cookie value that deletes name.
func (p CookiePolicy) Clear(name string) string {
	return p.Set(name, "", 0)
}

// header looks up a header case-insensitively.
func header(req events.APIGatewayProxyRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	for k, vs := range req.MultiValueHeaders {
		if strings.EqualFold(k, name) && len(vs) > 0 {
			return strings.Join(vs, "; ")
		}
	}
	return ""
}

// cookie returns the value of the named request cookie.
func cookie(req events.APIGatewayProxyRequest, name string) string {
	line := header(req, "Cookie")
	if line == "" {
		return ""
	}
	cookies, err := http.ParseCookie(line)
	if err != nil {
		// Fall back to a lenient scan when another cookie is malformed.
		for _, part := range strings.Split(line, ";") {
			if v, ok := strings.CutPrefix(strings.TrimSpace(part), name+"="); ok {
				return v
			}
		}
		return ""
	}
	for _, c := range cookies {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// Authenticate returns the claims of the access token carried in the
// Authorization header or the access cookie.
func Authenticate(req events.APIGatewayProxyRequest, issuer *auth.Issuer) (*auth.Claims, error) {
	token := ""
	if h := header(req, "Authorization"); strings.HasPrefix(h, "Bearer ") {
		token = strings.TrimPrefix(h, "Bearer ")
	}
	if token == "" {
		token = cookie(req, AccessCookie)
	}
	if token == "" {
		return nil, errNoToken
	}
	return issuer.ParseAccess(token)
}

func jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		return errorResponse(http.StatusInternalServerError, "Internal Server Error")
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

func errorResponse(status int, msg string) events.APIGatewayProxyResponse {
	return jsonResponse(status, map[string]string{"error": msg})
}

func unauthorized() events.APIGatewayProxyResponse {
	return errorResponse(http.StatusUnauthorized, "Unauthorized")
}

func redirect(location string, cookies ...string) events.APIGatewayProxyResponse {
	resp := events.APIGatewayProxyResponse{
		StatusCode: http.StatusFound,
		Headers: map[string]string{
			"Location": location,
		},
	}
	if len(cookies) > 0 {
		resp.MultiValueHeaders = map[string][]string{"Set-Cookie": cookies}
	}
	return resp
}

// SafeReturnPath keeps only same-site absolute paths.
func SafeReturnPath(p string) string {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.Contains(p, "\\") {
		return "/"
	}
	return p
}
