package app

import (
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"
)

// ServeHTTP adapts net/http to HandleRequest for the local server and tests.
func (app *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	req := events.APIGatewayProxyRequest{
		Path:                  r.URL.EscapedPath(),
		HTTPMethod:            r.Method,
		Headers:               make(map[string]string, len(r.Header)),
		QueryStringParameters: make(map[string]string),
		Body:                  string(body),
	}
	for k, v := range r.Header {
		sep := ", "
		if k == "Cookie" {
			sep = "; "
		}
		req.Headers[k] = strings.Join(v, sep)
	}
	for k, v := range r.URL.Query() {
		req.QueryStringParameters[k] = v[0]
	}

	resp, err := app.HandleRequest(r.Context(), req)
	if err != nil {
		app.logger.Error("request failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	for k, vs := range resp.MultiValueHeaders {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.WriteString(w, resp.Body)
}
