//nolint:testpackage // Shares request fixtures with the rate limiter tests
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pitabwire/frame/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAuthenticator struct {
	validToken string
	tokens     []string
}

func (s *stubAuthenticator) Authenticate(
	ctx context.Context,
	token string,
	_ ...security.AuthOption,
) (context.Context, error) {
	s.tokens = append(s.tokens, token)
	if token != s.validToken {
		return ctx, errors.New("token rejected")
	}
	return ctx, nil
}

func TestAuthenticator_RejectsMissingOrMalformedHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{name: "missing"},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz"},
		{name: "no token", header: "Bearer "},
		{name: "scheme only", header: "Bearer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubAuthenticator{validToken: "good"}
			h := NewAuthenticator(stub).Middleware(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
				t.Error("handler should not be called")
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/assessments", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			require.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, `Bearer realm="release-gatekeeper"`, w.Header().Get("WWW-Authenticate"))
			assert.Empty(t, stub.tokens)

			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "unauthorized", body["error"])
		})
	}
}

func TestAuthenticator_InvalidToken(t *testing.T) {
	stub := &stubAuthenticator{validToken: "good"}
	h := NewAuthenticator(stub).Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/assessments", nil)
	req.Header.Set("Authorization", "Bearer bad")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, []string{"bad"}, stub.tokens)
}

func TestAuthenticator_ValidToken(t *testing.T) {
	stub := &stubAuthenticator{validToken: "good"}
	h := NewAuthenticator(stub).Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/assessments", nil)
	req.Header.Set("Authorization", "bearer good")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthenticator_ExemptPaths(t *testing.T) {
	stub := &stubAuthenticator{validToken: "good"}
	h := NewAuthenticator(stub, "/health").Middleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, stub.tokens)
}

func TestSubject_Unauthenticated(t *testing.T) {
	assert.Empty(t, Subject(context.Background()))
}
