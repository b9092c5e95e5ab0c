package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pitabwire/frame/security"
	"github.com/pitabwire/util"
)

const (
	authorizationHdr = "Authorization"
	bearerScheme     = "bearer"
	authRealm        = `Bearer realm="release-gatekeeper"`
)

// Authenticator requires a valid bearer token on every request outside the
// exempt paths. The authenticated context is passed down the chain.
type Authenticator struct {
	authenticator security.Authenticator
	exempt        map[string]struct{}
}

// NewAuthenticator wraps a frame authenticator. Requests for exemptPaths
// pass through untouched.
func NewAuthenticator(authenticator security.Authenticator, exemptPaths ...string) *Authenticator {
	a := &Authenticator{
		authenticator: authenticator,
		exempt:        make(map[string]struct{}, len(exemptPaths)),
	}
	for _, p := range exemptPaths {
		a.exempt[p] = struct{}{}
	}
	return a
}

// Middleware rejects requests without a valid bearer token with 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := a.exempt[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		token, ok := bearerToken(r)
		if !ok {
			util.Log(ctx).Debug("request without bearer token", "path", r.URL.Path)
			unauthorized(w, "Expected Authorization: Bearer <token>")
			return
		}

		authCtx, err := a.authenticator.Authenticate(ctx, token)
		if err != nil {
			util.Log(ctx).Debug("token validation failed", "error", err.Error())
			unauthorized(w, "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(authCtx))
	})
}

// Subject returns the authenticated subject of ctx, or "" if there is none.
func Subject(ctx context.Context) string {
	claims := security.ClaimsFromContext(ctx)
	if claims == nil {
		return ""
	}
	subject, _ := claims.GetSubject()
	return subject
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get(authorizationHdr), " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", authRealm)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": message,
	})
}
