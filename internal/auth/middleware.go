package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey struct{}

// Principal is the authenticated caller of a request.
type Principal struct {
	Subject string `json:"subject"`
}

// ContextWithPrincipal stores p on ctx.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}

// Middleware authenticates Bearer tokens. Requests without an Authorization
// header, or with another scheme, pass through anonymously. Malformed or
// invalid Bearer tokens are rejected with 401.
func Middleware(tokens *TokenService, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		scheme, token, _ := strings.Cut(header, " ")
		if !strings.EqualFold(scheme, "Bearer") {
			next.ServeHTTP(w, r)
			return
		}
		if strings.TrimSpace(token) == "" {
			unauthorized(w, "Authorization header must contain two space-delimited values")
			return
		}

		claims, err := tokens.Parse(strings.TrimSpace(token))
		if err != nil {
			unauthorized(w, "Given token not valid for any token type")
			return
		}

		ctx := ContextWithPrincipal(r.Context(), Principal{Subject: claims.Subject})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuthenticated rejects anonymous requests with 401.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFromContext(r.Context()); !ok {
			unauthorized(w, "Authentication credentials were not provided")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter, details string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "Unauthorized",
		"details": details,
	})
}
