package httpapi

import (
	"net/http"
	"strings"

	"saylau.org/internal/auth"
)

// publicPath reports whether the route is reachable without a session token.
func publicPath(path string) bool {
	switch path {
	case "/", "/healthz", "/readyz", "/metrics",
		"/auth/login",
		"/elections", "/positions", "/candidates", "/parties",
		"/results", "/results-sse", "/site-settings":
		return true
	}
	return false
}

// withAuth enforces bearer authentication on everything non-public and the
// admin role on /admin/*.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := bearerClaims(r)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		uid, err := claims.UserID()
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		if strings.HasPrefix(r.URL.Path, "/admin/") && claims.Role != auth.RoleAdmin {
			writeError(w, r, http.StatusForbidden, "admin access required")
			return
		}

		ctx := auth.ContextWithUser(r.Context(), uid, claims.StudentID, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerClaims(r *http.Request) (*auth.Claims, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return nil, auth.ErrInvalidToken
	}
	return auth.ParseAndValidate(strings.TrimSpace(strings.TrimPrefix(header, prefix)))
}
