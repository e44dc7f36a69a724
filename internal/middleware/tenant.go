package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/rtoassure/backend/internal/auth"
)

// TenantMiddleware resolves the tenant scope forwarded by the hosting
// platform after it has verified the bearer token. Token verification itself
// is the platform's job; this only propagates the resolved scope.
func TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := r.Header.Get("X-Rto-Id"); raw != "" {
			if id, err := uuid.Parse(raw); err == nil {
				r = r.WithContext(auth.ContextWithRTOID(r.Context(), id))
			}
		}
		next.ServeHTTP(w, r)
	})
}
