package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"jokernotes/internal/auth"
	"jokernotes/internal/domain/models"
	"jokernotes/internal/httputil"
)

// Auth resolves the caller from a bearer token. Requests without an
// Authorization header continue anonymously; a header that does not carry
// a valid token is rejected with 401.
func Auth(verifier auth.JWTVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				httputil.RespondError(w, http.StatusUnauthorized, "malformed authorization header")
				return
			}

			claims, err := verifier.VerifyToken(strings.TrimSpace(token))
			if err != nil {
				logger.Debug("token verification failed", "path", r.URL.Path, "error", err)
				httputil.RespondError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, httputil.WithIdentity(r, models.NewIdentity(claims.GetUserID())))
		})
	}
}
