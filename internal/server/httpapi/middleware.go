package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/eidolon-labs/notesync/internal/server/auth"
)

type ctxKey string

const userIDKey ctxKey = "userID"

// requireAuth parses a Bearer access token off the Authorization header
// and stashes the resolved user ID in the request context, the HTTP
// counterpart to the teacher's gRPC accessTokenInterceptor.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		userID, err := auth.GetUserIDFromToken(token, s.jwtSecret)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}
