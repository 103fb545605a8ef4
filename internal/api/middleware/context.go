package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const userIDKey contextKey = "user_id"

// UserIDHeader carries the id of the user who owns an uploaded recording.
// It is set by the gateway in front of this service.
const UserIDHeader = "X-User-ID"

// AnonymousUser is recorded as owner when no user header is present.
const AnonymousUser = "anonymous"

func SetUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

func GetUserID(r *http.Request) (string, bool) {
	id, ok := r.Context().Value(userIDKey).(string)
	return id, ok
}

// Owner copies the user header into the request context.
func Owner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if id == "" {
			id = AnonymousUser
		}
		next.ServeHTTP(w, r.WithContext(SetUserID(r.Context(), id)))
	})
}
