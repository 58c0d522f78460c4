package apiserver

import (
	"context"
	"net/http"

	"github.com/forgecli/forge-api/pkg/auth"
	"github.com/forgecli/forge-api/pkg/backend"
	"github.com/forgecli/forge-api/pkg/model"
)

type ContextKey string

const UserKey ContextKey = "user"

// apiKeyAuthMiddleware validates the Authorization header against the user
// store and attaches the resolved user to the request context.
func apiKeyAuthMiddleware(b backend.Backend) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := auth.ExtractAPIKey(r.Header.Get("Authorization"))

			user, err := b.VerifyAPIKey(r.Context(), apiKey)
			if err != nil {
				writeError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), UserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func userFromContext(ctx context.Context) model.UserInfo {
	user, _ := ctx.Value(UserKey).(model.UserInfo)
	return user
}
