package http

import (
	"context"
	"net/http"

	"timed-quiz-service/internal/app"
	"timed-quiz-service/internal/auth"
	"timed-quiz-service/internal/domain"
)

type identityKey struct{}

// requireIdentity resolves the bearer credential once per request and stores
// the identity in the request context. Websocket clients that cannot set
// headers may pass ?token= instead.
func requireIdentity(resolver app.IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := auth.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				token = r.URL.Query().Get("token")
			}
			if token == "" {
				writeError(w, domain.ErrIdentityUnavailable, nil)
				return
			}
			id, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				writeError(w, err, nil)
				return
			}
			ctx := context.WithValue(r.Context(), identityKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func identityFrom(ctx context.Context) domain.Identity {
	id, _ := ctx.Value(identityKey{}).(domain.Identity)
	return id
}
