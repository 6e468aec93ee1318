package middleware

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"fedbox/pkg/auth"
	"fedbox/pkg/common"
)

// BearerAuth authenticates client-to-server requests carrying a
// bearer token issued by the token endpoint. Requests without one
// pass through unauthenticated; authorization decides later what an
// anonymous reader may see.
func BearerAuth(tokens *auth.TokenIssuer, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				next.ServeHTTP(w, r)
				return
			}

			actorIRI, err := tokens.Validate(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				logger.Debug("bearer token rejected", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			ctx := common.WithActor(r.Context(), actorIRI, true)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
