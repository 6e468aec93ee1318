package middleware

import (
	"bytes"
	"io"
	"net/http"

	"go.uber.org/zap"

	"fedbox/application/services"
	"fedbox/pkg/common"
	"fedbox/pkg/httpsig"
)

const maxSignedBody = 1 << 20

var getHeaders = []string{"(request-target)", "host", "date"}

// SignatureAuth verifies draft-cavage HTTP signatures on inbound
// requests. Requests without a signature pass through untouched;
// requests that carry one must verify, and on success the signing
// key's owner becomes the authenticated request actor.
func SignatureAuth(keys *services.KeyResolverService, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sig, err := httpsig.ParseSignature(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			var body []byte
			if r.Body != nil {
				body, err = io.ReadAll(io.LimitReader(r.Body, maxSignedBody+1))
				if err != nil || len(body) > maxSignedBody {
					common.RespondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
			}

			pub, owner, err := keys.ResolveKey(r.Context(), sig.KeyID, RequestPrefix(r))
			if err != nil {
				logger.Debug("signature key resolution failed",
					zap.String("keyID", sig.KeyID),
					zap.Error(err))
				common.RespondJSON(w, http.StatusUnauthorized, map[string]string{"error": "unknown signing key"})
				return
			}

			expected := httpsig.DefaultHeaders
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				expected = getHeaders
			}
			if err := httpsig.Verify(r, body, sig, pub, expected); err != nil {
				logger.Debug("signature verification failed",
					zap.String("keyID", sig.KeyID),
					zap.Error(err))
				common.RespondJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
				return
			}

			ctx := common.WithActor(r.Context(), owner.Value, true)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestPrefix reconstructs the scheme://host prefix the request was
// addressed to, honoring proxy forwarding headers.
func RequestPrefix(r *http.Request) string {
	scheme := "https"
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	} else if r.TLS == nil {
		scheme = "http"
	}
	return scheme + "://" + r.Host
}
