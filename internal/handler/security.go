package handler

import (
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// APIKeyHeader carries the raw API key on guarded requests.
const APIKeyHeader = "api_key"

// requireScope guards a route with an API key granting scope. Routes stay
// open when the Handler has no Authenticator.
func (h *Handler) requireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if h.authn == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, err := h.authn.Authenticate(r.Context(), r.Header.Get(APIKeyHeader), scope)
			if err != nil {
				writeError(w, r, err)
				return
			}
			ctx := zctx.With(r.Context(), zap.String("api_key_id", info.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
