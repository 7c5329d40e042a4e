package api

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/punchamoorthee/atomicbank/internal/auth"
	"github.com/punchamoorthee/atomicbank/internal/domain"
)

type contextKey int

const callerKey contextKey = iota

// Caller returns the identity authenticated for the request.
func Caller(ctx context.Context) (domain.Identity, bool) {
	ident, ok := ctx.Value(callerKey).(domain.Identity)
	return ident, ok
}

// BasicAuth accepts any registry handle paired with the shared password.
func BasicAuth(registry *domain.Registry, password string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handle, pass, err := auth.ParseHeader(r.Header.Get("Authorization"))
			if err != nil {
				unauthorized(w)
				return
			}
			ident, ok := registry.LookupHandle(handle)
			if !ok || subtle.ConstantTimeCompare([]byte(pass), []byte(password)) != 1 {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey, ident)))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="atomicbank"`)
	respondWithError(w, http.StatusUnauthorized, "Unauthorized")
}
