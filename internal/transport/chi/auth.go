package chi

import (
	"crypto/subtle"
	"net/http"
)

// HeaderAPIKey carries the shared secret of the single-shot action endpoints.
const HeaderAPIKey = "x-internal-api-key"

// APIKeyMiddleware rejects requests whose x-internal-api-key header does not match key.
// An empty key rejects everything; callers mount the protected routes only when a key is set.
func APIKeyMiddleware(key string) func(http.Handler) http.Handler {
	want := []byte(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(HeaderAPIKey)
			if len(want) == 0 || got == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				writeActionError(w, http.StatusUnauthorized, actionError{
					Code:    codeUnauthorized,
					Message: "Unauthorized",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
