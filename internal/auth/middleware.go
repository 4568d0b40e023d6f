package auth

import (
	"crypto/subtle"
	"net/http"
)

// OperatorSecretHeader carries the shared secret on operator API calls.
const OperatorSecretHeader = "X-Operator-Secret"

// RequireOperatorSecret returns middleware that admits only requests carrying
// the shared operator secret.
func RequireOperatorSecret(secret string) func(http.Handler) http.Handler {
	want := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(OperatorSecretHeader))
			if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
				w.Header().Set("Content-Type", "application/json")
				http.Error(w, `{"code":"UNAUTHORIZED","message":"invalid operator secret"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
