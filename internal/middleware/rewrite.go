package middleware

import (
	"net/http"
	"strings"
)

// AtUsername serves /@{username} paths as /{username}. It must run before
// routing, so mount it with chi's Router.Use ahead of any route.
func AtUsername(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rest, ok := strings.CutPrefix(r.URL.Path, "/@"); ok && rest != "" {
			r2 := r.Clone(r.Context())
			r2.URL.Path = "/" + rest
			r2.URL.RawPath = ""
			next.ServeHTTP(w, r2)
			return
		}
		next.ServeHTTP(w, r)
	})
}
