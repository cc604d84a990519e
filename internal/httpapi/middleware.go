package httpapi

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/juanibiapina/testrun/internal/logging"
	"github.com/juanibiapina/testrun/internal/service"
)

// noStore disables caching of every response
func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs each request with its status and duration
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logging.Logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// basicAuth requires HTTP basic credentials. It is a no-op when no user is
// configured.
func basicAuth(user, pass string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if user == "" && pass == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotUser, gotPass, ok := r.BasicAuth()
			userOK := subtle.ConstantTimeCompare([]byte(gotUser), []byte(user)) == 1
			passOK := subtle.ConstantTimeCompare([]byte(gotPass), []byte(pass)) == 1
			if !ok || !userOK || !passOK {
				w.Header().Set("WWW-Authenticate", `Basic realm="testrun"`)
				writeError(w, http.StatusUnauthorized, "Unauthorized", service.KindUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
