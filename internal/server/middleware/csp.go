package middleware

import "net/http"

// ContentSecurityPolicy only allows scripts and styles from the backend and the jsDelivr CDN.
const ContentSecurityPolicy = "default-src 'none'; " +
	"script-src 'self' /static/js https://cdn.jsdelivr.net; " +
	"style-src 'self' /static/css https://cdn.jsdelivr.net; " +
	"img-src 'self' /static/img"

// CSP sets the Content-Security-Policy header on every response.
func CSP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", ContentSecurityPolicy)
		next.ServeHTTP(w, r)
	})
}
