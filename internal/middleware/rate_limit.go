package middleware

import (
	"net"
	"net/http"
	"time"

	"spacewh/mis/internal/common"
	"spacewh/mis/internal/logging"
)

// RateLimitMiddleware applies a per-client-IP token bucket
func RateLimitMiddleware(limiters *common.LimiterCache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !limiters.Allow(ip) {
				logging.Warn("Rate limit exceeded", "client_ip", ip, "path", r.URL.Path)
				w.Header().Set("Retry-After", "60")
				common.RespondError(w, time.Now(), nil, "Too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
