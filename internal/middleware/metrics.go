package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bryanwahyu/automaton-cam/internal/infra/metrics"
)

// Metrics records request counts and latency labelled by the chi route
// pattern, so ids in the path do not explode the label set.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := wrapWriter(w)

		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
