package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"venue-rails/pkg/logging"
	"venue-rails/pkg/metrics"
	"venue-rails/pkg/monitoring"
)

// statusWriter captures the response code for metrics and logging.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

// observe times every request into Prometheus, labeled by the route
// template rather than the raw path to keep cardinality bounded, and into
// the in-memory sampler behind /debug/stats. sampler may be nil.
func observe(log *logging.ComponentLogger, sampler *monitoring.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			d := time.Since(start)

			handler := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tpl, err := route.GetPathTemplate(); err == nil {
					handler = tpl
				}
			}
			metrics.ObserveHTTP(handler, r.Method, sw.status, d)
			if sampler != nil {
				sampler.Observe(float64(d.Microseconds()) / 1000.0)
			}

			log.Debug("request served",
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
				logging.Int("status", sw.status),
				logging.Duration("duration", d))
		})
	}
}
