package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "digicop_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "digicop_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	Uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "digicop_uploads_total",
		Help: "Demo video uploads by result.",
	}, []string{"result"})

	UploadSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "digicop_upload_size_bytes",
		Help:    "Size of stored demo videos.",
		Buckets: prometheus.ExponentialBuckets(64*1024, 4, 8),
	})

	ContactSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "digicop_contact_submissions_total",
		Help: "Contact form submissions by result.",
	}, []string{"result"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "digicop_notifications_total",
		Help: "Contact notifications by channel and result.",
	}, []string{"channel", "result"})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "digicop_rate_limited_total",
		Help: "Requests rejected by the rate limiter.",
	})
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Instrument records request count and latency under the given route label.
func Instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
