package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	ExamStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_exam_starts_total",
			Help: "Exam start attempts by outcome",
		},
		[]string{"outcome"},
	)

	Submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_submissions_total",
			Help: "Exam submissions by trigger and outcome",
		},
		[]string{"trigger", "outcome"},
	)

	SubmissionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "portal_submission_duration_seconds",
			Help:    "Time from submit to report, including capture finalization and analysis",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	ProctoringVerdicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_proctoring_verdicts_total",
			Help: "Proctoring verdicts by suspicion level",
		},
		[]string{"level"},
	)

	RecordingBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "portal_recording_bytes",
			Help:    "Size of finalized exam recordings",
			Buckets: prometheus.ExponentialBuckets(1<<20, 2, 10),
		},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(RequestCounter)
		prometheus.MustRegister(RequestDuration)
		prometheus.MustRegister(ExamStarts)
		prometheus.MustRegister(Submissions)
		prometheus.MustRegister(SubmissionDuration)
		prometheus.MustRegister(ProctoringVerdicts)
		prometheus.MustRegister(RecordingBytes)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
