package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Attendance write sources.
const (
	WriteSourceCheck = "check"
	WriteSourceBulk  = "bulk"
	WriteSourceQR    = "qr"
)

// Notification outcomes.
const (
	NotificationQueued  = "queued"
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
	NotificationSkipped = "skipped"
)

// MetricsService encapsulates Prometheus instrumentation for the attendance API.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	attendance      *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	qrSessions      prometheus.Counter
	qrScans         *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	attendance := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_writes_total",
		Help: "Attendance rows upserted, by write path",
	}, []string{"source"})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Guardian notifications by outcome",
	}, []string{"outcome"})

	qrSessions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "qr_sessions_created_total",
		Help: "QR check-in sessions opened",
	})

	qrScans := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qr_scans_total",
		Help: "QR check-in attempts by result",
	}, []string{"result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, attendance, notifications, qrSessions, qrScans, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		attendance:      attendance,
		notifications:   notifications,
		qrSessions:      qrSessions,
		qrScans:         qrScans,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// RegisterBacklogGauge exposes the notification backlog depth through fn.
func (m *MetricsService) RegisterBacklogGauge(fn func() float64) {
	if m == nil || fn == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "notification_backlog",
		Help: "Notifications waiting to be dispatched",
	}, fn))
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordAttendanceWrite counts upserted rows.
func (m *MetricsService) RecordAttendanceWrite(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.attendance.WithLabelValues(source).Add(float64(n))
}

// RecordNotification counts a notification outcome.
func (m *MetricsService) RecordNotification(outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(outcome).Inc()
}

// RecordQRSessionCreated counts an opened session.
func (m *MetricsService) RecordQRSessionCreated() {
	if m == nil {
		return
	}
	m.qrSessions.Inc()
}

// RecordQRScan counts a scan attempt by result code.
func (m *MetricsService) RecordQRScan(result string) {
	if m == nil {
		return
	}
	m.qrScans.WithLabelValues(result).Inc()
}
