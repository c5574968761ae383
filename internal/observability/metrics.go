package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "z21"

var (
	registerOnce sync.Once

	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lan",
			Name:      "frames_received_total",
			Help:      "Decoded inbound frames by command kind.",
		},
		[]string{"command"},
	)
	framesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lan",
			Name:      "frames_sent_total",
			Help:      "Outbound frames by fan-out route.",
		},
		[]string{"route"},
	)
	framesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lan",
			Name:      "frames_dropped_total",
			Help:      "Inbound frames rejected before or during dispatch.",
		},
		[]string{"reason"},
	)
	sendErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lan",
			Name:      "send_errors_total",
			Help:      "Transport failures while sending outbound frames.",
		},
	)
	sessionsLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "live",
			Help:      "Currently live client sessions.",
		},
	)
	sessionsEnded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "ended_total",
			Help:      "Sessions ended by reason.",
		},
		[]string{"reason"},
	)
	hookCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hook",
			Name:      "calls_total",
			Help:      "Domain hook invocations by outcome.",
		},
		[]string{"hook", "result"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests and monitor streams.",
		},
		[]string{"service", "kind", "method", "route", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds, monitor streams excluded.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "route", "status"},
	)
	httpStreams = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "streams_open",
			Help:      "Monitor websocket streams currently open.",
		},
		[]string{"service"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			framesReceived, framesSent, framesDropped, sendErrors,
			sessionsLive, sessionsEnded, hookCalls,
			httpRequests, httpDuration, httpStreams,
		)
	})
}

func RecordFrameIn(command string) {
	RegisterMetrics()
	framesReceived.WithLabelValues(command).Inc()
}

// RecordFramesOut counts n frames handed to the transport on route.
func RecordFramesOut(route string, n int) {
	RegisterMetrics()
	if n <= 0 {
		return
	}
	framesSent.WithLabelValues(route).Add(float64(n))
}

func RecordDrop(reason string) {
	RegisterMetrics()
	framesDropped.WithLabelValues(reason).Inc()
}

func RecordSendError() {
	RegisterMetrics()
	sendErrors.Inc()
}

func SetSessionsLive(n int) {
	RegisterMetrics()
	sessionsLive.Set(float64(n))
}

func RecordSessionEnd(reason string, n int) {
	RegisterMetrics()
	if n <= 0 {
		return
	}
	sessionsEnded.WithLabelValues(reason).Add(float64(n))
}

func RecordHook(hook, result string) {
	RegisterMetrics()
	hookCalls.WithLabelValues(hook, result).Inc()
}

// RecordHTTPRequest counts one admin exchange. Stream lifetimes are not
// latencies and stay out of the duration histogram.
func RecordHTTPRequest(service, kind, method, route string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(service, kind, method, route, statusLabel).Inc()
	if kind == KindStream {
		return
	}
	httpDuration.WithLabelValues(service, method, route, statusLabel).Observe(duration.Seconds())
}

func StreamOpened(service string) {
	RegisterMetrics()
	httpStreams.WithLabelValues(service).Inc()
}

func StreamClosed(service string) {
	RegisterMetrics()
	httpStreams.WithLabelValues(service).Dec()
}
