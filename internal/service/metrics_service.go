package service

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the session
// authority.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	logins          *prometheus.CounterVec
	forceLogouts    *prometheus.CounterVec
	qrTransitions   *prometheus.CounterVec
	scanOutcomes    *prometheus.CounterVec
	legacyBypasses  prometheus.Counter
	sessionRejected prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors. liveConnections is
// sampled on scrape when non-nil.
func NewMetricsService(liveConnections func() float64) *MetricsService {
	registry := prometheus.NewRegistry()

	logins := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "device_logins_total",
		Help: "Device registrations by class",
	}, []string{"class"})

	forceLogouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "force_logout_notifications_total",
		Help: "Force-logout pushes by reason",
	}, []string{"reason"})

	qrTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qr_login_transitions_total",
		Help: "QR login state transitions",
	}, []string{"to"})

	scanOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "remote_scan_outcomes_total",
		Help: "Remote scan sessions by outcome",
	}, []string{"outcome"})

	legacyBypasses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "legacy_token_killswitch_bypass_total",
		Help: "Requests whose credential carried no device claims and skipped the session check",
	})

	sessionRejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "session_replaced_rejections_total",
		Help: "Requests rejected because the session authority holds another device",
	})

	registry.MustRegister(logins, forceLogouts, qrTransitions, scanOutcomes, legacyBypasses, sessionRejected)
	if liveConnections != nil {
		registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "hub_live_connections",
			Help: "Registered device connections on this instance",
		}, liveConnections))
	}

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		logins:          logins,
		forceLogouts:    forceLogouts,
		qrTransitions:   qrTransitions,
		scanOutcomes:    scanOutcomes,
		legacyBypasses:  legacyBypasses,
		sessionRejected: sessionRejected,
	}
}

// Handler exposes the registry for the /metrics endpoint.
func (s *MetricsService) Handler() http.Handler {
	if s == nil {
		return promhttp.Handler()
	}
	return s.handler
}

func (s *MetricsService) RecordLogin(class string) {
	if s != nil {
		s.logins.WithLabelValues(class).Inc()
	}
}

func (s *MetricsService) RecordForceLogout(reason string, notified int) {
	if s != nil {
		s.forceLogouts.WithLabelValues(reason).Add(float64(notified))
	}
}

func (s *MetricsService) RecordQRTransition(to string) {
	if s != nil {
		s.qrTransitions.WithLabelValues(to).Inc()
	}
}

func (s *MetricsService) RecordScanOutcome(outcome string) {
	if s != nil {
		s.scanOutcomes.WithLabelValues(outcome).Inc()
	}
}

func (s *MetricsService) RecordLegacyBypass() {
	if s != nil {
		s.legacyBypasses.Inc()
	}
}

func (s *MetricsService) RecordSessionRejection() {
	if s != nil {
		s.sessionRejected.Inc()
	}
}
