package metrics

import "github.com/prometheus/client_golang/prometheus"

// DialogMetrics exposes counters for the dialog core. All methods are
// nil-receiver safe so wiring stays optional in tests.
type DialogMetrics struct {
	inboundTotal         *prometheus.CounterVec
	classificationsTotal *prometheus.CounterVec
	operationsTotal      *prometheus.CounterVec
	gatewayFailures      *prometheus.CounterVec
}

func NewDialogMetrics(reg prometheus.Registerer) *DialogMetrics {
	m := &DialogMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "appointmentbot",
			Subsystem: "dialog",
			Name:      "inbound_messages_total",
			Help:      "Inbound chat messages by resulting outcome",
		}, []string{"outcome"}),
		classificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "appointmentbot",
			Subsystem: "dialog",
			Name:      "classifications_total",
			Help:      "Classifier calls by recognized intent",
		}, []string{"intent"}),
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "appointmentbot",
			Subsystem: "dialog",
			Name:      "operations_total",
			Help:      "Completed intents by name and status",
		}, []string{"intent", "status"}),
		gatewayFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "appointmentbot",
			Subsystem: "registry",
			Name:      "gateway_failures_total",
			Help:      "Registry gateway failures by taxonomy kind",
		}, []string{"kind"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.classificationsTotal, m.operationsTotal, m.gatewayFailures)
	return m
}

func (m *DialogMetrics) ObserveInbound(outcome string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(outcome).Inc()
}

func (m *DialogMetrics) ObserveClassification(intent string) {
	if m == nil {
		return
	}
	m.classificationsTotal.WithLabelValues(intent).Inc()
}

func (m *DialogMetrics) ObserveOperation(intent, status string) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(intent, status).Inc()
}

func (m *DialogMetrics) ObserveGatewayFailure(kind string) {
	if m == nil {
		return
	}
	m.gatewayFailures.WithLabelValues(kind).Inc()
}
