package metrics

import "github.com/prometheus/client_golang/prometheus"

// BotMetrics exposes counters for the conversation and payment flows.
// All methods are safe on a nil receiver so wiring stays optional.
type BotMetrics struct {
	messagesTotal      *prometheus.CounterVec
	webhooksTotal      *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	paymentLinksTotal  *prometheus.CounterVec
}

func NewBotMetrics(reg prometheus.Registerer) *BotMetrics {
	m := &BotMetrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderbot",
			Subsystem: "conversation",
			Name:      "messages_total",
			Help:      "Inbound messages by classified intent",
		}, []string{"intent"}),
		webhooksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderbot",
			Subsystem: "payments",
			Name:      "webhooks_total",
			Help:      "Payment webhooks by topic and outcome",
		}, []string{"topic", "outcome"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderbot",
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Payment notifications by delivery status",
		}, []string{"status"}),
		paymentLinksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderbot",
			Subsystem: "payments",
			Name:      "links_total",
			Help:      "Generated payment links by result",
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.messagesTotal, m.webhooksTotal, m.notificationsTotal, m.paymentLinksTotal)
	return m
}

func (m *BotMetrics) ObserveMessage(intent string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(intent).Inc()
}

func (m *BotMetrics) ObserveWebhook(topic, outcome string) {
	if m == nil {
		return
	}
	m.webhooksTotal.WithLabelValues(topic, outcome).Inc()
}

func (m *BotMetrics) ObserveNotification(status string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(status).Inc()
}

func (m *BotMetrics) ObservePaymentLink(result string) {
	if m == nil {
		return
	}
	m.paymentLinksTotal.WithLabelValues(result).Inc()
}
