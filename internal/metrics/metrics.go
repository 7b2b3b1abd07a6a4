// Package metrics exposes the Prometheus counters of the booking flow.
package metrics

import (
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all prometheus metrics.  A nil *Metrics is valid and
// records nothing.
type Metrics struct {
    ReservationsCreated prometheus.Counter
    CheckoutsCreated    prometheus.Counter
    PaymentsMarked      *prometheus.CounterVec
    WebhooksReceived    *prometheus.CounterVec
    RefundsProcessed    *prometheus.CounterVec
    GatewayErrors       *prometheus.CounterVec
    RequestDuration     *prometheus.HistogramVec
}

// NewMetrics registers the metrics on reg under namespace.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
    f := promauto.With(reg)
    return &Metrics{
        ReservationsCreated: f.NewCounter(prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "reservations_created_total",
            Help:      "The total number of reservations created",
        }),
        CheckoutsCreated: f.NewCounter(prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "checkouts_created_total",
            Help:      "The total number of gateway checkout sessions created",
        }),
        PaymentsMarked: f.NewCounterVec(prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "payments_marked_total",
            Help:      "Invoices moved to paid, by source (redirect, webhook, manual)",
        }, []string{"source"}),
        WebhooksReceived: f.NewCounterVec(prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "webhooks_received_total",
            Help:      "Gateway webhook deliveries, by event kind",
        }, []string{"kind"}),
        RefundsProcessed: f.NewCounterVec(prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "refunds_processed_total",
            Help:      "Refund decisions, by outcome",
        }, []string{"decision"}),
        GatewayErrors: f.NewCounterVec(prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "gateway_errors_total",
            Help:      "The total number of payment gateway errors",
        }, []string{"operation"}),
        RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
            Namespace: namespace,
            Name:      "http_request_duration_seconds",
            Help:      "Time taken to serve HTTP requests",
            Buckets:   prometheus.DefBuckets,
        }, []string{"method", "route", "status"}),
    }
}

func (m *Metrics) ReservationCreated() {
    if m != nil {
        m.ReservationsCreated.Inc()
    }
}

func (m *Metrics) CheckoutCreated() {
    if m != nil {
        m.CheckoutsCreated.Inc()
    }
}

func (m *Metrics) PaymentMarked(source string) {
    if m != nil {
        m.PaymentsMarked.WithLabelValues(source).Inc()
    }
}

func (m *Metrics) WebhookReceived(kind string) {
    if m != nil {
        m.WebhooksReceived.WithLabelValues(kind).Inc()
    }
}

func (m *Metrics) RefundProcessed(decision string) {
    if m != nil {
        m.RefundsProcessed.WithLabelValues(decision).Inc()
    }
}

func (m *Metrics) GatewayError(op string) {
    if m != nil {
        m.GatewayErrors.WithLabelValues(op).Inc()
    }
}

func (m *Metrics) ObserveRequest(method, route, status string, seconds float64) {
    if m != nil {
        m.RequestDuration.WithLabelValues(method, route, status).Observe(seconds)
    }
}
