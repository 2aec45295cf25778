// Package metrics defines bridge counters and a Prometheus-backed
// implementation.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics captures per-request outcomes of the webhook pipeline.
type Metrics interface {
	IncReceived()
	IncDuplicate()
	IncDelivered()
	IncDeliveryFailed()
	IncAuthRejected()
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncReceived()       {}
func (Noop) IncDuplicate()      {}
func (Noop) IncDelivered()      {}
func (Noop) IncDeliveryFailed() {}
func (Noop) IncAuthRejected()   {}

// Prom implements Metrics backed by Prometheus counters.
type Prom struct {
	received       prometheus.Counter
	duplicate      prometheus.Counter
	delivered      prometheus.Counter
	deliveryFailed prometheus.Counter
	authRejected   prometheus.Counter
	once           sync.Once
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Inbound webhook messages accepted for processing",
		}),
		duplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_duplicate_total",
			Help:      "Messages suppressed by fingerprint deduplication",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_delivered_total",
			Help:      "Messages forwarded to Telegram successfully",
		}),
		deliveryFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_delivery_failed_total",
			Help:      "Messages whose Telegram delivery failed",
		}),
		authRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_rejected_total",
			Help:      "Webhook requests rejected by the auth decision engine",
		}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(p.received, p.duplicate, p.delivered, p.deliveryFailed, p.authRejected)
	})
}

func (p *Prom) IncReceived()       { p.received.Inc() }
func (p *Prom) IncDuplicate()      { p.duplicate.Inc() }
func (p *Prom) IncDelivered()      { p.delivered.Inc() }
func (p *Prom) IncDeliveryFailed() { p.deliveryFailed.Inc() }
func (p *Prom) IncAuthRejected()   { p.authRejected.Inc() }

// Handler exposes the default Prometheus registry over HTTP.
func Handler() http.Handler {
	return promhttp.Handler()
}
