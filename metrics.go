package accounts

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector records auth lifecycle events for observability.
type MetricsCollector interface {
	RecordRegistration()
	RecordActivation()
	RecordLoginSuccess()
	RecordLoginFailure()
	RecordPasswordReset()
	RecordEmailQueued(kind string)
}

// Collector is the prometheus backed MetricsCollector.
type Collector struct {
	registrations  prometheus.Counter
	activations    prometheus.Counter
	loginSuccess   prometheus.Counter
	loginFail      prometheus.Counter
	passwordResets prometheus.Counter
	emailsQueued   *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accounts_registrations_total",
			Help: "Total number of user registrations.",
		}),
		activations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accounts_activations_total",
			Help: "Total number of successful account activations.",
		}),
		loginSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accounts_login_success_total",
			Help: "Total number of successful logins.",
		}),
		loginFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accounts_login_fail_total",
			Help: "Total number of failed logins.",
		}),
		passwordResets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accounts_password_resets_total",
			Help: "Total number of finalized password resets.",
		}),
		emailsQueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accounts_emails_queued_total",
			Help: "Verification emails queued for delivery, by kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		c.registrations,
		c.activations,
		c.loginSuccess,
		c.loginFail,
		c.passwordResets,
		c.emailsQueued,
	)

	return c
}

func (c *Collector) RecordRegistration() { c.registrations.Inc() }

func (c *Collector) RecordActivation() { c.activations.Inc() }

func (c *Collector) RecordLoginSuccess() { c.loginSuccess.Inc() }

func (c *Collector) RecordLoginFailure() { c.loginFail.Inc() }

func (c *Collector) RecordPasswordReset() { c.passwordResets.Inc() }

func (c *Collector) RecordEmailQueued(kind string) {
	c.emailsQueued.WithLabelValues(kind).Inc()
}

var _ MetricsCollector = (*Collector)(nil)

// MetricsHandler returns the HTTP handler serving prometheus scrapes.
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// noopMetrics is used when no collector is configured.
type noopMetrics struct{}

func (noopMetrics) RecordRegistration() {}

func (noopMetrics) RecordActivation() {}

func (noopMetrics) RecordLoginSuccess() {}

func (noopMetrics) RecordLoginFailure() {}

func (noopMetrics) RecordPasswordReset() {}

func (noopMetrics) RecordEmailQueued(string) {}
