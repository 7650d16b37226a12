// Package metrics defines the Prometheus collectors for lead capture, SMS
// verification and the email drip.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LeadsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "immo_leads_created_total",
		Help: "Leads written, by source",
	}, []string{"source"})

	Verifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "immo_sms_verifications_total",
		Help: "SMS verification events by outcome (sent, approved, rejected, locked, rate_limited)",
	}, []string{"outcome"})

	SequenceEmails = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "immo_sequence_emails_total",
		Help: "Drip emails processed by outcome (sent, retry, failed, cancelled)",
	}, []string{"outcome"})

	CampaignMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "immo_campaign_messages_total",
		Help: "Campaign messages by channel and outcome",
	}, []string{"channel", "outcome"})

	SequenceTick = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "immo_sequence_tick_duration_seconds",
		Help:    "Duration of one sequence scheduler tick",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	SequencePending = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "immo_sequence_pending",
		Help: "Pending drip rows at the last tick",
	})
)

var (
	registerOnce sync.Once
	registerErr  error
)

// Register adds every collector to reg (prometheus.DefaultRegisterer when
// nil). Safe to call more than once.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	registerOnce.Do(func() {
		for _, c := range []prometheus.Collector{
			LeadsCreated, Verifications, SequenceEmails, CampaignMessages, SequenceTick, SequencePending,
		} {
			if err := reg.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
					continue
				}
				registerErr = err
				return
			}
		}
	})
	return registerErr
}

// Handler serves the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}
