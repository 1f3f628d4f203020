package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mail_txn_ingest"

// Metrics holds all Prometheus metrics
type Metrics struct {
	Runs                prometheus.Counter
	EmailsFetched       prometheus.Counter
	EmailsProcessed     prometheus.Counter
	TransactionsCreated prometheus.Counter
	DuplicatesSkipped   *prometheus.CounterVec
	ParseFailures       prometheus.Counter
	LimitBreachAlerts   prometheus.Counter
	FetchFailures       prometheus.Counter
	ProcessingTime      prometheus.Histogram
}

// NewMetrics registers the pipeline metrics on reg. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Runs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of mailbox processing runs",
		}),
		EmailsFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_fetched_total",
			Help:      "Total number of emails returned by providers",
		}),
		EmailsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_processed_total",
			Help:      "Total number of emails recorded in the ledger",
		}),
		TransactionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_created_total",
			Help:      "Total number of transactions materialized from email",
		}),
		DuplicatesSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_skipped_total",
			Help:      "Emails skipped without creating a transaction, by reason",
		}, []string{"reason"}),
		ParseFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_failures_total",
			Help:      "Total number of emails that could not be parsed",
		}),
		LimitBreachAlerts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "limit_breach_alerts_total",
			Help:      "Total number of monthly limit breach alerts raised",
		}),
		FetchFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Total number of failed provider fetches",
		}),
		ProcessingTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processing_duration_seconds",
			Help:      "Time spent processing one mailbox run",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
