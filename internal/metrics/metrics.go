package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "library"

// Collector is a prometheus.Collector that collects metrics about
// circulation: issues, returns and the fines they produce.
type Collector struct {
	issued       prometheus.Counter
	returned     prometheus.Counter
	fines        prometheus.Counter
	rejections   *prometheus.CounterVec
	loanDuration prometheus.Histogram
}

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		issued: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "books_issued_total",
				Help:      "The number of books issued to members.",
			},
		),
		returned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "books_returned_total",
				Help:      "The number of books returned by members.",
			},
		),
		fines: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "fines_charged_total",
				Help:      "The sum of overdue fines charged, in currency units.",
			},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "circulation_rejections_total",
				Help:      "The number of issue or return requests rejected.",
			}, []string{"operation", "reason"},
		),
		loanDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "loan_days",
				Help:      "The number of days a book was out before being returned.",
				Buckets:   []float64{1, 3, 7, 14, 21, 30, 60, 90},
			},
		),
	}
}

// Issued records a successful issue.
func (c *Collector) Issued() {
	if c == nil {
		return
	}
	c.issued.Inc()
}

// Returned records a successful return after the given number of days, with
// its fine.
func (c *Collector) Returned(days, fine int) {
	if c == nil {
		return
	}
	c.returned.Inc()
	c.fines.Add(float64(fine))
	c.loanDuration.Observe(float64(days))
}

// Rejected records a request turned down for reason.
func (c *Collector) Rejected(operation, reason string) {
	if c == nil {
		return
	}
	c.rejections.WithLabelValues(operation, reason).Inc()
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.issued.Describe(ch)
	c.returned.Describe(ch)
	c.fines.Describe(ch)
	c.rejections.Describe(ch)
	c.loanDuration.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.issued.Collect(ch)
	c.returned.Collect(ch)
	c.fines.Collect(ch)
	c.rejections.Collect(ch)
	c.loanDuration.Collect(ch)
}
