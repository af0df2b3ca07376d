package worker

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeSucceeded = "succeeded"
	outcomeFailed    = "failed"
	outcomeDropped   = "dropped"
)

type metrics struct {
	jobs *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer, depth func() float64) *metrics {
	m := &metrics{
		jobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credential_worker_jobs_total",
				Help: "Background jobs by name and outcome",
			},
			[]string{"job", "outcome"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.jobs)
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "credential_worker_queue_depth",
			Help: "Jobs waiting in the background queue",
		}, depth))
	}
	return m
}
