// Package kmetrics instruments topology assembly and submission with
// prometheus collectors.
package kmetrics

import (
	"time"

	"github.com/birdayz/socflow/kstage"
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder receives assembly and submission events.
type Recorder interface {
	StageBuilt(id kstage.ID)
	StageSkipped(id kstage.ID)
	StageFailed(id kstage.ID)
	AssemblyDuration(d time.Duration)
	Submitted(mode string, err error)
}

type nop struct{}

func (nop) StageBuilt(kstage.ID)           {}
func (nop) StageSkipped(kstage.ID)         {}
func (nop) StageFailed(kstage.ID)          {}
func (nop) AssemblyDuration(time.Duration) {}
func (nop) Submitted(string, error)        {}

// Nop returns a Recorder that drops everything.
func Nop() Recorder {
	return nop{}
}

// Prometheus is a Recorder backed by prometheus collectors.
type Prometheus struct {
	stages      *prometheus.CounterVec // By stage and outcome (built/skipped/failed)
	submissions *prometheus.CounterVec // By mode and status (success/failure)
	assembly    prometheus.Histogram
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Prometheus, error) {
	m := &Prometheus{
		stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "socflow",
			Subsystem: "assembly",
			Name:      "stages_total",
			Help:      "Total number of stage constructions by outcome",
		}, []string{"stage", "outcome"}),

		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "socflow",
			Subsystem: "submit",
			Name:      "submissions_total",
			Help:      "Total number of topology submissions",
		}, []string{"mode", "status"}),

		assembly: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "socflow",
			Subsystem: "assembly",
			Name:      "duration_seconds",
			Help:      "Topology assembly duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		}),
	}

	for _, c := range []prometheus.Collector{m.stages, m.submissions, m.assembly} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Prometheus) StageBuilt(id kstage.ID) {
	m.stages.WithLabelValues(string(id), "built").Inc()
}

// StageSkipped counts optional stages left out of a degraded topology.
func (m *Prometheus) StageSkipped(id kstage.ID) {
	m.stages.WithLabelValues(string(id), "skipped").Inc()
}

func (m *Prometheus) StageFailed(id kstage.ID) {
	m.stages.WithLabelValues(string(id), "failed").Inc()
}

func (m *Prometheus) AssemblyDuration(d time.Duration) {
	m.assembly.Observe(d.Seconds())
}

func (m *Prometheus) Submitted(mode string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.submissions.WithLabelValues(mode, status).Inc()
}
