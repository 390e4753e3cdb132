package socflow

import (
	"github.com/birdayz/socflow/kadapter"
	"github.com/birdayz/socflow/kmetrics"
	"github.com/birdayz/socflow/ksubmit"
	"github.com/go-logr/logr"
)

// Option is a function that configures an App
type Option func(*App)

// WithLogr sets the logger for the application
var WithLogr = func(log logr.Logger) Option {
	return func(a *App) {
		a.log = log
	}
}

// WithMode selects local or distributed execution
var WithMode = func(mode ksubmit.Mode) Option {
	return func(a *App) {
		a.mode = mode
	}
}

// WithDebug turns on debug execution regardless of topology.debug
var WithDebug = func(debug bool) Option {
	return func(a *App) {
		a.debug = debug
	}
}

// WithConfigPath sets the configuration root
var WithConfigPath = func(path string) Option {
	return func(a *App) {
		a.configPath = path
	}
}

// WithSubdir sets the topology directory below <config>/topologies
var WithSubdir = func(subdir string) Option {
	return func(a *App) {
		a.subdir = subdir
	}
}

// WithGeneratorSource replaces the Kafka source with the test generator
var WithGeneratorSource = func(enabled bool) Option {
	return func(a *App) {
		a.generator = enabled
	}
}

// WithTarget sets the execution target of a mode. Without it, local mode runs
// on an embedded cluster and distributed mode dials the brokers in
// cluster.brokers (falling back to kafka.br).
var WithTarget = func(mode ksubmit.Mode, t ksubmit.Target) Option {
	return func(a *App) {
		a.targets[mode] = t
	}
}

// WithMetrics sets the metrics recorder
var WithMetrics = func(m kmetrics.Recorder) Option {
	return func(a *App) {
		a.metrics = m
	}
}

// WithAdapters sets the adapter registry stages resolve their backends through.
// It replaces the registry derived from topology.probe.backends.
var WithAdapters = func(r *kadapter.Registry) Option {
	return func(a *App) {
		a.adapters = r
	}
}

// WithTopicChecker sets the checker the Kafka source verifies its topic with.
// It replaces the Kafka checker installed when topology.probe.backends is on.
var WithTopicChecker = func(c kadapter.TopicChecker) Option {
	return func(a *App) {
		a.topics = c
	}
}

// WithOverrides sets configuration values that win over topology.conf
var WithOverrides = func(overrides map[string]string) Option {
	return func(a *App) {
		for k, v := range overrides {
			a.overrides[k] = v
		}
	}
}
