// Package socflow deploys security telemetry topologies: it loads a
// topology's configuration, assembles the stage graph and submits it for
// local or distributed execution.
package socflow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/birdayz/socflow/kadapter"
	"github.com/birdayz/socflow/kconfig"
	"github.com/birdayz/socflow/kidentity"
	"github.com/birdayz/socflow/kmetrics"
	"github.com/birdayz/socflow/ksubmit"
	"github.com/birdayz/socflow/ktopology"
	"github.com/go-logr/logr"
	"go.uber.org/multierr"
)

var (
	// ErrTopologyRequired is returned by New when no topology directory is set.
	ErrTopologyRequired = errors.New("socflow: topology directory is required")
	// ErrDegraded is returned by Deploy when optional stages failed and
	// topology.allow.degraded is false.
	ErrDegraded = errors.New("topology is degraded")
)

const (
	// DefaultConfigPath is the configuration root used when none is set.
	DefaultConfigPath = "OpenSOC_Configs"

	// DefaultProbeTimeout bounds each backend check while stages are built.
	DefaultProbeTimeout = 5 * time.Second
)

type App struct {
	configPath string
	subdir     string
	mode       ksubmit.Mode
	debug      bool
	generator  bool
	overrides  map[string]string

	targets  map[ksubmit.Mode]ksubmit.Target
	adapters *kadapter.Registry
	topics   kadapter.TopicChecker

	log     logr.Logger
	metrics kmetrics.Recorder
}

// New creates a new application. It does not touch the file system.
func New(opts ...Option) (*App, error) {
	a := &App{
		configPath: DefaultConfigPath,
		mode:       ksubmit.Distributed,
		overrides:  map[string]string{},
		targets:    map[ksubmit.Mode]ksubmit.Target{},
		log:        logr.Discard(),
		metrics:    kmetrics.Nop(),
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.subdir == "" {
		return nil, ErrTopologyRequired
	}
	return a, nil
}

// Deployment is an assembled topology ready for submission.
type Deployment struct {
	*ktopology.Result
	Config    *kconfig.Config
	Execution ksubmit.ExecutionConfig
}

// TopologyConfigPath returns the location of topology.conf.
func (a *App) TopologyConfigPath() string {
	return filepath.Join(a.configPath, "topologies", a.subdir, "topology.conf")
}

// Plan loads the configuration and identity and assembles the topology
// without submitting it.
func (a *App) Plan(ctx context.Context) (*Deployment, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	identity, err := kidentity.Load(a.configPath, a.subdir)
	if err != nil {
		return nil, &ktopology.ConfigurationError{Key: "identity", Err: err}
	}

	allowDegraded, err := cfg.Bool("topology.allow.degraded", true)
	if err != nil {
		return nil, &ktopology.ConfigurationError{Key: "topology.allow.degraded", Err: err}
	}
	exec, err := ksubmit.ExecutionConfigFor(a.mode, cfg)
	if err != nil {
		return nil, &ktopology.ConfigurationError{Key: "num.workers", Err: err}
	}
	exec.Debug = exec.Debug || a.debug

	adapters, topics, err := a.backends(cfg)
	if err != nil {
		return nil, err
	}
	opts := []ktopology.Option{
		ktopology.WithLogr(a.log.WithName("assembler")),
		ktopology.WithMetrics(a.metrics),
		ktopology.WithConfigPath(a.configPath, a.subdir),
		ktopology.WithAdapters(adapters),
	}
	if topics != nil {
		opts = append(opts, ktopology.WithTopicChecker(topics))
	}

	res, err := ktopology.NewAssembler(opts...).Assemble(ctx, cfg, identity)
	if err != nil {
		return nil, err
	}
	if res.Degraded() && !allowDegraded {
		var errs error
		for _, s := range res.Skipped {
			errs = multierr.Append(errs, s)
		}
		return nil, fmt.Errorf("%w: %w", ErrDegraded, errs)
	}

	return &Deployment{Result: res, Config: cfg, Execution: exec}, nil
}

// Deploy assembles the topology and submits it. In local mode Deploy blocks
// until ctx is done; in distributed mode it returns once the cluster
// acknowledged the topology.
func (a *App) Deploy(ctx context.Context) error {
	d, err := a.Plan(ctx)
	if err != nil {
		return err
	}

	log := a.log.WithValues("topology", d.TopologyName, "mode", a.mode.String())
	if d.Degraded() {
		log.Info("Deploying degraded topology", "skipped", len(d.Skipped))
	}

	target, closeTarget, err := a.target(d.Config)
	if err != nil {
		return err
	}
	defer closeTarget()

	opts := []ksubmit.SubmitterOption{
		ksubmit.WithLogr(a.log.WithName("submitter")),
		ksubmit.WithMetrics(a.metrics),
	}
	if target != nil {
		opts = append(opts, ksubmit.WithTarget(a.mode, target))
	}
	return ksubmit.NewSubmitter(opts...).Submit(ctx, d.TopologyName, d.Graph, d.Execution)
}

func (a *App) loadConfig() (*kconfig.Config, error) {
	path := a.TopologyConfigPath()
	cfg, err := kconfig.Load(path)
	if err != nil {
		return nil, &ktopology.ConfigurationError{Key: path, Err: err}
	}
	for k, v := range a.overrides {
		cfg.Set(k, v)
	}
	if a.generator {
		cfg.Set("spout.test.enabled", "true")
		cfg.Set("spout.kafka.enabled", "false")
	}
	return cfg, nil
}

// backends returns the adapter registry and topic checker stages are built
// with. Unless topology.probe.backends is false, adapter backends are probed
// and the ingestion topic is checked. Explicitly configured ones win.
func (a *App) backends(cfg *kconfig.Config) (*kadapter.Registry, kadapter.TopicChecker, error) {
	probe, err := cfg.Bool("topology.probe.backends", true)
	if err != nil {
		return nil, nil, &ktopology.ConfigurationError{Key: "topology.probe.backends", Err: err}
	}
	ms, err := cfg.Int("topology.probe.timeout.ms", int(DefaultProbeTimeout/time.Millisecond))
	if err == nil && ms <= 0 {
		err = fmt.Errorf("%w: %d must be positive", kconfig.ErrMalformedValue, ms)
	}
	if err != nil {
		return nil, nil, &ktopology.ConfigurationError{Key: "topology.probe.timeout.ms", Err: err}
	}
	timeout := time.Duration(ms) * time.Millisecond

	adapters := a.adapters
	if adapters == nil {
		adapters = kadapter.DefaultRegistry(timeout, kadapter.WithProbes(probe))
	}
	topics := a.topics
	if topics == nil && probe {
		topics = kadapter.KafkaTopicChecker{Timeout: timeout}
	}
	return adapters, topics, nil
}

// target returns the configured target of the app's mode. A nil target lets
// the submitter use its default.
func (a *App) target(cfg *kconfig.Config) (ksubmit.Target, func(), error) {
	if t, ok := a.targets[a.mode]; ok {
		return t, func() {}, nil
	}
	if a.mode != ksubmit.Distributed {
		return nil, func() {}, nil
	}

	brokers := cfg.Strings("cluster.brokers")
	if len(brokers) == 0 {
		brokers = cfg.Strings("kafka.br")
	}
	if len(brokers) == 0 {
		return nil, nil, &ktopology.ConfigurationError{Key: "cluster.brokers", Err: kconfig.ErrMissingKey}
	}
	m, err := ksubmit.DialClusterManager(brokers,
		ksubmit.WithControlTopic(cfg.String("cluster.control.topic", ksubmit.DefaultControlTopic)),
		ksubmit.WithLeasePrefix(cfg.String("cluster.lease.prefix", ksubmit.DefaultLeasePrefix)),
		ksubmit.WithClusterLogr(a.log.WithName("cluster")),
	)
	if err != nil {
		return nil, nil, err
	}
	return m, m.Close, nil
}
