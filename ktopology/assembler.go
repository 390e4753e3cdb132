package ktopology

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/birdayz/socflow/kadapter"
	"github.com/birdayz/socflow/kconfig"
	"github.com/birdayz/socflow/kdag"
	"github.com/birdayz/socflow/kidentity"
	"github.com/birdayz/socflow/kmetrics"
	"github.com/birdayz/socflow/kstage"
	"github.com/go-logr/logr"
	"go.uber.org/multierr"
)

// FailurePolicy decides what happens when an optional stage fails to build.
type FailurePolicy string

const (
	// PolicyIsolate leaves the failed stage out and keeps assembling.
	PolicyIsolate FailurePolicy = "isolate"
	// PolicyAbort fails the whole assembly.
	PolicyAbort FailurePolicy = "abort"
)

// ParseFailurePolicy parses the value of topology.failure.policy.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyIsolate, PolicyAbort:
		return p, nil
	default:
		return "", fmt.Errorf("%w: failure policy %q must be isolate or abort", kconfig.ErrMalformedValue, s)
	}
}

// Result is a successfully assembled topology.
type Result struct {
	Graph        *kdag.Graph
	Active       []kdag.NodeID
	Skipped      []*AssemblyError
	TopologyName string
}

// Degraded reports whether optional stages were left out because they
// failed to build.
func (r *Result) Degraded() bool {
	return len(r.Skipped) > 0
}

// Assembler builds topologies from configuration. An Assembler holds no
// per-run state and may be used for concurrent assemblies.
type Assembler struct {
	registry   *Registry
	adapters   *kadapter.Registry
	topics     kadapter.TopicChecker
	log        logr.Logger
	metrics    kmetrics.Recorder
	configPath string
	subdir     string
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithLogr sets the logger.
var WithLogr = func(log logr.Logger) Option {
	return func(a *Assembler) {
		a.log = log
	}
}

// WithRegistry replaces the stage constructors.
var WithRegistry = func(r *Registry) Option {
	return func(a *Assembler) {
		a.registry = r
	}
}

// WithAdapters sets the adapter registry stages resolve their backends with.
var WithAdapters = func(r *kadapter.Registry) Option {
	return func(a *Assembler) {
		a.adapters = r
	}
}

// WithTopicChecker enables topic existence checks for the kafka source.
var WithTopicChecker = func(c kadapter.TopicChecker) Option {
	return func(a *Assembler) {
		a.topics = c
	}
}

// WithMetrics sets the metrics recorder.
var WithMetrics = func(m kmetrics.Recorder) Option {
	return func(a *Assembler) {
		a.metrics = m
	}
}

// WithConfigPath sets the configuration root and the topology directory below
// it that default file locations are derived from.
var WithConfigPath = func(path, subdir string) Option {
	return func(a *Assembler) {
		a.configPath = path
		a.subdir = subdir
	}
}

// NewAssembler creates an assembler with the built-in stages and adapters.
func NewAssembler(opts ...Option) *Assembler {
	a := &Assembler{
		registry:   DefaultRegistry(),
		adapters:   kadapter.DefaultRegistry(5 * time.Second),
		log:        logr.Discard(),
		metrics:    kmetrics.Nop(),
		configPath: "OpenSOC_Configs",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type planned struct {
	constructor Constructor
	descriptor  kstage.Descriptor
}

// Assemble builds the topology described by cfg.
//
// Configuration problems are reported as ConfigurationErrors before any stage
// is built. Stage failures are AssemblyErrors: fatal for critical stages and
// under PolicyAbort, otherwise collected in Result.Skipped.
func (a *Assembler) Assemble(ctx context.Context, cfg *kconfig.Config, identity kidentity.Identity) (*Result, error) {
	start := time.Now()
	defer func() {
		a.metrics.AssemblyDuration(time.Since(start))
	}()

	if err := identity.Validate(); err != nil {
		return nil, &ConfigurationError{Key: "identity", Err: err}
	}
	policy, err := ParseFailurePolicy(cfg.String("topology.failure.policy", string(PolicyIsolate)))
	if err != nil {
		return nil, &ConfigurationError{Key: "topology.failure.policy", Err: err}
	}

	env := Env{
		Config:     cfg,
		Identity:   identity,
		ConfigPath: a.configPath,
		Subdir:     a.subdir,
		Adapters:   a.adapters,
		Topics:     a.topics,
	}
	plan, err := a.plan(env)
	if err != nil {
		return nil, err
	}

	log := a.log.WithValues("topology", identity.TopologyName())
	log.Info("Initializing topology", "stages", len(plan), "policy", policy)

	state := NewState()
	var skipped []*AssemblyError
	for _, p := range plan {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		d := p.descriptor
		spec := p.constructor.Spec()
		next, err := a.construct(ctx, env, state, p)
		if err != nil {
			a.metrics.StageFailed(spec.ID)
			aerr := &AssemblyError{Stage: d.Name, ID: spec.ID, Kind: spec.Kind, Critical: spec.Critical, Err: err}
			if aerr.Critical || policy == PolicyAbort {
				log.Error(err, "Stage failed, aborting assembly", "stage", d.Name, "critical", aerr.Critical)
				return nil, aerr
			}
			log.Error(err, "Stage failed, leaving it out", "stage", d.Name)
			a.metrics.StageSkipped(spec.ID)
			skipped = append(skipped, aerr)
			continue
		}

		state = next
		a.metrics.StageBuilt(spec.ID)
		a.logStage(log, cfg, d)
	}

	if err := state.Graph.Validate(); err != nil {
		return nil, err
	}

	return &Result{
		Graph:        state.Graph,
		Active:       state.Tracker.ActiveSet(),
		Skipped:      skipped,
		TopologyName: identity.TopologyName(),
	}, nil
}

// plan decides which stages are enabled and resolves their descriptors. All
// configuration errors are returned together.
func (a *Assembler) plan(env Env) ([]planned, error) {
	var (
		enabled []Constructor
		sources int
		errs    error
	)
	for _, c := range a.registry.Constructors() {
		spec := c.Spec()
		on, err := c.Enabled(env.Config)
		if err != nil {
			errs = multierr.Append(errs, &ConfigurationError{Key: spec.Namespace + ".enabled", Err: err})
			continue
		}
		if !on {
			continue
		}
		if spec.Kind == kstage.KindSource {
			sources++
		}
		enabled = append(enabled, c)
	}
	if errs != nil {
		return nil, errs
	}
	if sources != 1 {
		return nil, &ConfigurationError{
			Key: "spout.test.enabled",
			Err: fmt.Errorf("%w: %d sources enabled", ErrSourceSelection, sources),
		}
	}

	plan := make([]planned, 0, len(enabled))
	names := map[string]kstage.ID{}
	for _, c := range enabled {
		spec := c.Spec()
		d, err := c.Resolve(env)
		if err != nil {
			errs = multierr.Append(errs, &ConfigurationError{Key: spec.Namespace, Err: err})
			continue
		}
		if other, taken := names[d.Name]; taken {
			errs = multierr.Append(errs, &ConfigurationError{
				Key: spec.Namespace + ".name",
				Err: fmt.Errorf("%w: %q is already used by %s", kdag.ErrNodeAlreadyExists, d.Name, other),
			})
			continue
		}
		names[d.Name] = spec.ID
		plan = append(plan, planned{constructor: c, descriptor: d})
	}
	if errs != nil {
		return nil, errs
	}
	return plan, nil
}

func (a *Assembler) construct(ctx context.Context, env Env, state State, p planned) (State, error) {
	if err := p.constructor.Build(ctx, env, p.descriptor); err != nil {
		return state, err
	}
	return p.constructor.Wire(state, p.descriptor)
}

func (a *Assembler) logStage(log logr.Logger, cfg *kconfig.Config, d kstage.Descriptor) {
	log.Info("Component initialized", "stage", d.Name, "id", d.ID, "kind", d.Kind,
		"parallelism", d.ParallelismHint, "tasks", d.TaskCount)

	if v := log.V(1); v.Enabled() {
		for _, key := range a.stageKeys(cfg, d.Namespace) {
			value, _ := cfg.Raw(key)
			v.Info("Component setting", "stage", d.Name, "key", key, "value", kstage.Mask(key, value))
		}
	}
}

// stageKeys returns the keys of namespace ns without those of stages nested
// below it, such as bolt.alerts.indexing below bolt.alerts.
func (a *Assembler) stageKeys(cfg *kconfig.Config, ns string) []string {
	var nested []string
	for _, c := range a.registry.Constructors() {
		if other := c.Spec().Namespace; strings.HasPrefix(other, ns+".") {
			nested = append(nested, other+".")
		}
	}

	var res []string
	for _, key := range cfg.Namespace(ns).Keys() {
		if !hasAnyPrefix(key, nested) {
			res = append(res, key)
		}
	}
	return res
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
