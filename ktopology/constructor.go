package ktopology

import (
	"context"
	"fmt"

	"github.com/birdayz/socflow/kadapter"
	"github.com/birdayz/socflow/kconfig"
	"github.com/birdayz/socflow/kdag"
	"github.com/birdayz/socflow/kidentity"
	"github.com/birdayz/socflow/kstage"
	"go.uber.org/multierr"
)

// Env is everything a constructor resolves a stage from.
type Env struct {
	Config   *kconfig.Config
	Identity kidentity.Identity

	// ConfigPath and Subdir locate the files stages default to, such as the
	// known hosts file and the alert rules.
	ConfigPath string
	Subdir     string

	Adapters *kadapter.Registry

	// Topics is optional. When set, ingestion topics are checked for
	// existence while the source is built.
	Topics kadapter.TopicChecker
}

// State is the value threaded through the assembly steps. Each successful
// step returns a new State; the previous one is never modified.
type State struct {
	Graph   *kdag.Graph
	Tracker Tracker
}

// NewState returns the state of an empty topology.
func NewState() State {
	return State{Graph: kdag.NewGraph()}
}

// Constructor turns one catalog entry into a wired stage.
type Constructor interface {
	// Spec returns the catalog entry the constructor builds.
	Spec() kstage.Spec

	// Enabled reports whether the stage is part of the topology.
	Enabled(cfg *kconfig.Config) (bool, error)

	// Resolve reads the stage configuration and returns its descriptor. It
	// performs no I/O; any error is a configuration error.
	Resolve(env Env) (kstage.Descriptor, error)

	// Build constructs the backing resources of the stage, e.g. probes its
	// adapter backend.
	Build(ctx context.Context, env Env, d kstage.Descriptor) error

	// Wire adds d to the graph with its inbound edges and returns the
	// updated state.
	Wire(s State, d kstage.Descriptor) (State, error)
}

type (
	settingsFunc    func(env Env, ns kconfig.Namespace) (kstage.Settings, error)
	buildFunc       func(ctx context.Context, env Env, d kstage.Descriptor) error
	enabledFunc     func(cfg *kconfig.Config) (bool, error)
	parallelismFunc func(env Env, ns kconfig.Namespace) (hint, tasks int, err error)
)

// stage is the Constructor of every built-in catalog entry. Only settings
// resolution and resource construction differ between stages; enablement,
// naming, parallelism and wiring follow the catalog entry.
type stage struct {
	spec        kstage.Spec
	settings    settingsFunc
	build       buildFunc
	enabled     enabledFunc
	parallelism parallelismFunc
}

func (s *stage) Spec() kstage.Spec {
	return s.spec
}

func (s *stage) Enabled(cfg *kconfig.Config) (bool, error) {
	if s.enabled != nil {
		return s.enabled(cfg)
	}
	return cfg.Bool(s.spec.Namespace+".enabled", s.spec.DefaultEnabled)
}

func (s *stage) Resolve(env Env) (kstage.Descriptor, error) {
	ns := env.Config.Namespace(s.spec.Namespace)
	if err := checkRequired(env.Config, ns, s.spec); err != nil {
		return kstage.Descriptor{}, err
	}

	parallelism := s.parallelism
	if parallelism == nil {
		parallelism = ownParallelism
	}
	hint, tasks, err := parallelism(env, ns)
	if err != nil {
		return kstage.Descriptor{}, err
	}

	settings, err := s.settings(env, ns)
	if err != nil {
		return kstage.Descriptor{}, err
	}

	d := kstage.Descriptor{
		Name:            ns.String("name", s.spec.DefaultName),
		ID:              s.spec.ID,
		Kind:            s.spec.Kind,
		Namespace:       s.spec.Namespace,
		ParallelismHint: hint,
		TaskCount:       tasks,
		Settings:        settings,
	}
	if err := d.Validate(); err != nil {
		return kstage.Descriptor{}, err
	}
	return d, nil
}

func (s *stage) Build(ctx context.Context, env Env, d kstage.Descriptor) error {
	if s.build == nil {
		return nil
	}
	return s.build(ctx, env, d)
}

func (s *stage) Wire(st State, d kstage.Descriptor) (State, error) {
	name := kdag.NodeID(d.Name)

	var inbound []kdag.Edge
	switch s.spec.Wiring {
	case kstage.WireNone:
	case kstage.WireProducer:
		producer, ok := st.Tracker.CurrentProducer()
		if !ok {
			return st, fmt.Errorf("%w: nothing to attach %s to", ErrMissingUpstream, d.Name)
		}
		inbound = append(inbound, kdag.Edge{From: producer, To: name, Grouping: kdag.GroupingShuffle})
	case kstage.WireAlertStream:
		alerts, ok := st.Graph.FindByID(kstage.Alerts)
		if !ok {
			return st, fmt.Errorf("%w: alerting stage is not part of the topology", ErrMissingUpstream)
		}
		inbound = append(inbound, kdag.Edge{
			From:     kdag.NodeID(alerts.Name),
			To:       name,
			Grouping: kdag.GroupingShuffle,
			Stream:   kdag.StreamAlert,
		})
	case kstage.WireErrorFanIn:
		active := st.Tracker.ActiveSet()
		if len(active) == 0 {
			return st, fmt.Errorf("%w: no active stage emits errors", ErrMissingUpstream)
		}
		for _, from := range active {
			inbound = append(inbound, kdag.Edge{
				From:     from,
				To:       name,
				Grouping: kdag.GroupingShuffle,
				Stream:   kdag.StreamError,
			})
		}
	default:
		return st, fmt.Errorf("unknown wiring %s for %s", s.spec.Wiring, d.Name)
	}

	g := st.Graph.Clone()
	if err := g.AddStage(d); err != nil {
		return st, err
	}
	for _, e := range inbound {
		if err := g.AddEdge(e); err != nil {
			return st, err
		}
	}

	t := st.Tracker
	if advancesProducer(s.spec) {
		t = t.Advance(name)
	}
	if s.spec.Active {
		t = t.MarkActive(name)
	}
	return State{Graph: g, Tracker: t}, nil
}

// advancesProducer reports whether the next stage attaches to a stage built
// from spec. Sinks, primary indexing and side channel stages never become
// the producer.
func advancesProducer(spec kstage.Spec) bool {
	switch spec.Wiring {
	case kstage.WireNone, kstage.WireProducer:
		return !spec.Terminal
	default:
		return false
	}
}

func checkRequired(cfg *kconfig.Config, ns kconfig.Namespace, spec kstage.Spec) error {
	var errs error
	for _, key := range spec.RequiredKeys {
		if _, err := ns.MustString(key); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	for _, key := range spec.GlobalKeys {
		if _, err := cfg.MustString(key); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func ownParallelism(env Env, ns kconfig.Namespace) (int, int, error) {
	hint, err := ns.MustInt("parallelism.hint")
	if err != nil {
		return 0, 0, err
	}
	tasks, err := ns.MustInt("num.tasks")
	if err != nil {
		return 0, 0, err
	}
	return hint, tasks, nil
}

// fallbackParallelism reads parallelism from the stage namespace and falls
// back to the namespace at prefix for keys the stage does not set.
func fallbackParallelism(prefix string) parallelismFunc {
	return func(env Env, ns kconfig.Namespace) (int, int, error) {
		fallback := env.Config.Namespace(prefix)
		get := func(key string) (int, error) {
			if ns.Has(key) {
				return ns.MustInt(key)
			}
			return fallback.MustInt(key)
		}
		hint, err := get("parallelism.hint")
		if err != nil {
			return 0, 0, err
		}
		tasks, err := get("num.tasks")
		if err != nil {
			return 0, 0, err
		}
		return hint, tasks, nil
	}
}
