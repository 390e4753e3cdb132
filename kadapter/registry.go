package kadapter

import (
	"context"
	"fmt"
	"time"

	"github.com/birdayz/socflow/kconfig"
	"github.com/birdayz/socflow/kstage"
	"go.uber.org/multierr"
)

// Probe checks at build time that a backend can be reached with params.
type Probe func(ctx context.Context, params map[string]string) error

// Factory describes one adapter type.
type Factory struct {
	Type string
	Role Role

	// Required configuration keys copied into the adapter parameters.
	Required []string

	// Probe is optional. It only runs when the registry has probing enabled.
	Probe Probe
}

// Registry resolves adapter types to construction parameters.
//
// Registry is NOT safe for concurrent registration; resolving is read-only.
type Registry struct {
	factories map[string]Factory
	probe     bool
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithProbes makes Probe run each factory's Probe. Without it Probe is a
// no-op.
var WithProbes = func(enabled bool) RegistryOption {
	return func(r *Registry) {
		r.probe = enabled
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{factories: map[string]Factory{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DefaultRegistry registers every built-in adapter type. dialTimeout bounds
// the reachability probes of remote backends.
func DefaultRegistry(dialTimeout time.Duration, opts ...RegistryOption) *Registry {
	r := NewRegistry(opts...)
	zk := []string{"kafka.zk.list", "kafka.zk.port"}
	for _, f := range []Factory{
		{
			Type:     "mysql",
			Role:     RoleEnrichment,
			Required: []string{"mysql.ip", "mysql.port", "mysql.username", "mysql.password"},
			Probe:    DialProbe("mysql.ip", "mysql.port", dialTimeout),
		},
		{
			Type:  "properties",
			Role:  RoleEnrichment,
			Probe: HostsFileProbe("known_hosts"),
		},
		{
			Type:     "hbase",
			Role:     RoleEnrichment,
			Required: zk,
			Probe:    DialProbe("kafka.zk.list", "kafka.zk.port", dialTimeout),
		},
		{
			Type:     "cif-hbase",
			Role:     RoleEnrichment,
			Required: zk,
			Probe:    DialProbe("kafka.zk.list", "kafka.zk.port", dialTimeout),
		},
		{
			Type:     "hbase-lists",
			Role:     RoleAlerts,
			Required: zk,
			Probe:    DialProbe("kafka.zk.list", "kafka.zk.port", dialTimeout),
		},
		{
			Type:     "elasticsearch",
			Role:     RoleIndex,
			Required: []string{"es.ip", "es.port", "es.clustername"},
			Probe:    DialProbe("es.ip", "es.port", dialTimeout),
		},
		{
			Type:     "kafka",
			Role:     RoleIndex,
			Required: []string{"kafka.br"},
			Probe:    KafkaPingProbe("kafka.br", dialTimeout),
		},
	} {
		// Built-in types are unique.
		_ = r.Register(f)
	}
	return r
}

// Register adds a factory. Registering a type twice is an error.
func (r *Registry) Register(f Factory) error {
	if f.Type == "" {
		return fmt.Errorf("%w: empty type", ErrUnknownAdapter)
	}
	if _, exists := r.factories[f.Type]; exists {
		return fmt.Errorf("adapter type %q already registered", f.Type)
	}
	r.factories[f.Type] = f
	return nil
}

// Types returns the registered types for role.
func (r *Registry) Types(role Role) []string {
	var res []string
	for t, f := range r.factories {
		if f.Role == role {
			res = append(res, t)
		}
	}
	return sortStrings(res)
}

// Resolve builds the construction parameters of an adapter of type typ for
// role. Required keys are read from cfg; extra holds stage specific
// parameters and wins over cfg. All missing keys are reported together.
func (r *Registry) Resolve(role Role, typ string, cfg *kconfig.Config, extra map[string]string) (kstage.AdapterSpec, error) {
	f, err := r.factory(typ)
	if err != nil {
		return kstage.AdapterSpec{}, err
	}
	if f.Role != role {
		return kstage.AdapterSpec{}, fmt.Errorf("%w: %q provides %s, not %s", ErrUnknownAdapter, typ, f.Role, role)
	}

	params := make(map[string]string, len(f.Required)+len(extra))
	var errs error
	for _, key := range f.Required {
		v, err := cfg.MustString(key)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		params[key] = v
	}
	if errs != nil {
		return kstage.AdapterSpec{}, errs
	}
	for k, v := range extra {
		params[k] = v
	}
	return kstage.AdapterSpec{Type: typ, Params: params}, nil
}

// Probe checks that the backend of spec can be reached. It is a no-op unless
// the registry was created WithProbes(true) and the factory has a Probe.
func (r *Registry) Probe(ctx context.Context, spec kstage.AdapterSpec) error {
	f, err := r.factory(spec.Type)
	if err != nil {
		return err
	}
	if !r.probe || f.Probe == nil {
		return nil
	}
	if err := f.Probe(ctx, spec.Params); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrAdapter, spec.Type, err)
	}
	return nil
}

func (r *Registry) factory(typ string) (Factory, error) {
	f, ok := r.factories[typ]
	if !ok {
		return Factory{}, fmt.Errorf("%w: %q", ErrUnknownAdapter, typ)
	}
	return f, nil
}
