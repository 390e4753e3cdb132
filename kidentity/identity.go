// Package kidentity derives the runtime identity of a topology from its
// environment and topology identifier documents.
package kidentity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrMissingIdentifier is returned when an identifier document is absent,
// unreadable or incomplete.
var ErrMissingIdentifier = errors.New("missing identifier")

// Environment identifies the deployment environment.
type Environment struct {
	Customer   string `yaml:"customer" json:"customer"`
	Datacenter string `yaml:"datacenter" json:"datacenter"`
	Instance   string `yaml:"instance" json:"instance"`
}

// Topology identifies one topology inside an environment.
type Topology struct {
	Topology         string `yaml:"topology" json:"topology"`
	TopologyInstance string `yaml:"topology_instance" json:"topology_instance"`
}

// Identity is the pair of identifier documents of a topology.
type Identity struct {
	Environment Environment
	Topology    Topology
}

// Paths returns the locations of the environment and topology identifier
// documents below configPath.
func Paths(configPath, subdir string) (env, topo string) {
	return filepath.Join(configPath, "topologies", "environment_identifier.conf"),
		filepath.Join(configPath, "topologies", subdir, "topology_identifier.conf")
}

// Load reads both identifier documents for the topology in subdir.
func Load(configPath, subdir string) (Identity, error) {
	envPath, topoPath := Paths(configPath, subdir)

	var id Identity
	if err := decodeFile(envPath, &id.Environment); err != nil {
		return Identity{}, err
	}
	if err := decodeFile(topoPath, &id.Topology); err != nil {
		return Identity{}, err
	}
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// Parse decodes identifier documents from memory. JSON and YAML are accepted.
func Parse(env, topo []byte) (Identity, error) {
	var id Identity
	if err := yaml.Unmarshal(env, &id.Environment); err != nil {
		return Identity{}, fmt.Errorf("%w: environment: %v", ErrMissingIdentifier, err)
	}
	if err := yaml.Unmarshal(topo, &id.Topology); err != nil {
		return Identity{}, fmt.Errorf("%w: topology: %v", ErrMissingIdentifier, err)
	}
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}

func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMissingIdentifier, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMissingIdentifier, path, err)
	}
	return nil
}

// Validate checks that every identifier field is set.
func (id Identity) Validate() error {
	fields := []struct{ name, value string }{
		{"customer", id.Environment.Customer},
		{"datacenter", id.Environment.Datacenter},
		{"instance", id.Environment.Instance},
		{"topology", id.Topology.Topology},
		{"topology_instance", id.Topology.TopologyInstance},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: field %q is empty", ErrMissingIdentifier, f.name)
		}
	}
	return nil
}

// TopologyName is the submission name of the topology. It is also used to
// name the output fields of enrichment stages.
func (id Identity) TopologyName() string {
	parts := []string{
		id.Environment.Customer,
		id.Environment.Datacenter,
		id.Environment.Instance,
		id.Topology.Topology,
		id.Topology.TopologyInstance,
	}
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return strings.Join(parts, "_")
}

// AlertsIdentifier is attached to every alert raised by the topology for
// correlation.
func (id Identity) AlertsIdentifier() map[string]map[string]string {
	return map[string]map[string]string{
		"environment": {
			"customer":   id.Environment.Customer,
			"datacenter": id.Environment.Datacenter,
			"instance":   id.Environment.Instance,
		},
		"topology": {
			"topology":          id.Topology.Topology,
			"topology_instance": id.Topology.TopologyInstance,
		},
	}
}
