// Package ksubmit hands assembled topologies to an execution target: the
// embedded cluster in local mode or a cluster manager in distributed mode.
package ksubmit

import (
	"fmt"
	"strings"

	"github.com/birdayz/socflow/kconfig"
)

// Mode selects the execution target.
type Mode int

const (
	// Distributed submits to a cluster manager and returns on acknowledgement.
	Distributed Mode = iota
	// Local runs the topology in-process until the context is done.
	Local
)

func (m Mode) String() string {
	switch m {
	case Local:
		return "local"
	case Distributed:
		return "distributed"
	default:
		return "unknown"
	}
}

// ParseMode parses "local" or "distributed".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local":
		return Local, nil
	case "distributed", "cluster":
		return Distributed, nil
	default:
		return 0, fmt.Errorf("unknown execution mode %q", s)
	}
}

// ExecutionConfig holds the execution parameters of a submission. They never
// change the graph structure.
type ExecutionConfig struct {
	Mode       Mode
	NumWorkers int

	// MaxTaskParallelism caps every stage's parallelism hint and task count.
	// Zero leaves them untouched.
	MaxTaskParallelism int

	Debug bool
}

// ExecutionConfigFor reads the execution parameters for mode from cfg. Both
// modes read num.workers; local mode caps task parallelism at one.
func ExecutionConfigFor(mode Mode, cfg *kconfig.Config) (ExecutionConfig, error) {
	workers, err := cfg.MustInt("num.workers")
	if err != nil {
		return ExecutionConfig{}, err
	}
	if workers <= 0 {
		return ExecutionConfig{}, fmt.Errorf("%w: num.workers %d must be positive", kconfig.ErrMalformedValue, workers)
	}
	debug, err := cfg.Bool("topology.debug", false)
	if err != nil {
		return ExecutionConfig{}, err
	}

	ec := ExecutionConfig{Mode: mode, NumWorkers: workers, Debug: debug}
	if mode == Local {
		ec.MaxTaskParallelism = 1
	}
	return ec, nil
}
