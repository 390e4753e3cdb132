package ksubmit

import (
	"context"
	"errors"
	"fmt"

	"github.com/birdayz/socflow/internal/embedded"
)

// LocalTarget runs submissions on an embedded cluster.
type LocalTarget struct {
	cluster *embedded.Cluster
}

func NewLocalTarget(cluster *embedded.Cluster) *LocalTarget {
	return &LocalTarget{cluster: cluster}
}

// Submit starts the topology and supervises the cluster until ctx is done or
// a task fails. The cluster is shut down on return.
func (t *LocalTarget) Submit(ctx context.Context, sub Submission) error {
	if err := t.cluster.Submit(ctx, sub.Name, sub.Graph, sub.Config.NumWorkers); err != nil {
		if errors.Is(err, embedded.ErrDuplicateTopology) {
			return fmt.Errorf("%w: %w", ErrDuplicateTopology, err)
		}
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}
	defer t.cluster.Shutdown()
	return t.cluster.Run(ctx)
}
