package ksubmit

import (
	"context"
	"errors"
	"fmt"

	"github.com/birdayz/socflow/internal/embedded"
	"github.com/birdayz/socflow/kdag"
	"github.com/birdayz/socflow/kmetrics"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

var (
	// ErrDuplicateTopology is returned when a topology of the same name is
	// already running.
	ErrDuplicateTopology = errors.New("topology already running")
	// ErrRejected is returned when the target refuses the topology.
	ErrRejected = errors.New("topology rejected")
	// ErrNoTarget is returned when no target serves the requested mode.
	ErrNoTarget = errors.New("no execution target")
)

// SubmissionError reports a failed submission. Submissions are never retried.
type SubmissionError struct {
	Topology string
	Mode     Mode
	ID       uuid.UUID
	Err      error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("failed to submit topology %s (%s, submission %s): %v", e.Topology, e.Mode, e.ID, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// Submission is what a target receives.
type Submission struct {
	ID     uuid.UUID
	Name   string
	Graph  *kdag.Graph
	Config ExecutionConfig
}

// Target executes submissions.
type Target interface {
	Submit(ctx context.Context, sub Submission) error
}

// Submitter routes topologies to the target of their execution mode.
type Submitter struct {
	targets map[Mode]Target
	log     logr.Logger
	metrics kmetrics.Recorder
	newID   func() uuid.UUID
}

// SubmitterOption configures a Submitter.
type SubmitterOption func(*Submitter)

// WithLogr sets the logger.
var WithLogr = func(log logr.Logger) SubmitterOption {
	return func(s *Submitter) {
		s.log = log
	}
}

// WithTarget sets the target serving mode.
var WithTarget = func(mode Mode, t Target) SubmitterOption {
	return func(s *Submitter) {
		s.targets[mode] = t
	}
}

// WithMetrics sets the metrics recorder.
var WithMetrics = func(m kmetrics.Recorder) SubmitterOption {
	return func(s *Submitter) {
		s.metrics = m
	}
}

// NewSubmitter creates a submitter. Local mode is served by a fresh embedded
// cluster unless WithTarget overrides it; distributed mode has no default.
func NewSubmitter(opts ...SubmitterOption) *Submitter {
	s := &Submitter{
		targets: map[Mode]Target{},
		log:     logr.Discard(),
		metrics: kmetrics.Nop(),
		newID:   uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, ok := s.targets[Local]; !ok {
		s.targets[Local] = NewLocalTarget(embedded.NewCluster(embedded.WithLogr(s.log.WithName("embedded"))))
	}
	return s
}

// Submit hands graph to the target of exec.Mode. In local mode it blocks
// until ctx is done; in distributed mode it returns once the cluster manager
// acknowledged the topology.
func (s *Submitter) Submit(ctx context.Context, name string, graph *kdag.Graph, exec ExecutionConfig) error {
	sub := Submission{
		ID:     s.newID(),
		Name:   name,
		Graph:  graph,
		Config: exec,
	}
	if exec.MaxTaskParallelism > 0 {
		sub.Graph = graph.WithMaxParallelism(exec.MaxTaskParallelism)
	}

	log := s.log.WithValues("topology", name, "mode", exec.Mode.String(), "submission", sub.ID.String())

	err := s.submit(ctx, sub, log)
	s.metrics.Submitted(exec.Mode.String(), err)
	if err != nil {
		log.Error(err, "Submission failed")
		return &SubmissionError{Topology: name, Mode: exec.Mode, ID: sub.ID, Err: err}
	}
	return nil
}

func (s *Submitter) submit(ctx context.Context, sub Submission, log logr.Logger) error {
	target, ok := s.targets[sub.Config.Mode]
	if !ok {
		return fmt.Errorf("%w for %s mode", ErrNoTarget, sub.Config.Mode)
	}
	if err := sub.Graph.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}

	log.Info("Submitting topology", "stages", sub.Graph.Len(), "workers", sub.Config.NumWorkers,
		"maxTaskParallelism", sub.Config.MaxTaskParallelism, "debug", sub.Config.Debug)
	if err := target.Submit(ctx, sub); err != nil {
		return err
	}
	log.Info("Topology submitted")
	return nil
}
