package ksubmit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/birdayz/socflow/internal/embedded"
	"github.com/birdayz/socflow/kdag"
	"github.com/birdayz/socflow/kmetrics"
	"github.com/birdayz/socflow/kstage"
	"github.com/go-logr/logr/testr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testGraph(t *testing.T) *kdag.Graph {
	t.Helper()
	g := kdag.NewGraph()
	assert.NoError(t, g.AddStage(kstage.Descriptor{
		Name: "source", Kind: kstage.KindSource, ParallelismHint: 2, TaskCount: 4,
		Settings: kstage.GeneratorSettings{Repeating: true},
	}))
	assert.NoError(t, g.AddStage(kstage.Descriptor{
		Name: "parser", Kind: kstage.KindParser, ParallelismHint: 2, TaskCount: 4,
		Settings: kstage.ParserSettings{Format: "bro"},
	}))
	assert.NoError(t, g.AddEdge(kdag.Edge{From: "source", To: "parser", Grouping: kdag.GroupingShuffle}))
	return g
}

type fakeTarget struct {
	subs []Submission
	err  error
}

func (f *fakeTarget) Submit(_ context.Context, sub Submission) error {
	f.subs = append(f.subs, sub)
	return f.err
}

func TestSubmitter(t *testing.T) {
	t.Run("routes by mode", func(t *testing.T) {
		local, dist := &fakeTarget{}, &fakeTarget{}
		s := NewSubmitter(WithTarget(Local, local), WithTarget(Distributed, dist), WithLogr(testr.New(t)))

		assert.NoError(t, s.Submit(context.Background(), "topo", testGraph(t), ExecutionConfig{Mode: Distributed, NumWorkers: 2}))
		assert.Equal(t, 0, len(local.subs))
		assert.Equal(t, 1, len(dist.subs))

		sub := dist.subs[0]
		assert.Equal(t, "topo", sub.Name)
		assert.Equal(t, 2, sub.Config.NumWorkers)
		assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", sub.ID.String())
	})

	t.Run("mode does not change structure", func(t *testing.T) {
		local, dist := &fakeTarget{}, &fakeTarget{}
		s := NewSubmitter(WithTarget(Local, local), WithTarget(Distributed, dist))
		g := testGraph(t)

		assert.NoError(t, s.Submit(context.Background(), "topo", g, ExecutionConfig{Mode: Local, NumWorkers: 1, MaxTaskParallelism: 1}))
		assert.NoError(t, s.Submit(context.Background(), "topo", g, ExecutionConfig{Mode: Distributed, NumWorkers: 1}))

		l, d := local.subs[0].Graph, dist.subs[0].Graph
		assert.Equal(t, d.NodeOrder, l.NodeOrder)
		assert.Equal(t, d.Edges, l.Edges)
		for _, s := range l.Stages() {
			assert.Equal(t, 1, s.ParallelismHint)
			assert.Equal(t, 1, s.TaskCount)
		}
		for _, s := range d.Stages() {
			assert.Equal(t, 2, s.ParallelismHint)
			assert.Equal(t, 4, s.TaskCount)
		}
		// The caller's graph is untouched.
		assert.Equal(t, 4, g.Stages()[0].TaskCount)
	})

	t.Run("target failure", func(t *testing.T) {
		dist := &fakeTarget{err: ErrDuplicateTopology}
		s := NewSubmitter(WithTarget(Distributed, dist))

		err := s.Submit(context.Background(), "topo", testGraph(t), ExecutionConfig{Mode: Distributed, NumWorkers: 1})
		var subErr *SubmissionError
		assert.True(t, errors.As(err, &subErr))
		assert.Equal(t, "topo", subErr.Topology)
		assert.Equal(t, Distributed, subErr.Mode)
		assert.True(t, errors.Is(err, ErrDuplicateTopology))
		// No retry.
		assert.Equal(t, 1, len(dist.subs))
	})

	t.Run("no distributed target", func(t *testing.T) {
		s := NewSubmitter()
		err := s.Submit(context.Background(), "topo", testGraph(t), ExecutionConfig{Mode: Distributed, NumWorkers: 1})
		assert.True(t, errors.Is(err, ErrNoTarget))
	})

	t.Run("invalid graph", func(t *testing.T) {
		dist := &fakeTarget{}
		s := NewSubmitter(WithTarget(Distributed, dist))
		err := s.Submit(context.Background(), "topo", kdag.NewGraph(), ExecutionConfig{Mode: Distributed, NumWorkers: 1})
		assert.True(t, errors.Is(err, ErrRejected))
		assert.True(t, errors.Is(err, kdag.ErrInvalidTopology))
		assert.Equal(t, 0, len(dist.subs))
	})

	t.Run("records metrics", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		m, err := kmetrics.New(reg)
		assert.NoError(t, err)

		dist := &fakeTarget{}
		s := NewSubmitter(WithTarget(Distributed, dist), WithMetrics(m))
		assert.NoError(t, s.Submit(context.Background(), "topo", testGraph(t), ExecutionConfig{Mode: Distributed, NumWorkers: 1}))
		dist.err = ErrRejected
		assert.Error(t, s.Submit(context.Background(), "topo", testGraph(t), ExecutionConfig{Mode: Distributed, NumWorkers: 1}))

		assert.Equal(t, 2, testutil.CollectAndCount(reg, "socflow_submit_submissions_total"))
	})
}

func TestLocalTarget(t *testing.T) {
	t.Run("runs until cancelled", func(t *testing.T) {
		started := make(chan embedded.Task, 16)
		cluster := embedded.NewCluster(embedded.WithTaskFactory(func(task embedded.Task) embedded.TaskFunc {
			return func(ctx context.Context) error {
				started <- task
				<-ctx.Done()
				return ctx.Err()
			}
		}))
		s := NewSubmitter(WithTarget(Local, NewLocalTarget(cluster)))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- s.Submit(ctx, "topo", testGraph(t), ExecutionConfig{Mode: Local, NumWorkers: 1, MaxTaskParallelism: 1})
		}()

		// One task per stage after capping.
		for i := 0; i < 2; i++ {
			select {
			case <-started:
			case <-time.After(5 * time.Second):
				t.Fatal("task did not start")
			}
		}
		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("local submission did not return")
		}
	})

	t.Run("task failure", func(t *testing.T) {
		boom := errors.New("boom")
		cluster := embedded.NewCluster(embedded.WithTaskFactory(func(task embedded.Task) embedded.TaskFunc {
			return func(ctx context.Context) error {
				if task.Stage.Name == "parser" {
					return boom
				}
				<-ctx.Done()
				return ctx.Err()
			}
		}))
		target := NewLocalTarget(cluster)
		err := target.Submit(context.Background(), Submission{Name: "topo", Graph: testGraph(t), Config: ExecutionConfig{Mode: Local, NumWorkers: 1}})
		assert.True(t, errors.Is(err, boom))
	})

	t.Run("invalid graph", func(t *testing.T) {
		target := NewLocalTarget(embedded.NewCluster())
		err := target.Submit(context.Background(), Submission{Name: "topo", Graph: kdag.NewGraph(), Config: ExecutionConfig{Mode: Local, NumWorkers: 1}})
		assert.True(t, errors.Is(err, ErrRejected))
	})
}
