package embedded

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/birdayz/socflow/kdag"
	"github.com/birdayz/socflow/kstage"
)

func testGraph(t *testing.T, tasks int) *kdag.Graph {
	t.Helper()
	g := kdag.NewGraph()
	assert.NoError(t, g.AddStage(kstage.Descriptor{
		Name: "source", Kind: kstage.KindSource, ParallelismHint: 1, TaskCount: tasks,
		Settings: kstage.GeneratorSettings{Repeating: true},
	}))
	assert.NoError(t, g.AddStage(kstage.Descriptor{
		Name: "parser", Kind: kstage.KindParser, ParallelismHint: 1, TaskCount: tasks,
		Settings: kstage.ParserSettings{Format: "bro"},
	}))
	assert.NoError(t, g.AddEdge(kdag.Edge{From: "source", To: "parser"}))
	return g
}

// recorder counts running tasks and signals every start.
type recorder struct {
	running atomic.Int32
	started chan Task
	fail    func(Task) error
}

func newRecorder() *recorder {
	return &recorder{started: make(chan Task, 100)}
}

func (r *recorder) factory(task Task) TaskFunc {
	return func(ctx context.Context) error {
		r.running.Add(1)
		defer r.running.Add(-1)
		r.started <- task
		if r.fail != nil {
			if err := r.fail(task); err != nil {
				return err
			}
		}
		<-ctx.Done()
		return ctx.Err()
	}
}

func (r *recorder) await(t *testing.T, n int) []Task {
	t.Helper()
	var tasks []Task
	for i := 0; i < n; i++ {
		select {
		case task := <-r.started:
			tasks = append(tasks, task)
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d of %d tasks started", i, n)
		}
	}
	return tasks
}

func runAsync(ctx context.Context, c *Cluster) chan error {
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx)
	}()
	return done
}

func wait(t *testing.T, done chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("cluster did not stop")
		return nil
	}
}

func TestCluster(t *testing.T) {
	t.Run("runs every task until cancelled", func(t *testing.T) {
		rec := newRecorder()
		c := NewCluster(WithTaskFactory(rec.factory))
		assert.NoError(t, c.Submit(context.Background(), "bro", testGraph(t, 2), 3))

		ctx, cancel := context.WithCancel(context.Background())
		done := runAsync(ctx, c)
		tasks := rec.await(t, 4)
		assert.Equal(t, int32(4), rec.running.Load())
		for _, task := range tasks {
			assert.Equal(t, "bro", task.Topology)
		}
		assert.Equal(t, []TopologyInfo{{Name: "bro", State: StateRunning, Workers: 3, Stages: 2, Tasks: 4}}, c.Topologies())

		cancel()
		assert.NoError(t, wait(t, done))
		assert.Equal(t, int32(0), rec.running.Load())
		assert.Equal(t, StateStopped, c.Topologies()[0].State)
	})

	t.Run("duplicate name", func(t *testing.T) {
		c := NewCluster()
		assert.NoError(t, c.Submit(context.Background(), "bro", testGraph(t, 1), 1))
		err := c.Submit(context.Background(), "bro", testGraph(t, 1), 1)
		assert.True(t, errors.Is(err, ErrDuplicateTopology))
	})

	t.Run("invalid graph", func(t *testing.T) {
		c := NewCluster()
		err := c.Submit(context.Background(), "bro", kdag.NewGraph(), 1)
		assert.True(t, errors.Is(err, kdag.ErrInvalidTopology))
		assert.Equal(t, 0, len(c.Topologies()))
	})

	t.Run("failing task stops the cluster", func(t *testing.T) {
		rec := newRecorder()
		rec.fail = func(task Task) error {
			if task.Stage.Name == "parser" {
				return errors.New("parse error")
			}
			return nil
		}
		c := NewCluster(WithTaskFactory(rec.factory))
		assert.NoError(t, c.Submit(context.Background(), "bro", testGraph(t, 1), 1))

		err := wait(t, runAsync(context.Background(), c))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "bro/parser[0]")
		assert.Contains(t, err.Error(), "parse error")
		assert.Equal(t, StateFailed, c.Topologies()[0].State)
	})

	t.Run("submit while running", func(t *testing.T) {
		rec := newRecorder()
		c := NewCluster(WithTaskFactory(rec.factory))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		done := runAsync(ctx, c)

		// Run may not have started yet; either way the tasks start.
		assert.NoError(t, c.Submit(context.Background(), "late", testGraph(t, 1), 1))
		rec.await(t, 2)

		cancel()
		assert.NoError(t, wait(t, done))
	})

	t.Run("kill", func(t *testing.T) {
		rec := newRecorder()
		c := NewCluster(WithTaskFactory(rec.factory))
		assert.NoError(t, c.Submit(context.Background(), "a", testGraph(t, 1), 1))
		assert.NoError(t, c.Submit(context.Background(), "b", testGraph(t, 1), 1))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		done := runAsync(ctx, c)
		rec.await(t, 4)

		assert.NoError(t, c.Kill("a"))
		assert.Equal(t, int32(2), rec.running.Load())
		assert.Equal(t, 1, len(c.Topologies()))
		assert.Equal(t, "b", c.Topologies()[0].Name)
		assert.True(t, errors.Is(c.Kill("a"), ErrUnknownTopology))

		// Killed names are free again.
		assert.NoError(t, c.Submit(context.Background(), "a", testGraph(t, 1), 1))
		rec.await(t, 2)

		cancel()
		assert.NoError(t, wait(t, done))
	})

	t.Run("shutdown", func(t *testing.T) {
		rec := newRecorder()
		c := NewCluster(WithTaskFactory(rec.factory))
		assert.NoError(t, c.Submit(context.Background(), "bro", testGraph(t, 1), 1))
		done := runAsync(context.Background(), c)
		rec.await(t, 2)

		c.Shutdown()
		assert.NoError(t, wait(t, done))
		assert.Equal(t, 0, len(c.Topologies()))
		assert.True(t, errors.Is(c.Submit(context.Background(), "bro", testGraph(t, 1), 1), ErrShutdown))
		assert.True(t, errors.Is(c.Run(context.Background()), ErrShutdown))
	})

	t.Run("run twice", func(t *testing.T) {
		rec := newRecorder()
		c := NewCluster(WithTaskFactory(rec.factory))
		assert.NoError(t, c.Submit(context.Background(), "bro", testGraph(t, 1), 1))
		ctx, cancel := context.WithCancel(context.Background())
		done := runAsync(ctx, c)
		rec.await(t, 2)

		assert.True(t, errors.Is(c.Run(ctx), ErrAlreadyRunning))
		cancel()
		assert.NoError(t, wait(t, done))
	})

	t.Run("default tasks idle", func(t *testing.T) {
		c := NewCluster()
		assert.NoError(t, c.Submit(context.Background(), "bro", testGraph(t, 1), 1))
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		assert.NoError(t, c.Run(ctx))
	})
}
