// Package embedded runs topologies inside the current process. It is the
// execution target of local mode.
package embedded

import (
	"context"
	"errors"
	"fmt"
	"runtime/pprof"
	"strconv"
	"sync"

	"github.com/birdayz/socflow/kdag"
	"github.com/birdayz/socflow/kstage"
	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
)

var (
	ErrDuplicateTopology = errors.New("topology already running")
	ErrUnknownTopology   = errors.New("unknown topology")
	ErrShutdown          = errors.New("cluster is shut down")
	ErrAlreadyRunning    = errors.New("cluster is already running")
)

type TopologyState string

const (
	StateSubmitted TopologyState = "SUBMITTED"
	StateRunning   TopologyState = "RUNNING"
	StateFailed    TopologyState = "FAILED"
	StateKilled    TopologyState = "KILLED"
	StateStopped   TopologyState = "STOPPED"
)

// Task is one parallel instance of a stage.
type Task struct {
	Topology string
	Stage    kstage.Descriptor
	Index    int
}

func (t Task) String() string {
	return fmt.Sprintf("%s/%s[%d]", t.Topology, t.Stage.Name, t.Index)
}

// TaskFunc is the body of a task. It runs until ctx is done or the task
// fails.
type TaskFunc func(ctx context.Context) error

// TaskFactory creates the body of every task.
type TaskFactory func(task Task) TaskFunc

// TopologyInfo describes a submitted topology.
type TopologyInfo struct {
	Name    string
	State   TopologyState
	Workers int
	Stages  int
	Tasks   int
}

type topology struct {
	name    string
	graph   *kdag.Graph
	workers int
	state   TopologyState

	cancel context.CancelFunc
	tasks  sync.WaitGroup
}

func (t *topology) taskCount() int {
	n := 0
	for _, s := range t.graph.Stages() {
		n += s.TaskCount
	}
	return n
}

// Cluster supervises the tasks of all submitted topologies. Every task runs
// in its own goroutine; the first failing task stops the cluster.
type Cluster struct {
	log     logr.Logger
	factory TaskFactory

	mu         sync.Mutex
	topologies map[string]*topology
	order      []string
	running    bool
	shutdown   bool
	ctx        context.Context
	cancel     context.CancelFunc
	eg         *errgroup.Group
}

// Option configures a Cluster.
type Option func(*Cluster)

// WithLogr sets the logger.
var WithLogr = func(log logr.Logger) Option {
	return func(c *Cluster) {
		c.log = log
	}
}

// WithTaskFactory sets the factory creating task bodies. By default tasks
// idle until they are stopped.
var WithTaskFactory = func(f TaskFactory) Option {
	return func(c *Cluster) {
		c.factory = f
	}
}

// NewCluster creates a cluster. Topologies may be submitted before and while
// it runs.
func NewCluster(opts ...Option) *Cluster {
	c := &Cluster{
		log:        logr.Discard(),
		topologies: map[string]*topology{},
	}
	c.factory = c.idle
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cluster) idle(task Task) TaskFunc {
	return func(ctx context.Context) error {
		c.log.V(1).Info("Task started", "task", task.String())
		<-ctx.Done()
		c.log.V(1).Info("Task stopped", "task", task.String())
		return nil
	}
}

// Submit adds a topology. Its tasks start right away if the cluster is
// running, otherwise with Run. workers is recorded but a single process
// runs every task.
func (c *Cluster) Submit(ctx context.Context, name string, graph *kdag.Graph, workers int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := graph.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown {
		return ErrShutdown
	}
	if _, exists := c.topologies[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTopology, name)
	}

	t := &topology{name: name, graph: graph.Clone(), workers: workers, state: StateSubmitted}
	c.topologies[name] = t
	c.order = append(c.order, name)
	c.log.Info("Topology submitted", "topology", name, "stages", graph.Len(), "tasks", t.taskCount(), "workers", workers)

	if c.running {
		c.start(t)
	}
	return nil
}

// Run starts all submitted topologies and blocks until ctx is done, Shutdown
// is called or a task fails. Only a task failure is returned as error.
func (c *Cluster) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return ErrShutdown
	}
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	eg, egCtx := errgroup.WithContext(runCtx)
	c.running, c.ctx, c.cancel, c.eg = true, egCtx, cancel, eg

	// Keeps the group alive while no topology has any task.
	eg.Go(func() error {
		<-egCtx.Done()
		return nil
	})
	for _, name := range c.order {
		c.start(c.topologies[name])
	}
	c.mu.Unlock()

	c.log.Info("Cluster running")
	err := eg.Wait()
	cancel()

	c.mu.Lock()
	for _, t := range c.topologies {
		if t.state == StateRunning {
			c.changeState(t, StateStopped)
		}
	}
	c.running = false
	c.mu.Unlock()

	c.log.Info("Cluster stopped")
	return err
}

// start launches the tasks of t. Must be called with c.mu held.
func (c *Cluster) start(t *topology) {
	ctx, cancel := context.WithCancel(c.ctx)
	t.cancel = cancel
	c.changeState(t, StateRunning)

	for _, stage := range t.graph.Stages() {
		for i := 0; i < stage.TaskCount; i++ {
			task := Task{Topology: t.name, Stage: stage, Index: i}
			t.tasks.Add(1)
			c.eg.Go(func() error {
				defer t.tasks.Done()
				return c.runTask(ctx, t, task)
			})
		}
	}
}

func (c *Cluster) runTask(ctx context.Context, t *topology, task Task) error {
	var err error
	labels := pprof.Labels("topology", t.name, "stage", task.Stage.Name, "task", strconv.Itoa(task.Index))
	pprof.Do(ctx, labels, func(ctx context.Context) {
		err = c.factory(task)(ctx)
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		// Stopped, not failed.
		return nil
	}

	c.mu.Lock()
	c.changeState(t, StateFailed)
	c.mu.Unlock()
	return fmt.Errorf("task %s failed: %w", task, err)
}

// changeState must be called with c.mu held.
func (c *Cluster) changeState(t *topology, state TopologyState) {
	c.log.Info("Change state", "topology", t.name, "from", string(t.state), "to", string(state))
	t.state = state
}

// Topologies returns all topologies in submission order.
func (c *Cluster) Topologies() []TopologyInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := make([]TopologyInfo, 0, len(c.order))
	for _, name := range c.order {
		t := c.topologies[name]
		res = append(res, TopologyInfo{
			Name:    t.name,
			State:   t.state,
			Workers: t.workers,
			Stages:  t.graph.Len(),
			Tasks:   t.taskCount(),
		})
	}
	return res
}

// Kill stops all tasks of the named topology and removes it. The name may be
// submitted again afterwards.
func (c *Cluster) Kill(name string) error {
	c.mu.Lock()
	t, ok := c.topologies[name]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTopology, name)
	}
	delete(c.topologies, name)
	for i, n := range c.order {
		if n == name {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	cancel := t.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		t.tasks.Wait()
	}

	c.mu.Lock()
	c.changeState(t, StateKilled)
	c.mu.Unlock()
	return nil
}

// Shutdown kills every topology and stops Run. Submit fails afterwards.
func (c *Cluster) Shutdown() {
	c.mu.Lock()
	c.shutdown = true
	names := append([]string{}, c.order...)
	cancel := c.cancel
	c.mu.Unlock()

	for _, name := range names {
		// Only fails for topologies killed concurrently.
		_ = c.Kill(name)
	}
	if cancel != nil {
		cancel()
	}
}
