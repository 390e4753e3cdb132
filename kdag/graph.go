package kdag

import (
	"errors"
	"fmt"
	"strings"

	"github.com/birdayz/socflow/kstage"
)

// Sentinel errors for common failure cases.
var (
	ErrNodeAlreadyExists = errors.New("node already exists")
	ErrNodeNotFound      = errors.New("node not found")
	ErrCycleDetected     = errors.New("cycle detected in DAG")
	ErrOrphanedNodes     = errors.New("orphaned nodes found")
	ErrInvalidNodeID     = errors.New("invalid node ID")
	ErrInvalidTopology   = errors.New("invalid topology")
)

// NodeID is a strongly-typed identifier for graph nodes. It is the stage
// name. NodeIDs must be non-empty and cannot contain whitespace.
type NodeID string

// Validate checks if the NodeID is valid.
// Returns ErrInvalidNodeID if the ID is empty or contains whitespace.
func (id NodeID) Validate() error {
	if id == "" {
		return fmt.Errorf("%w: NodeID cannot be empty", ErrInvalidNodeID)
	}
	if strings.ContainsAny(string(id), " \t\n\r") {
		return fmt.Errorf("%w: NodeID %q cannot contain whitespace", ErrInvalidNodeID, id)
	}
	return nil
}

// Grouping is the policy distributing upstream output across the parallel
// instances of the downstream stage.
type Grouping int

const (
	GroupingShuffle Grouping = iota
)

func (g Grouping) String() string {
	switch g {
	case GroupingShuffle:
		return "shuffle"
	default:
		return "unknown"
	}
}

// MarshalText encodes the grouping by name.
func (g Grouping) MarshalText() ([]byte, error) {
	if g != GroupingShuffle {
		return nil, fmt.Errorf("unknown grouping %d", int(g))
	}
	return []byte(g.String()), nil
}

// Stream selects a named output channel of the upstream stage. The zero value
// is the default stream.
type Stream string

const (
	StreamDefault Stream = ""
	StreamError   Stream = "error"
	StreamAlert   Stream = "alert"
)

func (s Stream) String() string {
	if s == StreamDefault {
		return "default"
	}
	return string(s)
}

// Edge is a directed data-flow edge.
type Edge struct {
	From     NodeID   `json:"from"`
	To       NodeID   `json:"to"`
	Grouping Grouping `json:"grouping"`
	Stream   Stream   `json:"stream,omitempty"`
}

func (e Edge) String() string {
	return fmt.Sprintf("%s -[%s/%s]-> %s", e.From, e.Grouping, e.Stream, e.To)
}

// Node is a stage in the graph together with its adjacency.
type Node struct {
	ID    NodeID
	Stage kstage.Descriptor

	// Parent edges (incoming)
	Parents []NodeID

	// Child edges (outgoing)
	Children []NodeID
}

// IsSource reports whether the node is a source stage.
func (n *Node) IsSource() bool {
	return n.Stage.Kind == kstage.KindSource
}

// IsTerminal reports whether the node is a sink that must not have children.
func (n *Node) IsTerminal() bool {
	return n.Stage.Kind == kstage.KindKafkaOutput || n.Stage.Kind == kstage.KindArchiveOutput
}

// Graph is an ordered set of stages plus the edges between them.
//
// IMPORTANT: Graph is NOT safe for concurrent mutation. Use Clone to hand a
// graph to another owner.
type Graph struct {
	Nodes map[NodeID]*Node

	// Deterministic node ordering (insertion order)
	NodeOrder []NodeID

	// Edges in insertion order
	Edges []Edge
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes:     make(map[NodeID]*Node),
		NodeOrder: make([]NodeID, 0),
		Edges:     make([]Edge, 0),
	}
}

// AddStage adds a stage to the graph. The stage name becomes its NodeID.
func (g *Graph) AddStage(stage kstage.Descriptor) error {
	nodeID := NodeID(stage.Name)
	if err := nodeID.Validate(); err != nil {
		return err
	}
	if _, exists := g.Nodes[nodeID]; exists {
		return fmt.Errorf("%w: stage %q", ErrNodeAlreadyExists, stage.Name)
	}

	g.Nodes[nodeID] = &Node{
		ID:       nodeID,
		Stage:    stage,
		Parents:  []NodeID{},
		Children: []NodeID{},
	}
	g.NodeOrder = append(g.NodeOrder, nodeID)
	return nil
}

// AddEdge adds a directed edge. Both endpoints must exist and the same
// (from, to, stream) triple may only be added once.
func (g *Graph) AddEdge(e Edge) error {
	parent, ok := g.Nodes[e.From]
	if !ok {
		return fmt.Errorf("%w: parent %s", ErrNodeNotFound, e.From)
	}
	child, ok := g.Nodes[e.To]
	if !ok {
		return fmt.Errorf("%w: child %s", ErrNodeNotFound, e.To)
	}
	if e.From == e.To {
		return fmt.Errorf("%w: %s", ErrCycleDetected, e)
	}
	if child.IsSource() {
		return fmt.Errorf("%w: source %s cannot have parents", ErrInvalidTopology, e.To)
	}
	if parent.IsTerminal() {
		return fmt.Errorf("%w: sink %s cannot have children", ErrInvalidTopology, e.From)
	}
	for _, existing := range g.Edges {
		if existing.From == e.From && existing.To == e.To && existing.Stream == e.Stream {
			return fmt.Errorf("%w: duplicate edge %s", ErrInvalidTopology, e)
		}
	}

	g.Edges = append(g.Edges, e)
	parent.Children = append(parent.Children, e.To)
	child.Parents = append(child.Parents, e.From)
	return nil
}

// Stage returns the descriptor of the named stage.
func (g *Graph) Stage(id NodeID) (kstage.Descriptor, bool) {
	n, ok := g.Nodes[id]
	if !ok {
		return kstage.Descriptor{}, false
	}
	return n.Stage, true
}

// FindByID returns the first stage built from the catalog entry id.
func (g *Graph) FindByID(id kstage.ID) (kstage.Descriptor, bool) {
	for _, nodeID := range g.NodeOrder {
		if n := g.Nodes[nodeID]; n.Stage.ID == id {
			return n.Stage, true
		}
	}
	return kstage.Descriptor{}, false
}

// Stages returns all stages in insertion order.
func (g *Graph) Stages() []kstage.Descriptor {
	res := make([]kstage.Descriptor, 0, len(g.NodeOrder))
	for _, id := range g.NodeOrder {
		res = append(res, g.Nodes[id].Stage)
	}
	return res
}

// Inbound returns all edges ending at id in insertion order.
func (g *Graph) Inbound(id NodeID) []Edge {
	var res []Edge
	for _, e := range g.Edges {
		if e.To == id {
			res = append(res, e)
		}
	}
	return res
}

// Outbound returns all edges starting at id in insertion order.
func (g *Graph) Outbound(id NodeID) []Edge {
	var res []Edge
	for _, e := range g.Edges {
		if e.From == id {
			res = append(res, e)
		}
	}
	return res
}

// Len returns the number of stages.
func (g *Graph) Len() int {
	return len(g.NodeOrder)
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		Nodes:     make(map[NodeID]*Node, len(g.Nodes)),
		NodeOrder: append(make([]NodeID, 0, len(g.NodeOrder)), g.NodeOrder...),
		Edges:     append(make([]Edge, 0, len(g.Edges)), g.Edges...),
	}
	for id, n := range g.Nodes {
		c.Nodes[id] = &Node{
			ID:       n.ID,
			Stage:    n.Stage,
			Parents:  append([]NodeID{}, n.Parents...),
			Children: append([]NodeID{}, n.Children...),
		}
	}
	return c
}

// WithMaxParallelism returns a copy of the graph with every stage's
// parallelism hint and task count capped at limit.
func (g *Graph) WithMaxParallelism(limit int) *Graph {
	c := g.Clone()
	for _, n := range c.Nodes {
		n.Stage = n.Stage.WithParallelism(limit)
	}
	return c
}
