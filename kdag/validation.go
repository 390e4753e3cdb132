package kdag

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

// Validation limits
const (
	MaxNodesPerDAG     = 1000
	MaxDepth           = 100
	MaxChildrenPerNode = 100
)

// Validate checks the whole graph and returns the first violation: size
// limits, exactly one source, no cycles, every stage fed from the source, no
// sink with children and valid descriptors.
func (g *Graph) Validate() error {
	for _, check := range []func() error{
		g.checkSize,
		g.checkSource,
		g.checkAcyclic,
		g.checkReachable,
		g.checkSinks,
		g.checkDescriptors,
	} {
		if err := check(); err != nil {
			return fmt.Errorf("DAG validation failed: %w", err)
		}
	}
	return nil
}

func (g *Graph) sources() []NodeID {
	var res []NodeID
	for _, id := range g.NodeOrder {
		if g.Nodes[id].IsSource() {
			res = append(res, id)
		}
	}
	return res
}

func (g *Graph) checkSize() error {
	if len(g.Nodes) > MaxNodesPerDAG {
		return fmt.Errorf("%w: node count %d exceeds maximum %d", ErrInvalidTopology, len(g.Nodes), MaxNodesPerDAG)
	}
	for _, id := range g.NodeOrder {
		if n := len(g.Nodes[id].Children); n > MaxChildrenPerNode {
			return fmt.Errorf("%w: node %s has %d children, exceeds maximum %d", ErrInvalidTopology, id, n, MaxChildrenPerNode)
		}
	}
	return nil
}

func (g *Graph) checkSource() error {
	if n := len(g.sources()); n != 1 {
		return fmt.Errorf("%w: expected exactly one source, found %d", ErrInvalidTopology, n)
	}
	return nil
}

type visit int

const (
	unvisited visit = iota
	inProgress
	done
)

// checkAcyclic walks the graph depth first from every stage in insertion
// order, so the reported cycle is stable.
func (g *Graph) checkAcyclic() error {
	state := make(map[NodeID]visit, len(g.Nodes))
	var path []NodeID

	var walk func(id NodeID) error
	walk = func(id NodeID) error {
		if len(path) > MaxDepth {
			return fmt.Errorf("%w: maximum depth %d exceeded", ErrInvalidTopology, MaxDepth)
		}
		state[id] = inProgress
		path = append(path, id)

		for _, child := range g.Nodes[id].Children {
			switch state[child] {
			case inProgress:
				return fmt.Errorf("%w: %s", ErrCycleDetected, joinIDs(append(path, child), " -> "))
			case unvisited:
				if err := walk(child); err != nil {
					return err
				}
			}
		}

		path = path[:len(path)-1]
		state[id] = done
		return nil
	}

	for _, id := range g.NodeOrder {
		if state[id] == unvisited {
			if err := walk(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkReachable reports stages no record from the source can reach.
func (g *Graph) checkReachable() error {
	reached := make(map[NodeID]bool, len(g.Nodes))
	queue := g.sources()
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if reached[id] {
			continue
		}
		reached[id] = true
		queue = append(queue, g.Nodes[id].Children...)
	}

	var orphans []NodeID
	for id := range g.Nodes {
		if !reached[id] {
			orphans = append(orphans, id)
		}
	}
	if len(orphans) == 0 {
		return nil
	}
	slices.Sort(orphans)
	return fmt.Errorf("%w (unreachable from sources): %s", ErrOrphanedNodes, joinIDs(orphans, ", "))
}

func (g *Graph) checkSinks() error {
	for _, id := range g.NodeOrder {
		node := g.Nodes[id]
		if node.IsTerminal() && len(node.Children) > 0 {
			return fmt.Errorf("%w: sink node %s has children: %s", ErrInvalidTopology, id, joinIDs(node.Children, ", "))
		}
	}
	return nil
}

func (g *Graph) checkDescriptors() error {
	for _, id := range g.NodeOrder {
		if err := g.Nodes[id].Stage.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func joinIDs(ids []NodeID, sep string) string {
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = string(id)
	}
	return strings.Join(s, sep)
}
