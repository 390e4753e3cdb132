// Package kdag provides the directed acyclic graph a telemetry topology is
// described by.
//
// # Overview
//
// A Graph is an ordered sequence of stage descriptors plus the data-flow
// edges between them. Stage names are node IDs and must be unique. Every edge
// carries a grouping strategy and an optional stream selector:
//
//   - the default stream carries the primary output of a stage
//   - StreamError carries records a stage failed to process
//   - StreamAlert carries alerts raised by the alerting stage
//
// Several edges may end at the same stage (fan-in). The error indexing stage
// for example receives one StreamError edge from every active stage.
//
// # Basic Usage
//
//	g := kdag.NewGraph()
//	_ = g.AddStage(source)
//	_ = g.AddStage(parser)
//	_ = g.AddEdge(kdag.Edge{From: "source", To: "parser", Grouping: kdag.GroupingShuffle})
//	if err := g.Validate(); err != nil {
//	    // ...
//	}
//
// # Validation
//
// Validate checks:
//
//   - **Single Source**: exactly one source stage
//   - **Cycle Detection**: DAGs cannot contain cycles
//   - **Orphan Detection**: All nodes must be reachable from the source
//   - **Sink Validation**: Kafka and archive sinks cannot have children
//   - **Descriptors**: every stage descriptor is valid
//   - **Size Limits**: Prevents pathological graphs (MaxNodesPerDAG, MaxDepth, etc.)
//
// All validation errors use sentinel errors (ErrCycleDetected,
// ErrInvalidTopology, etc.) that can be checked with errors.Is().
//
// # Determinism
//
// Stages and edges keep insertion order. MarshalJSON is canonical, so two
// graphs built in the same order from the same configuration encode to the
// same bytes and share a Fingerprint. MaskedJSON is the same encoding with
// adapter credentials masked, for display only.
//
// # Thread Safety
//
// IMPORTANT: Graph is NOT safe for concurrent mutation. Clone returns an
// independent copy.
package kdag
