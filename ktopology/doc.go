// Package ktopology assembles the stage graph of a telemetry topology from
// configuration.
//
// Stages are visited in catalog order (source, parser, the geo, host, whois
// and cif enrichments, alerting, alert indexing, kafka output, indexing,
// archive output, error indexing). Disabled stages are skipped without
// breaking the chain: every producer-wired stage attaches to the last stage
// that was built successfully, the current producer.
//
// Side channels are wired explicitly. The alert indexing stage only reads the
// alerting stage's "alert" stream, and the error indexing stage reads the
// "error" stream of every stage in the active set.
//
// Assembly state is an explicit value (State) threaded through the steps. A
// failing step leaves the previous state untouched, which is what makes
// optional stages isolatable.
package ktopology
