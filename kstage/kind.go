package kstage

import "fmt"

// Kind is the role a stage plays in the pipeline.
type Kind int

const (
	KindSource Kind = iota
	KindParser
	KindEnrichment
	KindAlerting
	KindIndexing
	KindErrorIndexing
	KindKafkaOutput
	KindArchiveOutput
)

func (k Kind) String() string {
	switch k {
	case KindSource:
		return "Source"
	case KindParser:
		return "Parser"
	case KindEnrichment:
		return "Enrichment"
	case KindAlerting:
		return "Alerting"
	case KindIndexing:
		return "Indexing"
	case KindErrorIndexing:
		return "ErrorIndexing"
	case KindKafkaOutput:
		return "KafkaOutput"
	case KindArchiveOutput:
		return "ArchiveOutput"
	default:
		return "Unknown"
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	if k < KindSource || k > KindArchiveOutput {
		return nil, fmt.Errorf("unknown stage kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// ID identifies an entry of the stage catalog. Several IDs may share a Kind,
// e.g. all enrichment variants.
type ID string

const (
	GeneratorSource ID = "generator-source"
	KafkaSource     ID = "kafka-source"
	Parser          ID = "parser"
	GeoEnrichment   ID = "geo-enrichment"
	HostEnrichment  ID = "host-enrichment"
	WhoisEnrichment ID = "whois-enrichment"
	CIFEnrichment   ID = "cif-enrichment"
	Alerts          ID = "alerts"
	AlertsIndexing  ID = "alerts-indexing"
	KafkaOutput     ID = "kafka-output"
	Indexing        ID = "indexing"
	ArchiveOutput   ID = "archive-output"
	ErrorIndexing   ID = "error-indexing"
)

// Wiring describes how a stage receives its inbound edges.
type Wiring int

const (
	// WireNone is used by sources.
	WireNone Wiring = iota
	// WireProducer attaches the stage to the current producer with one
	// default-stream shuffle edge.
	WireProducer
	// WireAlertStream attaches the stage to the alerting stage's "alert"
	// stream only.
	WireAlertStream
	// WireErrorFanIn attaches the stage to the "error" stream of every
	// active stage.
	WireErrorFanIn
)

func (w Wiring) String() string {
	switch w {
	case WireNone:
		return "none"
	case WireProducer:
		return "producer"
	case WireAlertStream:
		return "alert-stream"
	case WireErrorFanIn:
		return "error-fan-in"
	default:
		return "unknown"
	}
}
