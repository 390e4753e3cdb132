package kstage

import (
	"fmt"

	"github.com/birdayz/socflow/kserde"
	"golang.org/x/exp/slices"
)

// Settings are the kind specific parameters of a stage.
type Settings interface {
	Validate() error
}

// GeneratorSettings configure the synthetic test source.
type GeneratorSettings struct {
	Filename  string `json:"filename,omitempty"`
	Repeating bool   `json:"repeating"`
}

func (s GeneratorSettings) Validate() error { return nil }

// KafkaSourceSettings configure the ingestion source.
type KafkaSourceSettings struct {
	Brokers     []string `json:"brokers"`
	Topic       string   `json:"topic"`
	ZooKeeper   string   `json:"zookeeper,omitempty"`
	StartOffset string   `json:"startOffset"`
}

func (s KafkaSourceSettings) Validate() error {
	if len(s.Brokers) == 0 {
		return fmt.Errorf("%w: kafka source has no brokers", ErrInvalidDescriptor)
	}
	if s.StartOffset != "earliest" && s.StartOffset != "latest" {
		return fmt.Errorf("%w: start offset %q must be earliest or latest", ErrInvalidDescriptor, s.StartOffset)
	}
	return nil
}

// ParserSettings configure the parser stage.
type ParserSettings struct {
	Format      string `json:"format"`
	Filter      string `json:"filter,omitempty"`
	OutputField string `json:"outputField"`
}

func (s ParserSettings) Validate() error {
	if s.Format == "" {
		return fmt.Errorf("%w: parser has no format", ErrInvalidDescriptor)
	}
	return nil
}

// EnrichmentSettings configure any enrichment stage. Keys are the record
// fields used as lookup keys, in order.
type EnrichmentSettings struct {
	Tag         string      `json:"tag"`
	Keys        []string    `json:"keys"`
	OutputField string      `json:"outputField"`
	Cache       CacheSpec   `json:"cache"`
	Adapter     AdapterSpec `json:"adapter"`
}

func (s EnrichmentSettings) Validate() error {
	if len(s.Keys) == 0 {
		return fmt.Errorf("%w: enrichment %q has no lookup keys", ErrInvalidDescriptor, s.Tag)
	}
	return s.Cache.Validate()
}

// AlertSettings configure the alerting stage.
type AlertSettings struct {
	Identifier  map[string]map[string]string `json:"identifier"`
	OutputField string                       `json:"outputField"`
	RulesPath   string                       `json:"rulesPath"`
	Cache       CacheSpec                    `json:"cache"`
	Adapter     AdapterSpec                  `json:"adapter"`
}

func (s AlertSettings) Validate() error {
	return s.Cache.Validate()
}

// IndexSettings configure indexing and error indexing stages.
type IndexSettings struct {
	IndexName    string      `json:"indexName"`
	DocumentName string      `json:"documentName"`
	Bulk         int         `json:"bulk"`
	Adapter      AdapterSpec `json:"adapter"`
}

func (s IndexSettings) Validate() error {
	if s.Bulk <= 0 {
		return fmt.Errorf("%w: index %q bulk size %d must be positive", ErrInvalidDescriptor, s.IndexName, s.Bulk)
	}
	return nil
}

// KafkaOutputSettings configure the raw message bus sink.
type KafkaOutputSettings struct {
	Brokers   []string `json:"brokers"`
	ZooKeeper string   `json:"zookeeper,omitempty"`
	Topic     string   `json:"topic"`
	// Serializer names a kserde record format. Empty means json.
	Serializer string `json:"serializer"`
}

func (s KafkaOutputSettings) Validate() error {
	if len(s.Brokers) == 0 {
		return fmt.Errorf("%w: kafka output has no brokers", ErrInvalidDescriptor)
	}
	if s.Serializer != "" {
		if _, err := kserde.ForFormat(s.Serializer); err != nil {
			return fmt.Errorf("%w: kafka output: %w", ErrInvalidDescriptor, err)
		}
	}
	return nil
}

// ArchiveSettings configure the archival file system sink.
type ArchiveSettings struct {
	FSURL          string  `json:"fsUrl"`
	Directory      string  `json:"directory"`
	RotationKB     float64 `json:"rotationKB"`
	SyncCount      int     `json:"syncCount"`
	FieldDelimiter string  `json:"fieldDelimiter"`
}

func (s ArchiveSettings) Validate() error {
	if s.RotationKB <= 0 {
		return fmt.Errorf("%w: archive rotation size %v must be positive", ErrInvalidDescriptor, s.RotationKB)
	}
	if s.SyncCount <= 0 {
		return fmt.Errorf("%w: archive sync count %d must be positive", ErrInvalidDescriptor, s.SyncCount)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
