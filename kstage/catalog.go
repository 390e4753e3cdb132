package kstage

// Spec is the static description of one stage kind.
type Spec struct {
	ID        ID
	Kind      Kind
	Namespace string

	DefaultName    string
	DefaultEnabled bool

	// RequiredKeys are read relative to Namespace. Missing keys are reported
	// together before the stage is constructed.
	RequiredKeys []string

	// GlobalKeys are required keys outside of Namespace.
	GlobalKeys []string

	Wiring Wiring

	// Active stages are fan-in sources for the error indexing stage.
	Active bool

	// Terminal stages never become the producer of the next stage. Every sink
	// is terminal; primary indexing is terminal but still active.
	Terminal bool

	// Critical stages abort the whole assembly when they fail to build.
	Critical bool
}

var parallelismKeys = []string{"parallelism.hint", "num.tasks"}

func required(keys ...string) []string {
	return append(append([]string{}, parallelismKeys...), keys...)
}

func enrichment(keys ...string) []string {
	return append([]string{"enrichment_tag", "MAX_CACHE_SIZE", "MAX_TIME_RETAIN"}, keys...)
}

var indexKeys = []string{"indexname", "documentname", "bulk"}

var catalog = []Spec{
	{
		ID:           GeneratorSource,
		Kind:         KindSource,
		Namespace:    "spout.test",
		DefaultName:  "DefaultTopologySpout",
		RequiredKeys: required(),
		Wiring:       WireNone,
		Critical:     true,
	},
	{
		ID:             KafkaSource,
		Kind:           KindSource,
		Namespace:      "spout.kafka",
		DefaultName:    "DefaultTopologyKafkaSpout",
		DefaultEnabled: true,
		RequiredKeys:   required("topic"),
		GlobalKeys:     []string{"kafka.br"},
		Wiring:         WireNone,
		Critical:       true,
	},
	{
		ID:             Parser,
		Kind:           KindParser,
		Namespace:      "parser.bolt",
		DefaultName:    "DefaultTopologyParserBot",
		DefaultEnabled: true,
		RequiredKeys:   required(),
		Wiring:         WireProducer,
		Active:         true,
		Critical:       true,
	},
	{
		ID:           GeoEnrichment,
		Kind:         KindEnrichment,
		Namespace:    "bolt.enrichment.geo",
		DefaultName:  "DefaultGeoEnrichmentBolt",
		RequiredKeys: required(enrichment("adapter.table")...),
		GlobalKeys:   []string{"source.ip", "dest.ip"},
		Wiring:       WireProducer,
		Active:       true,
	},
	{
		ID:           HostEnrichment,
		Kind:         KindEnrichment,
		Namespace:    "bolt.enrichment.host",
		DefaultName:  "DefaultHostEnrichmentBolt",
		RequiredKeys: required(enrichment()...),
		GlobalKeys:   []string{"source.ip", "dest.ip"},
		Wiring:       WireProducer,
		Active:       true,
	},
	{
		ID:           WhoisEnrichment,
		Kind:         KindEnrichment,
		Namespace:    "bolt.enrichment.whois",
		DefaultName:  "DefaultWhoisEnrichmentBolt",
		RequiredKeys: required(enrichment("source", "hbase.table.name")...),
		Wiring:       WireProducer,
		Active:       true,
	},
	{
		ID:           CIFEnrichment,
		Kind:         KindEnrichment,
		Namespace:    "bolt.enrichment.cif",
		DefaultName:  "DefaultCIFEnrichmentBolt",
		RequiredKeys: required(enrichment("host", "email", "tablename")...),
		GlobalKeys:   []string{"source.ip", "dest.ip"},
		Wiring:       WireProducer,
		Active:       true,
	},
	{
		ID:           Alerts,
		Kind:         KindAlerting,
		Namespace:    "bolt.alerts",
		DefaultName:  "DefaultAlertsBolt",
		RequiredKeys: required(),
		Wiring:       WireProducer,
		Active:       true,
	},
	{
		// Alert indexing falls back to the primary indexing stage's
		// parallelism, so none is required here.
		ID:           AlertsIndexing,
		Kind:         KindIndexing,
		Namespace:    "bolt.alerts.indexing",
		RequiredKeys: append([]string{"name"}, indexKeys...),
		Wiring:       WireAlertStream,
		Active:       true,
	},
	{
		ID:           KafkaOutput,
		Kind:         KindKafkaOutput,
		Namespace:    "bolt.kafka",
		DefaultName:  "DefaultKafkaBolt",
		RequiredKeys: required("topic"),
		GlobalKeys:   []string{"kafka.br"},
		Wiring:       WireProducer,
		Terminal:     true,
	},
	{
		ID:             Indexing,
		Kind:           KindIndexing,
		Namespace:      "bolt.indexing",
		DefaultName:    "DefaultIndexingBolt",
		DefaultEnabled: true,
		RequiredKeys:   required(indexKeys...),
		Wiring:         WireProducer,
		Active:         true,
		Terminal:       true,
		Critical:       true,
	},
	{
		ID:           ArchiveOutput,
		Kind:         KindArchiveOutput,
		Namespace:    "bolt.hdfs",
		DefaultName:  "DefaultHDFSBolt",
		RequiredKeys: required("fs.url", "size.rotation.policy"),
		Wiring:       WireProducer,
		Terminal:     true,
	},
	{
		ID:           ErrorIndexing,
		Kind:         KindErrorIndexing,
		Namespace:    "bolt.error.indexing",
		DefaultName:  "DefaultErrorIndexingBolt",
		RequiredKeys: required(indexKeys...),
		Wiring:       WireErrorFanIn,
	},
}

// Catalog returns all stage specs in assembly order. The returned slice is a
// copy.
func Catalog() []Spec {
	res := make([]Spec, len(catalog))
	copy(res, catalog)
	return res
}

// Lookup returns the spec registered for id.
func Lookup(id ID) (Spec, bool) {
	for _, s := range catalog {
		if s.ID == id {
			return s, true
		}
	}
	return Spec{}, false
}

// Order returns the position of id in assembly order, or -1.
func Order(id ID) int {
	for i, s := range catalog {
		if s.ID == id {
			return i
		}
	}
	return -1
}
