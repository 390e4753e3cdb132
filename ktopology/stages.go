package ktopology

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/birdayz/socflow/kadapter"
	"github.com/birdayz/socflow/kconfig"
	"github.com/birdayz/socflow/kstage"
)

func builtins() []Constructor {
	return []Constructor{
		&stage{spec: catalogSpec(kstage.GeneratorSource), settings: generatorSettings},
		&stage{spec: catalogSpec(kstage.KafkaSource), settings: kafkaSourceSettings, build: buildKafkaSource, enabled: kafkaSourceEnabled},
		&stage{spec: catalogSpec(kstage.Parser), settings: parserSettings},
		&stage{spec: catalogSpec(kstage.GeoEnrichment), settings: geoSettings, build: probeAdapter},
		&stage{spec: catalogSpec(kstage.HostEnrichment), settings: hostSettings, build: probeAdapter},
		&stage{spec: catalogSpec(kstage.WhoisEnrichment), settings: whoisSettings, build: probeAdapter},
		&stage{spec: catalogSpec(kstage.CIFEnrichment), settings: cifSettings, build: probeAdapter},
		&stage{spec: catalogSpec(kstage.Alerts), settings: alertSettings, build: probeAdapter},
		&stage{
			spec:        catalogSpec(kstage.AlertsIndexing),
			settings:    indexSettings,
			build:       probeAdapter,
			enabled:     alertsIndexingEnabled,
			parallelism: fallbackParallelism("bolt.indexing"),
		},
		&stage{spec: catalogSpec(kstage.KafkaOutput), settings: kafkaOutputSettings},
		&stage{spec: catalogSpec(kstage.Indexing), settings: indexSettings, build: probeAdapter},
		&stage{spec: catalogSpec(kstage.ArchiveOutput), settings: archiveSettings},
		&stage{spec: catalogSpec(kstage.ErrorIndexing), settings: indexSettings, build: probeAdapter},
	}
}

func catalogSpec(id kstage.ID) kstage.Spec {
	s, ok := kstage.Lookup(id)
	if !ok {
		panic(fmt.Sprintf("stage %s missing from catalog", id))
	}
	return s
}

// The kafka source is the default source: it is enabled unless the generator
// is.
func kafkaSourceEnabled(cfg *kconfig.Config) (bool, error) {
	generator, err := cfg.Bool("spout.test.enabled", false)
	if err != nil {
		return false, err
	}
	return cfg.Bool("spout.kafka.enabled", !generator)
}

// Alert indexing hangs off the alerting stage and is only considered when
// alerting is enabled.
func alertsIndexingEnabled(cfg *kconfig.Config) (bool, error) {
	alerts, err := cfg.Bool("bolt.alerts.enabled", false)
	if err != nil || !alerts {
		return false, err
	}
	return cfg.Bool("bolt.alerts.indexing.enabled", false)
}

func generatorSettings(env Env, ns kconfig.Namespace) (kstage.Settings, error) {
	repeating, err := ns.Bool("repeating", true)
	if err != nil {
		return nil, err
	}
	return kstage.GeneratorSettings{
		Filename:  ns.String("filename", ""),
		Repeating: repeating,
	}, nil
}

func kafkaSourceSettings(env Env, ns kconfig.Namespace) (kstage.Settings, error) {
	return kstage.KafkaSourceSettings{
		Brokers:     env.Config.Strings("kafka.br"),
		Topic:       ns.String("topic", ""),
		ZooKeeper:   env.Config.String("kafka.zk", ""),
		StartOffset: strings.ToLower(ns.String("start.offset", "latest")),
	}, nil
}

func buildKafkaSource(ctx context.Context, env Env, d kstage.Descriptor) error {
	if env.Topics == nil {
		return nil
	}
	s, ok := d.Settings.(kstage.KafkaSourceSettings)
	if !ok {
		return nil
	}
	return env.Topics.CheckTopic(ctx, s.Brokers, s.Topic)
}

func parserSettings(env Env, ns kconfig.Namespace) (kstage.Settings, error) {
	return kstage.ParserSettings{
		Format:      ns.String("format", "bro"),
		Filter:      ns.String("filter", ""),
		OutputField: env.Identity.TopologyName(),
	}, nil
}

// ipKeys returns the record fields holding the source and destination
// address.
func ipKeys(cfg *kconfig.Config) []string {
	return []string{cfg.String("source.ip", ""), cfg.String("dest.ip", "")}
}

// enrichmentCache reads the cache bounds of an enrichment stage. Retention is
// configured in minutes.
func enrichmentCache(ns kconfig.Namespace) (kstage.CacheSpec, error) {
	entries, err := ns.MustInt("MAX_CACHE_SIZE")
	if err != nil {
		return kstage.CacheSpec{}, err
	}
	minutes, err := ns.MustInt("MAX_TIME_RETAIN")
	if err != nil {
		return kstage.CacheSpec{}, err
	}
	return kstage.CacheSpec{MaxEntries: entries, MaxRetentionSeconds: minutes * 60}, nil
}

func enrichment(env Env, ns kconfig.Namespace, keys []string, adapter string, extra map[string]string) (kstage.Settings, error) {
	cache, err := enrichmentCache(ns)
	if err != nil {
		return nil, err
	}
	spec, err := env.Adapters.Resolve(kadapter.RoleEnrichment, ns.String("adapter", adapter), env.Config, extra)
	if err != nil {
		return nil, err
	}
	return kstage.EnrichmentSettings{
		Tag:         ns.String("enrichment_tag", ""),
		Keys:        keys,
		OutputField: env.Identity.TopologyName(),
		Cache:       cache,
		Adapter:     spec,
	}, nil
}

func geoSettings(env Env, ns kconfig.Namespace) (kstage.Settings, error) {
	return enrichment(env, ns, ipKeys(env.Config), "mysql", map[string]string{
		"adapter.table": ns.String("adapter.table", ""),
	})
}

func hostSettings(env Env, ns kconfig.Namespace) (kstage.Settings, error) {
	hosts := filepath.Join(env.ConfigPath, "etc", "whitelists", "known_hosts.conf")
	return enrichment(env, ns, ipKeys(env.Config), "properties", map[string]string{
		"known_hosts": ns.String("known_hosts", hosts),
	})
}

func whoisSettings(env Env, ns kconfig.Namespace) (kstage.Settings, error) {
	return enrichment(env, ns, ns.Strings("source"), "hbase", map[string]string{
		"hbase.table.name": ns.String("hbase.table.name", ""),
	})
}

func cifSettings(env Env, ns kconfig.Namespace) (kstage.Settings, error) {
	keys := append(ipKeys(env.Config), ns.String("host", ""), ns.String("email", ""))
	return enrichment(env, ns, keys, "cif-hbase", map[string]string{
		"tablename": ns.String("tablename", ""),
	})
}

func alertSettings(env Env, ns kconfig.Namespace) (kstage.Settings, error) {
	entries, err := ns.Int("MAX_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}
	seconds, err := ns.Int("MAX_TIME_RETAIN", 3600)
	if err != nil {
		return nil, err
	}
	spec, err := env.Adapters.Resolve(kadapter.RoleAlerts, ns.String("adapter", "hbase-lists"), env.Config, map[string]string{
		"whitelist.table": ns.String("whitelist.table", "ip_whitelist"),
		"blacklist.table": ns.String("blacklist.table", "ip_blacklist"),
	})
	if err != nil {
		return nil, err
	}
	rules := filepath.Join(env.ConfigPath, "topologies", env.Subdir, "alerts.xml")
	return kstage.AlertSettings{
		Identifier:  env.Identity.AlertsIdentifier(),
		OutputField: "message",
		RulesPath:   ns.String("rules", rules),
		Cache:       kstage.CacheSpec{MaxEntries: entries, MaxRetentionSeconds: seconds},
		Adapter:     spec,
	}, nil
}

// indexSettings serves the primary, alert and error indexing stages.
func indexSettings(env Env, ns kconfig.Namespace) (kstage.Settings, error) {
	bulk, err := ns.MustInt("bulk")
	if err != nil {
		return nil, err
	}
	spec, err := env.Adapters.Resolve(kadapter.RoleIndex, ns.String("adapter", "elasticsearch"), env.Config, nil)
	if err != nil {
		return nil, err
	}
	return kstage.IndexSettings{
		IndexName:    ns.String("indexname", ""),
		DocumentName: ns.String("documentname", ""),
		Bulk:         bulk,
		Adapter:      spec,
	}, nil
}

func kafkaOutputSettings(env Env, ns kconfig.Namespace) (kstage.Settings, error) {
	return kstage.KafkaOutputSettings{
		Brokers:    env.Config.Strings("kafka.br"),
		ZooKeeper:  env.Config.String("kafka.zk", ""),
		Topic:      ns.String("topic", ""),
		Serializer: ns.String("serializer", "json"),
	}, nil
}

func archiveSettings(env Env, ns kconfig.Namespace) (kstage.Settings, error) {
	rotation, err := ns.MustFloat("size.rotation.policy")
	if err != nil {
		return nil, err
	}
	sync, err := ns.Int("sync.count", 5)
	if err != nil {
		return nil, err
	}
	return kstage.ArchiveSettings{
		FSURL:          ns.String("fs.url", ""),
		Directory:      path.Join(ns.String("path", "/"), env.Identity.TopologyName()+"_enriched") + "/",
		RotationKB:     rotation,
		SyncCount:      sync,
		FieldDelimiter: ns.String("field.delimiter", "|"),
	}, nil
}

func probeAdapter(ctx context.Context, env Env, d kstage.Descriptor) error {
	var spec kstage.AdapterSpec
	switch s := d.Settings.(type) {
	case kstage.EnrichmentSettings:
		spec = s.Adapter
	case kstage.AlertSettings:
		spec = s.Adapter
	case kstage.IndexSettings:
		spec = s.Adapter
	default:
		return nil
	}
	return env.Adapters.Probe(ctx, spec)
}
