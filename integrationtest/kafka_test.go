//go:build integration

package integrationtest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/birdayz/socflow"
	"github.com/birdayz/socflow/kadapter"
	"github.com/birdayz/socflow/kconfig"
	"github.com/birdayz/socflow/kdag"
	"github.com/birdayz/socflow/kstage"
	"github.com/birdayz/socflow/ksubmit"
	"github.com/go-logr/logr/testr"
	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

func startBroker(t *testing.T) []string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping testcontainer test in short mode")
	}
	broker := &RedpandaBroker{RedpandaVersion: "latest"}
	assert.NoError(t, broker.Init())
	t.Cleanup(func() {
		_ = broker.Close()
	})
	return broker.BootstrapServers()
}

func createTopic(t *testing.T, brokers []string, topic string) {
	t.Helper()
	kcl, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	assert.NoError(t, err)
	defer kcl.Close()
	resp, err := kadm.NewClient(kcl).CreateTopic(context.Background(), 1, 1, nil, topic)
	assert.NoError(t, err)
	assert.NoError(t, resp.Err)
}

// consumeOne reads the first record of topic.
func consumeOne(t *testing.T, brokers []string, topic string) *kgo.Record {
	t.Helper()
	kcl, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	assert.NoError(t, err)
	defer kcl.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for {
		fetches := kcl.PollFetches(ctx)
		if err := ctx.Err(); err != nil {
			t.Fatalf("no record on %s: %v", topic, err)
		}
		var rec *kgo.Record
		fetches.EachRecord(func(r *kgo.Record) {
			if rec == nil {
				rec = r
			}
		})
		if rec != nil {
			return rec
		}
	}
}

func TestKafka(t *testing.T) {
	brokers := startBroker(t)

	t.Run("topic checker", func(t *testing.T) {
		createTopic(t, brokers, "bro_raw")
		checker := kadapter.KafkaTopicChecker{Timeout: 10 * time.Second}

		assert.NoError(t, checker.CheckTopic(context.Background(), brokers, "bro_raw"))
		err := checker.CheckTopic(context.Background(), brokers, "missing")
		assert.True(t, errors.Is(err, kadapter.ErrAdapter))
	})

	t.Run("kafka index backend", func(t *testing.T) {
		adapters := kadapter.DefaultRegistry(10*time.Second, kadapter.WithProbes(true))
		cfg := kconfig.FromMap(map[string]string{"kafka.br": strings.Join(brokers, ",")})
		spec, err := adapters.Resolve(kadapter.RoleIndex, "kafka", cfg, nil)
		assert.NoError(t, err)
		assert.NoError(t, adapters.Probe(context.Background(), spec))
	})

	t.Run("cluster manager", func(t *testing.T) {
		m, err := ksubmit.DialClusterManager(brokers,
			ksubmit.WithControlTopic("socflow.test.topologies"),
			ksubmit.WithClusterLogr(testr.New(t)),
		)
		assert.NoError(t, err)
		defer m.Close()
		createTopic(t, brokers, "socflow.test.topologies")

		g := kdag.NewGraph()
		assert.NoError(t, g.AddStage(generatorStage()))
		sub := ksubmit.Submission{ID: uuid.New(), Name: "acme_dc1_dev_bro_b", Graph: g, Config: ksubmit.ExecutionConfig{NumWorkers: 2}}

		assert.NoError(t, m.Submit(context.Background(), sub))
		err = m.Submit(context.Background(), sub)
		assert.True(t, errors.Is(err, ksubmit.ErrDuplicateTopology))

		rec := consumeOne(t, brokers, "socflow.test.topologies")
		assert.Equal(t, "acme_dc1_dev_bro_b", string(rec.Key))
		want, err := g.MarshalJSON()
		assert.NoError(t, err)
		assert.Equal(t, string(want), string(rec.Value))
	})

	t.Run("deploy", func(t *testing.T) {
		createTopic(t, brokers, "bro_events")
		createTopic(t, brokers, ksubmit.DefaultControlTopic)
		root := configTree(t, brokers)

		app, err := socflow.New(
			socflow.WithLogr(testr.New(t)),
			socflow.WithConfigPath(root),
			socflow.WithSubdir("bro"),
			socflow.WithTopicChecker(kadapter.KafkaTopicChecker{Timeout: 10 * time.Second}),
		)
		assert.NoError(t, err)
		assert.NoError(t, app.Deploy(context.Background()))

		rec := consumeOne(t, brokers, ksubmit.DefaultControlTopic)
		assert.Equal(t, "acme_dc1_dev_bro_a", string(rec.Key))
		assert.Contains(t, string(rec.Value), `"name":"DefaultTopologyKafkaSpout"`)

		// Same name again is refused by the lease.
		err = app.Deploy(context.Background())
		assert.True(t, errors.Is(err, ksubmit.ErrDuplicateTopology))
	})
}

func generatorStage() kstage.Descriptor {
	return kstage.Descriptor{
		Name:            "DefaultTopologySpout",
		Kind:            kstage.KindSource,
		ParallelismHint: 1,
		TaskCount:       1,
		Settings:        kstage.GeneratorSettings{Repeating: true},
	}
}

func configTree(t *testing.T, brokers []string) string {
	t.Helper()
	root := t.TempDir()
	conf := strings.Join([]string{
		"num.workers = 2",
		"kafka.br = " + strings.Join(brokers, ","),
		"spout.kafka.topic = bro_events",
		"spout.kafka.parallelism.hint = 1",
		"spout.kafka.num.tasks = 1",
		"parser.bolt.enabled = true",
		"parser.bolt.parallelism.hint = 1",
		"parser.bolt.num.tasks = 1",
		"bolt.indexing.enabled = false",
	}, "\n")
	for name, content := range map[string]string{
		"topologies/environment_identifier.conf":  "customer: acme\ndatacenter: dc1\ninstance: dev\n",
		"topologies/bro/topology_identifier.conf": "topology: bro\ntopology_instance: a\n",
		"topologies/bro/topology.conf":            conf,
	} {
		p := filepath.Join(root, name)
		assert.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		assert.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}
