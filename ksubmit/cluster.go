package ksubmit

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-logr/logr"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/multierr"
)

const (
	DefaultControlTopic = "socflow.topologies"
	DefaultLeasePrefix  = "socflow.lease"
)

// Record headers of a submission on the control topic.
const (
	HeaderSubmissionID = "submission-id"
	HeaderNumWorkers   = "num-workers"
	HeaderFingerprint  = "fingerprint"
)

// Admin is the subset of kadm.Client the cluster manager uses.
type Admin interface {
	CreateTopic(ctx context.Context, partitions int32, replicationFactor int16, configs map[string]*string, topic string) (kadm.CreateTopicResponse, error)
	DeleteTopic(ctx context.Context, topic string) (kadm.DeleteTopicResponse, error)
}

// Producer is the subset of kgo.Client the cluster manager uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// ClusterManager submits topologies to the workers sharing a Kafka cluster.
//
// A topology name is leased by creating a single partition topic named
// <leasePrefix>.<name>; the broker refuses a second creation, which makes the
// name unique across the cluster. The canonical graph is then published to the
// control topic keyed by name, where workers pick it up.
type ClusterManager struct {
	admin    Admin
	producer Producer
	closer   func()

	controlTopic      string
	leasePrefix       string
	replicationFactor int16

	log logr.Logger
}

// ClusterOption configures a ClusterManager.
type ClusterOption func(*ClusterManager)

// WithControlTopic sets the topic submissions are published to.
var WithControlTopic = func(topic string) ClusterOption {
	return func(m *ClusterManager) {
		m.controlTopic = topic
	}
}

// WithLeasePrefix sets the prefix of lease topics.
var WithLeasePrefix = func(prefix string) ClusterOption {
	return func(m *ClusterManager) {
		m.leasePrefix = prefix
	}
}

// WithReplicationFactor sets the replication factor of lease topics. -1 uses
// the broker default.
var WithReplicationFactor = func(rf int16) ClusterOption {
	return func(m *ClusterManager) {
		m.replicationFactor = rf
	}
}

// WithClusterLogr sets the logger.
var WithClusterLogr = func(log logr.Logger) ClusterOption {
	return func(m *ClusterManager) {
		m.log = log
	}
}

// NewClusterManager creates a cluster manager on top of admin and producer.
// The caller owns both.
func NewClusterManager(admin Admin, producer Producer, opts ...ClusterOption) *ClusterManager {
	m := &ClusterManager{
		admin:             admin,
		producer:          producer,
		closer:            func() {},
		controlTopic:      DefaultControlTopic,
		leasePrefix:       DefaultLeasePrefix,
		replicationFactor: -1,
		log:               logr.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DialClusterManager connects to brokers. Close releases the client.
func DialClusterManager(brokers []string, opts ...ClusterOption) (*ClusterManager, error) {
	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	m := NewClusterManager(kadm.NewClient(client), client, opts...)
	m.closer = client.Close
	return m, nil
}

// LeaseTopic returns the lease topic of a topology name.
func (m *ClusterManager) LeaseTopic(name string) string {
	return m.leasePrefix + "." + name
}

// Submit leases the topology name and publishes the graph. It returns once
// the control topic acknowledged the record. If publishing fails the lease is
// released again.
func (m *ClusterManager) Submit(ctx context.Context, sub Submission) error {
	payload, err := sub.Graph.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode topology: %w", err)
	}
	fingerprint, err := sub.Graph.Fingerprint()
	if err != nil {
		return fmt.Errorf("failed to fingerprint topology: %w", err)
	}

	lease := m.LeaseTopic(sub.Name)
	resp, err := m.admin.CreateTopic(ctx, 1, m.replicationFactor, map[string]*string{
		"cleanup.policy": kadm.StringPtr("compact"),
	}, lease)
	if err == nil {
		err = resp.Err
	}
	if err != nil {
		if errors.Is(err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("%w: %s", ErrDuplicateTopology, sub.Name)
		}
		return fmt.Errorf("failed to lease topology name %s: %w", sub.Name, err)
	}

	record := &kgo.Record{
		Topic: m.controlTopic,
		Key:   []byte(sub.Name),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: HeaderSubmissionID, Value: []byte(sub.ID.String())},
			{Key: HeaderNumWorkers, Value: []byte(strconv.Itoa(sub.Config.NumWorkers))},
			{Key: HeaderFingerprint, Value: []byte(fingerprint)},
		},
	}
	if err := m.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return multierr.Append(fmt.Errorf("%w: %w", ErrRejected, err), m.release(ctx, lease))
	}

	m.log.V(1).Info("Published topology", "topic", m.controlTopic, "lease", lease, "fingerprint", fingerprint)
	return nil
}

// release deletes the lease of a submission that was never published. It
// outlives ctx so a cancelled submission still frees the name.
func (m *ClusterManager) release(ctx context.Context, lease string) error {
	if _, err := m.admin.DeleteTopic(context.WithoutCancel(ctx), lease); err != nil {
		return fmt.Errorf("failed to release lease %s: %w", lease, err)
	}
	m.log.V(1).Info("Released lease", "lease", lease)
	return nil
}

// Close releases the Kafka client if the manager created it.
func (m *ClusterManager) Close() {
	m.closer()
}
