package kadapter

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/multierr"
)

// DialProbe returns a probe that opens a TCP connection to one of the hosts
// listed at hostKey (comma separated) on the port at portKey. The first
// successful connection wins.
func DialProbe(hostKey, portKey string, timeout time.Duration) Probe {
	return func(ctx context.Context, params map[string]string) error {
		port := params[portKey]
		var errs error
		for _, host := range splitList(params[hostKey]) {
			addr := host
			if port != "" {
				addr = net.JoinHostPort(host, port)
			}
			dialer := net.Dialer{Timeout: timeout}
			conn, err := dialer.DialContext(ctx, "tcp", addr)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			return conn.Close()
		}
		if errs == nil {
			return fmt.Errorf("no host configured at %s", hostKey)
		}
		return errs
	}
}

// KafkaPingProbe returns a probe that pings the brokers listed at key.
func KafkaPingProbe(key string, timeout time.Duration) Probe {
	return func(ctx context.Context, params map[string]string) error {
		cl, err := kgo.NewClient(kgo.SeedBrokers(splitList(params[key])...))
		if err != nil {
			return err
		}
		defer cl.Close()

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return cl.Ping(ctx)
	}
}

// HostsFileProbe returns a probe that loads the known hosts file at key.
func HostsFileProbe(key string) Probe {
	return func(ctx context.Context, params map[string]string) error {
		a, err := NewHostsAdapter(params[key])
		if err != nil {
			return err
		}
		return a.Close()
	}
}

// TopicChecker verifies that a topic exists before a stage reading or
// writing it is built.
type TopicChecker interface {
	CheckTopic(ctx context.Context, brokers []string, topic string) error
}

// KafkaTopicChecker checks topics with a short lived admin client.
type KafkaTopicChecker struct {
	Timeout time.Duration
	Opts    []kgo.Opt
}

// CheckTopic returns an error if the brokers are unreachable or topic does
// not exist.
func (c KafkaTopicChecker) CheckTopic(ctx context.Context, brokers []string, topic string) error {
	opts := append([]kgo.Opt{kgo.SeedBrokers(brokers...)}, c.Opts...)
	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return fmt.Errorf("%w: kafka client: %w", ErrAdapter, err)
	}
	adm := kadm.NewClient(cl)
	defer adm.Close()

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	details, err := adm.ListTopics(ctx, topic)
	if err != nil {
		return fmt.Errorf("%w: list topics: %w", ErrAdapter, err)
	}
	detail, ok := details[topic]
	if !ok {
		return fmt.Errorf("%w: topic %q not found", ErrAdapter, topic)
	}
	if detail.Err != nil {
		return fmt.Errorf("%w: topic %q: %w", ErrAdapter, topic, detail.Err)
	}
	return nil
}

func splitList(s string) []string {
	var res []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			res = append(res, p)
		}
	}
	return res
}

func sortStrings(s []string) []string {
	sort.Strings(s)
	return s
}
