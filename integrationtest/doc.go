// Package integrationtest runs socflow against a real Kafka compatible
// broker. The tests start redpanda in a container and only build with
// the integration tag.
package integrationtest
