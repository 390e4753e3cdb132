// Package kserde encodes pipeline records for the Kafka backed stages.
package kserde

type Serializer[T any] func(T) ([]byte, error)
