package kserde

import (
	"errors"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestForFormat(t *testing.T) {
	assert.Equal(t, []string{"json", "kv"}, Formats())

	_, err := ForFormat("avro")
	assert.True(t, errors.Is(err, ErrUnknownFormat))
	assert.Contains(t, err.Error(), "json, kv")

	_, err = ForFormat("JSON")
	assert.NoError(t, err)
}

func TestJSONRecord(t *testing.T) {
	serialize, err := ForFormat("json")
	assert.NoError(t, err)

	data, err := serialize(Record{"ip_src_addr": "10.0.0.1", "port": 53})
	assert.NoError(t, err)
	assert.Equal(t, `{"ip_src_addr":"10.0.0.1","port":53}`, string(data))

	_, err = serialize(Record{"ch": make(chan int)})
	assert.Error(t, err)
}

func TestKVRecord(t *testing.T) {
	serialize := KV()

	t.Run("sorted pairs", func(t *testing.T) {
		data, err := serialize(Record{"port": 53, "ip_src_addr": "10.0.0.1", "proto": "udp"})
		assert.NoError(t, err)
		assert.Equal(t, "ip_src_addr=10.0.0.1 port=53 proto=udp", string(data))
	})

	t.Run("empty", func(t *testing.T) {
		data, err := serialize(Record{})
		assert.NoError(t, err)
		assert.Equal(t, "", string(data))
	})

	t.Run("unencodable", func(t *testing.T) {
		_, err := serialize(Record{"uri": "GET /index.html"})
		assert.Error(t, err)
		_, err = serialize(Record{"a=b": "c"})
		assert.Error(t, err)
	})
}
