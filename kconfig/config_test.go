package kconfig

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert/v2"
)

const sampleTopology = `
# sample topology.conf
num.workers = 2
parser.bolt.enabled = true
bolt.enrichment.geo.enabled=false
bolt.enrichment.geo.MAX_CACHE_SIZE = 10000
bolt.enrichment.whois.source = tld, domain ,,
bolt.hdfs.size.rotation.policy = 50.5
bolt.indexing.bulk = abc
`

func TestLoad(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "topology.conf")
		assert.NoError(t, os.WriteFile(path, []byte(sampleTopology), 0o600))

		cfg, err := Load(path)
		assert.NoError(t, err)

		workers, err := cfg.MustInt("num.workers")
		assert.NoError(t, err)
		assert.Equal(t, 2, workers)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.conf"))
		assert.Error(t, err)
	})
}

func TestGetters(t *testing.T) {
	cfg, err := Parse(sampleTopology)
	assert.NoError(t, err)

	t.Run("bool with default", func(t *testing.T) {
		enabled, err := cfg.Bool("parser.bolt.enabled", false)
		assert.NoError(t, err)
		assert.True(t, enabled)

		enabled, err = cfg.Bool("bolt.alerts.enabled", true)
		assert.NoError(t, err)
		assert.True(t, enabled)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := cfg.MustString("es.ip")
		assert.True(t, errors.Is(err, ErrMissingKey))
		assert.Contains(t, err.Error(), "es.ip")
	})

	t.Run("malformed int", func(t *testing.T) {
		_, err := cfg.MustInt("bolt.indexing.bulk")
		assert.True(t, errors.Is(err, ErrMalformedValue))
	})

	t.Run("float", func(t *testing.T) {
		f, err := cfg.MustFloat("bolt.hdfs.size.rotation.policy")
		assert.NoError(t, err)
		assert.Equal(t, 50.5, f)
	})

	t.Run("list", func(t *testing.T) {
		assert.Equal(t, []string{"tld", "domain"}, cfg.Strings("bolt.enrichment.whois.source"))
		assert.Equal(t, []string(nil), cfg.Strings("unknown"))
	})

	t.Run("set overrides", func(t *testing.T) {
		c := FromMap(map[string]string{"a": "1"})
		c.Set("a", "2")
		v, err := c.MustInt("a")
		assert.NoError(t, err)
		assert.Equal(t, 2, v)
	})
}

func TestNamespace(t *testing.T) {
	cfg, err := Parse(sampleTopology)
	assert.NoError(t, err)

	ns := cfg.Namespace("bolt.enrichment.geo")
	assert.Equal(t, "bolt.enrichment.geo.", ns.Prefix())
	assert.Equal(t, "bolt.enrichment.geo", ns.Name())

	enabled, err := ns.Bool("enabled", true)
	assert.NoError(t, err)
	assert.False(t, enabled)

	size, err := ns.MustInt("MAX_CACHE_SIZE")
	assert.NoError(t, err)
	assert.Equal(t, 10000, size)

	assert.Equal(t, []string{"bolt.enrichment.geo.MAX_CACHE_SIZE", "bolt.enrichment.geo.enabled"}, ns.Keys())
}
