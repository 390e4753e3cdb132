// Package kconfig provides the flat, dotted key-value configuration surface
// topologies are described with.
//
// Configuration is read from Java style .properties files. Each pipeline
// stage reads its keys below a dotted prefix (for example
// "bolt.enrichment.geo."), which is modelled by Namespace.
package kconfig

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/magiconair/properties"
	"golang.org/x/exp/slices"
)

// Sentinel errors for configuration lookups.
var (
	ErrMissingKey     = errors.New("missing configuration key")
	ErrMalformedValue = errors.New("malformed configuration value")
)

// Config is a flat key-value configuration.
//
// Config is NOT safe for concurrent mutation. Readers may share a Config
// once it is no longer written to.
type Config struct {
	props *properties.Properties
}

// New creates an empty configuration.
func New() *Config {
	return &Config{props: properties.NewProperties()}
}

// Load reads a properties file.
func Load(path string) (*Config, error) {
	p, err := properties.LoadFile(path, properties.UTF8)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration %s: %w", path, err)
	}
	return &Config{props: p}, nil
}

// Parse reads configuration from the contents of a properties file.
func Parse(data string) (*Config, error) {
	p, err := properties.LoadString(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	return &Config{props: p}, nil
}

// FromMap creates a configuration from a map.
func FromMap(m map[string]string) *Config {
	return &Config{props: properties.LoadMap(m)}
}

// Set stores a value, replacing any previous one.
func (c *Config) Set(key, value string) {
	// Set only fails on circular ${} references, which plain values never contain.
	_, _, _ = c.props.Set(key, value)
}

// Has reports whether key is present.
func (c *Config) Has(key string) bool {
	_, ok := c.props.Get(key)
	return ok
}

// Keys returns all keys starting with prefix in sorted order.
func (c *Config) Keys(prefix string) []string {
	var keys []string
	for _, k := range c.props.Keys() {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

// Raw returns the value stored for key.
func (c *Config) Raw(key string) (string, bool) {
	v, ok := c.props.Get(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// Namespace returns a view of all keys below prefix. A trailing dot is added
// when missing.
func (c *Config) Namespace(prefix string) Namespace {
	if prefix != "" && !strings.HasSuffix(prefix, ".") {
		prefix += "."
	}
	return Namespace{cfg: c, prefix: prefix}
}

// String returns the value of key, or def if it is absent.
func (c *Config) String(key, def string) string {
	v, ok := c.Raw(key)
	if !ok {
		return def
	}
	return v
}

// MustString returns the value of key or ErrMissingKey.
func (c *Config) MustString(key string) (string, error) {
	v, ok := c.Raw(key)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingKey, key)
	}
	return v, nil
}

// Strings returns the comma separated list stored at key. Blank entries are
// dropped.
func (c *Config) Strings(key string) []string {
	v, ok := c.Raw(key)
	if !ok {
		return nil
	}
	var res []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			res = append(res, s)
		}
	}
	return res
}

// Bool returns the boolean stored at key, or def if absent.
func (c *Config) Bool(key string, def bool) (bool, error) {
	v, ok := c.Raw(key)
	if !ok {
		return def, nil
	}
	return parseBool(key, v)
}

// MustBool returns the boolean stored at key or ErrMissingKey.
func (c *Config) MustBool(key string) (bool, error) {
	v, ok := c.Raw(key)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrMissingKey, key)
	}
	return parseBool(key, v)
}

// Int returns the integer stored at key, or def if absent.
func (c *Config) Int(key string, def int) (int, error) {
	v, ok := c.Raw(key)
	if !ok {
		return def, nil
	}
	return parseInt(key, v)
}

// MustInt returns the integer stored at key or ErrMissingKey.
func (c *Config) MustInt(key string) (int, error) {
	v, ok := c.Raw(key)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingKey, key)
	}
	return parseInt(key, v)
}

// Float returns the float stored at key, or def if absent.
func (c *Config) Float(key string, def float64) (float64, error) {
	v, ok := c.Raw(key)
	if !ok {
		return def, nil
	}
	return parseFloat(key, v)
}

// MustFloat returns the float stored at key or ErrMissingKey.
func (c *Config) MustFloat(key string) (float64, error) {
	v, ok := c.Raw(key)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingKey, key)
	}
	return parseFloat(key, v)
}

func parseBool(key, v string) (bool, error) {
	b, err := strconv.ParseBool(strings.ToLower(v))
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q is not a boolean", ErrMalformedValue, key, v)
	}
	return b, nil
}

func parseInt(key, v string) (int, error) {
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrMalformedValue, key, v)
	}
	return i, nil
}

func parseFloat(key, v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not a number", ErrMalformedValue, key, v)
	}
	return f, nil
}
