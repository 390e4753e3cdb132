package kconfig

import "strings"

// Namespace is a read view on all keys sharing a dotted prefix.
type Namespace struct {
	cfg    *Config
	prefix string
}

// Prefix returns the namespace prefix including the trailing dot.
func (n Namespace) Prefix() string {
	return n.prefix
}

// Name returns the prefix without the trailing dot.
func (n Namespace) Name() string {
	return strings.TrimSuffix(n.prefix, ".")
}

// Key returns the fully qualified key for k.
func (n Namespace) Key(k string) string {
	return n.prefix + k
}

// Config returns the configuration the namespace belongs to.
func (n Namespace) Config() *Config {
	return n.cfg
}

// Keys returns all fully qualified keys in the namespace, sorted.
func (n Namespace) Keys() []string {
	return n.cfg.Keys(n.prefix)
}

// The getters below mirror Config with keys relative to the prefix.

func (n Namespace) Has(k string) bool {
	return n.cfg.Has(n.Key(k))
}

func (n Namespace) String(k, def string) string {
	return n.cfg.String(n.Key(k), def)
}

func (n Namespace) MustString(k string) (string, error) {
	return n.cfg.MustString(n.Key(k))
}

func (n Namespace) Strings(k string) []string {
	return n.cfg.Strings(n.Key(k))
}

func (n Namespace) Bool(k string, def bool) (bool, error) {
	return n.cfg.Bool(n.Key(k), def)
}

func (n Namespace) MustBool(k string) (bool, error) {
	return n.cfg.MustBool(n.Key(k))
}

func (n Namespace) Int(k string, def int) (int, error) {
	return n.cfg.Int(n.Key(k), def)
}

func (n Namespace) MustInt(k string) (int, error) {
	return n.cfg.MustInt(n.Key(k))
}

func (n Namespace) Float(k string, def float64) (float64, error) {
	return n.cfg.Float(n.Key(k), def)
}

func (n Namespace) MustFloat(k string) (float64, error) {
	return n.cfg.MustFloat(n.Key(k))
}
