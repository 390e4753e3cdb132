package kadapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/magiconair/properties"
)

// HostsAdapter enriches IP addresses from a known hosts file. Each line maps
// an address to a JSON object of host attributes:
//
//	10.1.128.236:{"local":"YES", "type":"webserver", "asset_value":"important"}
type HostsAdapter struct {
	hosts map[string]map[string]string
}

// NewHostsAdapter loads the known hosts file at path.
func NewHostsAdapter(path string) (*HostsAdapter, error) {
	l := hostsLoader()
	p, err := l.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: known hosts: %w", ErrAdapter, err)
	}
	return newHostsAdapter(p)
}

// ParseHosts builds a HostsAdapter from the contents of a known hosts file.
func ParseHosts(data string) (*HostsAdapter, error) {
	l := hostsLoader()
	p, err := l.LoadBytes([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("%w: known hosts: %w", ErrAdapter, err)
	}
	return newHostsAdapter(p)
}

// Host attributes are JSON; ${...} has no meaning in them.
func hostsLoader() *properties.Loader {
	return &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
}

func newHostsAdapter(p *properties.Properties) (*HostsAdapter, error) {
	hosts := make(map[string]map[string]string, p.Len())
	for _, ip := range p.Keys() {
		raw, _ := p.Get(ip)
		attrs := map[string]string{}
		if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
			return nil, fmt.Errorf("%w: known hosts: host %s: %w", ErrAdapter, ip, err)
		}
		hosts[ip] = attrs
	}
	return &HostsAdapter{hosts: hosts}, nil
}

// Lookup returns the attributes of every known key, prefixed with the key:
// "10.0.0.1.type" -> "webserver". Unknown keys are skipped.
func (a *HostsAdapter) Lookup(ctx context.Context, keys []string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLookup, err)
	}
	res := map[string]string{}
	for _, key := range keys {
		for attr, v := range a.hosts[key] {
			res[key+"."+attr] = v
		}
	}
	return res, nil
}

// Len returns the number of known hosts.
func (a *HostsAdapter) Len() int {
	return len(a.hosts)
}

func (a *HostsAdapter) Close() error {
	return nil
}
