package kserde

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownFormat is returned for record formats nobody registered.
var ErrUnknownFormat = errors.New("unknown record format")

// Record is a parsed telemetry record.
type Record = map[string]any

var formats = map[string]func() Serializer[Record]{
	"json": JSONSerializer[Record],
	"kv":   KV,
}

// ForFormat returns the record serializer registered as name.
func ForFormat(name string) (Serializer[Record], error) {
	f, ok := formats[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownFormat, name, strings.Join(Formats(), ", "))
	}
	return f(), nil
}

// Formats returns the registered format names, sorted.
func Formats() []string {
	res := make([]string, 0, len(formats))
	for name := range formats {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}

// KV encodes records as space separated key=value pairs sorted by key.
// Values are formatted with %v and must not contain spaces.
func KV() Serializer[Record] {
	return func(r Record) ([]byte, error) {
		keys := make([]string, 0, len(r))
		for k := range r {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var sb strings.Builder
		for i, k := range keys {
			v := fmt.Sprintf("%v", r[k])
			if strings.ContainsAny(k, " =") || strings.Contains(v, " ") {
				return nil, fmt.Errorf("field %q cannot be encoded as key=value", k)
			}
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(k)
			sb.WriteByte('=')
			sb.WriteString(v)
		}
		return []byte(sb.String()), nil
	}
}
