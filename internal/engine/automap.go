package engine

// automap.go proposes a binding from canonical schema fields to the
// uploaded file's column headers. The proposal is only ever a starting
// point: the caller may rebind or unmap any field before the import starts.

import "strings"

// Mapping binds FieldSpec keys to source header names. Absence means the
// field is unmapped.
type Mapping map[string]string

// AutoDetect walks the source headers in order. A header that exactly
// equals a field key (case-insensitive, trimmed) binds that field and wins
// over every heuristic; otherwise the first matching rule binds its field.
//
// Binding is a plain overwrite: when two headers satisfy the same rule the
// later header silently wins. Rebinding behaviour is part of the shipped
// contract (the rightmost qualifying column is usually the most specific
// in real exports), so it is kept rather than reserved first-wins.
func AutoDetect(headers []string, fields []FieldSpec, rules []MatchRule) Mapping {
	m := make(Mapping)

	for _, header := range headers {
		norm := strings.ToLower(strings.TrimSpace(header))
		if norm == "" {
			continue
		}

		if key, ok := exactFieldMatch(norm, fields); ok {
			m[key] = header
			continue
		}

		for _, rule := range rules {
			if rule.Matches(norm) {
				m[rule.Field] = header
				break
			}
		}
	}

	return m
}

// exactFieldMatch checks the normalized header against every field key,
// not just unbound ones, so exact matches always take priority.
func exactFieldMatch(norm string, fields []FieldSpec) (string, bool) {
	for _, spec := range fields {
		if norm == strings.ToLower(spec.Key) {
			return spec.Key, true
		}
	}
	return "", false
}

// Bind maps a field key to a source header. An empty header unmaps the
// field.
func (m Mapping) Bind(fieldKey, header string) {
	if header == "" {
		delete(m, fieldKey)
		return
	}
	m[fieldKey] = header
}

// MissingRequired returns the labels of required fields that have no bound
// header, in schema order. Import start stays blocked while this is
// non-empty.
func (m Mapping) MissingRequired(fields []FieldSpec) []string {
	var missing []string
	for _, spec := range fields {
		if spec.Required && m[spec.Key] == "" {
			missing = append(missing, spec.Label)
		}
	}
	return missing
}

// Clone returns a copy so session snapshots cannot alias live state.
func (m Mapping) Clone() Mapping {
	out := make(Mapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
